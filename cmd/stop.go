package cmd

import (
	"flag"
	"path/filepath"

	"github.com/sdpc-project/sdpc/internal/brand"
	"github.com/sdpc-project/sdpc/internal/config"
	"github.com/sdpc-project/sdpc/internal/install"
	"github.com/sdpc-project/sdpc/internal/pidfile"
)

func init() {
	RegisterCommand(Command{Name: "stop", Help: "stop the running control client", Run: runStop})
}

func runStop(args []string) error {
	fs := flag.NewFlagSet("stop", flag.ContinueOnError)
	configFile := fs.String("config", "", "path to config file, for a non-default pid_file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pidFile := resolvePIDFile(*configFile)
	if err := pidfile.Stop(pidFile); err != nil {
		return err
	}
	Printer.Println("Stopped.")
	return nil
}

func resolvePIDFile(configFile string) string {
	if configFile == "" {
		configFile = filepath.Join(install.GetConfigDir(), brand.ConfigFileName)
	}
	if cfg, err := config.LoadFile(configFile); err == nil && cfg.PIDFile != "" {
		return cfg.PIDFile
	}
	return install.PIDFilePath()
}
