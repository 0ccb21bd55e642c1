package cmd

import (
	"flag"

	"github.com/sdpc-project/sdpc/internal/pidfile"
)

func init() {
	RegisterCommand(Command{Name: "restart", Help: "signal the running client to reinitialize (HUP)", Run: runRestart})
}

func runRestart(args []string) error {
	fs := flag.NewFlagSet("restart", flag.ContinueOnError)
	configFile := fs.String("config", "", "path to config file, for a non-default pid_file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pidFile := resolvePIDFile(*configFile)
	if err := pidfile.Restart(pidFile); err != nil {
		return err
	}
	Printer.Println("Sent reinit signal.")
	return nil
}
