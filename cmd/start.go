package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sdpc-project/sdpc/internal/brand"
	"github.com/sdpc-project/sdpc/internal/client"
	"github.com/sdpc-project/sdpc/internal/clockcheck"
	"github.com/sdpc-project/sdpc/internal/config"
	"github.com/sdpc-project/sdpc/internal/debugsrv"
	"github.com/sdpc-project/sdpc/internal/install"
	"github.com/sdpc-project/sdpc/internal/logging"
	"github.com/sdpc-project/sdpc/internal/metrics"
	"github.com/sdpc-project/sdpc/internal/pidfile"
	"github.com/sdpc-project/sdpc/internal/transport"
)

func init() {
	RegisterCommand(Command{Name: "start", Help: "start the control client", Run: runStart})
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configFile := fs.String("config", filepath.Join(install.GetConfigDir(), brand.ConfigFileName), "path to config file")
	foreground := fs.Bool("foreground", false, "run in the foreground instead of daemonizing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(*configFile); os.IsNotExist(err) {
		return fmt.Errorf("configuration file not found: %s", *configFile)
	}
	res, err := config.LoadFile(*configFile)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	pidFile := res.PIDFile
	if pidFile == "" {
		pidFile = install.PIDFilePath()
	}
	logFile := filepath.Join(install.GetLogDir(), brand.LowerName+".log")

	result, lock, err := pidfile.Start(pidFile, *foreground || res.Foreground, logFile, os.Args[1:])
	if err != nil {
		return err
	}
	if !result.AlreadyForeground {
		Printer.Printf("Started %s (PID: %d)\n", brand.Name, result.ChildPID)
		Printer.Printf("Logs: %s\n", logFile)
		return nil
	}

	return runForeground(*configFile, res, lock)
}

func runForeground(configFile string, cfg *config.Config, lock *pidfile.Lock) error {
	level := logging.ParseLevel(cfg.Verbosity)
	logger := logging.NewWithSyslog(os.Stderr, level, logging.SyslogConfig{Enabled: cfg.UseSyslog})
	defer logger.Close()

	if res := clockcheck.Check(cfg.NTPServer); res.Queried && res.Skewed {
		logger.Warnf("local clock offset from %s is %s, outside TLS cert validity tolerance", cfg.NTPServer, res.Offset)
	}

	facadeCfg := transport.Config{
		CtrlAddr:              cfg.CtrlAddr,
		CtrlPort:              cfg.CtrlPort,
		CertFile:              cfg.CertFile,
		KeyFile:               cfg.KeyFile,
		UseSPA:                cfg.UseSPA,
		SPAEncryptionKey:      []byte(cfg.SPAEncryptionKey),
		SPAHMACKey:            []byte(cfg.SPAHMACKey),
		PostSPADelay:          cfg.PostSPADelay(),
		MaxConnAttempts:       cfg.MaxConnAttempts,
		InitConnRetryInterval: cfg.InitConnRetryInterval(),
		ReadTimeout:           cfg.ReadTimeout(),
		WriteTimeout:          cfg.WriteTimeout(),
		MsgQueueLen:           cfg.CappedMsgQueueLen(),
	}
	facade, err := transport.NewTLSFacade(facadeCfg, logger)
	if err != nil {
		return fmt.Errorf("transport init: %w", err)
	}

	signals := pidfile.NewSignalFlags()
	signals.Install()
	defer signals.Stop()

	c := client.New(cfg, facade, lock, signals, logger)
	c.ConfigPath = configFile

	reg := metrics.New()
	c.SetMetrics(reg)

	if cfg.DebugAddr != "" {
		srv, err := debugsrv.New(cfg.DebugAddr, reg.Gatherer(), func() (bool, string) {
			return c.State() != client.TimeToQuit, c.State().String()
		}, logger)
		if err != nil {
			logger.Warnf("debug server disabled: %v", err)
		} else {
			srv.Serve()
		}
	}

	err = c.Run(context.Background())
	_ = lock.Release()
	return err
}
