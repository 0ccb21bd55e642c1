// Package install resolves the on-disk directories the daemon uses:
// config, state, log, and run (pidfile) directories. Each has a default
// that can be overridden by an environment variable or a shared prefix,
// following the same priority order the teacher codebase uses.
package install

import (
	"os"
	"path/filepath"

	"github.com/sdpc-project/sdpc/internal/brand"
)

// Defaults. Overridable at build time would normally go through -ldflags;
// this client has no distro-specific packaging step, so they are plain
// constants.
var (
	DefaultConfigDir = "/etc/sdpc"
	DefaultStateDir  = "/var/lib/sdpc"
	DefaultLogDir    = "/var/log/sdpc"
	DefaultRunDir    = "/var/run/sdpc"
)

func envOr(suffix, fallback string) string {
	if v := os.Getenv(brand.ConfigEnvPrefix + "_" + suffix); v != "" {
		return v
	}
	if prefix := os.Getenv(brand.ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, strippedDirName(suffix))
	}
	return fallback
}

func strippedDirName(suffix string) string {
	switch suffix {
	case "CONFIG_DIR":
		return "config"
	case "STATE_DIR":
		return "state"
	case "LOG_DIR":
		return "log"
	case "RUN_DIR":
		return "run"
	default:
		return ""
	}
}

// GetConfigDir returns the config directory, checking env vars first.
func GetConfigDir() string { return envOr("CONFIG_DIR", DefaultConfigDir) }

// GetStateDir returns the state directory, checking env vars first.
func GetStateDir() string { return envOr("STATE_DIR", DefaultStateDir) }

// GetLogDir returns the log directory, checking env vars first.
func GetLogDir() string { return envOr("LOG_DIR", DefaultLogDir) }

// GetRunDir returns the runtime directory for the PID file.
func GetRunDir() string { return envOr("RUN_DIR", DefaultRunDir) }

// PIDFilePath returns the full path to the daemon's PID file.
func PIDFilePath() string {
	return filepath.Join(GetRunDir(), brand.PIDFileName)
}

// StatusFilePath returns the full path to the observational status snapshot.
func StatusFilePath() string {
	return filepath.Join(GetStateDir(), brand.StatusFileName)
}
