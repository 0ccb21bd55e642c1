// Package brand holds the handful of identity constants the rest of the
// tree keys off: binary name, env var prefix, default file names. Kept
// separate from internal/install so tests can swap it without touching path
// resolution logic.
package brand

const (
	// Name is the human-facing product name.
	Name = "SDP Control Client"
	// LowerName is used to build file and directory names.
	LowerName = "sdpc"
	// BinaryName is the name of the compiled executable.
	BinaryName = "sdpc"

	// ConfigEnvPrefix is the prefix for environment variable overrides,
	// e.g. SDPC_STATE_DIR.
	ConfigEnvPrefix = "SDPC"

	// ConfigFileName is the default daemon configuration file name.
	ConfigFileName = "sdpc.hcl"

	// PIDFileName is the default PID file name under the run directory.
	PIDFileName = "sdpc.pid"

	// StatusFileName is the observational state snapshot the loop rewrites.
	StatusFileName = "status.json"
)
