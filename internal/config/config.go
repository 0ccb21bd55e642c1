// Package config loads and validates the daemon's own settings file. Format
// and loader shape follow the teacher's internal/config package: HCL via
// hashicorp/hcl/v2, with JSON accepted as a fallback, defaults applied after
// parse, and a SecureString type that masks sensitive values in any
// diagnostic dump.
package config

import (
	"time"
)

// SecureString hides its value whenever it is marshaled for display.
type SecureString string

func (s SecureString) String() string {
	if s == "" {
		return ""
	}
	return "(hidden)"
}

func (s SecureString) GoString() string { return "(hidden)" }

// MarshalJSON masks the value outside of the in-memory Client.
func (s SecureString) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte(`""`), nil
	}
	return []byte(`"(hidden)"`), nil
}

// UnmarshalText enables HCL/JSON decoding for this type.
func (s *SecureString) UnmarshalText(text []byte) error {
	*s = SecureString(text)
	return nil
}

// Config is the full set of options recognized from the daemon config file
// (spec §6), with HCL struct tags driving gohcl decoding.
type Config struct {
	CtrlPort   int    `hcl:"ctrl_port"`
	CtrlAddr   string `hcl:"ctrl_addr"`
	CtrlStanza string `hcl:"ctrl_stanza,optional"`

	UseSPA          bool `hcl:"use_spa,optional"`
	RemainConnected bool `hcl:"remain_connected,optional"`
	Foreground      bool `hcl:"foreground,optional"`
	UseSyslog       bool `hcl:"use_syslog,optional"`
	Verbosity       int  `hcl:"verbosity,optional"`

	KeyFile  string `hcl:"key_file"`
	CertFile string `hcl:"cert_file"`

	SPAEncryptionKey SecureString `hcl:"spa_encryption_key,optional"`
	SPAHMACKey       SecureString `hcl:"spa_hmac_key,optional"`

	ClientConfigFile string `hcl:"client_config_file,optional"`
	FwknopConfigFile string `hcl:"fwknop_config_file,optional"`
	PIDFile          string `hcl:"pid_file,optional"`

	MsgQueueLen         int `hcl:"msg_q_len,optional"`
	PostSPADelayMillis  int `hcl:"post_spa_delay_ms,optional"`
	ReadTimeoutSeconds  int `hcl:"read_timeout,optional"`
	WriteTimeoutSeconds int `hcl:"write_timeout,optional"`

	CredUpdateIntervalSeconds   int `hcl:"cred_update_interval,optional"`
	AccessUpdateIntervalSeconds int `hcl:"access_update_interval,optional"`

	MaxConnAttempts             int `hcl:"max_conn_attempts,optional"`
	InitConnRetryIntervalSecond int `hcl:"init_conn_retry_interval,optional"`

	KeepAliveIntervalSeconds int `hcl:"keep_alive_interval,optional"`

	MaxRequestAttempts              int `hcl:"max_request_attempts,optional"`
	InitRequestRetryIntervalSeconds int `hcl:"init_request_retry_interval,optional"`

	// DebugAddr, when non-empty, binds the loopback-only metrics/healthz
	// server. Off by default: no inbound traffic in the default posture.
	DebugAddr string `hcl:"debug_addr,optional"`

	// LogDir/StateDir allow operators to relocate ambient directories; an
	// empty value falls back to internal/install's defaults.
	LogDir   string `hcl:"log_dir,optional"`
	StateDir string `hcl:"state_dir,optional"`

	// NTPServer names the host internal/clockcheck queries once at start()
	// for the best-effort clock-skew warning; empty falls back to
	// clockcheck.DefaultServer.
	NTPServer string `hcl:"ntp_server,optional"`
}

// Limits, spec §6.
const (
	MaxServerStringLen  = 50
	MaxConfigLineLen     = 1024
	MaxRawKeyBytes       = 128
	MaxBase64KeyLen      = 180
	MaxMsgQueueLen       = 100
	MaxPostSPADelay      = 10 * time.Second
)

// applyDefaults fills zero-valued fields with the spec §6 defaults.
func applyDefaults(c *Config) {
	if c.MsgQueueLen == 0 {
		c.MsgQueueLen = 10
	}
	if c.PostSPADelayMillis == 0 {
		c.PostSPADelayMillis = 500
	}
	if c.ReadTimeoutSeconds == 0 {
		c.ReadTimeoutSeconds = 1
	}
	if c.WriteTimeoutSeconds == 0 {
		c.WriteTimeoutSeconds = 1
	}
	if c.CredUpdateIntervalSeconds == 0 {
		c.CredUpdateIntervalSeconds = 7200
	}
	if c.AccessUpdateIntervalSeconds == 0 {
		c.AccessUpdateIntervalSeconds = 86400
	}
	if c.MaxConnAttempts == 0 {
		c.MaxConnAttempts = 3
	}
	if c.InitConnRetryIntervalSecond == 0 {
		c.InitConnRetryIntervalSecond = 5
	}
	if c.KeepAliveIntervalSeconds == 0 {
		c.KeepAliveIntervalSeconds = 60
	}
	if c.MaxRequestAttempts == 0 {
		c.MaxRequestAttempts = 3
	}
	if c.InitRequestRetryIntervalSeconds == 0 {
		c.InitRequestRetryIntervalSeconds = 10
	}
	// Foreground defaults to true (spec §6: FOREGROUND default 1) — only
	// apply when the field was never set by marking it through the
	// loader's "seen" pass; see load.go for the explicit-field handling.
}

// PostSPADelay returns the post-SPA delay clamped to the spec's 10s cap.
func (c *Config) PostSPADelay() time.Duration {
	d := time.Duration(c.PostSPADelayMillis) * time.Millisecond
	if d > MaxPostSPADelay {
		return MaxPostSPADelay
	}
	return d
}

// CappedMsgQueueLen returns MsgQueueLen clamped to the spec's cap of 100.
func (c *Config) CappedMsgQueueLen() int {
	if c.MsgQueueLen > MaxMsgQueueLen {
		return MaxMsgQueueLen
	}
	return c.MsgQueueLen
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

func (c *Config) CredUpdateInterval() time.Duration {
	return time.Duration(c.CredUpdateIntervalSeconds) * time.Second
}

func (c *Config) AccessUpdateInterval() time.Duration {
	return time.Duration(c.AccessUpdateIntervalSeconds) * time.Second
}

func (c *Config) InitConnRetryInterval() time.Duration {
	return time.Duration(c.InitConnRetryIntervalSecond) * time.Second
}

func (c *Config) KeepAliveInterval() time.Duration {
	return time.Duration(c.KeepAliveIntervalSeconds) * time.Second
}

func (c *Config) InitRequestRetryInterval() time.Duration {
	return time.Duration(c.InitRequestRetryIntervalSeconds) * time.Second
}
