// Package logging: syslog sink. Reconstructed from the teacher's
// internal/logging/syslog_test.go (the only surviving file from that
// package in the retrieval pack) — the defaults (port 514, udp, tag
// "flywall", facility 1) are preserved as the shape of the config; the tag
// default is changed to this project's brand name and the facility default
// to LOG_DAEMON.
package logging

import (
	"fmt"
	"io"
	"log/syslog"
	"net"
	"time"

	"github.com/sdpc-project/sdpc/internal/brand"
)

// SyslogConfig configures the optional remote/local syslog sink, driven by
// the USE_SYSLOG config option (spec §6).
type SyslogConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Protocol string // "udp" or "tcp"; "" defaults to "udp"
	Tag      string
	Facility syslog.Priority
}

// DefaultSyslogConfig returns the disabled-by-default configuration.
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Enabled:  false,
		Port:     514,
		Protocol: "udp",
		Tag:      brand.LowerName,
		Facility: syslog.LOG_DAEMON,
	}
}

// NewSyslogWriter dials a remote syslog target. log/syslog's own dialer only
// reaches the local daemon over its Unix socket, which doesn't fit a
// USE_SYSLOG config option naming a host/port, so a raw net.Conn is opened
// to Host:Port over Protocol and each Write is framed as an RFC 3164 line.
func NewSyslogWriter(cfg SyslogConfig) (io.WriteCloser, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("syslog host must not be empty")
	}
	if cfg.Port == 0 {
		cfg.Port = 514
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "udp"
	}
	if cfg.Tag == "" {
		cfg.Tag = brand.LowerName
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	conn, err := net.DialTimeout(cfg.Protocol, addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial remote syslog %s://%s: %w", cfg.Protocol, addr, err)
	}
	return &remoteSyslogWriter{conn: conn, tag: cfg.Tag, facility: cfg.Facility}, nil
}

// remoteSyslogWriter frames each Write as a minimal RFC 3164 message.
type remoteSyslogWriter struct {
	conn     net.Conn
	tag      string
	facility syslog.Priority
}

func (w *remoteSyslogWriter) Write(p []byte) (int, error) {
	pri := int(w.facility) | int(syslog.LOG_INFO)
	msg := fmt.Sprintf("<%d>%s %s: %s", pri, time.Now().Format(time.Stamp), w.tag, p)
	if _, err := w.conn.Write([]byte(msg)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *remoteSyslogWriter) Close() error { return w.conn.Close() }
