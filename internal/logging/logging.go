// Package logging wraps the standard library logger the way the teacher
// codebase does: a plain *log.Logger, no structured framework, with an
// optional syslog sink gated by config. Verbosity is a simple level filter
// rather than a full leveled-logging library, matching the teacher's
// taste for small, direct wrappers over stdlib.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Level is a logging verbosity level.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps the VERBOSITY config value (0-3) onto a Level, clamping
// out-of-range values instead of erroring — verbosity is diagnostic, not
// load-bearing.
func ParseLevel(verbosity int) Level {
	switch {
	case verbosity <= 0:
		return LevelError
	case verbosity == 1:
		return LevelWarn
	case verbosity == 2:
		return LevelInfo
	default:
		return LevelDebug
	}
}

// Logger is the sink the rest of the tree logs through.
type Logger struct {
	level  Level
	std    *log.Logger
	closer io.Closer
}

// New builds a Logger writing to w at the given level. Callers that also
// want syslog delivery should use NewWithSyslog.
func New(w io.Writer, level Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{level: level, std: log.New(w, "", log.LstdFlags)}
}

// NewWithSyslog builds a Logger that writes to w and, if cfg.Enabled, also
// forwards to a syslog sink. A syslog dial failure is logged to w and
// otherwise ignored — local logging must keep working even if the syslog
// target is unreachable.
func NewWithSyslog(w io.Writer, level Level, cfg SyslogConfig) *Logger {
	l := New(w, level)
	if !cfg.Enabled {
		return l
	}
	sw, err := NewSyslogWriter(cfg)
	if err != nil {
		l.std.Printf("%s: syslog disabled: %v", LevelWarn, err)
		return l
	}
	l.closer = sw
	l.std.SetOutput(io.MultiWriter(w, sw))
	return l
}

// Close releases the syslog connection, if any.
func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func (l *Logger) log(level Level, format string, args ...any) {
	if level > l.level {
		return
	}
	l.std.Printf("%s: %s", level, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, format, args...) }
