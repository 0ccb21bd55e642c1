package pidfile

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	sdperrors "github.com/sdpc-project/sdpc/internal/errors"
)

// forkedEnvVar marks a re-exec'd child so it knows to skip forking again
// and run the loop directly. Go has no fork(2) that preserves the runtime,
// so daemonization here follows the teacher's cmd/start.go pattern: re-exec
// the same binary with Setsid in SysProcAttr, redirect its stdio to the log
// file, and have the parent return after a short liveness check.
const forkedEnvVar = "SDPC_DAEMON_CHILD"

// IsForkedChild reports whether the current process is the re-exec'd
// daemon child, as opposed to the CLI invocation that spawned it.
func IsForkedChild() bool { return os.Getenv(forkedEnvVar) == "1" }

// StartResult describes the outcome of Start.
type StartResult struct {
	// ChildPID is set when a new background process was spawned.
	ChildPID int
	// AlreadyForeground is true when the caller is itself the process that
	// should now run the loop (foreground mode, or the re-exec'd child).
	AlreadyForeground bool
}

// Start implements spec §4A's start contract. When foreground is false, it
// re-execs the current binary with a forked-child marker and Setsid, and
// returns the child's PID without acquiring the lock itself — the lock
// belongs to the child. When foreground is true (or IsForkedChild() is
// already true), Start acquires the PID-file lock directly in this process
// and returns AlreadyForeground.
func Start(pidFilePath string, foreground bool, logFile string, extraArgs []string) (*StartResult, *Lock, error) {
	if !foreground && !IsForkedChild() {
		pid, err := spawnChild(logFile, extraArgs)
		if err != nil {
			return nil, nil, sdperrors.Wrap(err, sdperrors.KindFork, "daemonize")
		}
		return &StartResult{ChildPID: pid}, nil, nil
	}

	if IsForkedChild() {
		if err := finishDaemonizing(); err != nil {
			return nil, nil, sdperrors.Wrap(err, sdperrors.KindFork, "finish daemonizing")
		}
	}

	if err := VerifyPermissions(pidFilePath); err != nil {
		// Logged here; not fatal on its own per spec §4A.
		fmt.Fprintf(os.Stderr, "ERROR: pid file permissions: %v\n", err)
	}

	lock, existingPID, err := Acquire(pidFilePath)
	if err != nil {
		return nil, nil, err
	}
	if lock == nil {
		return nil, nil, sdperrors.Errorf(sdperrors.KindProcExists, "another instance is already running (pid %d)", existingPID)
	}

	return &StartResult{AlreadyForeground: true}, lock, nil
}

func spawnChild(logFile string, extraArgs []string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve executable path: %w", err)
	}

	if dir := filepath.Dir(logFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create log directory: %w", err)
		}
	}
	logF, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open log file: %w", err)
	}
	defer logF.Close()

	cmd := exec.Command(exe, extraArgs...)
	cmd.Env = append(os.Environ(), forkedEnvVar+"=1")
	cmd.Stdout = logF
	cmd.Stderr = logF
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start daemon: %w", err)
	}
	pid := cmd.Process.Pid

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			return 0, fmt.Errorf("daemon exited immediately: %w", err)
		}
		return 0, fmt.Errorf("daemon exited immediately")
	case <-time.After(500 * time.Millisecond):
		return pid, nil
	}
}

// finishDaemonizing does the session/umask/chdir housekeeping spec §4A asks
// of the child: new session (already done via Setsid in SysProcAttr at
// exec time), chdir to the filesystem root, clear the file-mode-creation
// mask, and close stdin (stdout/stderr are already bound to the log file by
// the parent's redirection, so "closing the three standard streams"
// reduces to detaching stdin here).
func finishDaemonizing() error {
	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("chdir /: %w", err)
	}
	syscall.Umask(0)

	devNull, err := os.OpenFile(os.DevNull, os.O_RDONLY, 0)
	if err == nil {
		_ = syscall.Dup2(int(devNull.Fd()), int(os.Stdin.Fd()))
		_ = devNull.Close()
	}
	return nil
}
