package pidfile

import (
	"os"
	"syscall"
	"time"

	sdperrors "github.com/sdpc-project/sdpc/internal/errors"
)

// gracePeriod is how long Stop waits after SIGTERM before escalating to
// SIGKILL (spec S6: "~1s" grace, "~2s" total in the worked example).
const gracePeriod = time.Second

// Stop signals the running instance to exit, escalating from SIGTERM to
// SIGKILL if it doesn't exit within gracePeriod. Per the design note's
// resolution of the double-kill race: "still alive" right after SIGTERM is
// expected, not a failure — Stop keeps polling instead of treating the
// first liveness probe as an error.
func Stop(pidFilePath string) error {
	pid, err := ReadPID(pidFilePath)
	if err != nil {
		return sdperrors.Wrap(err, sdperrors.KindFilesystemOperation, "read pid file")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return sdperrors.Wrapf(err, sdperrors.KindFilesystemOperation, "find process %d", pid)
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if err == os.ErrProcessDone {
			return nil
		}
		return sdperrors.Wrapf(err, sdperrors.KindFilesystemOperation, "signal TERM to %d", pid)
	}

	deadline := time.Now().Add(gracePeriod)
	escalated := false
	for {
		if !processAlive(proc) {
			return nil
		}
		if time.Now().After(deadline) {
			if escalated {
				return sdperrors.Errorf(sdperrors.KindFilesystemOperation, "process %d still alive after SIGKILL", pid)
			}
			if err := proc.Signal(syscall.SIGKILL); err != nil && err != os.ErrProcessDone {
				return sdperrors.Wrapf(err, sdperrors.KindFilesystemOperation, "signal KILL to %d", pid)
			}
			escalated = true
			deadline = time.Now().Add(gracePeriod)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func processAlive(proc *os.Process) bool {
	err := proc.Signal(syscall.Signal(0))
	return err == nil
}

// Restart sends SIGHUP to the running instance; the target re-reads its
// config in place without releasing the PID-file lock (spec §4A).
func Restart(pidFilePath string) error {
	pid, err := ReadPID(pidFilePath)
	if err != nil {
		return sdperrors.Wrap(err, sdperrors.KindFilesystemOperation, "read pid file")
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return sdperrors.Wrapf(err, sdperrors.KindFilesystemOperation, "find process %d", pid)
	}
	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return sdperrors.Wrapf(err, sdperrors.KindFilesystemOperation, "signal HUP to %d", pid)
	}
	return nil
}

// StatusResult is what the status subcommand reports.
type StatusResult struct {
	Running bool
	PID     int
}

// Status attempts to acquire the PID lock; if contended, it reports the
// holder's PID as running and releases immediately (spec §6).
func Status(pidFilePath string) (StatusResult, error) {
	lock, existingPID, err := Acquire(pidFilePath)
	if err != nil {
		return StatusResult{}, err
	}
	if lock == nil {
		return StatusResult{Running: true, PID: existingPID}, nil
	}
	// We just grabbed the lock ourselves, meaning nothing was running.
	// Release it immediately; Status must not hold the lock.
	_ = lock.Release()
	return StatusResult{Running: false}, nil
}
