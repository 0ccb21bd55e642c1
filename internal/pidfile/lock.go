// Package pidfile implements the pidfile-and-lifecycle manager (spec §4A):
// exclusive advisory locking as the single-instance token, file-permission
// verification, daemonization, and the stop/restart/status operations that
// drive it from the CLI. Locking is grounded on the flock(2) pattern used
// throughout the retrieval pack (see internal/pidfile/lock.go's use of
// golang.org/x/sys/unix.Flock, the same primitive the lyrebirdaudio and
// thrum daemon examples use via syscall.Flock).
package pidfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	sdperrors "github.com/sdpc-project/sdpc/internal/errors"
)

// Lock holds an exclusive advisory lock on a PID file for the lifetime of
// the process. The descriptor must stay open for the lock to persist
// (spec §4A: "keep the descriptor open for the process lifetime").
type Lock struct {
	path string
	file *os.File
}

// Acquire opens (creating if absent) the PID file at path with owner-only
// permissions, marks the descriptor close-on-exec, and attempts a
// non-blocking exclusive flock. If the lock is already held by another live
// process, Acquire returns (nil, existingPID, nil) — per spec, contention is
// not itself an error, only a signal to the caller. Any other failure is
// fatal and returned as a FilesystemOperation error.
func Acquire(path string) (lock *Lock, existingPID int, err error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, 0, sdperrors.Wrapf(err, sdperrors.KindFilesystemOperation, "open pid file %s", path)
	}

	if err := setCloseOnExec(file); err != nil {
		_ = file.Close()
		return nil, 0, sdperrors.Wrap(err, sdperrors.KindFilesystemOperation, "set close-on-exec on pid file")
	}

	flockErr := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if flockErr != nil {
		if flockErr == unix.EWOULDBLOCK || flockErr == unix.EAGAIN {
			pid, readErr := readPID(path)
			_ = file.Close()
			if readErr != nil {
				// Held by someone, but we can't identify them; still not
				// our error to report as fatal.
				return nil, 0, nil
			}
			return nil, pid, nil
		}
		_ = file.Close()
		return nil, 0, sdperrors.Wrapf(flockErr, sdperrors.KindFilesystemOperation, "flock pid file %s", path)
	}

	if err := file.Truncate(0); err != nil {
		_ = unix.Flock(int(file.Fd()), unix.LOCK_UN)
		_ = file.Close()
		return nil, 0, sdperrors.Wrap(err, sdperrors.KindFilesystemOperation, "truncate pid file")
	}
	if _, err := file.Seek(0, 0); err != nil {
		_ = unix.Flock(int(file.Fd()), unix.LOCK_UN)
		_ = file.Close()
		return nil, 0, sdperrors.Wrap(err, sdperrors.KindFilesystemOperation, "seek pid file")
	}
	if _, err := fmt.Fprintf(file, "%d\n", os.Getpid()); err != nil {
		_ = unix.Flock(int(file.Fd()), unix.LOCK_UN)
		_ = file.Close()
		return nil, 0, sdperrors.Wrap(err, sdperrors.KindFilesystemOperation, "write pid file")
	}
	if err := file.Sync(); err != nil {
		_ = unix.Flock(int(file.Fd()), unix.LOCK_UN)
		_ = file.Close()
		return nil, 0, sdperrors.Wrap(err, sdperrors.KindFilesystemOperation, "flush pid file")
	}

	return &Lock{path: path, file: file}, 0, nil
}

// Release unlocks and closes the PID file, and removes it from disk. It is
// safe to call on a nil *Lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	err := l.file.Close()
	_ = os.Remove(l.path)
	l.file = nil
	return err
}

// Fd exposes the underlying descriptor for tests that want to confirm the
// lock survives an in-place reinit (spec S5: "the PID-file lock descriptor
// is the same before and after").
func (l *Lock) Fd() uintptr {
	if l == nil || l.file == nil {
		return 0
	}
	return l.file.Fd()
}

func setCloseOnExec(f *os.File) error {
	_, _, errno := syscall.Syscall(syscall.SYS_FCNTL, f.Fd(), syscall.F_SETFD, syscall.FD_CLOEXEC)
	if errno != 0 {
		return errno
	}
	return nil
}

// readPID reads and parses the PID stored in the file at path. Used both
// when Acquire loses a lock race and by Stop/Restart/Status.
func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid in %s: %w", path, err)
	}
	return pid, nil
}

// ReadPID is the exported form of readPID, used by Stop/Restart/Status and
// by the CLI layer.
func ReadPID(path string) (int, error) { return readPID(path) }

// VerifyPermissions implements the spec §4A file-permission check: the file
// must be a regular file (or symlink to one), mode exactly 0600, owned by
// the current effective user. A missing file is acceptable — it simply
// means no running instance. Any other mismatch is logged by the caller as
// an error but does not by itself abort the caller's operation.
func VerifyPermissions(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return sdperrors.Wrapf(err, sdperrors.KindFilesystemOperation, "stat %s", path)
	}

	if fi.Mode()&os.ModeSymlink != 0 {
		fi, err = os.Stat(path)
		if err != nil {
			return sdperrors.Wrapf(err, sdperrors.KindFilesystemOperation, "stat symlink target %s", path)
		}
	}

	if !fi.Mode().IsRegular() {
		return sdperrors.Errorf(sdperrors.KindFilesystemOperation, "%s is not a regular file", path)
	}
	if fi.Mode().Perm() != 0o600 {
		return sdperrors.Errorf(sdperrors.KindFilesystemOperation, "%s has mode %o, want 0600", path, fi.Mode().Perm())
	}
	if !ownedByCurrentUser(fi) {
		return sdperrors.Errorf(sdperrors.KindFilesystemOperation, "%s is not owned by the current user", path)
	}
	return nil
}
