package pidfile

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
)

// SignalFlags are the sticky, lock-free flags the control loop polls once
// per iteration (spec §5: "Signal handlers set lock-free sticky atomic
// flags. The loop reads and clears them at a single point per iteration").
//
// Go has no async-signal-safe user handlers the way C does; signal.Notify
// delivers on a channel from a runtime-managed goroutine instead. That
// goroutine is this package's stand-in for the C signal handler: it does
// only the flag-setting work a real signal handler would be restricted to
// (no logging, no allocation beyond the already-allocated channel) and
// nothing else, preserving the spirit of the spec's handler-safety
// invariant even though the concurrency primitive is different.
type SignalFlags struct {
	hup   atomic.Bool
	int_  atomic.Bool
	term  atomic.Bool
	usr1  atomic.Bool
	usr2  atomic.Bool
	chld  atomic.Bool
	any   atomic.Bool
	sigCh chan os.Signal
	stop  chan struct{}
}

// NewSignalFlags allocates the flag set. Call Install to start listening.
func NewSignalFlags() *SignalFlags {
	return &SignalFlags{
		sigCh: make(chan os.Signal, 8),
		stop:  make(chan struct{}),
	}
}

// Install registers the six signals named in spec §4A and starts the
// dispatch goroutine. Restartable syscall semantics and an empty
// additional signal mask are Go's default behavior for signal.Notify, so
// no extra setup is required to match that part of the spec.
func (s *SignalFlags) Install() {
	signal.Notify(s.sigCh,
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM,
		syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGCHLD,
	)
	go s.dispatch()
}

// Stop unregisters signal delivery and halts the dispatch goroutine.
func (s *SignalFlags) Stop() {
	signal.Stop(s.sigCh)
	close(s.stop)
}

func (s *SignalFlags) dispatch() {
	for {
		select {
		case <-s.stop:
			return
		case sig := <-s.sigCh:
			switch sig {
			case syscall.SIGHUP:
				s.hup.Store(true)
			case syscall.SIGINT:
				s.int_.Store(true)
			case syscall.SIGTERM:
				s.term.Store(true)
			case syscall.SIGUSR1:
				s.usr1.Store(true)
			case syscall.SIGUSR2:
				s.usr2.Store(true)
			case syscall.SIGCHLD:
				s.chld.Store(true)
				reapChildren()
			}
			s.any.Store(true)
		}
	}
}

// reapChildren performs the non-blocking wait the spec's CHLD handler does,
// preserving any ambient errno the way the spec's design notes require (the
// Go runtime has no global errno to save/restore; syscall.Wait4 already
// returns its own error independent of any ambient state, so there is
// nothing else to preserve).
func reapChildren() {
	for {
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
		if pid <= 0 || err != nil {
			return
		}
	}
}

// Pending reports whether any signal has been observed since the last
// ClearAny. The control loop checks this once per iteration (spec §4E step 6).
func (s *SignalFlags) Pending() bool { return s.any.Load() }

// TakeHUP, TakeINT, TakeTERM, TakeUSR1, TakeUSR2 atomically read-and-clear
// their respective flag. Reserved USR1/USR2 have no default action (spec
// §6) beyond being observable here; the control loop does not take them.
func (s *SignalFlags) TakeHUP() bool  { return s.hup.Swap(false) }
func (s *SignalFlags) TakeINT() bool  { return s.int_.Swap(false) }
func (s *SignalFlags) TakeTERM() bool { return s.term.Swap(false) }
func (s *SignalFlags) TakeUSR1() bool { return s.usr1.Swap(false) }
func (s *SignalFlags) TakeUSR2() bool { return s.usr2.Swap(false) }

// ClearAny clears the generic "got signal" flag once the loop has drained
// the specific flags for this iteration.
func (s *SignalFlags) ClearAny() { s.any.Store(false) }
