// Package clockcheck implements the one-shot, best-effort NTP clock-skew
// check named in SPEC_FULL.md's supplemented feature 4: on start(), warn
// (non-fatal) if the local clock is far enough off that TLS certificate
// validity windows could be rejected or silently accepted outside their
// intended window. Never consulted by the control loop itself.
package clockcheck

import (
	"time"

	"github.com/beevik/ntp"
)

// DefaultServer is used when the config doesn't name one.
const DefaultServer = "pool.ntp.org"

// WarnThreshold is the offset magnitude past which Check reports skew.
// A TLS cert's validity window is in whole minutes at the smallest, so an
// offset under a minute is never going to move a certificate in or out of
// its window.
const WarnThreshold = time.Minute

// Result is the outcome of a single best-effort query.
type Result struct {
	Offset   time.Duration
	Skewed   bool
	Queried  bool
	QueryErr error
}

// Check queries server once and reports whether the local clock's offset
// from it exceeds WarnThreshold. A query failure (unreachable server,
// timeout) is reported in QueryErr but is never treated as skew — this
// check is best-effort and must never block or fail startup.
func Check(server string) Result {
	if server == "" {
		server = DefaultServer
	}
	resp, err := ntp.Query(server)
	if err != nil {
		return Result{QueryErr: err}
	}
	offset := resp.ClockOffset
	skewed := offset > WarnThreshold || offset < -WarnThreshold
	return Result{Offset: offset, Skewed: skewed, Queried: true}
}
