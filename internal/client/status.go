package client

import (
	"encoding/json"
	"os"
	"time"

	"github.com/sdpc-project/sdpc/internal/install"
)

// statusSnapshot is the observational, non-authoritative state the status
// subcommand reads (SPEC_FULL.md supplemented feature 5). Never consulted
// by the loop itself.
type statusSnapshot struct {
	PID            int       `json:"pid"`
	State          string    `json:"state"`
	LastContact    time.Time `json:"last_contact"`
	LastCredUpdate time.Time `json:"last_cred_update"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// writeStatusSnapshot rewrites <state_dir>/status.json. Best-effort: a
// write failure here is logged, never propagated into the control loop.
func (c *Client) writeStatusSnapshot(now time.Time) {
	snap := statusSnapshot{
		PID:            c.pid,
		State:          c.state.String(),
		LastContact:    c.lastContact,
		LastCredUpdate: c.lastCredUpdate,
		UpdatedAt:      now,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		c.logger.Warnf("marshal status snapshot: %v", err)
		return
	}
	if err := os.WriteFile(install.StatusFilePath(), data, 0o644); err != nil {
		c.logger.Warnf("write status snapshot: %v", err)
	}
}
