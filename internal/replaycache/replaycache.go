// Package replaycache implements the server-side SPA replay-digest cache
// spec §1 names as an external collaborator (out of scope for the control
// client itself). It exists here only as a fixture: internal/simcontroller
// uses it to flag (and count) a replayed knock, so the
// end-to-end scenarios in spec §8 can exercise SendKnock against something
// that actually notices a repeat.
//
// Digest storage mirrors the GDBM semantics spec §9's open question asks for
// (iterate keys, count, close) — no NDBM path is carried, per the spec's
// instruction not to port its untested init-loop bug.
package replaycache

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	sdperrors "github.com/sdpc-project/sdpc/internal/errors"
)

// Cache is a digest store backed by a single SQLite table, opened either on
// disk or in-memory (":memory:") for tests.
type Cache struct {
	db *sql.DB
}

// Open creates (if absent) the digest table at path and returns a ready
// Cache. path may be ":memory:" for an ephemeral, process-local cache.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, sdperrors.Wrapf(err, sdperrors.KindFilesystemOperation, "open replay cache %s", path)
	}
	const schema = `CREATE TABLE IF NOT EXISTS digests (
		digest TEXT PRIMARY KEY,
		seen_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, sdperrors.Wrap(err, sdperrors.KindFilesystemOperation, "create replay cache schema")
	}
	return &Cache{db: db}, nil
}

// Seen records digest at unixNano and reports whether it was already
// present — a true return means the caller is looking at a replayed SPA
// packet and should drop it.
func (c *Cache) Seen(ctx context.Context, digest string, unixNano int64) (alreadySeen bool, err error) {
	_, err = c.db.ExecContext(ctx, `INSERT INTO digests (digest, seen_at) VALUES (?, ?)`, digest, unixNano)
	if err == nil {
		return false, nil
	}
	if isUniqueViolation(err) {
		return true, nil
	}
	return false, sdperrors.Wrap(err, sdperrors.KindFilesystemOperation, "record spa digest")
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}

// Count returns the number of digests currently stored (the GDBM-semantics
// "iterate keys, count" the open question describes).
func (c *Cache) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM digests`).Scan(&n); err != nil {
		return 0, sdperrors.Wrap(err, sdperrors.KindFilesystemOperation, "count replay digests")
	}
	return n, nil
}

// Prune deletes every digest recorded at or before cutoffUnixNano, bounding
// the cache's growth the way a real deployment would on a periodic sweep.
func (c *Cache) Prune(ctx context.Context, cutoffUnixNano int64) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM digests WHERE seen_at <= ?`, cutoffUnixNano)
	if err != nil {
		return 0, sdperrors.Wrap(err, sdperrors.KindFilesystemOperation, "prune replay digests")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, sdperrors.Wrap(err, sdperrors.KindFilesystemOperation, "prune rows affected")
	}
	return n, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// String is for debug logging only.
func (c *Cache) String() string { return fmt.Sprintf("replaycache(%p)", c) }
