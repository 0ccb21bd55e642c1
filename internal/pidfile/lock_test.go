package pidfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sdpc.pid")

	lock, existing, err := Acquire(path)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Zero(t, existing)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n")

	require.NoError(t, lock.Release())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireAgainAfterRelease(t *testing.T) {
	// A second Acquire on the same path succeeds once the first lock has
	// been released, and reports no existing owner.
	path := filepath.Join(t.TempDir(), "sdpc.pid")

	lock, _, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, lock.Release())

	lock2, existing, err := Acquire(path)
	require.NoError(t, err)
	require.NotNil(t, lock2)
	assert.Zero(t, existing)
	require.NoError(t, lock2.Release())
}

func TestVerifyPermissions_Missing(t *testing.T) {
	err := VerifyPermissions(filepath.Join(t.TempDir(), "nope.pid"))
	assert.NoError(t, err)
}

func TestVerifyPermissions_WrongMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sdpc.pid")
	require.NoError(t, os.WriteFile(path, []byte("123\n"), 0o644))

	err := VerifyPermissions(path)
	assert.Error(t, err)
}

func TestVerifyPermissions_CorrectMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sdpc.pid")
	require.NoError(t, os.WriteFile(path, []byte("123\n"), 0o600))

	err := VerifyPermissions(path)
	assert.NoError(t, err)
}
