package replaycache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeenDetectsReplay(t *testing.T) {
	c, err := Open(":memory:")
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	seen, err := c.Seen(ctx, "digest-a", 100)
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = c.Seen(ctx, "digest-a", 200)
	require.NoError(t, err)
	assert.True(t, seen, "the same digest sent again must be flagged as a replay")

	seen, err = c.Seen(ctx, "digest-b", 100)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestCountAndPrune(t *testing.T) {
	c, err := Open(":memory:")
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, err = c.Seen(ctx, "a", 1)
	require.NoError(t, err)
	_, err = c.Seen(ctx, "b", 5)
	require.NoError(t, err)
	_, err = c.Seen(ctx, "c", 10)
	require.NoError(t, err)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	removed, err := c.Prune(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	n, err = c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
