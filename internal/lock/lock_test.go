package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker_Exclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	lease, err := l.Obtain(ctx, "lock:matching-run", time.Minute)
	require.NoError(t, err)

	_, err = l.Obtain(ctx, "lock:matching-run", time.Minute)
	assert.ErrorIs(t, err, ErrNotObtained)

	_, err = l.Obtain(ctx, "lock:other", time.Minute)
	assert.NoError(t, err)

	require.NoError(t, lease.Release(ctx))
	_, err = l.Obtain(ctx, "lock:matching-run", time.Minute)
	assert.NoError(t, err)
}

func TestLocalLocker_ExpiredLease(t *testing.T) {
	l := NewLocalLocker()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	stale, err := l.Obtain(ctx, "k", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = l.Obtain(ctx, "k", time.Minute)
	require.NoError(t, err)

	// releasing the expired lease must not free the new holder
	require.NoError(t, stale.Release(ctx))
	_, err = l.Obtain(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrNotObtained)
}

func TestLocalLocker_Refresh(t *testing.T) {
	l := NewLocalLocker()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	lease, err := l.Obtain(ctx, "k", 10*time.Second)
	require.NoError(t, err)

	now = now.Add(8 * time.Second)
	require.NoError(t, lease.Refresh(ctx, 10*time.Second))

	// past the original TTL but inside the refreshed one
	now = now.Add(8 * time.Second)
	_, err = l.Obtain(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrNotObtained)

	require.NoError(t, lease.Release(ctx))
	_, err = l.Obtain(ctx, "k", time.Minute)
	assert.NoError(t, err)
}

func TestLocalLocker_RefreshLostLease(t *testing.T) {
	l := NewLocalLocker()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	stale, err := l.Obtain(ctx, "k", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	assert.ErrorIs(t, stale.Refresh(ctx, time.Minute), ErrNotObtained)

	_, err = l.Obtain(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.ErrorIs(t, stale.Refresh(ctx, time.Minute), ErrNotObtained)
}
