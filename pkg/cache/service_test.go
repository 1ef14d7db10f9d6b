package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type policyDoc struct {
	Hours int `json:"hours"`
}

func TestLocalServiceGetOrSet(t *testing.T) {
	s := NewLocalService(16, time.Minute)
	ctx := context.Background()
	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return policyDoc{Hours: 24}, nil
	}

	var first, second policyDoc
	require.NoError(t, s.GetOrSet(ctx, "kitchenhub:policy:a", time.Minute, &first, fetch))
	require.NoError(t, s.GetOrSet(ctx, "kitchenhub:policy:a", time.Minute, &second, fetch))

	assert.Equal(t, 24, first.Hours)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestLocalServiceDeletePattern(t *testing.T) {
	s := NewLocalService(16, time.Minute)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "kitchenhub:policy:a", policyDoc{1}, 0))
	require.NoError(t, s.Set(ctx, "kitchenhub:policy:b", policyDoc{2}, 0))
	require.NoError(t, s.Set(ctx, "kitchenhub:other", policyDoc{3}, 0))

	require.NoError(t, s.DeletePattern(ctx, "kitchenhub:policy:*"))

	var doc policyDoc
	assert.ErrorIs(t, s.Get(ctx, "kitchenhub:policy:a", &doc), ErrCacheMiss)
	assert.ErrorIs(t, s.Get(ctx, "kitchenhub:policy:b", &doc), ErrCacheMiss)
	require.NoError(t, s.Get(ctx, "kitchenhub:other", &doc))
	assert.Equal(t, 3, doc.Hours)
}

func TestLocalServiceLock(t *testing.T) {
	s := NewLocalService(16, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := s.TryLock(ctx, "sweep", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.TryLock(ctx, "sweep", "b", time.Minute)
	assert.False(t, ok, "held lock")

	require.NoError(t, s.Unlock(ctx, "sweep", "b"))
	ok, _ = s.TryLock(ctx, "sweep", "b", time.Minute)
	assert.False(t, ok, "unlock with the wrong token is a no-op")

	now = now.Add(2 * time.Minute)
	ok, _ = s.TryLock(ctx, "sweep", "b", time.Minute)
	assert.True(t, ok, "expired lock is taken over")
}
