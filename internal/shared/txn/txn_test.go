package txn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalGroupLockerIsReentrant(t *testing.T) {
	locker := NewLocalGroupLocker()
	groupID := uuid.New()
	calls := 0

	err := locker.WithGroupLock(context.Background(), groupID, func(ctx context.Context) error {
		calls++
		return locker.WithGroupLock(ctx, groupID, func(ctx context.Context) error {
			calls++
			return nil
		})
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestLocalGroupLockerSerialisesSameGroup(t *testing.T) {
	locker := NewLocalGroupLocker()
	groupID := uuid.New()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = locker.WithGroupLock(context.Background(), groupID, func(ctx context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestLocalGroupLockerHonoursCancelledContext(t *testing.T) {
	locker := NewLocalGroupLocker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := locker.WithGroupLock(ctx, uuid.New(), func(ctx context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestConnWithoutTxFallsBack(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}
