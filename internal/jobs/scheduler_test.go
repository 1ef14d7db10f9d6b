package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"kitchenhub/internal/shared/apperr"
	"kitchenhub/internal/shared/constants"
	"kitchenhub/pkg/cache"
	"kitchenhub/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counting(name string, interval time.Duration, runs *atomic.Int32) Job {
	return Job{
		Name:     name,
		Interval: interval,
		Run: func(context.Context) (Outcome, error) {
			runs.Add(1)
			return Outcome{Scanned: 3, Advanced: 1}, nil
		},
	}
}

func TestRunNowRecordsStats(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(cache.NewLocalService(16, time.Minute), logger.Discard(), counting("overstay", time.Hour, &runs))

	out, err := s.RunNow(context.Background(), "overstay")
	require.NoError(t, err)
	assert.Equal(t, Outcome{Scanned: 3, Advanced: 1}, out)
	assert.EqualValues(t, 1, runs.Load())

	status := s.Status()
	require.Len(t, status, 1)
	assert.Equal(t, 1, status[0].Runs)
	assert.Equal(t, "1h0m0s", status[0].Interval)
	require.NotNil(t, status[0].LastRunAt)
	assert.Empty(t, status[0].LastError)

	_, err = s.RunNow(context.Background(), "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRunNowSkipsWhenLocked(t *testing.T) {
	var runs atomic.Int32
	locks := cache.NewLocalService(16, time.Minute)
	s := NewScheduler(locks, logger.Discard(), counting("checkout", time.Hour, &runs))

	ok, err := locks.TryLock(context.Background(), constants.BuildSweepLockKey("checkout"), "other-replica", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.RunNow(context.Background(), "checkout")
	require.ErrorIs(t, err, ErrLocked)
	assert.Zero(t, runs.Load())
	assert.Equal(t, 1, s.Status()[0].Skipped)

	require.NoError(t, locks.Unlock(context.Background(), constants.BuildSweepLockKey("checkout"), "other-replica"))
	_, err = s.RunNow(context.Background(), "checkout")
	require.NoError(t, err)
	assert.EqualValues(t, 1, runs.Load())
}

func TestRunReleasesLockAfterFailure(t *testing.T) {
	calls := 0
	s := NewScheduler(cache.NewLocalService(16, time.Minute), logger.Discard(), Job{
		Name:     "overstay",
		Interval: time.Hour,
		Run: func(context.Context) (Outcome, error) {
			calls++
			return Outcome{Failed: 1}, errors.New("database unavailable")
		},
	})

	_, err := s.RunNow(context.Background(), "overstay")
	require.Error(t, err)
	_, err = s.RunNow(context.Background(), "overstay")
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "database unavailable", s.Status()[0].LastError)
	assert.Equal(t, 1, s.Status()[0].LastOutcome.Failed)
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	var overstay, checkout atomic.Int32
	s := NewScheduler(cache.NewLocalService(16, time.Minute), logger.Discard(),
		counting("overstay", 10*time.Millisecond, &overstay),
		counting("checkout", 10*time.Millisecond, &checkout),
	)

	s.Start(context.Background())
	assert.True(t, s.Running())
	require.Eventually(t, func() bool {
		return overstay.Load() >= 2 && checkout.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.Running())
	after := overstay.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, overstay.Load())

	s.Stop()
}
