package policies

import (
	"context"
	"testing"
	"time"

	"kitchenhub/internal/shared/apperr"
	"kitchenhub/internal/shared/config"
	"kitchenhub/pkg/cache"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDefaults() config.BookingDefaults {
	return config.BookingDefaults{
		CancellationPolicyHours:   24,
		GracePeriodHours:          24,
		PenaltyRate:               0.5,
		TaxRatePercent:            13,
		CheckoutReviewWindowHours: 48,
		MinimumExtensionDays:      1,
		MinimumStorageDays:        1,
		PlatformFeePercent:        0.05,
		PlatformFlatFeeCents:      30,
	}
}

type countingRepo struct {
	*MemoryRepository
	gets int
}

func (r *countingRepo) Get(ctx context.Context, id uuid.UUID) (*LocationPolicy, error) {
	r.gets++
	return r.MemoryRepository.Get(ctx, id)
}

func TestResolveFallsBackToDefaults(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil, testDefaults(), time.Minute)
	loc := uuid.New()

	p, err := svc.Resolve(context.Background(), loc)
	require.NoError(t, err)

	assert.True(t, p.IsDefault)
	assert.Equal(t, loc, p.LocationID)
	assert.Equal(t, 24, p.CancellationPolicyHours)
	assert.False(t, p.AllowLateRequestCancellation)
	assert.Equal(t, 48*time.Hour, p.ReviewWindow())
}

func TestUpsertPartialUpdateAndCacheInvalidation(t *testing.T) {
	repo := &countingRepo{MemoryRepository: NewMemoryRepository()}
	svc := NewService(repo, cache.NewLocalService(32, time.Minute), testDefaults(), time.Minute)
	ctx := context.Background()
	loc := uuid.New()

	_, err := svc.Resolve(ctx, loc)
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.gets, "second resolve is served from cache")

	hours := 48
	allow := true
	updated, err := svc.Upsert(ctx, loc, UpsertPolicyRequest{CancellationPolicyHours: &hours, AllowLateRequestCancellation: &allow})
	require.NoError(t, err)
	assert.False(t, updated.IsDefault)
	assert.Equal(t, 0.5, updated.PenaltyRate, "unset fields keep their value")

	p, err := svc.Resolve(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, 48, p.CancellationPolicyHours)
	assert.True(t, p.AllowLateRequestCancellation)

	require.NoError(t, svc.Reset(ctx, loc))
	p, err = svc.Resolve(ctx, loc)
	require.NoError(t, err)
	assert.True(t, p.IsDefault)
}

func TestUpsertRejectsOutOfRange(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil, testDefaults(), time.Minute)
	tax := 140.0

	_, err := svc.Upsert(context.Background(), uuid.New(), UpsertPolicyRequest{TaxRatePercent: &tax})

	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestStaticResolver(t *testing.T) {
	r := Static(Defaults(testDefaults(), uuid.Nil))
	loc := uuid.New()

	p, err := r.Resolve(context.Background(), loc)
	require.NoError(t, err)
	assert.Equal(t, loc, p.LocationID)
	assert.Equal(t, 13.0, p.TaxRatePercent)
}
