package policies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kitchenhub/internal/shared/apperr"
	"kitchenhub/internal/shared/config"
	"kitchenhub/internal/shared/constants"
	"kitchenhub/pkg/cache"
	"kitchenhub/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Resolver is what the lifecycle services depend on
type Resolver interface {
	Resolve(ctx context.Context, locationID uuid.UUID) (LocationPolicy, error)
}

type Service interface {
	Resolver
	Upsert(ctx context.Context, locationID uuid.UUID, req UpsertPolicyRequest) (*LocationPolicy, error)
	Reset(ctx context.Context, locationID uuid.UUID) error
}

type service struct {
	repo     Repository
	cache    cache.Service
	defaults config.BookingDefaults
	ttl      time.Duration
	validate *validator.Validate
	log      *logger.Logger
}

// NewService creates the policy service. cache may be nil.
func NewService(repo Repository, c cache.Service, defaults config.BookingDefaults, ttl time.Duration) Service {
	if ttl <= 0 {
		ttl = constants.TTL_POLICY_DEFAULT
	}
	return &service{
		repo:     repo,
		cache:    c,
		defaults: defaults,
		ttl:      ttl,
		validate: validator.New(),
		log:      logger.GetDefault().WithComponent("policies"),
	}
}

func (s *service) load(ctx context.Context, locationID uuid.UUID) (LocationPolicy, error) {
	p, err := s.repo.Get(ctx, locationID)
	if errors.Is(err, apperr.ErrNotFound) {
		return Defaults(s.defaults, locationID), nil
	}
	if err != nil {
		return LocationPolicy{}, err
	}
	return *p, nil
}

func (s *service) Resolve(ctx context.Context, locationID uuid.UUID) (LocationPolicy, error) {
	if s.cache == nil {
		return s.load(ctx, locationID)
	}

	var p LocationPolicy
	err := s.cache.GetOrSet(ctx, constants.BuildLocationPolicyKey(locationID.String()), s.ttl, &p, func() (interface{}, error) {
		return s.load(ctx, locationID)
	})
	if err != nil {
		return LocationPolicy{}, fmt.Errorf("resolve location policy: %w", err)
	}
	return p, nil
}

func (s *service) Upsert(ctx context.Context, locationID uuid.UUID, req UpsertPolicyRequest) (*LocationPolicy, error) {
	if err := s.validate.Struct(&req); err != nil {
		return nil, apperr.Validation(err.Error())
	}

	current, err := s.load(ctx, locationID)
	if err != nil {
		return nil, err
	}
	req.Apply(&current)
	current.IsDefault = false

	if err := s.validate.Struct(&current); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	if err := s.repo.Upsert(ctx, &current); err != nil {
		return nil, err
	}
	s.invalidate(ctx, locationID)

	s.log.InfoContext(ctx, "Location policy updated",
		slog.String("location_id", locationID.String()),
		slog.Int("cancellation_policy_hours", current.CancellationPolicyHours),
		slog.Bool("allow_late_request_cancellation", current.AllowLateRequestCancellation),
	)
	return &current, nil
}

func (s *service) Reset(ctx context.Context, locationID uuid.UUID) error {
	if err := s.repo.Delete(ctx, locationID); err != nil {
		return err
	}
	s.invalidate(ctx, locationID)
	return nil
}

func (s *service) invalidate(ctx context.Context, locationID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, constants.BuildLocationPolicyKey(locationID.String())); err != nil {
		s.log.WarnContext(ctx, "Failed to invalidate policy cache", slog.String("error", err.Error()))
	}
}

// Static resolves every location to the same policy
type Static LocationPolicy

func (s Static) Resolve(_ context.Context, locationID uuid.UUID) (LocationPolicy, error) {
	p := LocationPolicy(s)
	p.LocationID = locationID
	return p, nil
}
