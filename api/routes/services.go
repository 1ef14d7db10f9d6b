package routes

import (
	"context"
	"fmt"
	"time"

	"kitchenhub/internal/bookings"
	"kitchenhub/internal/cancellation"
	"kitchenhub/internal/checkout"
	"kitchenhub/internal/extensions"
	"kitchenhub/internal/jobs"
	"kitchenhub/internal/notifications"
	"kitchenhub/internal/overstay"
	"kitchenhub/internal/payments"
	"kitchenhub/internal/policies"
	"kitchenhub/internal/shared/config"
	"kitchenhub/internal/shared/txn"
	"kitchenhub/pkg/cache"
	"kitchenhub/pkg/logger"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services is the wired lifecycle core shared by the HTTP server and the CLI
type Services struct {
	Cache        cache.Service
	Policies     policies.Service
	Payments     payments.Service
	Bookings     bookings.Service
	Cancellation cancellation.Service
	Checkout     checkout.Service
	Overstay     overstay.Service
	Extensions   extensions.Service
	Scheduler    *jobs.Scheduler

	Processor payments.Processor
	Sandbox   bool
	Publisher notifications.Publisher
}

// BuildServices wires every service against postgres. rdb may be nil, in
// which case caching and sweep locks stay in process.
func BuildServices(cfg *config.Config, pg *gorm.DB, rdb *redis.Client, publisher notifications.Publisher) (*Services, error) {
	log := logger.GetDefault()
	if publisher == nil {
		publisher = notifications.NewLogPublisher(log)
	}

	var c cache.Service
	if rdb != nil {
		c = cache.NewService(rdb)
	} else {
		c = cache.NewLocalService(1024, 10*time.Minute)
	}

	processor, sandbox, err := newProcessor(cfg)
	if err != nil {
		return nil, err
	}

	locker := txn.NewPostgresGroupLocker(pg)
	policySvc := policies.NewService(policies.NewRepository(pg), c, cfg.Booking, 0)
	bookingRepo := bookings.NewRepository(pg)

	paymentSvc := payments.NewService(payments.Deps{
		Repo:      payments.NewRepository(pg),
		Processor: processor,
		Locker:    locker,
		Publisher: publisher,
		Logger:    log,
		Retry: payments.RetryPolicy{
			MaxRetries:      cfg.Payments.MaxRetries,
			InitialInterval: cfg.Payments.InitialInterval,
			MaxInterval:     cfg.Payments.MaxInterval,
		},
		Currency: cfg.Stripe.Currency,
	})

	s := &Services{
		Cache:     c,
		Policies:  policySvc,
		Payments:  paymentSvc,
		Processor: processor,
		Sandbox:   sandbox,
		Publisher: publisher,
	}
	s.Bookings = bookings.NewService(bookings.Deps{
		Repo:      bookingRepo,
		Payments:  paymentSvc,
		Locker:    locker,
		Policies:  policySvc,
		Publisher: publisher,
		Logger:    log,
	})
	s.Cancellation = cancellation.NewService(cancellation.Deps{
		Repo:      cancellation.NewRepository(pg),
		Bookings:  bookingRepo,
		Payments:  paymentSvc,
		Locker:    locker,
		Policies:  policySvc,
		Publisher: publisher,
		Logger:    log,
	})
	s.Checkout = checkout.NewService(checkout.Deps{
		Bookings:  bookingRepo,
		Locker:    locker,
		Policies:  policySvc,
		Publisher: publisher,
		Logger:    log,
		BatchSize: cfg.Jobs.SweepBatchSize,
	})
	s.Overstay = overstay.NewService(overstay.Deps{
		Repo:      overstay.NewRepository(pg),
		Bookings:  bookingRepo,
		Payments:  paymentSvc,
		Locker:    locker,
		Policies:  policySvc,
		Publisher: publisher,
		Logger:    log,
		BatchSize: cfg.Jobs.SweepBatchSize,
	})
	s.Extensions = extensions.NewService(extensions.Deps{
		Repo:      extensions.NewRepository(pg),
		Bookings:  bookingRepo,
		Payments:  paymentSvc,
		Locker:    locker,
		Policies:  policySvc,
		Publisher: publisher,
		Logger:    log,
	})
	s.Scheduler = jobs.NewScheduler(c, log, SweepJobs(cfg.Jobs, s.Overstay, s.Checkout)...)
	return s, nil
}

func newProcessor(cfg *config.Config) (payments.Processor, bool, error) {
	if cfg.UseSandboxPayments() {
		logger.GetDefault().Warn("STRIPE_SECRET_KEY not set; using the sandbox payment processor")
		return payments.NewSandboxProcessor(), true, nil
	}
	p, err := payments.NewStripeProcessor(payments.StripeProcessorConfig{
		APIKey:   cfg.Stripe.SecretKey,
		Currency: cfg.Stripe.Currency,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to configure stripe: %w", err)
	}
	return p, false, nil
}

// SweepJobs adapts the overstay and checkout sweeps to scheduler jobs
func SweepJobs(cfg config.JobsConfig, overstaySvc overstay.Service, checkoutSvc checkout.Service) []jobs.Job {
	return []jobs.Job{
		{
			Name:     "overstay",
			Interval: cfg.OverstaySweepInterval,
			Run: func(ctx context.Context) (jobs.Outcome, error) {
				r, err := overstaySvc.Sweep(ctx)
				return jobs.Outcome{Scanned: r.Scanned, Advanced: r.Detected + r.Advanced + r.Resolved, Failed: r.Failed}, err
			},
		},
		{
			Name:     "checkout",
			Interval: cfg.CheckoutSweepInterval,
			Run: func(ctx context.Context) (jobs.Outcome, error) {
				r, err := checkoutSvc.SweepReviewDeadlines(ctx)
				return jobs.Outcome{Scanned: r.Scanned, Advanced: r.Advanced, Failed: r.Failed}, err
			},
		},
	}
}
