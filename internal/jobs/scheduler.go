// Package jobs runs the periodic lifecycle sweeps in process. Each run takes a
// cache lock so that only one replica sweeps at a time.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"kitchenhub/internal/shared/apperr"
	"kitchenhub/internal/shared/constants"
	"kitchenhub/pkg/cache"
	"kitchenhub/pkg/logger"

	"github.com/oklog/ulid/v2"
)

// ErrLocked is returned by RunNow when another run holds the sweep lock
var ErrLocked = errors.New("sweep already running")

// Outcome is what one sweep run did
type Outcome struct {
	Scanned  int `json:"scanned"`
	Advanced int `json:"advanced"`
	Failed   int `json:"failed"`
}

// Job is a named sweep run every Interval
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (Outcome, error)
}

// Stats is the last known state of one job
type Stats struct {
	Name         string     `json:"name"`
	Interval     string     `json:"interval"`
	Runs         int        `json:"runs"`
	Skipped      int        `json:"skipped"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	LastDuration string     `json:"last_duration,omitempty"`
	LastOutcome  Outcome    `json:"last_outcome"`
	LastError    string     `json:"last_error,omitempty"`
}

type Scheduler struct {
	jobs    map[string]Job
	locks   cache.Service
	lockTTL time.Duration
	log     *logger.Logger

	mu      sync.Mutex
	stats   map[string]*Stats
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewScheduler(locks cache.Service, log *logger.Logger, jobs ...Job) *Scheduler {
	if log == nil {
		log = logger.GetDefault()
	}
	s := &Scheduler{
		jobs:    make(map[string]Job, len(jobs)),
		locks:   locks,
		lockTTL: constants.TTL_SWEEP_LOCK,
		log:     log.WithComponent("jobs"),
		stats:   make(map[string]*Stats, len(jobs)),
	}
	for _, j := range jobs {
		s.jobs[j.Name] = j
		s.stats[j.Name] = &Stats{Name: j.Name, Interval: j.Interval.String()}
	}
	return s
}

// Start launches one ticker goroutine per job. Each job also runs once immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	for _, j := range s.jobs {
		if j.Interval <= 0 {
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	s.log.Info("Background sweeps started", slog.Int("jobs", len(s.jobs)))
}

// Stop signals every loop and waits for in-flight runs to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("Background sweeps stopped")
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	s.tick(ctx, j)
	for {
		select {
		case <-ticker.C:
			s.tick(ctx, j)
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, j Job) {
	if _, err := s.run(ctx, j); err != nil && !errors.Is(err, ErrLocked) {
		s.log.ErrorWithContext(ctx, "Sweep failed", err, map[string]interface{}{"job": j.Name})
	}
}

// RunNow runs the named job once, outside its schedule
func (s *Scheduler) RunNow(ctx context.Context, name string) (Outcome, error) {
	j, ok := s.jobs[name]
	if !ok {
		return Outcome{}, apperr.NotFound("job", name)
	}
	return s.run(ctx, j)
}

func (s *Scheduler) run(ctx context.Context, j Job) (Outcome, error) {
	key := constants.BuildSweepLockKey(j.Name)
	token := ulid.Make().String()
	if s.locks != nil {
		acquired, err := s.locks.TryLock(ctx, key, token, s.lockTTL)
		if err != nil {
			return Outcome{}, err
		}
		if !acquired {
			s.record(j.Name, func(st *Stats) { st.Skipped++ })
			return Outcome{}, ErrLocked
		}
		defer func() {
			if err := s.locks.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
				s.log.Warn("Failed to release sweep lock", slog.String("job", j.Name), slog.String("error", err.Error()))
			}
		}()
	}

	started := time.Now().UTC()
	out, err := j.Run(ctx)
	elapsed := time.Since(started)
	s.record(j.Name, func(st *Stats) {
		st.Runs++
		st.LastRunAt = &started
		st.LastDuration = elapsed.String()
		st.LastOutcome = out
		st.LastError = ""
		if err != nil {
			st.LastError = err.Error()
		}
	})
	return out, err
}

func (s *Scheduler) record(name string, fn func(st *Stats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.stats[name])
}

// Status returns a copy of every job's stats, sorted by name
func (s *Scheduler) Status() []Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Stats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Running reports whether Start has been called without a matching Stop
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
