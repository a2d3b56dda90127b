package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultSweepSchedule removes expired records every quarter hour.
const DefaultSweepSchedule = "@every 15m"

// Sweeper periodically removes expired session records from a Store.
// Reconciliation never depends on it.
type Sweeper struct {
	store    Store
	schedule cron.Schedule
	expr     string
	logger   zerolog.Logger
	metrics  Metrics
	nowTime  func() time.Time
	timeout  time.Duration

	mu   sync.Mutex
	cron *cron.Cron
}

// SweeperOption modifies a Sweeper during construction.
type SweeperOption func(*Sweeper)

// WithSweeperMetrics reports removed records with ReasonExpired.
func WithSweeperMetrics(m Metrics) SweeperOption {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

// WithSweeperClock sets the clock (primarily for testing)
func WithSweeperClock(nowFunc func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.nowTime = nowFunc
	}
}

// NewSweeper validates schedule (standard cron or @every descriptor) and
// returns a stopped sweeper.
func NewSweeper(store Store, schedule string, logger zerolog.Logger, options ...SweeperOption) (*Sweeper, error) {
	if store == nil {
		return nil, errors.New("[NewSweeper] store is required")
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	parsed, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("[NewSweeper] invalid schedule %q: %w", schedule, err)
	}

	s := &Sweeper{
		store:    store,
		schedule: parsed,
		expr:     schedule,
		logger:   logger,
		metrics:  nopMetrics{},
		nowTime:  time.Now,
		timeout:  30 * time.Second,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Start schedules the sweep. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}

	s.cron = cron.New()
	s.cron.Schedule(s.schedule, cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error().Err(err).Msg("session sweep failed")
		}
	}))
	s.cron.Start()
	s.logger.Info().Str("schedule", s.expr).Msg("session sweeper started")
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info().Msg("session sweeper stopped")
}

// Next returns the next scheduled sweep after t.
func (s *Sweeper) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Sweep removes expired sessions once.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	n, err := s.store.DeleteExpired(ctx, s.nowTime())
	if err != nil {
		return 0, fmt.Errorf("[Sweeper.Sweep] %w", err)
	}
	if n > 0 {
		s.metrics.SessionsDeleted(ReasonExpired, n)
		s.logger.Debug().Int("removed", n).Msg("expired sessions removed")
	}
	return n, nil
}
