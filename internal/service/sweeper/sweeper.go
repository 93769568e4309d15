package sweeper

import (
	"context"
	"time"

	"github.com/nkiryanov/schoolauth/internal/logger"
	"github.com/nkiryanov/schoolauth/internal/metrics"
	"github.com/nkiryanov/schoolauth/internal/repository"
)

const (
	defaultInterval = 10 * time.Minute
	defaultGrace    = time.Hour // keep expired refresh tokens a bit to tell expired from unknown
)

type Config struct {
	Interval time.Duration
	Grace    time.Duration

	// Clock, time.Now if not set
	Now func() time.Time
}

// Periodically deletes expired refresh and reset tokens
// Best effort: failures are logged and retried on the next tick
type Sweeper struct {
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
	storage  repository.Storage
	metrics  *metrics.Metrics
	logger   logger.Logger
}

func New(cfg Config, storage repository.Storage, m *metrics.Metrics, l logger.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Grace <= 0 {
		cfg.Grace = defaultGrace
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Sweeper{
		interval: cfg.Interval,
		grace:    cfg.Grace,
		now:      cfg.Now,
		storage:  storage,
		metrics:  m,
		logger:   l,
	}
}

// Start sweeping in background until ctx is done
// Returned channel is closed when sweeper stopped
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	s.logger.Debug("Starting sweeper", "interval", s.interval, "grace", s.grace)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Sweeper stopped by context")
				return

			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()

	return idleStopped
}

// Delete expired records once
func (s *Sweeper) Sweep(ctx context.Context) (refresh int64, reset int64) {
	before := s.now().Add(-s.grace)

	refresh, err := s.storage.Refresh().DeleteExpired(ctx, before)
	if err != nil {
		s.logger.Error("Failed to delete expired refresh tokens", "error", err)
	}
	s.metrics.Swept("refresh", refresh)

	reset, err = s.storage.Reset().DeleteExpired(ctx, s.now())
	if err != nil {
		s.logger.Error("Failed to delete expired reset tokens", "error", err)
	}
	s.metrics.Swept("reset", reset)

	if refresh > 0 || reset > 0 {
		s.logger.Info("Expired tokens deleted", "refresh", refresh, "reset", reset)
	}

	return refresh, reset
}
