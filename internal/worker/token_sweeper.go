// Package worker runs background maintenance jobs.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"docvault/internal/repository"
)

// TokenSweeper periodically deletes expired download tokens. Expired tokens
// are already rejected on use; sweeping only bounds table growth.
type TokenSweeper struct {
	tokens   repository.TokenRepository
	schedule string
	timeout  time.Duration
	log      *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewTokenSweeper validates schedule (standard cron or @every descriptors).
func NewTokenSweeper(tokens repository.TokenRepository, schedule string, log *zap.Logger) (*TokenSweeper, error) {
	if schedule == "" {
		schedule = "@every 1m"
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenSweeper{
		tokens:   tokens,
		schedule: schedule,
		timeout:  30 * time.Second,
		log:      log,
		now:      time.Now,
	}, nil
}

// Start schedules the sweep. Calling Start twice is a no-op.
func (s *TokenSweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_, _ = s.RunOnce(ctx)
	}); err != nil {
		return err
	}
	c.Start()

	s.cron = c
	s.running = true
	s.log.Info("token_sweeper_started", zap.String("schedule", s.schedule))
	return nil
}

// Stop unschedules the sweep and waits for a running sweep or ctx, whichever
// comes first.
func (s *TokenSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	wasRunning := s.running
	s.cron = nil
	s.running = false
	s.mu.Unlock()

	if !wasRunning || c == nil {
		return nil
	}
	done := c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce deletes tokens expired at the current time.
func (s *TokenSweeper) RunOnce(ctx context.Context) (int64, error) {
	n, err := s.tokens.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		s.log.Warn("token_sweep_failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		s.log.Info("token_sweep", zap.Int64("deleted", n))
	}
	return n, nil
}
