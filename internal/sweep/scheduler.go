// Package sweep schedules the three periodic engine sweeps: the hourly
// overdue check, the daily wall of shame and the daily recurring reset.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MARistheone/Bother-Bot/internal/engine"
)

// Config controls sweep cadence. Shame and reset fire at a fixed local
// wall-clock time in Location.
type Config struct {
	OverdueEvery time.Duration
	ShameHour    int
	ShameMinute  int
	ResetHour    int
	ResetMinute  int
	Location     *time.Location
}

// DefaultConfig mirrors the reference deployment: hourly overdue checks,
// shame at 21:00 and reset at midnight Eastern time.
func DefaultConfig(loc *time.Location) Config {
	return Config{
		OverdueEvery: time.Hour,
		ShameHour:    21,
		ShameMinute:  0,
		ResetHour:    0,
		ResetMinute:  0,
		Location:     loc,
	}
}

// Scheduler runs the sweeps until stopped.
type Scheduler struct {
	cfg    Config
	engine *engine.Engine
	logger *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New constructs a Scheduler around an engine.
func New(cfg Config, eng *engine.Engine, logger *slog.Logger) *Scheduler {
	if cfg.OverdueEvery <= 0 {
		cfg.OverdueEvery = time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{cfg: cfg, engine: eng, logger: logger}
}

// Start launches the three sweep goroutines. Calling Start twice is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(3)
	go s.runOverdue(ctx)
	go s.runDaily(ctx, "shame", s.cfg.ShameHour, s.cfg.ShameMinute, func(ctx context.Context) error {
		return s.engine.WallOfShame(ctx)
	})
	go s.runDaily(ctx, "reset", s.cfg.ResetHour, s.cfg.ResetMinute, func(ctx context.Context) error {
		n, err := s.engine.DailyReset(ctx)
		if n > 0 {
			s.logger.Info("recurring tasks regenerated", slog.Int("count", n))
		}
		return err
	})

	s.logger.Info("sweep scheduler started",
		slog.Duration("overdue_every", s.cfg.OverdueEvery),
		slog.String("tz", s.cfg.Location.String()))
}

// Stop cancels the sweeps and waits for them to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("sweep scheduler stopped")
}

func (s *Scheduler) runOverdue(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.OverdueEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.engine.CheckOverdue(ctx)
			if err != nil {
				s.logger.Error("overdue sweep failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				s.logger.Info("overdue sweep complete", slog.Int("transitions", n))
			}
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context, name string, hour, minute int, run func(context.Context) error) {
	defer s.wg.Done()

	for {
		wait := time.Until(nextFire(time.Now().In(s.cfg.Location), hour, minute))
		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := run(ctx); err != nil {
				s.logger.Error("daily sweep failed",
					slog.String("sweep", name), slog.String("error", err.Error()))
			}
		}
	}
}

// nextFire returns the next wall-clock instant at hour:minute strictly
// after now, in now's location.
func nextFire(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
