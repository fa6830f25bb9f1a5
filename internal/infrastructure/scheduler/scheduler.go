package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/Hari1275/sdp-sub000/internal/domain/monitoring"
	"github.com/Hari1275/sdp-sub000/internal/domain/tracking"
	"github.com/Hari1275/sdp-sub000/pkg/logger"
	"go.uber.org/zap"
)

// Recalculator recomputes stored session distances.
type Recalculator interface {
	Recalculate(ctx context.Context, opts tracking.RecalculateOptions) (*tracking.RecalculateReport, error)
}

// Sweeper scans open sessions and raises alerts.
type Sweeper interface {
	Sweep(ctx context.Context) (*monitoring.Summary, error)
}

type Config struct {
	// RecalculationEnabled turns on the nightly recalculation at
	// RecalculationHour in Location.
	RecalculationEnabled bool
	RecalculationHour    int
	Recalculation        tracking.RecalculateOptions
	SweepInterval        time.Duration
	Location             *time.Location
}

type Scheduler struct {
	recalculator Recalculator
	sweeper      Sweeper
	cfg          Config
	logger       *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(recalculator Recalculator, sweeper Sweeper, cfg Config, logger *logger.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{
		recalculator: recalculator,
		sweeper:      sweeper,
		cfg:          cfg,
		logger:       logger,
	}
}

// Start launches the background jobs. They run until ctx is done or Stop
// is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.cfg.SweepInterval > 0 && s.sweeper != nil {
		s.wg.Add(1)
		go s.sweepLoop(ctx)
	}

	if s.cfg.RecalculationEnabled && s.recalculator != nil {
		s.wg.Add(1)
		go s.recalculationLoop(ctx)
	}
}

// Stop cancels the jobs and waits for a running one to finish its current
// item.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

func (s *Scheduler) runSweep(ctx context.Context) {
	summary, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error("Monitoring sweep failed", zap.Error(err))
		return
	}
	if len(summary.LongRunning) > 0 || len(summary.NoUpdate) > 0 {
		s.logger.Warn("Open sessions need attention",
			zap.Int("open_sessions", summary.Total),
			zap.Int("long_running", len(summary.LongRunning)),
			zap.Int("no_update", len(summary.NoUpdate)))
	}
}

func (s *Scheduler) recalculationLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		now := time.Now()
		next := NextRun(now, s.cfg.RecalculationHour, s.cfg.Location)
		s.logger.Info("Distance recalculation scheduled",
			zap.Time("next_run", next),
			zap.Duration("time_until_next_run", next.Sub(now)))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runRecalculation(ctx)
		}
	}
}

func (s *Scheduler) runRecalculation(ctx context.Context) {
	startTime := time.Now()
	s.logger.Info("Starting nightly distance recalculation", zap.Time("start_time", startTime))

	report, err := s.recalculator.Recalculate(ctx, s.cfg.Recalculation)
	if err != nil {
		s.logger.Error("Distance recalculation failed", zap.Error(err))
		return
	}

	s.logger.Info("Completed nightly distance recalculation",
		zap.Int("candidates", report.Candidates),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed),
		zap.Bool("cancelled", report.Cancelled),
		zap.Duration("duration", time.Since(startTime)))
}

// NextRun returns the first moment after now at hour:00 in loc.
func NextRun(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, 0, 0, 0, loc)
	}
	return next
}
