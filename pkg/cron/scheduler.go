// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/FACorreiaa/collections-import/internal/domain/import/normalizer"
)

// RunExpirer cancels import runs left awaiting confirmation.
type RunExpirer interface {
	ExpireStale(ctx context.Context, ttl time.Duration) int
}

// Pruner drops idle state, e.g. per-client rate limiters.
type Pruner interface {
	Prune() int
}

// Config holds the job schedules in standard 5-field cron format. An
// empty schedule disables the job.
type Config struct {
	SweepSchedule string
	PendingTTL    time.Duration
	AliasSchedule string
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron    *cron.Cron
	cfg     Config
	runs    RunExpirer
	matcher *normalizer.ClientMatcher
	aliases normalizer.AliasLister
	pruners []Pruner
	logger  *slog.Logger
}

// NewScheduler creates a new job scheduler. matcher and aliases may be nil
// when payer resolution is not configured.
func NewScheduler(cfg Config, runs RunExpirer, matcher *normalizer.ClientMatcher, aliases normalizer.AliasLister, logger *slog.Logger, pruners ...Pruner) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:    c,
		cfg:     cfg,
		runs:    runs,
		matcher: matcher,
		aliases: aliases,
		pruners: pruners,
		logger:  logger,
	}
}

// Start registers the jobs and begins running them.
func (s *Scheduler) Start() error {
	if s.cfg.SweepSchedule != "" {
		if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, s.sweep); err != nil {
			return err
		}
	}
	if s.cfg.AliasSchedule != "" && s.matcher != nil && s.aliases != nil {
		if _, err := s.cron.AddFunc(s.cfg.AliasSchedule, s.refreshAliases); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow runs every job once, synchronously.
func (s *Scheduler) RunNow() {
	s.sweep()
	if s.matcher != nil && s.aliases != nil {
		s.refreshAliases()
	}
}

// sweep cancels stale runs and prunes idle limiter state.
func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	expired := 0
	if s.runs != nil && s.cfg.PendingTTL > 0 {
		expired = s.runs.ExpireStale(ctx, s.cfg.PendingTTL)
	}

	pruned := 0
	for _, p := range s.pruners {
		pruned += p.Prune()
	}

	s.logger.Debug("import sweep completed",
		slog.Int("runs_expired", expired),
		slog.Int("clients_pruned", pruned),
	)
}

func (s *Scheduler) refreshAliases() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.matcher.Refresh(ctx, s.aliases)
	if err != nil {
		s.logger.Warn("failed to refresh client aliases", slog.Any("error", err))
		return
	}
	s.logger.Debug("client aliases refreshed", slog.Int("aliases", n))
}
