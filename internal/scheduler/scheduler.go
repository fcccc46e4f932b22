// Package scheduler runs periodic maintenance: pruning expired price-cache
// rows and sweeping the webhook de-duplication table.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/JAMBAMSF/jagent/internal/market"
	"github.com/JAMBAMSF/jagent/internal/metrics"
)

// Default schedules (six fields, seconds first).
const (
	DefaultCachePrune  = "0 0 * * * *"
	DefaultDedupeSweep = "0 */5 * * * *"
)

// Job names, also used as metric labels.
const (
	JobCachePrune  = "cache_prune"
	JobDedupeSweep = "dedupe_sweep"
)

// jobTimeout bounds a single job run.
const jobTimeout = 30 * time.Second

// Sweeper drops expired entries and reports how many were removed.
type Sweeper interface {
	Sweep() int
}

// Config holds cron specs. Empty specs use the defaults.
type Config struct {
	CachePrune  string
	DedupeSweep string
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	pruners []market.Pruner
	sweeper Sweeper
	logger  zerolog.Logger
}

// New creates a scheduler. Jobs run with ctx and stop receiving work once
// ctx is done.
func New(ctx context.Context) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		ctx:    ctx,
		logger: log.With().Str("component", "scheduler").Logger(),
	}
}

// AddPruner registers a cache to prune. Nil pruners are ignored.
func (s *Scheduler) AddPruner(p market.Pruner) {
	if p != nil {
		s.pruners = append(s.pruners, p)
	}
}

// SetSweeper registers the webhook de-duplication table.
func (s *Scheduler) SetSweeper(sw Sweeper) {
	s.sweeper = sw
}

// Register adds the maintenance jobs.
func (s *Scheduler) Register(cfg Config) error {
	if cfg.CachePrune == "" {
		cfg.CachePrune = DefaultCachePrune
	}
	if cfg.DedupeSweep == "" {
		cfg.DedupeSweep = DefaultDedupeSweep
	}

	if len(s.pruners) > 0 {
		if _, err := s.cron.AddFunc(cfg.CachePrune, s.PruneCaches); err != nil {
			return fmt.Errorf("register %s: %w", JobCachePrune, err)
		}
	}
	if s.sweeper != nil {
		if _, err := s.cron.AddFunc(cfg.DedupeSweep, s.SweepDedupe); err != nil {
			return fmt.Errorf("register %s: %w", JobDedupeSweep, err)
		}
	}
	return nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("jobs", s.Jobs()).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// PruneCaches deletes expired price-cache entries from every pruner.
func (s *Scheduler) PruneCaches() {
	if s.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	ok := true
	total := 0
	for _, p := range s.pruners {
		n, err := p.Prune(ctx)
		if err != nil {
			ok = false
			s.logger.Error().Err(err).Msg("Price cache prune failed")
			continue
		}
		total += n
	}
	metrics.RecordJobRun(JobCachePrune, ok)
	s.logger.Debug().Int("removed", total).Msg("Price caches pruned")
}

// SweepDedupe drops expired webhook hashes.
func (s *Scheduler) SweepDedupe() {
	if s.sweeper == nil || s.ctx.Err() != nil {
		return
	}
	n := s.sweeper.Sweep()
	metrics.RecordJobRun(JobDedupeSweep, true)
	s.logger.Debug().Int("removed", n).Msg("Webhook dedupe table swept")
}
