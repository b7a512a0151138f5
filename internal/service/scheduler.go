package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/unclebandit/pushleopard-backend/internal/model"
	"github.com/unclebandit/pushleopard-backend/internal/repository"
	"github.com/unclebandit/pushleopard-backend/internal/schedule"
)

type TickReport struct {
	Scanned    int `json:"scanned"`
	Due        int `json:"due"`
	Claimed    int `json:"claimed"`
	Conflicts  int `json:"conflicts"`
	Dispatched int `json:"dispatched"`
}

type SchedulerConfig struct {
	Interval time.Duration
	PageSize int
}

// Scheduler finds due campaign boundaries, claims them and hands each claimed
// boundary to the dispatcher. Claims are the only thing that keeps two
// schedulers from dispatching the same boundary; the running flag only stops
// one process from overlapping itself.
type Scheduler struct {
	Campaigns  repository.CampaignRepositoryInterface
	Dispatcher CampaignDispatcher
	Log        zerolog.Logger
	Now        func() time.Time

	cfg     SchedulerConfig
	running atomic.Bool

	mu sync.Mutex
	c  *cron.Cron
}

func NewScheduler(campaigns repository.CampaignRepositoryInterface, dispatcher CampaignDispatcher, cfg SchedulerConfig, log zerolog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = repository.DefaultPageSize
	}
	return &Scheduler{Campaigns: campaigns, Dispatcher: dispatcher, Log: log, Now: time.Now, cfg: cfg}
}

// Tick runs one scheduling pass. Listing and claim errors abort the pass;
// whatever was not claimed yet is picked up by the next one.
func (s *Scheduler) Tick(ctx context.Context) (report TickReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("tick panicked: %v", r)
		}
	}()

	now := s.Now().UTC()
	for page, perr := range s.Campaigns.Pages(ctx, model.CampaignPublished, now, s.cfg.PageSize) {
		if perr != nil {
			return report, errors.Wrap(perr, "list active campaigns")
		}
		for _, c := range page {
			report.Scanned++

			boundary, due := schedule.Boundary(c.Schedule, c.LastDispatchedAt, now)
			if !due {
				continue
			}
			report.Due++

			claimed, err := s.Campaigns.ClaimDispatchIfDue(ctx, c.TenantID, c.ID, boundary)
			if err != nil {
				return report, errors.Wrapf(err, "claim campaign %s", c.ID)
			}
			if !claimed {
				report.Conflicts++
				continue
			}
			report.Claimed++

			dr, err := s.Dispatcher.Dispatch(ctx, c, boundary)
			s.Log.Info().
				Str("tenant_id", c.TenantID).
				Str("campaign_id", c.ID).
				Time("boundary", boundary).
				Int("attempted", dr.Attempted).
				Int("delivered", dr.Delivered).
				Int("failed", dr.Failed).
				Int("gone", dr.Gone).
				Int("skipped", dr.Skipped).
				Int("errors", dr.Errors).
				Msg("campaign dispatched")
			if err != nil {
				return report, errors.Wrapf(err, "dispatch campaign %s", c.ID)
			}
			report.Dispatched++
		}
	}
	return report, nil
}

// RunOnce is what the cadence calls. It reports whether a tick actually ran;
// it returns false when a previous tick in this process is still going.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.Log.Warn().Msg("previous tick still running, skipping")
		return false
	}
	defer s.running.Store(false)

	start := time.Now()
	report, err := s.Tick(ctx)
	ev := s.Log.Info()
	if err != nil {
		ev = s.Log.Error().Err(err)
	}
	ev.Int("scanned", report.Scanned).
		Int("due", report.Due).
		Int("claimed", report.Claimed).
		Int("conflicts", report.Conflicts).
		Int("dispatched", report.Dispatched).
		Dur("took", time.Since(start)).
		Msg("tick finished")
	return true
}

// Start registers the tick with cron. Ticks run with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	c := cron.New(cron.WithLocation(time.UTC))
	spec := fmt.Sprintf("@every %s", s.cfg.Interval)
	if _, err := c.AddFunc(spec, func() { s.RunOnce(ctx) }); err != nil {
		return errors.Wrapf(err, "schedule %q", spec)
	}
	c.Start()
	s.c = c

	s.Log.Info().Dur("interval", s.cfg.Interval).Msg("scheduler started")
	return nil
}

// Stop prevents new ticks and waits for a running one, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.Log.Info().Msg("scheduler stopped")
}

// Run starts the cadence, ticks once right away and blocks until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	s.RunOnce(ctx)
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	return nil
}
