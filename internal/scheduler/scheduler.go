// Package scheduler runs the periodic full sync.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/fitsync/internal/logging"
	"github.com/dmitrijs2005/fitsync/internal/models"
	"github.com/robfig/cron/v3"
)

// DefaultRunTimeout bounds a single scheduled pass.
const DefaultRunTimeout = 5 * time.Minute

type FullSyncer interface {
	FullSync(ctx context.Context) models.SyncResult
}

type Scheduler struct {
	cron     *cron.Cron
	schedule string
	syncer   FullSyncer
	timeout  time.Duration
	log      logging.Logger

	mu      sync.Mutex
	running bool
	last    *models.SyncResult
	// base is cancelled by Stop so an in-flight pass ends early
	base   context.Context
	cancel context.CancelFunc
}

// New runs syncer on schedule, a standard cron expression or a descriptor
// such as "@every 15m".
func New(schedule string, syncer FullSyncer, log logging.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		schedule: schedule,
		syncer:   syncer,
		timeout:  DefaultRunTimeout,
		log:      log,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	s.base, s.cancel = context.WithCancel(ctx)
	entryID, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(s.base) })
	if err != nil {
		s.cancel()
		return fmt.Errorf("schedule full sync %q: %w", s.schedule, err)
	}
	s.log.Info(ctx, "scheduled full sync", "schedule", s.schedule, "entry_id", entryID)

	s.cron.Start()
	s.running = true
	return nil
}

// Stop cancels any running pass and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	<-s.cron.Stop().Done()
}

// Next is the time of the next scheduled pass, zero when stopped.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunOnce performs one full sync bounded by the run timeout.
func (s *Scheduler) RunOnce(ctx context.Context) models.SyncResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.log.Info(ctx, "running scheduled full sync")
	res := s.syncer.FullSync(ctx)
	if res.Success {
		s.log.Info(ctx, "scheduled full sync completed")
	} else {
		s.log.Error(ctx, "scheduled full sync failed", "error", res.Error, "reauth_required", res.ReauthRequired)
	}

	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()
	return res
}

// Last returns the result of the most recent pass, if any.
func (s *Scheduler) Last() (models.SyncResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return models.SyncResult{}, false
	}
	return *s.last, true
}
