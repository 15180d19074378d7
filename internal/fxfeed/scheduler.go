package fxfeed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonesrussell/backlink-checker/internal/logger"
	"github.com/robfig/cron/v3"
)

// syncTimeout bounds one scheduled sync.
const syncTimeout = 2 * time.Minute

var errSchedulerRunning = errors.New("fx scheduler already running")

// Syncer is what the scheduler runs.
type Syncer interface {
	Sync(ctx context.Context) (*Result, error)
}

// Scheduler runs a Syncer on a standard 5-field cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	syncer   Syncer
	logger   logger.Logger
	schedule string

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	// startup tracks the sync launched by Start(ctx, true).
	startup sync.WaitGroup
}

func NewScheduler(syncer Syncer, schedule string, log logger.Logger) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Scheduler{
		cron:     cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger))),
		syncer:   syncer,
		logger:   log,
		schedule: schedule,
	}
}

// Start registers the job and starts the cron loop. When runNow is set a
// sync also runs immediately in the background.
func (s *Scheduler) Start(ctx context.Context, runNow bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errSchedulerRunning
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		s.cancel()
		return fmt.Errorf("invalid fx schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("FX feed scheduler started", logger.String("schedule", s.schedule))

	if runNow {
		s.startup.Go(s.run)
	}
	return nil
}

// Stop cancels any sync in progress, halts the cron loop and waits for
// running syncs, scheduled or immediate, to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.startup.Wait()
	s.running = false
	s.logger.Info("FX feed scheduler stopped")
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(s.ctx, syncTimeout)
	defer cancel()

	// Sync logs its own failures.
	_, _ = s.syncer.Sync(ctx)
}
