package maintenance

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/dashpad/authd/pkg/logger"
)

const defaultSweepSpec = "@every 1m"

// LeadSweeper removes stale pending registrations.
type LeadSweeper interface {
	SweepAuthLeads(ctx context.Context) (int64, error)
}

// Cleaner schedules background housekeeping: currently the sweep of pending
// registrations that were never finalized.
type Cleaner struct {
	leads    LeadSweeper
	cron     *cron.Cron
	log      *zap.Logger
	schedule string
	running  atomic.Bool
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSweepSchedule overrides the cron specification for the lead sweep.
func WithSweepSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil sweeper disables the job.
func NewCleaner(leads LeadSweeper, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		leads:    leads,
		schedule: defaultSweepSpec,
		log:      logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the sweep with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.leads == nil {
		return nil
	}

	if _, err := c.cron.AddFunc(c.schedule, c.tick); err != nil {
		return err
	}

	c.cron.Start()
	c.log.Info("lead sweep scheduled", zap.String("spec", c.schedule))
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce sweeps immediately and reports how many leads were removed.
func (c *Cleaner) RunOnce(ctx context.Context) (int64, error) {
	if c.leads == nil {
		return 0, errors.New("maintenance: no lead sweeper configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return c.leads.SweepAuthLeads(ctx)
}

// tick runs one scheduled sweep. Overlapping ticks are skipped and failures are
// logged; the next tick retries.
func (c *Cleaner) tick() {
	if !c.running.CompareAndSwap(false, true) {
		c.log.Info("lead sweep skipped: still running")
		return
	}
	defer c.running.Store(false)

	if _, err := c.RunOnce(context.Background()); err != nil {
		c.log.Warn("lead sweep failed", zap.Error(err))
	}
}
