package cache

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultCleanupSchedule runs cleanup at the top of every hour.
const DefaultCleanupSchedule = "0 * * * *"

// Cleaner runs Store.Cleanup on a cron schedule.
type Cleaner struct {
	store     *Store
	scheduler gocron.Scheduler
	logger    *zap.SugaredLogger
}

// NewCleaner schedules cleanup of store. Call Start to begin running it.
func NewCleaner(store *Store, schedule string, logger *zap.SugaredLogger) (*Cleaner, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.Wrap(err, "creating scheduler")
	}
	c := &Cleaner{store: store, scheduler: scheduler, logger: logger}

	j, err := scheduler.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(c.run),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "scheduling cleanup %q", schedule), scheduler.Shutdown())
	}
	logger.Infow("scheduled cache cleanup", "schedule", schedule, "job", j.ID())
	return c, nil
}

func (c *Cleaner) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := c.store.Cleanup(ctx)
	if err != nil {
		c.logger.Errorw("cache cleanup failed", "removed", removed, "error", err)
		return
	}
	if removed > 0 {
		c.logger.Infow("removed expired cache files", "count", removed)
	}
}

func (c *Cleaner) Start() {
	c.scheduler.Start()
}

// Shutdown stops the scheduler, waiting for a running cleanup.
func (c *Cleaner) Shutdown() error {
	return c.scheduler.Shutdown()
}
