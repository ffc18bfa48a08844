package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Pruner removes entries older than a retention window.
type Pruner interface {
	Prune(ctx context.Context, retention time.Duration) (int, error)
}

// Job is one housekeeping target.
type Job struct {
	Name      string
	Pruner    Pruner
	Retention time.Duration
}

// Housekeeper runs periodic retention pruning of on-device logs.
type Housekeeper struct {
	cron *cron.Cron
	jobs []Job
	log  logrus.FieldLogger
}

// NewHousekeeper registers jobs on the given cron spec, e.g. "@daily".
func NewHousekeeper(spec string, jobs []Job, log logrus.FieldLogger) (*Housekeeper, error) {
	h := &Housekeeper{
		cron: cron.New(),
		jobs: jobs,
		log:  log.WithField("component", "housekeeping"),
	}
	if _, err := h.cron.AddFunc(spec, func() { h.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("housekeeping schedule %q: %w", spec, err)
	}
	return h, nil
}

// Start begins running on schedule in the background.
func (h *Housekeeper) Start() {
	h.cron.Start()
}

// Stop halts the schedule and waits for a running pass, bounded by ctx.
func (h *Housekeeper) Stop(ctx context.Context) {
	done := h.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce prunes every job. A failing job does not stop the others.
func (h *Housekeeper) RunOnce(ctx context.Context) {
	for _, job := range h.jobs {
		if job.Retention <= 0 {
			continue
		}
		removed, err := job.Pruner.Prune(ctx, job.Retention)
		if err != nil {
			h.log.WithError(err).WithField("job", job.Name).Error("prune failed")
			continue
		}
		if removed > 0 {
			h.log.WithFields(logrus.Fields{"job": job.Name, "removed": removed}).Info("pruned expired entries")
		}
	}
}
