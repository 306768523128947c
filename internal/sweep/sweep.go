// Package sweep runs scheduled cleanup of stale server state: expired rate
// counter windows and abandoned resumable upload sessions.
package sweep

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/srkrambo/mock-server/internal/config"
	"github.com/srkrambo/mock-server/internal/metrics"
)

// Task removes state older than maxAge and returns how many records went.
type Task interface {
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}

// Runner owns the cron scheduler and the registered cleanup tasks.
type Runner struct {
	cfg   config.SweepConfig
	cron  *cron.Cron
	tasks []job
}

type job struct {
	name   string
	maxAge time.Duration
	task   Task
}

// NewRunner builds a runner for the given schedule. Tasks are added with
// Register before Start.
func NewRunner(cfg config.SweepConfig) *Runner {
	return &Runner{cfg: cfg, cron: cron.New()}
}

// Register adds a named cleanup task swept with its own retention age.
func (r *Runner) Register(name string, maxAge time.Duration, task Task) {
	r.tasks = append(r.tasks, job{name: name, maxAge: maxAge, task: task})
}

// Start schedules the sweep and begins running it. It returns without error
// when sweeping is disabled.
func (r *Runner) Start() error {
	if !r.cfg.Enabled {
		return nil
	}
	if _, err := r.cron.AddFunc(r.cfg.Schedule, r.RunOnce); err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for an in-flight sweep to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// RunOnce sweeps every registered task immediately. Failures are logged and
// do not stop the remaining tasks.
func (r *Runner) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for _, j := range r.tasks {
		removed, err := j.task.Sweep(ctx, j.maxAge)
		if err != nil {
			log.Printf(`{"level":"error","message":"sweep failed","task":"%s","error":"%s"}`, j.name, err)
			continue
		}
		if removed > 0 {
			metrics.RecordSweep(j.name, removed)
			log.Printf(`{"level":"info","message":"sweep completed","task":"%s","removed":%d}`, j.name, removed)
		}
	}
}
