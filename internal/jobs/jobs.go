// Package jobs runs background work on asynq: the periodic electricity stat
// fetch and any one-off tasks enqueued by the HTTP layer.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lingzc/dormlife/internal/elec"
)

const (
	// QueueDefault is the queue all dormlife tasks run on.
	QueueDefault = "default"
	// TaskTypeElecFetch samples the portal surplus for every bound building.
	TaskTypeElecFetch = "elec:fetch"

	// elecFetchCron matches the portal's five-minute reporting granularity.
	elecFetchCron = "*/5 * * * *"
)

// NewElecFetchTask constructs the periodic fetch task. It carries no payload.
func NewElecFetchTask() *asynq.Task {
	return asynq.NewTask(TaskTypeElecFetch, nil)
}

// HandleElecFetch adapts a Collector to an asynq handler.
func HandleElecFetch(collector *elec.Collector) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		return collector.Run(ctx)
	}
}

// Worker wraps the asynq server and the scheduler driving the fetch cron.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// WorkerConfig collects the worker dependencies.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Collector *elec.Collector
	Logger    *slog.Logger
}

// NewWorker constructs a Worker with the elec fetch handler and its cron
// registration.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 2,
		Queues: map[string]int{
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeElecFetch, HandleElecFetch(cfg.Collector))

	scheduler := asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.Local})
	// TaskID pins the periodic fetch so overlapping schedules collapse into
	// one queued task.
	if _, err := scheduler.Register(elecFetchCron, NewElecFetchTask(),
		asynq.Queue(QueueDefault),
		asynq.TaskID(TaskTypeElecFetch),
		asynq.Timeout(4*time.Minute),
	); err != nil {
		return nil, err
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts the scheduler and server until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("jobs: worker not configured")
	}
	if err := w.scheduler.Start(); err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		w.scheduler.Shutdown()
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		w.scheduler.Shutdown()
		return err
	}
}
