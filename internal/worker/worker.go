package worker

import (
	"context"
	"time"

	"norvia-broker/internal/logger"
	"norvia-broker/internal/metrics"
)

// Job is one unit of periodic background work. RunOnce returns how many records it transitioned.
type Job interface {
	Name() string
	RunOnce(ctx context.Context) (int, error)
}

// Run executes job immediately and then on every tick until ctx is cancelled.
func Run(ctx context.Context, log *logger.Logger, interval time.Duration, job Job) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if log == nil {
		log = logger.L()
	}
	log = log.Component("worker").With("job", job.Name())

	run := func() {
		n, err := job.RunOnce(ctx)
		metrics.SweepBatch.WithLabelValues(job.Name()).Set(float64(n))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.SweepRuns.WithLabelValues(job.Name(), "error").Inc()
			log.Error("run failed", err)
			return
		}
		metrics.SweepRuns.WithLabelValues(job.Name(), "ok").Inc()
		if n > 0 {
			log.Infof("transitioned %d records", n)
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}

// Drain calls step until it reports nothing left or limit is reached.
func Drain(ctx context.Context, limit int, step func(ctx context.Context) (bool, error)) (int, error) {
	if limit <= 0 {
		limit = 1
	}
	processed := 0
	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		ok, err := step(ctx)
		if err != nil {
			return processed, err
		}
		if !ok {
			return processed, nil
		}
		processed++
	}
	return processed, nil
}
