// README: Queue-draining worker loop shared by the event processor and the SMS worker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"driverbuddy/internal/logger"
	"driverbuddy/internal/metrics"
	"driverbuddy/internal/queue"
)

// Handler processes one job. nil acknowledges it; any other error leaves it
// for redelivery, except errors built with Drop which acknowledge it too.
type Handler func(ctx context.Context, msg queue.Message) error

type dropError struct {
	reason string
}

func (e *dropError) Error() string {
	return "dropped: " + e.reason
}

// Drop marks a job as non-retryable; redelivery cannot change its outcome.
func Drop(format string, args ...any) error {
	return &dropError{reason: fmt.Sprintf(format, args...)}
}

func IsDrop(err error) bool {
	var d *dropError
	return errors.As(err, &d)
}

type WorkerConfig struct {
	BatchSize    int
	Wait         time.Duration
	ErrorBackoff time.Duration
	// JobTimeout bounds a single job; zero means no bound.
	JobTimeout time.Duration
}

type Worker struct {
	name    string
	q       queue.Queue
	handle  Handler
	cfg     WorkerConfig
	logger  *slog.Logger
	running atomic.Bool
}

func NewWorker(name string, q queue.Queue, handle Handler, cfg WorkerConfig, l *slog.Logger) *Worker {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 10
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}
	return &Worker{
		name:   name,
		q:      q,
		handle: handle,
		cfg:    cfg,
		logger: logger.Or(l).With("component", name, "queue", q.Name()),
	}
}

func (w *Worker) Name() string {
	return w.name
}

func (w *Worker) Running() bool {
	return w.running.Load()
}

// Run polls until ctx is cancelled. Cancellation interrupts the long poll but
// never a job in progress; jobs received but not started are redelivered.
func (w *Worker) Run(ctx context.Context) error {
	w.running.Store(true)
	defer w.running.Store(false)
	w.logger.Info("worker started")
	defer w.logger.Info("worker stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		msgs, err := w.q.Receive(ctx, w.cfg.BatchSize, w.cfg.Wait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("receive failed", logger.Err(err))
			if !sleepCtx(ctx, w.cfg.ErrorBackoff) {
				return nil
			}
			continue
		}
		for _, msg := range msgs {
			if ctx.Err() != nil {
				return nil
			}
			w.process(context.WithoutCancel(ctx), msg)
		}
	}
}

func (w *Worker) process(ctx context.Context, msg queue.Message) {
	if w.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()
	}
	start := time.Now()
	err := w.safeHandle(ctx, msg)
	metrics.JobDuration.WithLabelValues(w.q.Name()).Observe(time.Since(start).Seconds())

	log := w.logger.With("receive_count", msg.ReceiveCount)
	outcome := "acked"
	switch {
	case err == nil:
	case IsDrop(err):
		outcome = "dropped"
		log.Warn("job dropped", logger.Err(err))
	default:
		metrics.JobsTotal.WithLabelValues(w.q.Name(), "retried").Inc()
		log.Warn("job failed; leaving for redelivery", logger.Err(err))
		return
	}
	if err := w.q.Delete(ctx, msg.Receipt); err != nil {
		log.Error("ack failed; job will be redelivered", logger.Err(err))
		return
	}
	metrics.JobsTotal.WithLabelValues(w.q.Name(), outcome).Inc()
}

func (w *Worker) safeHandle(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job handler: %v", r)
		}
	}()
	return w.handle(ctx, msg)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
