package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Dispatcher sends messages in the background with a bound on concurrent
// deliveries. Failures are logged and dropped.
type Dispatcher struct {
	notifier Notifier
	sem      *semaphore.Weighted
	timeout  time.Duration
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher running at most maxInFlight sends, each
// bounded by timeout.
func NewDispatcher(n Notifier, maxInFlight int64, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if maxInFlight <= 0 {
		maxInFlight = 4
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notifier: n,
		sem:      semaphore.NewWeighted(maxInFlight),
		timeout:  timeout,
		logger:   logger.With("system", "notify"),
	}
}

// Enqueue schedules msg and returns immediately.
func (d *Dispatcher) Enqueue(msg Message) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.sem.Acquire(ctx, 1); err != nil {
			notificationsSent.WithLabelValues("dropped").Inc()
			d.logger.Warn("notification dropped", "subject", msg.Subject, "err", err)
			return
		}
		defer d.sem.Release(1)

		start := time.Now()
		err := d.notifier.Send(ctx, msg)
		notificationDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			notificationsSent.WithLabelValues("error").Inc()
			d.logger.Error("failed to send notification", "subject", msg.Subject, "to", msg.To, "err", err)
			return
		}
		notificationsSent.WithLabelValues("ok").Inc()
	}()
}

// Wait blocks until every enqueued message has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
