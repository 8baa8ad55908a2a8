package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mbd888/homeescrow/internal/idgen"
	"github.com/mbd888/homeescrow/internal/metrics"
	"github.com/mbd888/homeescrow/internal/realtime"
	"github.com/mbd888/homeescrow/internal/retry"
)

const deliveryTimeout = 30 * time.Second

// Dispatcher queues notifications and delivers them from a worker pool.
type Dispatcher struct {
	store    Store
	pushers  []Pusher
	queue    chan *Notification
	workers  int
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stopped   atomic.Bool
	quit      chan struct{}
	wg        sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWorkers sets the number of delivery workers.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize sets the queue capacity. Enqueues beyond it are dropped.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan *Notification, n)
		}
	}
}

// WithRetry sets the delivery retry policy.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(d *Dispatcher) {
		d.attempts = attempts
		d.backoff = backoff
	}
}

// WithPusher adds a live-delivery channel.
func WithPusher(p Pusher) Option {
	return func(d *Dispatcher) {
		d.pushers = append(d.pushers, p)
	}
}

// NewDispatcher creates a dispatcher writing to store. Call Start to run it.
func NewDispatcher(store Store, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		store:    store,
		queue:    make(chan *Notification, 1024),
		workers:  4,
		attempts: 5,
		backoff:  200 * time.Millisecond,
		logger:   logger,
		now:      time.Now,
		quit:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CreateNotification enqueues n without waiting for delivery. The returned
// error only reports that the notification was not queued.
func (d *Dispatcher) CreateNotification(ctx context.Context, n Notification) error {
	if d.stopped.Load() {
		return ErrStopped
	}
	if n.ID == "" {
		n.ID = idgen.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now()
	}
	n.Read = false
	n.ReadAt = nil

	select {
	case d.queue <- &n:
		metrics.NotificationQueueDepth.Set(float64(len(d.queue)))
		return nil
	default:
		metrics.NotificationsTotal.WithLabelValues(string(n.Type), "dropped").Inc()
		d.logger.Warn("notification dropped, queue full",
			"type", n.Type, "recipient", n.Recipient, "capacity", cap(d.queue))
		return ErrQueueFull
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.worker()
		}
		d.logger.Info("notification dispatcher started", "workers", d.workers, "queue_size", cap(d.queue))
	})
}

// Stop rejects new notifications, lets workers drain what is queued and
// waits for them until ctx is done.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.quit)
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notification dispatcher: %d undelivered: %w", len(d.queue), ctx.Err())
	}
}

// Pending returns the number of queued notifications.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Capacity returns the queue capacity.
func (d *Dispatcher) Capacity() int {
	return cap(d.queue)
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case n := <-d.queue:
			d.deliver(n)
		case <-d.quit:
			for {
				select {
				case n := <-d.queue:
					d.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(n *Notification) {
	metrics.NotificationQueueDepth.Set(float64(len(d.queue)))

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	err := retry.Do(ctx, d.attempts, d.backoff, func() error {
		return d.store.Create(ctx, n)
	})
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(string(n.Type), "failed").Inc()
		d.logger.Error("notification delivery failed",
			"id", n.ID, "type", n.Type, "recipient", n.Recipient, "error", err)
		return
	}
	metrics.NotificationsTotal.WithLabelValues(string(n.Type), "delivered").Inc()

	for _, p := range d.pushers {
		if err := p.Push(ctx, n); err != nil {
			d.logger.Debug("live push skipped", "id", n.ID, "recipient", n.Recipient, "error", err)
		}
	}
}

// HubPusher forwards notifications to connected WebSocket clients.
type HubPusher struct {
	Hub *realtime.Hub
}

func (h HubPusher) Push(ctx context.Context, n *Notification) error {
	return h.Hub.SendToUser(n.Recipient, &realtime.Event{
		Type:      "notification",
		Timestamp: n.CreatedAt,
		Data:      n,
	})
}
