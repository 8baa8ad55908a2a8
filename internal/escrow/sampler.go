package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mbd888/homeescrow/internal/metrics"
)

// DefaultSampleInterval is how often the status gauge is refreshed.
const DefaultSampleInterval = 30 * time.Second

// StatusCounter is the part of the store the sampler reads.
type StatusCounter interface {
	CountByStatus(ctx context.Context, statuses ...Status) (map[Status]int, error)
}

// Sampler periodically publishes transaction counts by status.
type Sampler struct {
	counter  StatusCounter
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewSampler creates a status gauge sampler.
func NewSampler(counter StatusCounter, interval time.Duration, logger *slog.Logger) *Sampler {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Sampler{
		counter:  counter,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the sampling loop is active.
func (s *Sampler) Running() bool {
	return s.running.Load()
}

// Start samples immediately and then on every tick. Call in a goroutine.
func (s *Sampler) Start(ctx context.Context) {
	s.running.Store(true)
	defer s.running.Store(false)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.safeSample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.safeSample(ctx)
		}
	}
}

// Stop signals the sampler to stop.
func (s *Sampler) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

func (s *Sampler) safeSample(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in status sampler", "panic", fmt.Sprint(r))
		}
	}()
	s.sample(ctx)
}

func (s *Sampler) sample(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	counts, err := s.counter.CountByStatus(ctx)
	if err != nil {
		s.logger.Warn("failed to sample escrow status counts", "error", err)
		return
	}
	for _, st := range AllStatuses {
		metrics.EscrowsByStatus.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
}
