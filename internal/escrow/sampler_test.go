package escrow

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/homeescrow/internal/metrics"
)

type panickyCounter struct{}

func (panickyCounter) CountByStatus(context.Context, ...Status) (map[Status]int, error) {
	panic("boom")
}

type failingCounter struct{}

func (failingCounter) CountByStatus(context.Context, ...Status) (map[Status]int, error) {
	return nil, errors.New("db down")
}

func gauge(st Status) float64 {
	return promtest.ToFloat64(metrics.EscrowsByStatus.WithLabelValues(string(st)))
}

func TestSampler_PublishesCounts(t *testing.T) {
	f := newFixture(t)
	f.seed(t, StatusActive)
	f.seed(t, StatusActive)
	f.seed(t, StatusDisputed)

	s := NewSampler(f.store, time.Hour, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return gauge(StatusActive) == 2 && gauge(StatusDisputed) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(0), gauge(StatusRefunded))
	assert.True(t, s.Running())

	cancel()
	<-done
	assert.False(t, s.Running())
}

func TestSampler_StopEndsLoop(t *testing.T) {
	s := NewSampler(NewMemoryStore(), time.Hour, slog.Default())
	done := make(chan struct{})
	go func() {
		s.Start(context.Background())
		close(done)
	}()
	require.Eventually(t, s.Running, time.Second, 5*time.Millisecond)

	s.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sampler did not stop")
	}
}

func TestSampler_SurvivesFailures(t *testing.T) {
	for _, c := range []StatusCounter{panickyCounter{}, failingCounter{}} {
		s := NewSampler(c, time.Hour, slog.Default())
		assert.NotPanics(t, func() { s.safeSample(context.Background()) })
	}
}

func TestNewSampler_DefaultInterval(t *testing.T) {
	s := NewSampler(NewMemoryStore(), 0, slog.Default())
	assert.Equal(t, DefaultSampleInterval, s.interval)
}
