package sysmetrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/buppyai/puppy-station/pkg/models"
)

type recorder struct {
	mu   sync.Mutex
	msgs []any
}

func (r *recorder) PublishSystem(data any) {
	r.mu.Lock()
	r.msgs = append(r.msgs, data)
	r.mu.Unlock()
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestSampleReadsHost(t *testing.T) {
	t.Parallel()
	m, err := Sample(context.Background())
	if err != nil {
		t.Logf("partial sample: %v", err)
	}
	if m.SampledAt.IsZero() {
		t.Fatal("SampledAt not set")
	}
	if m.MemTotalBytes == 0 && err == nil {
		t.Fatal("memory total missing without error")
	}
}

func TestSamplerPublishesPartialSamples(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	calls := 0
	s := &Sampler{
		Hub:      rec,
		Interval: 10 * time.Millisecond,
		SampleFunc: func(context.Context) (models.SystemMetrics, error) {
			calls++
			if calls%2 == 0 {
				return models.SystemMetrics{SampledAt: time.Now(), CPUPercent: 1}, errors.New("load unavailable")
			}
			return models.SystemMetrics{SampledAt: time.Now(), CPUPercent: 2}, nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for rec.len() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if rec.len() < 4 {
		t.Fatalf("published %d samples", rec.len())
	}
	if _, ok := rec.msgs[0].(models.SystemMetrics); !ok {
		t.Fatalf("payload type %T", rec.msgs[0])
	}
}
