// Package sysmetrics samples host CPU, memory, load, and uptime and broadcasts them as
// unsequenced system messages. Samples are never persisted.
package sysmetrics

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/buppyai/puppy-station/pkg/models"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

const DefaultInterval = 5 * time.Second

// Publisher is what the sampler needs from *broadcast.Hub.
type Publisher interface {
	PublishSystem(data any)
}

// Sample reads the host once. Individual probe failures leave their fields zero and are
// joined into the returned error; the sample is still usable.
func Sample(ctx context.Context) (models.SystemMetrics, error) {
	m := models.SystemMetrics{SampledAt: time.Now().UTC()}
	var errs []error
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		errs = append(errs, err)
	} else if len(pct) > 0 {
		m.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = append(errs, err)
	} else {
		m.MemUsedPercent = vm.UsedPercent
		m.MemUsedBytes = vm.Used
		m.MemTotalBytes = vm.Total
	}
	if avg, err := load.AvgWithContext(ctx); err != nil {
		errs = append(errs, err)
	} else {
		m.Load1, m.Load5, m.Load15 = avg.Load1, avg.Load5, avg.Load15
	}
	if up, err := host.UptimeWithContext(ctx); err != nil {
		errs = append(errs, err)
	} else {
		m.UptimeSeconds = up
	}
	return m, errors.Join(errs...)
}

// Sampler publishes a sample every Interval.
type Sampler struct {
	Hub      Publisher
	Interval time.Duration
	Log      *slog.Logger
	// SampleFunc defaults to Sample.
	SampleFunc func(ctx context.Context) (models.SystemMetrics, error)
}

// Run samples until ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	if s.Interval <= 0 {
		s.Interval = DefaultInterval
	}
	if s.Log == nil {
		s.Log = slog.Default()
	}
	if s.SampleFunc == nil {
		s.SampleFunc = Sample
	}
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.publishOnce(ctx)
		}
	}
}

func (s *Sampler) publishOnce(ctx context.Context) {
	m, err := s.SampleFunc(ctx)
	if err != nil {
		s.Log.Debug("host sample incomplete", "err", err)
	}
	if m.SampledAt.IsZero() {
		return
	}
	s.Hub.PublishSystem(m)
}
