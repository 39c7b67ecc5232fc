// Package sysmetrics samples process and host resource usage into Prometheus gauges on a cron
// schedule, so resource saturation can be correlated with request latency.
package sysmetrics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const sampleTimeout = 5 * time.Second

// Sample is one reading of resource usage.
type Sample struct {
	ProcessCPUPercent float64
	ProcessRSSBytes   uint64
	Goroutines        int
	HostCPUPercent    float64
	HostMemPercent    float64
}

// Sampler reads current resource usage.
type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

type psSampler struct {
	proc *process.Process
}

// NewSampler returns a gopsutil-backed Sampler for the current process.
func NewSampler() (Sampler, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("open process: %w", err)
	}
	return &psSampler{proc: p}, nil
}

// Sample reads all values and returns the first error alongside whatever could be read.
func (s *psSampler) Sample(ctx context.Context) (Sample, error) {
	out := Sample{Goroutines: runtime.NumGoroutine()}
	var errs []error

	if pct, err := s.proc.PercentWithContext(ctx, 0); err != nil {
		errs = append(errs, fmt.Errorf("process cpu: %w", err))
	} else {
		out.ProcessCPUPercent = pct
	}

	if mi, err := s.proc.MemoryInfoWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("process memory: %w", err))
	} else {
		out.ProcessRSSBytes = mi.RSS
	}

	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		errs = append(errs, fmt.Errorf("host cpu: %w", err))
	} else if len(pcts) > 0 {
		out.HostCPUPercent = pcts[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("host memory: %w", err))
	} else {
		out.HostMemPercent = vm.UsedPercent
	}

	return out, errors.Join(errs...)
}

// Collector publishes Samples as gauges.
type Collector struct {
	sampler Sampler
	logger  zerolog.Logger
	cron    *cron.Cron

	processCPU prometheus.Gauge
	processRSS prometheus.Gauge
	goroutines prometheus.Gauge
	hostCPU    prometheus.Gauge
	hostMem    prometheus.Gauge
	failures   prometheus.Counter
}

// New creates a Collector and registers its metrics on reg.
func New(sampler Sampler, reg prometheus.Registerer, logger zerolog.Logger) (*Collector, error) {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "system", Name: name, Help: help})
	}
	c := &Collector{
		sampler:    sampler,
		logger:     logger,
		processCPU: gauge("process_cpu_percent", "CPU used by this process, in percent of one core."),
		processRSS: gauge("process_rss_bytes", "Resident set size of this process."),
		goroutines: gauge("goroutines", "Number of live goroutines."),
		hostCPU:    gauge("host_cpu_percent", "Host CPU utilisation across all cores."),
		hostMem:    gauge("host_memory_used_percent", "Host memory in use."),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "system",
			Name:      "sample_errors_total",
			Help:      "Resource samples that failed at least partially.",
		}),
	}

	for _, m := range []prometheus.Collector{c.processCPU, c.processRSS, c.goroutines, c.hostCPU, c.hostMem, c.failures} {
		if err := reg.Register(m); err != nil {
			return nil, fmt.Errorf("register system metrics: %w", err)
		}
	}
	return c, nil
}

// Collect takes one sample and updates the gauges. Values that could be read are published even
// when part of the sample failed.
func (c *Collector) Collect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, sampleTimeout)
	defer cancel()

	s, err := c.sampler.Sample(ctx)
	c.processCPU.Set(s.ProcessCPUPercent)
	c.processRSS.Set(float64(s.ProcessRSSBytes))
	c.goroutines.Set(float64(s.Goroutines))
	c.hostCPU.Set(s.HostCPUPercent)
	c.hostMem.Set(s.HostMemPercent)
	if err != nil {
		c.failures.Inc()
		c.logger.Warn().Err(err).Msg("system_metrics_sample_failed")
	}
	return err
}

// Start samples once immediately and then on schedule (a cron spec such as "@every 15s").
// Overlapping runs are skipped.
func (c *Collector) Start(schedule string) error {
	cr := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := cr.AddFunc(schedule, func() { _ = c.Collect(context.Background()) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	c.cron = cr

	_ = c.Collect(context.Background())
	cr.Start()
	c.logger.Info().Str("schedule", schedule).Msg("system_metrics_started")
	return nil
}

// Stop halts the schedule and waits for a running sample to finish or ctx to end.
func (c *Collector) Stop(ctx context.Context) {
	if c.cron == nil {
		return
	}
	select {
	case <-c.cron.Stop().Done():
	case <-ctx.Done():
	}
}
