// Package sysmon periodically samples process resource usage and feeds it
// into metrics and the log: CPU percent, RSS, and goroutine count, via
// github.com/shirou/gopsutil/v3 rather than a hand-rolled cgroup reader,
// since this engine has no per-shard admission-control logic that needs
// throttle statistics.
package sysmon

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/frc3512/livegrapher-host/internal/metrics"
)

// Monitor samples CPU percent, RSS, and goroutine count at a fixed
// interval and publishes them to a Metrics instance and the log.
type Monitor struct {
	proc     *process.Process
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Monitor for the current process.
func New(m *metrics.Metrics, logger zerolog.Logger, interval time.Duration) (*Monitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		proc:     proc,
		metrics:  m,
		logger:   logger.With().Str("component", "sysmon").Logger(),
		interval: interval,
	}, nil
}

// Start launches the periodic sampling goroutine. Safe to call once.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.sample()
		for {
			select {
			case <-ticker.C:
				m.sample()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Monitor) sample() {
	cpuPercent, err := m.proc.CPUPercent()
	if err != nil {
		m.logger.Debug().Err(err).Msg("failed to sample cpu percent")
		cpuPercent = 0
	}

	memInfo, err := m.proc.MemoryInfo()
	var rss uint64
	if err != nil {
		m.logger.Debug().Err(err).Msg("failed to sample memory info")
	} else if memInfo != nil {
		rss = memInfo.RSS
	}

	goroutines := runtime.NumGoroutine()

	m.metrics.ProcessCPUPercent.Set(cpuPercent)
	m.metrics.ProcessRSSBytes.Set(float64(rss))
	m.metrics.GoroutinesActive.Set(float64(goroutines))

	m.logger.Debug().
		Float64("cpu_percent", cpuPercent).
		Uint64("rss_bytes", rss).
		Int("goroutines", goroutines).
		Msg("system metrics sampled")
}

// Stop halts the sampling goroutine and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
