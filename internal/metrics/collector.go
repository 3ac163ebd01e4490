package metrics

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Sample is one reading of the resources a conversion run consumes
type Sample struct {
	SystemCPU  float64
	ProcessCPU float64 // Per core; exceeds 100% when several workers are busy
	ProcessRSS uint64
	MemPercent float64
	WriteRate  float64 // Bytes/s across all disks since the previous sample
	OutputFree uint64  // Free space on the output filesystem
	Goroutines int
	Timestamp  time.Time
}

// Collector periodically samples and logs resource usage
type Collector struct {
	interval  time.Duration
	logger    *zap.Logger
	outputDir string
	proc      *process.Process

	lastWritten uint64
	lastAt      time.Time

	mu   sync.RWMutex
	last *Sample
}

// NewCollector creates a collector. When outputDir is set, the free space of
// its filesystem is part of every sample.
func NewCollector(interval time.Duration, logger *zap.Logger, outputDir string) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Collector{
		interval:  interval,
		logger:    logger,
		outputDir: outputDir,
		proc:      proc,
	}
}

// Start samples every interval until ctx is cancelled
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// First sample sets the disk baseline
	c.collect()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// GetMetrics returns the latest sample, or nil before the first one
func (c *Collector) GetMetrics() *Sample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *Collector) collect() {
	s := &Sample{
		Timestamp:  time.Now(),
		Goroutines: runtime.NumGoroutine(),
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.SystemCPU = pct[0]
	}
	if c.proc != nil {
		if pct, err := c.proc.Percent(0); err == nil {
			s.ProcessCPU = pct
		}
		if info, err := c.proc.MemoryInfo(); err == nil {
			s.ProcessRSS = info.RSS
		}
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		s.MemPercent = vmem.UsedPercent
	}
	s.WriteRate = c.writeRate(s.Timestamp)
	if c.outputDir != "" {
		if usage, err := disk.Usage(c.outputDir); err == nil {
			s.OutputFree = usage.Free
		}
	}

	c.mu.Lock()
	c.last = s
	c.mu.Unlock()

	c.logger.Info("System metrics",
		zap.Float64("sys_cpu", s.SystemCPU),
		zap.Float64("proc_cpu", s.ProcessCPU),
		zap.String("rss", humanize.IBytes(s.ProcessRSS)),
		zap.Float64("mem_pct", s.MemPercent),
		zap.String("disk_w", humanize.IBytes(uint64(s.WriteRate))+"/s"),
		zap.String("output_free", humanize.IBytes(s.OutputFree)),
		zap.Int("goroutines", s.Goroutines),
	)
}

// writeRate returns bytes written per second since the previous call.
// The first call only records the baseline and returns 0.
func (c *Collector) writeRate(now time.Time) float64 {
	counters, err := disk.IOCounters()
	if err != nil {
		return 0
	}
	var written uint64
	for _, d := range counters {
		written += d.WriteBytes
	}

	prev, prevAt := c.lastWritten, c.lastAt
	c.lastWritten, c.lastAt = written, now

	elapsed := now.Sub(prevAt).Seconds()
	if prevAt.IsZero() || elapsed <= 0 || written < prev {
		return 0
	}
	return float64(written-prev) / elapsed
}
