package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// ProgressTracker estimates completion from bytes consumed out of a known total
type ProgressTracker struct {
	totalBytes int64
	startTime  time.Time
}

// NewProgressTracker creates a tracker starting now
func NewProgressTracker(totalBytes int64) *ProgressTracker {
	return &ProgressTracker{
		totalBytes: totalBytes,
		startTime:  time.Now(),
	}
}

// Progress holds current progress information
type Progress struct {
	Current    int64
	Percentage float64
	Elapsed    time.Duration
	ETA        time.Duration
	Throughput float64 // units per second
}

// Calculate returns progress given the number of processed units and input bytes consumed
func (p *ProgressTracker) Calculate(current, bytesProcessed int64) Progress {
	return p.calculateAt(time.Since(p.startTime), current, bytesProcessed)
}

func (p *ProgressTracker) calculateAt(elapsed time.Duration, current, bytesProcessed int64) Progress {
	prog := Progress{
		Current: current,
		Elapsed: elapsed.Round(time.Second),
	}

	secs := elapsed.Seconds()
	if secs > 0 {
		prog.Throughput = float64(current) / secs
	}

	if p.totalBytes > 0 && bytesProcessed > 0 {
		prog.Percentage = float64(bytesProcessed) / float64(p.totalBytes) * 100
		if prog.Percentage < 100 && secs > 0 {
			bytesPerSecond := float64(bytesProcessed) / secs
			remaining := float64(p.totalBytes - bytesProcessed)
			prog.ETA = time.Duration(remaining / bytesPerSecond * float64(time.Second)).Round(time.Second)
		}
	}
	return prog
}

// ProgressTicker calls a function periodically until its context ends
type ProgressTicker struct {
	ctx      context.Context
	callback func()
	interval time.Duration
}

// NewProgressTicker creates a ticker firing every interval
func NewProgressTicker(ctx context.Context, interval time.Duration, callback func()) *ProgressTicker {
	return &ProgressTicker{
		ctx:      ctx,
		callback: callback,
		interval: interval,
	}
}

// Run blocks, invoking the callback on every tick
func (p *ProgressTicker) Run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.callback()
		}
	}
}

// FormatETA formats the ETA duration in a human-readable format
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "calculating..."
	}

	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatThroughput formats throughput as human-readable items per second
func FormatThroughput(itemsPerSec float64) string {
	switch {
	case itemsPerSec >= 1_000_000:
		return fmt.Sprintf("%.1fM/s", itemsPerSec/1_000_000)
	case itemsPerSec >= 1_000:
		return fmt.Sprintf("%.1fK/s", itemsPerSec/1_000)
	default:
		return fmt.Sprintf("%.0f/s", itemsPerSec)
	}
}

// FormatBytes formats a byte count with binary units
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}
