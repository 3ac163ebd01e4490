package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestProgressCalculate(t *testing.T) {
	p := NewProgressTracker(1000)
	got := p.calculateAt(10*time.Second, 500, 250)

	if got.Percentage != 25 {
		t.Errorf("expected 25%%, got %v", got.Percentage)
	}
	if got.Throughput != 50 {
		t.Errorf("expected 50/s, got %v", got.Throughput)
	}
	if got.ETA != 30*time.Second {
		t.Errorf("expected 30s ETA, got %v", got.ETA)
	}

	unknown := NewProgressTracker(0).calculateAt(time.Second, 10, 10)
	if unknown.Percentage != 0 || unknown.ETA != 0 {
		t.Errorf("expected no estimate without a total, got %+v", unknown)
	}
}

func TestFormatters(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{FormatETA(0), "calculating..."},
		{FormatETA(45 * time.Second), "45s"},
		{FormatETA(2*time.Minute + 5*time.Second), "2m 5s"},
		{FormatETA(3*time.Hour + 4*time.Minute), "3h 4m 0s"},
		{FormatThroughput(12), "12/s"},
		{FormatThroughput(2500), "2.5K/s"},
		{FormatThroughput(3_200_000), "3.2M/s"},
		{FormatBytes(1536), "1.5 KiB"},
		{FormatBytes(-1), "0 B"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestProgressTicker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		NewProgressTicker(ctx, time.Millisecond, func() {
			if calls.Add(1) == 3 {
				cancel()
			}
		}).Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ticker did not stop after cancel")
	}
	if calls.Load() < 3 {
		t.Errorf("expected at least 3 calls, got %d", calls.Load())
	}
}
