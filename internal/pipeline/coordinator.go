package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osm2rdf-go/internal/config"
	"github.com/wegman-software/osm2rdf-go/internal/flex"
	"github.com/wegman-software/osm2rdf-go/internal/logger"
	"github.com/wegman-software/osm2rdf-go/internal/metrics"
	"github.com/wegman-software/osm2rdf-go/internal/nodeindex"
	"github.com/wegman-software/osm2rdf-go/internal/pbf"
)

// Source yields element groups until it returns io.EOF
type Source interface {
	Next(ctx context.Context) (*pbf.Group, error)
}

// sizedSource is implemented by sources that can report scan progress
type sizedSource interface {
	Size() int64
	ScannedBytes() int64
}

// RunStats holds the outcome of a conversion run
type RunStats struct {
	Elements Stats
	Output   WriterStats
	Duration time.Duration
}

// Coordinator fans element groups out to a pool of workers and funnels
// their statements into a single writer
type Coordinator struct {
	cfg    *config.Config
	cache  nodeindex.Cache
	source Source
	log    *zap.Logger

	totals     Totals
	dispatched atomic.Int64
}

// NewCoordinator creates a coordinator for one run
func NewCoordinator(cfg *config.Config, cache nodeindex.Cache, source Source) *Coordinator {
	return &Coordinator{
		cfg:    cfg,
		cache:  cache,
		source: source,
		log:    logger.Named("coordinator"),
	}
}

// slot is the per-goroutine state reused across groups
type slot struct {
	worker   *Worker
	accessor nodeindex.Accessor
	runtime  *flex.Runtime
}

func (s *slot) close() error {
	if s.runtime != nil {
		s.runtime.Close()
	}
	return s.accessor.Close()
}

// Run converts every group from the source. It returns once all workers
// have finished and the writer has written the trailer file.
func (c *Coordinator) Run(ctx context.Context) (*RunStats, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start metrics collection in background if interval is set
	if c.cfg.MetricsInterval > 0 {
		collector := metrics.NewCollector(c.cfg.MetricsInterval, logger.Named("metrics"), c.cfg.OutputDir)
		go collector.Start(ctx)
		c.log.Info("System metrics collection started",
			zap.Duration("interval", c.cfg.MetricsInterval))
	}

	slots, err := c.newSlots()
	if err != nil {
		return nil, err
	}
	defer func() {
		close(slots)
		for s := range slots {
			if err := s.close(); err != nil {
				c.log.Warn("Failed to close worker slot", zap.Error(err))
			}
		}
	}()

	// Writer
	statements := make(chan []Statement, c.cfg.ChannelCapacity())
	type writerResult struct {
		stats WriterStats
		err   error
	}
	writerDone := make(chan writerResult, 1)
	go func() {
		w := NewWriter(c.cfg.OutputDir, c.cfg.MaxFileSize())
		stats, err := w.Run(statements)
		if err != nil {
			// Unblock workers waiting on a full channel
			cancel()
		}
		writerDone <- writerResult{stats, err}
	}()

	progressCtx, cancelProgress := context.WithCancel(ctx)
	defer cancelProgress()
	go NewProgressTicker(progressCtx, 5*time.Second, c.reportProgress(NewProgressTracker(c.sourceSize()))).Run()

	emit := func(ctx context.Context, batch []Statement) error {
		select {
		case statements <- batch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)

	var inflight sync.WaitGroup
	barrier := c.cfg.Schedule == config.ScheduleNodesFirst
	var sourceErr error
	for {
		group, err := c.source.Next(gctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			sourceErr = fmt.Errorf("failed to read input: %w", err)
			break
		}

		if barrier && group.HasDependents() {
			// Every node dispatched so far is cached before any way reads coordinates
			inflight.Wait()
			barrier = false
			c.log.Debug("All node groups processed, dispatching ways and relations")
		}

		inflight.Add(1)
		c.dispatched.Add(1)
		g.Go(func() error {
			defer inflight.Done()
			s := <-slots
			defer func() { slots <- s }()

			err := s.worker.Process(gctx, group, emit)
			stats := s.worker.Finish()
			c.totals.Merge(stats)
			recordStats(stats)
			return err
		})
	}

	workerErr := g.Wait()
	close(statements)
	res := <-writerDone
	cancelProgress()

	switch {
	case res.err != nil:
		return nil, fmt.Errorf("writer failed: %w", res.err)
	case workerErr != nil:
		return nil, workerErr
	case sourceErr != nil:
		return nil, sourceErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &RunStats{
		Elements: c.totals.Snapshot(),
		Output:   res.stats,
		Duration: time.Since(start),
	}, nil
}

// newSlots prepares one worker slot per configured worker
func (c *Coordinator) newSlots() (chan *slot, error) {
	slots := make(chan *slot, c.cfg.Workers)
	for i := 0; i < c.cfg.Workers; i++ {
		s := &slot{accessor: c.cache.Accessor()}

		var filter TagFilter
		if c.cfg.LuaScript != "" {
			s.runtime = flex.NewRuntime()
			if err := s.runtime.LoadFile(c.cfg.LuaScript); err != nil {
				s.close()
				close(slots)
				for prev := range slots {
					prev.close()
				}
				return nil, err
			}
			filter = s.runtime
		}

		s.worker = NewWorker(s.accessor, filter, c.cfg.BatchSize)
		slots <- s
	}
	return slots, nil
}

func (c *Coordinator) sourceSize() int64 {
	if s, ok := c.source.(sizedSource); ok {
		return s.Size()
	}
	return 0
}

// reportProgress returns the progress ticker callback
func (c *Coordinator) reportProgress(tracker *ProgressTracker) func() {
	return func() {
		var scanned int64
		if s, ok := c.source.(sizedSource); ok {
			scanned = s.ScannedBytes()
		}
		done := c.totals.Snapshot()
		p := tracker.Calculate(done.Elements(), scanned)
		c.log.Debug("Conversion progress",
			zap.Int64("groups", c.dispatched.Load()),
			zap.Int64("elements", done.Elements()),
			zap.String("processed", FormatBytes(scanned)),
			zap.String("percent", fmt.Sprintf("%.1f%%", p.Percentage)),
			zap.String("throughput", FormatThroughput(p.Throughput)),
			zap.String("eta", FormatETA(p.ETA)))
	}
}

// recordStats publishes one group's counters to prometheus
func recordStats(s Stats) {
	for _, e := range []struct {
		kind, outcome string
		n             int64
	}{
		{"node", metrics.OutcomeAdded, s.AddedNodes},
		{"node", metrics.OutcomeSkipped, s.SkippedNodes},
		{"node", metrics.OutcomeDeleted, s.DeletedNodes},
		{"way", metrics.OutcomeAdded, s.AddedWays},
		{"way", metrics.OutcomeDeleted, s.DeletedWays},
		{"relation", metrics.OutcomeAdded, s.AddedRelations},
		{"relation", metrics.OutcomeDeleted, s.DeletedRelations},
	} {
		if e.n > 0 {
			metrics.ElementsTotal.WithLabelValues(e.kind, e.outcome).Add(float64(e.n))
		}
	}
}
