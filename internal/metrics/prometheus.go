package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Element outcomes used as the "outcome" label
const (
	OutcomeAdded   = "added"
	OutcomeSkipped = "skipped"
	OutcomeDeleted = "deleted"
)

var (
	ElementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "osm2rdf_elements_total",
		Help: "The number of processed OSM elements by kind and outcome.",
	}, []string{"kind", "outcome"})

	OutputBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "osm2rdf_output_bytes_total",
		Help: "Uncompressed bytes written to output files.",
	})

	OutputFilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "osm2rdf_output_files_total",
		Help: "The number of output files created, including the trailer.",
	})

	CacheGrowTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "osm2rdf_cache_grow_total",
		Help: "The number of times the dense node cache file was extended.",
	})
)

// Serve exposes /metrics on addr until ctx is cancelled
func Serve(ctx context.Context, addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("Starting prometheus metrics server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Metrics server failed", zap.Error(err))
		return
	}
	log.Debug("Metrics server shut down")
}
