package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/osm2rdf-go/internal/config"
	"github.com/wegman-software/osm2rdf-go/internal/logger"
	"github.com/wegman-software/osm2rdf-go/internal/metrics"
	"github.com/wegman-software/osm2rdf-go/internal/nodeindex"
	"github.com/wegman-software/osm2rdf-go/internal/pbf"
	"github.com/wegman-software/osm2rdf-go/internal/pipeline"
)

var parseCmd = &cobra.Command{
	Use:   "parse <input.osm.pbf> <output-dir>",
	Short: "Convert a PBF file into gzip-compressed Turtle files",
	Long: `Convert an OSM PBF file into a series of gzip-compressed Turtle files.

Element groups are encoded in parallel and handed to a single writer, which
rotates output files (osm-000000.ttl.gz, osm-000001.ttl.gz, ...) once they
exceed --max-file-size megabytes of uncompressed Turtle. A final trailer file
records the newest element timestamp seen in the input.

Node coordinates are cached for way geometry. Use --planet-cache for full
planet files and --small-cache for extracts; without either, the cache lives
in memory for the duration of the run.`,
	Args: cobra.ExactArgs(2),
	Run:  runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().IntVar(&cfg.MaxFileSizeMB, "max-file-size", cfg.MaxFileSizeMB, "Approximate uncompressed size of each output file in MB")
	parseCmd.Flags().IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Statements per batch sent to the writer")
	parseCmd.Flags().IntVar(&cfg.GroupSize, "group-size", cfg.GroupSize, "Elements per group handed to one worker")
	parseCmd.Flags().IntVar(&cfg.ChannelBuffer, "channel-buffer", cfg.ChannelBuffer, "Batches buffered between workers and writer (0 = 4 per worker)")
	parseCmd.Flags().StringVar(&cfg.Schedule, "schedule", cfg.Schedule, "Element scheduling: unordered or nodes-first")
	parseCmd.Flags().StringVar(&cfg.LuaScript, "lua", "", "Lua script defining filter_tags(kind, id, tags)")
	parseCmd.Flags().Int64Var(&cfg.CachePageSize, "cache-page-size", cfg.CachePageSize, "Growth step of the planet cache file in bytes")
}

func runParse(cmd *cobra.Command, args []string) {
	cfg.InputFile = args[0]
	cfg.OutputDir = args[1]
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logFields := []zap.Field{
		zap.String("input", cfg.InputFile),
		zap.String("output", cfg.OutputDir),
		zap.Int("workers", cfg.Workers),
		zap.Int("channel_buffer", cfg.ChannelCapacity()),
		zap.String("schedule", cfg.Schedule),
		zap.String("max_file_size", humanize.IBytes(uint64(cfg.MaxFileSize()))),
	}
	if cfg.LuaScript != "" {
		logFields = append(logFields, zap.String("lua", cfg.LuaScript))
	}
	log.Info("Starting osm2rdf-go conversion", logFields...)

	cache, sparse, err := openCache(cfg)
	if err != nil {
		exitWithError("failed to open node cache", err)
	}
	defer cache.Close()

	if cfg.MetricsListen != "" {
		go metrics.Serve(ctx, cfg.MetricsListen, logger.Named("metrics"))
	}

	reader, err := pbf.Open(ctx, cfg.InputFile, cfg.GroupSize, cfg.Workers)
	if err != nil {
		exitWithError("failed to open input", err)
	}
	defer reader.Close()

	stats, err := pipeline.NewCoordinator(cfg, cache, reader).Run(ctx)
	if err != nil {
		exitWithError("conversion failed", err)
	}

	if sparse != nil && cfg.SmallCache != "" {
		if err := sparse.Save(cfg.SmallCache); err != nil {
			exitWithError("failed to save small cache", err)
		}
		log.Info("Saved small cache",
			zap.String("path", cfg.SmallCache),
			zap.Int("nodes", sparse.Len()))
	}

	e := stats.Elements
	log.Info("Conversion complete",
		zap.Duration("total_time", stats.Duration.Round(time.Second)),
		zap.Int64("nodes_added", e.AddedNodes),
		zap.Int64("nodes_skipped", e.SkippedNodes),
		zap.Int64("ways_added", e.AddedWays),
		zap.Int64("relations_added", e.AddedRelations),
		zap.Int64("deleted", e.DeletedNodes+e.DeletedWays+e.DeletedRelations),
		zap.Int64("blocks", e.Blocks),
		zap.Int("files", stats.Output.Files),
		zap.String("written", humanize.IBytes(uint64(stats.Output.Bytes))),
	)
}

// openCache picks the node cache backend for this run. The sparse cache is
// returned separately so its snapshot can be saved once the run succeeds.
func openCache(cfg *config.Config) (nodeindex.Cache, *nodeindex.SparseCache, error) {
	log := logger.Named("nodeindex")

	if cfg.PlanetCache != "" {
		dense, err := nodeindex.OpenDense(cfg.PlanetCache, cfg.CachePageSize, func(oldSize, newSize int64) {
			metrics.CacheGrowTotal.Inc()
			log.Info("Grew planet cache",
				zap.String("from", humanize.IBytes(uint64(oldSize))),
				zap.String("to", humanize.IBytes(uint64(newSize))))
		})
		if err != nil {
			return nil, nil, err
		}
		log.Info("Using planet cache",
			zap.String("path", cfg.PlanetCache),
			zap.String("size", humanize.IBytes(uint64(dense.Size()))))
		return dense, nil, nil
	}

	if cfg.SmallCache == "" {
		sparse := nodeindex.NewSparse()
		return sparse, sparse, nil
	}

	sparse, err := nodeindex.LoadSparse(cfg.SmallCache)
	if err != nil {
		return nil, nil, err
	}
	log.Info("Using small cache",
		zap.String("path", cfg.SmallCache),
		zap.Int("nodes", sparse.Len()))
	return sparse, sparse, nil
}
