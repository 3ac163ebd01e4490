package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wegman-software/osm2rdf-go/internal/config"
	"github.com/wegman-software/osm2rdf-go/internal/logger"
)

var (
	cfg        = config.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "osm2rdf-go",
	Short: "High-performance OSM to RDF converter",
	Long: `osm2rdf-go converts OpenStreetMap PBF extracts into gzip-compressed
Turtle files.

Features:
  - Multi-threaded element encoding with a single ordered writer
  - Memory-mapped node cache for planet runs, in-memory cache for extracts
  - Way geometry (closed flag and centroid) from cached node coordinates
  - Size-based output rotation with a trailer carrying the data timestamp
  - Optional Lua hook for rewriting or dropping tags`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			if err := applyConfigFile(cmd.Flags(), configFile); err != nil {
				return err
			}
		}

		// Initialize logger with optional file output
		if cfg.LogFile != "" {
			logger.InitWithFile(cfg.Verbose, cfg.LogFile)
		} else {
			logger.Init(cfg.Verbose)
		}
		return nil
	},
}

func Execute() error {
	defer logger.Sync()
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML configuration file (flags override its values)")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of parallel workers")

	// Node cache flags
	rootCmd.PersistentFlags().StringVar(&cfg.PlanetCache, "planet-cache", "", "Dense file-backed node cache (for planet files)")
	rootCmd.PersistentFlags().StringVar(&cfg.SmallCache, "small-cache", "", "In-memory node cache snapshot (for small extracts)")
	rootCmd.MarkFlagsMutuallyExclusive("planet-cache", "small-cache")

	// Logging and metrics flags
	rootCmd.PersistentFlags().StringVar(&cfg.LogFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&cfg.MetricsInterval, "metrics-interval", cfg.MetricsInterval, "Interval for system metrics logging, 0 disables (e.g., 10s, 1m)")
	rootCmd.PersistentFlags().StringVar(&cfg.MetricsListen, "metrics-listen", "", "Address for the Prometheus /metrics endpoint (e.g., :9100)")
}

// applyConfigFile loads the YAML file into cfg and then re-applies every flag
// given on the command line so explicit flags win over file values
func applyConfigFile(flags *pflag.FlagSet, path string) error {
	explicit := map[string]string{}
	flags.Visit(func(f *pflag.Flag) {
		explicit[f.Name] = f.Value.String()
	})

	if err := cfg.LoadFile(path); err != nil {
		return err
	}

	for name, value := range explicit {
		if err := flags.Set(name, value); err != nil {
			return fmt.Errorf("failed to re-apply flag --%s: %w", name, err)
		}
	}
	return nil
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	logger.Sync()
	os.Exit(1)
}
