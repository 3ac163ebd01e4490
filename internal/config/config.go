package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Element scheduling modes
const (
	// ScheduleUnordered dispatches element groups as soon as a worker is free.
	// A way may be processed before the group holding its nodes.
	ScheduleUnordered = "unordered"
	// ScheduleNodesFirst waits for all in-flight groups to finish before the
	// first group carrying ways or relations is dispatched.
	ScheduleNodesFirst = "nodes-first"
)

// Config holds the global configuration for a conversion run
type Config struct {
	// Input settings
	InputFile string `yaml:"input"`

	// Output settings
	OutputDir     string `yaml:"output_dir"`
	MaxFileSizeMB int    `yaml:"max_file_size_mb"` // Approximate uncompressed size per output file

	// Node cache settings (at most one of PlanetCache / SmallCache)
	PlanetCache   string `yaml:"planet_cache"`    // Dense file-backed cache for full planet runs
	SmallCache    string `yaml:"small_cache"`     // Sparse cache snapshot for small extracts
	CachePageSize int64  `yaml:"cache_page_size"` // Growth step of the dense cache file in bytes

	// Processing settings
	Workers       int    `yaml:"workers"`
	BatchSize     int    `yaml:"batch_size"`     // Statements per batch sent to the writer
	GroupSize     int    `yaml:"group_size"`     // Elements per group handed to one worker
	ChannelBuffer int    `yaml:"channel_buffer"` // Batches buffered between workers and writer
	Schedule      string `yaml:"schedule"`
	LuaScript     string `yaml:"lua_script"` // Optional tag hook

	// Logging and metrics
	Verbose         bool          `yaml:"verbose"`
	LogFile         string        `yaml:"log_file"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
	MetricsListen   string        `yaml:"metrics_listen"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxFileSizeMB:   100,
		CachePageSize:   10 * 1024 * 1024 * 1024,
		Workers:         runtime.NumCPU(),
		BatchSize:       1024,
		GroupSize:       8000,
		Schedule:        ScheduleUnordered,
		MetricsInterval: 0, // Disabled unless requested
	}
}

// LoadFile overlays the YAML document at path onto c.
// Keys missing from the document keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return nil
}

// MaxFileSize returns the rotation threshold in bytes
func (c *Config) MaxFileSize() int {
	return c.MaxFileSizeMB * 1024 * 1024
}

// ChannelCapacity returns the number of batches buffered between workers and writer
func (c *Config) ChannelCapacity() int {
	if c.ChannelBuffer > 0 {
		return c.ChannelBuffer
	}
	return c.Workers * 4
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.InputFile == "" {
		return fmt.Errorf("input file is required")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	info, err := os.Stat(c.OutputDir)
	if err != nil {
		return fmt.Errorf("output directory %q does not exist", c.OutputDir)
	}
	if !info.IsDir() {
		return fmt.Errorf("output path %q is not a directory", c.OutputDir)
	}
	if c.PlanetCache != "" && c.SmallCache != "" {
		return fmt.Errorf("planet cache and small cache are mutually exclusive")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1")
	}
	if c.GroupSize < 1 {
		return fmt.Errorf("group size must be at least 1")
	}
	if c.MaxFileSizeMB < 1 {
		return fmt.Errorf("max file size must be at least 1 MB")
	}
	if c.PlanetCache != "" && c.CachePageSize < 8 {
		return fmt.Errorf("cache page size must be at least 8 bytes")
	}
	switch c.Schedule {
	case ScheduleUnordered, ScheduleNodesFirst:
	default:
		return fmt.Errorf("unknown schedule %q (expected %s or %s)", c.Schedule, ScheduleUnordered, ScheduleNodesFirst)
	}
	return nil
}
