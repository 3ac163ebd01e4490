package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.InputFile = "monaco.osm.pbf"
	cfg.OutputDir = t.TempDir()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", modify: func(c *Config) {}},
		{name: "missing input", modify: func(c *Config) { c.InputFile = "" }, wantErr: true},
		{name: "missing output dir", modify: func(c *Config) { c.OutputDir = filepath.Join(c.OutputDir, "nope") }, wantErr: true},
		{name: "both caches", modify: func(c *Config) { c.PlanetCache = "a"; c.SmallCache = "b" }, wantErr: true},
		{name: "zero workers", modify: func(c *Config) { c.Workers = 0 }, wantErr: true},
		{name: "zero batch", modify: func(c *Config) { c.BatchSize = 0 }, wantErr: true},
		{name: "zero group", modify: func(c *Config) { c.GroupSize = 0 }, wantErr: true},
		{name: "zero file size", modify: func(c *Config) { c.MaxFileSizeMB = 0 }, wantErr: true},
		{name: "nodes-first schedule", modify: func(c *Config) { c.Schedule = ScheduleNodesFirst }},
		{name: "unknown schedule", modify: func(c *Config) { c.Schedule = "random" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateOutputIsFile(t *testing.T) {
	cfg := validConfig(t)
	file := filepath.Join(cfg.OutputDir, "file")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg.OutputDir = file
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-directory output")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "osm2rdf.yaml")
	doc := `
workers: 3
max_file_size_mb: 250
schedule: nodes-first
metrics_interval: 10s
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", cfg.Workers)
	}
	if cfg.MaxFileSizeMB != 250 {
		t.Errorf("expected 250 MB, got %d", cfg.MaxFileSizeMB)
	}
	if cfg.Schedule != ScheduleNodesFirst {
		t.Errorf("expected nodes-first, got %s", cfg.Schedule)
	}
	if cfg.MetricsInterval != 10*time.Second {
		t.Errorf("expected 10s, got %s", cfg.MetricsInterval)
	}
	// Untouched keys keep defaults
	if cfg.BatchSize != 1024 {
		t.Errorf("expected default batch size 1024, got %d", cfg.BatchSize)
	}
}

func TestChannelCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 5
	if got := cfg.ChannelCapacity(); got != 20 {
		t.Errorf("expected 20, got %d", got)
	}
	cfg.ChannelBuffer = 7
	if got := cfg.ChannelCapacity(); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
	cfg.MaxFileSizeMB = 2
	if got := cfg.MaxFileSize(); got != 2*1024*1024 {
		t.Errorf("expected %d, got %d", 2*1024*1024, got)
	}
}
