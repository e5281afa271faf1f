package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/RustyYato/search-posts/pkg/errors"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.Width != 1 {
		t.Errorf("Width = %d, want 1", cfg.Pipeline.Width)
	}
	if cfg.Pipeline.SpillThreshold != 1_000_000 {
		t.Errorf("SpillThreshold = %d, want 1000000", cfg.Pipeline.SpillThreshold)
	}
	if cfg.Report.Output != "out.txt" {
		t.Errorf("Output = %q, want out.txt", cfg.Report.Output)
	}
	if cfg.Report.BodyLimit != 1_000_000 {
		t.Errorf("BodyLimit = %d, want 1000000", cfg.Report.BodyLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v", err)
	}
}

func TestLoad_FileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ngrams.yaml")
	body := []byte(`
pipeline:
  width: 3
  workers: 2
  spillCompression: zstd
report:
  output: report.tsv
  sortTies: true
export:
  retry:
    initialDelay: 1s
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NG_WORKERS", "6")
	t.Setenv("NG_OUTPUT", "env.tsv")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.Width != 3 {
		t.Errorf("Width = %d, want 3", cfg.Pipeline.Width)
	}
	if cfg.Pipeline.Workers != 6 {
		t.Errorf("Workers = %d, want env override 6", cfg.Pipeline.Workers)
	}
	if cfg.Report.Output != "env.tsv" {
		t.Errorf("Output = %q, want env.tsv", cfg.Report.Output)
	}
	if !cfg.Report.SortTies {
		t.Error("SortTies = false, want true")
	}
	if cfg.Pipeline.SpillCompression != "zstd" {
		t.Errorf("SpillCompression = %q, want zstd", cfg.Pipeline.SpillCompression)
	}
	if cfg.Export.Retry.InitialDelay != time.Second {
		t.Errorf("InitialDelay = %v, want 1s", cfg.Export.Retry.InitialDelay)
	}
	// Untouched sections keep their defaults.
	if cfg.Pipeline.FoldChunk != 8 {
		t.Errorf("FoldChunk = %d, want default 8", cfg.Pipeline.FoldChunk)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load() error = nil, want error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero width", func(c *Config) { c.Pipeline.Width = 0 }},
		{"width too large", func(c *Config) { c.Pipeline.Width = MaxWidth + 1 }},
		{"no workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"no spill workers", func(c *Config) { c.Pipeline.SpillWorkers = 0 }},
		{"zero threshold", func(c *Config) { c.Pipeline.SpillThreshold = 0 }},
		{"zero depth", func(c *Config) { c.Pipeline.MaxDepth = 0 }},
		{"empty output", func(c *Config) { c.Report.Output = "" }},
		{"bad compression", func(c *Config) { c.Pipeline.SpillCompression = "lzma" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, apperrors.ErrConfig) {
				t.Errorf("Validate() = %v, want ErrConfig", err)
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	p := Default().Export.Postgres
	want := "host=localhost port=5432 user=ngrams password= dbname=ngrams sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestLoad_SampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "ngramcount.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Pipeline.Width != 3 || cfg.Pipeline.SpillCompression != "zstd" {
		t.Errorf("pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Export.Redis.TTL != 24*time.Hour || cfg.Export.ObjectStore.Prefix != "runs/" {
		t.Errorf("export = %+v", cfg.Export)
	}
}
