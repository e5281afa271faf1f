package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/RustyYato/search-posts/internal/pipeline"
	"github.com/RustyYato/search-posts/pkg/config"
	apperrors "github.com/RustyYato/search-posts/pkg/errors"
	"github.com/RustyYato/search-posts/pkg/logger"
	"github.com/RustyYato/search-posts/pkg/metrics"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("ngramcount failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "ngramcount",
		Usage:     "count word n-grams across JSON post documents",
		ArgsUsage: "<path>...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				EnvVars: []string{"NG_CONFIG"},
			},
			&cli.IntFlag{
				Name:    "width",
				Aliases: []string{"n"},
				Usage:   "number of words per phrase",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "concurrent aggregation tasks",
			},
			&cli.IntFlag{
				Name:  "spill-workers",
				Usage: "concurrent spill writers",
			},
			&cli.IntFlag{
				Name:  "spill-threshold",
				Usage: "distinct phrases a map may hold before it is spilled",
			},
			&cli.StringFlag{
				Name:  "spill-compression",
				Usage: "spill body compression (none, zstd)",
			},
			&cli.StringFlag{
				Name:  "temp-dir",
				Usage: "parent directory for spill files",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "report file path",
			},
			&cli.BoolFlag{
				Name:  "sort-ties",
				Usage: "sort phrases of equal count lexicographically",
			},
			&cli.IntFlag{
				Name:  "metrics-port",
				Usage: "serve Prometheus metrics on this port for the duration of the run",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log at debug level",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	paths := c.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("%w: no input paths given", apperrors.ErrConfig)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []pipeline.Option
	if cfg.Metrics.Enabled {
		m := metrics.New()
		shutdown := metrics.StartServer(m, cfg.Metrics.Port)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				slog.Warn("metrics server shutdown", "error", err)
			}
		}()
		opts = append(opts, pipeline.WithMetrics(m))
	}

	res, err := pipeline.New(cfg, opts...).Run(ctx, paths)
	if err != nil {
		return err
	}
	slog.Info("done",
		"output", res.Output,
		"files", res.Stats.Files,
		"processed", res.Stats.Processed,
		"skipped", res.Stats.Skipped,
		"no_content", res.Stats.NoContent,
		"spills", res.Stats.Spills,
		"distinct", res.Distinct,
		"elapsed", res.Elapsed,
	)
	return nil
}

// applyFlags overrides config values with the flags given on the command line.
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("width") {
		cfg.Pipeline.Width = c.Int("width")
	}
	if c.IsSet("workers") {
		cfg.Pipeline.Workers = c.Int("workers")
	}
	if c.IsSet("spill-workers") {
		cfg.Pipeline.SpillWorkers = c.Int("spill-workers")
	}
	if c.IsSet("spill-threshold") {
		cfg.Pipeline.SpillThreshold = c.Int("spill-threshold")
	}
	if c.IsSet("spill-compression") {
		cfg.Pipeline.SpillCompression = c.String("spill-compression")
	}
	if c.IsSet("temp-dir") {
		cfg.Pipeline.TempDir = c.String("temp-dir")
	}
	if c.IsSet("output") {
		cfg.Report.Output = c.String("output")
	}
	if c.IsSet("sort-ties") {
		cfg.Report.SortTies = c.Bool("sort-ties")
	}
	if c.IsSet("metrics-port") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Port = c.Int("metrics-port")
	}
	if c.Bool("verbose") {
		cfg.Logging.Level = "debug"
	}
}
