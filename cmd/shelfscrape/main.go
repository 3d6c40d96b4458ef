package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/use-agent/shelfscrape/config"
	"github.com/use-agent/shelfscrape/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := newRootCmd(config.Default()).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "shelfscrape:", err)
		os.Exit(1)
	}
}

// newRootCmd builds the single command: shelfscrape <url> [--out DIR].
func newRootCmd(cfg *config.Config) *cobra.Command {
	outDir := cfg.Output.BaseDir

	cmd := &cobra.Command{
		Use:   "shelfscrape <url>",
		Short: "Scrape the product listing at <url> into a CSV file and a folder of PNG images.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// ── 1. Validate configuration and set up logging ───────────
			if err := cfg.Validate(); err != nil {
				return err
			}
			initLogger(cfg.Log)
			slog.Info("shelfscrape starting", "url", args[0], "out", outDir)

			// ── 2. Run fetch → extract → write ─────────────────────────
			summary, err := pipeline.New(cfg).Run(cmd.Context(), args[0], outDir)
			if err != nil {
				return err
			}

			slog.Info("export complete",
				"products", summary.Products,
				"images_saved", summary.ImagesSaved,
				"images_failed", summary.ImagesFailed,
				"images_skipped", summary.ImagesSkipped,
				"csv", summary.CSVPath,
				"images_dir", summary.ImagesDir,
			)
			return nil
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	cmd.Flags().StringVar(&outDir, "out", cfg.Output.BaseDir, "output directory for products.csv and images/")
	return cmd
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
