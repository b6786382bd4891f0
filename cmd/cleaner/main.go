package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jaki95/dataset-cleaner/config"
	"github.com/jaki95/dataset-cleaner/internal/job"
	"github.com/jaki95/dataset-cleaner/internal/service"
	"github.com/jaki95/dataset-cleaner/internal/storage"
	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"
)

func main() {
	input := flag.String("input", "", "Path to the CSV dataset to clean (required)")
	configPath := flag.String("config", "./config/config.yaml", "Path to the configuration file")
	outputDir := flag.String("output", "", "Directory for the cleaned dataset and report (overrides config)")
	name := flag.String("name", "", "Dataset name (defaults to the file name)")
	knowledgeURL := flag.String("knowledge-url", "", "Domain knowledge service URL (overrides config)")
	workers := flag.Int("workers", 0, "Maximum concurrent column tasks per stage (overrides config)")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "Missing required flag: -input")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg.Storage.Type = "local"
	if *outputDir != "" {
		cfg.Storage.OutputDir = *outputDir
	}
	if *knowledgeURL != "" {
		cfg.Knowledge.URL = *knowledgeURL
	}
	if *workers > 0 {
		cfg.Pipeline.Workers = *workers
	}
	if *name == "" {
		*name = strings.TrimSuffix(filepath.Base(*input), filepath.Ext(*input))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := run(cfg, *input, *name, logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file, falling back to defaults and
// environment overrides when the file does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Load("")
	}
	return cfg, err
}

func run(cfg *config.Config, input, name string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewLocalFileStorage(cfg.Storage.OutputDir)
	if err != nil {
		return err
	}
	defer store.Close()

	processor := service.NewProcessor(cfg, service.Options{Storage: store, Logger: logger})

	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", input, err)
	}
	jobID, err := processor.CreateJobFromCSV(name, f)
	f.Close()
	if err != nil {
		return err
	}

	events, err := processor.SubscribeProgress(context.Background(), jobID)
	if err != nil {
		return err
	}
	if err := processor.StartProcessing(jobID); err != nil {
		return err
	}

	bar := progressbar.NewOptions(
		100,
		progressbar.OptionSetWriter(ansi.NewAnsiStdout()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetDescription("[cyan]Cleaning[reset] "+name),
	)

	cancelled := ctx.Done()
loop:
	for {
		select {
		case e, ok := <-events:
			if !ok {
				break loop
			}
			if e.Stage != "" {
				bar.Describe(fmt.Sprintf("[cyan][%s][reset] %s", e.Stage, name))
			}
			_ = bar.Set(int(e.Progress))
		case <-cancelled:
			cancelled = nil
			if err := processor.Cancel(jobID); err != nil && !errors.Is(err, job.ErrInvalidState) {
				logger.Warn("Failed to cancel job", "jobId", jobID, "error", err)
			}
		}
	}
	_ = bar.Finish()
	fmt.Println()

	if err := processor.Shutdown(context.Background()); err != nil {
		return err
	}

	status, err := processor.GetStatus(jobID)
	if err != nil {
		return err
	}
	if status.Status != job.StatusCompleted {
		return fmt.Errorf("cleaning %s failed: %s", input, status.Error)
	}

	fmt.Println(status.Report.Summary)
	for _, artifact := range status.Artifacts {
		fmt.Println("Wrote", artifact)
	}
	return nil
}
