package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/upb/smart-retail-assistant/app"
	"github.com/upb/smart-retail-assistant/config"
	"github.com/upb/smart-retail-assistant/internal/observability"
	"github.com/upb/smart-retail-assistant/services/ingestion"
	"go.uber.org/zap"
)

type options struct {
	csvPath    string
	limit      int
	initSchema bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := config.New(ctx)
	if err != nil {
		return err
	}

	opts, err := parseFlags(args, cfg.Ingestion)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return err
	}
	defer logger.Sync()

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close(context.Background())

	report, err := ingestFile(ctx, deps, opts)
	if err != nil {
		return err
	}
	printReport(out, report)
	return nil
}

func parseFlags(args []string, defaults config.IngestionConfig) (options, error) {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)

	var opts options
	fs.StringVar(&opts.csvPath, "csv", defaults.CSVPath, "path to the product catalog CSV")
	fs.IntVar(&opts.limit, "limit", defaults.Limit, "maximum number of rows to load, 0 for all")
	fs.BoolVar(&opts.initSchema, "init-schema", false, "create the products table or collection before loading")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.csvPath == "" {
		return options{}, fmt.Errorf("-csv is required")
	}
	return opts, nil
}

func ingestFile(ctx context.Context, deps *app.Dependencies, opts options) (*ingestion.Report, error) {
	if opts.initSchema {
		if err := deps.Store.EnsureSchema(ctx, deps.Config.Embedding.Dimensions); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		deps.Logger.Info("catalog schema ready", zap.Int("dimensions", deps.Config.Embedding.Dimensions))
	}

	records, err := ingestion.ReadCSVFile(opts.csvPath, opts.limit)
	if err != nil {
		return nil, err
	}
	deps.Logger.Info("catalog file read",
		zap.String("path", opts.csvPath),
		zap.Int("records", len(records)))

	return deps.Pipeline.Ingest(ctx, records), nil
}

func printReport(out io.Writer, report *ingestion.Report) {
	fmt.Fprintf(out, "batch %s: %d inserted, %d skipped of %d records in %s\n",
		report.BatchID, report.Inserted, report.Skipped, report.Total, report.Duration.Round(time.Millisecond))
	for _, e := range report.Errors {
		fmt.Fprintf(out, "  row %d (%s): %s\n", e.Row, e.Name, e.Reason)
	}
}
