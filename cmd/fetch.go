package cmd

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"drive-csv-ingest/services"
	"drive-csv-ingest/storage"
	"drive-csv-ingest/utils"
)

func newFetchCmd(opts *rootOptions) *cobra.Command {
	c := &cobra.Command{
		Use:     "fetch",
		Aliases: []string{"fetch-recent-csv"},
		Short:   "Fetch the most recent CSV from the Drive folder and store its rows",
		Args:    cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runFetch(c.Context(), opts)
		},
	}
	addFetchFlags(c, opts)
	return c
}

func addFetchFlags(c *cobra.Command, opts *rootOptions) {
	c.Flags().StringVar(&opts.fileID, "file-id", "", "Ingest this Drive file id instead of the newest file in the folder")
	c.Flags().BoolVar(&opts.strict, "strict", false, "Reject rows with a wrong cell count or unparseable typed values")
	c.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Parse and map without connecting to the database")
}

func runFetch(ctx context.Context, opts *rootOptions) error {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger.Info("=== Drive CSV ingestion starting ===")
	logger.Info("Config: folder %s | batch size %d | strict %v | dry run %v | timeout %s | attempts %d",
		cfg.FolderID, cfg.BatchSize, cfg.StrictMode, opts.dryRun, cfg.HTTPTimeout, cfg.HTTPMaxAttempts)

	tokens, files := newDriveClients(cfg)

	deps := services.PipelineDeps{
		Tokens:   tokens,
		Files:    files,
		Mapper:   services.NewRecordMapper(logger).WithStrict(cfg.StrictMode),
		Insights: services.NewInsightService(logger),
		Observer: services.NewLogObserver(logger),
		Retry:    utils.RetryConfig{MaxAttempts: cfg.HTTPMaxAttempts, BaseDelay: time.Second, Logger: logger},
		Logger:   logger,
	}

	if opts.dryRun {
		deps.Writer = &storage.DiscardWriter{}
	} else {
		store, err := storage.NewPostgresStore(ctx, cfg, logger)
		if err != nil {
			logger.Error("Failed to connect to PostgreSQL: %v", err)
			return errReported
		}
		defer store.Close()

		deps.Writer = storage.NewBatchWriter(store, cfg.BatchSize, logger)
		deps.Stats = store
	}

	var rejects *storage.CSVRejectWriter
	if cfg.RejectsCSVPath != "" {
		rejects = storage.NewCSVRejectWriter(cfg.RejectsCSVPath)
		deps.Rejects = rejects
	}

	pipeline := services.NewPipeline(deps, services.Options{
		FolderID: cfg.FolderID,
		FileID:   opts.fileID,
		DryRun:   opts.dryRun,
	})

	res, err := pipeline.Run(ctx)
	if errors.Is(err, services.ErrNothingToIngest) {
		logger.Warn("No CSV files found in folder %s; nothing to do", cfg.FolderID)
		return nil
	}
	if err != nil {
		logger.Error("Ingestion aborted: %v", err)
		if res != nil && res.TotalRows > 0 {
			logger.Warn("Partial run: %s", res.Summary())
		}
		return errReported
	}

	deps.Insights.Print(os.Stdout, res)
	if rejects != nil && rejects.Count() > 0 {
		logger.Info("%d rejected rows written to %s", rejects.Count(), rejects.Path())
	}
	logger.Info("Finished: %s", res.Summary())
	return nil
}
