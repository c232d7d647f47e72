package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"drive-csv-ingest/config"
	"drive-csv-ingest/drive"
	"drive-csv-ingest/utils"
)

type rootOptions struct {
	configDir string
	fileID    string
	strict    bool
	dryRun    bool
}

// errReported marks an error that was already logged by the command.
var errReported = errors.New("command failed")

// Execute runs the command line and returns a non-nil error when the
// process should exit with status 1.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// After the first signal the default handlers are restored, so a second
	// one terminates the process immediately.
	go func() {
		<-ctx.Done()
		stop()
	}()

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errReported) {
		utils.NewLogger().Error("%v", err)
	}
	return err
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "drive-csv-ingest",
		Short: "Ingest the newest CSV from a Google Drive folder into PostgreSQL",
		Long: "Fetches the most recently modified CSV (or Google Sheet) from the configured\n" +
			"Drive folder and inserts its rows into the cars table, skipping ad_id values\n" +
			"that are already present. Running without a subcommand is the same as fetch.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(c *cobra.Command, _ []string) error {
			return runFetch(c.Context(), opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.configDir, "config", "", "Directory holding app.yaml (default: working directory)")
	addFetchFlags(root, opts)

	root.AddCommand(newFetchCmd(opts), newDebugCmd(opts))
	return root
}

// loadConfig reads and validates configuration, applying flag overrides.
func loadConfig(opts *rootOptions) (*config.Config, *utils.Logger, error) {
	cfg, err := config.Load(opts.configDir)
	if err != nil {
		utils.NewLogger().Error("Configuration: %v", err)
		return nil, nil, errReported
	}

	logger := utils.NewLoggerWithOptions(utils.LoggerOptions{
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
		SeqURL:      cfg.SeqURL,
		SeqToken:    cfg.SeqToken,
	})

	if opts.strict {
		cfg.StrictMode = true
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("%v", err)
		return nil, nil, errReported
	}
	return cfg, logger, nil
}

// newDriveClients builds the token provider and Drive client sharing one
// timeout-bounded HTTP client.
func newDriveClients(cfg *config.Config) (*drive.TokenProvider, *drive.Client) {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	tokens := drive.NewTokenProvider(cfg.CredentialsPath, cfg.TokenURL, cfg.DriveScope, httpClient)
	files := drive.NewClient(drive.ClientOptions{
		Endpoint:    cfg.DriveEndpoint,
		PageSize:    cfg.PageSize,
		TabularOnly: cfg.TabularOnly,
		Timeout:     cfg.HTTPTimeout,
		HTTPClient:  httpClient,
	})
	return tokens, files
}
