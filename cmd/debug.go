package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"drive-csv-ingest/models"
)

func newDebugCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "debug",
		Short: "Check credentials, token exchange and folder access, and list the folder",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runDebug(c.Context(), opts, os.Stdout)
		},
	}
}

func runDebug(ctx context.Context, opts *rootOptions, out io.Writer) error {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}
	tokens, files := newDriveClients(cfg)

	fmt.Fprintf(out, "Credentials file : %s\n", cfg.CredentialsPath)
	fmt.Fprintf(out, "Folder id        : %s\n", cfg.FolderID)

	token, err := tokens.Token(ctx)
	if err != nil {
		logger.Error("Token exchange failed: %v", err)
		return errReported
	}
	fmt.Fprintf(out, "Access token     : obtained (%d chars)\n", len(token))

	folder, err := files.File(ctx, token, cfg.FolderID)
	if err != nil {
		logger.Error("Folder %s is not accessible: %v", cfg.FolderID, err)
		return errReported
	}
	fmt.Fprintf(out, "Folder name      : %s\n\n", folder.Name)

	all, err := files.ListAllFiles(ctx, token, cfg.FolderID)
	if err != nil {
		logger.Error("Listing folder failed: %v", err)
		return errReported
	}
	printFiles(out, "All files in folder", all)

	candidates, err := files.ListFiles(ctx, token, cfg.FolderID)
	if err != nil {
		logger.Error("Listing CSV files failed: %v", err)
		return errReported
	}
	printFiles(out, "Ingestion candidates (newest first)", candidates)

	if len(candidates) == 0 {
		logger.Warn("No CSV files or Google Sheets in folder %s", cfg.FolderID)
	}
	return nil
}

func printFiles(out io.Writer, title string, files []models.RemoteFile) {
	fmt.Fprintf(out, "%s: %d\n", title, len(files))
	for i, f := range files {
		fmt.Fprintf(out, "  %2d. %-40s %-45s %s  %s\n", i+1,
			truncateName(f.Name, 40), f.MimeType, f.ModifiedTime.Format("2006-01-02 15:04:05"), f.ID)
	}
	fmt.Fprintln(out)
}

// truncateName shortens s to at most max runes.
func truncateName(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
