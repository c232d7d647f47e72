package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"drive-csv-ingest/drive"
	"drive-csv-ingest/models"
	"drive-csv-ingest/storage"
	"drive-csv-ingest/utils"
)

// ErrNothingToIngest is returned when the folder holds no eligible file.
var ErrNothingToIngest = errors.New("no CSV files found in folder")

// TokenProvider yields a bearer token for the file source.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// FileSource lists and downloads remote files.
type FileSource interface {
	ListFiles(ctx context.Context, token, folderID string) ([]models.RemoteFile, error)
	File(ctx context.Context, token, fileID string) (models.RemoteFile, error)
	Download(ctx context.Context, token string, file models.RemoteFile) ([]byte, error)
}

// StatsSource reports on the destination table after a run.
type StatsSource interface {
	Stats(ctx context.Context, topN int) (*models.TableStats, error)
}

// Options selects what a run ingests.
type Options struct {
	FolderID string
	// FileID bypasses the folder listing when set.
	FileID string
	DryRun bool
	TopN   int
}

// PipelineDeps are the collaborators of a Pipeline. Tokens, Files and
// Writer are required; the rest fall back to defaults.
type PipelineDeps struct {
	Tokens   TokenProvider
	Files    FileSource
	Writer   storage.ListingWriter
	Parser   *CSVParser
	Mapper   *RecordMapper
	Rejects  storage.RejectWriter
	Stats    StatsSource
	Observer Observer
	Insights *InsightService
	Retry    utils.RetryConfig
	Logger   *utils.Logger
}

// Result is the outcome of one run.
// Processed + Skipped == Mapped, and Mapped + Rejected + Malformed == TotalRows.
type Result struct {
	File          *models.RemoteFile
	Bytes         int
	TotalRows     int
	Mapped        int
	Rejected      int
	Malformed     int
	Processed     int
	Skipped       int
	Inserted      int
	Ignored       int
	Duplicates    int
	FailedBatches int
	// TableSize is -1 when no datastore was consulted.
	TableSize int
	TopMakes  []models.MakeCount
	Insights  *InsightReport
	DryRun    bool
}

// Pipeline fetches the newest CSV from a folder and writes it to the store.
type Pipeline struct {
	deps PipelineDeps
	opts Options
}

// NewPipeline wires deps into a Pipeline.
func NewPipeline(deps PipelineDeps, opts Options) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = utils.NewDiscardLogger()
	}
	if deps.Parser == nil {
		deps.Parser = NewCSVParser(deps.Logger)
	}
	if deps.Mapper == nil {
		deps.Mapper = NewRecordMapper(deps.Logger)
	}
	if deps.Observer == nil {
		deps.Observer = NewLogObserver(deps.Logger)
	}
	if deps.Insights == nil {
		deps.Insights = NewInsightService(deps.Logger)
	}
	if deps.Retry.Logger == nil {
		deps.Retry.Logger = deps.Logger
	}
	if opts.TopN <= 0 {
		opts.TopN = 5
	}
	if w, ok := deps.Writer.(interface{ SetObserver(storage.BatchObserver) }); ok {
		w.SetObserver(deps.Observer)
	}
	return &Pipeline{deps: deps, opts: opts}
}

// Run executes one ingestion. Errors before the first row is written are
// returned; per-row and per-batch failures are only counted. A cancelled ctx
// stops the run and is returned along with the partial Result.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{TableSize: -1, DryRun: p.opts.DryRun}

	token, err := p.token(ctx)
	if err != nil {
		return res, err
	}

	file, err := p.selectFile(ctx, token)
	if err != nil {
		return res, err
	}
	res.File = &file
	p.deps.Observer.FileSelected(file)

	var content []byte
	err = p.deps.Retry.Do(ctx, "download "+file.ID, func() error {
		var derr error
		content, derr = p.deps.Files.Download(ctx, token, file)
		return retryable(derr)
	})
	if err != nil {
		return res, err
	}
	res.Bytes = len(content)
	p.deps.Observer.Downloaded(file, len(content))

	doc, err := p.deps.Parser.Parse(content)
	if err != nil {
		return res, err
	}
	p.deps.Observer.Parsed(doc.Headers, doc.Len())

	if err := p.ingest(ctx, doc, res); err != nil {
		p.closeRejects()
		return res, err
	}
	p.finish(ctx, res)

	p.deps.Observer.Finished(res)
	return res, nil
}

func (p *Pipeline) token(ctx context.Context) (string, error) {
	var token string
	err := p.deps.Retry.Do(ctx, "token exchange", func() error {
		var terr error
		token, terr = p.deps.Tokens.Token(ctx)
		return retryable(terr)
	})
	return token, err
}

func (p *Pipeline) selectFile(ctx context.Context, token string) (models.RemoteFile, error) {
	var file models.RemoteFile

	if p.opts.FileID != "" {
		err := p.deps.Retry.Do(ctx, "file lookup", func() error {
			var ferr error
			file, ferr = p.deps.Files.File(ctx, token, p.opts.FileID)
			return retryable(ferr)
		})
		return file, err
	}

	var files []models.RemoteFile
	err := p.deps.Retry.Do(ctx, "folder listing", func() error {
		var lerr error
		files, lerr = p.deps.Files.ListFiles(ctx, token, p.opts.FolderID)
		return retryable(lerr)
	})
	if err != nil {
		return file, err
	}
	if len(files) == 0 {
		return file, ErrNothingToIngest
	}

	p.deps.Logger.Debug("[pipeline] %d candidate files in folder", len(files))
	return files[0], nil
}

// ingest feeds every row to the writer. It stops feeding once ctx is done
// and then returns the context error with the partial tallies in res.
func (p *Pipeline) ingest(ctx context.Context, doc *CSVDocument, res *Result) error {
	binding := p.deps.Mapper.Bind(doc.Headers)
	seen := utils.NewKeySet()

	rows := doc.Rows()
	for ctx.Err() == nil {
		row, err := rows.Next()
		if err == io.EOF {
			break
		}
		res.TotalRows++

		if err != nil {
			res.Malformed++
			p.reject(doc, row, err.Error())
			continue
		}

		listing, rej := binding.Map(row)
		if rej != nil {
			res.Rejected++
			p.reject(doc, row, rej.Reason)
			continue
		}

		res.Mapped++
		if !seen.Add(listing.AdID) {
			res.Duplicates++
		}
		p.deps.Insights.Observe(listing)
		p.deps.Writer.Add(ctx, listing)
	}
	p.deps.Writer.Flush(ctx)

	if repeated := seen.Repeated(); len(repeated) > 0 {
		p.deps.Logger.Warn("[pipeline] %d of %d distinct ad_id values appear more than once in the file; only the first is kept",
			len(repeated), seen.Size())
	}

	wr := p.deps.Writer.Result()
	res.Processed = wr.Processed
	res.Skipped = wr.Skipped
	res.Inserted = wr.Inserted
	res.Ignored = wr.Ignored
	res.FailedBatches = wr.FailedBatches
	res.Insights = p.deps.Insights.Report()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("ingestion interrupted after %d of %d rows: %w", res.TotalRows, doc.Len(), err)
	}
	return nil
}

func (p *Pipeline) reject(doc *CSVDocument, row models.RawRow, reason string) {
	p.deps.Observer.RowRejected(row.Line, reason)
	if p.deps.Rejects == nil {
		return
	}
	if err := p.deps.Rejects.WriteReject(row.Line, reason, doc.Headers, row.Cells); err != nil {
		p.deps.Logger.Warn("[pipeline] Could not record rejected line %d: %v", row.Line, err)
	}
}

func (p *Pipeline) closeRejects() {
	if p.deps.Rejects == nil {
		return
	}
	if err := p.deps.Rejects.Close(); err != nil {
		p.deps.Logger.Warn("[pipeline] Closing rejects file: %v", err)
	}
}

func (p *Pipeline) finish(ctx context.Context, res *Result) {
	p.closeRejects()
	if p.deps.Stats == nil || p.opts.DryRun {
		return
	}
	stats, err := p.deps.Stats.Stats(ctx, p.opts.TopN)
	if err != nil {
		p.deps.Logger.Warn("[pipeline] Table statistics unavailable: %v", err)
		return
	}
	res.TableSize = stats.Total
	res.TopMakes = stats.TopMakes
}

// retryable marks errors that another attempt cannot fix as permanent.
func retryable(err error) error {
	if err == nil || drive.Retryable(err) {
		return err
	}
	return utils.Permanent(err)
}

// Summary is a one-line description of res for logs and exit messages.
func (r *Result) Summary() string {
	return fmt.Sprintf("processed=%d skipped=%d rejected=%d malformed=%d duplicates=%d",
		r.Processed, r.Skipped, r.Rejected, r.Malformed, r.Duplicates)
}
