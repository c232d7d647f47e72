package services

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"drive-csv-ingest/drive"
	"drive-csv-ingest/models"
	"drive-csv-ingest/storage"
	"drive-csv-ingest/utils"
)

type fakeTokens struct {
	err   error
	calls int
}

func (f *fakeTokens) Token(context.Context) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "tok", nil
}

type fakeFiles struct {
	files    []models.RemoteFile
	content  map[string][]byte
	listErrs []error

	listCalls     int
	fileCalls     int
	downloadCalls int
	downloaded    []string
}

func (f *fakeFiles) ListFiles(_ context.Context, token, folderID string) ([]models.RemoteFile, error) {
	f.listCalls++
	if len(f.listErrs) > 0 {
		err := f.listErrs[0]
		f.listErrs = f.listErrs[1:]
		return nil, err
	}
	return f.files, nil
}

func (f *fakeFiles) File(_ context.Context, token, fileID string) (models.RemoteFile, error) {
	f.fileCalls++
	for _, rf := range f.files {
		if rf.ID == fileID {
			return rf, nil
		}
	}
	return models.RemoteFile{}, &drive.DownloadError{FileID: fileID, StatusCode: 404, Err: errors.New("not found")}
}

func (f *fakeFiles) Download(_ context.Context, token string, file models.RemoteFile) ([]byte, error) {
	f.downloadCalls++
	f.downloaded = append(f.downloaded, file.ID)
	return f.content[file.ID], nil
}

// memStore is an insert-ignore table keyed on ad_id.
type memStore struct {
	rows       map[string]models.CarListing
	statsCalls int
}

func newMemStore() *memStore { return &memStore{rows: make(map[string]models.CarListing)} }

func (s *memStore) Begin(context.Context) (storage.Tx, error) {
	return &memTx{store: s, staged: make(map[string]models.CarListing)}, nil
}

func (s *memStore) Stats(_ context.Context, topN int) (*models.TableStats, error) {
	s.statsCalls++
	counts := make(map[string]int)
	for _, l := range s.rows {
		if l.Make != nil {
			counts[*l.Make]++
		}
	}
	stats := &models.TableStats{Total: len(s.rows)}
	for _, lc := range sortedCounts(counts) {
		stats.TopMakes = append(stats.TopMakes, models.MakeCount{Make: lc.label, Count: lc.count})
	}
	if len(stats.TopMakes) > topN {
		stats.TopMakes = stats.TopMakes[:topN]
	}
	return stats, nil
}

type memTx struct {
	store  *memStore
	staged map[string]models.CarListing
}

func (t *memTx) InsertIgnore(_ context.Context, l *models.CarListing) (bool, error) {
	if _, ok := t.store.rows[l.AdID]; ok {
		return false, nil
	}
	if _, ok := t.staged[l.AdID]; ok {
		return false, nil
	}
	t.staged[l.AdID] = *l
	return true, nil
}

func (t *memTx) Commit() error {
	for k, v := range t.staged {
		t.store.rows[k] = v
	}
	return nil
}

func (t *memTx) Rollback() error { return nil }

type memRejects struct {
	lines  []int
	closed bool
}

func (r *memRejects) WriteReject(line int, reason string, headers []string, cells []string) error {
	r.lines = append(r.lines, line)
	return nil
}

func (r *memRejects) Close() error {
	r.closed = true
	return nil
}

func csvFile(id string, age time.Duration) models.RemoteFile {
	return models.RemoteFile{
		ID:           id,
		Name:         id + ".csv",
		MimeType:     drive.MimeCSV,
		ModifiedTime: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).Add(-age),
	}
}

func newTestPipeline(files *fakeFiles, store *memStore, opts Options) *Pipeline {
	logger := utils.NewDiscardLogger()
	if opts.FolderID == "" {
		opts.FolderID = "folder-1"
	}
	return NewPipeline(PipelineDeps{
		Tokens: &fakeTokens{},
		Files:  files,
		Writer: storage.NewBatchWriter(store, 10, logger),
		Stats:  store,
		Logger: logger,
	}, opts)
}

func TestPipelineEndToEnd(t *testing.T) {
	files := &fakeFiles{
		files:   []models.RemoteFile{csvFile("newest", 0), csvFile("older", time.Hour)},
		content: map[string][]byte{"newest": []byte("Ad ID,Make\n123,Toyota\n")},
	}
	store := newMemStore()

	res, err := newTestPipeline(files, store, Options{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Processed != 1 || res.Skipped != 0 {
		t.Errorf("Processed/Skipped: got %d/%d, want 1/0", res.Processed, res.Skipped)
	}
	if len(files.downloaded) != 1 || files.downloaded[0] != "newest" {
		t.Errorf("downloaded: got %v, want [newest]", files.downloaded)
	}
	got, ok := store.rows["123"]
	if !ok || got.Make == nil || *got.Make != "Toyota" {
		t.Errorf("stored row: got %+v", got)
	}
	if res.TableSize != 1 {
		t.Errorf("TableSize: got %d, want 1", res.TableSize)
	}
	if res.File == nil || res.File.ID != "newest" {
		t.Errorf("File: got %+v", res.File)
	}
}

func TestPipelineCountsRejectedAndDuplicates(t *testing.T) {
	content := "Ad ID,Make,Price\n" +
		"1,Toyota,100\n" +
		",Honda,200\n" +
		"2,Kia,abc\n" +
		"1,Toyota,100\n" +
		"   ,Nissan,\n"
	files := &fakeFiles{
		files:   []models.RemoteFile{csvFile("f", 0)},
		content: map[string][]byte{"f": []byte(content)},
	}
	store := newMemStore()
	rejects := &memRejects{}

	p := NewPipeline(PipelineDeps{
		Tokens:  &fakeTokens{},
		Files:   files,
		Writer:  storage.NewBatchWriter(store, 10, nil),
		Rejects: rejects,
		Logger:  utils.NewDiscardLogger(),
	}, Options{FolderID: "folder-1"})

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TotalRows != 5 || res.Mapped != 3 || res.Rejected != 2 {
		t.Errorf("TotalRows/Mapped/Rejected: got %d/%d/%d, want 5/3/2", res.TotalRows, res.Mapped, res.Rejected)
	}
	if res.Processed+res.Skipped != res.Mapped {
		t.Errorf("Processed+Skipped = %d, want %d", res.Processed+res.Skipped, res.Mapped)
	}
	if res.Duplicates != 1 || res.Inserted != 2 || res.Ignored != 1 {
		t.Errorf("Duplicates/Inserted/Ignored: got %d/%d/%d, want 1/2/1", res.Duplicates, res.Inserted, res.Ignored)
	}
	sort.Ints(rejects.lines)
	if len(rejects.lines) != 2 || rejects.lines[0] != 3 || rejects.lines[1] != 6 {
		t.Errorf("reject lines: got %v, want [3 6]", rejects.lines)
	}
	if !rejects.closed {
		t.Error("rejects sink was not closed")
	}
	if l := store.rows["2"]; l.Price != nil {
		t.Errorf("non-numeric price should be NULL, got %q", *l.Price)
	}
	if res.TableSize != -1 {
		t.Errorf("TableSize without a stats source: got %d, want -1", res.TableSize)
	}
}

func TestPipelineIdempotent(t *testing.T) {
	files := &fakeFiles{
		files:   []models.RemoteFile{csvFile("f", 0)},
		content: map[string][]byte{"f": []byte("Ad ID,Make\n1,A\n2,B\n3,C\n")},
	}
	store := newMemStore()

	first, err := newTestPipeline(files, store, Options{}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := newTestPipeline(files, store, Options{}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if first.Inserted != 3 || second.Inserted != 0 || second.Ignored != 3 {
		t.Errorf("inserted first/second: %d/%d, ignored second: %d", first.Inserted, second.Inserted, second.Ignored)
	}
	if len(store.rows) != 3 {
		t.Errorf("table rows after two runs: got %d, want 3", len(store.rows))
	}
}

func TestPipelineEmptyFolder(t *testing.T) {
	files := &fakeFiles{}
	_, err := newTestPipeline(files, newMemStore(), Options{}).Run(context.Background())

	if !errors.Is(err, ErrNothingToIngest) {
		t.Fatalf("got %v, want ErrNothingToIngest", err)
	}
	if files.downloadCalls != 0 {
		t.Errorf("Download called %d times for an empty folder", files.downloadCalls)
	}
}

func TestPipelineCredentialErrorIsFatal(t *testing.T) {
	tokens := &fakeTokens{err: &drive.CredentialError{Path: "/missing.json", Reason: "file not found"}}
	files := &fakeFiles{files: []models.RemoteFile{csvFile("f", 0)}}

	p := NewPipeline(PipelineDeps{
		Tokens: tokens,
		Files:  files,
		Writer: &storage.DiscardWriter{},
		Retry:  utils.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond},
	}, Options{FolderID: "folder-1"})

	_, err := p.Run(context.Background())
	var ce *drive.CredentialError
	if !errors.As(err, &ce) {
		t.Fatalf("got %v, want *drive.CredentialError", err)
	}
	if tokens.calls != 1 {
		t.Errorf("token attempts: got %d, want 1", tokens.calls)
	}
	if files.listCalls != 0 {
		t.Errorf("ListFiles called %d times after a credential failure", files.listCalls)
	}
}

func TestPipelineRetriesTransientListing(t *testing.T) {
	files := &fakeFiles{
		files:   []models.RemoteFile{csvFile("f", 0)},
		content: map[string][]byte{"f": []byte("Ad ID\n1\n")},
		listErrs: []error{
			&drive.ListingError{FolderID: "folder-1", StatusCode: 503, Err: errors.New("unavailable")},
			&drive.ListingError{FolderID: "folder-1", StatusCode: 500, Err: errors.New("backend")},
		},
	}

	p := NewPipeline(PipelineDeps{
		Tokens: &fakeTokens{},
		Files:  files,
		Writer: &storage.DiscardWriter{},
		Retry:  utils.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond},
	}, Options{FolderID: "folder-1"})

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if files.listCalls != 3 {
		t.Errorf("list attempts: got %d, want 3", files.listCalls)
	}
	if res.Processed != 1 {
		t.Errorf("Processed: got %d, want 1", res.Processed)
	}
}

func TestPipelineListingForbiddenNotRetried(t *testing.T) {
	files := &fakeFiles{
		listErrs: []error{&drive.ListingError{FolderID: "folder-1", StatusCode: 403, Err: errors.New("forbidden")}},
	}
	p := NewPipeline(PipelineDeps{
		Tokens: &fakeTokens{},
		Files:  files,
		Writer: &storage.DiscardWriter{},
		Retry:  utils.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond},
	}, Options{FolderID: "folder-1"})

	_, err := p.Run(context.Background())
	var le *drive.ListingError
	if !errors.As(err, &le) || le.StatusCode != 403 {
		t.Fatalf("got %v, want 403 *drive.ListingError", err)
	}
	if files.listCalls != 1 {
		t.Errorf("list attempts: got %d, want 1", files.listCalls)
	}
}

func TestPipelineParseError(t *testing.T) {
	files := &fakeFiles{
		files:   []models.RemoteFile{csvFile("f", 0)},
		content: map[string][]byte{"f": []byte("\n  \n")},
	}
	store := newMemStore()

	_, err := newTestPipeline(files, store, Options{}).Run(context.Background())
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("got %v, want *ParseError", err)
	}
	if store.statsCalls != 0 {
		t.Error("stats should not be gathered after a fatal error")
	}
}

func TestPipelineFileOverride(t *testing.T) {
	files := &fakeFiles{
		files:   []models.RemoteFile{csvFile("newest", 0), csvFile("pinned", time.Hour)},
		content: map[string][]byte{"pinned": []byte("Ad ID\n7\n")},
	}
	store := newMemStore()

	res, err := newTestPipeline(files, store, Options{FileID: "pinned"}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if files.listCalls != 0 || files.fileCalls != 1 {
		t.Errorf("list/file calls: got %d/%d, want 0/1", files.listCalls, files.fileCalls)
	}
	if res.File.ID != "pinned" || res.Inserted != 1 {
		t.Errorf("got file %s inserted %d", res.File.ID, res.Inserted)
	}
}

func TestPipelineDryRun(t *testing.T) {
	files := &fakeFiles{
		files:   []models.RemoteFile{csvFile("f", 0)},
		content: map[string][]byte{"f": []byte("Ad ID,Make\n1,A\n2,B\n")},
	}
	store := newMemStore()

	p := NewPipeline(PipelineDeps{
		Tokens: &fakeTokens{},
		Files:  files,
		Writer: &storage.DiscardWriter{},
		Stats:  store,
	}, Options{FolderID: "folder-1", DryRun: true})

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Processed != 2 || !res.DryRun {
		t.Errorf("Processed/DryRun: got %d/%v", res.Processed, res.DryRun)
	}
	if store.statsCalls != 0 || len(store.rows) != 0 {
		t.Error("dry run touched the store")
	}
	if res.Insights == nil || res.Insights.TotalListings != 2 {
		t.Errorf("Insights: got %+v", res.Insights)
	}
}

// cancellingStore cancels the run once the first batch commits and refuses
// to open transactions after that.
type cancellingStore struct {
	*memStore
	cancel context.CancelFunc
	begins int
}

func (s *cancellingStore) Begin(ctx context.Context) (storage.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.begins++
	tx, _ := s.memStore.Begin(ctx)
	return &cancellingTx{Tx: tx, cancel: s.cancel}, nil
}

type cancellingTx struct {
	storage.Tx
	cancel context.CancelFunc
}

func (t *cancellingTx) Commit() error {
	err := t.Tx.Commit()
	t.cancel()
	return err
}

func TestPipelineStopsWhenCancelled(t *testing.T) {
	files := &fakeFiles{
		files:   []models.RemoteFile{csvFile("f", 0)},
		content: map[string][]byte{"f": []byte("Ad ID\n1\n2\n3\n4\n5\n")},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := &cancellingStore{memStore: newMemStore(), cancel: cancel}

	p := NewPipeline(PipelineDeps{
		Tokens: &fakeTokens{},
		Files:  files,
		Writer: storage.NewBatchWriter(store, 2, nil),
		Stats:  store,
	}, Options{FolderID: "folder-1"})

	res, err := p.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if store.begins != 1 {
		t.Errorf("transactions opened: got %d, want 1", store.begins)
	}
	if res.TotalRows != 2 || res.Processed != 2 || res.Skipped != 0 {
		t.Errorf("TotalRows/Processed/Skipped: got %d/%d/%d, want 2/2/0", res.TotalRows, res.Processed, res.Skipped)
	}
	if store.statsCalls != 0 {
		t.Error("stats should not be gathered for an interrupted run")
	}
}
