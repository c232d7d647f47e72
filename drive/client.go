package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"drive-csv-ingest/models"
)

const (
	MimeCSV         = "text/csv"
	MimeSpreadsheet = "application/vnd.google-apps.spreadsheet"

	listFields = "files(id,name,mimeType,modifiedTime,size)"
	fileFields = "id,name,mimeType,modifiedTime,size"
)

// Client lists and downloads files from one Drive API endpoint.
// Every call is authorised with the bearer token it is given.
type Client struct {
	endpoint    string
	pageSize    int64
	tabularOnly bool
	httpClient  *http.Client
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Endpoint string
	PageSize int
	// TabularOnly narrows ListFiles to CSV files and Google Sheets.
	TabularOnly bool
	Timeout     time.Duration
	// HTTPClient is the base client; its Transport is wrapped with the token.
	HTTPClient *http.Client
}

// NewClient creates a Drive Client.
func NewClient(opts ClientOptions) *Client {
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	hc := &http.Client{
		Transport: base.Transport,
		Timeout:   opts.Timeout,
	}
	if hc.Timeout == 0 {
		hc.Timeout = base.Timeout
	}

	pageSize := int64(opts.PageSize)
	if pageSize <= 0 {
		pageSize = 50
	}

	return &Client{
		endpoint:    opts.Endpoint,
		pageSize:    pageSize,
		tabularOnly: opts.TabularOnly,
		httpClient:  hc,
	}
}

func (c *Client) service(ctx context.Context, token string) (*gdrive.Service, error) {
	hc := &http.Client{
		Timeout: c.httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.httpClient.Transport,
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	return gdrive.NewService(ctx, opts...)
}

// ListFiles returns the non-trashed files directly inside folderID, newest
// modification first. An empty folder yields an empty slice and no error.
func (c *Client) ListFiles(ctx context.Context, token, folderID string) ([]models.RemoteFile, error) {
	return c.list(ctx, token, folderID, c.tabularOnly)
}

// ListAllFiles is ListFiles without the mime type narrowing.
func (c *Client) ListAllFiles(ctx context.Context, token, folderID string) ([]models.RemoteFile, error) {
	return c.list(ctx, token, folderID, false)
}

func (c *Client) list(ctx context.Context, token, folderID string, tabularOnly bool) ([]models.RemoteFile, error) {
	srv, err := c.service(ctx, token)
	if err != nil {
		return nil, &ListingError{FolderID: folderID, Err: err}
	}

	res, err := srv.Files.List().
		Q(FolderQuery(folderID, tabularOnly)).
		OrderBy("modifiedTime desc").
		PageSize(c.pageSize).
		Fields(listFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, &ListingError{FolderID: folderID, StatusCode: statusOf(err), Err: err}
	}

	files := make([]models.RemoteFile, 0, len(res.Files))
	for _, f := range res.Files {
		files = append(files, toRemoteFile(f))
	}
	return files, nil
}

// File fetches the metadata of a single file or folder by id.
func (c *Client) File(ctx context.Context, token, fileID string) (models.RemoteFile, error) {
	srv, err := c.service(ctx, token)
	if err != nil {
		return models.RemoteFile{}, &ListingError{FolderID: fileID, Err: err}
	}

	f, err := srv.Files.Get(fileID).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		return models.RemoteFile{}, &ListingError{FolderID: fileID, StatusCode: statusOf(err), Err: err}
	}
	return toRemoteFile(f), nil
}

// Download returns the raw bytes of file. Google Sheets are exported as CSV,
// everything else is fetched as stored.
func (c *Client) Download(ctx context.Context, token string, file models.RemoteFile) ([]byte, error) {
	srv, err := c.service(ctx, token)
	if err != nil {
		return nil, &DownloadError{FileID: file.ID, Err: err}
	}

	var resp *http.Response
	if file.MimeType == MimeSpreadsheet {
		resp, err = srv.Files.Export(file.ID, MimeCSV).Context(ctx).Download()
	} else {
		resp, err = srv.Files.Get(file.ID).Context(ctx).Download()
	}
	if err != nil {
		return nil, &DownloadError{FileID: file.ID, StatusCode: statusOf(err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DownloadError{FileID: file.ID, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// FolderQuery builds the Drive search expression for files whose parent is
// folderID and that are not in the trash.
func FolderQuery(folderID string, tabularOnly bool) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(folderID)
	q := fmt.Sprintf("'%s' in parents and trashed = false", escaped)
	if tabularOnly {
		q += fmt.Sprintf(" and (mimeType = '%s' or mimeType = '%s')", MimeCSV, MimeSpreadsheet)
	}
	return q
}

func toRemoteFile(f *gdrive.File) models.RemoteFile {
	rf := models.RemoteFile{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
		Size:     f.Size,
	}
	if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		rf.ModifiedTime = t
	}
	return rf
}

func statusOf(err error) int {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code
	}
	return 0
}
