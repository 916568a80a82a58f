package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/raphaelgruber/docingest/internal/models"
)

var (
	// ErrInvalidSource is returned unless exactly one of file_url/file_id is set.
	ErrInvalidSource = errors.New("exactly one of file_url or file_id is required")
	// ErrTooLarge is returned when a download exceeds the size cap.
	ErrTooLarge = errors.New("document exceeds size limit")
)

const (
	DefaultTimeout  = 60 * time.Second
	DefaultMaxBytes = 100 << 20
)

// Document is a downloaded file.
type Document struct {
	Name        string
	ContentType string
	Data        []byte
}

// Fetcher downloads documents named by ingestion metadata.
type Fetcher struct {
	storage  Storage
	bucket   string
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	logger   *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the HTTP client used for file URLs.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithTimeout bounds each download.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithMaxBytes caps the size of a download.
func WithMaxBytes(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithFetchLogger sets the fetcher's logger.
func WithFetchLogger(l *slog.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a fetcher reading file ids from bucket in storage.
// storage may be nil when only URLs are accepted.
func NewFetcher(storage Storage, bucket string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		storage:  storage,
		bucket:   bucket,
		client:   http.DefaultClient,
		timeout:  DefaultTimeout,
		maxBytes: DefaultMaxBytes,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads the document from exactly one of meta.FileURL or meta.FileID.
func (f *Fetcher) Fetch(ctx context.Context, meta *models.IngestMetadata) (*Document, error) {
	if meta == nil || (meta.FileURL == "") == (meta.FileID == "") {
		return nil, ErrInvalidSource
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	var (
		doc *Document
		err error
	)
	if meta.FileURL != "" {
		doc, err = f.fetchURL(ctx, meta.FileURL)
	} else {
		doc, err = f.fetchObject(ctx, meta.FileID)
	}
	if err != nil {
		return nil, err
	}
	if meta.FileName != "" {
		doc.Name = meta.FileName
	}

	f.logger.Debug("document fetched", "name", doc.Name, "bytes", len(doc.Data),
		"duration_ms", time.Since(start).Milliseconds())
	return doc, nil
}

func (f *Fetcher) fetchURL(ctx context.Context, rawURL string) (*Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("unsupported file url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get %s: status %d", rawURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}

	return &Document{
		Name:        path.Base(u.Path),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (f *Fetcher) fetchObject(ctx context.Context, fileID string) (*Document, error) {
	if f.storage == nil {
		return nil, fmt.Errorf("no object storage configured for file id %q", fileID)
	}
	data, err := f.storage.Download(ctx, f.bucket, fileID)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}
	return &Document{
		Name: path.Base(fileID),
		Data: data,
	}, nil
}
