package client_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/docingest/internal/app"
	"github.com/raphaelgruber/docingest/internal/client"
	"github.com/raphaelgruber/docingest/internal/config"
	"github.com/raphaelgruber/docingest/internal/embedding/mock"
	"github.com/raphaelgruber/docingest/internal/httpapi"
	"github.com/raphaelgruber/docingest/internal/models"
	"github.com/raphaelgruber/docingest/internal/progress"
	"github.com/raphaelgruber/docingest/internal/source"
)

func newTestServer(t *testing.T) (*client.Client, *source.MemoryStorage) {
	t.Helper()
	storage := source.NewMemoryStorage()
	return newTestServerWith(t, storage), storage
}

func newTestServerWith(t *testing.T, storage source.Storage) *client.Client {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := app.New(ctx, config.Config{
		Jobs:     config.JobsConfig{Store: "memory", Workers: 2},
		KB:       config.KBConfig{Backend: "memory"},
		Storage:  config.StorageConfig{Backend: "memory", Bucket: "documents"},
		Chunking: config.ChunkingConfig{MaxChunkSize: 1000, Overlap: 100},
	}, logger, app.WithEmbedder(mock.NewEmbedder()), app.WithStorage(storage))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(ctx, 5*time.Second) })

	srv := httptest.NewServer(httpapi.NewRouter(httpapi.Deps{
		Jobs:    a.Ingest,
		Events:  a.Broadcaster,
		Metrics: a.Metrics.Handler(),
		Logger:  logger,
	}))
	t.Cleanup(srv.Close)

	return client.New(srv.URL)
}

// blockingStorage holds downloads open until release is closed.
type blockingStorage struct {
	*source.MemoryStorage
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (b *blockingStorage) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.MemoryStorage.Download(ctx, bucket, path)
}

func TestClientWatchEndsWhenCancelledDuringDownload(t *testing.T) {
	storage := &blockingStorage{
		MemoryStorage: source.NewMemoryStorage(),
		started:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	c := newTestServerWith(t, storage)
	ctx := context.Background()
	require.NoError(t, storage.Upload(ctx, "documents", "notes/a.md", []byte("# A\ntext\n"), "text/markdown"))

	view, err := c.CreateJob(ctx, models.IngestMetadata{FileID: "notes/a.md"})
	require.NoError(t, err)
	select {
	case <-storage.started:
	case <-time.After(5 * time.Second):
		t.Fatal("download never started")
	}

	watching := make(chan struct{})
	var once sync.Once
	var last progress.Event
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, view.JobID, func(e progress.Event) error {
			last = e
			once.Do(func() { close(watching) })
			return nil
		})
	}()
	select {
	case <-watching:
	case <-time.After(5 * time.Second):
		t.Fatal("watch never delivered the snapshot")
	}

	_, err = c.CancelJob(ctx, view.JobID)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not end after cancel")
	}
	close(storage.release)
	assert.Equal(t, models.JobStatusCancelled, last.Status)
}

func TestClientJobLifecycle(t *testing.T) {
	c, storage := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, storage.Upload(ctx, "documents", "notes/physics-8-1-motion.md",
		[]byte("# Motion\nSpeed is distance over time.\n"), "text/markdown"))

	view, err := c.CreateJob(ctx, models.IngestMetadata{FileID: "notes/physics-8-1-motion.md"})
	require.NoError(t, err)
	require.NotEmpty(t, view.JobID)

	require.Eventually(t, func() bool {
		got, err := c.GetJob(ctx, view.JobID)
		require.NoError(t, err)
		view = got
		return got.Status.IsTerminal()
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, models.JobStatusCompleted, view.Status)
	assert.Equal(t, 100, view.Progress)

	jobs, err := c.ListJobs(ctx, "completed", 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, view.JobID, jobs[0].JobID)

	cancelled, err := c.CancelJob(ctx, view.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, cancelled.Status)

	// A finished job replays its final state and closes.
	var events []progress.Event
	require.NoError(t, c.Watch(ctx, view.JobID, func(e progress.Event) error {
		events = append(events, e)
		return nil
	}))
	require.Len(t, events, 1)
	assert.Equal(t, models.JobStatusCompleted, events[0].Status)
}

func TestClientErrors(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()

	_, err := c.GetJob(ctx, "missing")
	assert.True(t, client.IsNotFound(err), "expected 404, got %v", err)

	_, err = c.CreateJob(ctx, models.IngestMetadata{})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "file_url or file_id")

	err = c.Watch(ctx, "missing", func(progress.Event) error { return nil })
	assert.True(t, client.IsNotFound(err), "expected 404, got %v", err)
}
