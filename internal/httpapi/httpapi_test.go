package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/docingest/internal/httpapi"
	"github.com/raphaelgruber/docingest/internal/jobstore"
	"github.com/raphaelgruber/docingest/internal/models"
	"github.com/raphaelgruber/docingest/internal/progress"
	"github.com/raphaelgruber/docingest/internal/service"
)

// fakeJobs is an in-memory JobService. Submit returns the pending record
// and leaves the stored job processing.
type fakeJobs struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
	next int
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[string]*models.Job)}
}

func (f *fakeJobs) add(status models.JobStatus) *models.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	job := &models.Job{
		ID:        fmt.Sprintf("job-%d", f.next),
		Type:      models.JobTypeIngestPDF,
		Status:    status,
		Metadata:  models.JobMetadata{IngestPDF: &models.IngestMetadata{FileID: "uploads/x.pdf"}},
		CreatedAt: time.Unix(int64(f.next), 0),
	}
	f.jobs[job.ID] = job
	return job
}

func (f *fakeJobs) Submit(_ context.Context, meta models.IngestMetadata) (*models.Job, *service.Handle, error) {
	if err := meta.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", service.ErrInvalidInput, err)
	}
	job := f.add(models.JobStatusProcessing)
	job.Metadata.IngestPDF = &meta
	created := job.Clone()
	created.Status = models.JobStatusPending
	return created, nil, nil
}

func (f *fakeJobs) GetJob(_ context.Context, id string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", jobstore.ErrNotFound, id)
	}
	return job.Clone(), nil
}

func (f *fakeJobs) GetJobsByStatus(_ context.Context, status models.JobStatus) ([]*models.Job, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", service.ErrInvalidInput, status)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Job
	for i := f.next; i >= 1; i-- {
		if j, ok := f.jobs[fmt.Sprintf("job-%d", i)]; ok && j.Status == status {
			out = append(out, j.Clone())
		}
	}
	return out, nil
}

func (f *fakeJobs) GetRecentJobs(_ context.Context, limit int) ([]*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Job
	for i := f.next; i >= 1 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, f.jobs[fmt.Sprintf("job-%d", i)].Clone())
	}
	return out, nil
}

func (f *fakeJobs) Cancel(ctx context.Context, id string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", jobstore.ErrNotFound, id)
	}
	if !job.Status.IsTerminal() {
		job.Status = models.JobStatusCancelled
	}
	return job.Clone(), nil
}

func newServer(t *testing.T, jobs *fakeJobs, events httpapi.Subscriber) *httptest.Server {
	t.Helper()
	router := httpapi.NewRouter(httpapi.Deps{
		Jobs:    jobs,
		Events:  events,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "docingest_jobs_total 0\n") }),
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestCreateJob(t *testing.T) {
	srv := newServer(t, newFakeJobs(), nil)

	var view models.StatusView
	code := doJSON(t, http.MethodPost, srv.URL+"/v1/jobs",
		`{"type":"ingest_pdf","metadata":{"file_id":"uploads/math-7-3.pdf","subject":"math"}}`, &view)

	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "job-1", view.JobID)
	assert.Equal(t, models.JobStatusPending, view.Status)
	assert.Equal(t, "uploads/math-7-3.pdf", view.Filename)
}

func TestCreateJobErrors(t *testing.T) {
	srv := newServer(t, newFakeJobs(), nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"metadata":`},
		{"missing metadata", `{"type":"ingest_pdf"}`},
		{"unknown type", `{"type":"ingest_video","metadata":{"file_id":"a"}}`},
		{"both sources", `{"metadata":{"file_id":"a","file_url":"http://x/a.pdf"}}`},
		{"no source", `{"metadata":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]string
			code := doJSON(t, http.MethodPost, srv.URL+"/v1/jobs", tt.body, &body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestGetJob(t *testing.T) {
	jobs := newFakeJobs()
	job := jobs.add(models.JobStatusFailed)
	job.Error = "download failed"
	job.Progress = &models.Progress{Step: models.StepFailed, Percentage: 30, Message: "boom"}
	srv := newServer(t, jobs, nil)

	var view models.StatusView
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/v1/jobs/"+job.ID, "", &view))
	assert.Equal(t, models.JobStatusFailed, view.Status)
	assert.Equal(t, 30, view.Progress)
	assert.Equal(t, "download failed", view.Message)

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, srv.URL+"/v1/jobs/missing", "", &body))
}

func TestListJobs(t *testing.T) {
	jobs := newFakeJobs()
	jobs.add(models.JobStatusCompleted)
	jobs.add(models.JobStatusPending)
	jobs.add(models.JobStatusCompleted)
	srv := newServer(t, jobs, nil)

	var list httpapi.JobList
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/v1/jobs?limit=2", "", &list))
	require.Equal(t, 2, list.Count)
	assert.Equal(t, "job-3", list.Jobs[0].JobID)
	assert.Equal(t, "job-2", list.Jobs[1].JobID)

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/v1/jobs?status=completed", "", &list))
	assert.Equal(t, 2, list.Count)

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/v1/jobs?status=completed&limit=1", "", &list))
	assert.Equal(t, 1, list.Count)

	var body map[string]string
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodGet, srv.URL+"/v1/jobs?status=bogus", "", &body))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodGet, srv.URL+"/v1/jobs?limit=x", "", &body))
}

func TestCancelJob(t *testing.T) {
	jobs := newFakeJobs()
	running := jobs.add(models.JobStatusProcessing)
	done := jobs.add(models.JobStatusCompleted)
	srv := newServer(t, jobs, nil)

	var view models.StatusView
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/v1/jobs/"+running.ID+"/cancel", "", &view))
	assert.Equal(t, models.JobStatusCancelled, view.Status)

	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/v1/jobs/"+done.ID+"/cancel", "", &view))
	assert.Equal(t, models.JobStatusCompleted, view.Status)

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodPost, srv.URL+"/v1/jobs/missing/cancel", "", &body))
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newServer(t, newFakeJobs(), nil)

	var health map[string]string
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/health", "", &health))
	assert.Equal(t, "ok", health["status"])

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "docingest_jobs_total")
}

func dialWatch(t *testing.T, srv *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/jobs/" + id + "/watch"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func TestWatchStreamsUntilTerminal(t *testing.T) {
	jobs := newFakeJobs()
	job := jobs.add(models.JobStatusProcessing)
	broadcaster := progress.NewBroadcaster()
	srv := newServer(t, jobs, broadcaster)

	conn := dialWatch(t, srv, job.ID)

	var e progress.Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, job.ID, e.JobID)
	assert.Equal(t, models.JobStatusProcessing, e.Status)

	require.Eventually(t, func() bool { return broadcaster.Subscribers(job.ID) == 1 }, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, broadcaster.Notify(ctx, progress.Event{
		JobID:    job.ID,
		Status:   models.JobStatusProcessing,
		Progress: models.Progress{Step: models.StepEmbedding, Percentage: 70},
	}))
	require.NoError(t, broadcaster.Notify(ctx, progress.Event{
		JobID:    job.ID,
		Status:   models.JobStatusCompleted,
		Progress: models.Progress{Step: models.StepComplete, Percentage: 100},
	}))

	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, 70, e.Progress.Percentage)
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, models.JobStatusCompleted, e.Status)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "expected normal close, got %v", err)
}

func TestWatchFinishedJob(t *testing.T) {
	jobs := newFakeJobs()
	job := jobs.add(models.JobStatusCompleted)
	srv := newServer(t, jobs, progress.NewBroadcaster())

	conn := dialWatch(t, srv, job.ID)

	var e progress.Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, models.JobStatusCompleted, e.Status)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "expected normal close, got %v", err)
}

func TestWatchUnknownJob(t *testing.T) {
	srv := newServer(t, newFakeJobs(), progress.NewBroadcaster())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/jobs/missing/watch"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
