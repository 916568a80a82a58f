//go:build integration

package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/docingest/internal/jobstore"
	"github.com/raphaelgruber/docingest/internal/models"
)

const testDimension = 8

var testDB *Client
var testContainer testcontainers.Container

// TestMain starts one SurrealDB container for all tests in the package.
func TestMain(m *testing.M) {
	// Ryuk can fail to start in some CI sandboxes.
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v2.3.7",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx, testDimension); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func newTestJob() *models.Job {
	return &models.Job{
		ID:     uuid.New().String(),
		Type:   models.JobTypeIngestPDF,
		Status: models.JobStatusPending,
		Metadata: models.JobMetadata{IngestPDF: &models.IngestMetadata{
			FileID:  "uploads/math-7-3-fractions.pdf",
			Subject: "math",
			Options: models.IngestOptions{MaxChunkSize: 500, Overlap: 50},
		}},
	}
}

func vector(seed float32) []float32 {
	v := make([]float32, testDimension)
	for i := range v {
		v[i] = seed + float32(i)/testDimension
	}
	return v
}

// =============================================================================
// JOB STORE TESTS
// =============================================================================

func TestJobStoreCreateGet(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(testDB)

	job := newTestJob()
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != models.JobStatusPending {
		t.Errorf("Expected status pending, got %q", got.Status)
	}
	if got.Metadata.IngestPDF == nil || got.Metadata.IngestPDF.Options.MaxChunkSize != 500 {
		t.Errorf("Metadata did not round-trip: %+v", got.Metadata.IngestPDF)
	}
	if got.CreatedAt.IsZero() || !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Errorf("Expected created_at == updated_at, got %v / %v", got.CreatedAt, got.UpdatedAt)
	}

	if err := store.Create(ctx, job); !errors.Is(err, jobstore.ErrExists) {
		t.Errorf("Expected ErrExists on duplicate create, got %v", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, jobstore.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestJobStoreUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(testDB)

	job := newTestJob()
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	processing := models.JobStatusProcessing
	got, err := store.Update(ctx, job.ID, models.JobUpdate{
		Status:   &processing,
		Progress: &models.Progress{Step: models.StepChunking, Percentage: 50, Message: "chunking"},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.Status != processing || got.Progress.Percentage != 50 {
		t.Errorf("Unexpected job after update: %+v", got)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Errorf("updated_at did not advance")
	}

	got, err = store.Update(ctx, job.ID, models.JobUpdate{
		Progress: &models.Progress{Step: models.StepDownloading, Percentage: 10},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.Progress.Percentage != 50 {
		t.Errorf("Expected percentage clamped to 50, got %d", got.Progress.Percentage)
	}

	cancelled := models.JobStatusCancelled
	if _, err := store.Update(ctx, job.ID, models.JobUpdate{Status: &cancelled}); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	completed := models.JobStatusCompleted
	got, err = store.Update(ctx, job.ID, models.JobUpdate{
		Status: &completed,
		Result: &models.JobResult{ChunksProcessed: 3, Stored: 3},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.Status != models.JobStatusCancelled {
		t.Errorf("Terminal status changed to %q", got.Status)
	}

	if _, err := store.Update(ctx, "missing", models.JobUpdate{Status: &completed}); !errors.Is(err, jobstore.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestJobStoreConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewJobStore(testDB)

	job := newTestJob()
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func(pct int) {
			defer wg.Done()
			if _, err := store.Update(ctx, job.ID, models.JobUpdate{
				Progress: &models.Progress{Step: models.StepEmbedding, Percentage: 70 + pct},
			}); err != nil {
				t.Errorf("Update %d failed: %v", pct, err)
			}
		}(i)
	}
	wg.Wait()

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Progress.Percentage != 75 {
		t.Errorf("Expected highest percentage 75, got %d", got.Progress.Percentage)
	}
}

func TestJobStoreListings(t *testing.T) {
	ctx := context.Background()
	if err := testDB.WipeData(ctx); err != nil {
		t.Fatalf("WipeData failed: %v", err)
	}
	store := NewJobStore(testDB)

	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := range 3 {
		job := newTestJob()
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ids = append(ids, job.ID)
	}
	failed := models.JobStatusFailed
	if _, err := store.Update(ctx, ids[0], models.JobUpdate{Status: &failed}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	recent, err := store.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != ids[2] || recent[1].ID != ids[1] {
		t.Errorf("Unexpected recent order: %v", jobIDs(recent))
	}

	pending, err := store.ListByStatus(ctx, models.JobStatusPending)
	if err != nil {
		t.Fatalf("ListByStatus failed: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("Expected 2 pending jobs, got %d", len(pending))
	}
}

func jobIDs(jobs []*models.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}

// =============================================================================
// KNOWLEDGE BASE TESTS
// =============================================================================

func TestKnowledgeBaseStoreAndDelete(t *testing.T) {
	ctx := context.Background()
	knowledge := NewKnowledgeBase(testDB)
	key := models.DocumentKey{Subject: "math", Grade: "7", Chapter: "3", Source: uuid.New().String() + ".pdf"}

	records := []models.ChunkRecord{
		{Index: 0, Content: "# Fractions\nintro", HeadingHierarchy: []string{"Fractions"}, Embedding: vector(0.1)},
		{Index: 1, Content: "failed chunk", HeadingHierarchy: []string{"Fractions"}, Embedding: []float32{}},
		{Index: 2, Content: "no headings", Embedding: vector(0.3), Metadata: map[string]string{"title": "fractions"}},
	}

	stored, err := knowledge.StoreChunks(ctx, key, records)
	if err != nil {
		t.Fatalf("StoreChunks failed: %v", err)
	}
	if stored != len(records) {
		t.Errorf("Expected %d stored, got %d", len(records), stored)
	}

	count, err := knowledge.CountChunks(ctx, key)
	if err != nil {
		t.Fatalf("CountChunks failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 chunks, got %d", count)
	}

	deleted, err := knowledge.DeleteChunks(ctx, key)
	if err != nil {
		t.Fatalf("DeleteChunks failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("Expected 3 deleted, got %d", deleted)
	}

	deleted, err = knowledge.DeleteChunks(ctx, key)
	if err != nil {
		t.Fatalf("DeleteChunks failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("Expected idempotent delete, got %d", deleted)
	}
}

func TestClientReconnection(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow test in short mode")
	}
	ctx := context.Background()

	if _, err := testDB.Query(ctx, "RETURN 1", nil); err != nil {
		t.Fatalf("query before wait failed: %v", err)
	}
	time.Sleep(2 * time.Second)
	if _, err := testDB.Query(ctx, "RETURN 2", nil); err != nil {
		t.Fatalf("query after wait failed: %v", err)
	}
}
