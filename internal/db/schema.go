package db

import "fmt"

const (
	jobTable   = "ingest_job"
	chunkTable = "doc_chunk"
)

// SchemaSQL returns the schema definition with the chunk embedding index
// sized to dimension.
func SchemaSQL(dimension int) string {
	return fmt.Sprintf(schemaTemplate, dimension)
}

const schemaTemplate = `
    -- ==========================================================================
    -- INGEST_JOB TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS ingest_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS job_type ON ingest_job TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON ingest_job TYPE string
        ASSERT $value IN ["pending", "processing", "completed", "failed", "cancelled"];
    DEFINE FIELD IF NOT EXISTS progress ON ingest_job TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS metadata ON ingest_job TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS result ON ingest_job TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS error ON ingest_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON ingest_job TYPE datetime;
    DEFINE FIELD IF NOT EXISTS updated_at ON ingest_job TYPE datetime;

    DEFINE INDEX IF NOT EXISTS ingest_job_status ON ingest_job FIELDS status;
    DEFINE INDEX IF NOT EXISTS ingest_job_created ON ingest_job FIELDS created_at;

    -- ==========================================================================
    -- DOC_CHUNK TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS doc_chunk SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS subject ON doc_chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS grade ON doc_chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS chapter ON doc_chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS source ON doc_chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS chunk_index ON doc_chunk TYPE int;
    DEFINE FIELD IF NOT EXISTS content ON doc_chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS heading_hierarchy ON doc_chunk TYPE array<string>;
    -- NONE when the embedding provider failed for this chunk
    DEFINE FIELD IF NOT EXISTS embedding ON doc_chunk TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS metadata ON doc_chunk TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS created ON doc_chunk TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS doc_chunk_key ON doc_chunk FIELDS subject, grade, chapter, source;
    DEFINE INDEX IF NOT EXISTS doc_chunk_embedding ON doc_chunk FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
`
