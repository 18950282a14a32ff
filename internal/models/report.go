package models

import "time"

// JobState is the lifecycle state of an ingestion job.
type JobState string

const (
	JobQueued         JobState = "queued"
	JobExtracting     JobState = "extracting"
	JobChunking       JobState = "chunking"
	JobEmbedding      JobState = "embedding"
	JobCommitting     JobState = "committing"
	JobDone           JobState = "done"
	JobDoneWithErrors JobState = "done_with_errors"
	JobFailed         JobState = "failed"
)

// Terminal reports whether the state is a terminal job state.
func (s JobState) Terminal() bool {
	return s == JobDone || s == JobDoneWithErrors || s == JobFailed
}

// FailedChunk identifies one chunk whose embedding failed after retries.
type FailedChunk struct {
	SourcePath string `json:"source_path"`
	ChunkIndex int    `json:"chunk_index"`
	Reason     string `json:"reason"`
}

// IngestReport summarizes one ingestion job. A job that commits some chunks
// but loses others to embedding failures ends in JobDoneWithErrors with the
// failed chunks listed.
type IngestReport struct {
	JobID           string        `json:"job_id"`
	State           JobState      `json:"state"`
	Source          SourceType    `json:"source_type"`
	Target          string        `json:"target,omitempty"`
	SourcePaths     []string      `json:"source_paths,omitempty"`
	ChunksTotal     int           `json:"chunks_total"`
	ChunksCommitted int           `json:"chunks_committed"`
	ChunksFailed    int           `json:"chunks_failed"`
	FailedChunks    []FailedChunk `json:"failed_chunks,omitempty"`
	RecordsDeleted  int           `json:"records_deleted"`
	Errors          []string      `json:"errors,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	DurationMS      int64         `json:"duration_ms"`
}

// ScoredRecord is one retrieval hit: the record's provenance, a bounded
// snippet of its content, and the scores that ranked it.
type ScoredRecord struct {
	ID           string     `json:"id"`
	Source       SourceType `json:"source_type"`
	Score        float64    `json:"score"`
	VectorScore  float64    `json:"vector_score"`
	KeywordScore float64    `json:"keyword_score,omitempty"`
	Snippet      string     `json:"snippet"`
	Meta         Metadata   `json:"metadata"`
}

// SearchResponse is the envelope for search results, shared by the HTTP API
// and the CLI.
type SearchResponse struct {
	Results     []ScoredRecord `json:"results"`
	Total       int            `json:"total"`
	Query       string         `json:"query"`
	QueryTimeMS int64          `json:"query_time_ms"`
}

// StatusReport describes the running store for status endpoints and the CLI.
type StatusReport struct {
	Ready      bool               `json:"ready"`
	Records    int                `json:"records"`
	BySource   map[SourceType]int `json:"by_source,omitempty"`
	Dimensions int                `json:"dimensions"`
	Dirty      int                `json:"dirty"`
	DiskUsage  int64              `json:"disk_usage_bytes"`
	Backend    string             `json:"backend"`
	Keyword    bool               `json:"keyword_enabled"`
}
