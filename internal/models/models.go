package models

import (
	"time"
)

// Team is the tenant boundary. Projects, API keys and documents all hang off a team.
type Team struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Project is a named workspace inside a team.
type Project struct {
	ID        string    `db:"id" json:"id"`
	TeamID    string    `db:"team_id" json:"team_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// APIKey is a hashed data-plane credential scoped to a team.
// The raw secret is shown once at issuance and never persisted.
type APIKey struct {
	ID        string     `db:"id" json:"id"`
	TeamID    string     `db:"team_id" json:"team_id"`
	KeyHash   string     `db:"key_hash" json:"-"`
	Status    KeyStatus  `db:"status" json:"status"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// Operator is a control-plane account that manages teams and keys.
type Operator struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Document is a logical unit of ingested content. CurrentGeneration is zero
// until the first successful ingestion commits a chunk set.
type Document struct {
	ID                string         `db:"id" json:"id"`
	TeamID            string         `db:"team_id" json:"team_id"`
	ProjectID         string         `db:"project_id" json:"project_id"`
	Title             string         `db:"title" json:"title"`
	SourceType        SourceType     `db:"source_type" json:"source_type"`
	StorageURL        string         `db:"storage_url" json:"storage_url"`
	MimeType          string         `db:"mime_type" json:"mime_type"`
	Status            DocumentStatus `db:"status" json:"status"`
	CurrentGeneration int            `db:"current_generation" json:"current_generation"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}

// IngestionJob is one attempt to chunk and embed a document. Terminal jobs
// are never reopened; a retry is a fresh job.
type IngestionJob struct {
	ID             string     `db:"id" json:"id"`
	DocumentID     string     `db:"document_id" json:"document_id"`
	Status         JobStatus  `db:"status" json:"status"`
	ErrorMessage   string     `db:"error_message" json:"error_message,omitempty"`
	StartedAt      *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt     *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	ChunksCreated  int        `db:"chunks_created" json:"chunks_created"`
	EmbeddingModel string     `db:"embedding_model" json:"embedding_model"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Chunk is one immutable text unit of a document generation.
type Chunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	Generation int       `db:"generation" json:"generation"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	Content    string    `db:"content" json:"content"`
	Embedding  []float32 `db:"embedding" json:"-"`
	PageStart  *int      `db:"page_start" json:"page_start,omitempty"`
	PageEnd    *int      `db:"page_end" json:"page_end,omitempty"`
	CharStart  *int      `db:"char_start" json:"char_start,omitempty"`
	CharEnd    *int      `db:"char_end" json:"char_end,omitempty"`
	TokenCount int       `db:"token_count" json:"token_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ScoredChunk pairs a chunk with its similarity score from a vector search.
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// QueryLog is one logged retrieval-augmented request. Only a hash of the
// question is kept, never the text.
type QueryLog struct {
	ID               string    `db:"id" json:"id"`
	TeamID           string    `db:"team_id" json:"team_id"`
	ProjectID        string    `db:"project_id" json:"project_id"`
	APIKeyID         *string   `db:"api_key_id" json:"api_key_id,omitempty"`
	QuestionHash     string    `db:"question_hash" json:"question_hash"`
	UsedRAG          bool      `db:"used_rag" json:"used_rag"`
	TopK             int       `db:"top_k" json:"top_k"`
	Model            string    `db:"model" json:"model"`
	LatencyMs        int       `db:"latency_ms" json:"latency_ms"`
	PromptTokens     int       `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int       `db:"completion_tokens" json:"completion_tokens"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// QueryCitation links a query log to a chunk with a 1-based rank.
// Identity is (QueryID, ChunkID).
type QueryCitation struct {
	QueryID string  `db:"query_id" json:"query_id"`
	ChunkID string  `db:"chunk_id" json:"chunk_id"`
	Rank    int     `db:"rank" json:"rank"`
	Score   float64 `db:"score" json:"score"`
}
