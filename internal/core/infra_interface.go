package core

import (
	"context"
	"io"
	"time"

	"github.com/citevault/citevault/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
//
// Job transitions (InsertJob, StartJob, CompleteJob, FailJob, FailStaleJobs)
// are transactional: each commits its full write set, including the owning
// document's status, or none of it. Guarded transitions return
// models.ErrInvalidTransition when the row is not in the expected prior state,
// and InsertJob returns models.ErrConflictingJob when the document already has
// an active job.
type DbClient interface {
	// tenancy ledger
	CreateOperator(ctx context.Context, op *models.Operator) error
	GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error)
	CreateTeam(ctx context.Context, team *models.Team) error
	GetTeamByID(ctx context.Context, id string) (*models.Team, error)
	CreateProject(ctx context.Context, project *models.Project) error
	GetProjectByID(ctx context.Context, id string) (*models.Project, error)
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	GetActiveAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id string, at time.Time) error

	// document registry
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByProject(ctx context.Context, projectID string) ([]models.Document, error)

	// ingestion jobs
	InsertJob(ctx context.Context, job *models.IngestionJob) error
	GetJobByID(ctx context.Context, id string) (*models.IngestionJob, error)
	ListJobsByDocument(ctx context.Context, documentID string) ([]models.IngestionJob, error)
	StartJob(ctx context.Context, jobID string, at time.Time) error
	CompleteJob(ctx context.Context, jobID string, chunks []models.Chunk, at time.Time) error
	FailJob(ctx context.Context, jobID string, errorMessage string, at time.Time) error
	FailStaleJobs(ctx context.Context, runningSince time.Time, errorMessage string) (int, error)

	// chunk store
	ListCurrentChunks(ctx context.Context, documentID string) ([]models.Chunk, error)
	GetChunksByIDs(ctx context.Context, ids []string) (map[string]models.Chunk, error)
	SearchChunks(ctx context.Context, projectID string, queryVec []float32, limit int) ([]models.ScoredChunk, error)

	// query audit log
	InsertQueryLog(ctx context.Context, q *models.QueryLog) error
	InsertCitations(ctx context.Context, citations []models.QueryCitation) error
	ListCitationsByQuery(ctx context.Context, queryID string) ([]models.QueryCitation, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// Abstract so AWS can be swapped for MinIO, GCS, etc.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
