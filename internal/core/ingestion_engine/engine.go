package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/citevault/citevault/internal/core"
	"github.com/citevault/citevault/internal/models"
)

// JobEngine owns the ingestion job state machine:
//
//	queued → running → succeeded | failed
//
// Terminal jobs are never reopened; a retry is a fresh Enqueue. The engine is
// the only writer of chunk generations, and document status only moves as a
// side effect of a job transition, never independently. Atomicity of each
// transition, and the single-flight guarantee across service instances, live
// in the DbClient's transactional methods; this layer holds the validation
// and the transition contract.
type JobEngine struct {
	db core.DbClient
}

func NewJobEngine(db core.DbClient) *JobEngine {
	return &JobEngine{db: db}
}

// Enqueue creates a queued job for the document and flips the document to
// processing. Returns models.ErrConflictingJob when the document already has
// a queued or running job.
func (e *JobEngine) Enqueue(ctx context.Context, documentID, embeddingModel string) (*models.IngestionJob, error) {
	if _, err := e.db.GetDocumentByID(ctx, documentID); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}

	job := &models.IngestionJob{
		ID:             uuid.NewString(),
		DocumentID:     documentID,
		Status:         models.JobQueued,
		EmbeddingModel: embeddingModel,
		CreatedAt:      time.Now(),
	}
	if err := e.db.InsertJob(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	return job, nil
}

// Retry is sugar for Enqueue after a terminal job. The single-flight check is
// identical: an active job still yields models.ErrConflictingJob.
func (e *JobEngine) Retry(ctx context.Context, documentID, embeddingModel string) (*models.IngestionJob, error) {
	return e.Enqueue(ctx, documentID, embeddingModel)
}

// Start moves a job queued → running.
func (e *JobEngine) Start(ctx context.Context, jobID string) error {
	if err := e.db.StartJob(ctx, jobID, time.Now()); err != nil {
		return fmt.Errorf("start job %s: %w", jobID, err)
	}
	return nil
}

// Complete moves a job running → succeeded and commits the chunk batch as the
// document's new current generation, all in one transaction. A batch that is
// empty or whose indices are not a dense 0..n-1 sequence fails validation:
// the job is failed instead and nothing is committed, so a document is never
// ready with zero current chunks.
func (e *JobEngine) Complete(ctx context.Context, jobID string, batch []models.Chunk) error {
	if err := ValidateChunkBatch(batch); err != nil {
		if failErr := e.db.FailJob(ctx, jobID, err.Error(), time.Now()); failErr != nil {
			log.Printf("JobEngine: could not fail job %s after bad batch: %v", jobID, failErr)
		}
		return err
	}

	for i := range batch {
		if batch[i].ID == "" {
			batch[i].ID = uuid.NewString()
		}
	}

	if err := e.db.CompleteJob(ctx, jobID, batch, time.Now()); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	return nil
}

// Fail moves a job running → failed with an error message. The document flips
// to failed but its previous successful generation stays queryable.
func (e *JobEngine) Fail(ctx context.Context, jobID, errorMessage string) error {
	if err := e.db.FailJob(ctx, jobID, errorMessage, time.Now()); err != nil {
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	return nil
}

// SweepStale force-fails running jobs older than the threshold, clearing the
// single-flight slot so a retry can proceed. A real completion racing the
// sweep wins or loses atomically via the shared transition guard.
func (e *JobEngine) SweepStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	n, err := e.db.FailStaleJobs(ctx, cutoff, fmt.Sprintf("timed out: running longer than %s", olderThan))
	if err != nil {
		return n, fmt.Errorf("sweep stale jobs: %w", err)
	}
	return n, nil
}

// ValidateChunkBatch checks that the batch is non-empty and its chunk indices
// form exactly 0..n-1 with no gaps or duplicates. Violations are never
// silently corrected.
func ValidateChunkBatch(batch []models.Chunk) error {
	if len(batch) == 0 {
		return fmt.Errorf("%w: empty chunk batch", models.ErrValidationFailure)
	}
	seen := make(map[int]bool, len(batch))
	for i := range batch {
		idx := batch[i].ChunkIndex
		if idx < 0 || idx >= len(batch) {
			return fmt.Errorf("%w: chunk index %d out of range [0,%d)", models.ErrValidationFailure, idx, len(batch))
		}
		if seen[idx] {
			return fmt.Errorf("%w: duplicate chunk index %d", models.ErrValidationFailure, idx)
		}
		seen[idx] = true
	}
	return nil
}

// IsRetryable reports whether an enqueue/retry error is worth retrying later
// rather than a permanent defect.
func IsRetryable(err error) bool {
	return errors.Is(err, models.ErrTransientDependency) || errors.Is(err, models.ErrConflictingJob)
}
