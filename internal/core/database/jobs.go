package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/citevault/citevault/internal/models"
)

// InsertJob creates a queued job and moves the document to processing in one
// transaction. The uq_jobs_active partial unique index rejects a second
// active job per document, which surfaces as models.ErrConflictingJob.
func (c *DatabaseClient) InsertJob(ctx context.Context, job *models.IngestionJob) error {
	if job == nil {
		return errors.New("nil job")
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const insertQ = `
		INSERT INTO ingestion_jobs (id, document_id, status, embedding_model, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`
	if _, err := tx.ExecContext(ctx, insertQ,
		job.ID, job.DocumentID, job.Status, job.EmbeddingModel, nullableTime(job.CreatedAt),
	); err != nil {
		return mapConstraintErr(err)
	}

	const docQ = `
		UPDATE documents
		SET status = 'processing', updated_at = now()
		WHERE id = $1 AND status IN ('uploaded', 'ready', 'failed')
	`
	res, err := tx.ExecContext(ctx, docQ, job.DocumentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Document missing, or stuck in processing without an active job
		// (sweeper territory). Either way enqueue must not proceed.
		if _, err := getDocumentTx(ctx, tx, job.DocumentID); err != nil {
			return err
		}
		return fmt.Errorf("%w: document not eligible for processing", models.ErrInvalidTransition)
	}

	return tx.Commit()
}

func (c *DatabaseClient) GetJobByID(ctx context.Context, id string) (*models.IngestionJob, error) {
	const q = `
		SELECT id, document_id, status, COALESCE(error_message, ''), started_at,
		       finished_at, COALESCE(chunks_created, 0), COALESCE(embedding_model, ''), created_at
		FROM ingestion_jobs WHERE id = $1
	`
	var j models.IngestionJob
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&j.ID, &j.DocumentID, &j.Status, &j.ErrorMessage, &j.StartedAt,
		&j.FinishedAt, &j.ChunksCreated, &j.EmbeddingModel, &j.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (c *DatabaseClient) ListJobsByDocument(ctx context.Context, documentID string) ([]models.IngestionJob, error) {
	const q = `
		SELECT id, document_id, status, COALESCE(error_message, ''), started_at,
		       finished_at, COALESCE(chunks_created, 0), COALESCE(embedding_model, ''), created_at
		FROM ingestion_jobs
		WHERE document_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.IngestionJob
	for rows.Next() {
		var j models.IngestionJob
		if err := rows.Scan(
			&j.ID, &j.DocumentID, &j.Status, &j.ErrorMessage, &j.StartedAt,
			&j.FinishedAt, &j.ChunksCreated, &j.EmbeddingModel, &j.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// StartJob is a guarded queued → running edge.
func (c *DatabaseClient) StartJob(ctx context.Context, jobID string, at time.Time) error {
	const q = `
		UPDATE ingestion_jobs
		SET status = 'running', started_at = $2
		WHERE id = $1 AND status = 'queued'
	`
	res, err := c.db.ExecContext(ctx, q, jobID, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := c.GetJobByID(ctx, jobID); err != nil {
			return err
		}
		return fmt.Errorf("%w: job is not queued", models.ErrInvalidTransition)
	}
	return nil
}

// CompleteJob commits a chunk generation atomically: the running → succeeded
// edge, the new chunk rows at generation g+1, and the document flip to ready
// with current_generation = g+1 all land in one transaction. The superseded
// generation stays in place so historical citations keep resolving.
func (c *DatabaseClient) CompleteJob(ctx context.Context, jobID string, chunks []models.Chunk, at time.Time) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const jobQ = `
		UPDATE ingestion_jobs
		SET status = 'succeeded', finished_at = $2, chunks_created = $3
		WHERE id = $1 AND status = 'running'
		RETURNING document_id
	`
	var documentID string
	err = tx.QueryRowContext(ctx, jobQ, jobID, at, len(chunks)).Scan(&documentID)
	if err == sql.ErrNoRows {
		if _, err := c.GetJobByID(ctx, jobID); err != nil {
			return err
		}
		return fmt.Errorf("%w: job is not running", models.ErrInvalidTransition)
	}
	if err != nil {
		return err
	}

	// Lock the document row so concurrent generation bumps serialize.
	const genQ = `
		SELECT current_generation FROM documents WHERE id = $1 FOR UPDATE
	`
	var gen int
	if err := tx.QueryRowContext(ctx, genQ, documentID).Scan(&gen); err != nil {
		if err == sql.ErrNoRows {
			return models.ErrNotFound
		}
		return err
	}
	next := gen + 1

	const chunkQ = `
		INSERT INTO document_chunks
			(id, document_id, generation, chunk_index, content, embedding,
			 page_start, page_end, char_start, char_end, token_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, now()))
	`
	stmt, err := tx.PrepareContext(ctx, chunkQ)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			ch.ID, documentID, next, ch.ChunkIndex, ch.Content, vec,
			ch.PageStart, ch.PageEnd, ch.CharStart, ch.CharEnd, ch.TokenCount,
			nullableTime(ch.CreatedAt),
		); err != nil {
			return mapConstraintErr(err)
		}
	}

	const docQ = `
		UPDATE documents
		SET status = 'ready', current_generation = $2, updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, docQ, documentID, next); err != nil {
		return err
	}

	return tx.Commit()
}

// FailJob is the guarded running → failed edge. The document flips to failed
// but keeps its current generation, so a failed re-ingestion never destroys
// previously good chunks.
func (c *DatabaseClient) FailJob(ctx context.Context, jobID string, errorMessage string, at time.Time) error {
	return c.failJobFrom(ctx, jobID, []string{"running"}, errorMessage, at)
}

func (c *DatabaseClient) failJobFrom(ctx context.Context, jobID string, fromStates []string, errorMessage string, at time.Time) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const jobQ = `
		UPDATE ingestion_jobs
		SET status = 'failed', finished_at = $2, error_message = $3
		WHERE id = $1 AND status = ANY($4)
		RETURNING document_id
	`
	var documentID string
	err = tx.QueryRowContext(ctx, jobQ, jobID, at, errorMessage, fromStates).Scan(&documentID)
	if err == sql.ErrNoRows {
		if _, err := c.GetJobByID(ctx, jobID); err != nil {
			return err
		}
		return fmt.Errorf("%w: job already terminal", models.ErrInvalidTransition)
	}
	if err != nil {
		return err
	}

	const docQ = `
		UPDATE documents
		SET status = 'failed', updated_at = now()
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, docQ, documentID); err != nil {
		return err
	}

	return tx.Commit()
}

// FailStaleJobs force-fails running jobs whose started_at predates the cutoff.
// It uses the same guarded edge as FailJob, so a completion racing the sweep
// loses cleanly: whichever transition commits first wins, the other sees an
// invalid transition.
func (c *DatabaseClient) FailStaleJobs(ctx context.Context, runningSince time.Time, errorMessage string) (int, error) {
	const q = `
		SELECT id FROM ingestion_jobs
		WHERE status = 'running' AND started_at < $1
	`
	rows, err := c.db.QueryContext(ctx, q, runningSince)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	failed := 0
	for _, id := range ids {
		err := c.failJobFrom(ctx, id, []string{"running"}, errorMessage, time.Now())
		if errors.Is(err, models.ErrInvalidTransition) {
			continue // finished between the scan and the sweep
		}
		if err != nil {
			return failed, err
		}
		failed++
	}
	return failed, nil
}

func getDocumentTx(ctx context.Context, tx *sql.Tx, id string) (*models.Document, error) {
	const q = `SELECT` + documentColumns + `FROM documents WHERE id = $1`
	d, err := scanDocument(tx.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}
