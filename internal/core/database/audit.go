package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/citevault/citevault/internal/models"
)

func (c *DatabaseClient) InsertQueryLog(ctx context.Context, q *models.QueryLog) error {
	if q == nil {
		return errors.New("nil query log")
	}
	const stmt = `
		INSERT INTO query_logs
			(id, team_id, project_id, api_key_id, question_hash, used_rag,
			 top_k, model, latency_ms, prompt_tokens, completion_tokens, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, now()))
	`
	_, err := c.db.ExecContext(ctx, stmt,
		q.ID, q.TeamID, q.ProjectID, q.APIKeyID, q.QuestionHash, q.UsedRAG,
		q.TopK, q.Model, q.LatencyMs, q.PromptTokens, q.CompletionTokens,
		nullableTime(q.CreatedAt))
	return mapConstraintErr(err)
}

// InsertCitations writes all citation rows for a query in one transaction:
// ranks become visible all-or-nothing.
func (c *DatabaseClient) InsertCitations(ctx context.Context, citations []models.QueryCitation) error {
	if len(citations) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const stmt = `
		INSERT INTO query_citations (query_id, chunk_id, rank, score)
		VALUES ($1, $2, $3, $4)
	`
	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer prepared.Close()

	for _, cit := range citations {
		if _, err := prepared.ExecContext(ctx, cit.QueryID, cit.ChunkID, cit.Rank, cit.Score); err != nil {
			return mapConstraintErr(err)
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) ListCitationsByQuery(ctx context.Context, queryID string) ([]models.QueryCitation, error) {
	const q = `
		SELECT query_id, chunk_id, rank, COALESCE(score, 0)
		FROM query_citations
		WHERE query_id = $1
		ORDER BY rank ASC
	`
	rows, err := c.db.QueryContext(ctx, q, queryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.QueryCitation
	for rows.Next() {
		var cit models.QueryCitation
		if err := rows.Scan(&cit.QueryID, &cit.ChunkID, &cit.Rank, &cit.Score); err != nil {
			return nil, err
		}
		out = append(out, cit)
	}
	return out, rows.Err()
}
