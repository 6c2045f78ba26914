package db

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/citevault/citevault/internal/models"
)

const chunkColumns = `
	id, document_id, generation, chunk_index, content, embedding,
	page_start, page_end, char_start, char_end, COALESCE(token_count, 0), created_at
`

func scanChunk(row interface{ Scan(...any) error }) (*models.Chunk, error) {
	var (
		ch  models.Chunk
		emb pgvector.Vector
	)
	err := row.Scan(
		&ch.ID, &ch.DocumentID, &ch.Generation, &ch.ChunkIndex, &ch.Content, &emb,
		&ch.PageStart, &ch.PageEnd, &ch.CharStart, &ch.CharEnd, &ch.TokenCount, &ch.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	ch.Embedding = emb.Slice()
	return &ch, nil
}

// ListCurrentChunks returns the document's current generation ordered by
// chunk_index. Empty when no successful ingestion has committed yet; an
// unknown document is models.ErrNotFound.
func (c *DatabaseClient) ListCurrentChunks(ctx context.Context, documentID string) ([]models.Chunk, error) {
	const q = `
		SELECT ch.id, ch.document_id, ch.generation, ch.chunk_index, ch.content, ch.embedding,
		       ch.page_start, ch.page_end, ch.char_start, ch.char_end,
		       COALESCE(ch.token_count, 0), ch.created_at
		FROM document_chunks ch
		JOIN documents d ON d.id = ch.document_id AND d.current_generation = ch.generation
		WHERE ch.document_id = $1
		ORDER BY ch.chunk_index ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Distinguish a document with no committed generation from one that does
	// not exist at all.
	if len(out) == 0 {
		if _, err := c.GetDocumentByID(ctx, documentID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GetChunksByIDs resolves chunks across all generations, superseded included.
// Query logs are immutable evidence, so citations must stay resolvable after
// re-ingestion. Any missing id is an error.
func (c *DatabaseClient) GetChunksByIDs(ctx context.Context, ids []string) (map[string]models.Chunk, error) {
	if len(ids) == 0 {
		return map[string]models.Chunk{}, nil
	}
	const q = `
		SELECT` + chunkColumns + `
		FROM document_chunks
		WHERE id = ANY($1)
	`
	rows, err := c.db.QueryContext(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]models.Chunk, len(ids))
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out[ch.ID] = *ch
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("%w: chunk %s", models.ErrNotFound, id)
		}
	}
	return out, nil
}

// SearchChunks finds the top-k nearest current-generation chunks across all
// ready documents in a project, by cosine distance.
func (c *DatabaseClient) SearchChunks(ctx context.Context, projectID string, queryVec []float32, limit int) ([]models.ScoredChunk, error) {
	const q = `
		SELECT ch.id, ch.document_id, ch.generation, ch.chunk_index, ch.content, ch.embedding,
		       ch.page_start, ch.page_end, ch.char_start, ch.char_end,
		       COALESCE(ch.token_count, 0), ch.created_at,
		       1 - (ch.embedding <=> $2) AS score
		FROM document_chunks ch
		JOIN documents d ON d.id = ch.document_id AND d.current_generation = ch.generation
		WHERE d.project_id = $1 AND d.status = 'ready'
		ORDER BY ch.embedding <=> $2
		LIMIT $3
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, projectID, vec, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoredChunk
	for rows.Next() {
		var (
			sc  models.ScoredChunk
			emb pgvector.Vector
		)
		if err := rows.Scan(
			&sc.ID, &sc.DocumentID, &sc.Generation, &sc.ChunkIndex, &sc.Content, &emb,
			&sc.PageStart, &sc.PageEnd, &sc.CharStart, &sc.CharEnd,
			&sc.TokenCount, &sc.CreatedAt, &sc.Score,
		); err != nil {
			return nil, err
		}
		sc.Embedding = emb.Slice()
		out = append(out, sc)
	}
	return out, rows.Err()
}
