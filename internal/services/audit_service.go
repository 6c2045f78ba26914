package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/citevault/citevault/internal/core"
	"github.com/citevault/citevault/internal/models"
)

// AuditService is the append-only evidence trail for retrieval-augmented
// queries. Writes here must never fail the user-facing answer they describe:
// callers log errors from this service and carry on.
type AuditService struct {
	db core.DbClient
}

func NewAuditService(db core.DbClient) *AuditService {
	return &AuditService{db: db}
}

// QueryRecord is the caller-facing input to RecordQuery. The question is
// hashed here; the raw text never reaches storage.
type QueryRecord struct {
	TeamID           string
	ProjectID        string
	APIKeyID         *string
	Question         string
	UsedRAG          bool
	TopK             int
	Model            string
	LatencyMs        int
	PromptTokens     int
	CompletionTokens int
}

func (s *AuditService) RecordQuery(ctx context.Context, rec QueryRecord) (*models.QueryLog, error) {
	q := &models.QueryLog{
		ID:               uuid.NewString(),
		TeamID:           rec.TeamID,
		ProjectID:        rec.ProjectID,
		APIKeyID:         rec.APIKeyID,
		QuestionHash:     HashSecret(rec.Question),
		UsedRAG:          rec.UsedRAG,
		TopK:             rec.TopK,
		Model:            rec.Model,
		LatencyMs:        rec.LatencyMs,
		PromptTokens:     rec.PromptTokens,
		CompletionTokens: rec.CompletionTokens,
		CreatedAt:        time.Now(),
	}
	if err := s.db.InsertQueryLog(ctx, q); err != nil {
		return nil, fmt.Errorf("record query: %w", err)
	}
	return q, nil
}

// RecordCitations writes the ranked chunk references for a query
// all-or-nothing. A malformed set fails validation and nothing is written:
// the query log stands with zero citations rather than a corrupt ranking.
func (s *AuditService) RecordCitations(ctx context.Context, queryID string, refs []models.QueryCitation) error {
	if err := ValidateCitations(refs); err != nil {
		return err
	}
	for i := range refs {
		refs[i].QueryID = queryID
	}
	if err := s.db.InsertCitations(ctx, refs); err != nil {
		return fmt.Errorf("record citations: %w", err)
	}
	return nil
}

// ResolvedCitation pairs a citation row with the chunk it points at.
type ResolvedCitation struct {
	models.QueryCitation
	Chunk models.Chunk `json:"chunk"`
}

// ResolveCitations returns a query's citations with their chunks, across all
// generations: re-ingestion never orphans recorded evidence.
func (s *AuditService) ResolveCitations(ctx context.Context, queryID string) ([]ResolvedCitation, error) {
	cits, err := s.db.ListCitationsByQuery(ctx, queryID)
	if err != nil {
		return nil, err
	}
	if len(cits) == 0 {
		return nil, nil
	}
	ids := make([]string, len(cits))
	for i, c := range cits {
		ids[i] = c.ChunkID
	}
	chunks, err := s.db.GetChunksByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]ResolvedCitation, len(cits))
	for i, c := range cits {
		out[i] = ResolvedCitation{QueryCitation: c, Chunk: chunks[c.ChunkID]}
	}
	return out, nil
}

// ValidateCitations checks ranks form exactly 1..k with no duplicate chunk ids.
func ValidateCitations(refs []models.QueryCitation) error {
	seenRank := make(map[int]bool, len(refs))
	seenChunk := make(map[string]bool, len(refs))
	for _, r := range refs {
		if r.Rank < 1 || r.Rank > len(refs) {
			return fmt.Errorf("%w: citation rank %d out of range [1,%d]", models.ErrValidationFailure, r.Rank, len(refs))
		}
		if seenRank[r.Rank] {
			return fmt.Errorf("%w: duplicate citation rank %d", models.ErrValidationFailure, r.Rank)
		}
		if seenChunk[r.ChunkID] {
			return fmt.Errorf("%w: duplicate citation chunk %s", models.ErrValidationFailure, r.ChunkID)
		}
		seenRank[r.Rank] = true
		seenChunk[r.ChunkID] = true
	}
	return nil
}
