package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citevault/citevault/internal/core/coretest"
	"github.com/citevault/citevault/internal/models"
)

func citations(pairs ...string) []models.QueryCitation {
	refs := make([]models.QueryCitation, len(pairs))
	for i, id := range pairs {
		refs[i] = models.QueryCitation{ChunkID: id, Rank: i + 1, Score: 0.9 - float64(i)*0.1}
	}
	return refs
}

func TestRecordQueryHashesQuestion(t *testing.T) {
	ctx := context.Background()
	db := coretest.NewFakeDB()
	teamID, projectID := db.SeedTeamProject()
	audit := NewAuditService(db)

	q, err := audit.RecordQuery(ctx, QueryRecord{
		TeamID:    teamID,
		ProjectID: projectID,
		Question:  "what is the refund policy?",
		UsedRAG:   true,
		TopK:      5,
		Model:     "gemini-1.5-flash",
	})
	require.NoError(t, err)

	stored, ok := db.QueryLogs[q.ID]
	require.True(t, ok)
	assert.NotEqual(t, "what is the refund policy?", stored.QuestionHash)
	assert.Len(t, stored.QuestionHash, 64)
	assert.Equal(t, HashSecret("what is the refund policy?"), stored.QuestionHash)
}

func TestRecordCitationsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	db := coretest.NewFakeDB()
	teamID, projectID := db.SeedTeamProject()
	audit := NewAuditService(db)

	q, err := audit.RecordQuery(ctx, QueryRecord{TeamID: teamID, ProjectID: projectID, Question: "q", UsedRAG: true, TopK: 2})
	require.NoError(t, err)

	dup := uuid.NewString()
	err = audit.RecordCitations(ctx, q.ID, citations(dup, dup))
	assert.ErrorIs(t, err, models.ErrValidationFailure)

	// The query log stands with zero citations rather than a partial set.
	got, err := db.ListCitationsByQuery(ctx, q.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
	_, ok := db.QueryLogs[q.ID]
	assert.True(t, ok)
}

func TestRecordAndResolveCitations(t *testing.T) {
	ctx := context.Background()
	db := coretest.NewFakeDB()
	teamID, projectID := db.SeedTeamProject()
	doc := db.SeedDocument(teamID, projectID)
	audit := NewAuditService(db)

	ids := make([]string, 3)
	for i := range ids {
		ids[i] = uuid.NewString()
		db.Chunks[ids[i]] = models.Chunk{
			ID:         ids[i],
			DocumentID: doc.ID,
			Generation: 1,
			ChunkIndex: i,
			Content:    "chunk body",
			CreatedAt:  time.Now(),
		}
	}

	q, err := audit.RecordQuery(ctx, QueryRecord{TeamID: teamID, ProjectID: projectID, Question: "q", UsedRAG: true, TopK: 3})
	require.NoError(t, err)
	require.NoError(t, audit.RecordCitations(ctx, q.ID, citations(ids...)))

	resolved, err := audit.ResolveCitations(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, resolved, 3)
	for i, r := range resolved {
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, ids[i], r.ChunkID)
		assert.Equal(t, ids[i], r.Chunk.ID)
		assert.Equal(t, "chunk body", r.Chunk.Content)
	}
}

func TestResolveCitationsSurvivesReingestion(t *testing.T) {
	ctx := context.Background()
	db := coretest.NewFakeDB()
	teamID, projectID := db.SeedTeamProject()
	doc := db.SeedDocument(teamID, projectID)
	audit := NewAuditService(db)

	// A chunk from a generation that has since been superseded.
	oldChunk := models.Chunk{ID: uuid.NewString(), DocumentID: doc.ID, Generation: 1, ChunkIndex: 0, Content: "old"}
	db.Chunks[oldChunk.ID] = oldChunk
	doc.CurrentGeneration = 2
	doc.Status = models.DocReady

	q, err := audit.RecordQuery(ctx, QueryRecord{TeamID: teamID, ProjectID: projectID, Question: "q", UsedRAG: true, TopK: 1})
	require.NoError(t, err)
	require.NoError(t, audit.RecordCitations(ctx, q.ID, citations(oldChunk.ID)))

	resolved, err := audit.ResolveCitations(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "old", resolved[0].Chunk.Content)
	assert.Equal(t, 1, resolved[0].Chunk.Generation)
}

func TestResolveCitationsEmpty(t *testing.T) {
	db := coretest.NewFakeDB()
	audit := NewAuditService(db)

	resolved, err := audit.ResolveCitations(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, resolved)
}

func TestValidateCitations(t *testing.T) {
	a, b, c := uuid.NewString(), uuid.NewString(), uuid.NewString()
	tests := []struct {
		name    string
		refs    []models.QueryCitation
		wantErr bool
	}{
		{"empty", nil, false},
		{"single", citations(a), false},
		{"dense ranks", citations(a, b, c), false},
		{"rank zero", []models.QueryCitation{{ChunkID: a, Rank: 0}}, true},
		{"rank past k", []models.QueryCitation{{ChunkID: a, Rank: 1}, {ChunkID: b, Rank: 3}}, true},
		{"duplicate rank", []models.QueryCitation{{ChunkID: a, Rank: 1}, {ChunkID: b, Rank: 1}}, true},
		{"duplicate chunk", citations(a, a), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCitations(tt.refs)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrValidationFailure)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
