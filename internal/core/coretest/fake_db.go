// Package coretest provides an in-memory core.DbClient for tests. It mirrors
// the transactional semantics of the Postgres client: guarded job
// transitions, the single-flight constraint, generation-versioned chunks and
// all-or-nothing citation writes.
package coretest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/citevault/citevault/internal/core"
	"github.com/citevault/citevault/internal/models"
)

type FakeDB struct {
	mu sync.Mutex

	Operators map[string]models.Operator // by email
	Teams     map[string]models.Team
	Projects  map[string]models.Project
	Keys      map[string]models.APIKey
	Docs      map[string]*models.Document
	Jobs      map[string]*models.IngestionJob
	Chunks    map[string]models.Chunk
	QueryLogs map[string]models.QueryLog
	Citations map[string][]models.QueryCitation

	// FailQueryLogInsert makes InsertQueryLog return an error, for testing
	// that audit failures stay non-fatal.
	FailQueryLogInsert bool
}

var _ core.DbClient = (*FakeDB)(nil)

func NewFakeDB() *FakeDB {
	return &FakeDB{
		Operators: map[string]models.Operator{},
		Teams:     map[string]models.Team{},
		Projects:  map[string]models.Project{},
		Keys:      map[string]models.APIKey{},
		Docs:      map[string]*models.Document{},
		Jobs:      map[string]*models.IngestionJob{},
		Chunks:    map[string]models.Chunk{},
		QueryLogs: map[string]models.QueryLog{},
		Citations: map[string][]models.QueryCitation{},
	}
}

// Seed helpers

func (f *FakeDB) SeedTeamProject() (teamID, projectID string) {
	teamID, projectID = uuid.NewString(), uuid.NewString()
	f.Teams[teamID] = models.Team{ID: teamID, Name: "team", CreatedAt: time.Now()}
	f.Projects[projectID] = models.Project{ID: projectID, TeamID: teamID, Name: "project", CreatedAt: time.Now()}
	return teamID, projectID
}

func (f *FakeDB) SeedDocument(teamID, projectID string) *models.Document {
	doc := &models.Document{
		ID:         uuid.NewString(),
		TeamID:     teamID,
		ProjectID:  projectID,
		Title:      "doc",
		SourceType: models.SourceUpload,
		Status:     models.DocUploaded,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	f.Docs[doc.ID] = doc
	return doc
}

// tenancy

func (f *FakeDB) CreateOperator(ctx context.Context, op *models.Operator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Operators[op.Email]; ok {
		return fmt.Errorf("operator exists")
	}
	f.Operators[op.Email] = *op
	return nil
}

func (f *FakeDB) GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	op, ok := f.Operators[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &op, nil
}

func (f *FakeDB) CreateTeam(ctx context.Context, team *models.Team) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Teams[team.ID] = *team
	return nil
}

func (f *FakeDB) GetTeamByID(ctx context.Context, id string) (*models.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.Teams[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &t, nil
}

func (f *FakeDB) CreateProject(ctx context.Context, project *models.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Teams[project.TeamID]; !ok {
		return models.ErrInvalidReference
	}
	f.Projects[project.ID] = *project
	return nil
}

func (f *FakeDB) GetProjectByID(ctx context.Context, id string) (*models.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Projects[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &p, nil
}

func (f *FakeDB) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Teams[key.TeamID]; !ok {
		return models.ErrInvalidReference
	}
	f.Keys[key.ID] = *key
	return nil
}

func (f *FakeDB) GetActiveAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.Keys {
		if k.KeyHash == keyHash && k.Status == models.KeyActive {
			key := k
			return &key, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *FakeDB) RevokeAPIKey(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.Keys[id]
	if !ok {
		return models.ErrNotFound
	}
	if k.Status != models.KeyActive {
		return fmt.Errorf("%w: api key already revoked", models.ErrInvalidTransition)
	}
	k.Status = models.KeyRevoked
	k.RevokedAt = &at
	f.Keys[id] = k
	return nil
}

// documents

func (f *FakeDB) CreateDocument(ctx context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Teams[doc.TeamID]; !ok {
		return models.ErrInvalidReference
	}
	if _, ok := f.Projects[doc.ProjectID]; !ok {
		return models.ErrInvalidReference
	}
	cp := *doc
	f.Docs[doc.ID] = &cp
	return nil
}

func (f *FakeDB) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.Docs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *FakeDB) ListDocumentsByProject(ctx context.Context, projectID string) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Document
	for _, d := range f.Docs {
		if d.ProjectID == projectID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// jobs

func (f *FakeDB) InsertJob(ctx context.Context, job *models.IngestionJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.Docs[job.DocumentID]
	if !ok {
		return models.ErrInvalidReference
	}
	for _, j := range f.Jobs {
		if j.DocumentID == job.DocumentID && j.Status.Active() {
			return models.ErrConflictingJob
		}
	}
	if !doc.Status.CanStartProcessing() {
		return fmt.Errorf("%w: document not eligible for processing", models.ErrInvalidTransition)
	}
	cp := *job
	f.Jobs[job.ID] = &cp
	doc.Status = models.DocProcessing
	doc.UpdatedAt = time.Now()
	return nil
}

func (f *FakeDB) GetJobByID(ctx context.Context, id string) (*models.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.Jobs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *FakeDB) ListJobsByDocument(ctx context.Context, documentID string) ([]models.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.IngestionJob
	for _, j := range f.Jobs {
		if j.DocumentID == documentID {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *FakeDB) StartJob(ctx context.Context, jobID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.Jobs[jobID]
	if !ok {
		return models.ErrNotFound
	}
	if j.Status != models.JobQueued {
		return fmt.Errorf("%w: job is not queued", models.ErrInvalidTransition)
	}
	j.Status = models.JobRunning
	j.StartedAt = &at
	return nil
}

func (f *FakeDB) CompleteJob(ctx context.Context, jobID string, chunks []models.Chunk, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.Jobs[jobID]
	if !ok {
		return models.ErrNotFound
	}
	if j.Status != models.JobRunning {
		return fmt.Errorf("%w: job is not running", models.ErrInvalidTransition)
	}
	doc, ok := f.Docs[j.DocumentID]
	if !ok {
		return models.ErrNotFound
	}

	next := doc.CurrentGeneration + 1
	seen := map[int]bool{}
	for i := range chunks {
		if seen[chunks[i].ChunkIndex] {
			return fmt.Errorf("%w: duplicate chunk index", models.ErrValidationFailure)
		}
		seen[chunks[i].ChunkIndex] = true
	}
	for i := range chunks {
		ch := chunks[i]
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		ch.DocumentID = j.DocumentID
		ch.Generation = next
		if ch.CreatedAt.IsZero() {
			ch.CreatedAt = at
		}
		f.Chunks[ch.ID] = ch
	}

	j.Status = models.JobSucceeded
	j.FinishedAt = &at
	j.ChunksCreated = len(chunks)
	doc.Status = models.DocReady
	doc.CurrentGeneration = next
	doc.UpdatedAt = at
	return nil
}

func (f *FakeDB) FailJob(ctx context.Context, jobID string, errorMessage string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failLocked(jobID, errorMessage, at)
}

func (f *FakeDB) failLocked(jobID, errorMessage string, at time.Time) error {
	j, ok := f.Jobs[jobID]
	if !ok {
		return models.ErrNotFound
	}
	if j.Status != models.JobRunning {
		return fmt.Errorf("%w: job already terminal", models.ErrInvalidTransition)
	}
	doc, ok := f.Docs[j.DocumentID]
	if !ok {
		return models.ErrNotFound
	}
	j.Status = models.JobFailed
	j.FinishedAt = &at
	j.ErrorMessage = errorMessage
	doc.Status = models.DocFailed
	doc.UpdatedAt = at
	return nil
}

func (f *FakeDB) FailStaleJobs(ctx context.Context, runningSince time.Time, errorMessage string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, j := range f.Jobs {
		if j.Status == models.JobRunning && j.StartedAt != nil && j.StartedAt.Before(runningSince) {
			if err := f.failLocked(id, errorMessage, time.Now()); err == nil {
				n++
			}
		}
	}
	return n, nil
}

// chunks

func (f *FakeDB) ListCurrentChunks(ctx context.Context, documentID string) ([]models.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.Docs[documentID]
	if !ok {
		return nil, models.ErrNotFound
	}
	var out []models.Chunk
	for _, ch := range f.Chunks {
		if ch.DocumentID == documentID && ch.Generation == doc.CurrentGeneration {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (f *FakeDB) GetChunksByIDs(ctx context.Context, ids []string) (map[string]models.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]models.Chunk, len(ids))
	for _, id := range ids {
		ch, ok := f.Chunks[id]
		if !ok {
			return nil, fmt.Errorf("%w: chunk %s", models.ErrNotFound, id)
		}
		out[id] = ch
	}
	return out, nil
}

func (f *FakeDB) SearchChunks(ctx context.Context, projectID string, queryVec []float32, limit int) ([]models.ScoredChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ScoredChunk
	for _, ch := range f.Chunks {
		doc, ok := f.Docs[ch.DocumentID]
		if !ok || doc.ProjectID != projectID || doc.Status != models.DocReady || ch.Generation != doc.CurrentGeneration {
			continue
		}
		out = append(out, models.ScoredChunk{Chunk: ch, Score: cosine(queryVec, ch.Embedding)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// audit

func (f *FakeDB) InsertQueryLog(ctx context.Context, q *models.QueryLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailQueryLogInsert {
		return fmt.Errorf("query log insert unavailable")
	}
	f.QueryLogs[q.ID] = *q
	return nil
}

func (f *FakeDB) InsertCitations(ctx context.Context, citations []models.QueryCitation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(citations) == 0 {
		return nil
	}
	queryID := citations[0].QueryID
	seen := map[string]bool{}
	for _, c := range f.Citations[queryID] {
		seen[c.ChunkID] = true
	}
	for _, c := range citations {
		if seen[c.ChunkID] {
			return fmt.Errorf("%w: duplicate citation chunk", models.ErrValidationFailure)
		}
		seen[c.ChunkID] = true
	}
	f.Citations[queryID] = append(f.Citations[queryID], citations...)
	return nil
}

func (f *FakeDB) ListCitationsByQuery(ctx context.Context, queryID string) ([]models.QueryCitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]models.QueryCitation(nil), f.Citations[queryID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (f *FakeDB) Close() error { return nil }

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
