package ingestion_engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/citevault/citevault/internal/core/coretest"
	"github.com/citevault/citevault/internal/models"
)

type stubStorage struct {
	data []byte
	err  error
}

func (s *stubStorage) UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (string, error) {
	return "", errors.New("not implemented")
}
func (s *stubStorage) DeleteFile(ctx context.Context, bucket, key string) error { return nil }
func (s *stubStorage) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	return s.data, s.err
}
func (s *stubStorage) GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(s.data))), s.err
}

// stubExtractor streams each non-empty line of the payload.
type stubExtractor struct{}

func (stubExtractor) ExtractText(ctx context.Context, g *errgroup.Group, data []byte, contentType string) (<-chan string, error) {
	out := make(chan string, 8)
	g.Go(func() error {
		defer close(out)
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	return out, nil
}

type stubEmbedder struct {
	dim   int
	err   error
	calls int
}

func (e *stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	vecs := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, e.dim)
		vec[0] = float32(len(texts[i]))
		vecs[i] = vec
	}
	return vecs, nil
}

func newTestIngestor(db *coretest.FakeDB, storage *stubStorage, emb *stubEmbedder) (*DocumentIngestor, *JobEngine) {
	engine := NewJobEngine(db)
	cfg := &IngestConfig{TargetTokens: 8, OverlapTokens: 2, BatchSize: 2, EmbedDim: emb.dim}
	return NewDocumentIngestor(engine, db, storage, emb, stubExtractor{}, cfg), engine
}

func seedUploadedDoc(db *coretest.FakeDB) *models.Document {
	teamID, projectID := db.SeedTeamProject()
	doc := db.SeedDocument(teamID, projectID)
	doc.StorageURL = "https://bucket.s3.us-east-1.amazonaws.com/teams/t/documents/d/a.txt"
	doc.MimeType = "text/plain"
	return doc
}

func TestProcessOneHappyPath(t *testing.T) {
	ctx := context.Background()
	db := coretest.NewFakeDB()
	doc := seedUploadedDoc(db)
	emb := &stubEmbedder{dim: 3}
	storage := &stubStorage{data: []byte("alpha bravo charlie delta\necho foxtrot golf hotel\nindia juliett kilo lima\n")}
	ingestor, engine := newTestIngestor(db, storage, emb)

	job, err := engine.Enqueue(ctx, doc.ID, "embedding-001")
	require.NoError(t, err)
	require.NoError(t, ingestor.ProcessOne(ctx, job.ID))

	got, err := db.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobSucceeded, got.Status)
	assert.Positive(t, got.ChunksCreated)

	d, err := db.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocReady, d.Status)
	assert.Equal(t, 1, d.CurrentGeneration)

	chunks, err := db.ListCurrentChunks(ctx, doc.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
		assert.Len(t, ch.Embedding, 3)
		require.NotNil(t, ch.CharStart)
		require.NotNil(t, ch.CharEnd)
		assert.Less(t, *ch.CharStart, *ch.CharEnd)
		assert.Positive(t, ch.TokenCount)
	}
	assert.Positive(t, emb.calls)
}

func TestProcessOneEmptyExtraction(t *testing.T) {
	ctx := context.Background()
	db := coretest.NewFakeDB()
	doc := seedUploadedDoc(db)
	emb := &stubEmbedder{dim: 3}
	storage := &stubStorage{data: []byte("   \n\t\n  \n")}
	ingestor, engine := newTestIngestor(db, storage, emb)

	job, err := engine.Enqueue(ctx, doc.ID, "embedding-001")
	require.NoError(t, err)

	err = ingestor.ProcessOne(ctx, job.ID)
	assert.ErrorIs(t, err, models.ErrValidationFailure)

	got, err := db.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "empty chunk batch")

	d, err := db.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocFailed, d.Status)
	assert.Equal(t, 0, d.CurrentGeneration)
	assert.Zero(t, emb.calls)
}

func TestProcessOneEmbedderDown(t *testing.T) {
	ctx := context.Background()
	db := coretest.NewFakeDB()
	doc := seedUploadedDoc(db)
	emb := &stubEmbedder{dim: 3, err: errors.New("quota exhausted")}
	storage := &stubStorage{data: []byte("some text to ingest\n")}
	ingestor, engine := newTestIngestor(db, storage, emb)

	job, err := engine.Enqueue(ctx, doc.ID, "embedding-001")
	require.NoError(t, err)

	err = ingestor.ProcessOne(ctx, job.ID)
	assert.ErrorIs(t, err, models.ErrTransientDependency)

	got, err := db.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "embed batch")

	d, err := db.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocFailed, d.Status)

	chunks, err := db.ListCurrentChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestProcessOneStorageDown(t *testing.T) {
	ctx := context.Background()
	db := coretest.NewFakeDB()
	doc := seedUploadedDoc(db)
	emb := &stubEmbedder{dim: 3}
	storage := &stubStorage{err: errors.New("connection reset")}
	ingestor, engine := newTestIngestor(db, storage, emb)

	job, err := engine.Enqueue(ctx, doc.ID, "embedding-001")
	require.NoError(t, err)

	err = ingestor.ProcessOne(ctx, job.ID)
	assert.ErrorIs(t, err, models.ErrTransientDependency)

	got, err := db.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
}

func TestProcessOneSkipsNonQueuedJob(t *testing.T) {
	ctx := context.Background()
	db := coretest.NewFakeDB()
	doc := seedUploadedDoc(db)
	emb := &stubEmbedder{dim: 3}
	storage := &stubStorage{data: []byte("text\n")}
	ingestor, engine := newTestIngestor(db, storage, emb)

	job, err := engine.Enqueue(ctx, doc.ID, "embedding-001")
	require.NoError(t, err)
	require.NoError(t, ingestor.ProcessOne(ctx, job.ID))

	// A second delivery of the same job ID is a no-op, not an error.
	require.NoError(t, ingestor.ProcessOne(ctx, job.ID))
	assert.Equal(t, 1, db.Docs[doc.ID].CurrentGeneration)
}

func TestProcessOneEmbedDimMismatch(t *testing.T) {
	ctx := context.Background()
	db := coretest.NewFakeDB()
	doc := seedUploadedDoc(db)
	emb := &stubEmbedder{dim: 5}
	storage := &stubStorage{data: []byte("some text to ingest\n")}
	ingestor, engine := newTestIngestor(db, storage, emb)
	ingestor.cfg.EmbedDim = 3

	job, err := engine.Enqueue(ctx, doc.ID, "embedding-001")
	require.NoError(t, err)

	err = ingestor.ProcessOne(ctx, job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")

	got, err := db.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.Status)
}

func TestParseS3URL(t *testing.T) {
	bucket, key := parseS3URL("https://my-bucket.s3.us-east-2.amazonaws.com/teams/t1/documents/d1/file.pdf")
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "teams/t1/documents/d1/file.pdf", key)

	bucket, key = parseS3URL("https://b.s3.amazonaws.com/")
	assert.Equal(t, "b", bucket)
	assert.Equal(t, "", key)
}
