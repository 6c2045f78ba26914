package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/citevault/citevault/internal/core"
	"github.com/citevault/citevault/internal/models"
)

// NewDocumentIngestor constructs the ingestor with a bounded job queue (64).
func NewDocumentIngestor(engine *JobEngine, db core.DbClient, obj core.ObjectClient, emb core.EmbeddingProvider, extract core.DocumentExtractor, cfg *IngestConfig) *DocumentIngestor {
	return &DocumentIngestor{
		engine: engine, db: db, obj: obj, embedder: emb, extract: extract, cfg: cfg,
		jobs: make(chan string, 64),
	}
}

// Start launches the worker goroutines reading from the jobs channel. Each
// worker drives one job at a time through the full extract → chunk → embed →
// commit pipeline.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					log.Println("DocumentIngestor: worker shutting down.")
					return
				case jobID := <-i.jobs:
					log.Printf("DocumentIngestor: worker %d processing job %s", w, jobID)
					if err := i.ProcessOne(ctx, jobID); err != nil {
						log.Printf("DocumentIngestor: job %s: %v", jobID, err)
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a queued job for processing. Blocks when the queue is full.
func (i *DocumentIngestor) Enqueue(jobID string) {
	i.jobs <- jobID
}

// ProcessOne runs a single queued job to a terminal state. Pipeline failures
// are recorded through the engine's Fail transition; the job never ends up
// stuck in running unless the process dies (then the sweeper reclaims it).
func (i *DocumentIngestor) ProcessOne(ctx context.Context, jobID string) error {
	// Fresh timeout decoupled from the request that enqueued the job.
	proctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	job, err := i.db.GetJobByID(proctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	if err := i.engine.Start(proctx, jobID); err != nil {
		// Swept or already picked up elsewhere; nothing to do here.
		if errors.Is(err, models.ErrInvalidTransition) {
			return nil
		}
		return err
	}

	batch, err := i.runPipeline(proctx, job)
	if err != nil {
		if failErr := i.engine.Fail(proctx, jobID, err.Error()); failErr != nil {
			log.Printf("DocumentIngestor: could not fail job %s: %v", jobID, failErr)
		}
		return err
	}

	return i.engine.Complete(proctx, jobID, batch)
}

// runPipeline streams the document through extraction, chunking and embedding
// and returns the complete chunk batch. The batch is committed in one shot by
// Complete; nothing becomes visible from here.
func (i *DocumentIngestor) runPipeline(ctx context.Context, job *models.IngestionJob) ([]models.Chunk, error) {
	doc, err := i.db.GetDocumentByID(ctx, job.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	bucket, key := parseS3URL(doc.StorageURL)
	data, err := i.obj.GetFile(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch object: %v", models.ErrTransientDependency, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	fragCh, err := i.extract.ExtractText(gctx, g, data, doc.MimeType)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	chunkCh := i.streamChunk(gctx, g, fragCh, i.cfg.TargetTokens, i.cfg.OverlapTokens)

	var batch []models.Chunk
	g.Go(func() error {
		out, err := i.embedChunks(gctx, job, chunkCh, i.cfg.BatchSize)
		if err != nil {
			return err
		}
		batch = out
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batch, nil
}

// embedChunks consumes the chunk stream in provider-sized batches and builds
// the final models.Chunk set.
func (i *DocumentIngestor) embedChunks(ctx context.Context, job *models.IngestionJob, chunks <-chan chunk, batchSize int) ([]models.Chunk, error) {
	var (
		out     []models.Chunk
		pending []chunk
	)

	embed := func() error {
		if len(pending) == 0 {
			return nil
		}
		texts := make([]string, len(pending))
		for j, ch := range pending {
			texts[j] = ch.Text
		}
		vecs, err := i.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("%w: embed batch: %v", models.ErrTransientDependency, err)
		}
		if len(vecs) != len(pending) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(pending))
		}
		for j, ch := range pending {
			if i.cfg.EmbedDim > 0 && len(vecs[j]) != i.cfg.EmbedDim {
				return fmt.Errorf("embedding dimension %d, want %d", len(vecs[j]), i.cfg.EmbedDim)
			}
			cs, ce := ch.CharStart, ch.CharEnd
			out = append(out, models.Chunk{
				DocumentID: job.DocumentID,
				ChunkIndex: ch.Pos,
				Content:    ch.Text,
				Embedding:  vecs[j],
				CharStart:  &cs,
				CharEnd:    &ce,
				TokenCount: ch.TokenCnt,
			})
		}
		pending = pending[:0]
		return nil
	}

	for ch := range chunks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		pending = append(pending, ch)
		if len(pending) >= batchSize {
			if err := embed(); err != nil {
				return nil, err
			}
		}
	}
	if err := embed(); err != nil {
		return nil, err
	}
	return out, nil
}

// parseS3URL extracts the bucket and key from a virtual-hosted-style S3 URL.
// Example: https://my-bucket.s3.us-east-2.amazonaws.com/path/to/file.pdf
func parseS3URL(u string) (bucket, key string) {
	hostPath := strings.SplitN(strings.TrimPrefix(u, "https://"), "/", 2)
	host := hostPath[0]
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	parts := strings.Split(host, ".")
	if len(parts) > 0 {
		bucket = parts[0]
	}
	return bucket, key
}
