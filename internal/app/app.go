package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/citevault/citevault/internal/config"
	db "github.com/citevault/citevault/internal/core/database"
	"github.com/citevault/citevault/internal/core/ingestion_engine"
	"github.com/citevault/citevault/internal/core/llm"
	objectclient "github.com/citevault/citevault/internal/core/object-client"
	"github.com/citevault/citevault/internal/services"
)

type App struct {
	DBClient *db.DatabaseClient
	Server   *Server

	ingestor *ingestion_engine.DocumentIngestor
	sweeper  *ingestion_engine.Sweeper
	cfg      *config.Config
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	geminiEmbedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm: %w", err)
	}

	extractor := ingestion_engine.NewDocconvExtractor(false)

	ingCfg := &ingestion_engine.IngestConfig{
		TargetTokens:  cfg.ChunkTargetTokens,
		OverlapTokens: cfg.ChunkOverlapTokens,
		BatchSize:     cfg.EmbedBatchSize,
		EmbedDim:      cfg.EmbedDim,
	}

	engine := ingestion_engine.NewJobEngine(dbClient)
	docIngestor := ingestion_engine.NewDocumentIngestor(engine, dbClient, objClient, geminiEmbedder, extractor, ingCfg)
	sweeper := ingestion_engine.NewSweeper(engine, cfg.JobStaleAfter, cfg.SweepInterval)

	tenancy := services.NewTenancyService(dbClient)
	registry := services.NewRegistryService(dbClient, objClient, cfg.BucketName)
	audit := services.NewAuditService(dbClient)

	server := NewServer(cfg, dbClient, geminiEmbedder, llmProvider, tenancy, registry, audit, engine, docIngestor)

	return &App{
		DBClient: dbClient,
		Server:   server,
		ingestor: docIngestor,
		sweeper:  sweeper,
		cfg:      cfg,
	}, nil
}

// Start launches the ingestion workers, the liveness sweeper and the HTTP server.
func (a *App) Start(ctx context.Context) {
	a.ingestor.Start(ctx, a.cfg.IngestWorkers)
	go a.sweeper.Run(ctx)
	go a.Server.Start()
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
