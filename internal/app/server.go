package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/citevault/citevault/internal/api/handlers"
	appMiddleware "github.com/citevault/citevault/internal/api/middlewares"
	"github.com/citevault/citevault/internal/config"
	"github.com/citevault/citevault/internal/core"
	ingestor "github.com/citevault/citevault/internal/core/ingestion_engine"
	"github.com/citevault/citevault/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes. Control-plane routes sit behind the
// operator JWT; data-plane routes behind the team API key.
func NewServer(cfg *config.Config, db core.DbClient, emb core.EmbeddingProvider, llm core.LLMProvider,
	tenancy *services.TenancyService, registry *services.RegistryService, audit *services.AuditService,
	engine *ingestor.JobEngine, ing *ingestor.DocumentIngestor) *Server {

	authHandler := handlers.NewAuthHandler(db)
	teamHandler := handlers.NewTeamHandler(tenancy)
	docHandler := handlers.NewDocumentHandler(registry, engine, ing, cfg)
	chunkHandler := handlers.NewChunkHandler(db)
	queryHandler := handlers.NewQueryHandler(db, emb, llm, audit, cfg)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// control plane: operators manage tenancy and ingestion
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware)

			protected.Post("/teams", teamHandler.CreateTeam)
			protected.Get("/teams/{teamID}", teamHandler.GetTeam)
			protected.Post("/teams/{teamID}/projects", teamHandler.CreateProject)
			protected.Post("/teams/{teamID}/keys", teamHandler.IssueAPIKey)
			protected.Post("/keys/{keyID}/revoke", teamHandler.RevokeAPIKey)

			protected.Post("/documents/upload", docHandler.UploadDocument)
			protected.Get("/documents", docHandler.ListDocuments)
			protected.Get("/documents/{documentID}", docHandler.GetDocument)
			protected.Get("/documents/{documentID}/jobs", docHandler.ListJobs)
			protected.Get("/documents/{documentID}/chunks", chunkHandler.ListCurrent)
			protected.Post("/documents/{documentID}/reingest", docHandler.Reingest)

			protected.Get("/queries/{queryID}/citations", queryHandler.GetCitations)
		})

		// data plane: API-key holders ask questions
		api.Group(func(data chi.Router) {
			data.Use(appMiddleware.APIKeyMiddleware(tenancy))
			data.Post("/query", queryHandler.Query)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
