package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/citevault/citevault/internal/config"
	"github.com/citevault/citevault/internal/core"
	"github.com/citevault/citevault/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		if _, err := os.Stat(cfg.SslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
		}
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// mapConstraintErr translates Postgres constraint violations into domain errors
// so callers never see raw pgconn errors for expected conflicts.
func mapConstraintErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505": // unique_violation
		switch pgErr.ConstraintName {
		case "uq_jobs_active":
			return models.ErrConflictingJob
		case "uq_chunks_order":
			return fmt.Errorf("%w: duplicate chunk index", models.ErrValidationFailure)
		case "query_citations_pkey":
			return fmt.Errorf("%w: duplicate citation chunk", models.ErrValidationFailure)
		}
		return err
	case "23503": // foreign_key_violation
		return models.ErrInvalidReference
	}
	return err
}
