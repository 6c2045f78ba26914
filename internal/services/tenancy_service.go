package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/citevault/citevault/internal/core"
	"github.com/citevault/citevault/internal/models"
)

// TenancyService owns the identity ledger: teams, projects and API keys.
// Reference data for everything else; nothing here is mutated by the
// ingestion or query paths.
type TenancyService struct {
	db core.DbClient
}

func NewTenancyService(db core.DbClient) *TenancyService {
	return &TenancyService{db: db}
}

func (s *TenancyService) CreateTeam(ctx context.Context, name string) (*models.Team, error) {
	if name == "" {
		return nil, errors.New("team name required")
	}
	team := &models.Team{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := s.db.CreateTeam(ctx, team); err != nil {
		return nil, err
	}
	return team, nil
}

func (s *TenancyService) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	return s.db.GetTeamByID(ctx, id)
}

func (s *TenancyService) CreateProject(ctx context.Context, teamID, name string) (*models.Project, error) {
	if name == "" {
		return nil, errors.New("project name required")
	}
	if _, err := s.db.GetTeamByID(ctx, teamID); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	project := &models.Project{
		ID:        uuid.NewString(),
		TeamID:    teamID,
		Name:      name,
		CreatedAt: time.Now(),
	}
	if err := s.db.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// IssueAPIKey mints a data-plane credential. The raw secret is returned once
// and never persisted; only its sha256 hash is stored.
func (s *TenancyService) IssueAPIKey(ctx context.Context, teamID string) (string, *models.APIKey, error) {
	if _, err := s.db.GetTeamByID(ctx, teamID); err != nil {
		return "", nil, fmt.Errorf("issue api key: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate key: %w", err)
	}
	raw := "cv_" + hex.EncodeToString(buf)

	key := &models.APIKey{
		ID:        uuid.NewString(),
		TeamID:    teamID,
		KeyHash:   HashSecret(raw),
		Status:    models.KeyActive,
		CreatedAt: time.Now(),
	}
	if err := s.db.CreateAPIKey(ctx, key); err != nil {
		return "", nil, err
	}
	return raw, key, nil
}

// RevokeAPIKey is one-way; revoking twice is an invalid transition.
func (s *TenancyService) RevokeAPIKey(ctx context.Context, keyID string) error {
	return s.db.RevokeAPIKey(ctx, keyID, time.Now())
}

// ResolveAPIKey maps a raw bearer secret to its active key record.
func (s *TenancyService) ResolveAPIKey(ctx context.Context, raw string) (*models.APIKey, error) {
	key, err := s.db.GetActiveAPIKeyByHash(ctx, HashSecret(raw))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrKeyRevoked
	}
	if err != nil {
		return nil, err
	}
	return key, nil
}

// HashSecret is the one-way digest used for API keys and logged questions.
func HashSecret(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
