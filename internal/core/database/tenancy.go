package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/citevault/citevault/internal/models"
)

func (c *DatabaseClient) CreateOperator(ctx context.Context, op *models.Operator) error {
	if op == nil {
		return errors.New("nil operator")
	}
	const q = `
		INSERT INTO operators (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`
	_, err := c.db.ExecContext(ctx, q, op.ID, op.Email, op.PasswordHash, nullableTime(op.CreatedAt))
	return mapConstraintErr(err)
}

func (c *DatabaseClient) GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	const q = `
		SELECT id, email, password_hash, created_at
		FROM operators WHERE email = $1
	`
	var op models.Operator
	err := c.db.QueryRowContext(ctx, q, email).Scan(&op.ID, &op.Email, &op.PasswordHash, &op.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func (c *DatabaseClient) CreateTeam(ctx context.Context, team *models.Team) error {
	if team == nil {
		return errors.New("nil team")
	}
	const q = `
		INSERT INTO teams (id, name, created_at)
		VALUES ($1, $2, COALESCE($3, now()))
	`
	_, err := c.db.ExecContext(ctx, q, team.ID, team.Name, nullableTime(team.CreatedAt))
	return mapConstraintErr(err)
}

func (c *DatabaseClient) GetTeamByID(ctx context.Context, id string) (*models.Team, error) {
	const q = `SELECT id, name, created_at FROM teams WHERE id = $1`
	var t models.Team
	err := c.db.QueryRowContext(ctx, q, id).Scan(&t.ID, &t.Name, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *DatabaseClient) CreateProject(ctx context.Context, project *models.Project) error {
	if project == nil {
		return errors.New("nil project")
	}
	const q = `
		INSERT INTO projects (id, team_id, name, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`
	_, err := c.db.ExecContext(ctx, q, project.ID, project.TeamID, project.Name, nullableTime(project.CreatedAt))
	return mapConstraintErr(err)
}

func (c *DatabaseClient) GetProjectByID(ctx context.Context, id string) (*models.Project, error) {
	const q = `SELECT id, team_id, name, created_at FROM projects WHERE id = $1`
	var p models.Project
	err := c.db.QueryRowContext(ctx, q, id).Scan(&p.ID, &p.TeamID, &p.Name, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *DatabaseClient) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	if key == nil {
		return errors.New("nil api key")
	}
	const q = `
		INSERT INTO api_keys (id, team_id, key_hash, status, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`
	_, err := c.db.ExecContext(ctx, q, key.ID, key.TeamID, key.KeyHash, key.Status, nullableTime(key.CreatedAt))
	return mapConstraintErr(err)
}

func (c *DatabaseClient) GetActiveAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error) {
	const q = `
		SELECT id, team_id, key_hash, status, created_at, revoked_at
		FROM api_keys
		WHERE key_hash = $1 AND status = 'active'
	`
	var k models.APIKey
	err := c.db.QueryRowContext(ctx, q, keyHash).Scan(
		&k.ID, &k.TeamID, &k.KeyHash, &k.Status, &k.CreatedAt, &k.RevokedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// RevokeAPIKey is one-way: the guard on status makes a second revoke (or any
// attempt to un-revoke) an invalid transition rather than a silent overwrite.
func (c *DatabaseClient) RevokeAPIKey(ctx context.Context, id string, at time.Time) error {
	const q = `
		UPDATE api_keys
		SET status = 'revoked', revoked_at = $2
		WHERE id = $1 AND status = 'active'
	`
	res, err := c.db.ExecContext(ctx, q, id, at)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if _, err := c.getAPIKeyByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: api key already revoked", models.ErrInvalidTransition)
	}
	return nil
}

func (c *DatabaseClient) getAPIKeyByID(ctx context.Context, id string) (*models.APIKey, error) {
	const q = `
		SELECT id, team_id, key_hash, status, created_at, revoked_at
		FROM api_keys WHERE id = $1
	`
	var k models.APIKey
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&k.ID, &k.TeamID, &k.KeyHash, &k.Status, &k.CreatedAt, &k.RevokedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// nullableTime lets DB defaults apply when the caller left the field zero.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
