package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/citevault/citevault/internal/models"
)

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, team_id, project_id, title, source_type, storage_url, mime_type,
			 status, current_generation, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, now()), COALESCE($11, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.TeamID, doc.ProjectID, doc.Title, doc.SourceType, doc.StorageURL,
		doc.MimeType, doc.Status, doc.CurrentGeneration,
		nullableTime(doc.CreatedAt), nullableTime(doc.UpdatedAt))
	return mapConstraintErr(err)
}

const documentColumns = `
	id, team_id, project_id, title, source_type, storage_url, mime_type,
	status, current_generation, created_at, updated_at
`

func scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.ID, &d.TeamID, &d.ProjectID, &d.Title, &d.SourceType, &d.StorageURL,
		&d.MimeType, &d.Status, &d.CurrentGeneration, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `SELECT` + documentColumns + `FROM documents WHERE id = $1`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (c *DatabaseClient) ListDocumentsByProject(ctx context.Context, projectID string) ([]models.Document, error) {
	const q = `
		SELECT` + documentColumns + `
		FROM documents
		WHERE project_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
