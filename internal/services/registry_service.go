package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/citevault/citevault/internal/core"
	"github.com/citevault/citevault/internal/models"
)

// RegistryService tracks document existence and source metadata. Document
// status is never mutated here: transitions are side effects of ingestion job
// state changes, driven by the job engine.
type RegistryService struct {
	db      core.DbClient
	storage core.ObjectClient
	bucket  string
}

func NewRegistryService(db core.DbClient, storage core.ObjectClient, bucket string) *RegistryService {
	return &RegistryService{db: db, storage: storage, bucket: bucket}
}

// Register creates a document in uploaded status after checking the project
// actually belongs to the team.
func (s *RegistryService) Register(ctx context.Context, teamID, projectID, title string, sourceType models.SourceType, storageURL, mimeType string) (*models.Document, error) {
	return s.register(ctx, uuid.NewString(), teamID, projectID, title, sourceType, storageURL, mimeType)
}

func (s *RegistryService) register(ctx context.Context, id, teamID, projectID, title string, sourceType models.SourceType, storageURL, mimeType string) (*models.Document, error) {
	if _, err := s.db.GetTeamByID(ctx, teamID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: team %s", models.ErrInvalidReference, teamID)
		}
		return nil, err
	}
	project, err := s.db.GetProjectByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: project %s", models.ErrInvalidReference, projectID)
		}
		return nil, err
	}
	if project.TeamID != teamID {
		return nil, fmt.Errorf("%w: project %s does not belong to team %s", models.ErrInvalidReference, projectID, teamID)
	}

	doc := &models.Document{
		ID:         id,
		TeamID:     teamID,
		ProjectID:  projectID,
		Title:      title,
		SourceType: sourceType,
		StorageURL: storageURL,
		MimeType:   mimeType,
		Status:     models.DocUploaded,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// UploadAndRegister stores the raw bytes in object storage, then registers
// the document pointing at them. The document id is minted up front so the
// object key layout contains the id the registry actually records.
func (s *RegistryService) UploadAndRegister(ctx context.Context, teamID, projectID, filename, contentType string, data io.Reader) (*models.Document, error) {
	docID := uuid.NewString()
	key := s.objectKey(teamID, docID, filename)

	url, err := s.storage.UploadFile(ctx, s.bucket, key, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: upload: %v", models.ErrTransientDependency, err)
	}

	doc, err := s.register(ctx, docID, teamID, projectID, filename, models.SourceUpload, url, contentType)
	if err != nil {
		// Orphaned object; best-effort cleanup.
		_ = s.storage.DeleteFile(ctx, s.bucket, key)
		return nil, err
	}
	return doc, nil
}

func (s *RegistryService) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.db.GetDocumentByID(ctx, id)
}

func (s *RegistryService) ListByProject(ctx context.Context, projectID string) ([]models.Document, error) {
	return s.db.ListDocumentsByProject(ctx, projectID)
}

func (s *RegistryService) ListJobs(ctx context.Context, documentID string) ([]models.IngestionJob, error) {
	return s.db.ListJobsByDocument(ctx, documentID)
}

// objectKey creates a consistent S3 key layout.
func (s *RegistryService) objectKey(teamID, docID, filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("teams", teamID, "documents", docID, filename)
}
