package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citevault/citevault/internal/core/coretest"
	"github.com/citevault/citevault/internal/models"
)

// fakeStorage is an in-memory core.ObjectClient.
type fakeStorage struct {
	objects   map[string][]byte
	uploadErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (f *fakeStorage) UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.objects[key] = b
	return fmt.Sprintf("https://%s.s3.us-east-1.amazonaws.com/%s", bucket, key), nil
}

func (f *fakeStorage) DeleteFile(ctx context.Context, bucket, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeStorage) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	b, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return b, nil
}

func (f *fakeStorage) GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	b, err := f.GetFile(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(string(b))), nil
}

func TestRegisterChecksTenancy(t *testing.T) {
	ctx := context.Background()
	db := coretest.NewFakeDB()
	teamID, projectID := db.SeedTeamProject()
	otherTeam, _ := db.SeedTeamProject()
	registry := NewRegistryService(db, newFakeStorage(), "bucket")

	_, err := registry.Register(ctx, "no-such-team", projectID, "a.pdf", models.SourceUpload, "s3://x", "application/pdf")
	assert.ErrorIs(t, err, models.ErrInvalidReference)

	_, err = registry.Register(ctx, teamID, "no-such-project", "a.pdf", models.SourceUpload, "s3://x", "application/pdf")
	assert.ErrorIs(t, err, models.ErrInvalidReference)

	// Project belongs to a different team.
	_, err = registry.Register(ctx, otherTeam, projectID, "a.pdf", models.SourceUpload, "s3://x", "application/pdf")
	assert.ErrorIs(t, err, models.ErrInvalidReference)

	doc, err := registry.Register(ctx, teamID, projectID, "a.pdf", models.SourceUpload, "s3://x", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, models.DocUploaded, doc.Status)
	assert.Equal(t, 0, doc.CurrentGeneration)
}

func TestUploadAndRegister(t *testing.T) {
	ctx := context.Background()
	db := coretest.NewFakeDB()
	teamID, projectID := db.SeedTeamProject()
	storage := newFakeStorage()
	registry := NewRegistryService(db, storage, "bucket")

	doc, err := registry.UploadAndRegister(ctx, teamID, projectID, "my report.pdf", "application/pdf", strings.NewReader("content"))
	require.NoError(t, err)
	assert.Equal(t, "my report.pdf", doc.Title)
	assert.Contains(t, doc.StorageURL, "teams/"+teamID+"/documents/"+doc.ID)
	assert.Contains(t, doc.StorageURL, "my_report.pdf")

	key := fmt.Sprintf("teams/%s/documents/%s/my_report.pdf", teamID, doc.ID)
	got, err := storage.GetFile(ctx, "bucket", key)
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))
}

func TestUploadAndRegisterCleansUpOnBadTenancy(t *testing.T) {
	ctx := context.Background()
	db := coretest.NewFakeDB()
	teamID, _ := db.SeedTeamProject()
	storage := newFakeStorage()
	registry := NewRegistryService(db, storage, "bucket")

	_, err := registry.UploadAndRegister(ctx, teamID, "no-such-project", "a.pdf", "application/pdf", strings.NewReader("content"))
	assert.ErrorIs(t, err, models.ErrInvalidReference)
	assert.Empty(t, storage.objects)
}

func TestUploadAndRegisterStorageDown(t *testing.T) {
	ctx := context.Background()
	db := coretest.NewFakeDB()
	teamID, projectID := db.SeedTeamProject()
	storage := newFakeStorage()
	storage.uploadErr = errors.New("connection refused")
	registry := NewRegistryService(db, storage, "bucket")

	_, err := registry.UploadAndRegister(ctx, teamID, projectID, "a.pdf", "application/pdf", strings.NewReader("content"))
	assert.ErrorIs(t, err, models.ErrTransientDependency)
}
