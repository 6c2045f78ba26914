package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citevault/citevault/internal/core/coretest"
	"github.com/citevault/citevault/internal/models"
)

func TestCreateProjectRequiresTeam(t *testing.T) {
	ctx := context.Background()
	db := coretest.NewFakeDB()
	tenancy := NewTenancyService(db)

	_, err := tenancy.CreateProject(ctx, "no-such-team", "docs")
	assert.ErrorIs(t, err, models.ErrNotFound)

	team, err := tenancy.CreateTeam(ctx, "acme")
	require.NoError(t, err)

	project, err := tenancy.CreateProject(ctx, team.ID, "docs")
	require.NoError(t, err)
	assert.Equal(t, team.ID, project.TeamID)
}

func TestIssueAndResolveAPIKey(t *testing.T) {
	ctx := context.Background()
	db := coretest.NewFakeDB()
	tenancy := NewTenancyService(db)

	team, err := tenancy.CreateTeam(ctx, "acme")
	require.NoError(t, err)

	raw, key, err := tenancy.IssueAPIKey(ctx, team.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "cv_"))
	assert.Equal(t, models.KeyActive, key.Status)

	// Only the hash is persisted, never the raw secret.
	stored := db.Keys[key.ID]
	assert.NotEqual(t, raw, stored.KeyHash)
	assert.Equal(t, HashSecret(raw), stored.KeyHash)

	resolved, err := tenancy.ResolveAPIKey(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, key.ID, resolved.ID)
	assert.Equal(t, team.ID, resolved.TeamID)
}

func TestResolveAPIKeyRejectsUnknownAndRevoked(t *testing.T) {
	ctx := context.Background()
	db := coretest.NewFakeDB()
	tenancy := NewTenancyService(db)

	_, err := tenancy.ResolveAPIKey(ctx, "cv_bogus")
	assert.ErrorIs(t, err, models.ErrKeyRevoked)

	team, err := tenancy.CreateTeam(ctx, "acme")
	require.NoError(t, err)
	raw, key, err := tenancy.IssueAPIKey(ctx, team.ID)
	require.NoError(t, err)

	require.NoError(t, tenancy.RevokeAPIKey(ctx, key.ID))

	_, err = tenancy.ResolveAPIKey(ctx, raw)
	assert.ErrorIs(t, err, models.ErrKeyRevoked)

	// Revocation is one-way.
	err = tenancy.RevokeAPIKey(ctx, key.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestHashSecretStable(t *testing.T) {
	assert.Equal(t, HashSecret("abc"), HashSecret("abc"))
	assert.NotEqual(t, HashSecret("abc"), HashSecret("abd"))
	assert.Len(t, HashSecret("anything"), 64)
}
