package allocation

import (
	"context"
	"encoding/json"
	"testing"

	"housing-allocation-backend/internal/lock"
	"housing-allocation-backend/internal/models"
	"housing-allocation-backend/internal/repository"
	"housing-allocation-backend/internal/services/matching"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store)
	svc := newTestService(t, store, lock.NewLocalLocker())
	ctx := context.Background()
	uid := uint(7)

	app, err := svc.Apply(ctx, 1, 1, matching.ActorContext{UserID: &uid, IPAddress: "10.0.0.2"})
	require.NoError(t, err)
	assert.NotZero(t, app.ID)
	assert.Equal(t, models.ApplicationPending, app.Status)
	assert.False(t, app.ApplicationDate.IsZero())

	apps := store.Applications()
	require.Len(t, apps, 1)
	assert.Equal(t, uint(1), apps[0].BeneficiaryID)

	logs := store.AuditLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionCreateApplication, logs[0].Action)
	assert.Equal(t, models.EntityApplication, logs[0].EntityType)
	assert.Equal(t, uid, *logs[0].ActorID)
	assert.Equal(t, "10.0.0.2", logs[0].IPAddress)
}

func TestApply_UnknownBeneficiaryOrProject(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store)
	svc := newTestService(t, store, lock.NewLocalLocker())
	ctx := context.Background()

	_, err := svc.Apply(ctx, 1, 99, matching.ActorContext{})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = svc.Apply(ctx, 99, 1, matching.ActorContext{})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.Empty(t, store.Applications())
	assert.Empty(t, store.AuditLogs())
}

func TestUpdateApplicationStatus(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store)
	svc := newTestService(t, store, lock.NewLocalLocker())
	ctx := context.Background()
	app, err := svc.Apply(ctx, 1, 1, matching.ActorContext{})
	require.NoError(t, err)

	updated, err := svc.UpdateApplicationStatus(ctx, app.ID, models.ApplicationApproved, "documentos al día", matching.ActorContext{})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationApproved, updated.Status)
	require.NotNil(t, updated.ApprovalDate)

	stored, err := store.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationApproved, stored.Status)
	assert.Equal(t, "documentos al día", stored.Notes)

	logs := store.AuditLogs()
	last := logs[len(logs)-1]
	assert.Equal(t, models.ActionUpdateApplication, last.Action)
	before := map[string]any{}
	require.NoError(t, json.Unmarshal(last.Before, &before))
	assert.Equal(t, models.ApplicationPending, before["status"])
}

func TestUpdateApplicationStatus_Invalid(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store)
	svc := newTestService(t, store, lock.NewLocalLocker())
	ctx := context.Background()
	app, err := svc.Apply(ctx, 1, 1, matching.ActorContext{})
	require.NoError(t, err)

	_, err = svc.UpdateApplicationStatus(ctx, app.ID, "Cancelada", "", matching.ActorContext{})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = svc.UpdateApplicationStatus(ctx, 404, models.ApplicationRejected, "", matching.ActorContext{})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	stored, err := store.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationPending, stored.Status)
}

func TestRejectedApplicationBlocksRematch(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store)
	svc := newTestService(t, store, lock.NewLocalLocker())
	ctx := context.Background()

	app, err := svc.Apply(ctx, 1, 1, matching.ActorContext{})
	require.NoError(t, err)
	_, err = svc.UpdateApplicationStatus(ctx, app.ID, models.ApplicationRejected, "", matching.ActorContext{})
	require.NoError(t, err)

	out, err := svc.ExecuteRun(ctx, RunRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Result.Processed)
	assert.Equal(t, 1, out.Result.Created)

	matches := store.Matches()
	require.Len(t, matches, 1)
	assert.Equal(t, uint(2), matches[0].BeneficiaryID)
}

func TestListApplications(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store)
	svc := newTestService(t, store, lock.NewLocalLocker())
	ctx := context.Background()

	first, err := svc.Apply(ctx, 1, 1, matching.ActorContext{})
	require.NoError(t, err)
	_, err = svc.Apply(ctx, 1, 2, matching.ActorContext{})
	require.NoError(t, err)
	_, err = svc.UpdateApplicationStatus(ctx, first.ID, models.ApplicationRejected, "", matching.ActorContext{})
	require.NoError(t, err)

	items, next, more, err := svc.ListApplications(ctx, repository.ApplicationQuery{Status: models.ApplicationRejected})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, first.ID, items[0].ID)
	require.NotNil(t, items[0].Beneficiary)
	assert.Equal(t, "Ana", items[0].Beneficiary.FirstName)
	assert.False(t, more)
	assert.Empty(t, next)

	items, next, more, err = svc.ListApplications(ctx, repository.ApplicationQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, more)
	assert.Equal(t, "2", next)
}

func TestRegionsAndMunicipalities(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := newTestService(t, store, lock.NewLocalLocker())
	ctx := context.Background()

	assert.ErrorIs(t, svc.CreateRegion(ctx, &models.Region{Name: " "}), ErrInvalidParams)
	assert.ErrorIs(t, svc.CreateMunicipality(ctx, &models.Municipality{}), ErrInvalidParams)

	r := &models.Region{Name: "Valparaíso", Code: "V"}
	require.NoError(t, svc.CreateRegion(ctx, r))
	require.NoError(t, svc.CreateMunicipality(ctx, &models.Municipality{Name: "Quilpué", RegionID: &r.ID}))
	require.NoError(t, svc.CreateMunicipality(ctx, &models.Municipality{Name: "Temuco"}))

	regions, err := svc.ListRegions(ctx)
	require.NoError(t, err)
	require.Len(t, regions, 1)

	all, err := svc.ListMunicipalities(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	inRegion, err := svc.ListMunicipalities(ctx, &r.ID)
	require.NoError(t, err)
	require.Len(t, inRegion, 1)
	assert.Equal(t, "Quilpué", inRegion[0].Name)
}
