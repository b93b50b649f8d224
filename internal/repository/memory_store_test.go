package repository

import (
	"context"
	"errors"
	"testing"

	"housing-allocation-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }

func seedBeneficiary(t *testing.T, s *MemoryStore, first, last string, muni *uint) models.Beneficiary {
	t.Helper()
	b := &models.Beneficiary{FirstName: first, LastName: last, Status: models.BeneficiaryActive, MunicipalityID: muni}
	created, err := s.CreateBeneficiary(context.Background(), b)
	require.NoError(t, err)
	require.True(t, created)
	return *b
}

func seedProject(t *testing.T, s *MemoryStore, name string, units int, muni *uint) models.Project {
	t.Helper()
	p := &models.Project{Name: name, Status: models.ProjectActive, AvailableUnits: units, MunicipalityID: muni}
	require.NoError(t, s.CreateProject(context.Background(), p))
	return *p
}

func TestMemoryStore_CreateBeneficiarySkipsDuplicateRUT(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.CreateBeneficiary(ctx, &models.Beneficiary{RUT: strPtr("12.345.678-9"), FirstName: "Ana"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateBeneficiary(ctx, &models.Beneficiary{RUT: strPtr("12.345.678-9"), FirstName: "Otra"})
	require.NoError(t, err)
	assert.False(t, created)

	created, err = s.CreateBeneficiary(ctx, &models.Beneficiary{FirstName: "Sin RUT"})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestMemoryStore_TransactionRollsBack(t *testing.T) {
	s := NewMemoryStore()
	p := seedProject(t, s, "Villa", 2, nil)
	boom := errors.New("boom")

	err := s.Transaction(context.Background(), func(tx Store) error {
		ok, err := tx.DecrementAvailableUnits(context.Background(), p.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, tx.CreateApplication(context.Background(), &models.Application{ProjectID: p.ID}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AvailableUnits)
	assert.Empty(t, s.Applications())
}

func TestMemoryStore_TransactionCommits(t *testing.T) {
	s := NewMemoryStore()
	p := seedProject(t, s, "Villa", 1, nil)

	err := s.Transaction(context.Background(), func(tx Store) error {
		_, err := tx.DecrementAvailableUnits(context.Background(), p.ID)
		return err
	})
	require.NoError(t, err)

	got, err := s.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.AvailableUnits)

	ok, err := s.DecrementAvailableUnits(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_TransitionMatchIsGuarded(t *testing.T) {
	s := NewMemoryStore()
	m := s.AddMatch(models.Match{BeneficiaryID: 1, ProjectID: 1, State: models.MatchApproved})

	err := s.TransitionMatch(context.Background(), &models.Match{ID: m.ID, State: models.MatchRejected}, models.MatchPending)
	assert.ErrorIs(t, err, ErrStaleState)

	_, err = s.LockPendingMatch(context.Background(), m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_RegionScope(t *testing.T) {
	s := NewMemoryStore()
	r := s.AddRegion(models.Region{Name: "Valparaíso"})
	in := s.AddMunicipality(models.Municipality{Name: "Quilpué", RegionID: &r.ID})
	out := s.AddMunicipality(models.Municipality{Name: "Temuco"})

	inside := seedBeneficiary(t, s, "Ana", "Rojas", &in.ID)
	seedBeneficiary(t, s, "Luis", "Soto", &out.ID)
	seedBeneficiary(t, s, "Sin", "Comuna", nil)
	seedProject(t, s, "Dentro", 1, &in.ID)
	seedProject(t, s, "Fuera", 1, &out.ID)

	scope := Scope{RegionID: &r.ID}
	bs, err := s.EligibleBeneficiaries(context.Background(), scope)
	require.NoError(t, err)
	require.Len(t, bs, 1)
	assert.Equal(t, inside.ID, bs[0].ID)
	require.NotNil(t, bs[0].Municipality)
	assert.Equal(t, "Quilpué", bs[0].Municipality.Name)

	ps, err := s.AvailableProjects(context.Background(), scope, 0)
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "Dentro", ps[0].Name)
}

func TestMemoryStore_ListMatches(t *testing.T) {
	s := NewMemoryStore()
	ana := seedBeneficiary(t, s, "Ana", "Rojas", nil)
	luis := seedBeneficiary(t, s, "Luis", "Soto", nil)
	villa := seedProject(t, s, "Villa Los Aromos", 1, nil)
	parque := seedProject(t, s, "Parque Oriente", 1, nil)

	m1 := s.AddMatch(models.Match{BeneficiaryID: ana.ID, ProjectID: villa.ID, State: models.MatchPending})
	m2 := s.AddMatch(models.Match{BeneficiaryID: ana.ID, ProjectID: parque.ID, State: models.MatchRejected})
	m3 := s.AddMatch(models.Match{BeneficiaryID: luis.ID, ProjectID: villa.ID, State: models.MatchPending})
	ctx := context.Background()

	t.Run("newest first", func(t *testing.T) {
		got, err := s.ListMatches(ctx, MatchQuery{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []uint{m3.ID, m2.ID, m1.ID}, []uint{got[0].ID, got[1].ID, got[2].ID})
		require.NotNil(t, got[0].Beneficiary)
		assert.Equal(t, "Luis", got[0].Beneficiary.FirstName)
	})

	t.Run("state", func(t *testing.T) {
		got, err := s.ListMatches(ctx, MatchQuery{State: string(models.MatchPending)})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("cursor and limit", func(t *testing.T) {
		got, err := s.ListMatches(ctx, MatchQuery{Cursor: m3.ID, Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, m2.ID, got[0].ID)
	})

	t.Run("search", func(t *testing.T) {
		got, err := s.ListMatches(ctx, MatchQuery{Search: "parque"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, m2.ID, got[0].ID)

		got, err = s.ListMatches(ctx, MatchQuery{Search: "luis soto"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, m3.ID, got[0].ID)
	})
}

func TestMemoryStore_Stats(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	b := &models.Beneficiary{FirstName: "Ana", Status: models.BeneficiaryActive, SocioeconomicScore: intPtr(60)}
	_, err := s.CreateBeneficiary(ctx, b)
	require.NoError(t, err)
	_, err = s.CreateBeneficiary(ctx, &models.Beneficiary{FirstName: "Luis", Status: models.BeneficiaryInactive, SocioeconomicScore: intPtr(80)})
	require.NoError(t, err)
	p := seedProject(t, s, "Villa", 4, nil)
	seedProject(t, s, "Parque", 3, nil)
	s.AddMatch(models.Match{BeneficiaryID: b.ID, ProjectID: p.ID, State: models.MatchPending, CompatibilityScore: decimal.NewFromInt(70)})
	s.AddMatch(models.Match{BeneficiaryID: b.ID, ProjectID: p.ID + 1, State: models.MatchApproved, CompatibilityScore: decimal.NewFromInt(90)})
	for i := 0; i < RecentAuditLimit+2; i++ {
		require.NoError(t, s.AppendAudit(ctx, &models.AuditLog{Action: models.ActionRunMatching}))
	}

	stats, err := s.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.Beneficiaries)
	assert.Equal(t, int64(2), stats.Projects)
	assert.Equal(t, int64(2), stats.Matches)
	assert.Equal(t, int64(RecentAuditLimit+2), stats.AuditLogs)
	assert.Equal(t, int64(1), stats.BeneficiariesByStatus[models.BeneficiaryActive])
	assert.Equal(t, int64(1), stats.MatchesByState[string(models.MatchApproved)])
	assert.Equal(t, int64(7), stats.TotalAvailableUnits)
	require.NotNil(t, stats.AverageSocioeconomicScore)
	assert.InDelta(t, 70.0, *stats.AverageSocioeconomicScore, 1e-9)
	require.NotNil(t, stats.AverageCompatibility)
	assert.InDelta(t, 80.0, *stats.AverageCompatibility, 1e-9)
	assert.Len(t, stats.RecentAudit, RecentAuditLimit)
}
