package repository

import (
	"context"
	"errors"

	"housing-allocation-backend/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrStaleState is returned when a guarded state transition matched no row.
	ErrStaleState = errors.New("record state changed concurrently")
)

// Scope narrows beneficiaries and projects to a region and/or municipality.
type Scope struct {
	RegionID       *uint
	MunicipalityID *uint
}

// MatchingStore is what the candidate selector and the lifecycle manager read and write.
type MatchingStore interface {
	// EligibleBeneficiaries returns candidate-status beneficiaries holding no approved
	// match, ordered by primary key, with their municipality loaded.
	EligibleBeneficiaries(ctx context.Context, scope Scope) ([]models.Beneficiary, error)
	// AvailableProjects returns open projects with units left, ordered by primary key.
	// A positive limit slices the result.
	AvailableProjects(ctx context.Context, scope Scope, limit int) ([]models.Project, error)
	HasRejectedApplication(ctx context.Context, beneficiaryID, projectID uint) (bool, error)
	// CreateMatchIfAbsent inserts m unless a match already exists for its pair.
	CreateMatchIfAbsent(ctx context.Context, m *models.Match) (bool, error)

	// LockPendingMatch loads a Pendiente match and locks it for the current transaction.
	LockPendingMatch(ctx context.Context, id uint) (*models.Match, error)
	// TransitionMatch persists the decision fields of m if it is still in state from.
	TransitionMatch(ctx context.Context, m *models.Match, from models.MatchState) error
	CreateApplication(ctx context.Context, app *models.Application) error
	// DecrementAvailableUnits takes one unit when at least one is left.
	DecrementAvailableUnits(ctx context.Context, projectID uint) (bool, error)
	AppendAudit(ctx context.Context, entry *models.AuditLog) error
}

type RunStore interface {
	CreateRun(ctx context.Context, run *models.MatchingRun) error
	SaveRun(ctx context.Context, run *models.MatchingRun) error
	UpdateRunProgress(ctx context.Context, id uuid.UUID, processed int) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.MatchingRun, error)
}

type CatalogStore interface {
	// CreateBeneficiary inserts b, skipping rows whose RUT is already registered.
	CreateBeneficiary(ctx context.Context, b *models.Beneficiary) (bool, error)
	GetBeneficiary(ctx context.Context, id uint) (*models.Beneficiary, error)
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id uint) (*models.Project, error)
	GetMatch(ctx context.Context, id uint) (*models.Match, error)

	CreateRegion(ctx context.Context, r *models.Region) error
	ListRegions(ctx context.Context) ([]models.Region, error)
	CreateMunicipality(ctx context.Context, m *models.Municipality) error
	// ListMunicipalities returns municipalities ordered by ID, narrowed to a region when regionID is set.
	ListMunicipalities(ctx context.Context, regionID *uint) ([]models.Municipality, error)
}

type ApplicationStore interface {
	GetApplication(ctx context.Context, id uint) (*models.Application, error)
	// UpdateApplication persists the status, approval date and notes of app.
	UpdateApplication(ctx context.Context, app *models.Application) error
	ListApplications(ctx context.Context, q ApplicationQuery) ([]models.Application, error)
}

type ReportStore interface {
	ListMatches(ctx context.Context, q MatchQuery) ([]models.Match, error)
	Stats(ctx context.Context) (*DashboardStats, error)
}

// Store is the full persistence surface of the service.
type Store interface {
	MatchingStore
	RunStore
	CatalogStore
	ApplicationStore
	ReportStore

	// Transaction runs fn in a single unit of work. fn's error rolls everything back.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// MatchQuery filters the match listing. Results are ordered newest first and
// Cursor, when set, only returns matches with a smaller ID.
type MatchQuery struct {
	State  string
	Search string
	Cursor uint
	Limit  int
}

// ApplicationQuery filters the application listing, newest first, with the
// same cursor semantics as MatchQuery.
type ApplicationQuery struct {
	Status string
	Cursor uint
	Limit  int
}

const RecentAuditLimit = 5

type DashboardStats struct {
	Beneficiaries int64 `json:"beneficiaries"`
	Projects      int64 `json:"projects"`
	Applications  int64 `json:"applications"`
	Matches       int64 `json:"matches"`
	AuditLogs     int64 `json:"audit_logs"`

	BeneficiariesByStatus     map[string]int64  `json:"beneficiaries_by_status"`
	AverageSocioeconomicScore *float64          `json:"average_socioeconomic_score"`
	ProjectsByStatus          map[string]int64  `json:"projects_by_status"`
	TotalAvailableUnits       int64             `json:"total_available_units"`
	ApplicationsByStatus      map[string]int64  `json:"applications_by_status"`
	MatchesByState            map[string]int64  `json:"matches_by_state"`
	AverageCompatibility      *float64          `json:"average_compatibility"`
	RecentAudit               []models.AuditLog `json:"recent_audit"`
}

func newDashboardStats() *DashboardStats {
	return &DashboardStats{
		BeneficiariesByStatus: map[string]int64{},
		ProjectsByStatus:      map[string]int64{},
		ApplicationsByStatus:  map[string]int64{},
		MatchesByState:        map[string]int64{},
		RecentAudit:           []models.AuditLog{},
	}
}

var (
	_ Store = (*GormStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
