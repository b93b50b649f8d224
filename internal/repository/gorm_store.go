package repository

import (
	"context"
	"errors"

	"housing-allocation-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is the PostgreSQL-backed Store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB exposes the underlying connection for migrations and health checks.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// Migrate creates or updates every table.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(models.All()...)
}

func scoped(q *gorm.DB, table string, scope Scope) *gorm.DB {
	if scope.MunicipalityID != nil {
		q = q.Where(table+".municipality_id = ?", *scope.MunicipalityID)
	}
	if scope.RegionID != nil {
		q = q.Where(table+".municipality_id IN (SELECT id FROM municipalities WHERE region_id = ?)", *scope.RegionID)
	}
	return q
}

func (s *GormStore) EligibleBeneficiaries(ctx context.Context, scope Scope) ([]models.Beneficiary, error) {
	var beneficiaries []models.Beneficiary

	q := s.db.WithContext(ctx).
		Preload("Municipality").
		Where("beneficiaries.status IN ?", models.CandidateStatuses).
		Where("NOT EXISTS (SELECT 1 FROM matches WHERE matches.beneficiary_id = beneficiaries.id AND matches.state = ?)", models.MatchApproved)

	err := scoped(q, "beneficiaries", scope).
		Order("beneficiaries.id ASC").
		Find(&beneficiaries).Error
	return beneficiaries, err
}

func (s *GormStore) AvailableProjects(ctx context.Context, scope Scope, limit int) ([]models.Project, error) {
	var projects []models.Project

	q := s.db.WithContext(ctx).
		Preload("Municipality").
		Where("projects.status IN ?", models.OpenProjectStatuses).
		Where("projects.available_units > 0")

	q = scoped(q, "projects", scope).Order("projects.id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	err := q.Find(&projects).Error
	return projects, err
}

func (s *GormStore) HasRejectedApplication(ctx context.Context, beneficiaryID, projectID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Application{}).
		Where("beneficiary_id = ? AND project_id = ? AND status = ?", beneficiaryID, projectID, models.ApplicationRejected).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) CreateMatchIfAbsent(ctx context.Context, m *models.Match) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "beneficiary_id"}, {Name: "project_id"}},
			DoNothing: true,
		}).
		Omit(clause.Associations).
		Create(m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) LockPendingMatch(ctx context.Context, id uint) (*models.Match, error) {
	var m models.Match
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND state = ?", id, models.MatchPending).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *GormStore) TransitionMatch(ctx context.Context, m *models.Match, from models.MatchState) error {
	res := s.db.WithContext(ctx).Model(&models.Match{}).
		Where("id = ? AND state = ?", m.ID, from).
		Updates(map[string]interface{}{
			"state":            m.State,
			"approved_at":      m.ApprovedAt,
			"rejected_at":      m.RejectedAt,
			"rejection_reason": m.RejectionReason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

func (s *GormStore) CreateApplication(ctx context.Context, app *models.Application) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(app).Error
}

func (s *GormStore) DecrementAvailableUnits(ctx context.Context, projectID uint) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ? AND available_units > 0", projectID).
		UpdateColumn("available_units", gorm.Expr("available_units - ?", 1))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) AppendAudit(ctx context.Context, entry *models.AuditLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}
