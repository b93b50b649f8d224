package repository

import (
	"context"
	"errors"

	"housing-allocation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *GormStore) CreateBeneficiary(ctx context.Context, b *models.Beneficiary) (bool, error) {
	// Use `OnConflict` to ignore already registered RUTs
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "rut"}}, DoNothing: true}).
		Omit(clause.Associations).
		Create(b)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) GetBeneficiary(ctx context.Context, id uint) (*models.Beneficiary, error) {
	var b models.Beneficiary
	err := s.db.WithContext(ctx).Preload("Municipality").First(&b, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *GormStore) CreateProject(ctx context.Context, p *models.Project) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(p).Error
}

func (s *GormStore) GetProject(ctx context.Context, id uint) (*models.Project, error) {
	var p models.Project
	err := s.db.WithContext(ctx).Preload("Municipality").First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *GormStore) GetMatch(ctx context.Context, id uint) (*models.Match, error) {
	var m models.Match
	err := s.db.WithContext(ctx).
		Preload("Beneficiary").
		Preload("Project").
		First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *GormStore) CreateRun(ctx context.Context, run *models.MatchingRun) error {
	return s.db.WithContext(ctx).Create(run).Error
}

func (s *GormStore) SaveRun(ctx context.Context, run *models.MatchingRun) error {
	return s.db.WithContext(ctx).Save(run).Error
}

// UpdateRunProgress updates the processed count of a run
func (s *GormStore) UpdateRunProgress(ctx context.Context, id uuid.UUID, processed int) error {
	return s.db.WithContext(ctx).Model(&models.MatchingRun{}).
		Where("id = ?", id).
		Update("processed", processed).
		Error
}

func (s *GormStore) GetRun(ctx context.Context, id uuid.UUID) (*models.MatchingRun, error) {
	var run models.MatchingRun
	err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *GormStore) CreateRegion(ctx context.Context, r *models.Region) error {
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *GormStore) ListRegions(ctx context.Context) ([]models.Region, error) {
	var regions []models.Region
	err := s.db.WithContext(ctx).Order("id ASC").Find(&regions).Error
	return regions, err
}

func (s *GormStore) CreateMunicipality(ctx context.Context, m *models.Municipality) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(m).Error
}

func (s *GormStore) ListMunicipalities(ctx context.Context, regionID *uint) ([]models.Municipality, error) {
	var municipalities []models.Municipality
	q := s.db.WithContext(ctx).Order("id ASC")
	if regionID != nil {
		q = q.Where("region_id = ?", *regionID)
	}
	err := q.Find(&municipalities).Error
	return municipalities, err
}

func (s *GormStore) GetApplication(ctx context.Context, id uint) (*models.Application, error) {
	var app models.Application
	err := s.db.WithContext(ctx).First(&app, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (s *GormStore) UpdateApplication(ctx context.Context, app *models.Application) error {
	res := s.db.WithContext(ctx).Model(&models.Application{}).
		Where("id = ?", app.ID).
		Updates(map[string]interface{}{
			"status":        app.Status,
			"approval_date": app.ApprovalDate,
			"notes":         app.Notes,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
