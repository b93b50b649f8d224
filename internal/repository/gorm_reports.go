package repository

import (
	"context"
	"database/sql"
	"strings"

	"housing-allocation-backend/internal/models"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// normalizeLimit allows one row past MaxListLimit so callers can detect a next page.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit+1:
		return MaxListLimit + 1
	default:
		return limit
	}
}

func (s *GormStore) ListMatches(ctx context.Context, q MatchQuery) ([]models.Match, error) {
	var matches []models.Match

	query := s.db.WithContext(ctx).
		Preload("Beneficiary").
		Preload("Project").
		Order("matches.id DESC").
		Limit(normalizeLimit(q.Limit))

	if q.State != "" && q.State != "all" {
		query = query.Where("matches.state = ?", q.State)
	}
	if q.Cursor > 0 {
		query = query.Where("matches.id < ?", q.Cursor)
	}
	// filter by search (beneficiary or project name)
	if q.Search != "" {
		like := "%" + strings.ToLower(q.Search) + "%"
		query = query.
			Joins("JOIN beneficiaries ON beneficiaries.id = matches.beneficiary_id").
			Joins("JOIN projects ON projects.id = matches.project_id").
			Where("LOWER(beneficiaries.first_name || ' ' || beneficiaries.last_name) LIKE ? OR LOWER(projects.name) LIKE ?", like, like)
	}

	err := query.Find(&matches).Error
	return matches, err
}

func (s *GormStore) ListApplications(ctx context.Context, q ApplicationQuery) ([]models.Application, error) {
	var apps []models.Application

	query := s.db.WithContext(ctx).
		Preload("Beneficiary").
		Preload("Project").
		Order("applications.id DESC").
		Limit(normalizeLimit(q.Limit))

	if q.Status != "" {
		query = query.Where("applications.status = ?", q.Status)
	}
	if q.Cursor > 0 {
		query = query.Where("applications.id < ?", q.Cursor)
	}

	err := query.Find(&apps).Error
	return apps, err
}

type statRow struct {
	Label string
	Count int64
}

func (s *GormStore) groupCount(ctx context.Context, model any, column string) (map[string]int64, error) {
	var rows []statRow
	err := s.db.WithContext(ctx).Model(model).
		Select(column + " AS label, COUNT(*) AS count").
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Label] = r.Count
	}
	return out, nil
}

func (s *GormStore) average(ctx context.Context, model any, column string) (*float64, error) {
	var avg sql.NullFloat64
	err := s.db.WithContext(ctx).Model(model).Select("AVG(" + column + ")").Scan(&avg).Error
	if err != nil || !avg.Valid {
		return nil, err
	}
	return &avg.Float64, nil
}

func (s *GormStore) Stats(ctx context.Context) (*DashboardStats, error) {
	stats := newDashboardStats()
	db := s.db.WithContext(ctx)

	counts := []struct {
		model any
		dst   *int64
	}{
		{&models.Beneficiary{}, &stats.Beneficiaries},
		{&models.Project{}, &stats.Projects},
		{&models.Application{}, &stats.Applications},
		{&models.Match{}, &stats.Matches},
		{&models.AuditLog{}, &stats.AuditLogs},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Count(c.dst).Error; err != nil {
			return nil, err
		}
	}

	var err error
	if stats.BeneficiariesByStatus, err = s.groupCount(ctx, &models.Beneficiary{}, "status"); err != nil {
		return nil, err
	}
	if stats.ProjectsByStatus, err = s.groupCount(ctx, &models.Project{}, "status"); err != nil {
		return nil, err
	}
	if stats.ApplicationsByStatus, err = s.groupCount(ctx, &models.Application{}, "status"); err != nil {
		return nil, err
	}
	if stats.MatchesByState, err = s.groupCount(ctx, &models.Match{}, "state"); err != nil {
		return nil, err
	}
	if stats.AverageSocioeconomicScore, err = s.average(ctx, &models.Beneficiary{}, "socioeconomic_score"); err != nil {
		return nil, err
	}
	if stats.AverageCompatibility, err = s.average(ctx, &models.Match{}, "compatibility_score"); err != nil {
		return nil, err
	}

	var units sql.NullInt64
	if err := db.Model(&models.Project{}).Select("COALESCE(SUM(available_units), 0)").Scan(&units).Error; err != nil {
		return nil, err
	}
	stats.TotalAvailableUnits = units.Int64

	if err := db.Order("created_at DESC").Limit(RecentAuditLimit).Find(&stats.RecentAudit).Error; err != nil {
		return nil, err
	}
	return stats, nil
}
