package allocation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"housing-allocation-backend/internal/models"
	"housing-allocation-backend/internal/repository"
	"housing-allocation-backend/internal/services/matching"

	"github.com/sirupsen/logrus"
)

// Apply registers a Pendiente application of a beneficiary to a project.
func (s *Service) Apply(ctx context.Context, projectID, beneficiaryID uint, actor matching.ActorContext) (*models.Application, error) {
	var app *models.Application

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		if _, err := tx.GetBeneficiary(ctx, beneficiaryID); err != nil {
			return fmt.Errorf("beneficiary %d: %w", beneficiaryID, err)
		}
		if _, err := tx.GetProject(ctx, projectID); err != nil {
			return fmt.Errorf("project %d: %w", projectID, err)
		}

		app = &models.Application{
			BeneficiaryID:   beneficiaryID,
			ProjectID:       projectID,
			Status:          models.ApplicationPending,
			ApplicationDate: time.Now(),
		}
		if err := tx.CreateApplication(ctx, app); err != nil {
			return fmt.Errorf("creating application: %w", err)
		}

		return appendApplicationAudit(ctx, tx, actor, models.ActionCreateApplication, app.ID,
			map[string]any{},
			map[string]any{"status": app.Status, "beneficiary_id": beneficiaryID, "project_id": projectID},
		)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"application_id": app.ID,
		"beneficiary_id": beneficiaryID,
		"project_id":     projectID,
	}).Info("application registered")
	return app, nil
}

// UpdateApplicationStatus moves an application to status. A Rechazada
// application keeps its beneficiary from being matched to that project again.
func (s *Service) UpdateApplicationStatus(ctx context.Context, id uint, status, notes string, actor matching.ActorContext) (*models.Application, error) {
	status = strings.TrimSpace(status)
	if !models.ValidApplicationStatus(status) {
		return nil, fmt.Errorf("%w: unknown application status %q", ErrInvalidParams, status)
	}

	var app *models.Application
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		app, err = tx.GetApplication(ctx, id)
		if err != nil {
			return fmt.Errorf("application %d: %w", id, err)
		}

		before := map[string]any{"status": app.Status}
		app.Status = status
		if status == models.ApplicationApproved && app.ApprovalDate == nil {
			now := time.Now()
			app.ApprovalDate = &now
		}
		if notes = strings.TrimSpace(notes); notes != "" {
			app.Notes = notes
		}
		if err := tx.UpdateApplication(ctx, app); err != nil {
			return fmt.Errorf("updating application: %w", err)
		}

		return appendApplicationAudit(ctx, tx, actor, models.ActionUpdateApplication, app.ID,
			before, map[string]any{"status": status})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"application_id": id, "status": status}).Info("application status updated")
	return app, nil
}

func appendApplicationAudit(ctx context.Context, tx repository.Store, actor matching.ActorContext, action string, id uint, before, after map[string]any) error {
	entry, err := models.NewAuditLog(actor.UserID, action, models.EntityApplication, &id, before, after)
	if err != nil {
		return err
	}
	entry.IPAddress = actor.IPAddress
	if err := tx.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}

// ListApplications returns one page of applications and the cursor of the next page.
func (s *Service) ListApplications(ctx context.Context, q repository.ApplicationQuery) ([]models.Application, string, bool, error) {
	q.Limit = clampLimit(q.Limit)
	limit := q.Limit
	q.Limit = limit + 1

	items, err := s.store.ListApplications(ctx, q)
	if err != nil {
		return nil, "", false, err
	}
	items, next, more := page(items, limit, func(a models.Application) uint { return a.ID })
	return items, next, more, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return repository.DefaultListLimit
	case limit > repository.MaxListLimit:
		return repository.MaxListLimit
	}
	return limit
}

// page trims items fetched with one extra row down to limit.
func page[T any](items []T, limit int, id func(T) uint) ([]T, string, bool) {
	if len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	return items, fmt.Sprint(id(items[limit-1])), true
}

func (s *Service) CreateRegion(ctx context.Context, r *models.Region) error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return fmt.Errorf("%w: region name is required", ErrInvalidParams)
	}
	return s.store.CreateRegion(ctx, r)
}

func (s *Service) ListRegions(ctx context.Context) ([]models.Region, error) {
	return s.store.ListRegions(ctx)
}

func (s *Service) CreateMunicipality(ctx context.Context, m *models.Municipality) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return fmt.Errorf("%w: municipality name is required", ErrInvalidParams)
	}
	return s.store.CreateMunicipality(ctx, m)
}

func (s *Service) ListMunicipalities(ctx context.Context, regionID *uint) ([]models.Municipality, error) {
	return s.store.ListMunicipalities(ctx, regionID)
}
