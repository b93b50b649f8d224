package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"housing-allocation-backend/internal/metrics"
	"housing-allocation-backend/internal/models"
	"housing-allocation-backend/internal/repository"

	"github.com/sirupsen/logrus"
)

// ErrMatchNotPending is returned when the match does not exist or was already resolved.
var ErrMatchNotPending = errors.New("match not found or not pending")

// ActorContext identifies who takes a decision. A nil UserID records the decision
// without an actor.
type ActorContext struct {
	UserID    *uint
	Username  string
	IPAddress string
}

type Decision struct {
	MatchID          uint              `json:"match_id"`
	State            models.MatchState `json:"state"`
	ApplicationID    *uint             `json:"application_id,omitempty"`
	UnitsDecremented bool              `json:"units_decremented"`
	DecidedAt        time.Time         `json:"decided_at"`
}

// Approve resolves a Pendiente match as Aprobado. In one transaction it creates the
// approved application, takes one unit from the project when any is left and
// records the audit entry.
func (e *Engine) Approve(ctx context.Context, matchID uint, actor ActorContext) (*Decision, error) {
	var decision *Decision

	err := e.store.Transaction(ctx, func(tx repository.Store) error {
		m, err := lockPending(ctx, tx, matchID)
		if err != nil {
			return err
		}

		now := e.now()
		app := &models.Application{
			BeneficiaryID:   m.BeneficiaryID,
			ProjectID:       m.ProjectID,
			Status:          models.ApplicationApproved,
			Score:           m.CompatibilityScore,
			ApplicationDate: now,
			ApprovalDate:    &now,
		}
		if err := tx.CreateApplication(ctx, app); err != nil {
			return fmt.Errorf("creating application: %w", err)
		}

		m.State = models.MatchApproved
		m.ApprovedAt = &now
		if err := transition(ctx, tx, m); err != nil {
			return err
		}

		decremented, err := tx.DecrementAvailableUnits(ctx, m.ProjectID)
		if err != nil {
			return fmt.Errorf("decrementing available units: %w", err)
		}

		after := map[string]any{
			"state":       models.MatchApproved,
			"approved_at": now.Format(time.RFC3339Nano),
		}
		if err := appendAudit(ctx, tx, actor, models.ActionApproveMatch, m.ID, after); err != nil {
			return err
		}

		decision = &Decision{
			MatchID:          m.ID,
			State:            m.State,
			ApplicationID:    &app.ID,
			UnitsDecremented: decremented,
			DecidedAt:        now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decision, nil
}

// Reject resolves a Pendiente match as Rechazado. No application is created and
// the project inventory is left untouched.
func (e *Engine) Reject(ctx context.Context, matchID uint, reason string, actor ActorContext) (*Decision, error) {
	var decision *Decision

	err := e.store.Transaction(ctx, func(tx repository.Store) error {
		m, err := lockPending(ctx, tx, matchID)
		if err != nil {
			return err
		}

		now := e.now()
		m.State = models.MatchRejected
		m.RejectedAt = &now
		m.RejectionReason = nil
		if reason != "" {
			m.RejectionReason = &reason
		}
		if err := transition(ctx, tx, m); err != nil {
			return err
		}

		after := map[string]any{
			"state":            models.MatchRejected,
			"rejection_reason": m.RejectionReason,
		}
		if err := appendAudit(ctx, tx, actor, models.ActionRejectMatch, m.ID, after); err != nil {
			return err
		}

		decision = &Decision{MatchID: m.ID, State: m.State, DecidedAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decision, nil
}

// ApproveMatch is the boolean boundary over Approve: failures are logged, never returned.
func (e *Engine) ApproveMatch(ctx context.Context, matchID uint, actor ActorContext) bool {
	_, err := e.Approve(ctx, matchID, actor)
	metrics.ObserveDecision("approve", err)
	if err != nil {
		e.decisionLog("ApproveMatch", matchID, actor).WithError(err).Error("approving match failed")
		return false
	}
	return true
}

// RejectMatch is the boolean boundary over Reject.
func (e *Engine) RejectMatch(ctx context.Context, matchID uint, reason string, actor ActorContext) bool {
	_, err := e.Reject(ctx, matchID, reason, actor)
	metrics.ObserveDecision("reject", err)
	if err != nil {
		e.decisionLog("RejectMatch", matchID, actor).WithError(err).Error("rejecting match failed")
		return false
	}
	return true
}

func (e *Engine) decisionLog(fn string, matchID uint, actor ActorContext) logrus.FieldLogger {
	return e.logger.WithFields(logrus.Fields{
		"func":     fn,
		"match_id": matchID,
		"actor":    actor.Username,
	})
}

func lockPending(ctx context.Context, tx repository.Store, matchID uint) (*models.Match, error) {
	m, err := tx.LockPendingMatch(ctx, matchID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrMatchNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("loading match %d: %w", matchID, err)
	}
	return m, nil
}

func transition(ctx context.Context, tx repository.Store, m *models.Match) error {
	err := tx.TransitionMatch(ctx, m, models.MatchPending)
	if errors.Is(err, repository.ErrStaleState) {
		return ErrMatchNotPending
	}
	if err != nil {
		return fmt.Errorf("updating match %d: %w", m.ID, err)
	}
	return nil
}

func appendAudit(ctx context.Context, tx repository.Store, actor ActorContext, action string, matchID uint, after map[string]any) error {
	before := map[string]any{"state": models.MatchPending}
	entry, err := models.NewAuditLog(actor.UserID, action, models.EntityMatch, &matchID, before, after)
	if err != nil {
		return err
	}
	entry.IPAddress = actor.IPAddress
	if err := tx.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("writing audit log: %w", err)
	}
	return nil
}
