package allocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"housing-allocation-backend/internal/lock"
	"housing-allocation-backend/internal/metrics"
	"housing-allocation-backend/internal/models"
	"housing-allocation-backend/internal/repository"
	"housing-allocation-backend/internal/services/matching"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// RunLockKey guards matching runs across every instance.
	RunLockKey = "lock:matching-run"
	// progressFlushEvery is how many processed beneficiaries go by between
	// progress writes to the database.
	progressFlushEvery = 100
)

var (
	ErrRunInProgress = errors.New("a matching run is already in progress")
	ErrInvalidParams = errors.New("invalid matching parameters")
)

type Service struct {
	store   repository.Store
	engine  *matching.Engine
	locker  lock.Locker
	logger  logrus.FieldLogger
	lockTTL time.Duration

	progressCache sync.Map // runID -> *Progress
}

type Progress struct {
	Processed int    `json:"processed"`
	Status    string `json:"status"`
}

func NewService(
	store repository.Store,
	engine *matching.Engine,
	locker lock.Locker,
	logger logrus.FieldLogger,
	lockTTL time.Duration,
) *Service {
	return &Service{
		store:   store,
		engine:  engine,
		locker:  locker,
		logger:  logger.WithField("module", "allocation"),
		lockTTL: lockTTL,
	}
}

type RunRequest struct {
	RegionID       *uint
	MunicipalityID *uint
	ProjectLimit   int
	Trigger        string
	Actor          matching.ActorContext
}

type RunOutcome struct {
	Run    *models.MatchingRun `json:"run"`
	Result *matching.RunResult `json:"resultados"`
}

// ExecuteRun runs the candidate selector once, recording the run and an
// EJECUTAR_MATCHING audit entry. Only one run executes at a time.
func (s *Service) ExecuteRun(ctx context.Context, req RunRequest) (*RunOutcome, error) {
	if req.ProjectLimit < 0 {
		return nil, fmt.Errorf("%w: project limit must be >= 0", ErrInvalidParams)
	}
	if req.Trigger == "" {
		req.Trigger = models.TriggerAPI
	}

	lease, err := s.locker.Obtain(ctx, RunLockKey, s.lockTTL)
	if errors.Is(err, lock.ErrNotObtained) {
		return nil, ErrRunInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("obtaining run lock: %w", err)
	}
	// a started run always finishes, even if the caller goes away
	ctx = context.WithoutCancel(ctx)
	defer func() {
		if err := lease.Release(ctx); err != nil {
			s.logger.WithError(err).Warn("failed to release run lock")
		}
	}()

	run, err := s.createRun(ctx, req)
	if err != nil {
		return nil, err
	}
	log := s.logger.WithFields(logrus.Fields{"run_id": run.ID, "trigger": req.Trigger})

	started := time.Now()
	lastRefresh := started
	result, err := s.engine.RunMatching(ctx, matching.RunParams{
		RegionID:       req.RegionID,
		MunicipalityID: req.MunicipalityID,
		ProjectLimit:   req.ProjectLimit,
		OnProgress: func(processed int) {
			s.updateProgressCache(run.ID, processed)
			if time.Since(lastRefresh) >= s.lockTTL/3 {
				lastRefresh = time.Now()
				if err := lease.Refresh(ctx, s.lockTTL); err != nil {
					log.WithError(err).Error("failed to refresh run lock")
				}
			}
			if processed%progressFlushEvery == 0 {
				if err := s.store.UpdateRunProgress(ctx, run.ID, processed); err != nil {
					log.WithError(err).Warn("failed to persist run progress")
				}
			}
		},
	})
	if err != nil {
		metrics.ObserveRun(req.Trigger, models.RunFailed, 0, 0, time.Since(started))
		s.failRun(ctx, run, result, err)
		return &RunOutcome{Run: run, Result: result}, err
	}
	metrics.ObserveRun(req.Trigger, models.RunCompleted, result.Created, result.Errors, time.Since(started))

	if err := s.completeRun(ctx, run, result); err != nil {
		return nil, err
	}

	entry, err := models.NewAuditLog(req.Actor.UserID, models.ActionRunMatching, models.EntityMatch, nil,
		map[string]any{},
		map[string]any{"processed": result.Processed, "created": result.Created, "run_id": run.ID.String()},
	)
	if err != nil {
		return nil, err
	}
	entry.IPAddress = req.Actor.IPAddress
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		log.WithError(err).Error("failed to write run audit entry")
	}

	return &RunOutcome{Run: run, Result: result}, nil
}

func (s *Service) createRun(ctx context.Context, req RunRequest) (*models.MatchingRun, error) {
	now := time.Now()
	run := &models.MatchingRun{
		ID:             uuid.New(),
		RegionID:       req.RegionID,
		MunicipalityID: req.MunicipalityID,
		ProjectLimit:   req.ProjectLimit,
		Trigger:        req.Trigger,
		Status:         models.RunProcessing,
		StartedAt:      now,
		CreatedAt:      now,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("creating matching run: %w", err)
	}
	s.progressCache.Store(run.ID, &Progress{Status: models.RunProcessing})
	return run, nil
}

func (s *Service) completeRun(ctx context.Context, run *models.MatchingRun, result *matching.RunResult) error {
	details, err := json.Marshal(result.Details)
	if err != nil {
		return fmt.Errorf("encoding run details: %w", err)
	}

	completed := time.Now()
	run.Status = models.RunCompleted
	run.Processed = result.Processed
	run.Created = result.Created
	run.Errors = result.Errors
	run.Details = details
	run.CompletedAt = &completed

	s.progressCache.Store(run.ID, &Progress{Processed: result.Processed, Status: models.RunCompleted})
	if err := s.store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("saving matching run: %w", err)
	}
	return nil
}

func (s *Service) failRun(ctx context.Context, run *models.MatchingRun, result *matching.RunResult, cause error) {
	completed := time.Now()
	run.Status = models.RunFailed
	run.ErrorMessage = cause.Error()
	run.CompletedAt = &completed
	if result != nil {
		run.Processed = result.Processed
		run.Created = result.Created
		run.Errors = result.Errors
	}

	s.progressCache.Store(run.ID, &Progress{Processed: run.Processed, Status: models.RunFailed})
	if err := s.store.SaveRun(ctx, run); err != nil {
		s.logger.WithField("run_id", run.ID).WithError(err).Error("failed to mark run as failed")
	}
}

func (s *Service) updateProgressCache(id uuid.UUID, processed int) {
	val, _ := s.progressCache.LoadOrStore(id, &Progress{Status: models.RunProcessing})
	p := val.(*Progress)
	s.progressCache.Store(id, &Progress{Processed: processed, Status: p.Status})
}

// Progress returns the in-memory progress of a run started by this instance.
func (s *Service) Progress(id uuid.UUID) (Progress, bool) {
	val, ok := s.progressCache.Load(id)
	if !ok {
		return Progress{}, false
	}
	return *val.(*Progress), true
}

// GetRun loads a run, overlaying live progress while it is still processing.
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*models.MatchingRun, error) {
	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if p, ok := s.Progress(id); ok && run.Status == models.RunProcessing && p.Processed > run.Processed {
		run.Processed = p.Processed
	}
	return run, nil
}

func (s *Service) Approve(ctx context.Context, matchID uint, actor matching.ActorContext) (*matching.Decision, error) {
	d, err := s.engine.Approve(ctx, matchID, actor)
	metrics.ObserveDecision("approve", err)
	return d, err
}

func (s *Service) Reject(ctx context.Context, matchID uint, reason string, actor matching.ActorContext) (*matching.Decision, error) {
	d, err := s.engine.Reject(ctx, matchID, reason, actor)
	metrics.ObserveDecision("reject", err)
	return d, err
}

// ListMatches returns one page of matches and the cursor of the next page.
func (s *Service) ListMatches(ctx context.Context, q repository.MatchQuery) ([]models.Match, string, bool, error) {
	q.Limit = clampLimit(q.Limit)
	limit := q.Limit
	q.Limit = limit + 1

	items, err := s.store.ListMatches(ctx, q)
	if err != nil {
		return nil, "", false, err
	}
	items, next, more := page(items, limit, func(m models.Match) uint { return m.ID })
	return items, next, more, nil
}

func (s *Service) Stats(ctx context.Context) (*repository.DashboardStats, error) {
	return s.store.Stats(ctx)
}

func (s *Service) GetMatch(ctx context.Context, id uint) (*models.Match, error) {
	return s.store.GetMatch(ctx, id)
}
