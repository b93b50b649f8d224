// Package scheduler starts matching runs on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"housing-allocation-backend/internal/models"
	"housing-allocation-backend/internal/services/allocation"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type Runner interface {
	ExecuteRun(ctx context.Context, req allocation.RunRequest) (*allocation.RunOutcome, error)
}

type Scheduler struct {
	cron         *cron.Cron
	runner       Runner
	logger       logrus.FieldLogger
	projectLimit int
	ctx          context.Context
	cancel       context.CancelFunc
}

// New registers a matching run on spec, a standard five-field cron expression.
func New(spec string, runner Runner, logger logrus.FieldLogger, projectLimit int) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:         cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		runner:       runner,
		logger:       logger.WithField("module", "scheduler"),
		projectLimit: projectLimit,
		ctx:          ctx,
		cancel:       cancel,
	}
	if _, err := s.cron.AddFunc(spec, func() { _ = s.Trigger(s.ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("scheduling matching run %q: %w", spec, err)
	}
	return s, nil
}

// Trigger executes one scheduled run. A run already in progress elsewhere is
// not an error.
func (s *Scheduler) Trigger(ctx context.Context) error {
	outcome, err := s.runner.ExecuteRun(ctx, allocation.RunRequest{
		ProjectLimit: s.projectLimit,
		Trigger:      models.TriggerSchedule,
	})
	if errors.Is(err, allocation.ErrRunInProgress) {
		s.logger.Info("matching run already in progress, skipping scheduled run")
		return nil
	}
	if err != nil {
		s.logger.WithError(err).Error("scheduled matching run failed")
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"run_id":    outcome.Run.ID,
		"processed": outcome.Result.Processed,
		"created":   outcome.Result.Created,
	}).Info("scheduled matching run finished")
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents further runs and waits for one in flight to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
