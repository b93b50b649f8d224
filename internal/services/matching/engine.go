// Package matching pairs eligible beneficiaries with housing projects and
// owns the approve/reject lifecycle of the resulting matches.
package matching

import (
	"time"

	"housing-allocation-backend/internal/repository"

	"github.com/sirupsen/logrus"
)

const (
	// EligibilityFloor is the minimum compatibility score for a proposed match.
	EligibilityFloor = 60.0
	// MaxMatchesPerBeneficiary caps the matches proposed to one beneficiary per run.
	MaxMatchesPerBeneficiary = 3
)

type Engine struct {
	store  repository.Store
	scorer *Scorer
	logger logrus.FieldLogger
	now    func() time.Time
}

type Option func(*Engine)

// WithClock overrides the time source used for match, application and audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store repository.Store, scorer *Scorer, logger logrus.FieldLogger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		scorer: scorer,
		logger: logger.WithField("module", "matching"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Scorer() *Scorer {
	return e.scorer
}
