package matching

import (
	"context"
	"fmt"
	"sort"

	"housing-allocation-backend/internal/metrics"
	"housing-allocation-backend/internal/models"
	"housing-allocation-backend/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type RunParams struct {
	RegionID       *uint
	MunicipalityID *uint
	// ProjectLimit caps the candidate project set. Zero means no limit.
	ProjectLimit int
	// OnProgress, when set, is called after every processed beneficiary.
	OnProgress func(processed int)
}

type MatchDetail struct {
	BeneficiaryName string  `json:"beneficiary_name"`
	ProjectName     string  `json:"project_name"`
	Score           float64 `json:"score"`
}

type RunResult struct {
	Processed int           `json:"processed"`
	Created   int           `json:"created"`
	Errors    int           `json:"errors"`
	Details   []MatchDetail `json:"details"`
}

type candidate struct {
	project *models.Project
	score   float64
}

// RunMatching proposes up to MaxMatchesPerBeneficiary Pendiente matches to every
// eligible beneficiary. A failure on one beneficiary is counted and skipped.
// Once the population is loaded the batch always runs to the end.
func (e *Engine) RunMatching(ctx context.Context, params RunParams) (*RunResult, error) {
	log := e.logger.WithFields(logrus.Fields{
		"func":            "RunMatching",
		"region_id":       params.RegionID,
		"municipality_id": params.MunicipalityID,
		"project_limit":   params.ProjectLimit,
	})
	log.Info("matching run started")

	scope := repository.Scope{RegionID: params.RegionID, MunicipalityID: params.MunicipalityID}

	beneficiaries, err := e.store.EligibleBeneficiaries(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("loading eligible beneficiaries: %w", err)
	}
	projects, err := e.store.AvailableProjects(ctx, scope, params.ProjectLimit)
	if err != nil {
		return nil, fmt.Errorf("loading available projects: %w", err)
	}

	result := &RunResult{Details: []MatchDetail{}}
	for i := range beneficiaries {
		b := &beneficiaries[i]
		details, err := e.matchBeneficiary(ctx, b, projects)
		result.Created += len(details)
		result.Details = append(result.Details, details...)
		if err != nil {
			log.WithField("beneficiary_id", b.ID).WithError(err).Error("processing beneficiary failed")
			result.Errors++
		}
		result.Processed++

		if params.OnProgress != nil {
			params.OnProgress(result.Processed)
		}
	}

	log.WithFields(logrus.Fields{
		"processed": result.Processed,
		"created":   result.Created,
		"errors":    result.Errors,
	}).Info("matching run completed")
	return result, nil
}

func (e *Engine) matchBeneficiary(ctx context.Context, b *models.Beneficiary, projects []models.Project) ([]MatchDetail, error) {
	var candidates []candidate
	for i := range projects {
		p := &projects[i]

		rejected, err := e.store.HasRejectedApplication(ctx, b.ID, p.ID)
		if err != nil {
			return nil, fmt.Errorf("checking rejected applications for project %d: %w", p.ID, err)
		}
		if rejected {
			continue
		}

		score := e.scorer.Score(b, p)
		metrics.ObserveScore(score)
		if score >= EligibilityFloor {
			candidates = append(candidates, candidate{project: p, score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > MaxMatchesPerBeneficiary {
		candidates = candidates[:MaxMatchesPerBeneficiary]
	}

	var details []MatchDetail
	for _, c := range candidates {
		m := &models.Match{
			BeneficiaryID:      b.ID,
			ProjectID:          c.project.ID,
			CompatibilityScore: decimal.NewFromFloat(c.score).Round(2),
			State:              models.MatchPending,
			CreatedAt:          e.now(),
		}
		created, err := e.store.CreateMatchIfAbsent(ctx, m)
		if err != nil {
			return details, fmt.Errorf("creating match for project %d: %w", c.project.ID, err)
		}
		if !created {
			continue
		}
		details = append(details, MatchDetail{
			BeneficiaryName: b.FullName(),
			ProjectName:     c.project.Name,
			Score:           c.score,
		})
	}
	return details, nil
}
