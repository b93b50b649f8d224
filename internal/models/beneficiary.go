package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	BeneficiaryActive   = "Activo"
	BeneficiaryEligible = "Elegible"
	BeneficiaryInactive = "Inactivo"
)

// CandidateStatuses are the beneficiary statuses considered by a matching run.
var CandidateStatuses = []string{BeneficiaryActive, BeneficiaryEligible}

type Beneficiary struct {
	ID                 uint                `gorm:"primaryKey" json:"id"`
	RUT                *string             `gorm:"size:20;uniqueIndex" json:"rut,omitempty"`
	FirstName          string              `gorm:"size:100" json:"first_name"`
	LastName           string              `gorm:"size:100" json:"last_name"`
	Email              string              `gorm:"size:100" json:"email,omitempty"`
	SocioeconomicScore *int                `json:"socioeconomic_score,omitempty"`
	HouseholdIncome    decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"household_income"`
	HouseholdSize      *int                `json:"household_size,omitempty"`
	MunicipalityID     *uint               `gorm:"index" json:"municipality_id,omitempty"`
	Municipality       *Municipality       `json:"municipality,omitempty"`
	Status             string              `gorm:"size:50;index" json:"status"`
	RegisteredAt       time.Time           `json:"registered_at"`
}

func (Beneficiary) TableName() string { return "beneficiaries" }

func (b *Beneficiary) FullName() string {
	return strings.TrimSpace(b.FirstName + " " + b.LastName)
}

func (b *Beneficiary) IsCandidate() bool {
	return b.Status == BeneficiaryActive || b.Status == BeneficiaryEligible
}
