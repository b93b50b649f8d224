package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MatchState string

const (
	MatchPending  MatchState = "Pendiente"
	MatchApproved MatchState = "Aprobado"
	MatchRejected MatchState = "Rechazado"
)

// Match is a proposed beneficiary/project pairing. At most one exists per pair.
type Match struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	BeneficiaryID      uint            `gorm:"not null;uniqueIndex:idx_matches_pair" json:"beneficiary_id"`
	Beneficiary        *Beneficiary    `json:"beneficiary,omitempty"`
	ProjectID          uint            `gorm:"not null;uniqueIndex:idx_matches_pair" json:"project_id"`
	Project            *Project        `json:"project,omitempty"`
	CompatibilityScore decimal.Decimal `gorm:"type:decimal(5,2)" json:"compatibility_score"`
	State              MatchState      `gorm:"size:20;not null;index" json:"state"`
	CreatedAt          time.Time       `json:"created_at"`
	ApprovedAt         *time.Time      `json:"approved_at,omitempty"`
	RejectedAt         *time.Time      `json:"rejected_at,omitempty"`
	RejectionReason    *string         `gorm:"type:text" json:"rejection_reason,omitempty"`
}

func (Match) TableName() string { return "matches" }

func (m *Match) Pending() bool { return m.State == MatchPending }
