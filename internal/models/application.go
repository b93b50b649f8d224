package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ApplicationPending  = "Pendiente"
	ApplicationInReview = "En Revisión"
	ApplicationApproved = "Aprobada"
	ApplicationRejected = "Rechazada"
)

// ApplicationStatuses lists every status an application may hold.
var ApplicationStatuses = []string{ApplicationPending, ApplicationInReview, ApplicationApproved, ApplicationRejected}

func ValidApplicationStatus(status string) bool {
	for _, s := range ApplicationStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Application is a beneficiary's formal application to a project.
type Application struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	BeneficiaryID   uint            `gorm:"not null;index:idx_applications_pair" json:"beneficiary_id"`
	ProjectID       uint            `gorm:"not null;index:idx_applications_pair" json:"project_id"`
	Status          string          `gorm:"size:50;index" json:"status"`
	Score           decimal.Decimal `gorm:"type:decimal(5,2)" json:"score"`
	ApplicationDate time.Time       `json:"application_date"`
	ApprovalDate    *time.Time      `json:"approval_date,omitempty"`
	Notes           string          `gorm:"type:text" json:"notes,omitempty"`

	Beneficiary *Beneficiary `json:"beneficiary,omitempty"`
	Project     *Project     `json:"project,omitempty"`
}

func (Application) TableName() string { return "applications" }
