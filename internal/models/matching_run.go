package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RunProcessing = "processing"
	RunCompleted  = "completed"
	RunFailed     = "failed"
)

const (
	TriggerAPI      = "api"
	TriggerCLI      = "cli"
	TriggerSchedule = "schedule"
)

// MatchingRun records one invocation of the candidate selector.
type MatchingRun struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RegionID       *uint          `json:"region_id,omitempty"`
	MunicipalityID *uint          `json:"municipality_id,omitempty"`
	ProjectLimit   int            `json:"project_limit"`
	Trigger        string         `gorm:"size:20" json:"trigger"`
	Status         string         `gorm:"size:20;index" json:"status"`
	Processed      int            `json:"processed"`
	Created        int            `json:"created"`
	Errors         int            `json:"errors"`
	Details        datatypes.JSON `json:"details,omitempty"`
	ErrorMessage   string         `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (MatchingRun) TableName() string { return "matching_runs" }

// All lists every model managed by migrations, parents first.
func All() []any {
	return []any{
		&Region{},
		&Municipality{},
		&Beneficiary{},
		&Project{},
		&Application{},
		&Match{},
		&AuditLog{},
		&MatchingRun{},
	}
}
