package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ProjectActive    = "Activo"
	ProjectAvailable = "Disponible"
	ProjectPlanning  = "En Planificación"
	ProjectFinished  = "Finalizado"
)

const (
	HousingSocial = "Social"
	HousingMedia  = "Media"
	HousingAlta   = "Alta"
)

// OpenProjectStatuses are the project statuses that accept new matches.
var OpenProjectStatuses = []string{ProjectActive, ProjectAvailable}

type Project struct {
	ID             uint                `gorm:"primaryKey" json:"id"`
	Name           string              `gorm:"size:200;index" json:"name"`
	Description    string              `gorm:"type:text" json:"description,omitempty"`
	HousingType    string              `gorm:"size:100" json:"housing_type"`
	UnitPrice      decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"unit_price"`
	UnitArea       decimal.NullDecimal `gorm:"type:decimal(8,2)" json:"unit_area"`
	AvailableUnits int                 `gorm:"not null;default:0;check:available_units >= 0" json:"available_units"`
	Status         string              `gorm:"size:50;index" json:"status"`
	MunicipalityID *uint               `gorm:"index" json:"municipality_id,omitempty"`
	Municipality   *Municipality       `json:"municipality,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

func (Project) TableName() string { return "projects" }

// Open reports whether the project can receive new matches.
func (p *Project) Open() bool {
	if p.AvailableUnits <= 0 {
		return false
	}
	return p.Status == ProjectActive || p.Status == ProjectAvailable
}
