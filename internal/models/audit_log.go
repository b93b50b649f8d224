package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

const (
	ActionApproveMatch = "APROBAR_MATCHING"
	ActionRejectMatch  = "RECHAZAR_MATCHING"
	ActionRunMatching  = "EJECUTAR_MATCHING"

	ActionCreateApplication = "CREAR_POSTULACION"
	ActionUpdateApplication = "ACTUALIZAR_POSTULACION"

	EntityMatch       = "Matching"
	EntityApplication = "Postulacion"
)

// AuditLog is an append-only change record. Rows are never updated.
type AuditLog struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	ActorID    *uint          `gorm:"index" json:"actor_id,omitempty"`
	Action     string         `gorm:"size:100;index" json:"action"`
	EntityType string         `gorm:"size:100" json:"entity_type"`
	EntityID   *uint          `json:"entity_id,omitempty"`
	Before     datatypes.JSON `json:"before"`
	After      datatypes.JSON `json:"after"`
	IPAddress  string         `gorm:"size:45" json:"ip_address,omitempty"`
	CreatedAt  time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

func NewAuditLog(actorID *uint, action, entityType string, entityID *uint, before, after map[string]any) (*AuditLog, error) {
	beforeJSON, err := json.Marshal(before)
	if err != nil {
		return nil, fmt.Errorf("encoding audit before snapshot: %w", err)
	}
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return nil, fmt.Errorf("encoding audit after snapshot: %w", err)
	}
	return &AuditLog{
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Before:     datatypes.JSON(beforeJSON),
		After:      datatypes.JSON(afterJSON),
	}, nil
}
