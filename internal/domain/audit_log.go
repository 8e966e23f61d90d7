package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog is one immutable record of a state-changing operation: acting
// principal, entity touched, and before/after snapshots where applicable.
type AuditLog struct {
	AuditID    uuid.UUID      `gorm:"column:audit_id;type:uuid;primaryKey" json:"audit_id"`
	ActorID    *uuid.UUID     `gorm:"column:actor_id;type:uuid;index" json:"actor_id"`
	Action     string         `gorm:"column:action;type:varchar(50);not null;index" json:"action"`
	EntityType string         `gorm:"column:entity_type;type:varchar(50);not null" json:"entity_type"`
	EntityID   string         `gorm:"column:entity_id;not null;index" json:"entity_id"`
	Before     datatypes.JSON `gorm:"column:before;type:jsonb" json:"before"`
	After      datatypes.JSON `gorm:"column:after;type:jsonb" json:"after"`
	CreatedAt  time.Time      `gorm:"column:createdAt" json:"createdAt"`
}

func (AuditLog) TableName() string {
	return "AuditLogs"
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.AuditID == uuid.Nil {
		a.AuditID = uuid.New()
	}
	return nil
}
