package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Webhook processing statuses.
const (
	WebhookStatusProcessing = "processing"
	WebhookStatusProcessed  = "processed"
	WebhookStatusFailed     = "failed"
)

// WebhookLog is the audit/idempotency record of one inbound custody event:
// created with status processing before dispatch, updated after.
type WebhookLog struct {
	LogID     uuid.UUID      `gorm:"column:log_id;type:uuid;primaryKey" json:"log_id"`
	Source    string         `gorm:"column:source;type:varchar(30);not null" json:"source"`
	EventType string         `gorm:"column:event_type;type:varchar(50);not null;index" json:"event_type"`
	Payload   datatypes.JSON `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	Status    string         `gorm:"column:status;type:varchar(20);not null;default:processing" json:"status"`
	Response  *string        `gorm:"column:response" json:"response"`
	Error     *string        `gorm:"column:error" json:"error"`
	CreatedAt time.Time      `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updatedAt" json:"updatedAt"`
}

func (WebhookLog) TableName() string {
	return "WebhookLogs"
}

func (l *WebhookLog) BeforeCreate(tx *gorm.DB) error {
	if l.LogID == uuid.Nil {
		l.LogID = uuid.New()
	}
	return nil
}
