package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Revenue source types.
const (
	RevenueSourceRide   = "ride"
	RevenueSourceManual = "manual"
)

// RevenueEvent is one gross-revenue occurrence tied to an asset, split into
// the four stakeholder buckets. The four amounts always sum exactly to the
// gross amount (maintenance absorbs the rounding remainder). Immutable once
// created; corrections are new compensating events.
type RevenueEvent struct {
	EventID           uuid.UUID `gorm:"column:event_id;type:uuid;primaryKey" json:"event_id"`
	AssetID           uuid.UUID `gorm:"column:asset_id;type:uuid;not null;index" json:"asset_id"`
	SourceType        string    `gorm:"column:source_type;type:varchar(20);not null" json:"source_type"`
	SourceEventID     *string   `gorm:"column:source_event_id;uniqueIndex" json:"source_event_id"`
	GrossAmount       float64   `gorm:"column:gross_amount;type:decimal(18,2);not null" json:"gross_amount"`
	InvestorAmount    float64   `gorm:"column:investor_amount;type:decimal(18,2);not null" json:"investor_amount"`
	RiderAmount       float64   `gorm:"column:rider_amount;type:decimal(18,2);not null" json:"rider_amount"`
	ManagementAmount  float64   `gorm:"column:management_amount;type:decimal(18,2);not null" json:"management_amount"`
	MaintenanceAmount float64   `gorm:"column:maintenance_amount;type:decimal(18,2);not null" json:"maintenance_amount"`
	SplitVersion      string    `gorm:"column:split_version;type:varchar(20);not null" json:"split_version"`
	OccurredAt        time.Time `gorm:"column:occurred_at;not null" json:"occurred_at"`
	CreatedAt         time.Time `gorm:"column:createdAt" json:"createdAt"`
}

func (RevenueEvent) TableName() string {
	return "RevenueEvents"
}

func (e *RevenueEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	return nil
}
