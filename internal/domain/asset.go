package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Asset statuses.
const (
	AssetStatusActive  = "active"
	AssetStatusRetired = "retired"
)

// Asset types (fleet units).
const (
	AssetTypeVehicle         = "vehicle"
	AssetTypeBattery         = "battery"
	AssetTypeChargingCabinet = "charging_cabinet"
)

// Asset is one physical fleet unit that can be fractionally owned.
// AccruedRevenue is the investor bucket accumulated from revenue events and
// not yet distributed; it is drained by the payout distributor.
type Asset struct {
	AssetID          uuid.UUID  `gorm:"column:asset_id;type:uuid;primaryKey" json:"asset_id"`
	Name             string     `gorm:"column:name;not null" json:"name"`
	AssetType        string     `gorm:"column:asset_type;type:varchar(30);not null" json:"asset_type"`
	OriginalValue    float64    `gorm:"column:original_value;type:decimal(18,2);not null" json:"original_value"`
	CurrentValue     float64    `gorm:"column:current_value;type:decimal(18,2);not null" json:"current_value"`
	AccruedRevenue   float64    `gorm:"column:accrued_revenue;type:decimal(18,2);not null;default:0" json:"accrued_revenue"`
	IsTokenized      bool       `gorm:"column:is_tokenized;not null;default:false" json:"is_tokenized"`
	AssignedDriverID *uuid.UUID `gorm:"column:assigned_driver_id;type:uuid" json:"assigned_driver_id"`
	Status           string     `gorm:"column:status;type:varchar(20);not null;default:active" json:"status"`
	CreatedAt        time.Time  `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt        time.Time  `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Asset) TableName() string {
	return "Assets"
}

func (a *Asset) BeforeCreate(tx *gorm.DB) error {
	if a.AssetID == uuid.Nil {
		a.AssetID = uuid.New()
	}
	return nil
}
