package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OwnershipToken lifecycle statuses. Tokens are never deleted, only
// status-transitioned.
const (
	TokenStatusPending = "pending"
	TokenStatusActive  = "active"
	TokenStatusRevoked = "revoked"
)

// OwnershipToken is one owner's fractional stake in one asset.
// FractionOwned is a percentage (0 < f <= 100); the sum over pending+active
// tokens of an asset never exceeds 100.
type OwnershipToken struct {
	TokenID          uuid.UUID `gorm:"column:token_id;type:uuid;primaryKey" json:"token_id"`
	AssetID          uuid.UUID `gorm:"column:asset_id;type:uuid;not null;index" json:"asset_id"`
	OwnerID          uuid.UUID `gorm:"column:owner_id;type:uuid;not null;index" json:"owner_id"`
	FractionOwned    float64   `gorm:"column:fraction_owned;type:decimal(8,4);not null" json:"fraction_owned"`
	InvestmentAmount float64   `gorm:"column:investment_amount;type:decimal(18,2);not null" json:"investment_amount"`
	TotalReturns     float64   `gorm:"column:total_returns;type:decimal(18,2);not null;default:0" json:"total_returns"`
	CurrentValue     float64   `gorm:"column:current_value;type:decimal(18,2);not null" json:"current_value"`
	Status           string    `gorm:"column:status;type:varchar(20);not null;default:pending" json:"status"`
	ExternalTxHash   *string   `gorm:"column:external_tx_hash;index" json:"external_tx_hash"`
	CreatedAt        time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt        time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (OwnershipToken) TableName() string {
	return "OwnershipTokens"
}

func (t *OwnershipToken) BeforeCreate(tx *gorm.DB) error {
	if t.TokenID == uuid.Nil {
		t.TokenID = uuid.New()
	}
	return nil
}
