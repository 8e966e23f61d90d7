package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Payout statuses.
const (
	PayoutStatusPending   = "pending"
	PayoutStatusCompleted = "completed"
	PayoutStatusFailed    = "failed"
)

// Payout is one distribution of funds to one owner, created by the payout
// distributor and settled (pending -> completed/failed) by the webhook
// reconciler. The (token_id, external_tx_hash) pair is the idempotency key
// for confirmation replays.
type Payout struct {
	PayoutID       uuid.UUID  `gorm:"column:payout_id;type:uuid;primaryKey" json:"payout_id"`
	BatchID        uuid.UUID  `gorm:"column:batch_id;type:uuid;not null;index" json:"batch_id"`
	AssetID        uuid.UUID  `gorm:"column:asset_id;type:uuid;not null;index" json:"asset_id"`
	OwnerID        uuid.UUID  `gorm:"column:owner_id;type:uuid;not null;index" json:"owner_id"`
	TokenID        *uuid.UUID `gorm:"column:token_id;type:uuid;index:idx_payout_token_hash" json:"token_id"`
	Amount         float64    `gorm:"column:amount;type:decimal(18,2);not null" json:"amount"`
	Period         string     `gorm:"column:period;type:varchar(50);not null" json:"period"`
	Description    string     `gorm:"column:description" json:"description"`
	Status         string     `gorm:"column:status;type:varchar(20);not null;default:pending" json:"status"`
	ExternalTxHash *string    `gorm:"column:external_tx_hash;index:idx_payout_token_hash" json:"external_tx_hash"`
	FailureReason  *string    `gorm:"column:failure_reason" json:"failure_reason"`
	CompletedAt    *time.Time `gorm:"column:completed_at" json:"completed_at"`
	CreatedAt      time.Time  `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt      time.Time  `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Payout) TableName() string {
	return "Payouts"
}

func (p *Payout) BeforeCreate(tx *gorm.DB) error {
	if p.PayoutID == uuid.Nil {
		p.PayoutID = uuid.New()
	}
	return nil
}
