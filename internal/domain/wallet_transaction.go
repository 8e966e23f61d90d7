package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WalletTransaction directions and statuses. A pending entry transitions to
// completed or failed exactly once; completed entries are immutable.
const (
	TxDirectionCredit = "credit"
	TxDirectionDebit  = "debit"

	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

// WalletTransaction is one append-only ledger entry against a wallet.
type WalletTransaction struct {
	TxID        uuid.UUID      `gorm:"column:tx_id;type:uuid;primaryKey" json:"tx_id"`
	WalletID    uuid.UUID      `gorm:"column:wallet_id;type:uuid;not null;index" json:"wallet_id"`
	Direction   string         `gorm:"column:direction;type:varchar(10);not null" json:"direction"`
	Amount      float64        `gorm:"column:amount;type:decimal(18,2);not null" json:"amount"`
	Reference   string         `gorm:"column:reference;not null;index" json:"reference"`
	Status      string         `gorm:"column:status;type:varchar(20);not null;default:pending" json:"status"`
	Metadata    datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at"`
	CreatedAt   time.Time      `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt   time.Time      `gorm:"column:updatedAt" json:"updatedAt"`
}

func (WalletTransaction) TableName() string {
	return "WalletTransactions"
}

func (t *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.TxID == uuid.Nil {
		t.TxID = uuid.New()
	}
	return nil
}
