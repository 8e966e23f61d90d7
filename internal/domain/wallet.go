package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Wallet statuses.
const (
	WalletStatusActive = "active"
	WalletStatusFrozen = "frozen"
)

// Wallet is one balance-holder per user. Balance is a cache over the
// completed WalletTransactions (credits positive, debits negative) and is
// mutated only through the wallet ledger service, never directly.
type Wallet struct {
	WalletID  uuid.UUID `gorm:"column:wallet_id;type:uuid;primaryKey" json:"wallet_id"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex" json:"user_id"`
	Address   string    `gorm:"column:address;uniqueIndex;not null" json:"address"`
	Balance   float64   `gorm:"column:balance;type:decimal(18,2);not null;default:0" json:"balance"`
	Currency  string    `gorm:"column:currency;type:varchar(10);not null;default:USD" json:"currency"`
	Status    string    `gorm:"column:status;type:varchar(20);not null;default:active" json:"status"`
	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Wallet) TableName() string {
	return "Wallets"
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.WalletID == uuid.Nil {
		w.WalletID = uuid.New()
	}
	return nil
}
