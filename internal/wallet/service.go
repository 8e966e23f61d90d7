package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"fleetfi-backend/internal/audit"
	"fleetfi-backend/internal/database"
	"fleetfi-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service is the single entry point for wallet balance mutations. No other
// component writes Wallet.Balance directly.
type Service struct {
	DB *gorm.DB
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CreditInTransaction creates a completed credit transaction and increments
// the wallet balance atomically inside the caller's transaction.
func CreditInTransaction(tx *gorm.DB, actorID *uuid.UUID, walletID uuid.UUID, amount float64, reference string, metadata map[string]interface{}) (*domain.WalletTransaction, error) {
	return applyInTransaction(tx, actorID, walletID, domain.TxDirectionCredit, amount, reference, metadata)
}

// DebitInTransaction checks the balance and creates a completed debit
// transaction under the wallet row lock; the check-and-decrement is atomic.
func DebitInTransaction(tx *gorm.DB, actorID *uuid.UUID, walletID uuid.UUID, amount float64, reference string, metadata map[string]interface{}) (*domain.WalletTransaction, error) {
	return applyInTransaction(tx, actorID, walletID, domain.TxDirectionDebit, amount, reference, metadata)
}

func applyInTransaction(tx *gorm.DB, actorID *uuid.UUID, walletID uuid.UUID, direction string, amount float64, reference string, metadata map[string]interface{}) (*domain.WalletTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	amount = round2(amount)

	var w domain.Wallet
	if err := database.ForUpdate(tx).Where("wallet_id = ?", walletID).First(&w).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	if w.Status == domain.WalletStatusFrozen {
		return nil, ErrWalletFrozen
	}

	// Second line of defense behind webhook replay protection: the same
	// reference, direction and amount on one wallet is a duplicate
	// submission.
	var dupes int64
	if err := tx.Model(&domain.WalletTransaction{}).
		Where("wallet_id = ? AND direction = ? AND amount = ? AND reference = ? AND status = ?",
			walletID, direction, amount, reference, domain.TxStatusCompleted).
		Count(&dupes).Error; err != nil {
		return nil, err
	}
	if dupes > 0 {
		return nil, &DuplicateReferenceError{Reference: reference}
	}

	if direction == domain.TxDirectionDebit && round2(w.Balance) < amount {
		return nil, &InsufficientBalanceError{Balance: round2(w.Balance)}
	}

	now := time.Now()
	entry := domain.WalletTransaction{
		WalletID:    walletID,
		Direction:   direction,
		Amount:      amount,
		Reference:   reference,
		Status:      domain.TxStatusCompleted,
		Metadata:    marshalMetadata(metadata),
		CompletedAt: &now,
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, err
	}

	delta := amount
	action := audit.ActionWalletCredited
	if direction == domain.TxDirectionDebit {
		delta = -amount
		action = audit.ActionWalletDebited
	}
	if err := tx.Model(&domain.Wallet{}).Where("wallet_id = ?", walletID).
		Update("balance", gorm.Expr("round(balance + ?, 2)", delta)).Error; err != nil {
		return nil, err
	}

	if err := audit.Record(tx, actorID, action, "wallet", walletID.String(), balanceSnapshot(w.Balance), balanceSnapshot(round2(w.Balance+delta))); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Credit credits the wallet in its own transaction.
func (s *Service) Credit(ctx context.Context, actorID *uuid.UUID, walletID uuid.UUID, amount float64, reference string, metadata map[string]interface{}) (*domain.WalletTransaction, error) {
	var entry *domain.WalletTransaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = CreditInTransaction(tx, actorID, walletID, amount, reference, metadata)
		return err
	})
	return entry, err
}

// Debit debits the wallet in its own transaction.
func (s *Service) Debit(ctx context.Context, actorID *uuid.UUID, walletID uuid.UUID, amount float64, reference string, metadata map[string]interface{}) (*domain.WalletTransaction, error) {
	var entry *domain.WalletTransaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = DebitInTransaction(tx, actorID, walletID, amount, reference, metadata)
		return err
	})
	return entry, err
}

// Transfer moves funds between two wallets as one debit plus one credit
// under a single transaction; if the debit fails no credit is created.
func (s *Service) Transfer(ctx context.Context, actorID *uuid.UUID, fromWalletID, toWalletID uuid.UUID, amount float64, reference string) (debit, credit *domain.WalletTransaction, err error) {
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		meta := map[string]interface{}{"transfer_peer": toWalletID.String()}
		debit, txErr = DebitInTransaction(tx, actorID, fromWalletID, amount, reference, meta)
		if txErr != nil {
			return txErr
		}
		meta = map[string]interface{}{"transfer_peer": fromWalletID.String()}
		credit, txErr = CreditInTransaction(tx, actorID, toWalletID, amount, reference, meta)
		return txErr
	})
	if err != nil {
		return nil, nil, err
	}
	return debit, credit, nil
}

// EnsureWallet finds the user's wallet or creates one with the given
// address. Find-or-create keyed on user_id makes wallet.created webhook
// replays converge.
func EnsureWallet(tx *gorm.DB, userID uuid.UUID, address, currency string) (*domain.Wallet, error) {
	var w domain.Wallet
	err := tx.Where("user_id = ?", userID).First(&w).Error
	if err == nil {
		return &w, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}
	if currency == "" {
		currency = "USD"
	}
	if address == "" {
		address = fmt.Sprintf("wallet-%s", uuid.New().String())
	}
	w = domain.Wallet{
		UserID:   userID,
		Address:  address,
		Currency: currency,
		Status:   domain.WalletStatusActive,
	}
	if err := tx.Create(&w).Error; err != nil {
		return nil, err
	}
	if err := audit.Record(tx, nil, audit.ActionWalletCreated, "wallet", w.WalletID.String(), nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// FindByUser returns the user's wallet.
func FindByUser(tx *gorm.DB, userID uuid.UUID) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := tx.Where("user_id = ?", userID).First(&w).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

// GetWallet returns the wallet by id.
func (s *Service) GetWallet(ctx context.Context, walletID uuid.UUID) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := s.DB.WithContext(ctx).Where("wallet_id = ?", walletID).First(&w).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &w, nil
}

// ListTransactions returns the wallet's ledger entries, newest first.
func (s *Service) ListTransactions(ctx context.Context, walletID uuid.UUID) ([]domain.WalletTransaction, error) {
	var entries []domain.WalletTransaction
	err := s.DB.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("\"createdAt\" DESC").
		Find(&entries).Error
	return entries, err
}

func marshalMetadata(m map[string]interface{}) datatypes.JSON {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

func balanceSnapshot(balance float64) map[string]interface{} {
	return map[string]interface{}{"balance": round2(balance)}
}
