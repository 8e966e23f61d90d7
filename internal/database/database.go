package database

import (
	"fleetfi-backend/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Open opens a GORM DB from DSN.
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") when running behind connection
// poolers (PgBouncer, Supabase, Render).
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
}

// AutoMigrate runs migrations for all durable models. Every invariant in the
// ledger must hold by inspecting these rows alone.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Asset{},
		&domain.OwnershipToken{},
		&domain.RevenueEvent{},
		&domain.Payout{},
		&domain.Wallet{},
		&domain.WalletTransaction{},
		&domain.WebhookLog{},
		&domain.AuditLog{},
	)
}

// ForUpdate applies a SELECT ... FOR UPDATE row lock. The sqlite dialect
// used by tests has a single writer and rejects the clause, so it is skipped
// there; on Postgres it serializes check-then-write sections (mint,
// debit) against concurrent writers.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
