package scheduler

import (
	"testing"

	"fleetfi-backend/internal/config"
	"fleetfi-backend/internal/custody"
	"fleetfi-backend/internal/database"
	"fleetfi-backend/internal/domain"
	"fleetfi-backend/internal/payouts"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupSchedulerTest(t *testing.T) (*Manager, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))

	svc := &payouts.Service{DB: db, Custody: &custody.SandboxProvider{}}
	m, err := NewManager(db, svc, config.Config{DistributionCron: "0 3 1 * *", DistributionWorkers: 2})
	require.NoError(t, err)
	t.Cleanup(m.Stop)
	return m, db
}

func seedAccruedAsset(t *testing.T, db *gorm.DB, accrued float64, withToken bool) *domain.Asset {
	a := &domain.Asset{
		Name:           "EV-" + uuid.New().String()[:8],
		AssetType:      domain.AssetTypeVehicle,
		OriginalValue:  10000,
		CurrentValue:   10000,
		AccruedRevenue: accrued,
		Status:         domain.AssetStatusActive,
	}
	require.NoError(t, db.Create(a).Error)
	if withToken {
		ownerID := uuid.New()
		token := &domain.OwnershipToken{
			AssetID:       a.AssetID,
			OwnerID:       ownerID,
			FractionOwned: 100,
			Status:        domain.TokenStatusActive,
		}
		require.NoError(t, db.Create(token).Error)
		w := &domain.Wallet{UserID: ownerID, Address: "addr-" + ownerID.String(), Currency: "USD", Status: domain.WalletStatusActive}
		require.NoError(t, db.Create(w).Error)
	}
	return a
}

func TestRunDistribution_DrainsAccruedAssets(t *testing.T) {
	m, db := setupSchedulerTest(t)
	a1 := seedAccruedAsset(t, db, 500, true)
	a2 := seedAccruedAsset(t, db, 120.50, true)
	untouched := seedAccruedAsset(t, db, 0, true)

	m.RunDistribution()

	for _, a := range []*domain.Asset{a1, a2, untouched} {
		var after domain.Asset
		require.NoError(t, db.First(&after, "asset_id = ?", a.AssetID).Error)
		assert.Equal(t, 0.0, after.AccruedRevenue)
	}

	// One completed batch per accrued asset, none for the drained one.
	var count int64
	require.NoError(t, db.Model(&domain.Payout{}).Where("status = ?", domain.PayoutStatusCompleted).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

// One bad asset (no active tokens) must not stop the sweep.
func TestRunDistribution_ContinuesPastFailures(t *testing.T) {
	m, db := setupSchedulerTest(t)
	stuck := seedAccruedAsset(t, db, 300, false)
	healthy := seedAccruedAsset(t, db, 200, true)

	m.RunDistribution()

	var stuckAfter, healthyAfter domain.Asset
	require.NoError(t, db.First(&stuckAfter, "asset_id = ?", stuck.AssetID).Error)
	require.NoError(t, db.First(&healthyAfter, "asset_id = ?", healthy.AssetID).Error)
	assert.Equal(t, 300.0, stuckAfter.AccruedRevenue) // accrual kept for a later run
	assert.Equal(t, 0.0, healthyAfter.AccruedRevenue)
}

func TestRunDistribution_NoAccrualsIsNoOp(t *testing.T) {
	m, db := setupSchedulerTest(t)
	seedAccruedAsset(t, db, 0, true)

	m.RunDistribution()

	var count int64
	require.NoError(t, db.Model(&domain.Payout{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}
