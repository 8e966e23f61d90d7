package revenue

import (
	"context"
	"testing"
	"time"

	"fleetfi-backend/internal/database"
	"fleetfi-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupRevenueTest(t *testing.T) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))
	return &Service{DB: db, Split: defaultSplit}, db
}

func createActiveAsset(t *testing.T, db *gorm.DB, driverID *uuid.UUID) *domain.Asset {
	a := &domain.Asset{
		Name:             "EV-001",
		AssetType:        domain.AssetTypeVehicle,
		OriginalValue:    12000,
		CurrentValue:     12000,
		AssignedDriverID: driverID,
		Status:           domain.AssetStatusActive,
	}
	require.NoError(t, db.Create(a).Error)
	return a
}

func TestRecordRide_SplitsAndAccrues(t *testing.T) {
	svc, db := setupRevenueTest(t)
	asset := createActiveAsset(t, db, nil)

	event, err := svc.RecordRide(context.Background(), asset.AssetID, 1000, "", "evt-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1000.0, event.GrossAmount)
	assert.Equal(t, 500.0, event.InvestorAmount)
	assert.Equal(t, 300.0, event.RiderAmount)
	assert.Equal(t, 150.0, event.ManagementAmount)
	assert.Equal(t, 50.0, event.MaintenanceAmount)
	assert.Equal(t, "v1", event.SplitVersion)
	assert.Equal(t, domain.RevenueSourceRide, event.SourceType)

	var after domain.Asset
	require.NoError(t, db.First(&after, "asset_id = ?", asset.AssetID).Error)
	assert.Equal(t, 500.0, after.AccruedRevenue)
}

func TestRecordRide_ReplayIsDeduplicated(t *testing.T) {
	svc, db := setupRevenueTest(t)
	asset := createActiveAsset(t, db, nil)
	ctx := context.Background()

	first, err := svc.RecordRide(ctx, asset.AssetID, 400, "", "evt-dup", time.Now())
	require.NoError(t, err)
	second, err := svc.RecordRide(ctx, asset.AssetID, 400, "", "evt-dup", time.Now())
	require.NoError(t, err)
	assert.Equal(t, first.EventID, second.EventID)

	var count int64
	require.NoError(t, db.Model(&domain.RevenueEvent{}).Where("asset_id = ?", asset.AssetID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// Accrued only once.
	var after domain.Asset
	require.NoError(t, db.First(&after, "asset_id = ?", asset.AssetID).Error)
	assert.Equal(t, 200.0, after.AccruedRevenue)
}

func TestRecordRide_CreditsAssignedDriver(t *testing.T) {
	svc, db := setupRevenueTest(t)
	driverID := uuid.New()
	asset := createActiveAsset(t, db, &driverID)

	w := &domain.Wallet{
		UserID:   driverID,
		Address:  "wallet-driver",
		Currency: "USD",
		Status:   domain.WalletStatusActive,
	}
	require.NoError(t, db.Create(w).Error)

	event, err := svc.RecordRide(context.Background(), asset.AssetID, 1000, "", "evt-2", time.Now())
	require.NoError(t, err)

	var after domain.Wallet
	require.NoError(t, db.First(&after, "wallet_id = ?", w.WalletID).Error)
	assert.Equal(t, 300.0, after.Balance)

	var entry domain.WalletTransaction
	require.NoError(t, db.First(&entry, "wallet_id = ?", w.WalletID).Error)
	assert.Equal(t, "revenue:"+event.EventID.String(), entry.Reference)
}

// A driver without a wallet must not block the event; the rider share is
// simply not credited.
func TestRecordRide_MissingDriverWalletNotFatal(t *testing.T) {
	svc, db := setupRevenueTest(t)
	driverID := uuid.New()
	asset := createActiveAsset(t, db, &driverID)

	_, err := svc.RecordRide(context.Background(), asset.AssetID, 1000, "", "evt-3", time.Now())
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&domain.RevenueEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordRide_Rejections(t *testing.T) {
	svc, db := setupRevenueTest(t)
	asset := createActiveAsset(t, db, nil)
	ctx := context.Background()

	_, err := svc.RecordRide(ctx, asset.AssetID, 0, "", "evt-4", time.Now())
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.RecordRide(ctx, uuid.New(), 100, "", "evt-5", time.Now())
	assert.ErrorIs(t, err, ErrAssetNotFound)

	require.NoError(t, db.Model(&domain.Asset{}).Where("asset_id = ?", asset.AssetID).Update("status", domain.AssetStatusRetired).Error)
	_, err = svc.RecordRide(ctx, asset.AssetID, 100, "", "evt-6", time.Now())
	assert.ErrorIs(t, err, ErrAssetNotActive)
}

func TestListByAsset(t *testing.T) {
	svc, db := setupRevenueTest(t)
	asset := createActiveAsset(t, db, nil)
	ctx := context.Background()

	_, err := svc.RecordRide(ctx, asset.AssetID, 100, "", "evt-a", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = svc.RecordRide(ctx, asset.AssetID, 200, "", "evt-b", time.Now())
	require.NoError(t, err)

	events, err := svc.ListByAsset(ctx, asset.AssetID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 200.0, events[0].GrossAmount)
}
