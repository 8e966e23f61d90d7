package ownership

import (
	"context"
	"errors"
	"sync"
	"testing"

	"fleetfi-backend/internal/custody"
	"fleetfi-backend/internal/database"
	"fleetfi-backend/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeProvider settles synchronously like the sandbox, with switchable
// behavior for the pending and failure paths.
type fakeProvider struct {
	status  string
	txHash  string
	mintErr error

	mu            sync.Mutex
	mints         int
	transfers     int
	walletCreates int
}

func (f *fakeProvider) MintToken(ctx context.Context, req custody.MintRequest) (*custody.Result, error) {
	f.mu.Lock()
	f.mints++
	f.mu.Unlock()
	if f.mintErr != nil {
		return nil, f.mintErr
	}
	return &custody.Result{TxHash: f.txHash, Status: f.status}, nil
}

func (f *fakeProvider) SubmitPayoutBatch(ctx context.Context, req custody.PayoutBatchRequest) (*custody.Result, error) {
	return &custody.Result{TxHash: f.txHash, Status: f.status}, nil
}

func (f *fakeProvider) TransferToken(ctx context.Context, tokenID, newOwnerID string) (*custody.Result, error) {
	f.mu.Lock()
	f.transfers++
	f.mu.Unlock()
	return &custody.Result{TxHash: f.txHash, Status: f.status}, nil
}

func (f *fakeProvider) CreateWallet(ctx context.Context, userID string) (*custody.Result, error) {
	f.mu.Lock()
	f.walletCreates++
	f.mu.Unlock()
	return &custody.Result{TxHash: f.txHash, Status: f.status}, nil
}

func (f *fakeProvider) Mode() string { return "fake" }

func setupOwnershipTest(t *testing.T, provider custody.Provider) (*Service, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))
	return &Service{DB: db, Custody: provider}, db
}

func createAsset(t *testing.T, db *gorm.DB) *domain.Asset {
	a := &domain.Asset{
		Name:          "EV-001",
		AssetType:     domain.AssetTypeVehicle,
		OriginalValue: 12000,
		CurrentValue:  12000,
		Status:        domain.AssetStatusActive,
	}
	require.NoError(t, db.Create(a).Error)
	return a
}

func TestMint_Succeeds(t *testing.T) {
	provider := &fakeProvider{status: custody.StatusConfirmed, txHash: "HASH-1"}
	svc, db := setupOwnershipTest(t, provider)
	asset := createAsset(t, db)

	token, err := svc.Mint(context.Background(), nil, asset.AssetID, uuid.New(), 60, 7200)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenStatusActive, token.Status)
	require.NotNil(t, token.ExternalTxHash)
	assert.Equal(t, "HASH-1", *token.ExternalTxHash)
	assert.Equal(t, 1, provider.mints)

	var after domain.Asset
	require.NoError(t, db.First(&after, "asset_id = ?", asset.AssetID).Error)
	assert.True(t, after.IsTokenized)
}

func TestMint_EnforcesOwnershipBound(t *testing.T) {
	provider := &fakeProvider{status: custody.StatusConfirmed, txHash: "HASH-1"}
	svc, db := setupOwnershipTest(t, provider)
	asset := createAsset(t, db)
	ctx := context.Background()

	_, err := svc.Mint(ctx, nil, asset.AssetID, uuid.New(), 60, 6000)
	require.NoError(t, err)

	// 50% no longer fits; the error carries the remaining fraction.
	_, err = svc.Mint(ctx, nil, asset.AssetID, uuid.New(), 50, 5000)
	var insufficient *InsufficientRemainingOwnershipError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 40.0, insufficient.Remaining)

	// 40% exactly fills the asset.
	_, err = svc.Mint(ctx, nil, asset.AssetID, uuid.New(), 40, 4000)
	require.NoError(t, err)

	_, remaining, err := svc.ListByAsset(ctx, asset.AssetID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, remaining)
}

func TestConcurrentMints_OnlyOneExceedsBound(t *testing.T) {
	provider := &fakeProvider{status: custody.StatusConfirmed, txHash: "HASH-C"}
	svc, db := setupOwnershipTest(t, provider)
	asset := createAsset(t, db)

	// Two 60% mints race; together they exceed 100%, so exactly one may land.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Mint(context.Background(), nil, asset.AssetID, uuid.New(), 60, 6000)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			var insufficient *InsufficientRemainingOwnershipError
			require.ErrorAs(t, err, &insufficient)
			assert.Equal(t, 40.0, insufficient.Remaining)
		}
	}
	assert.Equal(t, 1, succeeded)

	var total float64
	require.NoError(t, db.Model(&domain.OwnershipToken{}).
		Where("asset_id = ?", asset.AssetID).
		Select("COALESCE(SUM(fraction_owned), 0)").Scan(&total).Error)
	assert.Equal(t, 60.0, total)
}

func TestMint_InvalidInputs(t *testing.T) {
	svc, db := setupOwnershipTest(t, &fakeProvider{status: custody.StatusConfirmed})
	asset := createAsset(t, db)
	ctx := context.Background()

	_, err := svc.Mint(ctx, nil, asset.AssetID, uuid.New(), 0, 100)
	assert.ErrorIs(t, err, ErrInvalidFraction)
	_, err = svc.Mint(ctx, nil, asset.AssetID, uuid.New(), 101, 100)
	assert.ErrorIs(t, err, ErrInvalidFraction)
	_, err = svc.Mint(ctx, nil, asset.AssetID, uuid.New(), 10, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.Mint(ctx, nil, uuid.New(), uuid.New(), 10, 100)
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestMint_StaysPendingWhenCustodyFails(t *testing.T) {
	provider := &fakeProvider{mintErr: errors.New("custody unreachable")}
	svc, db := setupOwnershipTest(t, provider)
	asset := createAsset(t, db)

	token, err := svc.Mint(context.Background(), nil, asset.AssetID, uuid.New(), 30, 3000)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenStatusPending, token.Status)
	assert.Nil(t, token.ExternalTxHash)
}

func TestMint_StaysPendingWhenSubmitted(t *testing.T) {
	provider := &fakeProvider{status: custody.StatusSubmitted}
	svc, db := setupOwnershipTest(t, provider)
	asset := createAsset(t, db)

	token, err := svc.Mint(context.Background(), nil, asset.AssetID, uuid.New(), 30, 3000)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenStatusPending, token.Status)
}

// Pending tokens still count against the 100% bound: an unconfirmed mint
// must not be resellable.
func TestMint_PendingTokensReserveFraction(t *testing.T) {
	provider := &fakeProvider{status: custody.StatusSubmitted}
	svc, db := setupOwnershipTest(t, provider)
	asset := createAsset(t, db)
	ctx := context.Background()

	_, err := svc.Mint(ctx, nil, asset.AssetID, uuid.New(), 80, 8000)
	require.NoError(t, err)

	_, err = svc.Mint(ctx, nil, asset.AssetID, uuid.New(), 30, 3000)
	var insufficient *InsufficientRemainingOwnershipError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 20.0, insufficient.Remaining)
}

func TestConfirm_IsIdempotent(t *testing.T) {
	provider := &fakeProvider{status: custody.StatusSubmitted}
	svc, db := setupOwnershipTest(t, provider)
	asset := createAsset(t, db)
	ctx := context.Background()

	token, err := svc.Mint(ctx, nil, asset.AssetID, uuid.New(), 30, 3000)
	require.NoError(t, err)

	confirmed, err := svc.Confirm(ctx, token.TokenID, "HASH-9")
	require.NoError(t, err)
	assert.Equal(t, domain.TokenStatusActive, confirmed.Status)

	// Replay with the same hash: no-op.
	again, err := svc.Confirm(ctx, token.TokenID, "HASH-9")
	require.NoError(t, err)
	assert.Equal(t, "HASH-9", *again.ExternalTxHash)

	// Different hash: logged conflict, recorded hash kept.
	_, err = svc.Confirm(ctx, token.TokenID, "HASH-OTHER")
	assert.ErrorIs(t, err, ErrTxHashConflict)
	var current domain.OwnershipToken
	require.NoError(t, db.First(&current, "token_id = ?", token.TokenID).Error)
	assert.Equal(t, "HASH-9", *current.ExternalTxHash)
}

func TestTransferOwner_AbsoluteAndIdempotent(t *testing.T) {
	provider := &fakeProvider{status: custody.StatusConfirmed, txHash: "HASH-1"}
	svc, db := setupOwnershipTest(t, provider)
	asset := createAsset(t, db)
	ctx := context.Background()

	token, err := svc.Mint(ctx, nil, asset.AssetID, uuid.New(), 25, 2500)
	require.NoError(t, err)

	newOwner := uuid.New()
	moved, err := svc.TransferOwner(ctx, nil, token.TokenID, newOwner)
	require.NoError(t, err)
	assert.Equal(t, newOwner, moved.OwnerID)
	assert.Equal(t, token.FractionOwned, moved.FractionOwned)

	// Transfer does not change the allocated fraction.
	_, remaining, err := svc.ListByAsset(ctx, asset.AssetID)
	require.NoError(t, err)
	assert.Equal(t, 75.0, remaining)

	// Same transfer again is a no-op.
	again, err := svc.TransferOwner(ctx, nil, token.TokenID, newOwner)
	require.NoError(t, err)
	assert.Equal(t, newOwner, again.OwnerID)

	_, err = svc.TransferOwner(ctx, nil, uuid.New(), newOwner)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTransferOwner_SubmitsToCustodyOnce(t *testing.T) {
	provider := &fakeProvider{status: custody.StatusConfirmed, txHash: "HASH-T"}
	svc, db := setupOwnershipTest(t, provider)
	asset := createAsset(t, db)
	ctx := context.Background()

	token, err := svc.Mint(ctx, nil, asset.AssetID, uuid.New(), 25, 2500)
	require.NoError(t, err)

	newOwner := uuid.New()
	_, err = svc.TransferOwner(ctx, nil, token.TokenID, newOwner)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.transfers)

	// The replayed no-op does not resubmit.
	_, err = svc.TransferOwner(ctx, nil, token.TokenID, newOwner)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.transfers)
}

func TestRevoke_ReturnsFractionToPool(t *testing.T) {
	provider := &fakeProvider{status: custody.StatusConfirmed, txHash: "HASH-R"}
	svc, db := setupOwnershipTest(t, provider)
	asset := createAsset(t, db)
	ctx := context.Background()

	token, err := svc.Mint(ctx, nil, asset.AssetID, uuid.New(), 60, 6000)
	require.NoError(t, err)

	revoked, err := svc.Revoke(ctx, nil, token.TokenID, "compliance hold")
	require.NoError(t, err)
	assert.Equal(t, domain.TokenStatusRevoked, revoked.Status)

	// The freed fraction is mintable again.
	_, remaining, err := svc.ListByAsset(ctx, asset.AssetID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, remaining)
	_, err = svc.Mint(ctx, nil, asset.AssetID, uuid.New(), 100, 10000)
	require.NoError(t, err)

	// Revoking again is a no-op; transferring a revoked token is rejected.
	_, err = svc.Revoke(ctx, nil, token.TokenID, "again")
	require.NoError(t, err)
	_, err = svc.TransferOwner(ctx, nil, token.TokenID, uuid.New())
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = svc.Revoke(ctx, nil, uuid.New(), "missing")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestMint_ProvisionsOwnerWallet(t *testing.T) {
	provider := &fakeProvider{status: custody.StatusConfirmed, txHash: "HASH-W"}
	svc, db := setupOwnershipTest(t, provider)
	asset := createAsset(t, db)
	ctx := context.Background()
	owner := uuid.New()

	_, err := svc.Mint(ctx, nil, asset.AssetID, owner, 30, 3000)
	require.NoError(t, err)

	var w domain.Wallet
	require.NoError(t, db.First(&w, "user_id = ?", owner).Error)
	assert.Equal(t, domain.WalletStatusActive, w.Status)
	assert.Equal(t, 1, provider.walletCreates)

	// A second mint for the same owner reuses the wallet.
	_, err = svc.Mint(ctx, nil, asset.AssetID, owner, 20, 2000)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.walletCreates)

	var count int64
	require.NoError(t, db.Model(&domain.Wallet{}).Where("user_id = ?", owner).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
