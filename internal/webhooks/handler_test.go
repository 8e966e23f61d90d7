package webhooks

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"fleetfi-backend/internal/database"
	"fleetfi-backend/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "whsec_test"

func setupWebhookTest(t *testing.T, withRedis bool) (*fiber.App, *WebhookHandler, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))

	var rdb *redis.Client
	if withRedis {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() {
			rdb.Close()
			mr.Close()
		})
	}

	wh := &WebhookHandler{
		DB:         db,
		Rdb:        rdb,
		Secret:     testSecret,
		Reconciler: &Reconciler{},
	}
	app := fiber.New()
	app.Post("/webhook", wh.HandleWebhook)
	return app, wh, db
}

func sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func deliver(t *testing.T, app *fiber.App, payload []byte, signature string) int {
	req := httptest.NewRequest("POST", "/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Custody-Signature", signature)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func seedWebhookAsset(t *testing.T, db *gorm.DB) *domain.Asset {
	a := &domain.Asset{
		Name:          "EV-001",
		AssetType:     domain.AssetTypeVehicle,
		OriginalValue: 10000,
		CurrentValue:  10000,
		Status:        domain.AssetStatusActive,
	}
	require.NoError(t, db.Create(a).Error)
	return a
}

func TestWebhook_RejectsMissingSignature(t *testing.T) {
	app, _, _ := setupWebhookTest(t, false)
	payload := []byte(`{"event_type":"wallet.created","data":{}}`)
	assert.Equal(t, 401, deliver(t, app, payload, ""))
}

func TestWebhook_RejectsInvalidSignature(t *testing.T) {
	app, _, _ := setupWebhookTest(t, false)
	payload := []byte(`{"event_type":"wallet.created","data":{}}`)
	assert.Equal(t, 401, deliver(t, app, payload, "sha256="+hex.EncodeToString(bytes.Repeat([]byte{0xab}, 32))))
}

func TestWebhook_RejectsEmptyAndMalformedBody(t *testing.T) {
	app, _, _ := setupWebhookTest(t, false)
	assert.Equal(t, 400, deliver(t, app, nil, ""))

	bad := []byte(`{not json`)
	assert.Equal(t, 400, deliver(t, app, bad, sign(bad)))

	noType := []byte(`{"data":{}}`)
	assert.Equal(t, 400, deliver(t, app, noType, sign(noType)))
}

func TestWebhook_AcceptsSha256Prefix(t *testing.T) {
	app, _, db := setupWebhookTest(t, false)
	payload, _ := json.Marshal(fiber.Map{
		"event_type": "wallet.created",
		"data":       fiber.Map{"user_id": uuid.New().String(), "address": "addr-1", "currency": "USD"},
	})
	assert.Equal(t, 200, deliver(t, app, payload, "sha256="+sign(payload)))

	var count int64
	require.NoError(t, db.Model(&domain.Wallet{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWebhook_SkipVerifyBypassesSignature(t *testing.T) {
	app, wh, _ := setupWebhookTest(t, false)
	wh.SkipVerify = true
	payload, _ := json.Marshal(fiber.Map{
		"event_type": "wallet.created",
		"data":       fiber.Map{"user_id": uuid.New().String()},
	})
	assert.Equal(t, 200, deliver(t, app, payload, ""))
}

func TestWebhook_UnknownEventAcknowledged(t *testing.T) {
	app, _, db := setupWebhookTest(t, false)
	payload := []byte(`{"event_type":"custody.rebooted","data":{}}`)
	assert.Equal(t, 200, deliver(t, app, payload, sign(payload)))

	var wlog domain.WebhookLog
	require.NoError(t, db.First(&wlog, "event_type = ?", "custody.rebooted").Error)
	assert.Equal(t, domain.WebhookStatusProcessed, wlog.Status)
}

func TestWebhook_RedisReplayGuard(t *testing.T) {
	app, _, db := setupWebhookTest(t, true)
	payload, _ := json.Marshal(fiber.Map{
		"event_type": "wallet.created",
		"data":       fiber.Map{"user_id": uuid.New().String()},
	})
	sig := sign(payload)
	assert.Equal(t, 200, deliver(t, app, payload, sig))
	assert.Equal(t, 200, deliver(t, app, payload, sig))

	// The duplicate was acknowledged without a second log row.
	var count int64
	require.NoError(t, db.Model(&domain.WebhookLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWebhook_FailedProcessingMarksLog(t *testing.T) {
	app, _, db := setupWebhookTest(t, false)
	// Valid envelope, unparseable data for the event type.
	payload := []byte(`{"event_type":"token.minted","data":{"token_id":"not-a-uuid"}}`)
	assert.Equal(t, 500, deliver(t, app, payload, sign(payload)))

	var wlog domain.WebhookLog
	require.NoError(t, db.First(&wlog, "event_type = ?", EventTokenMinted).Error)
	assert.Equal(t, domain.WebhookStatusFailed, wlog.Status)
	require.NotNil(t, wlog.Error)
	assert.NotEmpty(t, *wlog.Error)
}

// The core replay property: the same payout confirmation delivered twice
// credits the wallet once. Redis is disabled so the DB idempotency key is
// what is exercised.
func TestWebhook_PayoutCompletedReplayDoesNotDoubleCredit(t *testing.T) {
	app, _, db := setupWebhookTest(t, false)
	asset := seedWebhookAsset(t, db)

	ownerID := uuid.New()
	tokenID := uuid.New()
	token := &domain.OwnershipToken{
		TokenID:          tokenID,
		AssetID:          asset.AssetID,
		OwnerID:          ownerID,
		FractionOwned:    100,
		InvestmentAmount: 10000,
		CurrentValue:     10000,
		Status:           domain.TokenStatusActive,
	}
	require.NoError(t, db.Create(token).Error)
	w := &domain.Wallet{UserID: ownerID, Address: "addr-owner", Currency: "USD", Status: domain.WalletStatusActive}
	require.NoError(t, db.Create(w).Error)

	payload, _ := json.Marshal(fiber.Map{
		"event_type": "payout.completed",
		"data": fiber.Map{
			"batch_id": uuid.New().String(),
			"asset_id": asset.AssetID.String(),
			"period":   "2026-08",
			"tx_hash":  "SETTLE-1",
			"distributions": []fiber.Map{
				{"token_id": tokenID.String(), "owner_id": ownerID.String(), "amount": 420.50},
			},
		},
	})
	assert.Equal(t, 200, deliver(t, app, payload, sign(payload)))
	assert.Equal(t, 200, deliver(t, app, payload, sign(payload)))

	var after domain.Wallet
	require.NoError(t, db.First(&after, "wallet_id = ?", w.WalletID).Error)
	assert.Equal(t, 420.50, after.Balance)

	var payoutCount int64
	require.NoError(t, db.Model(&domain.Payout{}).
		Where("token_id = ? AND external_tx_hash = ?", tokenID, "SETTLE-1").
		Count(&payoutCount).Error)
	assert.Equal(t, int64(1), payoutCount)

	var afterToken domain.OwnershipToken
	require.NoError(t, db.First(&afterToken, "token_id = ?", tokenID).Error)
	assert.Equal(t, 420.50, afterToken.TotalReturns)
}

func TestWebhook_TokenMintedReplayCreatesOneToken(t *testing.T) {
	app, _, db := setupWebhookTest(t, false)
	asset := seedWebhookAsset(t, db)

	tokenID := uuid.New()
	payload, _ := json.Marshal(fiber.Map{
		"event_type": "token.minted",
		"data": fiber.Map{
			"token_id":          tokenID.String(),
			"asset_id":          asset.AssetID.String(),
			"owner_id":          uuid.New().String(),
			"fraction":          35.0,
			"investment_amount": 3500.0,
			"tx_hash":           "MINT-1",
		},
	})
	assert.Equal(t, 200, deliver(t, app, payload, sign(payload)))
	assert.Equal(t, 200, deliver(t, app, payload, sign(payload)))

	var count int64
	require.NoError(t, db.Model(&domain.OwnershipToken{}).Where("token_id = ?", tokenID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var token domain.OwnershipToken
	require.NoError(t, db.First(&token, "token_id = ?", tokenID).Error)
	assert.Equal(t, domain.TokenStatusActive, token.Status)
	require.NotNil(t, token.ExternalTxHash)
	assert.Equal(t, "MINT-1", *token.ExternalTxHash)
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"a":1}`)
	require.NoError(t, VerifySignature(payload, sign(payload), testSecret))
	require.NoError(t, VerifySignature(payload, "sha256="+sign(payload), testSecret))
	assert.Error(t, VerifySignature(payload, sign(payload), "other-secret"))
	assert.Error(t, VerifySignature(payload, "", testSecret))
	assert.Error(t, VerifySignature(payload, sign(payload), ""))
}
