package wallet

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"fleetfi-backend/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupWalletApp(t *testing.T) (*fiber.App, *Service, func(float64) *domain.Wallet) {
	svc, db := setupWalletTest(t)
	h := &Handlers{Service: svc}
	app := fiber.New()
	app.Post("/credit", h.Credit)
	app.Post("/debit", h.Debit)
	app.Post("/transfer", h.Transfer)
	app.Get("/wallets/:wallet_id", h.GetWallet)
	app.Get("/wallets/:wallet_id/transactions", h.ListTransactions)
	return app, svc, func(balance float64) *domain.Wallet {
		return createWallet(t, db, balance)
	}
}

func postJSON(t *testing.T, app *fiber.App, path string, body interface{}) (*fiber.App, map[string]interface{}, int) {
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return app, out, resp.StatusCode
}

func TestCreditHandler_Success(t *testing.T) {
	app, _, newWallet := setupWalletApp(t)
	w := newWallet(0)

	_, out, status := postJSON(t, app, "/credit", fiber.Map{
		"wallet_id": w.WalletID.String(),
		"amount":    25.5,
		"reference": "deposit-1",
	})
	assert.Equal(t, 201, status)
	assert.Equal(t, "success", out["status"])
}

func TestCreditHandler_Validation(t *testing.T) {
	app, _, _ := setupWalletApp(t)

	_, _, status := postJSON(t, app, "/credit", fiber.Map{"wallet_id": "nope", "amount": 1, "reference": "r"})
	assert.Equal(t, 400, status)
	_, _, status = postJSON(t, app, "/credit", fiber.Map{"wallet_id": uuid.New().String(), "amount": 1})
	assert.Equal(t, 400, status)
}

func TestDebitHandler_InsufficientBalanceIs409(t *testing.T) {
	app, _, newWallet := setupWalletApp(t)
	w := newWallet(10)

	_, out, status := postJSON(t, app, "/debit", fiber.Map{
		"wallet_id": w.WalletID.String(),
		"amount":    100,
		"reference": "withdraw-1",
	})
	assert.Equal(t, 409, status)
	errObj := out["error"].(map[string]interface{})
	details := errObj["details"].(map[string]interface{})
	assert.Equal(t, 10.0, details["balance"])
}

func TestCreditHandler_DuplicateReferenceIs409(t *testing.T) {
	app, _, newWallet := setupWalletApp(t)
	w := newWallet(0)

	body := fiber.Map{"wallet_id": w.WalletID.String(), "amount": 5, "reference": "payout:x"}
	_, _, status := postJSON(t, app, "/credit", body)
	require.Equal(t, 201, status)
	_, out, status := postJSON(t, app, "/credit", body)
	assert.Equal(t, 409, status)
	errObj := out["error"].(map[string]interface{})
	details := errObj["details"].(map[string]interface{})
	assert.Equal(t, "payout:x", details["reference"])
}

func TestGetWalletHandler(t *testing.T) {
	app, _, newWallet := setupWalletApp(t)
	w := newWallet(42)

	resp, err := app.Test(httptest.NewRequest("GET", "/wallets/"+w.WalletID.String(), nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/wallets/"+uuid.New().String(), nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestTransferHandler_Success(t *testing.T) {
	app, _, newWallet := setupWalletApp(t)
	from := newWallet(100)
	to := newWallet(0)

	_, out, status := postJSON(t, app, "/transfer", fiber.Map{
		"from_wallet_id": from.WalletID.String(),
		"to_wallet_id":   to.WalletID.String(),
		"amount":         60,
		"reference":      "transfer-1",
	})
	assert.Equal(t, 201, status)
	data := out["data"].(map[string]interface{})
	assert.NotNil(t, data["debit"])
	assert.NotNil(t, data["credit"])
}
