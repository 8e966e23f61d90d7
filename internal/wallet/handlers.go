package wallet

import (
	"errors"

	"fleetfi-backend/internal/middleware"
	"fleetfi-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers bundles wallet ledger handlers.
type Handlers struct {
	Service *Service
}

type movementRequest struct {
	WalletID  string                 `json:"wallet_id"`
	Amount    float64                `json:"amount"`
	Reference string                 `json:"reference"`
	Metadata  map[string]interface{} `json:"metadata"`
}

type transferRequest struct {
	FromWalletID string  `json:"from_wallet_id"`
	ToWalletID   string  `json:"to_wallet_id"`
	Amount       float64 `json:"amount"`
	Reference    string  `json:"reference"`
}

// Credit POST /api/v1/wallets/credit
func (h *Handlers) Credit(c *fiber.Ctx) error {
	req, walletID, err := parseMovement(c)
	if err != nil {
		return response.Error(c, err.Error(), 400, nil)
	}

	entry, err := h.Service.Credit(c.Context(), middleware.GetActorID(c), walletID, req.Amount, req.Reference, req.Metadata)
	if err != nil {
		return mapLedgerError(c, err)
	}
	return response.SuccessCreated(c, "Wallet credited", entry, nil)
}

// Debit POST /api/v1/wallets/debit
func (h *Handlers) Debit(c *fiber.Ctx) error {
	req, walletID, err := parseMovement(c)
	if err != nil {
		return response.Error(c, err.Error(), 400, nil)
	}

	entry, err := h.Service.Debit(c.Context(), middleware.GetActorID(c), walletID, req.Amount, req.Reference, req.Metadata)
	if err != nil {
		return mapLedgerError(c, err)
	}
	return response.SuccessCreated(c, "Wallet debited", entry, nil)
}

// Transfer POST /api/v1/wallets/transfer
func (h *Handlers) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	fromID, err := uuid.Parse(req.FromWalletID)
	if err != nil {
		return response.Error(c, "Invalid from_wallet_id (must be a valid UUID)", 400, nil)
	}
	toID, err := uuid.Parse(req.ToWalletID)
	if err != nil {
		return response.Error(c, "Invalid to_wallet_id (must be a valid UUID)", 400, nil)
	}
	if req.Reference == "" {
		return response.Error(c, "reference is required", 400, nil)
	}

	debit, credit, err := h.Service.Transfer(c.Context(), middleware.GetActorID(c), fromID, toID, req.Amount, req.Reference)
	if err != nil {
		return mapLedgerError(c, err)
	}
	return response.SuccessCreated(c, "Transfer completed", fiber.Map{
		"debit":  debit,
		"credit": credit,
	}, nil)
}

// GetWallet GET /api/v1/wallets/:wallet_id
func (h *Handlers) GetWallet(c *fiber.Ctx) error {
	walletID, err := uuid.Parse(c.Params("wallet_id"))
	if err != nil {
		return response.Error(c, "Invalid wallet ID format (must be a valid UUID)", 400, nil)
	}
	w, err := h.Service.GetWallet(c.Context(), walletID)
	if err != nil {
		return mapLedgerError(c, err)
	}
	return response.Success(c, "Wallet fetched successfully", w, nil)
}

// ListTransactions GET /api/v1/wallets/:wallet_id/transactions
func (h *Handlers) ListTransactions(c *fiber.Ctx) error {
	walletID, err := uuid.Parse(c.Params("wallet_id"))
	if err != nil {
		return response.Error(c, "Invalid wallet ID format (must be a valid UUID)", 400, nil)
	}
	entries, err := h.Service.ListTransactions(c.Context(), walletID)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Transactions fetched successfully", entries, nil)
}

func parseMovement(c *fiber.Ctx) (*movementRequest, uuid.UUID, error) {
	var req movementRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, uuid.Nil, errors.New("Invalid request body")
	}
	walletID, err := uuid.Parse(req.WalletID)
	if err != nil {
		return nil, uuid.Nil, errors.New("Invalid wallet ID format (must be a valid UUID)")
	}
	if req.Reference == "" {
		return nil, uuid.Nil, errors.New("reference is required")
	}
	return &req, walletID, nil
}

func mapLedgerError(c *fiber.Ctx, err error) error {
	var insufficient *InsufficientBalanceError
	if errors.As(err, &insufficient) {
		return response.Conflict(c, insufficient.Error(), fiber.Map{"balance": insufficient.Balance})
	}
	var dup *DuplicateReferenceError
	if errors.As(err, &dup) {
		return response.Conflict(c, dup.Error(), fiber.Map{"reference": dup.Reference})
	}
	switch err {
	case ErrWalletNotFound:
		return response.Error(c, err.Error(), 404, nil)
	case ErrInvalidAmount, ErrWalletFrozen:
		return response.Error(c, err.Error(), 400, nil)
	default:
		return response.Error(c, "Internal Server Error", 500, nil)
	}
}
