package payouts

import (
	"fleetfi-backend/internal/middleware"
	"fleetfi-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers bundles payout distributor handlers.
type Handlers struct {
	Service *Service
}

type distributeRequest struct {
	AssetID     string  `json:"asset_id"`
	TotalAmount float64 `json:"total_amount"`
	Period      string  `json:"period"`
	Description string  `json:"description"`
}

// Distribute POST /api/v1/payouts/distribute
func (h *Handlers) Distribute(c *fiber.Ctx) error {
	var req distributeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	assetID, err := uuid.Parse(req.AssetID)
	if err != nil {
		return response.Error(c, "Invalid asset ID format (must be a valid UUID)", 400, nil)
	}
	if req.Period == "" {
		return response.Error(c, "period is required", 400, nil)
	}

	result, err := h.Service.Distribute(c.Context(), middleware.GetActorID(c), assetID, req.TotalAmount, req.Period, req.Description)
	if err != nil {
		switch err {
		case ErrAssetNotFound:
			return response.Error(c, err.Error(), 404, nil)
		case ErrInvalidAmount, ErrNoActiveTokens:
			return response.Error(c, err.Error(), 400, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.SuccessCreated(c, "Payout distribution created", result, nil)
}

// GetBatch GET /api/v1/payouts/batch/:batch_id
func (h *Handlers) GetBatch(c *fiber.Ctx) error {
	batchID, err := uuid.Parse(c.Params("batch_id"))
	if err != nil {
		return response.Error(c, "Invalid batch ID format (must be a valid UUID)", 400, nil)
	}
	rows, err := h.Service.GetBatch(c.Context(), batchID)
	if err != nil {
		switch err {
		case ErrBatchNotFound:
			return response.Error(c, err.Error(), 404, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.Success(c, "Payout batch fetched successfully", rows, nil)
}
