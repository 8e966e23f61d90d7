package revenue

import (
	"time"

	"fleetfi-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers bundles revenue engine handlers.
type Handlers struct {
	Service *Service
}

type recordRequest struct {
	AssetID       string  `json:"asset_id"`
	GrossAmount   float64 `json:"gross_amount"`
	SourceType    string  `json:"source_type"`
	SourceEventID string  `json:"source_event_id"`
	OccurredAt    string  `json:"occurred_at"`
}

// Record POST /api/v1/revenue/record
func (h *Handlers) Record(c *fiber.Ctx) error {
	var req recordRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	assetID, err := uuid.Parse(req.AssetID)
	if err != nil {
		return response.Error(c, "Invalid asset ID format (must be a valid UUID)", 400, nil)
	}
	var occurredAt time.Time
	if req.OccurredAt != "" {
		occurredAt, err = time.Parse(time.RFC3339, req.OccurredAt)
		if err != nil {
			return response.Error(c, "Invalid occurred_at (must be RFC3339)", 400, nil)
		}
	}

	event, err := h.Service.RecordRide(c.Context(), assetID, req.GrossAmount, req.SourceType, req.SourceEventID, occurredAt)
	if err != nil {
		switch err {
		case ErrAssetNotFound:
			return response.Error(c, err.Error(), 404, nil)
		case ErrInvalidAmount, ErrAssetNotActive:
			return response.Error(c, err.Error(), 400, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.SuccessCreated(c, "Revenue recorded", event, nil)
}

// ListByAsset GET /api/v1/revenue/asset/:asset_id
func (h *Handlers) ListByAsset(c *fiber.Ctx) error {
	assetID, err := uuid.Parse(c.Params("asset_id"))
	if err != nil {
		return response.Error(c, "Invalid asset ID format (must be a valid UUID)", 400, nil)
	}
	events, err := h.Service.ListByAsset(c.Context(), assetID)
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Revenue events fetched successfully", events, nil)
}
