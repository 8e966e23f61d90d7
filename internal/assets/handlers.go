package assets

import (
	"fleetfi-backend/internal/middleware"
	"fleetfi-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers bundles asset registry handlers.
type Handlers struct {
	Service *Service
}

type registerRequest struct {
	Name             string  `json:"name"`
	AssetType        string  `json:"asset_type"`
	OriginalValue    float64 `json:"original_value"`
	AssignedDriverID string  `json:"assigned_driver_id"`
}

// Register POST /api/v1/assets
func (h *Handlers) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	in := RegisterInput{
		Name:          req.Name,
		AssetType:     req.AssetType,
		OriginalValue: req.OriginalValue,
	}
	if req.AssignedDriverID != "" {
		driverID, err := uuid.Parse(req.AssignedDriverID)
		if err != nil {
			return response.Error(c, "Invalid driver ID format (must be a valid UUID)", 400, nil)
		}
		in.AssignedDriverID = &driverID
	}

	asset, err := h.Service.Register(c.Context(), middleware.GetActorID(c), in)
	if err != nil {
		switch err {
		case ErrNameRequired, ErrInvalidType, ErrInvalidValue:
			return response.Error(c, err.Error(), 400, nil)
		case ErrDriverNotFound:
			return response.Error(c, err.Error(), 404, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.SuccessCreated(c, "Asset registered", asset, nil)
}

// Get GET /api/v1/assets/:asset_id
func (h *Handlers) Get(c *fiber.Ctx) error {
	assetID, err := uuid.Parse(c.Params("asset_id"))
	if err != nil {
		return response.Error(c, "Invalid asset ID format (must be a valid UUID)", 400, nil)
	}
	asset, err := h.Service.Get(c.Context(), assetID)
	if err != nil {
		switch err {
		case ErrAssetNotFound:
			return response.Error(c, err.Error(), 404, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.Success(c, "Asset fetched successfully", asset, nil)
}

// List GET /api/v1/assets
func (h *Handlers) List(c *fiber.Ctx) error {
	assets, err := h.Service.List(c.Context())
	if err != nil {
		return response.Error(c, "Internal Server Error", 500, nil)
	}
	return response.Success(c, "Assets fetched successfully", assets, nil)
}

type assignDriverRequest struct {
	DriverID string `json:"driver_id"`
}

// AssignDriver PUT /api/v1/assets/:asset_id/driver
func (h *Handlers) AssignDriver(c *fiber.Ctx) error {
	assetID, err := uuid.Parse(c.Params("asset_id"))
	if err != nil {
		return response.Error(c, "Invalid asset ID format (must be a valid UUID)", 400, nil)
	}
	var req assignDriverRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	var driverID *uuid.UUID
	if req.DriverID != "" {
		id, err := uuid.Parse(req.DriverID)
		if err != nil {
			return response.Error(c, "Invalid driver ID format (must be a valid UUID)", 400, nil)
		}
		driverID = &id
	}

	asset, err := h.Service.AssignDriver(c.Context(), middleware.GetActorID(c), assetID, driverID)
	if err != nil {
		switch err {
		case ErrAssetNotFound, ErrDriverNotFound:
			return response.Error(c, err.Error(), 404, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.Success(c, "Driver assignment updated", asset, nil)
}
