package ownership

import (
	"errors"

	"fleetfi-backend/internal/middleware"
	"fleetfi-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers bundles ownership registry handlers.
type Handlers struct {
	Service *Service
}

type mintRequest struct {
	AssetID          string  `json:"asset_id"`
	OwnerID          string  `json:"owner_id"`
	Fraction         float64 `json:"fraction"`
	InvestmentAmount float64 `json:"investment_amount"`
}

// Mint POST /api/v1/tokens/mint
func (h *Handlers) Mint(c *fiber.Ctx) error {
	var req mintRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	assetID, err := uuid.Parse(req.AssetID)
	if err != nil {
		return response.Error(c, "Invalid asset ID format (must be a valid UUID)", 400, nil)
	}
	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		return response.Error(c, "Invalid owner ID format (must be a valid UUID)", 400, nil)
	}

	token, err := h.Service.Mint(c.Context(), middleware.GetActorID(c), assetID, ownerID, req.Fraction, req.InvestmentAmount)
	if err != nil {
		var insufficient *InsufficientRemainingOwnershipError
		if errors.As(err, &insufficient) {
			return response.Conflict(c, insufficient.Error(), fiber.Map{"remaining": insufficient.Remaining})
		}
		switch err {
		case ErrAssetNotFound:
			return response.Error(c, err.Error(), 404, nil)
		case ErrInvalidFraction, ErrInvalidAmount:
			return response.Error(c, err.Error(), 400, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.SuccessCreated(c, "Ownership token minted", token, nil)
}

type transferRequest struct {
	TokenID    string `json:"token_id"`
	NewOwnerID string `json:"new_owner_id"`
}

// Transfer POST /api/v1/tokens/transfer
func (h *Handlers) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	tokenID, err := uuid.Parse(req.TokenID)
	if err != nil {
		return response.Error(c, "Invalid token ID format (must be a valid UUID)", 400, nil)
	}
	newOwnerID, err := uuid.Parse(req.NewOwnerID)
	if err != nil {
		return response.Error(c, "Invalid owner ID format (must be a valid UUID)", 400, nil)
	}

	token, err := h.Service.TransferOwner(c.Context(), middleware.GetActorID(c), tokenID, newOwnerID)
	if err != nil {
		switch err {
		case ErrTokenNotFound:
			return response.Error(c, err.Error(), 404, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.Success(c, "Ownership transferred", token, nil)
}

type revokeRequest struct {
	TokenID string `json:"token_id"`
	Reason  string `json:"reason"`
}

// Revoke POST /api/v1/tokens/revoke
func (h *Handlers) Revoke(c *fiber.Ctx) error {
	var req revokeRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", 400, nil)
	}
	tokenID, err := uuid.Parse(req.TokenID)
	if err != nil {
		return response.Error(c, "Invalid token ID format (must be a valid UUID)", 400, nil)
	}

	token, err := h.Service.Revoke(c.Context(), middleware.GetActorID(c), tokenID, req.Reason)
	if err != nil {
		switch err {
		case ErrTokenNotFound:
			return response.Error(c, err.Error(), 404, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.Success(c, "Ownership token revoked", token, nil)
}

// ListByAsset GET /api/v1/tokens/asset/:asset_id
func (h *Handlers) ListByAsset(c *fiber.Ctx) error {
	assetID, err := uuid.Parse(c.Params("asset_id"))
	if err != nil {
		return response.Error(c, "Invalid asset ID format (must be a valid UUID)", 400, nil)
	}
	tokens, remaining, err := h.Service.ListByAsset(c.Context(), assetID)
	if err != nil {
		switch err {
		case ErrAssetNotFound:
			return response.Error(c, err.Error(), 404, nil)
		default:
			return response.Error(c, "Internal Server Error", 500, nil)
		}
	}
	return response.Success(c, "Tokens fetched successfully", fiber.Map{
		"tokens":             tokens,
		"remaining_fraction": remaining,
	}, nil)
}
