package health

import (
	"context"

	"fleetfi-backend/internal/middleware"
	"fleetfi-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Handlers serves the health endpoints.
type Handlers struct {
	Rdb            *redis.Client
	DB             DBPinger
	HealthAdminKey string
}

// Live serves GET /health. Liveness only, no dependency checks.
func (h *Handlers) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// JSON serves GET /health/json with the full dependency and traffic report.
func (h *Handlers) JSON(c *fiber.Ctx) error {
	result := CollectHealth(c.Context(), h.Rdb, h.DB)
	return c.JSON(result)
}

// Reset serves GET /health/reset?key=... and clears the traffic counters.
// Guarded by the admin key so it is not reachable anonymously.
func (h *Handlers) Reset(c *fiber.Ctx) error {
	if h.HealthAdminKey == "" || c.Query("key") != h.HealthAdminKey {
		return response.Error(c, "Unauthorized", fiber.StatusForbidden, nil)
	}
	if h.Rdb != nil {
		ctx := context.Background()
		h.Rdb.Del(ctx,
			middleware.KeyReqTotal,
			middleware.KeyReqErrors,
			middleware.KeyResTime,
			middleware.KeyResCount,
			middleware.KeyStartTime,
			middleware.KeyLastReq,
			middleware.KeyErrorLog,
		)
	}
	return response.Success(c, "Health counters reset", nil, nil)
}
