package handler

import (
	"context"
	"time"

	"github.com/deba607/AbJee-Travel-sub001/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
)

const readyPingTimeout = 2 * time.Second

// HealthHandler reports process liveness and, for readiness, whether the
// message store is reachable. Session counts ride along so an operator can
// eyeball load without the admin key.
type HealthHandler struct {
	pool *pgxpool.Pool
	hub  *service.Hub
}

func NewHealthHandler(pool *pgxpool.Pool, hub *service.Hub) *HealthHandler {
	return &HealthHandler{pool: pool, hub: hub}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"sessions": h.hub.SessionCount(),
	})
}

// Ready gates traffic on the database: a chat node that cannot reach the
// message store can hold sockets open but not serve a single room operation.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), readyPingTimeout)
	defer cancel()

	if err := h.pool.Ping(ctx); err != nil {
		return c.Status(503).JSON(fiber.Map{
			"status": "degraded",
			"error":  "database unreachable",
		})
	}

	return c.JSON(fiber.Map{
		"status":       "ready",
		"users_online": h.hub.OnlineCount(),
	})
}
