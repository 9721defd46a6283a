package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/signalmesh/server/internal/httputil"
)

// HealthHandler serves the health check endpoint. DB and Redis are both optional: the
// JSON-file userdb backend needs neither, and the REST auth surface's refresh-token store is
// the only thing that needs Redis. A nil pointer is reported as "disabled" rather than pinged.
type HealthHandler struct {
	DB    *pgxpool.Pool
	Redis *redis.Client
}

// Health pings whichever of Postgres and Valkey are configured, returning component status.
func (h *HealthHandler) Health(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	pgStatus := "disabled"
	if h.DB != nil {
		pgStatus = "ok"
		if err := h.DB.Ping(ctx); err != nil {
			pgStatus = "unavailable"
		}
	}

	vkStatus := "disabled"
	if h.Redis != nil {
		vkStatus = "ok"
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			vkStatus = "unavailable"
		}
	}

	overall := "ok"
	status := fiber.StatusOK
	if pgStatus == "unavailable" || vkStatus == "unavailable" {
		overall = "degraded"
		status = fiber.StatusServiceUnavailable
	}

	return httputil.SuccessStatus(c, status, fiber.Map{
		"status":   overall,
		"postgres": pgStatus,
		"valkey":   vkStatus,
	})
}
