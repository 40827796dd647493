package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tienphuckx/anony-box-backbone/internal/httputil"
)

// Pinger abstracts a health-checkable backing service. Used for the optional
// Redis/Valkey rate-limiter backend, which the deployment may omit entirely.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	db    *pgxpool.Pool
	redis Pinger
}

// NewHealthHandler creates a health handler. redis may be nil if no rate
// limiter backend is configured.
func NewHealthHandler(db *pgxpool.Pool, redis Pinger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// Health handles GET /api/v1/health.
func (h *HealthHandler) Health(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c, 3*time.Second)
	defer cancel()

	pgStatus := "ok"
	if err := h.db.Ping(ctx); err != nil {
		pgStatus = "unavailable"
	}

	redisStatus := "disabled"
	if h.redis != nil {
		redisStatus = "ok"
		if err := h.redis.Ping(ctx); err != nil {
			redisStatus = "unavailable"
		}
	}

	overall := "ok"
	status := fiber.StatusOK
	if pgStatus != "ok" || redisStatus == "unavailable" {
		overall = "degraded"
		status = fiber.StatusServiceUnavailable
	}

	return httputil.SuccessStatus(c, status, fiber.Map{
		"status":   overall,
		"postgres": pgStatus,
		"redis":    redisStatus,
	})
}
