package health

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wb-go/wbf/ginext"

	"github.com/hrnotify/anniversary-notifier/internal/api/respond"
)

// Handler serves the health, readiness and liveness probes.
type Handler struct {
	db      *sql.DB
	rdb     *redis.Client
	started time.Time
}

// NewHandler creates a new health Handler over the shared connections.
func NewHandler(db *sql.DB, rdb *redis.Client) *Handler {
	return &Handler{db: db, rdb: rdb, started: time.Now()}
}

type status struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks"`
}

// Health reports overall service health: healthy when both backends
// answer, degraded when one does, unhealthy (503) when neither does.
func (h *Handler) Health(c *ginext.Context) {
	ctx := c.Request.Context()

	checks := map[string]string{"database": "ok", "redis": "ok"}
	healthy := 2

	if err := h.db.PingContext(ctx); err != nil {
		checks["database"] = "error"
		healthy--
	}

	if err := h.rdb.Ping(ctx).Err(); err != nil {
		checks["redis"] = "error"
		healthy--
	}

	s := status{
		Status: "healthy",
		Uptime: time.Since(h.started).Round(time.Second).String(),
		Checks: checks,
	}

	code := http.StatusOK
	switch healthy {
	case 1:
		s.Status = "degraded"
	case 0:
		s.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	respond.JSON(c.Writer, code, s)
}

// Ready reports whether the service can accept traffic.
func (h *Handler) Ready(c *ginext.Context) {
	ctx := c.Request.Context()

	if h.db.PingContext(ctx) != nil || h.rdb.Ping(ctx).Err() != nil {
		respond.JSON(c.Writer, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}

	respond.JSON(c.Writer, http.StatusOK, map[string]bool{"ready": true})
}

// Live reports that the process is running at all.
func (h *Handler) Live(c *ginext.Context) {
	respond.JSON(c.Writer, http.StatusOK, map[string]bool{"alive": true})
}
