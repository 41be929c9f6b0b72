package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/cronbat/internal/api/response"
)

// Pinger is anything whose connectivity the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns GET /api/v1/health. Scheduler, database and
// cache failures degrade the console; a disconnected push channel is
// reported but reconnects on its own.
func NewHealthHandler(svc Console, db, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"scheduler": "ok",
			"database":  "ok",
			"cache":     "ok",
			"push":      "connected",
		}

		if err := svc.Ping(r.Context()); err != nil {
			checks["scheduler"] = "degraded"
		}
		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := cache.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if !svc.Connected() {
			checks["push"] = "disconnected"
		}

		degraded := checks["scheduler"] != "ok" || checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"stale":    svc.Stale(),
			"services": checks,
		})
	}
}
