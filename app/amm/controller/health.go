package controller

import (
	"context"
	"net/http"
	"time"
)

// HandleHealth reports liveness and, when enabled, Redis reachability. Redis is optional, so a
// failure degrades the report without failing the check.
func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "markets": len(c.App.Markets.All())}
	if c.App.RedisClient != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := c.App.RedisClient.Health(ctx); err != nil {
			body["redis"] = err.Error()
		} else {
			body["redis"] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, body)
}
