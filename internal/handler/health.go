package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Uptime   string `json:"uptime"`
}

// HandleHealth reports liveness plus database reachability.
//
// HTTP: GET /healthz → 200 {"status":"ok"} or 503 {"status":"down"}
func HandleHealth(db Pinger, upSince time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{
			Status:   "ok",
			Database: "ok",
			Uptime:   time.Since(upSince).Round(time.Second).String(),
		}
		status := http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			resp.Status = "down"
			resp.Database = err.Error()
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
