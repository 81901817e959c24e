// Package handlers provides the HTTP handlers of the status API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/lockbridge/backend/internal/hub"
	"github.com/lockbridge/backend/internal/storage"
)

// HealthResponse is the health check document.
type HealthResponse struct {
	Status       string `json:"status"`
	HubConnected bool   `json:"hub_connected"`
	DBConnected  bool   `json:"db_connected"`
}

// HealthCheck reports process, database and hub reachability. The hub probe
// is bounded so health stays fast even when the hub is down.
func HealthCheck(client *hub.Client, db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		dbConnected := db == nil || db.Ping() == nil

		hubConnected := false
		if client != nil {
			_, err := client.Ping(ctx)
			hubConnected = err == nil
		}

		status := "healthy"
		if !dbConnected || !hubConnected {
			status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(HealthResponse{
			Status:       status,
			HubConnected: hubConnected,
			DBConnected:  dbConnected,
		})
	}
}
