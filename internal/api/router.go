// Package api provides the read-only status REST API of the bridge.
package api

import (
	"github.com/gorilla/mux"

	"github.com/lockbridge/backend/internal/api/handlers"
	"github.com/lockbridge/backend/internal/api/middleware"
	"github.com/lockbridge/backend/internal/device"
	"github.com/lockbridge/backend/internal/hub"
	"github.com/lockbridge/backend/internal/storage"
	"github.com/lockbridge/backend/internal/websocket"
)

// NewRouter configures the status API router. registry may be nil when the
// bridge came up without a reachable hub; health and the event stream stay
// available.
func NewRouter(client *hub.Client, registry *device.Registry, db *storage.DB, wsHub *websocket.Hub) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", handlers.HealthCheck(client, db)).Methods("GET")
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(wsHub)).Methods("GET")

	if registry != nil {
		api.HandleFunc("/locks", handlers.ListLocks(registry)).Methods("GET")
		api.HandleFunc("/locks/{id}", handlers.GetLock(registry)).Methods("GET")
		api.HandleFunc("/locks/{id}/resync", handlers.ResyncLock(registry)).Methods("POST")
	}

	return r
}
