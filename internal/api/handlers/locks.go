package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/lockbridge/backend/internal/api/middleware"
	"github.com/lockbridge/backend/internal/device"
)

// ListLocks returns every exposed lock's observable state.
func ListLocks(registry *device.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		statuses := registry.Statuses()
		if statuses == nil {
			statuses = []device.Status{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(statuses)
	}
}

// GetLock returns one lock's observable state.
func GetLock(registry *device.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, ok := engineFromRequest(w, r, registry)
		if !ok {
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(engine.Status())
	}
}

// ResyncLock re-fetches one lock from the hub and reapplies its snapshot.
func ResyncLock(registry *device.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		engine, ok := engineFromRequest(w, r, registry)
		if !ok {
			return
		}

		if err := registry.ResyncDevice(r.Context(), engine.ID()); err != nil {
			middleware.WriteError(w, http.StatusBadGateway, middleware.ErrUnavailable, "Failed to resync lock: "+err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(engine.Status())
	}
}

// engineFromRequest resolves the {id} path variable to an engine, writing
// the error response itself when it cannot.
func engineFromRequest(w http.ResponseWriter, r *http.Request, registry *device.Registry) (*device.Engine, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid device id")
		return nil, false
	}

	engine, ok := registry.Engine(id)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Unknown device")
		return nil, false
	}
	return engine, true
}
