package webhook

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lockbridge/backend/internal/api/middleware"
	"github.com/lockbridge/backend/internal/device"
)

// maxBodySize caps a webhook delivery. Hub events are small.
const maxBodySize = 64 * 1024

// Broadcaster is notified about connectivity events so they can be fanned
// out to status watchers. May be nil.
type Broadcaster interface {
	DeviceConnectionChanged(deviceID int, connected bool)
	BackendConnectionChanged(connected bool)
}

// Handler accepts hub push notifications and dispatches them by device id.
type Handler struct {
	registry    *device.Registry
	broadcaster Broadcaster
}

// NewHandler creates the webhook handler.
func NewHandler(registry *device.Registry, broadcaster Broadcaster) *Handler {
	return &Handler{registry: registry, broadcaster: broadcaster}
}

// Router returns the webhook receiver's HTTP router: a single POST endpoint
// at the root, wrapped in the shared middleware.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)
	r.HandleFunc("/", h.handleEvent).Methods("POST")
	return r
}

// handleEvent decodes one delivery and applies it. Recognized events that
// map to a known device are always acknowledged with 200, even when a
// resynchronization triggered by them fails; those failures are logged only.
func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Failed to read event body")
		return
	}

	event, err := ParseEvent(body)
	if err != nil {
		var unknown *ErrUnknownEvent
		if errors.As(err, &unknown) {
			log.Printf("Webhook: %v", err)
		} else {
			log.Printf("Webhook: malformed event: %v", err)
		}
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, err.Error())
		return
	}

	// Backend connectivity has no device scope.
	if ev, ok := event.(BackendConnectionChanged); ok {
		log.Printf("Webhook: hub backend connected=%v", ev.IsConnected)
		if h.broadcaster != nil {
			h.broadcaster.BackendConnectionChanged(ev.IsConnected)
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	dev, ok := event.(DeviceEvent)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "event has no device scope")
		return
	}

	engine, ok := h.registry.Engine(dev.Device())
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "unknown device")
		return
	}

	h.apply(r.Context(), engine, event)
	w.WriteHeader(http.StatusOK)
}

// apply translates one device-scoped event into engine calls.
func (h *Handler) apply(ctx context.Context, engine *device.Engine, event Event) {
	switch ev := event.(type) {
	case DeviceConnectionChanged:
		log.Printf("Webhook: lock %d connected=%v", ev.DeviceID, ev.IsConnected)
		if h.broadcaster != nil {
			h.broadcaster.DeviceConnectionChanged(ev.DeviceID, ev.IsConnected)
		}

	case DeviceSettingsChanged:
		if err := h.registry.ResyncDevice(ctx, ev.DeviceID); err != nil {
			log.Printf("Webhook: resync of lock %d failed: %v", ev.DeviceID, err)
		}

	case LockStatusChanged:
		engine.ApplyLockStatus(ev.State, ev.Jammed)

	case BatteryLevelChanged:
		engine.ApplyBatteryLevel(ev.Level)

	case BatteryStartCharging:
		engine.ApplyCharging(true)

	case BatteryFullyCharged:
		engine.ApplyBatteryLevel(100)
		engine.ApplyCharging(false)

	case BackendConnectionChanged:
		// Handled before device routing.
	}
}
