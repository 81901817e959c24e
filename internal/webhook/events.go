// Package webhook receives the hub's push notifications and routes them to
// the matching reconciliation engine, and manages this process's callback
// subscription with the hub.
package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/lockbridge/backend/internal/hub"
)

// EventKind is the event discriminator in the webhook envelope.
type EventKind string

// Event kinds pushed by the hub.
const (
	KindBackendConnectionChanged EventKind = "backend-connection-changed"
	KindDeviceConnectionChanged  EventKind = "device-connection-changed"
	KindDeviceSettingsChanged    EventKind = "device-settings-changed"
	KindLockStatusChanged        EventKind = "lock-status-changed"
	KindBatteryLevelChanged      EventKind = "battery-level-changed"
	KindBatteryStartCharging     EventKind = "battery-start-charging"
	KindBatteryFullyCharged      EventKind = "battery-fully-charged"
)

// envelope is the wire format of a webhook delivery.
type envelope struct {
	Event     EventKind       `json:"event"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Event is one decoded webhook notification. Exactly one concrete type
// exists per event kind, so routing can switch exhaustively.
type Event interface {
	Kind() EventKind
}

// DeviceEvent is implemented by events that address a single device.
type DeviceEvent interface {
	Event
	Device() int
}

// BackendConnectionChanged reports hub-to-cloud connectivity. Log-only.
type BackendConnectionChanged struct {
	IsConnected bool
}

func (BackendConnectionChanged) Kind() EventKind { return KindBackendConnectionChanged }

// DeviceConnectionChanged reports hub-to-lock connectivity. Log-only.
type DeviceConnectionChanged struct {
	DeviceID    int
	IsConnected bool
}

func (DeviceConnectionChanged) Kind() EventKind { return KindDeviceConnectionChanged }
func (e DeviceConnectionChanged) Device() int   { return e.DeviceID }

// DeviceSettingsChanged reports that the lock's own settings were edited;
// the device must be re-fetched wholesale.
type DeviceSettingsChanged struct {
	DeviceID int
}

func (DeviceSettingsChanged) Kind() EventKind { return KindDeviceSettingsChanged }
func (e DeviceSettingsChanged) Device() int   { return e.DeviceID }

// LockStatusChanged carries a new raw state and jam flag.
type LockStatusChanged struct {
	DeviceID int
	State    hub.LockState
	Jammed   bool
}

func (LockStatusChanged) Kind() EventKind { return KindLockStatusChanged }
func (e LockStatusChanged) Device() int   { return e.DeviceID }

// BatteryLevelChanged carries a new battery level.
type BatteryLevelChanged struct {
	DeviceID int
	Level    int
}

func (BatteryLevelChanged) Kind() EventKind { return KindBatteryLevelChanged }
func (e BatteryLevelChanged) Device() int   { return e.DeviceID }

// BatteryStartCharging reports the lock was plugged in.
type BatteryStartCharging struct {
	DeviceID int
}

func (BatteryStartCharging) Kind() EventKind { return KindBatteryStartCharging }
func (e BatteryStartCharging) Device() int   { return e.DeviceID }

// BatteryFullyCharged reports charging finished.
type BatteryFullyCharged struct {
	DeviceID int
}

func (BatteryFullyCharged) Kind() EventKind { return KindBatteryFullyCharged }
func (e BatteryFullyCharged) Device() int   { return e.DeviceID }

// ErrUnknownEvent marks an envelope with an unrecognized event kind.
type ErrUnknownEvent struct {
	Event EventKind
}

func (e *ErrUnknownEvent) Error() string {
	return fmt.Sprintf("unknown event kind %q", e.Event)
}

// devicePayload covers the data object of every device-scoped event.
type devicePayload struct {
	DeviceID     int  `json:"deviceId"`
	IsConnected  bool `json:"isConnected"`
	State        int  `json:"state"`
	Jammed       int  `json:"jammed"`
	BatteryLevel int  `json:"batteryLevel"`
}

// backendPayload is the data object of a backend connectivity event.
type backendPayload struct {
	IsConnected bool `json:"isConnected"`
}

// ParseEvent decodes a webhook body into its typed event. An unrecognized
// kind yields *ErrUnknownEvent; a malformed body yields a decode error.
func ParseEvent(body []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decoding event envelope: %w", err)
	}

	switch env.Event {
	case KindBackendConnectionChanged:
		var p backendPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decoding %s data: %w", env.Event, err)
		}
		return BackendConnectionChanged{IsConnected: p.IsConnected}, nil

	case KindDeviceConnectionChanged:
		p, err := decodeDevicePayload(env)
		if err != nil {
			return nil, err
		}
		return DeviceConnectionChanged{DeviceID: p.DeviceID, IsConnected: p.IsConnected}, nil

	case KindDeviceSettingsChanged:
		p, err := decodeDevicePayload(env)
		if err != nil {
			return nil, err
		}
		return DeviceSettingsChanged{DeviceID: p.DeviceID}, nil

	case KindLockStatusChanged:
		p, err := decodeDevicePayload(env)
		if err != nil {
			return nil, err
		}
		return LockStatusChanged{
			DeviceID: p.DeviceID,
			State:    hub.LockState(p.State),
			Jammed:   p.Jammed != 0,
		}, nil

	case KindBatteryLevelChanged:
		p, err := decodeDevicePayload(env)
		if err != nil {
			return nil, err
		}
		return BatteryLevelChanged{DeviceID: p.DeviceID, Level: p.BatteryLevel}, nil

	case KindBatteryStartCharging:
		p, err := decodeDevicePayload(env)
		if err != nil {
			return nil, err
		}
		return BatteryStartCharging{DeviceID: p.DeviceID}, nil

	case KindBatteryFullyCharged:
		p, err := decodeDevicePayload(env)
		if err != nil {
			return nil, err
		}
		return BatteryFullyCharged{DeviceID: p.DeviceID}, nil
	}

	return nil, &ErrUnknownEvent{Event: env.Event}
}

func decodeDevicePayload(env envelope) (devicePayload, error) {
	var p devicePayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return p, fmt.Errorf("decoding %s data: %w", env.Event, err)
	}
	return p, nil
}
