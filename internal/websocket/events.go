package websocket

import (
	"log"

	"github.com/lockbridge/backend/internal/device"
)

// EventBroadcaster publishes bridge events to the hub. Its per-device
// adapters implement device.Observer, so engines publish without knowing
// about WebSockets.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// ObserverFor returns the device.Observer publishing one device's state
// changes.
func (b *EventBroadcaster) ObserverFor(deviceID int, name string) device.Observer {
	return &deviceObserver{broadcaster: b, deviceID: deviceID, name: name}
}

// DeviceConnectionChanged publishes a device connectivity flip.
func (b *EventBroadcaster) DeviceConnectionChanged(deviceID int, connected bool) {
	b.send(NewMessage(TypeDeviceConnectionChanged, ConnectionPayload{
		DeviceID:  deviceID,
		Connected: connected,
	}))
}

// BackendConnectionChanged publishes a hub connectivity flip.
func (b *EventBroadcaster) BackendConnectionChanged(connected bool) {
	b.send(NewMessage(TypeHubConnectionChanged, ConnectionPayload{
		Connected: connected,
	}))
}

// Notify publishes a free-form notification.
func (b *EventBroadcaster) Notify(level, title, message string) {
	b.send(NewMessage(TypeNotification, NotificationPayload{
		Level:   level,
		Title:   title,
		Message: message,
	}))
}

func (b *EventBroadcaster) send(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		log.Printf("Error encoding WebSocket message: %v", err)
		return
	}
	b.hub.Broadcast(data)
}

// deviceObserver adapts the broadcaster to device.Observer for one device.
type deviceObserver struct {
	broadcaster *EventBroadcaster
	deviceID    int
	name        string
}

func (o *deviceObserver) LockStateChanged(current device.CurrentState, target device.TargetState) {
	o.broadcaster.send(NewMessage(TypeLockStateChanged, StatePayload{
		DeviceID: o.deviceID,
		Name:     o.name,
		Current:  current.String(),
		Target:   target.String(),
	}))
}

func (o *deviceObserver) LatchStateChanged(current device.CurrentState, target device.TargetState) {
	o.broadcaster.send(NewMessage(TypeLatchStateChanged, StatePayload{
		DeviceID: o.deviceID,
		Name:     o.name,
		Current:  current.String(),
		Target:   target.String(),
	}))
}

func (o *deviceObserver) BatteryChanged(level int, charging bool, low bool) {
	o.broadcaster.send(NewMessage(TypeBatteryChanged, BatteryPayload{
		DeviceID:   o.deviceID,
		Name:       o.name,
		Level:      level,
		IsCharging: charging,
		LowBattery: low,
	}))
}
