package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	TypeLockStateChanged        MessageType = "lock.state_changed"
	TypeLatchStateChanged       MessageType = "lock.latch_state_changed"
	TypeBatteryChanged          MessageType = "lock.battery_changed"
	TypeDeviceConnectionChanged MessageType = "device.connection_changed"
	TypeHubConnectionChanged    MessageType = "hub.connection_changed"
	TypeNotification            MessageType = "notification"
)

// Message is the WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// StatePayload is the payload of lock.state_changed and
// lock.latch_state_changed messages.
type StatePayload struct {
	DeviceID int    `json:"device_id"`
	Name     string `json:"name"`
	Current  string `json:"current"`
	Target   string `json:"target"`
}

// BatteryPayload is the payload of lock.battery_changed messages.
type BatteryPayload struct {
	DeviceID   int    `json:"device_id"`
	Name       string `json:"name"`
	Level      int    `json:"level"`
	IsCharging bool   `json:"is_charging"`
	LowBattery bool   `json:"low_battery"`
}

// ConnectionPayload is the payload of connection_changed messages. DeviceID
// is zero for hub-level connectivity.
type ConnectionPayload struct {
	DeviceID  int  `json:"device_id,omitempty"`
	Connected bool `json:"connected"`
}

// NotificationPayload is the payload of notification messages.
type NotificationPayload struct {
	Level   string `json:"level"` // info, warning, error
	Title   string `json:"title"`
	Message string `json:"message"`
}
