package hub

import "fmt"

// LockState is the raw physical state code reported by the hub.
type LockState int

// Raw lock states as reported by the hub firmware.
const (
	StateUncalibrated LockState = 0
	StateCalibrating  LockState = 1
	StateOpen         LockState = 2
	StateHalfClosed   LockState = 3
	StateOpening      LockState = 4
	StateClosing      LockState = 5
	StateClosed       LockState = 6
	StateUnlatched    LockState = 7
	StateUnlatching   LockState = 8
	StateUnknown      LockState = 9
	StateLatching     LockState = 255
)

// IsSettled reports whether the state is a resting position rather than a
// transition. A settled state resolves any operation in flight.
func (s LockState) IsSettled() bool {
	switch s {
	case StateOpen, StateHalfClosed, StateClosed, StateUnlatched, StateUnknown:
		return true
	case StateUncalibrated, StateCalibrating, StateOpening, StateClosing, StateUnlatching, StateLatching:
		return false
	}
	return false
}

func (s LockState) String() string {
	switch s {
	case StateUncalibrated:
		return "uncalibrated"
	case StateCalibrating:
		return "calibrating"
	case StateOpen:
		return "open"
	case StateHalfClosed:
		return "half-closed"
	case StateOpening:
		return "opening"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateUnlatched:
		return "unlatched"
	case StateUnlatching:
		return "unlatching"
	case StateUnknown:
		return "unknown"
	case StateLatching:
		return "latching"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// BatteryUnknown is the sentinel for a lock that has not reported its
// battery level yet.
const BatteryUnknown = -1

// DeviceType identifies the hardware family of a lock.
type DeviceType int

// Known lock hardware families.
const (
	DeviceTypeLockV1 DeviceType = 2
	DeviceTypeLockV2 DeviceType = 4
)

// DeviceSettings carries the lock's own configuration as stored on the hub.
type DeviceSettings struct {
	PullSpringEnabled     bool `json:"pullSpringEnabled"`
	PullSpringDuration    int  `json:"pullSpringDuration"`
	AutoPullSpringEnabled bool `json:"autoPullSpringEnabled"`
	AutoLockEnabled       bool `json:"autoLockEnabled"`
	AutoLockDelay         int  `json:"autoLockDelay"`
}

// Lock is a single lock device as reported by the hub.
type Lock struct {
	ID              int            `json:"id"`
	Name            string         `json:"name"`
	SerialNumber    string         `json:"serialNumber"`
	Type            DeviceType     `json:"type"`
	FirmwareVersion string         `json:"softwareVersion"`
	DeviceRevision  string         `json:"deviceRevision"`
	IsConnected     bool           `json:"isConnected"`
	SignalStrength  int            `json:"signalStrength"`
	State           LockState      `json:"state"`
	Jammed          bool           `json:"jammed"`
	BatteryLevel    int            `json:"batteryLevel"`
	IsCharging      bool           `json:"isCharging"`
	DeviceSettings  DeviceSettings `json:"deviceSettings"`
}

// BridgeInfo is the hub's self-description returned by the bridge endpoint.
type BridgeInfo struct {
	Name            string `json:"name"`
	SerialNumber    string `json:"serialNumber"`
	FirmwareVersion string `json:"currentFirmwareVersion"`
	Type            int    `json:"type"`
}

// Validate checks that the document has the shape of a real hub response,
// so discovery can tell the hub apart from anything else answering HTTP on
// the same port.
func (b BridgeInfo) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("bridge info missing name")
	}
	if b.SerialNumber == "" {
		return fmt.Errorf("bridge info missing serial number")
	}
	if b.Type != bridgeDeviceType {
		return fmt.Errorf("unexpected bridge device type %d", b.Type)
	}
	return nil
}

// bridgeDeviceType is the device family code the hub reports for itself.
const bridgeDeviceType = 1

// Callback is a webhook subscription registered with the hub.
type Callback struct {
	ID     int    `json:"id"`
	URL    string `json:"url"`
	Method string `json:"method"`
}

// Unlock modes accepted by the unlock endpoint.
const (
	// UnlockModeStandard performs a plain unlock.
	UnlockModeStandard = 0
	// UnlockModePull unlocks and releases the pull spring in one motion.
	UnlockModePull = 4
)
