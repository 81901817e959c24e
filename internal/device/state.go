// Package device owns the per-lock state reconciliation: it maps the hub's
// raw device state onto the externally observable lock and latch surfaces and
// serializes user commands against incoming device updates.
package device

import (
	"github.com/lockbridge/backend/internal/hub"
)

// CurrentState is the externally observed position of a mechanism. The
// values follow the accessory model's lock-mechanism encoding.
type CurrentState int

const (
	CurrentUnsecured CurrentState = 0
	CurrentSecured   CurrentState = 1
	CurrentJammed    CurrentState = 2
	CurrentUnknown   CurrentState = 3
)

func (s CurrentState) String() string {
	switch s {
	case CurrentUnsecured:
		return "unsecured"
	case CurrentSecured:
		return "secured"
	case CurrentJammed:
		return "jammed"
	case CurrentUnknown:
		return "unknown"
	}
	return "invalid"
}

// TargetState is the externally observed position a mechanism is being
// commanded to.
type TargetState int

const (
	TargetUnsecured TargetState = 0
	TargetSecured   TargetState = 1
)

func (s TargetState) String() string {
	switch s {
	case TargetUnsecured:
		return "unsecured"
	case TargetSecured:
		return "secured"
	}
	return "invalid"
}

// surfaceState is one mechanism surface's observable pair.
type surfaceState struct {
	current CurrentState
	target  TargetState
}

// mapLockState folds a raw device state into the lock surface's observable
// pair. prev is returned unchanged for the fields a transitional state does
// not resolve.
func mapLockState(raw hub.LockState, prev surfaceState) surfaceState {
	next := prev
	switch raw {
	case hub.StateUncalibrated, hub.StateCalibrating:
		next.current = CurrentJammed
	case hub.StateOpen:
		next.current = CurrentUnsecured
		next.target = TargetUnsecured
	case hub.StateHalfClosed:
		next.current = CurrentSecured
		next.target = TargetSecured
	case hub.StateOpening:
		next.target = TargetUnsecured
	case hub.StateClosing:
		next.target = TargetSecured
	case hub.StateClosed:
		next.current = CurrentSecured
		next.target = TargetSecured
	case hub.StateUnlatched:
		next.current = CurrentUnsecured
		next.target = TargetUnsecured
	case hub.StateUnlatching, hub.StateLatching:
		next.target = TargetUnsecured
	case hub.StateUnknown:
		next.current = CurrentUnknown
	}
	return next
}

// mapLatchState folds a raw device state into the latch surface's observable
// pair. It mirrors mapLockState except that an open or half-closed door
// still has its latch engaged, and a latching spring is resolving toward
// secured.
func mapLatchState(raw hub.LockState, prev surfaceState) surfaceState {
	next := prev
	switch raw {
	case hub.StateUncalibrated, hub.StateCalibrating:
		next.current = CurrentJammed
	case hub.StateOpen, hub.StateHalfClosed:
		next.current = CurrentSecured
		next.target = TargetSecured
	case hub.StateOpening:
		next.target = TargetUnsecured
	case hub.StateClosing:
		next.target = TargetSecured
	case hub.StateClosed:
		next.current = CurrentSecured
		next.target = TargetSecured
	case hub.StateUnlatched:
		next.current = CurrentUnsecured
		next.target = TargetUnsecured
	case hub.StateUnlatching:
		next.target = TargetUnsecured
	case hub.StateLatching:
		next.target = TargetSecured
	case hub.StateUnknown:
		next.current = CurrentUnknown
	}
	return next
}

// lowBatteryThreshold is the level below which the battery indicator goes
// low, unless the lock is charging.
const lowBatteryThreshold = 10

// isLowBattery reports whether the battery indicator should show low.
// An unknown level is never low.
func isLowBattery(level int, charging bool) bool {
	if level == hub.BatteryUnknown {
		return false
	}
	return level < lowBatteryThreshold && !charging
}
