package device

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lockbridge/backend/internal/hub"
)

// Policy rejections. Commands failing with these never reached the hub.
var (
	// ErrBusy is returned while a previously issued command is still
	// unresolved.
	ErrBusy = errors.New("operation already in progress")

	// ErrUnlockDisabled is returned when unlocking is disabled for the
	// device by configuration.
	ErrUnlockDisabled = errors.New("unlock is disabled for this device")

	// ErrInvalidTarget is returned for a target value outside the known set.
	ErrInvalidTarget = errors.New("invalid target state")
)

// Commander issues commands to the hub on behalf of one lock. *hub.Client
// satisfies it.
type Commander interface {
	LockDoor(ctx context.Context, id int) error
	Unlock(ctx context.Context, id int, mode int) error
	Pull(ctx context.Context, id int) error
}

// Observer receives the observable state the engine publishes. The engine is
// the only writer of these values; implementations must not call back into
// the engine from the callback.
type Observer interface {
	LockStateChanged(current CurrentState, target TargetState)
	LatchStateChanged(current CurrentState, target TargetState)
	BatteryChanged(level int, charging bool, low bool)
}

// Record is the engine's last-known device state handed to a Recorder.
type Record struct {
	DeviceID     int
	Name         string
	SerialNumber string
	State        hub.LockState
	Jammed       bool
	BatteryLevel int
	IsCharging   bool
	IsConnected  bool
}

// Recorder persists the last-known state of a device. Calls happen off the
// engine's critical path.
type Recorder interface {
	Record(rec Record)
}

// latchRevertDelay is the grace period before a refused latch command snaps
// the latch surface back to secured.
const latchRevertDelay = time.Second

// Engine reconciles one lock's observable state. It accepts user commands
// and device updates, never both at once: a single mutex is held across the
// whole read-decide-write sequence, including the network round trip of a
// command, so an in-flight operation cannot interleave with a stale poll.
type Engine struct {
	id        int
	cfg       Config
	commander Commander
	observer  Observer
	recorder  Recorder

	mu sync.Mutex

	// operating is true while a command issued by this process is
	// outstanding and unacknowledged by the device.
	operating bool

	name      string
	serial    string
	connected bool
	settings  hub.DeviceSettings

	raw      hub.LockState
	jammed   bool
	battery  int
	charging bool

	lockSurface  surfaceState
	latchSurface surfaceState

	revertDelay time.Duration
}

// NewEngine creates the engine for one exposed lock, seeded from the initial
// device snapshot. observer and recorder may be nil.
func NewEngine(lock hub.Lock, cfg Config, commander Commander, observer Observer, recorder Recorder) *Engine {
	e := &Engine{
		id:          lock.ID,
		cfg:         cfg.withDefaults(lock.Name),
		commander:   commander,
		observer:    observer,
		recorder:    recorder,
		battery:     hub.BatteryUnknown,
		lockSurface: surfaceState{current: CurrentUnknown, target: TargetSecured},
		latchSurface: surfaceState{
			current: CurrentSecured,
			target:  TargetSecured,
		},
		revertDelay: latchRevertDelay,
	}
	e.ApplySnapshot(lock)
	return e
}

// ID returns the hub-assigned device id.
func (e *Engine) ID() int {
	return e.id
}

// Config returns the per-device policy the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}

// LockState returns the lock surface's observable pair.
func (e *Engine) LockState() (CurrentState, TargetState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lockSurface.current, e.lockSurface.target
}

// LatchState returns the latch surface's observable pair.
func (e *Engine) LatchState() (CurrentState, TargetState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latchSurface.current, e.latchSurface.target
}

// Battery returns the battery level, charging flag and low indicator.
func (e *Engine) Battery() (level int, charging bool, low bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.battery, e.charging, isLowBattery(e.battery, e.charging)
}

// Status is a read-only view of the engine for the status API.
type Status struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	SerialNumber string `json:"serial_number,omitempty"`
	State        string `json:"state"`
	Jammed       bool   `json:"jammed"`
	Connected    bool   `json:"connected"`
	LockCurrent  string `json:"lock_current"`
	LockTarget   string `json:"lock_target"`
	LatchCurrent string `json:"latch_current,omitempty"`
	LatchTarget  string `json:"latch_target,omitempty"`
	BatteryLevel int    `json:"battery_level"`
	IsCharging   bool   `json:"is_charging"`
	LowBattery   bool   `json:"low_battery"`
	ExposeLatch  bool   `json:"expose_latch"`
	Operating    bool   `json:"operating"`
}

// Status returns a snapshot view of the engine.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Status{
		ID:           e.id,
		Name:         e.cfg.Name,
		SerialNumber: e.serial,
		State:        e.raw.String(),
		Jammed:       e.jammed,
		Connected:    e.connected,
		LockCurrent:  e.lockSurface.current.String(),
		LockTarget:   e.lockSurface.target.String(),
		BatteryLevel: e.battery,
		IsCharging:   e.charging,
		LowBattery:   isLowBattery(e.battery, e.charging),
		ExposeLatch:  e.cfg.ExposeLatch,
		Operating:    e.operating,
	}
	if e.cfg.ExposeLatch {
		s.LatchCurrent = e.latchSurface.current.String()
		s.LatchTarget = e.latchSurface.target.String()
	}
	return s
}

// HandleLockTarget handles a target write on the lock surface.
func (e *Engine) HandleLockTarget(ctx context.Context, target TargetState) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch target {
	case TargetSecured:
		return e.secureLocked(ctx)
	case TargetUnsecured:
		return e.unsecureLocked(ctx)
	}
	return ErrInvalidTarget
}

// secureLocked issues a lock command. Caller holds e.mu.
func (e *Engine) secureLocked(ctx context.Context) error {
	if e.operating {
		return ErrBusy
	}

	e.operating = true
	e.setLockSurfaceLocked(e.lockSurface.current, TargetSecured)

	if err := e.commander.LockDoor(ctx, e.id); err != nil {
		e.operating = false
		e.settleTargetsLocked()
		return fmt.Errorf("sending lock command: %w", err)
	}
	return nil
}

// unsecureLocked issues an unlock, or a latch pull when the door is already
// open and the unlatch-on-repeat policy applies. Caller holds e.mu.
func (e *Engine) unsecureLocked(ctx context.Context) error {
	if e.cfg.DisableUnlock {
		return ErrUnlockDisabled
	}

	// Half-closed is ambiguous between open and closed, so unlocking is
	// always permitted here, even while another operation is pending.
	// Review note: this intentionally bypasses the busy guard for raw
	// state 3 only; other states keep the guard.
	if e.raw == hub.StateHalfClosed {
		return e.issueUnlockLocked(ctx)
	}

	if e.operating {
		return ErrBusy
	}

	if e.raw == hub.StateClosed {
		return e.issueUnlockLocked(ctx)
	}

	// Door is already open. A repeated unlock releases the latch when both
	// the policy and the device's pull spring allow it; otherwise it is a
	// no-op.
	if !e.cfg.UnlatchFromUnlockedToUnlocked || !e.settings.PullSpringEnabled {
		return nil
	}

	e.operating = true
	e.setLatchSurfaceLocked(e.latchSurface.current, TargetUnsecured)

	if err := e.commander.Pull(ctx, e.id); err != nil {
		e.operating = false
		e.settleTargetsLocked()
		return fmt.Errorf("sending pull command: %w", err)
	}
	return nil
}

// issueUnlockLocked performs the shared unlock sequence. Caller holds e.mu.
func (e *Engine) issueUnlockLocked(ctx context.Context) error {
	e.operating = true
	e.setLockSurfaceLocked(e.lockSurface.current, TargetUnsecured)

	// When the device auto-unlatches after unlocking, the latch surface
	// follows eagerly.
	if e.settings.AutoPullSpringEnabled {
		e.setLatchSurfaceLocked(e.latchSurface.current, TargetUnsecured)
	}

	if err := e.commander.Unlock(ctx, e.id, hub.UnlockModeStandard); err != nil {
		e.operating = false
		e.settleTargetsLocked()
		return fmt.Errorf("sending unlock command: %w", err)
	}
	return nil
}

// HandleLatchTarget handles a target write on the latch surface.
func (e *Engine) HandleLatchTarget(ctx context.Context, target TargetState) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	// The latch can only be released; a secured target is not a command.
	if target == TargetSecured {
		return nil
	}
	if target != TargetUnsecured {
		return ErrInvalidTarget
	}

	if e.cfg.DisableUnlock {
		e.revertLatchLater()
		return ErrUnlockDisabled
	}

	// Without a pull spring there is nothing to operate.
	if !e.settings.PullSpringEnabled {
		e.revertLatchLater()
		return nil
	}

	// The spring cannot be pulled through a closed door.
	if e.lockSurface.current == CurrentSecured {
		e.revertLatchLater()
		return nil
	}

	if e.operating {
		e.revertLatchLater()
		return ErrBusy
	}

	e.operating = true
	e.setLatchSurfaceLocked(e.latchSurface.current, TargetUnsecured)
	e.setLockSurfaceLocked(e.lockSurface.current, TargetUnsecured)

	if err := e.commander.Unlock(ctx, e.id, hub.UnlockModePull); err != nil {
		e.operating = false
		e.settleTargetsLocked()
		return fmt.Errorf("sending latch release: %w", err)
	}
	return nil
}

// revertLatchLater snaps the latch surface back to secured after a short
// grace delay, giving the caller's optimistic target write time to render
// before it is taken back. Caller holds e.mu.
func (e *Engine) revertLatchLater() {
	time.AfterFunc(e.revertDelay, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.operating {
			return
		}
		e.setLatchSurfaceLocked(CurrentSecured, TargetSecured)
	})
}

// ApplySnapshot feeds a full device record through the engine: settings,
// connectivity, battery and state. Battery updates always apply; the state
// display is protected by the operating guard.
func (e *Engine) ApplySnapshot(lock hub.Lock) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.name = lock.Name
	e.serial = lock.SerialNumber
	e.connected = lock.IsConnected
	e.settings = lock.DeviceSettings

	e.applyBatteryLocked(lock.BatteryLevel, lock.IsCharging)
	e.applyStateLocked(lock.State, lock.Jammed)
	e.recordLocked()
}

// ApplyLockStatus applies a pushed state change.
func (e *Engine) ApplyLockStatus(raw hub.LockState, jammed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.applyStateLocked(raw, jammed)
	e.recordLocked()
}

// ApplyBatteryLevel applies a pushed battery level.
func (e *Engine) ApplyBatteryLevel(level int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.applyBatteryLocked(level, e.charging)
	e.recordLocked()
}

// ApplyCharging applies a pushed charging flag.
func (e *Engine) ApplyCharging(charging bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.applyBatteryLocked(e.battery, charging)
	e.recordLocked()
}

// applyStateLocked folds a raw state and jam flag into the surfaces.
// While an operation is in flight only a settled state is allowed through;
// it resolves the operation. Caller holds e.mu.
func (e *Engine) applyStateLocked(raw hub.LockState, jammed bool) {
	if e.operating {
		if !raw.IsSettled() {
			return
		}
		e.operating = false
	}

	e.raw = raw
	e.jammed = jammed

	lockNext := mapLockState(raw, e.lockSurface)
	latchNext := mapLatchState(raw, e.latchSurface)

	// A jam overrides where the mechanism claims to be, never where it is
	// heading.
	if jammed {
		lockNext.current = CurrentJammed
		latchNext.current = CurrentJammed
	}

	e.setLockSurfaceLocked(lockNext.current, lockNext.target)
	e.setLatchSurfaceLocked(latchNext.current, latchNext.target)
}

// applyBatteryLocked updates battery state. Battery never interacts with the
// operating guard. Caller holds e.mu.
func (e *Engine) applyBatteryLocked(level int, charging bool) {
	if level < 0 || level > 100 {
		level = hub.BatteryUnknown
	}
	if level == e.battery && charging == e.charging {
		return
	}
	e.battery = level
	e.charging = charging
	if e.observer != nil {
		e.observer.BatteryChanged(level, charging, isLowBattery(level, charging))
	}
}

// setLockSurfaceLocked publishes the lock surface when it changed. Caller
// holds e.mu.
func (e *Engine) setLockSurfaceLocked(current CurrentState, target TargetState) {
	next := surfaceState{current: current, target: target}
	if next == e.lockSurface {
		return
	}
	e.lockSurface = next
	log.Printf("Lock %d: lock surface %s/%s", e.id, current, target)
	if e.observer != nil {
		e.observer.LockStateChanged(current, target)
	}
}

// setLatchSurfaceLocked publishes the latch surface when it changed. Caller
// holds e.mu.
func (e *Engine) setLatchSurfaceLocked(current CurrentState, target TargetState) {
	next := surfaceState{current: current, target: target}
	if next == e.latchSurface {
		return
	}
	e.latchSurface = next
	log.Printf("Lock %d: latch surface %s/%s", e.id, current, target)
	if e.observer != nil {
		e.observer.LatchStateChanged(current, target)
	}
}

// settleTargetsLocked realigns both targets with their currents after a
// failed command, so the display is consistent even if stale. Caller holds
// e.mu.
func (e *Engine) settleTargetsLocked() {
	e.setLockSurfaceLocked(e.lockSurface.current, targetFor(e.lockSurface.current, e.lockSurface.target))
	e.setLatchSurfaceLocked(e.latchSurface.current, targetFor(e.latchSurface.current, e.latchSurface.target))
}

// targetFor maps a current state back to the matching target, keeping the
// previous target where current is ambiguous.
func targetFor(current CurrentState, prev TargetState) TargetState {
	switch current {
	case CurrentSecured:
		return TargetSecured
	case CurrentUnsecured:
		return TargetUnsecured
	case CurrentJammed, CurrentUnknown:
		return prev
	}
	return prev
}

// recordLocked hands the last-known state to the recorder. Caller holds
// e.mu; the write itself happens on its own goroutine.
func (e *Engine) recordLocked() {
	if e.recorder == nil {
		return
	}
	rec := Record{
		DeviceID:     e.id,
		Name:         e.name,
		SerialNumber: e.serial,
		State:        e.raw,
		Jammed:       e.jammed,
		BatteryLevel: e.battery,
		IsCharging:   e.charging,
		IsConnected:  e.connected,
	}
	go e.recorder.Record(rec)
}
