package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockbridge/backend/internal/hub"
)

type fakeCommander struct {
	lockCalls   int
	unlockCalls int
	pullCalls   int

	lastUnlockMode int

	err error
}

func (f *fakeCommander) LockDoor(ctx context.Context, id int) error {
	f.lockCalls++
	return f.err
}

func (f *fakeCommander) Unlock(ctx context.Context, id int, mode int) error {
	f.unlockCalls++
	f.lastUnlockMode = mode
	return f.err
}

func (f *fakeCommander) Pull(ctx context.Context, id int) error {
	f.pullCalls++
	return f.err
}

func (f *fakeCommander) totalCalls() int {
	return f.lockCalls + f.unlockCalls + f.pullCalls
}

func testLock(state hub.LockState, settings hub.DeviceSettings) hub.Lock {
	return hub.Lock{
		ID:             1,
		Name:           "Front Door",
		SerialNumber:   "01-02-03",
		State:          state,
		BatteryLevel:   80,
		DeviceSettings: settings,
	}
}

func newTestEngine(state hub.LockState, settings hub.DeviceSettings, cfg Config) (*Engine, *fakeCommander) {
	commander := &fakeCommander{}
	engine := NewEngine(testLock(state, settings), cfg, commander, nil, nil)
	engine.revertDelay = 5 * time.Millisecond
	return engine, commander
}

// Uncalibrated and calibrating states report jammed even without the jam
// flag.
func TestCalibrationStatesReportJammed(t *testing.T) {
	for _, raw := range []hub.LockState{hub.StateUncalibrated, hub.StateCalibrating} {
		engine, _ := newTestEngine(hub.StateClosed, hub.DeviceSettings{}, Config{})

		engine.ApplyLockStatus(raw, false)

		current, _ := engine.LockState()
		assert.Equal(t, CurrentJammed, current, raw.String())
	}
}

// A settled snapshot resolves an operation in flight.
func TestSettledSnapshotClearsOperating(t *testing.T) {
	for _, raw := range []hub.LockState{hub.StateOpen, hub.StateHalfClosed, hub.StateClosed, hub.StateUnlatched, hub.StateUnknown} {
		engine, _ := newTestEngine(hub.StateClosed, hub.DeviceSettings{}, Config{})

		require.NoError(t, engine.HandleLockTarget(context.Background(), TargetUnsecured))
		require.True(t, engine.Status().Operating)

		engine.ApplySnapshot(testLock(raw, hub.DeviceSettings{}))

		assert.False(t, engine.Status().Operating, raw.String())
	}
}

// A transitional snapshot must not overwrite the display while an operation
// is in flight.
func TestTransitionalSnapshotIgnoredWhileOperating(t *testing.T) {
	engine, _ := newTestEngine(hub.StateClosed, hub.DeviceSettings{}, Config{})

	require.NoError(t, engine.HandleLockTarget(context.Background(), TargetUnsecured))
	_, target := engine.LockState()
	require.Equal(t, TargetUnsecured, target)

	// A stale poll still showing the lock closing toward secured.
	engine.ApplySnapshot(testLock(hub.StateClosing, hub.DeviceSettings{}))

	current, target := engine.LockState()
	assert.Equal(t, CurrentSecured, current)
	assert.Equal(t, TargetUnsecured, target)
	assert.True(t, engine.Status().Operating)
}

// Applying the same snapshot twice yields identical observable pairs.
func TestSnapshotIdempotent(t *testing.T) {
	for _, raw := range []hub.LockState{hub.StateOpen, hub.StateClosed, hub.StateOpening, hub.StateUnknown, hub.StateLatching} {
		engine, _ := newTestEngine(hub.StateClosed, hub.DeviceSettings{}, Config{})

		engine.ApplySnapshot(testLock(raw, hub.DeviceSettings{}))
		firstCurrent, firstTarget := engine.LockState()
		firstLatchCurrent, firstLatchTarget := engine.LatchState()

		engine.ApplySnapshot(testLock(raw, hub.DeviceSettings{}))
		current, target := engine.LockState()
		latchCurrent, latchTarget := engine.LatchState()

		assert.Equal(t, firstCurrent, current, raw.String())
		assert.Equal(t, firstTarget, target, raw.String())
		assert.Equal(t, firstLatchCurrent, latchCurrent, raw.String())
		assert.Equal(t, firstLatchTarget, latchTarget, raw.String())
	}
}

// The jam flag forces both current states to jammed irrespective of the raw
// state.
func TestJamOverridesCurrentStates(t *testing.T) {
	engine, _ := newTestEngine(hub.StateClosed, hub.DeviceSettings{}, Config{})

	engine.ApplyLockStatus(hub.StateClosed, true)

	lockCurrent, lockTarget := engine.LockState()
	latchCurrent, _ := engine.LatchState()
	assert.Equal(t, CurrentJammed, lockCurrent)
	assert.Equal(t, CurrentJammed, latchCurrent)
	// The jam never rewrites where the mechanism is heading.
	assert.Equal(t, TargetSecured, lockTarget)
}

// A command issued while another is in flight is rejected before any
// outbound call.
func TestBusyRejectsWithoutOutboundCall(t *testing.T) {
	engine, commander := newTestEngine(hub.StateClosed, hub.DeviceSettings{}, Config{})

	require.NoError(t, engine.HandleLockTarget(context.Background(), TargetUnsecured))
	calls := commander.totalCalls()

	err := engine.HandleLockTarget(context.Background(), TargetSecured)

	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, calls, commander.totalCalls())
	assert.True(t, engine.Status().Operating)
}

// Unlocking a closed door without a pull spring issues a plain unlock.
func TestUnlockFromClosedIssuesPlainUnlock(t *testing.T) {
	engine, commander := newTestEngine(hub.StateClosed, hub.DeviceSettings{PullSpringEnabled: false}, Config{})

	require.NoError(t, engine.HandleLockTarget(context.Background(), TargetUnsecured))

	assert.Equal(t, 1, commander.unlockCalls)
	assert.Equal(t, hub.UnlockModeStandard, commander.lastUnlockMode)
	assert.Equal(t, 0, commander.pullCalls)
	assert.True(t, engine.Status().Operating)

	_, target := engine.LockState()
	assert.Equal(t, TargetUnsecured, target)
}

// A repeated unlock on an open door releases the latch when the policy and
// the pull spring allow it.
func TestRepeatedUnlockIssuesPull(t *testing.T) {
	engine, commander := newTestEngine(
		hub.StateOpen,
		hub.DeviceSettings{PullSpringEnabled: true},
		Config{UnlatchFromUnlockedToUnlocked: true},
	)

	require.NoError(t, engine.HandleLockTarget(context.Background(), TargetUnsecured))

	assert.Equal(t, 1, commander.pullCalls)
	assert.Equal(t, 0, commander.unlockCalls)
	assert.True(t, engine.Status().Operating)

	_, latchTarget := engine.LatchState()
	assert.Equal(t, TargetUnsecured, latchTarget)
}

// Without the policy a repeated unlock on an open door is a silent no-op.
func TestRepeatedUnlockNoopWithoutPolicy(t *testing.T) {
	engine, commander := newTestEngine(
		hub.StateOpen,
		hub.DeviceSettings{PullSpringEnabled: true},
		Config{UnlatchFromUnlockedToUnlocked: false},
	)

	before := engine.Status()

	require.NoError(t, engine.HandleLockTarget(context.Background(), TargetUnsecured))

	assert.Equal(t, 0, commander.totalCalls())
	assert.Equal(t, before, engine.Status())
}

// Disabled unlock rejects both surfaces with a configuration error and
// never contacts the hub.
func TestDisableUnlockRejects(t *testing.T) {
	engine, commander := newTestEngine(
		hub.StateClosed,
		hub.DeviceSettings{PullSpringEnabled: true},
		Config{DisableUnlock: true, ExposeLatch: true},
	)

	err := engine.HandleLockTarget(context.Background(), TargetUnsecured)
	assert.ErrorIs(t, err, ErrUnlockDisabled)

	err = engine.HandleLatchTarget(context.Background(), TargetUnsecured)
	assert.ErrorIs(t, err, ErrUnlockDisabled)

	assert.Equal(t, 0, commander.totalCalls())
}

// Locking is unaffected by the unlock policy.
func TestSecureAllowedWithUnlockDisabled(t *testing.T) {
	engine, commander := newTestEngine(hub.StateOpen, hub.DeviceSettings{}, Config{DisableUnlock: true})

	require.NoError(t, engine.HandleLockTarget(context.Background(), TargetSecured))

	assert.Equal(t, 1, commander.lockCalls)
	assert.True(t, engine.Status().Operating)
}

// Unlock from half-closed is permitted even while another operation is in
// flight.
func TestHalfClosedBypassesBusyGuard(t *testing.T) {
	engine, commander := newTestEngine(hub.StateHalfClosed, hub.DeviceSettings{}, Config{})

	require.NoError(t, engine.HandleLockTarget(context.Background(), TargetUnsecured))
	require.True(t, engine.Status().Operating)

	require.NoError(t, engine.HandleLockTarget(context.Background(), TargetUnsecured))

	assert.Equal(t, 2, commander.unlockCalls)
}

// Auto-unlatch mirrors the latch target eagerly when unlocking.
func TestAutoPullSpringMirrorsLatchTarget(t *testing.T) {
	engine, commander := newTestEngine(
		hub.StateClosed,
		hub.DeviceSettings{PullSpringEnabled: true, AutoPullSpringEnabled: true},
		Config{ExposeLatch: true},
	)

	require.NoError(t, engine.HandleLockTarget(context.Background(), TargetUnsecured))

	assert.Equal(t, 1, commander.unlockCalls)
	_, latchTarget := engine.LatchState()
	assert.Equal(t, TargetUnsecured, latchTarget)
}

// A failing command clears the operating guard before surfacing the error.
func TestCommandFailureClearsOperating(t *testing.T) {
	engine, commander := newTestEngine(hub.StateClosed, hub.DeviceSettings{}, Config{})
	commander.err = errors.New("connection refused")

	err := engine.HandleLockTarget(context.Background(), TargetUnsecured)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBusy)
	assert.False(t, engine.Status().Operating)

	current, target := engine.LockState()
	assert.Equal(t, CurrentSecured, current)
	assert.Equal(t, TargetSecured, target)
}

// A latch release goes out as an unlock with the pull mode and mirrors the
// lock target.
func TestLatchReleaseUsesPullMode(t *testing.T) {
	engine, commander := newTestEngine(
		hub.StateOpen,
		hub.DeviceSettings{PullSpringEnabled: true},
		Config{ExposeLatch: true},
	)

	require.NoError(t, engine.HandleLatchTarget(context.Background(), TargetUnsecured))

	assert.Equal(t, 1, commander.unlockCalls)
	assert.Equal(t, hub.UnlockModePull, commander.lastUnlockMode)
	assert.True(t, engine.Status().Operating)

	_, lockTarget := engine.LockState()
	assert.Equal(t, TargetUnsecured, lockTarget)
}

// A secured latch target is not a command.
func TestLatchSecuredTargetIgnored(t *testing.T) {
	engine, commander := newTestEngine(
		hub.StateOpen,
		hub.DeviceSettings{PullSpringEnabled: true},
		Config{ExposeLatch: true},
	)

	require.NoError(t, engine.HandleLatchTarget(context.Background(), TargetSecured))

	assert.Equal(t, 0, commander.totalCalls())
}

// Without a pull spring the latch snaps back to secured after the grace
// delay.
func TestLatchRevertsWithoutPullSpring(t *testing.T) {
	engine, commander := newTestEngine(hub.StateOpen, hub.DeviceSettings{PullSpringEnabled: false}, Config{ExposeLatch: true})

	require.NoError(t, engine.HandleLatchTarget(context.Background(), TargetUnsecured))
	assert.Equal(t, 0, commander.totalCalls())

	assert.Eventually(t, func() bool {
		current, target := engine.LatchState()
		return current == CurrentSecured && target == TargetSecured
	}, time.Second, 5*time.Millisecond)
}

// The spring cannot be pulled while the door is closed.
func TestLatchRevertsWhileDoorSecured(t *testing.T) {
	engine, commander := newTestEngine(hub.StateClosed, hub.DeviceSettings{PullSpringEnabled: true}, Config{ExposeLatch: true})

	require.NoError(t, engine.HandleLatchTarget(context.Background(), TargetUnsecured))
	assert.Equal(t, 0, commander.totalCalls())

	assert.Eventually(t, func() bool {
		current, target := engine.LatchState()
		return current == CurrentSecured && target == TargetSecured
	}, time.Second, 5*time.Millisecond)
}

// Battery level and charging flag drive the low-battery indicator.
func TestLowBatteryIndicator(t *testing.T) {
	engine, _ := newTestEngine(hub.StateClosed, hub.DeviceSettings{}, Config{})

	engine.ApplyBatteryLevel(5)
	_, _, low := engine.Battery()
	assert.True(t, low)

	engine.ApplyCharging(true)
	level, charging, low := engine.Battery()
	assert.Equal(t, 5, level)
	assert.True(t, charging)
	assert.False(t, low)
}

// Battery updates apply even while an operation is in flight.
func TestBatteryIgnoresOperatingGuard(t *testing.T) {
	engine, _ := newTestEngine(hub.StateClosed, hub.DeviceSettings{}, Config{})

	require.NoError(t, engine.HandleLockTarget(context.Background(), TargetUnsecured))
	engine.ApplyBatteryLevel(42)

	level, _, _ := engine.Battery()
	assert.Equal(t, 42, level)
	assert.True(t, engine.Status().Operating)
}

// An out-of-range battery level is treated as unknown and never low.
func TestBatteryUnknownNeverLow(t *testing.T) {
	engine, _ := newTestEngine(hub.StateClosed, hub.DeviceSettings{}, Config{})

	engine.ApplyBatteryLevel(255)

	level, _, low := engine.Battery()
	assert.Equal(t, hub.BatteryUnknown, level)
	assert.False(t, low)
}
