package device

// Config is the per-lock user policy supplied by the bridge configuration.
// It is immutable after construction.
type Config struct {
	// ID is the hub-assigned device id this policy applies to.
	ID int `yaml:"id"`

	// Name overrides the hub-reported display name.
	Name string `yaml:"name"`

	// Ignored hides the device entirely.
	Ignored bool `yaml:"ignored"`

	// ExposeLatch shows a second latch-only surface next to the lock.
	ExposeLatch bool `yaml:"expose_latch"`

	// DisableUnlock rejects unlock and latch commands for this device.
	DisableUnlock bool `yaml:"disable_unlock"`

	// UnlatchFromUnlockedToUnlocked treats a repeated unlock on an already
	// unlocked door as a latch-release request.
	UnlatchFromUnlockedToUnlocked bool `yaml:"unlatch_from_unlocked_to_unlocked"`

	// LockName and LatchName name the two surfaces. Defaulted from the
	// device name when empty.
	LockName  string `yaml:"lock_name"`
	LatchName string `yaml:"latch_name"`
}

// withDefaults fills the derived fields from the hub-reported device name.
func (c Config) withDefaults(deviceName string) Config {
	if c.Name == "" {
		c.Name = deviceName
	}
	if c.LockName == "" {
		c.LockName = c.Name
	}
	if c.LatchName == "" {
		c.LatchName = c.Name + " Latch"
	}
	return c
}
