//go:build !linux

package platform

// noopPowerMonitor reports PowerStateUnknown and never fires callbacks.
// macOS (IOKit) and Windows (SetPowerNotifyWindow) both have real battery
// APIs, but wiring them needs cgo/Win32 surfaces this repo cannot verify
// without a toolchain run; the daemon's primary deployment target is Linux
// (see sleep_linux.go), so those platforms degrade to "never pauses sync
// for battery" rather than ship an unverified implementation.
type noopPowerMonitor struct{}

// NewPowerMonitor returns a PowerMonitor that always reports unknown state.
func NewPowerMonitor() PowerMonitor { return noopPowerMonitor{} }

func (noopPowerMonitor) GetPowerInfo() (*PowerInfo, error) {
	return &PowerInfo{State: PowerStateUnknown, BatteryPercentage: -1}, nil
}

func (noopPowerMonitor) Subscribe(func(PowerInfo)) error { return nil }
func (noopPowerMonitor) Unsubscribe() error              { return nil }
func (noopPowerMonitor) Close() error                    { return nil }
