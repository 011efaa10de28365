//go:build linux

package platform

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/hkdb/aerion-eas/internal/logging"
)

// upowerStateDischarging and friends mirror org.freedesktop.UPower.Device's
// State enum (UPOWER_DEVICE_STATE_*).
const (
	upowerStateCharging    = 1
	upowerStateDischarging = 2
	upowerStateFullyCharged = 4
)

// LinuxPowerMonitor reports battery state via UPower's D-Bus display device,
// the same aggregate-battery object GNOME/KDE indicators read. Grounded on
// network_linux.go's dial/AddMatch/listen shape, translated from
// NetworkManager's StateChanged signal to UPower's PropertiesChanged.
type LinuxPowerMonitor struct {
	conn       *dbus.Conn
	devicePath dbus.ObjectPath
	stopChan   chan struct{}

	mu       sync.RWMutex
	callback func(PowerInfo)
	running  bool
}

// NewPowerMonitor creates a new battery/power state monitor for Linux.
func NewPowerMonitor() PowerMonitor {
	return &LinuxPowerMonitor{stopChan: make(chan struct{})}
}

func (m *LinuxPowerMonitor) connectDisplayDevice() error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}

	obj := conn.Object("org.freedesktop.UPower", "/org/freedesktop/UPower")
	var path dbus.ObjectPath
	if err := obj.Call("org.freedesktop.UPower.GetDisplayDevice", 0).Store(&path); err != nil {
		return err
	}

	m.conn = conn
	m.devicePath = path
	return nil
}

// GetPowerInfo returns the current power state, querying UPower's display
// device directly rather than relying on a previously-cached value.
func (m *LinuxPowerMonitor) GetPowerInfo() (*PowerInfo, error) {
	m.mu.RLock()
	conn, path := m.conn, m.devicePath
	m.mu.RUnlock()

	if conn == nil {
		return &PowerInfo{State: PowerStateUnknown, BatteryPercentage: -1}, nil
	}

	obj := conn.Object("org.freedesktop.UPower", path)

	percentage, err := obj.GetProperty("org.freedesktop.UPower.Device.Percentage")
	if err != nil {
		return &PowerInfo{State: PowerStateUnknown, BatteryPercentage: -1}, nil
	}
	state, err := obj.GetProperty("org.freedesktop.UPower.Device.State")
	if err != nil {
		return &PowerInfo{State: PowerStateUnknown, BatteryPercentage: -1}, nil
	}

	pct, _ := percentage.Value().(float64)
	st, _ := state.Value().(uint32)

	return upowerToPowerInfo(pct, st), nil
}

func upowerToPowerInfo(pct float64, state uint32) *PowerInfo {
	info := &PowerInfo{BatteryPercentage: int(pct), IsCharging: state == upowerStateCharging || state == upowerStateFullyCharged}
	switch {
	case state == upowerStateDischarging && pct <= lowBatteryPercent:
		info.State = PowerStateLowBattery
	case state == upowerStateDischarging:
		info.State = PowerStateBattery
	case state == upowerStateCharging || state == upowerStateFullyCharged:
		info.State = PowerStateAC
	default:
		info.State = PowerStateUnknown
	}
	return info
}

// Subscribe registers callback to be invoked on every UPower
// PropertiesChanged signal for the display device. Falls back gracefully
// (logging a warning, never returning an error) when UPower is unavailable,
// matching sleep_linux.go's degrade-don't-fail posture for a headless
// daemon running in a minimal container without a power subsystem.
func (m *LinuxPowerMonitor) Subscribe(callback func(PowerInfo)) error {
	log := logging.WithComponent("power-monitor")

	m.mu.Lock()
	m.callback = callback
	m.running = true
	m.mu.Unlock()

	if err := m.connectDisplayDevice(); err != nil {
		log.Warn().Err(err).Msg("UPower unavailable, power state monitoring disabled")
		return nil
	}

	matchRule := fmt.Sprintf("type='signal',interface='org.freedesktop.DBus.Properties',member='PropertiesChanged',path='%s'", m.devicePath)
	if call := m.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule); call.Err != nil {
		log.Warn().Err(call.Err).Msg("subscribing to UPower PropertiesChanged failed")
		return nil
	}

	go m.listen()
	log.Info().Msg("power monitor started")
	return nil
}

func (m *LinuxPowerMonitor) listen() {
	signals := make(chan *dbus.Signal, 10)
	m.conn.Signal(signals)

	for {
		select {
		case <-m.stopChan:
			return
		case sig := <-signals:
			if sig == nil || sig.Path != m.devicePath {
				continue
			}
			info, err := m.GetPowerInfo()
			if err != nil {
				continue
			}

			m.mu.RLock()
			cb := m.callback
			running := m.running
			m.mu.RUnlock()
			if running && cb != nil {
				cb(*info)
			}
		}
	}
}

// Unsubscribe removes the registered callback.
func (m *LinuxPowerMonitor) Unsubscribe() error {
	m.mu.Lock()
	m.callback = nil
	m.mu.Unlock()
	return nil
}

// Close cleans up resources.
func (m *LinuxPowerMonitor) Close() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	close(m.stopChan)
	if conn != nil {
		conn.Close()
	}
	return nil
}
