//go:build linux

package platform

import (
	"context"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/hkdb/aerion-eas/internal/logging"
)

// LinuxSleepWakeMonitor monitors suspend/resume via systemd-logind's
// PrepareForSleep signal on the system bus, the same signal NetworkManager
// itself watches to know when to re-check link state. Grounded on
// network_linux.go's D-Bus dial/subscribe/listen shape.
type LinuxSleepWakeMonitor struct {
	conn     *dbus.Conn
	events   chan SleepWakeEvent
	stopChan chan struct{}
	running  bool
}

// NewSleepWakeMonitor creates a new sleep/wake monitor for Linux.
func NewSleepWakeMonitor() SleepWakeMonitor {
	return &LinuxSleepWakeMonitor{
		events:   make(chan SleepWakeEvent, 10),
		stopChan: make(chan struct{}),
	}
}

// Start begins monitoring for PrepareForSleep signals on the system bus.
func (m *LinuxSleepWakeMonitor) Start(ctx context.Context) error {
	log := logging.WithComponent("sleep-wake")

	if m.running {
		return nil
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		log.Warn().Err(err).Msg("system bus unavailable, sleep/wake monitoring disabled")
		m.running = true
		return nil
	}

	matchRule := "type='signal',interface='org.freedesktop.login1.Manager',member='PrepareForSleep'"
	if call := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule); call.Err != nil {
		log.Warn().Err(call.Err).Msg("failed to subscribe to logind PrepareForSleep, sleep/wake monitoring disabled")
		m.running = true
		return nil
	}

	m.conn = conn
	m.running = true
	go m.listen(ctx)

	log.Info().Msg("sleep/wake monitor started (logind PrepareForSleep)")
	return nil
}

func (m *LinuxSleepWakeMonitor) listen(ctx context.Context) {
	signals := make(chan *dbus.Signal, 10)
	m.conn.Signal(signals)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case signal := <-signals:
			if signal == nil || signal.Name != "org.freedesktop.login1.Manager.PrepareForSleep" || len(signal.Body) == 0 {
				continue
			}
			sleeping, ok := signal.Body[0].(bool)
			if !ok {
				continue
			}
			event := SleepWakeEvent{IsSleeping: sleeping, Timestamp: time.Now()}
			select {
			case m.events <- event:
			default:
			}
		}
	}
}

// Events returns the channel for receiving sleep/wake events.
func (m *LinuxSleepWakeMonitor) Events() <-chan SleepWakeEvent {
	return m.events
}

// Stop stops the monitor and cleans up resources.
func (m *LinuxSleepWakeMonitor) Stop() error {
	if !m.running {
		return nil
	}
	m.running = false
	close(m.stopChan)
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	return nil
}
