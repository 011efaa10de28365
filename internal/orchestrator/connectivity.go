package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/hkdb/aerion-eas/internal/platform"
)

// connectivity implements spec.md §4.1.6: a process-wide wake-lock keyed
// by mailbox id, plus the per-mailbox alarm clock checkMailboxes consults.
// Grounded on app/background.go's processNetworkEvents/
// processSleepWakeEvents dispatch loops, translated from Wails-event
// emission to direct orchestrator method calls.
type connectivity struct {
	network   platform.NetworkMonitor
	sleepWake platform.SleepWakeMonitor
	power     platform.PowerMonitor

	mu         sync.Mutex
	holders    map[string]struct{}
	alarms     map[string]time.Time
	lowBattery bool
}

func newConnectivity(network platform.NetworkMonitor, sleepWake platform.SleepWakeMonitor, power platform.PowerMonitor) *connectivity {
	return &connectivity{
		network:   network,
		sleepWake: sleepWake,
		power:     power,
		holders:   make(map[string]struct{}),
		alarms:    make(map[string]time.Time),
	}
}

// runAwake adds mailboxID as a wake-lock holder and clears its alarm. The
// first holder is responsible (at the orchestrator level) for acquiring
// any OS-level wake-lock; this repo has no OS wake-lock API to hold on a
// desktop/server platform, so the set itself is the only resource tracked.
func (c *connectivity) runAwake(mailboxID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holders[mailboxID] = struct{}{}
	delete(c.alarms, mailboxID)
}

// runAsleep removes mailboxID from the holder set and arms its alarm for
// d from now (spec.md §4.1.6).
func (c *connectivity) runAsleep(mailboxID string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.holders, mailboxID)
	c.alarms[mailboxID] = time.Now().Add(d)
}

func (c *connectivity) holderCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.holders)
}

func (c *connectivity) pendingAlarm(mailboxID string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.alarms[mailboxID]
	return t, ok
}

func (c *connectivity) clearAlarm(mailboxID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.alarms, mailboxID)
}

// isConnected reports current connectivity, defaulting to true when no
// monitor is wired (e.g. in tests).
func (c *connectivity) isConnected() bool {
	if c.network == nil {
		return true
	}
	return c.network.IsConnected()
}

// waitForConnection blocks (bounded by ctx) until the network monitor
// reports connectivity, or returns immediately true when none is wired.
func (c *connectivity) waitForConnection(ctx context.Context) bool {
	if c.network == nil {
		return true
	}
	return c.network.WaitForConnection(ctx)
}

// onPowerChanged records the latest battery state; called from the power
// monitor's Subscribe callback. Only PowerStateLowBattery pauses scheduled
// sync — PUSH/Ping and Outbox sends still run on battery, matching a phone
// OS's "scheduled jobs only" doze policy rather than cutting off network
// entirely.
func (c *connectivity) onPowerChanged(info platform.PowerInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lowBattery = info.State == platform.PowerStateLowBattery
}

// isLowBattery reports the last-known battery state, defaulting to false
// (never pause) when no power monitor is wired.
func (c *connectivity) isLowBattery() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lowBattery
}

// startConnectivityWatchers launches the monitors' event loops and begins forwarding their
// events into o's scheduling loop via kicks, per spec.md §4.1.6.
func (o *Orchestrator) startConnectivityWatchers(ctx context.Context) {
	if o.conn.network != nil {
		if err := o.conn.network.Start(ctx); err != nil {
			o.log.Warn().Err(err).Msg("starting network monitor failed")
		} else {
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case ev, ok := <-o.conn.network.Events():
						if !ok {
							return
						}
						if ev.Connected {
							o.releaseSyncHolds("IO", "")
						}
						o.Kick("network event")
					}
				}
			}()
		}
	}

	if o.conn.power != nil {
		if err := o.conn.power.Subscribe(o.conn.onPowerChanged); err != nil {
			o.log.Warn().Err(err).Msg("subscribing to power monitor failed")
		} else if info, err := o.conn.power.GetPowerInfo(); err == nil {
			o.conn.onPowerChanged(*info)
		}
	}

	if o.conn.sleepWake != nil {
		if err := o.conn.sleepWake.Start(ctx); err != nil {
			o.log.Warn().Err(err).Msg("starting sleep/wake monitor failed")
		} else {
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case ev, ok := <-o.conn.sleepWake.Events():
						if !ok {
							return
						}
						if ev.IsSleeping && o.conn.network != nil {
							o.conn.network.Invalidate()
						}
						o.Kick("sleep/wake event")
					}
				}
			}()
		}
	}
}
