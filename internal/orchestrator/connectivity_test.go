package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/hkdb/aerion-eas/internal/platform"
	"github.com/stretchr/testify/assert"
)

func TestConnectivityRunAwakeClearsAlarmAndAddsHolder(t *testing.T) {
	c := newConnectivity(nil, nil, nil)
	c.runAsleep("mbox-1", time.Minute)
	_, ok := c.pendingAlarm("mbox-1")
	assert.True(t, ok)

	c.runAwake("mbox-1")
	_, ok = c.pendingAlarm("mbox-1")
	assert.False(t, ok, "runAwake must clear any pending alarm")
	assert.Equal(t, 1, c.holderCount())
}

func TestConnectivityRunAsleepArmsAlarmAndRemovesHolder(t *testing.T) {
	c := newConnectivity(nil, nil, nil)
	c.runAwake("mbox-1")
	assert.Equal(t, 1, c.holderCount())

	c.runAsleep("mbox-1", 5*time.Second)
	assert.Equal(t, 0, c.holderCount())

	deadline, ok := c.pendingAlarm("mbox-1")
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(5*time.Second), deadline, time.Second)
}

func TestConnectivityIsConnectedDefaultsTrueWithoutMonitor(t *testing.T) {
	c := newConnectivity(nil, nil, nil)
	assert.True(t, c.isConnected())
}

func TestConnectivityWaitForConnectionReturnsTrueWithoutMonitor(t *testing.T) {
	c := newConnectivity(nil, nil, nil)
	assert.True(t, c.waitForConnection(context.Background()))
}

func TestConnectivityIsLowBatteryDefaultsFalseWithoutMonitor(t *testing.T) {
	c := newConnectivity(nil, nil, nil)
	assert.False(t, c.isLowBattery())
}

func TestConnectivityOnPowerChangedTracksLowBatteryState(t *testing.T) {
	c := newConnectivity(nil, nil, nil)

	c.onPowerChanged(platform.PowerInfo{State: platform.PowerStateLowBattery, BatteryPercentage: 8})
	assert.True(t, c.isLowBattery())

	c.onPowerChanged(platform.PowerInfo{State: platform.PowerStateAC, BatteryPercentage: 100, IsCharging: true})
	assert.False(t, c.isLowBattery())
}
