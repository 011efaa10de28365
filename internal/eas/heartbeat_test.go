package eas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Scenario 2 from spec.md §8: three consecutive Pings return status 1
// (COMPLETED); heartbeat climbs 470 -> 650 -> 830 -> 1010, then plateaus.
func TestHeartbeatAdaptiveSuccessScenario(t *testing.T) {
	h := NewHeartbeatController()
	assert.Equal(t, 470, h.Seconds())

	h.OnCompleted()
	assert.Equal(t, 650, h.Seconds())
	assert.Equal(t, 470, h.HighWaterMark())

	h.OnCompleted()
	assert.Equal(t, 830, h.Seconds())

	h.OnCompleted()
	assert.Equal(t, 1010, h.Seconds())

	// fourth success remains at 1010 (MAX)
	h.OnCompleted()
	assert.Equal(t, 1010, h.Seconds())
}

// Scenario 3 from spec.md §8: NAT timeout drops heartbeat once and then
// the controller never increases it again.
func TestHeartbeatNATTimeoutScenario(t *testing.T) {
	h := &HeartbeatController{heartbeat: 650, highWaterMark: 470}

	dropped := h.OnResetByPeer()
	assert.True(t, dropped)
	assert.Equal(t, 470, h.Seconds())
	assert.True(t, h.Dropped())

	// subsequent successes never increase heartbeat above 470 once dropped
	h.OnCompleted()
	assert.Equal(t, 470, h.Seconds())
	h.OnCompleted()
	assert.Equal(t, 470, h.Seconds())
}

func TestHeartbeatResetByPeerRequiresAboveMinAndHighWaterMark(t *testing.T) {
	h := &HeartbeatController{heartbeat: minHeartbeat, highWaterMark: 0}
	assert.False(t, h.OnResetByPeer(), "cannot drop below MIN")

	h = &HeartbeatController{heartbeat: 470, highWaterMark: 470}
	assert.False(t, h.OnResetByPeer(), "cannot drop when already at or below high water mark")
}

func TestHeartbeatBoundsHoldAcrossManyCompletions(t *testing.T) {
	h := NewHeartbeatController()
	for i := 0; i < 50; i++ {
		h.OnCompleted()
		assert.GreaterOrEqual(t, h.Seconds(), minHeartbeat)
		assert.LessOrEqual(t, h.Seconds(), maxHeartbeat)
	}
}

func TestHeartbeatMonotonicityOnceDropped(t *testing.T) {
	h := NewHeartbeatController()
	h.OnCompleted() // 650
	h.OnCompleted() // 830

	h2 := &HeartbeatController{heartbeat: h.Seconds(), highWaterMark: h.HighWaterMark()}
	h2.OnResetByPeer()
	prev := h2.Seconds()

	for i := 0; i < 10; i++ {
		h2.OnCompleted()
		assert.LessOrEqual(t, h2.Seconds(), prev, "heartbeat must be non-increasing once dropped")
		prev = h2.Seconds()
	}
}
