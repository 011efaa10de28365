package eas

// Heartbeat constants from spec.md §4.2.3.
const (
	initialHeartbeat = 8*60 - 10 // 470
	minHeartbeat     = 5*60 - 10 // 290
	maxHeartbeat     = 17*60 - 10 // 1010
	heartbeatIncrement = 3 * 60 // 180
)

// HeartbeatController implements the adaptive-heartbeat state machine from
// spec.md §4.2.3 and its testable properties in spec.md §8 (monotonicity
// once dropped; bounds 290-1010). One instance lives for the lifetime of an
// account-mailbox worker's Ping loop.
type HeartbeatController struct {
	heartbeat       int
	highWaterMark   int
	dropped         bool
}

// NewHeartbeatController starts at spec.md's initial value of 470s.
func NewHeartbeatController() *HeartbeatController {
	return &HeartbeatController{heartbeat: initialHeartbeat}
}

// Seconds returns the current negotiated heartbeat interval.
func (h *HeartbeatController) Seconds() int {
	return h.heartbeat
}

// ReadTimeout is the socket read timeout for the in-flight Ping POST,
// per spec.md §4.2.3 step 2: "heartbeat + 15s".
func (h *HeartbeatController) ReadTimeout() int {
	return h.heartbeat + 15
}

// OnCompleted handles Ping status 1 (COMPLETED), spec.md §4.2.3 step 3.
func (h *HeartbeatController) OnCompleted() {
	if h.heartbeat > h.highWaterMark {
		h.highWaterMark = h.heartbeat
	}
	if h.heartbeat < maxHeartbeat && !h.dropped {
		h.heartbeat += heartbeatIncrement
		if h.heartbeat > maxHeartbeat {
			h.heartbeat = maxHeartbeat
		}
	}
}

// OnResetByPeer handles the NAT-timeout signal from spec.md §4.2.3 step 6.
// Returns false if the condition for dropping isn't met (caller must
// propagate any other IOException unchanged).
func (h *HeartbeatController) OnResetByPeer() bool {
	if h.heartbeat <= minHeartbeat || h.heartbeat <= h.highWaterMark {
		return false
	}
	h.heartbeat -= heartbeatIncrement
	if h.heartbeat < minHeartbeat {
		h.heartbeat = minHeartbeat
	}
	h.dropped = true
	return true
}

// HighWaterMark exposes the longest successful heartbeat seen, for tests
// and diagnostics.
func (h *HeartbeatController) HighWaterMark() int {
	return h.highWaterMark
}

// Dropped reports whether the monotone drop flag has been set.
func (h *HeartbeatController) Dropped() bool {
	return h.dropped
}
