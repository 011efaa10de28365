package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsConnectionError(t *testing.T) {
	assert.True(t, IsConnectionError(errors.New("read: connection reset by peer")))
	assert.True(t, IsConnectionError(errors.New("dial tcp: i/o timeout")))
	assert.True(t, IsConnectionError(errors.New("use of closed network connection")))
	assert.False(t, IsConnectionError(nil))
	assert.False(t, IsConnectionError(errors.New("invalid sync key")))
}

func TestIsResetByPeerIsTheSoleIndicator(t *testing.T) {
	assert.True(t, IsResetByPeer(errors.New("read tcp: connection reset by peer")))
	assert.False(t, IsResetByPeer(errors.New("read tcp: i/o timeout")), "spec.md open question: no other message is treated as NAT timeout")
}

func TestManagerShutdownCancelsInFlightAndCounts(t *testing.T) {
	m := New(DefaultConfig())

	ctx, release := m.WithCancel(t.Context())
	defer release()

	n := m.Shutdown()
	assert.Equal(t, 1, n)
	assert.Error(t, ctx.Err())

	n = m.Shutdown()
	assert.Equal(t, 2, n)

	m.ResetShutdownCounter()
	n = m.Shutdown()
	assert.Equal(t, 1, n)
}
