// Package transport provides the shared HTTP connection manager described
// in spec.md §4.5: a process-wide pool with bounded per-route connections
// and a bounded idle pool (net/http puts no cap on total active
// connections), two TLS registrations (normal and "allow-all" self-signed),
// and a break-glass Shutdown that force-fails in-flight sockets.
//
// Grounded on internal/imap/pool.go's connection-pool shape and
// internal/imap/client.go's TLS dial-mode selection, translated from IMAP's
// own pooled-socket model to net/http's Transport, which already implements
// pooling natively — this package's job is configuring that pooling to
// spec.md's limits and adding the cancel-all escape hatch IMAP's pool
// provided explicitly.
package transport

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hkdb/aerion-eas/internal/logging"
	"golang.org/x/net/http2"
)

// Config mirrors spec.md §4.5's limits.
type Config struct {
	MaxConnsTotal   int // default 25; applied as the idle-connection cap
	MaxConnsPerHost int // default 8
	ConnectTimeout  time.Duration
	AllowInsecureTLS bool
}

// DefaultConfig returns spec.md §4.5's stated limits.
func DefaultConfig() Config {
	return Config{
		MaxConnsTotal:   25,
		MaxConnsPerHost: 8,
		ConnectTimeout:  15 * time.Second,
	}
}

// Manager is the process-wide shared HTTP transport.
type Manager struct {
	cfg    Config
	client *http.Client

	mu              sync.Mutex
	inFlight        map[context.CancelFunc]struct{}
	shutdownCounter int
}

// New builds a Manager per spec.md §4.5. When cfg.AllowInsecureTLS is set,
// the client uses the "allow-all" self-signed TLS registration instead of
// the normal one — spec.md's two socket-factory registrations collapse
// naturally into one http.Transport with a chosen tls.Config, since Go's
// http.Transport (unlike the Java HttpClient this is ported from) doesn't
// need separate factories per scheme.
func New(cfg Config) *Manager {
	if cfg.MaxConnsTotal <= 0 {
		cfg.MaxConnsTotal = 25
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = 8
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}

	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.AllowInsecureTLS}

	rt := &http.Transport{
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		MaxIdleConns:        cfg.MaxConnsTotal,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig:     tlsConfig,
	}

	log := logging.WithComponent("transport")
	if err := http2.ConfigureTransport(rt); err != nil {
		log.Warn().Err(err).Msg("failed to configure HTTP/2, falling back to HTTP/1.1")
	}

	return &Manager{
		cfg:      cfg,
		client:   &http.Client{Transport: rt},
		inFlight: make(map[context.CancelFunc]struct{}),
	}
}

// WithCancel wraps ctx with a cancel func registered so Shutdown can abort
// it, returning the derived context and a release func the caller must
// defer-call when the request completes.
func (m *Manager) WithCancel(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.inFlight[cancel] = struct{}{}
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		delete(m.inFlight, cancel)
		m.mu.Unlock()
		cancel()
	}
	return ctx, release
}

// Do executes req using the shared client.
func (m *Manager) Do(req *http.Request) (*http.Response, error) {
	return m.client.Do(req)
}

// Shutdown force-fails every in-flight request and closes idle connections.
// Per spec.md §4.5 this is "used as a sledgehammer when a worker alarm
// cannot be honored." Beyond that it only increments and returns the
// shutdown counter. Nothing in the daemon calls Shutdown or acts on the
// counter, and no process self-restart is performed; the orchestrator only
// resets the counter on a DONE worker exit.
func (m *Manager) Shutdown() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	for cancel := range m.inFlight {
		cancel()
	}
	m.inFlight = make(map[context.CancelFunc]struct{})
	m.client.Transport.(*http.Transport).CloseIdleConnections()

	m.shutdownCounter++
	return m.shutdownCounter
}

// ResetShutdownCounter clears the counter, called on a clean worker
// completion (spec.md §4.1.4: "DONE ... reset connection-manager shutdown
// counter").
func (m *Manager) ResetShutdownCounter() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownCounter = 0
}

// IsConnectionError classifies a transport error as a transient I/O failure
// per spec.md §7's error taxonomy, grounded on internal/imap/pool.go's
// IsConnectionError string-matching idiom.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, substr := range []string{
		"closed network connection",
		"connection reset",
		"broken pipe",
		"eof",
		"i/o timeout",
		"connection refused",
		"no such host",
		"network is unreachable",
	} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// IsResetByPeer reports whether err matches spec.md §4.2.3's NAT-timeout
// indicator ("IOException whose message contains 'reset by peer'"). This is
// deliberately the ONLY string match used for that signal — spec.md §9
// leaves open whether other messages indicate the same condition, and this
// repo does not guess.
func IsResetByPeer(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "reset by peer")
}
