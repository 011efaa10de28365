package eas

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"time"
)

// URLComposer builds EAS command URLs and the cached auth/identity headers
// a worker attaches to every request, per spec.md §4.4.
type URLComposer struct {
	scheme   string // "https" or "http"
	host     string
	username string
	password string
	deviceID string

	basicAuth string
}

// NewURLComposer builds a composer; useTLS selects https vs http per
// spec.md §4.4's "(https|http)://{host}/Microsoft-Server-ActiveSync".
func NewURLComposer(host, username, password, deviceID string, useTLS bool) *URLComposer {
	scheme := "http"
	if useTLS {
		scheme = "https"
	}
	c := &URLComposer{scheme: scheme, host: host, username: username, password: password, deviceID: deviceID}
	c.basicAuth = "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
	return c
}

// BaseURL returns the bare command endpoint.
func (c *URLComposer) BaseURL() string {
	return fmt.Sprintf("%s://%s/Microsoft-Server-ActiveSync", c.scheme, c.host)
}

// CommandURL builds the full URL for cmd, including the cached
// User/DeviceId/DeviceType tail from spec.md §4.4.
func (c *URLComposer) CommandURL(cmd string) string {
	return fmt.Sprintf("%s?Cmd=%s&User=%s&DeviceId=%s&DeviceType=Android",
		c.BaseURL(), url.QueryEscape(cmd), url.QueryEscape(c.username), url.QueryEscape(c.deviceID))
}

// AuthorizationHeader returns the cached "Authorization: Basic ..." value.
func (c *URLComposer) AuthorizationHeader() string {
	return c.basicAuth
}

// deviceIDStore is the minimal persistence surface URL composer setup
// needs; internal/credentials.Store satisfies it.
type deviceIDStore interface {
	GetDeviceID() (string, error)
	SetDeviceID(string) error
}

// Any error from the store's GetDeviceID is treated as "absent"; this
// package defines no not-found sentinel of its own, so it stays
// store-implementation agnostic (spec.md §4.4).
//
// ResolveDeviceID reads a persisted device id, or derives and persists a
// stable one per spec.md §4.4: "a stable id is derived from a platform
// identifier (prefixed `androidc`) or, as a last resort,
// `android{monotonic_ms}`".
func ResolveDeviceID(s deviceIDStore, platformID string) (string, error) {
	if id, err := s.GetDeviceID(); err == nil && id != "" {
		return id, nil
	}

	id := platformID
	if id != "" {
		id = "androidc" + id
	} else {
		id = fmt.Sprintf("android%d", time.Now().UnixMilli())
	}

	if err := s.SetDeviceID(id); err != nil {
		return "", err
	}
	return id, nil
}

// ReadLegacyDeviceNameFile reads the single-line deviceName file format
// from spec.md §6, for the one-time legacy-import path.
func ReadLegacyDeviceNameFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
