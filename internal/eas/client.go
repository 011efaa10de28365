// Package eas implements the per-worker EAS protocol driver from
// spec.md §4.2: version discovery, FolderSync, the adaptive-heartbeat Ping
// loop, interleaved Sync turns, attachment streaming, and cancellation.
//
// Grounded on internal/imap/client.go's dial/capability-negotiation shape
// and internal/imap/idle.go's long-poll reconnect loop, translated from
// IMAP's persistent socket model to EAS's per-command HTTP POSTs.
package eas

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hkdb/aerion-eas/internal/store"
	"github.com/hkdb/aerion-eas/internal/transport"
	"github.com/hkdb/aerion-eas/internal/wbxml"
)

const wbxmlContentType = "application/vnd.ms-sync.wbxml"

// Client drives EAS commands for one account against the shared transport.
type Client struct {
	transport       *transport.Manager
	composer        *URLComposer
	protocolVersion string // "2.5" or "12.0"; "" until DiscoverVersion runs
	userAgent       string
}

// NewClient builds a driver bound to one account's credentials.
func NewClient(t *transport.Manager, composer *URLComposer, protocolVersion string) *Client {
	return &Client{transport: t, composer: composer, protocolVersion: protocolVersion, userAgent: "easd/1.0"}
}

// SetProtocolVersion updates the negotiated version after DiscoverVersion.
func (c *Client) SetProtocolVersion(v string) { c.protocolVersion = v }

// ProtocolVersion returns the currently negotiated version.
func (c *Client) ProtocolVersion() string { return c.protocolVersion }

func (c *Client) newRequest(ctx context.Context, method, rawURL, contentType string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.composer.AuthorizationHeader())
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("User-Agent", c.userAgent)
	if c.protocolVersion != "" {
		req.Header.Set("MS-ASProtocolVersion", c.protocolVersion)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// classifyStatus maps an HTTP status code to spec.md §4.2's exit-status
// rules, shared across FolderSync/Sync/Ping (§4.2.1, §4.2.2, §4.2.3, §4.2.6
// all use the same 401/403 -> LOGIN_FAILURE, other-non-200 -> IO_ERROR
// mapping).
func classifyStatus(code int) store.ExitStatus {
	switch {
	case code == http.StatusOK:
		return store.ExitDone
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return store.ExitLoginFailure
	default:
		return store.ExitIOError
	}
}

// DiscoverVersion performs spec.md §4.2.1's OPTIONS version discovery.
func (c *Client) DiscoverVersion(ctx context.Context) (string, store.ExitStatus, error) {
	req, err := c.newRequest(ctx, http.MethodOptions, c.composer.BaseURL(), "", nil)
	if err != nil {
		return "", store.ExitException, err
	}

	resp, err := c.transport.Do(req)
	if err != nil {
		return "", store.ExitIOError, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode), fmt.Errorf("OPTIONS returned %d", resp.StatusCode)
	}

	header := resp.Header.Get("ms-asprotocolversions")
	if header == "" {
		return "", store.ExitIOError, fmt.Errorf("OPTIONS response missing ms-asprotocolversions header")
	}

	for _, v := range strings.Split(header, ",") {
		if strings.TrimSpace(v) == "12.0" {
			return "12.0", store.ExitDone, nil
		}
	}
	return "2.5", store.ExitDone, nil
}

// FolderSync performs spec.md §4.2.2's FolderSync command once (callers
// loop on NeedsResync()).
func (c *Client) FolderSync(ctx context.Context, syncKey string) (*wbxml.FolderSyncResult, store.ExitStatus, error) {
	body := wbxml.BuildFolderSync(syncKey)
	resp, exit, err := c.post(ctx, "FolderSync", body, wbxmlContentType)
	if err != nil {
		return nil, exit, err
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, store.ExitIOError, err
	}
	result, err := wbxml.ParseFolderSync(data)
	if err != nil {
		return nil, store.ExitIOError, err
	}
	return result, store.ExitDone, nil
}

// Ping performs spec.md §4.2.3's Ping command with a read deadline of
// heartbeatSeconds+15s.
func (c *Client) Ping(ctx context.Context, heartbeatSeconds int, folders []wbxml.PingFolder) (*wbxml.PingResult, store.ExitStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(heartbeatSeconds+15)*time.Second)
	defer cancel()

	body := wbxml.BuildPing(heartbeatSeconds, folders)
	resp, exit, err := c.post(ctx, "Ping", body, wbxmlContentType)
	if err != nil {
		return nil, exit, err
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, store.ExitIOError, err
	}
	if len(data) == 0 {
		// spec.md §4.2.3 step 4: "On 200 with empty body: raise IO_ERROR."
		return nil, store.ExitIOError, fmt.Errorf("empty Ping response body")
	}

	result, err := wbxml.ParsePing(data)
	if err != nil {
		return nil, store.ExitIOError, err
	}
	return result, store.ExitDone, nil
}

// Sync performs one spec.md §4.2.6 Sync turn for a single collection.
func (c *Client) Sync(ctx context.Context, req wbxml.SyncCollectionRequest) (*wbxml.SyncResult, store.ExitStatus, error) {
	body := wbxml.BuildSync(req)
	resp, exit, err := c.post(ctx, "Sync", body, wbxmlContentType)
	if err != nil {
		return nil, exit, err
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, store.ExitIOError, err
	}
	result, err := wbxml.ParseSync(data)
	if err != nil {
		return nil, store.ExitIOError, err
	}
	return result, store.ExitDone, nil
}

// MoveItems performs a MessageMove request (spec.md §3/§4.2.6).
func (c *Client) MoveItems(ctx context.Context, messageID, srcFolderID, dstFolderID string) (store.ExitStatus, error) {
	body := wbxml.BuildMoveItems(messageID, srcFolderID, dstFolderID)
	resp, exit, err := c.post(ctx, "MoveItems", body, wbxmlContentType)
	if err != nil {
		return exit, err
	}
	resp.Close()
	return store.ExitDone, nil
}

// MeetingResponse performs a MeetingResponse request (spec.md §3/§4.2.6).
func (c *Client) MeetingResponse(ctx context.Context, messageID, collectionID string, kind wbxml.MeetingResponseKind) (store.ExitStatus, error) {
	body := wbxml.BuildMeetingResponse(messageID, collectionID, kind)
	resp, exit, err := c.post(ctx, "MeetingResponse", body, wbxmlContentType)
	if err != nil {
		return exit, err
	}
	resp.Close()
	return store.ExitDone, nil
}

// SendMail posts an outgoing message as message/rfc822
// (SPEC_FULL.md §4.2 SendMail supplement).
func (c *Client) SendMail(ctx context.Context, rfc822 []byte) (store.ExitStatus, error) {
	resp, exit, err := c.postRaw(ctx, "SendMail&SaveInSent=T", rfc822, "message/rfc822")
	if err != nil {
		return exit, err
	}
	resp.Close()
	return store.ExitDone, nil
}

// GetAttachment streams an attachment body to w in 16 KiB chunks, invoking
// progress after each chunk with an integer percent (spec.md §4.2.6).
// When the content length is unknown, progress is called with -1.
func (c *Client) GetAttachment(ctx context.Context, location string, w io.Writer, progress func(percent int)) (store.ExitStatus, error) {
	const chunkSize = 16 * 1024

	rawURL := c.composer.CommandURL("GetAttachment") + "&AttachmentName=" + location
	req, err := c.newRequest(ctx, http.MethodGet, rawURL, "", nil)
	if err != nil {
		return store.ExitException, err
	}

	resp, err := c.transport.Do(req)
	if err != nil {
		return store.ExitIOError, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return store.ExitIOError, fmt.Errorf("attachment not found")
	}
	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp.StatusCode), fmt.Errorf("GetAttachment returned %d", resp.StatusCode)
	}

	total := resp.ContentLength
	var written int64
	buf := make([]byte, chunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return store.ExitIOError, err
			}
			written += int64(n)
			if progress != nil {
				if total > 0 {
					progress(int(written * 100 / total))
				} else {
					progress(-1)
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return store.ExitIOError, readErr
		}
	}
	if progress != nil && total > 0 {
		progress(100)
	}
	return store.ExitDone, nil
}

func (c *Client) post(ctx context.Context, cmd string, body []byte, contentType string) (io.ReadCloser, store.ExitStatus, error) {
	return c.postRaw(ctx, cmd, body, contentType)
}

func (c *Client) postRaw(ctx context.Context, cmd string, body []byte, contentType string) (io.ReadCloser, store.ExitStatus, error) {
	rawURL := c.composer.CommandURL(firstToken(cmd))
	if extra := cmd[len(firstToken(cmd)):]; extra != "" {
		rawURL += extra
	}

	req, err := c.newRequest(ctx, http.MethodPost, rawURL, contentType, newByteReader(body))
	if err != nil {
		return nil, store.ExitException, err
	}
	req.ContentLength = int64(len(body))

	resp, err := c.transport.Do(req)
	if err != nil {
		return nil, store.ExitIOError, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, classifyStatus(resp.StatusCode), fmt.Errorf("%s returned %d", firstToken(cmd), resp.StatusCode)
	}
	return resp.Body, store.ExitDone, nil
}

func firstToken(cmd string) string {
	if i := strings.IndexByte(cmd, '&'); i >= 0 {
		return cmd[:i]
	}
	return cmd
}

func newByteReader(b []byte) io.Reader {
	return strings.NewReader(string(b))
}
