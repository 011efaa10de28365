// Package control implements the local-process surface replacing the
// Android Binder/broadcast layer spec.md §6 describes: a callback fan-out
// registry feeding any number of subscribers, backed by a bounded cache of
// last-known status per entity, plus a minimal read-only HTTP status
// endpoint (status.go).
//
// Grounded on app/background.go's wails-event-emission fan-out pattern,
// decoupled from Wails entirely since this is a headless daemon.
package control

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hkdb/aerion-eas/internal/eas"
)

// statusCacheSize bounds the last-known-status cache so a daemon that has
// handled thousands of attachments/mailboxes over its lifetime doesn't
// grow that cache unbounded — the same "hot identities, bounded memory"
// tradeoff golang-lru's own docs describe, reused here for status lookups
// rather than remote-identity lookups (grounded on
// webitel-im-delivery-service's internal/service/peer_enricher.go, which
// wires the identical lru.Cache[string, T] shape for its own hot-identity
// cache).
const statusCacheSize = 4096

// Subscriber receives every callback event the orchestrator reports.
type Subscriber interface {
	AttachmentStatus(messageID, attachmentID string, status eas.StatusCode, progressPercent int)
	SendStatus(accountID string, status eas.StatusCode)
	MailboxListStatus(accountID string, status eas.StatusCode)
	MailboxSyncStatus(mailboxID string, status eas.StatusCode, progressPercent int)
}

// mailboxStatus is the last-known status.go needs to answer status
// queries without going back to the orchestrator or the store.
type mailboxStatus struct {
	Status          eas.StatusCode
	ProgressPercent int
}

// Notifier fans callback events out to subscribers and caches the
// last-known mailbox/account status for the HTTP status endpoint. It
// satisfies orchestrator.Notifier.
type Notifier struct {
	mu          sync.RWMutex
	subscribers []Subscriber

	mailboxStatus *lru.Cache[string, mailboxStatus]
	accountStatus *lru.Cache[string, eas.StatusCode]
}

// New builds an empty Notifier.
func New() *Notifier {
	mboxCache, _ := lru.New[string, mailboxStatus](statusCacheSize)
	acctCache, _ := lru.New[string, eas.StatusCode](statusCacheSize)
	return &Notifier{mailboxStatus: mboxCache, accountStatus: acctCache}
}

// Subscribe registers sub to receive future events. Returns an unsubscribe
// func.
func (n *Notifier) Subscribe(sub Subscriber) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscribers = append(n.subscribers, sub)
	idx := len(n.subscribers) - 1

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if idx < len(n.subscribers) {
			n.subscribers = append(n.subscribers[:idx], n.subscribers[idx+1:]...)
		}
	}
}

func (n *Notifier) snapshot() []Subscriber {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Subscriber, len(n.subscribers))
	copy(out, n.subscribers)
	return out
}

// AttachmentStatus implements orchestrator.Notifier.
func (n *Notifier) AttachmentStatus(messageID, attachmentID string, status eas.StatusCode, progressPercent int) {
	for _, sub := range n.snapshot() {
		sub.AttachmentStatus(messageID, attachmentID, status, progressPercent)
	}
}

// SendStatus implements orchestrator.Notifier.
func (n *Notifier) SendStatus(accountID string, status eas.StatusCode) {
	n.accountStatus.Add(accountID, status)
	for _, sub := range n.snapshot() {
		sub.SendStatus(accountID, status)
	}
}

// MailboxListStatus implements orchestrator.Notifier.
func (n *Notifier) MailboxListStatus(accountID string, status eas.StatusCode) {
	n.accountStatus.Add(accountID, status)
	for _, sub := range n.snapshot() {
		sub.MailboxListStatus(accountID, status)
	}
}

// MailboxSyncStatus implements orchestrator.Notifier.
func (n *Notifier) MailboxSyncStatus(mailboxID string, status eas.StatusCode, progressPercent int) {
	n.mailboxStatus.Add(mailboxID, mailboxStatus{Status: status, ProgressPercent: progressPercent})
	for _, sub := range n.snapshot() {
		sub.MailboxSyncStatus(mailboxID, status, progressPercent)
	}
}

// LastMailboxStatus returns the most recently recorded status for a
// mailbox, for the status HTTP endpoint.
func (n *Notifier) LastMailboxStatus(mailboxID string) (status eas.StatusCode, progressPercent int, ok bool) {
	v, ok := n.mailboxStatus.Get(mailboxID)
	if !ok {
		return 0, 0, false
	}
	return v.Status, v.ProgressPercent, true
}

// LastAccountStatus returns the most recently recorded status for an
// account, for the status HTTP endpoint.
func (n *Notifier) LastAccountStatus(accountID string) (status eas.StatusCode, ok bool) {
	v, ok := n.accountStatus.Get(accountID)
	return v, ok
}

func statusCodeLabel(s eas.StatusCode) string {
	switch s {
	case eas.StatusInProgress:
		return "IN_PROGRESS"
	case eas.StatusSuccess:
		return "SUCCESS"
	case eas.StatusConnectionError:
		return "CONNECTION_ERROR"
	case eas.StatusLoginFailed:
		return "LOGIN_FAILED"
	case eas.StatusMessageNotFound:
		return "MESSAGE_NOT_FOUND"
	case eas.StatusAccountUninitialized:
		return "ACCOUNT_UNINITIALIZED"
	case eas.StatusRemoteException:
		return "REMOTE_EXCEPTION"
	default:
		return "UNKNOWN"
	}
}
