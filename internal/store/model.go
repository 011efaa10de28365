// Package store provides the authoritative Account/Mailbox persistence
// layer described in spec.md §3. It is the leaf dependency every other
// package in this repo builds on (spec.md §2 dependency order).
package store

import (
	"strconv"
	"time"
)

// SyncInterval is a Mailbox's sync policy. Positive values are minutes
// (<=1440); the remaining values are the sentinels from spec.md §6.
type SyncInterval int

const (
	// IntervalNever means the mailbox is never synced automatically.
	IntervalNever SyncInterval = -1
	// IntervalPush means the mailbox participates in the account's Ping.
	IntervalPush SyncInterval = -2
	// IntervalPing is a transitional state used by the spurious-change
	// defense (spec.md §4.2.5) to back a folder off from PUSH.
	IntervalPing SyncInterval = -3
	// IntervalPushHold means the mailbox is temporarily excluded from Ping
	// pending the next successful FolderSync (spec.md §4.2.2).
	IntervalPushHold SyncInterval = -4

	// MaxScheduledMinutes is the largest legal positive sync interval.
	MaxScheduledMinutes = 1440
)

// IsScheduled reports whether i is a positive polling interval in minutes.
func (i SyncInterval) IsScheduled() bool {
	return i > 0 && int(i) <= MaxScheduledMinutes
}

// MailboxType enumerates the Mailbox kinds from spec.md §3.
type MailboxType string

const (
	MailboxAccount  MailboxType = "ACCOUNT"
	MailboxInbox    MailboxType = "INBOX"
	MailboxOutbox   MailboxType = "OUTBOX"
	MailboxDrafts   MailboxType = "DRAFTS"
	MailboxTrash    MailboxType = "TRASH"
	MailboxContacts MailboxType = "CONTACTS"
	MailboxCalendar MailboxType = "CALENDAR"
	MailboxSent     MailboxType = "SENT"
	MailboxOther    MailboxType = "OTHER"
)

// typeChar implements the `S<type>:<exit>:<changeCount>` encoding from
// spec.md §6; parsers read type at index 1.
func (t MailboxType) typeChar() byte {
	switch t {
	case MailboxAccount:
		return 'a'
	case MailboxInbox:
		return 'i'
	case MailboxOutbox:
		return 'o'
	case MailboxDrafts:
		return 'd'
	case MailboxTrash:
		return 't'
	case MailboxContacts:
		return 'c'
	case MailboxCalendar:
		return 'l'
	case MailboxSent:
		return 's'
	default:
		return 'x'
	}
}

// ExitStatus is a Worker's terminal state, reported to the orchestrator and
// folded into the mailbox's sync_status column (spec.md §3, §6, §7).
type ExitStatus string

const (
	ExitDone             ExitStatus = "DONE"
	ExitIOError          ExitStatus = "IO_ERROR"
	ExitLoginFailure     ExitStatus = "LOGIN_FAILURE"
	ExitSecurityFailure  ExitStatus = "SECURITY_FAILURE"
	ExitException        ExitStatus = "EXCEPTION"
)

func (e ExitStatus) exitChar() byte {
	switch e {
	case ExitDone:
		return 'D'
	case ExitIOError:
		return 'I'
	case ExitLoginFailure:
		return 'L'
	case ExitSecurityFailure:
		return 'S'
	default:
		return 'E'
	}
}

// EncodeSyncStatus builds the `S<type>:<exit>:<changeCount>` string from
// spec.md §6's persistent-state layout.
func EncodeSyncStatus(t MailboxType, e ExitStatus, changeCount int) string {
	return string([]byte{'S', t.typeChar(), ':', e.exitChar(), ':'}) + strconv.Itoa(changeCount)
}

// DecodeSyncStatus reverses EncodeSyncStatus. Per spec.md §6, "parsers must
// read type from index 1, exit from index 3, change-count starting at
// index 5."
func DecodeSyncStatus(s string) (typeChar, exitChar byte, changeCount int, ok bool) {
	if len(s) < 6 || s[0] != 'S' || s[2] != ':' || s[4] != ':' {
		return 0, 0, 0, false
	}
	n, err := strconv.Atoi(s[5:])
	if err != nil {
		return 0, 0, 0, false
	}
	return s[1], s[3], n, true
}

// Account models spec.md §3's Account entity.
type Account struct {
	ID                  string
	DisplayName         string
	EmailAddress        string
	Host                string
	Username            string
	ProtocolVersion     string // "" until probed; e.g. "2.5", "12.0"
	SyncKey             string // "0" means never-synced
	SyncIntervalPolicy  SyncInterval
	SyncLookbackPolicy  string // spec.md §4.2.6 lookback code: "0".."5"
	FlagIncomplete      bool
	FlagSecurityHold    bool
	CreatedAt           time.Time
}

// Mailbox models spec.md §3's Mailbox entity.
type Mailbox struct {
	ID           string
	AccountID    string
	ServerID     string
	DisplayName  string
	Type         MailboxType
	SyncInterval SyncInterval
	SyncKey      string
	LastSyncAt   *time.Time
	SyncStatus   string
	CreatedAt    time.Time
}

// IsNeverSynced reports whether the mailbox has not completed a first sync,
// per spec.md §3's invariant that a sync key of "0" excludes it from Ping.
func (m *Mailbox) IsNeverSynced() bool {
	return m.SyncKey == "0"
}

// PingEligible reports whether m satisfies spec.md §3's Ping candidacy
// invariant: "a mailbox is a candidate for Ping if its sync interval is
// PUSH, its type is not ACCOUNT, and its sync key is not '0'."
func (m *Mailbox) PingEligible() bool {
	return m.SyncInterval == IntervalPush && m.Type != MailboxAccount && !m.IsNeverSynced()
}
