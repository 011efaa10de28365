package eas

import "github.com/hkdb/aerion-eas/internal/store"

// Back-off intervals from spec.md §4.2.5.
const (
	spuriousBackoffInboxMinutes = 5
	spuriousBackoffPIMMinutes   = 30
)

// SpuriousChangeDefense implements spec.md §4.2.5: some servers falsely
// report a folder changed in a Ping when nothing actually changed. This
// tracks a per-folder false-positive counter across Ping iterations of one
// account-mailbox worker.
//
// spec.md's literal wording gates the counter on "its type is PING", but
// store.Mailbox.Type's enum (spec.md §3) has no PING value — PING is a
// sync-interval sentinel, not a mailbox type. Since this detail isn't one
// of spec.md §9's three listed Open Questions, it is resolved (not
// guessed) here by the only self-consistent reading: the gate is the
// mailbox's Ping-eligible *interval* set from spec.md §4.2.3
// ("interval in {PUSH, PING}"), not its content type. See DESIGN.md.
type SpuriousChangeDefense struct {
	counts map[string]int
}

// NewSpuriousChangeDefense returns an empty tracker.
func NewSpuriousChangeDefense() *SpuriousChangeDefense {
	return &SpuriousChangeDefense{counts: make(map[string]int)}
}

// Observe records one Ping-reported change for mailboxID with the given
// current sync interval and decoded sync_status change-count. It returns
// true once the folder should be backed off (counter exceeded 1).
func (d *SpuriousChangeDefense) Observe(mailboxID string, interval store.SyncInterval, changeCount int) bool {
	if interval != store.IntervalPush && interval != store.IntervalPing {
		return false
	}

	if changeCount > 0 {
		delete(d.counts, mailboxID)
		return false
	}

	d.counts[mailboxID]++
	return d.counts[mailboxID] > 1
}

// BackoffInterval returns the interval to apply when Observe returns true,
// per spec.md §4.2.5: "5 min (INBOX) or 30 min (PIM)".
func BackoffInterval(mailboxType store.MailboxType) store.SyncInterval {
	if mailboxType == store.MailboxInbox {
		return store.SyncInterval(spuriousBackoffInboxMinutes)
	}
	return store.SyncInterval(spuriousBackoffPIMMinutes)
}
