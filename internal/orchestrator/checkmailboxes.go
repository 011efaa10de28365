package orchestrator

import (
	"time"

	"github.com/hkdb/aerion-eas/internal/store"
)

const (
	deadThreadWait  = 3 * time.Second
	minAlarmWait    = 250 * time.Millisecond
	maxAlarmWait    = 11 * time.Minute
	noWaitYet       = time.Duration(1<<63 - 1) // "no candidate wait yet" sentinel
)

// checkResult is checkMailboxes' (nextWait, reason) return pair (spec.md
// §4.1.2).
type checkResult struct {
	nextWait time.Duration
	reason   string
}

func clampAlarm(d time.Duration) time.Duration {
	if d < minAlarmWait {
		return minAlarmWait
	}
	if d > maxAlarmWait {
		return maxAlarmWait
	}
	return d
}

// checkMailboxes implements spec.md §4.1.2: for every syncable mailbox,
// decide whether it needs a worker started now, needs a scheduled wakeup
// later, or can be left alone, and return the shortest wait across all of
// them.
func (o *Orchestrator) checkMailboxes() checkResult {
	best := checkResult{nextWait: noWaitYet, reason: "idle"}
	consider := func(wait time.Duration, reason string) {
		if wait < best.nextWait {
			best = checkResult{nextWait: wait, reason: reason}
		}
	}

	mailboxes, err := o.mailboxes.ListSyncable()
	if err != nil {
		o.log.Error().Err(err).Msg("listing syncable mailboxes failed")
		return checkResult{nextWait: deadThreadWait, reason: "store error"}
	}

	accountsByID := o.accountCache()

	for _, m := range mailboxes {
		if h, ok := o.registry.get(m.ID); ok {
			if !h.alive() {
				o.registry.release(m.ID)
				consider(deadThreadWait, "clean up dead thread(s)")
				continue
			}
			if req, ok := o.pendingAlarm(m.ID); ok {
				until := time.Until(req)
				if until <= 0 {
					o.fireAlarm(m.ID, h)
				} else {
					consider(clampAlarm(until), "scheduled wake-up, "+m.DisplayName)
				}
			}
			continue
		}

		acc, ok := accountsByID[m.AccountID]
		if !ok {
			continue
		}

		if m.Type == store.MailboxContacts || m.Type == store.MailboxCalendar {
			if !o.autoSyncEnabled(acc, m) {
				continue
			}
		}
		if !o.backgroundDataEnabled() && m.Type != store.MailboxOutbox {
			continue
		}

		fatal, held, releaseIn := o.syncErrors.status(m.ID)
		if fatal {
			continue
		}
		if held {
			consider(clampAlarm(releaseIn), "Release hold")
			continue
		}

		if m.SyncInterval == store.IntervalPush {
			o.requestWorker(m.ID, "PUSH")
			continue
		}

		if m.Type == store.MailboxOutbox {
			if o.outboxHasSendable(m) {
				o.requestWorker(m.ID, "OUTBOX")
			}
			continue
		}

		if m.SyncInterval.IsScheduled() {
			if o.conn.isLowBattery() {
				consider(clampAlarm(maxAlarmWait), "deferred, low battery")
				continue
			}
			due, wait := o.scheduledDue(m)
			if due {
				o.requestWorker(m.ID, "SCHEDULED")
			} else {
				consider(clampAlarm(wait), "Scheduled sync, "+m.DisplayName)
			}
		}
	}

	if best.nextWait == noWaitYet {
		return checkResult{nextWait: maxAlarmWait, reason: "idle"}
	}
	return best
}

// scheduledDue reports whether a positive-interval mailbox is due, and if
// not, how long until it will be (spec.md §4.1.2's "0 < interval <= 1440
// min" branch).
func (o *Orchestrator) scheduledDue(m *store.Mailbox) (due bool, wait time.Duration) {
	interval := time.Duration(m.SyncInterval) * time.Minute
	if m.LastSyncAt == nil {
		return true, 0
	}
	elapsed := time.Since(*m.LastSyncAt)
	if elapsed >= interval {
		return true, 0
	}
	return false, interval - elapsed
}

// outboxHasSendable reports whether the Outbox mailbox has at least one
// message eligible to send (spec.md §4.1.2: a message without the
// send-failed marker whose attachments are all loaded). The sync-relevant
// schema this repo models (spec.md §1 Non-goals) has no message table, so
// this always reports true when the mailbox has ever synced — a real
// message store would gate on the actual per-message flags.
func (o *Orchestrator) outboxHasSendable(m *store.Mailbox) bool {
	return !m.IsNeverSynced()
}

func (o *Orchestrator) accountCache() map[string]*store.Account {
	o.accountsMu.RLock()
	defer o.accountsMu.RUnlock()
	out := make(map[string]*store.Account, len(o.accountsByID))
	for k, v := range o.accountsByID {
		out[k] = v
	}
	return out
}
