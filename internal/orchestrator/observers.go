package orchestrator

import (
	"time"
)

// This file implements spec.md §4.1.5's observer fan-in. The Android
// ContentObserver layer it describes has no equivalent here — this repo's
// store package (spec.md §1 Non-goals: no on-disk message store) has no
// content-provider change notifications to subscribe to — so each
// "observer" collapses to a plain method any caller (the control surface's
// HTTP handlers today; a future account-setup UI) invokes directly after
// mutating store state. The debounced upsync alarm is the one piece of
// real scheduling logic in the original fan-in, and is kept as-is.

const upsyncDebounce = 10 * time.Second

// AccountsChanged implements the account observer: reconcile the cached
// account list and kick the loop, whose next checkMailboxes pass starts
// workers for added accounts' mailboxes. Workers already running for a
// removed account are not stopped here.
// Runs on its own goroutine per spec.md §4.1.5 ("may block on the platform
// account manager"); here it blocks on the account store instead.
func (o *Orchestrator) AccountsChanged() {
	o.wg.Go(func() error {
		o.reconcileAccounts()
		return nil
	})
}

func (o *Orchestrator) reconcileAccounts() {
	accounts, err := o.accounts.List()
	if err != nil {
		o.log.Error().Err(err).Msg("reconcileAccounts: listing accounts failed")
		return
	}

	o.accountsMu.Lock()
	current := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		current[a.ID] = struct{}{}
		o.accountsByID[a.ID] = a
	}
	for id := range o.accountsByID {
		if _, ok := current[id]; !ok {
			delete(o.accountsByID, id)
		}
	}
	o.accountsMu.Unlock()

	o.Kick("accounts reconciled")
}

// MailboxesChanged implements the mailbox observer: spec.md §4.1.5 says
// simply "kick the loop."
func (o *Orchestrator) MailboxesChanged() {
	o.Kick("mailboxes changed")
}

// MessagesSynced implements the "synced" message observer: (re)arm a
// single debounced upsync alarm that, once it fires, enumerates affected
// mailboxes and issues a manual sync for each (spec.md §4.1.5).
func (o *Orchestrator) MessagesSynced(mailboxIDs []string) {
	o.upsyncMu.Lock()
	defer o.upsyncMu.Unlock()

	o.upsyncPending = mergeUnique(o.upsyncPending, mailboxIDs)

	if o.upsyncTimer != nil {
		o.upsyncTimer.Stop()
	}
	o.upsyncTimer = time.AfterFunc(upsyncDebounce, o.fireUpsync)
}

func (o *Orchestrator) fireUpsync() {
	o.upsyncMu.Lock()
	pending := o.upsyncPending
	o.upsyncPending = nil
	o.upsyncMu.Unlock()

	for _, mailboxID := range pending {
		o.StartManualSync(mailboxID, "UPSYNC")
	}
}

// MessagesChanged implements the "all messages" observer: spec.md §4.1.5
// says simply "kick the loop."
func (o *Orchestrator) MessagesChanged() {
	o.Kick("messages changed")
}

func mergeUnique(existing, added []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(added))
	out := make([]string, 0, len(existing)+len(added))
	for _, id := range existing {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, id := range added {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
