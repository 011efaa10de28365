package orchestrator

import (
	"context"

	"github.com/hkdb/aerion-eas/internal/eas"
	"github.com/hkdb/aerion-eas/internal/store"
	"github.com/hkdb/aerion-eas/internal/transport"
)

// requestWorker is startSync/checkMailboxes' entry point for "a worker
// should exist for this mailbox." It is a no-op if one is already
// registered and alive.
func (o *Orchestrator) requestWorker(mailboxID, reason string) {
	if _, ok := o.registry.get(mailboxID); ok {
		return
	}
	o.startWorker(mailboxID, reason)
}

// startWorker implements spec.md §4.1.3: requires connectivity, creates
// exactly one Worker, registers it, acquires its wake-lock, starts its
// goroutine, and — if this isn't the account-mailbox — wakes the
// account-mailbox's own worker out of its current Ping.
func (o *Orchestrator) startWorker(mailboxID, reason string) {
	if !o.conn.isConnected() {
		return
	}

	m, err := o.mailboxes.Get(mailboxID)
	if err != nil {
		o.log.Warn().Err(err).Str("mailbox", mailboxID).Msg("startWorker: loading mailbox failed")
		return
	}
	acc, ok := o.accountCache()[m.AccountID]
	if !ok {
		o.log.Warn().Str("mailbox", mailboxID).Msg("startWorker: unknown account")
		return
	}

	client := o.clientFor(acc)
	worker := eas.NewWorker(acc, m, client, eas.Stores{Accounts: o.accounts, Mailboxes: o.mailboxes}, o, o.attachDir)

	ctx, cancel := context.WithCancel(o.ctx)
	done := make(chan struct{})
	handle := &workerHandle{worker: worker, done: done, cancel: cancel}

	if !o.registry.register(mailboxID, handle) {
		cancel()
		return
	}
	o.conn.runAwake(mailboxID)

	o.log.Info().Str("mailbox", mailboxID).Str("reason", reason).Msg("starting worker")

	o.wg.Go(func() error {
		defer close(done)
		defer cancel()

		exit := worker.Run(ctx)

		o.registry.release(mailboxID)
		o.conn.clearAlarm(mailboxID)
		o.syncErrors.onExit(mailboxID, exit)
		if exit == store.ExitDone {
			o.transport.ResetShutdownCounter()
		}
		o.Kick("worker completed: " + mailboxID)
		return nil
	})

	if m.Type != store.MailboxAccount {
		if accMailbox, err := o.mailboxes.AccountMailbox(m.AccountID); err == nil {
			if h, ok := o.registry.get(accMailbox.ID); ok {
				h.worker.Alarm()
			}
		}
	}
}

// fireAlarm releases a worker's scheduled alarm and wakes its Ping loop,
// used by checkMailboxes when a worker's runAsleep deadline has elapsed.
func (o *Orchestrator) fireAlarm(mailboxID string, h *workerHandle) {
	o.conn.clearAlarm(mailboxID)
	h.worker.Alarm()
}

// clientFor returns the shared EAS client for an account, building one on
// first use. Credentials are resolved once and cached on the composer.
func (o *Orchestrator) clientFor(acc *store.Account) *eas.Client {
	o.clientsMu.Lock()
	defer o.clientsMu.Unlock()

	if c, ok := o.clients[acc.ID]; ok {
		return c
	}

	password, err := o.credentials.GetPassword(acc.ID)
	if err != nil {
		o.log.Warn().Err(err).Str("account", acc.ID).Msg("loading account password failed")
	}
	deviceID, err := o.credentials.GetDeviceID()
	if err != nil || deviceID == "" {
		deviceID = "androidc" + acc.ID
	}

	// EAS always runs over HTTPS; o.allowInsecureTLS only controls whether
	// the shared transport.Manager skips certificate verification, not
	// whether TLS is used at all.
	composer := eas.NewURLComposer(acc.Host, acc.Username, password, deviceID, true)
	client := eas.NewClient(o.transportManager(), composer, acc.ProtocolVersion)
	o.clients[acc.ID] = client
	return client
}

func (o *Orchestrator) transportManager() *transport.Manager { return o.transport }
