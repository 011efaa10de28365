// Package orchestrator hosts the single scheduling loop described in
// spec.md §4.1: the worker registry, sync-error map, wake-lock/alarm set,
// cached account list, and connectivity gate, plus the public operations
// (startSync, stopSync, loadAttachment, moveMessage, sendMeetingResponse,
// updateFolderList, hostChanged, kick) that mutate them.
//
// Grounded on the teacher's internal/sync/scheduler.go: a struct holding a
// context+cancel, a goroutine-group, a running/runningMu guard, and a
// select-loop goroutine, generalized from "one IMAP account, one INBOX"
// to "every syncable mailbox across every EAS account."
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/hkdb/aerion-eas/internal/credentials"
	"github.com/hkdb/aerion-eas/internal/eas"
	"github.com/hkdb/aerion-eas/internal/logging"
	"github.com/hkdb/aerion-eas/internal/platform"
	"github.com/hkdb/aerion-eas/internal/store"
	"github.com/hkdb/aerion-eas/internal/transport"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Notifier receives the same progress events a Worker reports to the
// orchestrator, fanned back out to external subscribers (internal/control's
// job; the orchestrator only needs the single fan-out point).
type Notifier interface {
	AttachmentStatus(messageID, attachmentID string, status eas.StatusCode, progressPercent int)
	SendStatus(accountID string, status eas.StatusCode)
	MailboxListStatus(accountID string, status eas.StatusCode)
	MailboxSyncStatus(mailboxID string, status eas.StatusCode, progressPercent int)
}

// Options configures an Orchestrator at construction time.
type Options struct {
	Accounts  *store.AccountStore
	Mailboxes *store.MailboxStore
	Transport *transport.Manager
	Credentials *credentials.Store

	Network   platform.NetworkMonitor
	SleepWake platform.SleepWakeMonitor
	Power     platform.PowerMonitor

	Notifier Notifier

	AttachDir        string
	AllowInsecureTLS bool

	// AutoSyncContacts/AutoSyncCalendar replace the Android AccountManager
	// per-authority auto-sync flags spec.md §4.1.2 gates CONTACTS/CALENDAR
	// mailboxes on; this daemon has no account-manager equivalent, so they
	// collapse to two daemon-wide switches (see DESIGN.md).
	AutoSyncContacts bool
	AutoSyncCalendar bool
	BackgroundData   bool

	CheckInterval time.Duration
}

// Orchestrator is the process-wide scheduler described above.
type Orchestrator struct {
	accounts    *store.AccountStore
	mailboxes   *store.MailboxStore
	transport   *transport.Manager
	credentials *credentials.Store
	notifier    Notifier

	attachDir        string
	allowInsecureTLS bool
	autoSyncContacts bool
	autoSyncCalendar bool
	backgroundData   bool
	checkInterval    time.Duration

	conn     *connectivity
	registry *registry

	syncErrors *syncErrorMap

	accountsMu   sync.RWMutex
	accountsByID map[string]*store.Account

	clientsMu sync.Mutex
	clients   map[string]*eas.Client

	upsyncMu      sync.Mutex
	upsyncPending []string
	upsyncTimer   *time.Timer

	kickCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	// wg supervises every goroutine this Orchestrator owns (the scheduling
	// loop and every Worker), grounded on peer_enricher.go's errgroup-based
	// fan-out and generalized from "wait for two concurrent lookups" to
	// "wait for the loop plus however many workers are currently running."
	// Deliberately a bare *errgroup.Group, not errgroup.WithContext: one
	// worker's exit must never cancel its siblings. Worker.Run already
	// recovers its own panics (spec.md §7), so errgroup's error return is
	// unused today, but it is the structured form of "wait for a set of
	// goroutines" the rest of the pack reaches for over a raw WaitGroup.
	wg *errgroup.Group

	running   bool
	runningMu sync.Mutex

	log zerolog.Logger
}

// New builds an Orchestrator. Call Start to launch its scheduling loop.
func New(opts Options) *Orchestrator {
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = time.Minute
	}
	return &Orchestrator{
		accounts:         opts.Accounts,
		mailboxes:        opts.Mailboxes,
		transport:        opts.Transport,
		credentials:      opts.Credentials,
		notifier:         opts.Notifier,
		attachDir:        opts.AttachDir,
		allowInsecureTLS: opts.AllowInsecureTLS,
		autoSyncContacts: opts.AutoSyncContacts,
		autoSyncCalendar: opts.AutoSyncCalendar,
		backgroundData:   opts.BackgroundData,
		checkInterval:    opts.CheckInterval,
		conn:             newConnectivity(opts.Network, opts.SleepWake, opts.Power),
		registry:         newRegistry(),
		syncErrors:       newSyncErrorMap(),
		accountsByID:     make(map[string]*store.Account),
		clients:          make(map[string]*eas.Client),
		kickCh:           make(chan struct{}, 1),
		log:              logging.WithComponent("orchestrator"),
	}
}

// Start launches the scheduling loop goroutine (spec.md §4.1.1).
func (o *Orchestrator) Start(ctx context.Context) {
	o.runningMu.Lock()
	defer o.runningMu.Unlock()
	if o.running {
		return
	}

	o.ctx, o.cancel = context.WithCancel(ctx)
	o.running = true
	o.wg = &errgroup.Group{}

	o.reconcileAccounts()
	o.startConnectivityWatchers(o.ctx)

	o.wg.Go(func() error {
		o.run()
		return nil
	})

	o.log.Info().Msg("orchestrator started")
}

// Stop cancels the loop, stops every running worker, and waits for
// everything to unwind.
func (o *Orchestrator) Stop() {
	o.runningMu.Lock()
	defer o.runningMu.Unlock()
	if !o.running {
		return
	}

	for _, h := range o.registry.all() {
		h.worker.Stop()
	}

	if o.conn.power != nil {
		if err := o.conn.power.Close(); err != nil {
			o.log.Warn().Err(err).Msg("closing power monitor failed")
		}
	}

	o.cancel()
	_ = o.wg.Wait()
	o.running = false

	o.log.Info().Msg("orchestrator stopped")
}

// Kick implements spec.md §4.1's kick(reason): wake the loop without
// changing state. Also satisfies eas.Callbacks so a Worker can call it
// directly (spec.md §4.2.5's spurious-change backoff kick).
func (o *Orchestrator) Kick(reason string) {
	select {
	case o.kickCh <- struct{}{}:
	default:
	}
	o.log.Debug().Str("reason", reason).Msg("kick")
}

// run is the scheduling loop (spec.md §4.1.1).
func (o *Orchestrator) run() {
	for {
		if !o.conn.isConnected() {
			for _, h := range o.registry.all() {
				h.worker.Stop()
			}
			waitCtx, cancel := context.WithTimeout(o.ctx, 10*time.Minute+5*time.Second)
			connected := o.conn.waitForConnection(waitCtx)
			cancel()
			if o.ctx.Err() != nil {
				return
			}
			if connected {
				o.releaseSyncHolds("IO", "")
			}
			continue
		}

		result := o.checkMailboxes()

		var timer *time.Timer
		if result.nextWait > 10*time.Second {
			timer = time.NewTimer(result.nextWait + 3*time.Second)
		} else {
			timer = time.NewTimer(result.nextWait)
		}

		select {
		case <-o.ctx.Done():
			timer.Stop()
			return
		case <-o.kickCh:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// autoSyncEnabled implements spec.md §4.1.2's CONTACTS/CALENDAR auto-sync
// gate (see Options.AutoSyncContacts/AutoSyncCalendar above).
func (o *Orchestrator) autoSyncEnabled(acc *store.Account, m *store.Mailbox) bool {
	switch m.Type {
	case store.MailboxContacts:
		return o.autoSyncContacts
	case store.MailboxCalendar:
		return o.autoSyncCalendar
	default:
		return true
	}
}

func (o *Orchestrator) backgroundDataEnabled() bool { return o.backgroundData }

func (o *Orchestrator) pendingAlarm(mailboxID string) (time.Time, bool) {
	return o.conn.pendingAlarm(mailboxID)
}

// releaseSyncHolds implements spec.md §4.1.4's releaseSyncHolds(reason,
// account?) and kicks the loop afterward.
func (o *Orchestrator) releaseSyncHolds(reason, account string) {
	o.syncErrors.release(reason, o.mailboxAccountIndex(), account)
	o.Kick("released sync holds: " + reason)
}

func (o *Orchestrator) mailboxAccountIndex() map[string]string {
	index := make(map[string]string)
	for _, acc := range o.accountCache() {
		mailboxes, err := o.mailboxes.ListByAccount(acc.ID)
		if err != nil {
			continue
		}
		for _, m := range mailboxes {
			index[m.ID] = acc.ID
		}
	}
	return index
}

// StartSync implements spec.md §4.1's startSync(mailboxId, reason).
func (o *Orchestrator) StartSync(mailboxID, reason string) {
	m, err := o.mailboxes.Get(mailboxID)
	if err != nil {
		o.log.Warn().Err(err).Str("mailbox", mailboxID).Msg("startSync: mailbox lookup failed")
		return
	}

	switch m.Type {
	case store.MailboxOutbox:
		o.Kick("OUTBOX sync requested: " + reason)
		return
	case store.MailboxDrafts, store.MailboxTrash:
		o.MailboxSyncStatus(mailboxID, eas.StatusInProgress, 0)
		o.MailboxSyncStatus(mailboxID, eas.StatusSuccess, 100)
		return
	}

	o.syncErrors.onExit(mailboxID, store.ExitDone) // drop any existing SyncError
	o.requestWorker(mailboxID, reason)
}

// StartManualSync is the Worker-facing half of startSync, used by Ping's
// startManualSync(mailboxId, PING) and the upsync alarm.
func (o *Orchestrator) StartManualSync(mailboxID, reason string) {
	o.StartSync(mailboxID, reason)
}

// StopSync implements spec.md §4.1's stopSync(mailboxId).
func (o *Orchestrator) StopSync(mailboxID string) {
	if h, ok := o.registry.get(mailboxID); ok {
		h.worker.Stop()
	}
}

// UpdateFolderList implements spec.md §4.1's updateFolderList(accountId).
func (o *Orchestrator) UpdateFolderList(accountID string) {
	accMailbox, err := o.mailboxes.AccountMailbox(accountID)
	if err != nil {
		o.log.Warn().Err(err).Str("account", accountID).Msg("updateFolderList: account mailbox lookup failed")
		return
	}

	// Stop every per-folder worker of the account, keeping the
	// account-mailbox worker running (spec.md §4.1 updateFolderList).
	index := o.mailboxAccountIndex()
	for mailboxID, h := range o.registry.snapshot() {
		if mailboxID == accMailbox.ID {
			continue
		}
		if index[mailboxID] == accountID {
			h.worker.Stop()
		}
	}

	if err := o.mailboxes.HoldAllPushable(accountID); err != nil {
		o.log.Warn().Err(err).Str("account", accountID).Msg("updateFolderList: holding pushable mailboxes failed")
	}
	o.Kick("folder list updated: " + accountID)
}

// HostChanged implements spec.md §4.1's hostChanged(accountId).
func (o *Orchestrator) HostChanged(accountID string) {
	o.syncErrors.clearAccount(o.mailboxAccountIndex(), accountID)

	for mailboxID, h := range o.registry.snapshot() {
		if o.mailboxAccountIndex()[mailboxID] == accountID {
			h.worker.Stop()
		}
	}

	o.clientsMu.Lock()
	delete(o.clients, accountID)
	o.clientsMu.Unlock()

	o.Kick("host changed: " + accountID)
}

// AttachmentStatus satisfies eas.Callbacks, fanning out to the notifier.
func (o *Orchestrator) AttachmentStatus(messageID, attachmentID string, status eas.StatusCode, progressPercent int) {
	if o.notifier != nil {
		o.notifier.AttachmentStatus(messageID, attachmentID, status, progressPercent)
	}
}

// SendStatus satisfies eas.Callbacks, fanning out to the notifier.
func (o *Orchestrator) SendStatus(accountID string, status eas.StatusCode) {
	if o.notifier != nil {
		o.notifier.SendStatus(accountID, status)
	}
}

// MailboxListStatus satisfies eas.Callbacks, fanning out to the notifier.
func (o *Orchestrator) MailboxListStatus(accountID string, status eas.StatusCode) {
	if o.notifier != nil {
		o.notifier.MailboxListStatus(accountID, status)
	}
}

// MailboxSyncStatus satisfies eas.Callbacks, fanning out to the notifier.
func (o *Orchestrator) MailboxSyncStatus(mailboxID string, status eas.StatusCode, progressPercent int) {
	if o.notifier != nil {
		o.notifier.MailboxSyncStatus(mailboxID, status, progressPercent)
	}
}
