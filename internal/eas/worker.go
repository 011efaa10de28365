package eas

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hkdb/aerion-eas/internal/logging"
	"github.com/hkdb/aerion-eas/internal/store"
	"github.com/hkdb/aerion-eas/internal/transport"
	"github.com/hkdb/aerion-eas/internal/wbxml"
	"github.com/rs/zerolog"
)

// Kind tags a Worker's role, replacing the AbstractSyncService /
// EasSyncService / EasPingService inheritance chain from spec.md §9 with a
// single capability implemented once over a tagged variant.
type Kind int

const (
	KindAccountMailbox Kind = iota
	KindCollectionEmail
	KindCollectionCalendar
	KindCollectionContacts
	KindOutbox
)

func kindForMailbox(t store.MailboxType) Kind {
	switch t {
	case store.MailboxAccount:
		return KindAccountMailbox
	case store.MailboxOutbox:
		return KindOutbox
	case store.MailboxCalendar:
		return KindCollectionCalendar
	case store.MailboxContacts:
		return KindCollectionContacts
	default:
		return KindCollectionEmail
	}
}

const (
	pingOuterDeadline   = 30 * time.Minute
	interPingGuard      = 30 * time.Second
	ioBackoff           = 10 * time.Second
	idleSleep           = 30 * time.Minute
	windowSizeEmail     = 5
	windowSizePIM       = 20
	bodyPreferenceHTML  = 2
	bodyPreferencePlain = 1
	minVersionForBP     = "12.0"
)

// Stores bundles the persistence handles a Worker needs; kept as an
// interface-free struct since internal/store is this repo's own leaf
// package, not an external collaborator (spec.md §2 dependency order).
type Stores struct {
	Accounts  *store.AccountStore
	Mailboxes *store.MailboxStore
}

// Worker performs protocol work for exactly one mailbox, per spec.md §3's
// Worker entity and §4.2.7's state machine. The orchestrator creates
// exactly one per registered mailbox id and destroys it when Run returns.
type Worker struct {
	account *store.Account
	mailbox *store.Mailbox
	kind    Kind

	client    *Client
	stores    Stores
	callbacks Callbacks
	queue     *RequestQueue

	heartbeat *HeartbeatController
	spurious  *SpuriousChangeDefense

	attachDir string

	log zerolog.Logger

	mu         sync.Mutex
	stopped    bool
	cancel     context.CancelFunc
	exitStatus store.ExitStatus
}

// NewWorker builds a Worker bound to one mailbox. attachDir is the
// directory attachment downloads are written under when no destination
// path is supplied (spec.md §4.2.6: "choose a unique suffix if no
// caller-supplied destination").
func NewWorker(account *store.Account, mailbox *store.Mailbox, client *Client, stores Stores, callbacks Callbacks, attachDir string) *Worker {
	return &Worker{
		account:   account,
		mailbox:   mailbox,
		kind:      kindForMailbox(mailbox.Type),
		client:    client,
		stores:    stores,
		callbacks: callbacks,
		queue:     &RequestQueue{},
		heartbeat: NewHeartbeatController(),
		spurious:  NewSpuriousChangeDefense(),
		attachDir: attachDir,
		log:       logging.WithComponent(fmt.Sprintf("worker[%s]", mailbox.ID)),
		exitStatus: store.ExitException,
	}
}

// Enqueue adds a request to this worker's local FIFO (spec.md §4.3).
func (w *Worker) Enqueue(req Request) { w.queue.Enqueue(req) }

// Stop sets the cooperative stop flag and aborts any in-flight HTTP request
// (spec.md §4.2.8).
func (w *Worker) Stop() {
	w.mu.Lock()
	w.stopped = true
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Alarm aborts the current Ping POST without setting the stop flag, so the
// Ping loop re-enumerates folders on its next iteration (spec.md §4.2.8,
// orchestrator->worker alarm used by startWorker's "signal the
// account-mailbox's worker to break out of its Ping").
func (w *Worker) Alarm() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (w *Worker) isStopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

// withCancel installs ctx as the worker's current cancellable operation,
// returning a derived context and a release func the caller must defer.
func (w *Worker) withCancel(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()
	return ctx, func() {
		w.mu.Lock()
		if w.cancel != nil {
			w.cancel()
		}
		w.cancel = nil
		w.mu.Unlock()
	}
}

// ExitStatus returns the worker's terminal status once Run has returned.
func (w *Worker) ExitStatus() store.ExitStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exitStatus
}

func (w *Worker) setExit(e store.ExitStatus) {
	w.mu.Lock()
	w.exitStatus = e
	w.mu.Unlock()
}

// Run drives the state machine from spec.md §4.2.7:
//
//	START -> DISCOVER -> FOLDER_SYNC -> [account: PING_LOOP] |
//	         [collection: DRAIN_REQUESTS -> SYNC_TURN -> (more? SYNC_TURN : DONE)]
//
// Every state checks the stop flag at entry and on blocking boundaries; a
// true value transitions straight to DONE with the last exit status set
// (default EXCEPTION). Run never panics out of its top frame (spec.md §7).
func (w *Worker) Run(ctx context.Context) (exit store.ExitStatus) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error().Interface("panic", r).Msg("worker recovered from panic")
			w.setExit(store.ExitException)
			exit = store.ExitException
		}
	}()

	if w.isStopped() {
		return w.ExitStatus()
	}

	if exit := w.discover(ctx); exit != store.ExitDone {
		w.setExit(exit)
		return exit
	}

	if exit := w.folderSync(ctx); exit != store.ExitDone {
		w.setExit(exit)
		return exit
	}

	if w.kind == KindAccountMailbox {
		exit = w.pingLoop(ctx)
	} else {
		exit = w.collectionLoop(ctx)
	}
	w.setExit(exit)
	return exit
}

// discover implements spec.md §4.2.1.
func (w *Worker) discover(ctx context.Context) store.ExitStatus {
	if w.isStopped() {
		return store.ExitException
	}
	if w.account.ProtocolVersion != "" {
		w.client.SetProtocolVersion(w.account.ProtocolVersion)
		return store.ExitDone
	}

	opCtx, release := w.withCancel(ctx)
	defer release()

	version, exit, err := w.client.DiscoverVersion(opCtx)
	if err != nil {
		if w.isStopped() {
			return store.ExitException
		}
		w.log.Warn().Err(err).Msg("version discovery failed")
		return exit
	}

	w.client.SetProtocolVersion(version)
	w.account.ProtocolVersion = version
	if err := w.stores.Accounts.UpdateProtocolVersion(w.account.ID, version); err != nil {
		w.log.Warn().Err(err).Msg("persisting protocol version failed")
	}
	return store.ExitDone
}

// folderSync implements spec.md §4.2.2, looping while the server reports a
// sync-key-churn resync condition.
func (w *Worker) folderSync(ctx context.Context) store.ExitStatus {
	if w.kind != KindAccountMailbox {
		return store.ExitDone
	}

	w.callbacks.MailboxListStatus(w.account.ID, StatusInProgress)

	syncKey := w.account.SyncKey
	for {
		if w.isStopped() {
			return store.ExitException
		}

		opCtx, release := w.withCancel(ctx)
		result, exit, err := w.client.FolderSync(opCtx, syncKey)
		release()

		if err != nil {
			if exit == store.ExitLoginFailure {
				w.callbacks.MailboxListStatus(w.account.ID, StatusLoginFailed)
				return exit
			}
			// "On other non-200: log and continue to Ping" (spec.md §4.2.2).
			w.log.Warn().Err(err).Msg("FolderSync failed, continuing to Ping")
			w.callbacks.MailboxListStatus(w.account.ID, StatusConnectionError)
			return store.ExitDone
		}

		syncKey = result.SyncKey
		if result.NeedsResync() {
			time.Sleep(ioBackoff)
			continue
		}
		break
	}

	if syncKey != w.account.SyncKey {
		w.account.SyncKey = syncKey
		if err := w.stores.Accounts.UpdateSyncKey(w.account.ID, syncKey); err != nil {
			w.log.Warn().Err(err).Msg("persisting account sync key failed")
		}
	}

	// "After a successful FolderSync, flip all PUSH_HOLD mailboxes in this
	// account to PUSH" (spec.md §4.2.2).
	if err := w.stores.Mailboxes.FlipPushHoldToPush(w.account.ID); err != nil {
		w.log.Warn().Err(err).Msg("flipping PUSH_HOLD mailboxes failed")
	}

	w.callbacks.MailboxListStatus(w.account.ID, StatusSuccess)
	return store.ExitDone
}

// pingLoop implements spec.md §4.2.3/§4.2.4/§4.2.5: the account-mailbox
// worker's long-lived adaptive-heartbeat loop.
func (w *Worker) pingLoop(ctx context.Context) store.ExitStatus {
	for {
		if w.isStopped() {
			return store.ExitException
		}

		deadline := time.Now().Add(pingOuterDeadline)
		for time.Now().Before(deadline) {
			if w.isStopped() {
				return store.ExitException
			}

			folders, err := w.pingEligibleFolders()
			if err != nil {
				w.log.Warn().Err(err).Msg("listing Ping-eligible folders failed")
				time.Sleep(ioBackoff)
				continue
			}
			if len(folders) == 0 {
				time.Sleep(idleSleep)
				continue
			}

			opCtx, release := w.withCancel(ctx)
			result, exit, err := w.client.Ping(opCtx, w.heartbeat.Seconds(), folders)
			release()

			if err != nil {
				if w.isStopped() {
					return store.ExitException
				}
				if ctx.Err() == nil && errors.Is(err, context.Canceled) {
					// Alarm() aborted this Ping without stopping the worker;
					// the next iteration re-enumerates the folders.
					continue
				}
				if transport.IsResetByPeer(err) && w.heartbeat.OnResetByPeer() {
					w.log.Info().Int("heartbeat", w.heartbeat.Seconds()).Msg("NAT timeout, dropping heartbeat")
					continue
				}
				if exit == store.ExitLoginFailure || exit == store.ExitIOError {
					// spec.md §4.2.3 step 4 / §7: an empty body, non-200
					// status, or malformed WBXML must exit the worker so the
					// orchestrator's SyncError hold (spec.md §4.1.4) can
					// back off retries instead of spinning forever in-loop.
					return exit
				}
				w.log.Warn().Err(err).Msg("Ping request failed")
				time.Sleep(ioBackoff)
				continue
			}

			switch result.Status {
			case wbxml.PingStatusCompleted:
				w.heartbeat.OnCompleted()
			case wbxml.PingStatusChangesFound:
				w.handlePingChanges(result.ChangedFolders)
			}

			time.Sleep(interPingGuard)
		}
	}
}

// pingEligibleFolders re-enumerates the account's mailboxes and returns the
// subset satisfying spec.md §3's Ping candidacy invariant, re-read on every
// outer iteration so a startWorker-triggered Alarm() picks up new folders
// immediately (spec.md §4.1.3).
func (w *Worker) pingEligibleFolders() ([]wbxml.PingFolder, error) {
	mailboxes, err := w.stores.Mailboxes.ListByAccount(w.account.ID)
	if err != nil {
		return nil, err
	}

	var folders []wbxml.PingFolder
	for _, m := range mailboxes {
		if !m.PingEligible() {
			continue
		}
		folders = append(folders, wbxml.PingFolder{ID: m.ServerID, Class: classFor(m.Type)})
	}
	return folders, nil
}

// handlePingChanges implements spec.md §4.2.4/§4.2.5: for each changed
// folder id, look up the mailbox, run the spurious-change defense, and
// request a manual sync for folders that pass it.
func (w *Worker) handlePingChanges(changedServerIDs []string) {
	mailboxes, err := w.stores.Mailboxes.ListByAccount(w.account.ID)
	if err != nil {
		w.log.Warn().Err(err).Msg("listing mailboxes for Ping change handling failed")
		return
	}

	byServerID := make(map[string]*store.Mailbox, len(mailboxes))
	for _, m := range mailboxes {
		byServerID[m.ServerID] = m
	}

	for _, serverID := range changedServerIDs {
		m, ok := byServerID[serverID]
		if !ok {
			continue
		}

		_, _, changeCount, ok := store.DecodeSyncStatus(m.SyncStatus)
		if !ok {
			changeCount = -1 // unknown; treat as "real" so we don't wrongly back off
		}

		if w.spurious.Observe(m.ID, m.SyncInterval, changeCount) {
			backoff := BackoffInterval(m.Type)
			if err := w.stores.Mailboxes.UpdateSyncInterval(m.ID, backoff); err != nil {
				w.log.Warn().Err(err).Str("mailbox", m.ID).Msg("applying spurious-change backoff failed")
			}
			w.callbacks.Kick("spurious-change-backoff")
			continue
		}

		w.callbacks.StartManualSync(m.ID, "PING")
	}
}

// collectionLoop implements spec.md §4.2.6/§4.2.7 for a non-account-mailbox
// worker: drain requests, then Sync turns until "more available" is false.
func (w *Worker) collectionLoop(ctx context.Context) store.ExitStatus {
	for {
		if w.isStopped() {
			return store.ExitException
		}

		w.drainRequests(ctx)

		if w.isStopped() {
			return store.ExitException
		}

		more, exit := w.syncTurn(ctx)
		if exit != store.ExitDone {
			if w.isStopped() {
				return store.ExitException
			}
			return exit
		}
		if !more {
			return store.ExitDone
		}
	}
}

// drainRequests implements spec.md §4.2.6's request-queue handling, run
// before every Sync turn.
func (w *Worker) drainRequests(ctx context.Context) {
	for _, req := range w.queue.DrainAll() {
		if w.isStopped() {
			return
		}
		switch req.Kind {
		case RequestAttachmentLoad:
			w.handleAttachmentLoad(ctx, req)
		case RequestMeetingResponse:
			w.handleMeetingResponse(ctx, req)
		case RequestMessageMove:
			w.handleMessageMove(ctx, req)
		}
	}
}

func (w *Worker) handleAttachmentLoad(ctx context.Context, req Request) {
	dest := req.DestPath
	if dest == "" {
		dest = filepath.Join(w.attachDir, uniqueAttachmentName(req.AttachmentID))
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		w.callbacks.AttachmentStatus(req.MessageID, req.AttachmentID, StatusRemoteException, 0)
		return
	}

	f, err := os.Create(dest)
	if err != nil {
		w.callbacks.AttachmentStatus(req.MessageID, req.AttachmentID, StatusRemoteException, 0)
		return
	}
	defer f.Close()

	opCtx, release := w.withCancel(ctx)
	defer release()

	exit, err := w.client.GetAttachment(opCtx, req.AttachmentID, f, func(percent int) {
		w.callbacks.AttachmentStatus(req.MessageID, req.AttachmentID, StatusInProgress, percent)
	})
	if err != nil {
		if exit == store.ExitIOError {
			w.callbacks.AttachmentStatus(req.MessageID, req.AttachmentID, StatusMessageNotFound, 0)
		} else {
			w.callbacks.AttachmentStatus(req.MessageID, req.AttachmentID, StatusConnectionError, 0)
		}
		return
	}
	w.callbacks.AttachmentStatus(req.MessageID, req.AttachmentID, StatusSuccess, 100)
}

func (w *Worker) handleMeetingResponse(ctx context.Context, req Request) {
	opCtx, release := w.withCancel(ctx)
	defer release()
	if _, err := w.client.MeetingResponse(opCtx, req.MessageID, w.mailbox.ServerID, wbxml.MeetingResponseKind(req.Response)); err != nil {
		w.log.Warn().Err(err).Msg("MeetingResponse request failed")
	}
}

func (w *Worker) handleMessageMove(ctx context.Context, req Request) {
	opCtx, release := w.withCancel(ctx)
	defer release()
	if _, err := w.client.MoveItems(opCtx, req.MessageID, w.mailbox.ServerID, req.TargetMailboxID); err != nil {
		w.log.Warn().Err(err).Msg("MoveItems request failed")
	}
}

func uniqueAttachmentName(attachmentID string) string {
	return fmt.Sprintf("%s-%d", attachmentID, time.Now().UnixNano())
}

// syncTurn implements spec.md §4.2.6's document build + POST + loop
// decision for one collection mailbox.
func (w *Worker) syncTurn(ctx context.Context) (more bool, exit store.ExitStatus) {
	w.callbacks.MailboxSyncStatus(w.mailbox.ID, StatusInProgress, 0)

	req := wbxml.SyncCollectionRequest{
		Class:           classFor(w.mailbox.Type),
		SyncKey:         w.mailbox.SyncKey,
		CollectionID:    w.mailbox.ServerID,
		WindowSize:      windowSizeFor(w.mailbox.Type),
		FilterType:      filterTypeFor(w.mailbox.Type, w.account.SyncLookbackPolicy),
		BodyPreference:  bodyPreferenceFor(w.mailbox.Type, w.account.ProtocolVersion),
		MinVersionForBP: minVersionForBP,
	}

	opCtx, release := w.withCancel(ctx)
	result, exit, err := w.client.Sync(opCtx, req)
	release()

	if err != nil {
		if exit == store.ExitLoginFailure {
			w.callbacks.MailboxSyncStatus(w.mailbox.ID, StatusLoginFailed, 0)
		} else {
			w.log.Warn().Err(err).Msg("Sync request failed")
			w.callbacks.MailboxSyncStatus(w.mailbox.ID, StatusConnectionError, 0)
		}
		// Propagate the real exit status instead of collapsing it to DONE:
		// a non-200 response or malformed WBXML body is IO_ERROR (spec.md
		// §4.2.6) and must reach syncErrorMap.onExit so the hold/escalation
		// mechanism (spec.md §4.1.4) actually engages.
		return false, exit
	}

	changeCount := result.ChangeCount
	if result.SyncKey != w.mailbox.SyncKey {
		w.mailbox.SyncKey = result.SyncKey
		if err := w.stores.Mailboxes.UpdateSyncKey(w.mailbox.ID, result.SyncKey); err != nil {
			w.log.Warn().Err(err).Msg("persisting mailbox sync key failed")
		}
	}
	if err := w.stores.Mailboxes.RecordSyncResult(w.mailbox.ID, w.mailbox.Type, store.ExitDone, changeCount); err != nil {
		w.log.Warn().Err(err).Msg("recording sync result failed")
	}

	w.callbacks.MailboxSyncStatus(w.mailbox.ID, StatusSuccess, 100)
	return result.MoreAvailable, store.ExitDone
}

func classFor(t store.MailboxType) string {
	switch t {
	case store.MailboxCalendar:
		return wbxml.ClassCalendar
	case store.MailboxContacts:
		return wbxml.ClassContacts
	default:
		return wbxml.ClassEmail
	}
}

func windowSizeFor(t store.MailboxType) int {
	if t == store.MailboxCalendar || t == store.MailboxContacts {
		return windowSizePIM
	}
	return windowSizeEmail
}

// filterTypeFor maps the account's lookback policy code, except Contacts
// never sends one (spec.md §4.2.6).
func filterTypeFor(t store.MailboxType, lookbackCode string) string {
	if t == store.MailboxContacts {
		return ""
	}
	if lookbackCode == "" {
		return "3"
	}
	return lookbackCode
}

// bodyPreferenceFor is HTML for Email, plain text for Calendar/Contacts,
// and omitted below protocol 12.0 (spec.md §4.2.6).
func bodyPreferenceFor(t store.MailboxType, protocolVersion string) int {
	if protocolVersion != minVersionForBP {
		return 0
	}
	if t == store.MailboxCalendar || t == store.MailboxContacts {
		return bodyPreferencePlain
	}
	return bodyPreferenceHTML
}

