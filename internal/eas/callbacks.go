package eas

// StatusCode is the status vocabulary for every callback in spec.md §6's
// "callback surface": attachment load, send-message, mailbox-list sync, and
// mailbox sync.
type StatusCode int

const (
	StatusInProgress StatusCode = iota
	StatusSuccess
	StatusConnectionError
	StatusLoginFailed
	StatusMessageNotFound
	StatusAccountUninitialized
	StatusRemoteException
)

// Callbacks is the progress-reporting surface a Worker calls into, and the
// orchestrator operations a Worker needs to trigger on its own behalf
// (spec.md §4.2.4's startManualSync, §4.2.5's kick). Delivered to any number
// of subscribers on the implementation's side; this package only needs the
// fan-out point, not the fan-out itself (spec.md §9: "model as typed events
// on a single bounded channel").
type Callbacks interface {
	// AttachmentStatus reports GetAttachment progress (spec.md §4.3/§4.2.6).
	AttachmentStatus(messageID, attachmentID string, status StatusCode, progressPercent int)
	// SendStatus reports SendMail completion.
	SendStatus(accountID string, status StatusCode)
	// MailboxListStatus reports FolderSync progress for an account.
	MailboxListStatus(accountID string, status StatusCode)
	// MailboxSyncStatus reports Sync-turn progress for one mailbox.
	MailboxSyncStatus(mailboxID string, status StatusCode, progressPercent int)

	// StartManualSync asks the orchestrator to schedule an out-of-band sync
	// for mailboxID, with reason carried through for diagnostics (e.g.
	// "PING" per spec.md §4.2.4).
	StartManualSync(mailboxID, reason string)
	// Kick wakes the orchestrator's scheduling loop without changing state
	// (spec.md §4.1.1's kick(reason)).
	Kick(reason string)
}
