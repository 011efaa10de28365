package orchestrator

import "github.com/hkdb/aerion-eas/internal/eas"

// enqueueFor routes req to mailboxID's worker, starting one if none is
// registered (spec.md §4.1's loadAttachment/moveMessage/sendMeetingResponse:
// "route a Request to the owning mailbox's worker, starting a worker if
// none").
func (o *Orchestrator) enqueueFor(mailboxID string, req eas.Request) {
	o.requestWorker(mailboxID, "REQUEST")
	if h, ok := o.registry.get(mailboxID); ok {
		h.worker.Enqueue(req)
	}
}

// LoadAttachment implements spec.md §4.1's loadAttachment operation.
func (o *Orchestrator) LoadAttachment(mailboxID, messageID, attachmentID, destPath string) {
	o.enqueueFor(mailboxID, eas.Request{
		Kind:         eas.RequestAttachmentLoad,
		MessageID:    messageID,
		AttachmentID: attachmentID,
		DestPath:     destPath,
	})
}

// MoveMessage implements spec.md §4.1's moveMessage operation.
func (o *Orchestrator) MoveMessage(mailboxID, messageID, targetMailboxID string) {
	o.enqueueFor(mailboxID, eas.Request{
		Kind:            eas.RequestMessageMove,
		MessageID:       messageID,
		TargetMailboxID: targetMailboxID,
	})
}

// SendMeetingResponse implements spec.md §4.1's sendMeetingResponse operation.
func (o *Orchestrator) SendMeetingResponse(mailboxID, messageID string, response eas.MeetingResponseKind) {
	o.enqueueFor(mailboxID, eas.Request{
		Kind:      eas.RequestMeetingResponse,
		MessageID: messageID,
		Response:  response,
	})
}
