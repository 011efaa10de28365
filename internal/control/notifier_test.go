package control

import (
	"testing"

	"github.com/hkdb/aerion-eas/internal/eas"
	"github.com/stretchr/testify/assert"
)

type recordingSubscriber struct {
	mailboxStatuses []eas.StatusCode
}

func (r *recordingSubscriber) AttachmentStatus(string, string, eas.StatusCode, int) {}
func (r *recordingSubscriber) SendStatus(string, eas.StatusCode)                    {}
func (r *recordingSubscriber) MailboxListStatus(string, eas.StatusCode)             {}
func (r *recordingSubscriber) MailboxSyncStatus(_ string, status eas.StatusCode, _ int) {
	r.mailboxStatuses = append(r.mailboxStatuses, status)
}

func TestNotifierFansOutToSubscribers(t *testing.T) {
	n := New()
	sub := &recordingSubscriber{}
	n.Subscribe(sub)

	n.MailboxSyncStatus("mbox-1", eas.StatusInProgress, 10)
	n.MailboxSyncStatus("mbox-1", eas.StatusSuccess, 100)

	assert.Equal(t, []eas.StatusCode{eas.StatusInProgress, eas.StatusSuccess}, sub.mailboxStatuses)
}

func TestNotifierUnsubscribeStopsFutureDelivery(t *testing.T) {
	n := New()
	sub := &recordingSubscriber{}
	unsubscribe := n.Subscribe(sub)

	n.MailboxSyncStatus("mbox-1", eas.StatusInProgress, 0)
	unsubscribe()
	n.MailboxSyncStatus("mbox-1", eas.StatusSuccess, 100)

	assert.Equal(t, []eas.StatusCode{eas.StatusInProgress}, sub.mailboxStatuses)
}

func TestNotifierCachesLastMailboxStatus(t *testing.T) {
	n := New()

	_, _, ok := n.LastMailboxStatus("mbox-1")
	assert.False(t, ok, "no status recorded yet")

	n.MailboxSyncStatus("mbox-1", eas.StatusInProgress, 42)
	status, pct, ok := n.LastMailboxStatus("mbox-1")
	assert.True(t, ok)
	assert.Equal(t, eas.StatusInProgress, status)
	assert.Equal(t, 42, pct)

	n.MailboxSyncStatus("mbox-1", eas.StatusSuccess, 100)
	status, pct, ok = n.LastMailboxStatus("mbox-1")
	assert.True(t, ok)
	assert.Equal(t, eas.StatusSuccess, status)
	assert.Equal(t, 100, pct)
}

func TestNotifierCachesLastAccountStatusAcrossBothReportingMethods(t *testing.T) {
	n := New()

	n.SendStatus("acct-1", eas.StatusLoginFailed)
	status, ok := n.LastAccountStatus("acct-1")
	assert.True(t, ok)
	assert.Equal(t, eas.StatusLoginFailed, status)

	n.MailboxListStatus("acct-1", eas.StatusSuccess)
	status, ok = n.LastAccountStatus("acct-1")
	assert.True(t, ok)
	assert.Equal(t, eas.StatusSuccess, status)
}

func TestStatusCodeLabelCoversEveryStatusCode(t *testing.T) {
	cases := map[eas.StatusCode]string{
		eas.StatusInProgress:          "IN_PROGRESS",
		eas.StatusSuccess:             "SUCCESS",
		eas.StatusConnectionError:     "CONNECTION_ERROR",
		eas.StatusLoginFailed:         "LOGIN_FAILED",
		eas.StatusMessageNotFound:     "MESSAGE_NOT_FOUND",
		eas.StatusAccountUninitialized: "ACCOUNT_UNINITIALIZED",
		eas.StatusRemoteException:     "REMOTE_EXCEPTION",
	}
	for code, want := range cases {
		assert.Equal(t, want, statusCodeLabel(code))
	}
	assert.Equal(t, "UNKNOWN", statusCodeLabel(eas.StatusCode(999)))
}
