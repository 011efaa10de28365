package control

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hkdb/aerion-eas/internal/database"
	"github.com/hkdb/aerion-eas/internal/eas"
	"github.com/hkdb/aerion-eas/internal/store"
	"github.com/stretchr/testify/require"
)

func openTestServer(t *testing.T) (*StatusServer, *store.AccountStore, *store.MailboxStore, *Notifier) {
	t.Helper()
	db, err := database.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	accounts := store.NewAccountStore(db.DB)
	mailboxes := store.NewMailboxStore(db.DB)
	notifier := New()
	return NewStatusServer(accounts, mailboxes, notifier), accounts, mailboxes, notifier
}

func TestStatusEndpointListsAccountsWithLastStatus(t *testing.T) {
	srv, accounts, _, notifier := openTestServer(t)

	a := &store.Account{DisplayName: "Work", EmailAddress: "user@example.com", Host: "mail.example.com", Username: "user"}
	require.NoError(t, accounts.Create(a))
	notifier.SendStatus(a.ID, eas.StatusSuccess)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got []accountSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, a.ID, got[0].ID)
	require.Equal(t, "SUCCESS", got[0].LastStatus)
}

func TestAccountEndpointListsMailboxesWithSyncStatus(t *testing.T) {
	srv, accounts, mailboxes, notifier := openTestServer(t)

	a := &store.Account{DisplayName: "Work", EmailAddress: "user@example.com", Host: "mail.example.com", Username: "user"}
	require.NoError(t, accounts.Create(a))
	m := &store.Mailbox{AccountID: a.ID, DisplayName: "Inbox", Type: store.MailboxInbox}
	require.NoError(t, mailboxes.Create(m))
	notifier.MailboxSyncStatus(m.ID, eas.StatusInProgress, 50)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/accounts/"+a.ID, nil)
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got []mailboxSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "IN_PROGRESS", got[0].SyncStatus)
	require.Equal(t, 50, got[0].ProgressPercent)
}

func TestAccountEndpointRejectsNestedPath(t *testing.T) {
	srv, _, _, _ := openTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/accounts/acct-1/extra", nil)
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
