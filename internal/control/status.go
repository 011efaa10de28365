package control

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hkdb/aerion-eas/internal/logging"
	"github.com/hkdb/aerion-eas/internal/store"
	"github.com/rs/zerolog"
)

// StatusServer serves spec.md §4.7's minimal read-only operational
// surface: GET /status (account list summary) and GET /accounts/{id}
// (one account's mailboxes with last-known sync status). Built on the
// stdlib net/http mux rather than a router framework (e.g. go-chi, seen in
// webitel-im-delivery-service) — the daemon's only external surface is a
// handful of read endpoints with no routing complexity to justify one,
// matching the teacher's main.go philosophy of a small, dependency-light
// entry surface.
type StatusServer struct {
	accounts  *store.AccountStore
	mailboxes *store.MailboxStore
	notifier  *Notifier
	log       zerolog.Logger
}

// NewStatusServer builds a StatusServer.
func NewStatusServer(accounts *store.AccountStore, mailboxes *store.MailboxStore, notifier *Notifier) *StatusServer {
	return &StatusServer{
		accounts:  accounts,
		mailboxes: mailboxes,
		notifier:  notifier,
		log:       logging.WithComponent("control-status"),
	}
}

// Handler returns the configured http.Handler.
func (s *StatusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/accounts/", s.handleAccount)
	return mux
}

type accountSummary struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
	LastStatus   string `json:"lastStatus,omitempty"`
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	summaries := make([]accountSummary, 0, len(accounts))
	for _, a := range accounts {
		sum := accountSummary{ID: a.ID, DisplayName: a.DisplayName, EmailAddress: a.EmailAddress}
		if status, ok := s.notifier.LastAccountStatus(a.ID); ok {
			sum.LastStatus = statusCodeLabel(status)
		}
		summaries = append(summaries, sum)
	}

	writeJSON(w, summaries)
}

type mailboxSummary struct {
	ID              string `json:"id"`
	DisplayName     string `json:"displayName"`
	Type            string `json:"type"`
	SyncStatus      string `json:"syncStatus,omitempty"`
	ProgressPercent int    `json:"progressPercent,omitempty"`
}

func (s *StatusServer) handleAccount(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimPrefix(r.URL.Path, "/accounts/")
	if accountID == "" || strings.Contains(accountID, "/") {
		http.NotFound(w, r)
		return
	}

	mailboxes, err := s.mailboxes.ListByAccount(accountID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	summaries := make([]mailboxSummary, 0, len(mailboxes))
	for _, m := range mailboxes {
		sum := mailboxSummary{ID: m.ID, DisplayName: m.DisplayName, Type: string(m.Type)}
		if status, pct, ok := s.notifier.LastMailboxStatus(m.ID); ok {
			sum.SyncStatus = statusCodeLabel(status)
			sum.ProgressPercent = pct
		}
		summaries = append(summaries, sum)
	}

	writeJSON(w, summaries)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
