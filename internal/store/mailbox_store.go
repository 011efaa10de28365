package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup finds no matching row.
var ErrNotFound = errors.New("not found")

// MailboxStore provides CRUD access to the mailboxes table.
type MailboxStore struct {
	db *sql.DB
}

// NewMailboxStore wraps a database handle.
func NewMailboxStore(db *sql.DB) *MailboxStore {
	return &MailboxStore{db: db}
}

// Create inserts a mailbox, assigning an id if unset.
func (s *MailboxStore) Create(m *Mailbox) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.SyncKey == "" {
		m.SyncKey = "0"
	}

	_, err := s.db.Exec(`
		INSERT INTO mailboxes (id, account_id, server_id, display_name, type,
			sync_interval, sync_key, last_sync_at, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.AccountID, m.ServerID, m.DisplayName, string(m.Type),
		int(m.SyncInterval), m.SyncKey, m.LastSyncAt, m.SyncStatus,
	)
	if err != nil {
		return fmt.Errorf("creating mailbox: %w", err)
	}
	return nil
}

// Get retrieves a single mailbox by id.
func (s *MailboxStore) Get(id string) (*Mailbox, error) {
	row := s.db.QueryRow(mailboxSelect+" WHERE id = ?", id)
	return scanMailbox(row)
}

// ListByAccount returns every mailbox for an account, ordered by id
// (spec.md §4.1.2: "ordered by id").
func (s *MailboxStore) ListByAccount(accountID string) ([]*Mailbox, error) {
	rows, err := s.db.Query(mailboxSelect+" WHERE account_id = ? ORDER BY id", accountID)
	if err != nil {
		return nil, fmt.Errorf("listing mailboxes: %w", err)
	}
	defer rows.Close()
	return scanMailboxRows(rows)
}

// ListSyncable returns every mailbox across all accounts eligible for the
// scheduler: sync interval != NEVER, plus all OUTBOXes (spec.md §4.1.2).
func (s *MailboxStore) ListSyncable() ([]*Mailbox, error) {
	rows, err := s.db.Query(mailboxSelect+`
		WHERE sync_interval != ? OR type = ?
		ORDER BY id`, int(IntervalNever), string(MailboxOutbox))
	if err != nil {
		return nil, fmt.Errorf("listing syncable mailboxes: %w", err)
	}
	defer rows.Close()
	return scanMailboxRows(rows)
}

// AccountMailbox returns the hidden ACCOUNT-type mailbox for an account.
func (s *MailboxStore) AccountMailbox(accountID string) (*Mailbox, error) {
	row := s.db.QueryRow(mailboxSelect+" WHERE account_id = ? AND type = ?", accountID, string(MailboxAccount))
	return scanMailbox(row)
}

// UpdateSyncKey persists the mailbox's collection sync key.
func (s *MailboxStore) UpdateSyncKey(id, syncKey string) error {
	_, err := s.db.Exec("UPDATE mailboxes SET sync_key = ? WHERE id = ?", syncKey, id)
	return err
}

// UpdateSyncInterval changes a mailbox's scheduling policy, used by
// updateFolderList (PUSH/PING -> PUSH_HOLD) and the spurious-change defense
// (spec.md §4.2.5, §4.1's updateFolderList operation).
func (s *MailboxStore) UpdateSyncInterval(id string, interval SyncInterval) error {
	_, err := s.db.Exec("UPDATE mailboxes SET sync_interval = ? WHERE id = ?", int(interval), id)
	return err
}

// FlipPushHoldToPush flips every PUSH_HOLD mailbox of an account back to
// PUSH, as required after a successful FolderSync (spec.md §4.2.2).
func (s *MailboxStore) FlipPushHoldToPush(accountID string) error {
	_, err := s.db.Exec(
		"UPDATE mailboxes SET sync_interval = ? WHERE account_id = ? AND sync_interval = ?",
		int(IntervalPush), accountID, int(IntervalPushHold),
	)
	return err
}

// HoldAllPushable flips every PUSH/PING mailbox of an account to PUSH_HOLD,
// used by updateFolderList (spec.md §4.1 public operations).
func (s *MailboxStore) HoldAllPushable(accountID string) error {
	_, err := s.db.Exec(
		"UPDATE mailboxes SET sync_interval = ? WHERE account_id = ? AND sync_interval IN (?, ?)",
		int(IntervalPushHold), accountID, int(IntervalPush), int(IntervalPing),
	)
	return err
}

// RecordSyncResult updates last_sync_at and the encoded sync_status string
// after a worker completes (spec.md §6 persistent state layout).
func (s *MailboxStore) RecordSyncResult(id string, t MailboxType, exit ExitStatus, changeCount int) error {
	now := time.Now()
	_, err := s.db.Exec(
		"UPDATE mailboxes SET last_sync_at = ?, sync_status = ? WHERE id = ?",
		now, EncodeSyncStatus(t, exit, changeCount), id,
	)
	return err
}

const mailboxSelect = `
	SELECT id, account_id, server_id, display_name, type, sync_interval,
	       sync_key, last_sync_at, sync_status, created_at
	FROM mailboxes`

func scanMailbox(row rowScanner) (*Mailbox, error) {
	var m Mailbox
	var mtype string
	var interval int
	var lastSync sql.NullTime
	if err := row.Scan(
		&m.ID, &m.AccountID, &m.ServerID, &m.DisplayName, &mtype, &interval,
		&m.SyncKey, &lastSync, &m.SyncStatus, &m.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning mailbox: %w", err)
	}
	m.Type = MailboxType(mtype)
	m.SyncInterval = SyncInterval(interval)
	if lastSync.Valid {
		t := lastSync.Time
		m.LastSyncAt = &t
	}
	return &m, nil
}

func scanMailboxRows(rows *sql.Rows) ([]*Mailbox, error) {
	var out []*Mailbox
	for rows.Next() {
		m, err := scanMailbox(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
