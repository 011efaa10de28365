package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// AccountStore provides CRUD access to the accounts table.
type AccountStore struct {
	db *sql.DB
}

// NewAccountStore wraps a database handle.
func NewAccountStore(db *sql.DB) *AccountStore {
	return &AccountStore{db: db}
}

// Create inserts a new account, assigning it an id if one isn't set.
func (s *AccountStore) Create(a *Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.SyncKey == "" {
		a.SyncKey = "0"
	}
	if a.SyncLookbackPolicy == "" {
		a.SyncLookbackPolicy = "3"
	}
	if a.SyncIntervalPolicy == 0 {
		a.SyncIntervalPolicy = IntervalPush
	}

	_, err := s.db.Exec(`
		INSERT INTO accounts (id, display_name, email_address, host, username,
			protocol_version, sync_key, sync_interval_policy, sync_lookback_policy,
			flag_incomplete, flag_security_hold)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DisplayName, a.EmailAddress, a.Host, a.Username,
		a.ProtocolVersion, a.SyncKey, int(a.SyncIntervalPolicy), a.SyncLookbackPolicy,
		boolToInt(a.FlagIncomplete), boolToInt(a.FlagSecurityHold),
	)
	if err != nil {
		return fmt.Errorf("creating account: %w", err)
	}
	return nil
}

// Get retrieves a single account by id.
func (s *AccountStore) Get(id string) (*Account, error) {
	row := s.db.QueryRow(`
		SELECT id, display_name, email_address, host, username, protocol_version,
		       sync_key, sync_interval_policy, sync_lookback_policy,
		       flag_incomplete, flag_security_hold, created_at
		FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// List returns every account, ordered by id (spec.md §4.1.2 iterates
// mailboxes "ordered by id"; accounts follow the same convention).
func (s *AccountStore) List() ([]*Account, error) {
	rows, err := s.db.Query(`
		SELECT id, display_name, email_address, host, username, protocol_version,
		       sync_key, sync_interval_policy, sync_lookback_policy,
		       flag_incomplete, flag_security_hold, created_at
		FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateProtocolVersion persists the version discovered by OPTIONS
// (spec.md §4.2.1: "Persist on the Account").
func (s *AccountStore) UpdateProtocolVersion(accountID, version string) error {
	_, err := s.db.Exec("UPDATE accounts SET protocol_version = ? WHERE id = ?", version, accountID)
	return err
}

// UpdateSyncKey persists the account-mailbox's FolderSync key.
func (s *AccountStore) UpdateSyncKey(accountID, syncKey string) error {
	_, err := s.db.Exec("UPDATE accounts SET sync_key = ? WHERE id = ?", syncKey, accountID)
	return err
}

// SetSecurityHold sets or clears the security-hold flag (spec.md §7:
// "cleared by a host-changed or release-security-hold call").
func (s *AccountStore) SetSecurityHold(accountID string, held bool) error {
	_, err := s.db.Exec("UPDATE accounts SET flag_security_hold = ? WHERE id = ?", boolToInt(held), accountID)
	return err
}

// Delete removes an account and its mailboxes (ON DELETE CASCADE).
func (s *AccountStore) Delete(id string) error {
	_, err := s.db.Exec("DELETE FROM accounts WHERE id = ?", id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var a Account
	var intervalPolicy int
	var incomplete, securityHold int
	if err := row.Scan(
		&a.ID, &a.DisplayName, &a.EmailAddress, &a.Host, &a.Username, &a.ProtocolVersion,
		&a.SyncKey, &intervalPolicy, &a.SyncLookbackPolicy,
		&incomplete, &securityHold, &a.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("scanning account: %w", err)
	}
	a.SyncIntervalPolicy = SyncInterval(intervalPolicy)
	a.FlagIncomplete = incomplete != 0
	a.FlagSecurityHold = securityHold != 0
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
