// Package credentials provides secure storage for EAS account passwords and
// the per-install device id, preferring the OS keyring and falling back to
// an encrypted database table when no keyring is available.
package credentials

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/hkdb/aerion-eas/internal/crypto"
	"github.com/hkdb/aerion-eas/internal/logging"
	"github.com/rs/zerolog"
	gokeyring "github.com/zalando/go-keyring"
)

const serviceName = "easd"

// ErrCredentialNotFound is returned when no credential is stored for a key.
var ErrCredentialNotFound = errors.New("credential not found")

const deviceIDKey = "device-id"

// Store provides credential storage with OS keyring and encrypted DB fallback.
type Store struct {
	db             *sql.DB
	encryptor      *crypto.Encryptor
	keyringEnabled bool
	log            zerolog.Logger
}

// NewStore creates a credential store, trying the OS keyring first and
// falling back to encrypted database storage when it is unavailable.
func NewStore(db *sql.DB, dataDir string) (*Store, error) {
	log := logging.WithComponent("credentials")

	encryptor, err := crypto.NewEncryptor(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}

	keyringEnabled := testKeyring()
	if keyringEnabled {
		log.Info().Msg("OS keyring available, using as primary credential storage")
	} else {
		log.Warn().Msg("OS keyring not available, using encrypted database storage")
	}

	return &Store{
		db:             db,
		encryptor:      encryptor,
		keyringEnabled: keyringEnabled,
		log:            log,
	}, nil
}

func testKeyring() bool {
	const testKey = "easd-test-keyring-check"

	if err := gokeyring.Set(serviceName, testKey, "test"); err != nil {
		return false
	}
	gokeyring.Delete(serviceName, testKey)
	return true
}

// IsKeyringEnabled returns whether the OS keyring is being used.
func (s *Store) IsKeyringEnabled() bool {
	return s.keyringEnabled
}

// SetPassword stores the Basic-auth password for an account.
func (s *Store) SetPassword(accountID, password string) error {
	return s.set("account:"+accountID+":password", password)
}

// GetPassword retrieves the password for an account.
func (s *Store) GetPassword(accountID string) (string, error) {
	return s.get("account:" + accountID + ":password")
}

// DeletePassword removes the stored password for an account.
func (s *Store) DeletePassword(accountID string) error {
	return s.delete("account:" + accountID + ":password")
}

// SetDeviceID persists the process-wide EAS device id (spec.md §4.4/§6).
func (s *Store) SetDeviceID(id string) error {
	return s.set(deviceIDKey, id)
}

// GetDeviceID retrieves the persisted EAS device id.
func (s *Store) GetDeviceID() (string, error) {
	return s.get(deviceIDKey)
}

// DeleteAllCredentials removes every credential associated with an account.
func (s *Store) DeleteAllCredentials(accountID string) error {
	return s.DeletePassword(accountID)
}

func (s *Store) set(key, value string) error {
	if value == "" {
		return nil
	}

	if s.keyringEnabled {
		if err := gokeyring.Set(serviceName, key, value); err == nil {
			s.log.Debug().Str("key", key).Msg("secret stored in OS keyring")
			s.clearDBValue(key)
			return nil
		} else {
			s.log.Warn().Err(err).Str("key", key).Msg("failed to store in OS keyring, using fallback")
		}
	}

	encrypted, err := s.encryptor.Encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt secret: %w", err)
	}

	if _, err := s.db.Exec(
		`INSERT INTO credentials (key, encrypted_value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET encrypted_value = excluded.encrypted_value`,
		key, encrypted,
	); err != nil {
		return fmt.Errorf("failed to store encrypted secret: %w", err)
	}

	s.log.Debug().Str("key", key).Msg("secret stored in encrypted database")
	return nil
}

func (s *Store) get(key string) (string, error) {
	if s.keyringEnabled {
		value, err := gokeyring.Get(serviceName, key)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, gokeyring.ErrNotFound) {
			s.log.Warn().Err(err).Str("key", key).Msg("error reading from OS keyring, trying fallback")
		}
	}

	var encrypted sql.NullString
	err := s.db.QueryRow("SELECT encrypted_value FROM credentials WHERE key = ?", key).Scan(&encrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrCredentialNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query secret: %w", err)
	}
	if !encrypted.Valid || encrypted.String == "" {
		return "", ErrCredentialNotFound
	}

	value, err := s.encryptor.Decrypt(encrypted.String)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return value, nil
}

func (s *Store) delete(key string) error {
	if s.keyringEnabled {
		gokeyring.Delete(serviceName, key)
	}
	s.clearDBValue(key)
	return nil
}

func (s *Store) clearDBValue(key string) {
	s.db.Exec("DELETE FROM credentials WHERE key = ?", key)
}
