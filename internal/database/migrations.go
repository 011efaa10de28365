package database

// Migration represents a database migration
type Migration struct {
	Version int
	SQL     string
}

// migrations is the list of all database migrations
var migrations = []Migration{
	{
		Version: 1,
		SQL: `
			-- Accounts table. One row per Exchange account (spec.md §3 Account).
			CREATE TABLE accounts (
				id                    TEXT PRIMARY KEY,
				display_name          TEXT NOT NULL,
				email_address         TEXT NOT NULL UNIQUE,
				host                  TEXT NOT NULL,
				username              TEXT NOT NULL,

				-- unset until OPTIONS discovery succeeds (spec.md §4.2.1)
				protocol_version      TEXT NOT NULL DEFAULT '',

				-- "0" means never-synced (spec.md §3)
				sync_key              TEXT NOT NULL DEFAULT '0',

				-- minutes; NEVER/PUSH/PING/PUSH_HOLD map to negative sentinels
				-- (spec.md §6 Configuration enumeration)
				sync_interval_policy  INTEGER NOT NULL DEFAULT -2,
				sync_lookback_policy  TEXT NOT NULL DEFAULT '3',

				flag_incomplete       INTEGER NOT NULL DEFAULT 0,
				flag_security_hold    INTEGER NOT NULL DEFAULT 0,

				created_at            DATETIME DEFAULT CURRENT_TIMESTAMP
			);

			-- Mailboxes table. One row per Mailbox (spec.md §3 Mailbox), including
			-- the hidden account-mailbox of type ACCOUNT.
			CREATE TABLE mailboxes (
				id              TEXT PRIMARY KEY,
				account_id      TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
				server_id       TEXT NOT NULL,
				display_name    TEXT NOT NULL,
				type            TEXT NOT NULL,

				-- NEVER=-1, PUSH=-2, PING=-3, PUSH_HOLD=-4, or positive minutes <= 1440
				sync_interval   INTEGER NOT NULL DEFAULT -1,

				sync_key        TEXT NOT NULL DEFAULT '0',
				last_sync_at    DATETIME,

				-- S<type>:<exit>:<changeCount> (spec.md §6)
				sync_status     TEXT NOT NULL DEFAULT '',

				created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX idx_mailboxes_account ON mailboxes(account_id);
			CREATE UNIQUE INDEX idx_mailboxes_account_server ON mailboxes(account_id, server_id);

			-- Generic encrypted key/value fallback for internal/credentials when
			-- the OS keyring is unavailable.
			CREATE TABLE credentials (
				key              TEXT PRIMARY KEY,
				encrypted_value  TEXT NOT NULL
			);
		`,
	},
}
