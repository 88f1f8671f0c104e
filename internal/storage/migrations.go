package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					group_id TEXT NOT NULL,
					user_id TEXT NOT NULL DEFAULT '',
					hash TEXT NOT NULL,
					type TEXT NOT NULL,
					amount INTEGER NOT NULL CHECK (amount >= 0),
					bank_id TEXT NOT NULL DEFAULT '',
					bank_name TEXT NOT NULL DEFAULT '',
					description TEXT NOT NULL DEFAULT '',
					category TEXT NOT NULL,
					income_sub_type TEXT NOT NULL DEFAULT '',
					expense_sub_type TEXT NOT NULL DEFAULT '',
					merchant TEXT NOT NULL DEFAULT '',
					merchant_name TEXT NOT NULL DEFAULT '',
					source TEXT NOT NULL,
					original_text TEXT NOT NULL DEFAULT '',
					source_package TEXT NOT NULL DEFAULT '',
					linked_child_id TEXT NOT NULL DEFAULT '',
					transaction_date DATETIME NOT NULL,
					notification_time DATETIME,
					event_at INTEGER NOT NULL,
					is_confirmed INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(group_id, hash)
				)`,
				`CREATE INDEX idx_transactions_group_event ON transactions(group_id, event_at)`,
				`CREATE INDEX idx_transactions_group_date ON transactions(group_id, transaction_date)`,

				`CREATE TABLE IF NOT EXISTS learned_mappings (
					id TEXT PRIMARY KEY,
					group_id TEXT NOT NULL,
					merchant_name TEXT NOT NULL,
					original_merchant_name TEXT NOT NULL DEFAULT '',
					category TEXT NOT NULL,
					transaction_type TEXT NOT NULL,
					use_count INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					last_used_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(group_id, merchant_name, transaction_type)
				)`,

				`CREATE TABLE IF NOT EXISTS deposit_patterns (
					id TEXT PRIMARY KEY,
					group_id TEXT NOT NULL,
					savings_goal_id TEXT NOT NULL,
					sender_name_regex TEXT NOT NULL,
					amount_regex TEXT NOT NULL,
					account_number_pattern TEXT NOT NULL DEFAULT '',
					bank_name TEXT NOT NULL DEFAULT '',
					success_count INTEGER NOT NULL DEFAULT 0 CHECK (success_count >= 0),
					fail_count INTEGER NOT NULL DEFAULT 0 CHECK (fail_count >= 0),
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_deposit_patterns_group_active ON deposit_patterns(group_id, is_active)`,

				`CREATE TABLE IF NOT EXISTS savings_contributions (
					id TEXT PRIMARY KEY,
					group_id TEXT NOT NULL,
					savings_goal_id TEXT NOT NULL,
					pattern_id TEXT NOT NULL DEFAULT '',
					amount INTEGER NOT NULL CHECK (amount >= 0),
					is_auto_detected INTEGER NOT NULL DEFAULT 0,
					detected_sender_name TEXT NOT NULL DEFAULT '',
					match_confidence TEXT NOT NULL,
					original_notification_text TEXT NOT NULL DEFAULT '',
					needs_review INTEGER NOT NULL DEFAULT 0,
					is_modified INTEGER NOT NULL DEFAULT 0,
					modified_by TEXT NOT NULL DEFAULT '',
					modified_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_contributions_group_review ON savings_contributions(group_id, needs_review)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Add duplicate detection tables",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS pending_duplicates (
					id TEXT PRIMARY KEY,
					group_id TEXT NOT NULL,
					pair_key TEXT NOT NULL,
					first_transaction_id TEXT NOT NULL,
					first_bank_id TEXT NOT NULL DEFAULT '',
					first_description TEXT NOT NULL DEFAULT '',
					first_type TEXT NOT NULL,
					first_amount INTEGER NOT NULL,
					first_notification_time DATETIME NOT NULL,
					first_original_text TEXT NOT NULL DEFAULT '',
					second_transaction_id TEXT NOT NULL,
					second_bank_id TEXT NOT NULL DEFAULT '',
					second_description TEXT NOT NULL DEFAULT '',
					second_type TEXT NOT NULL,
					second_amount INTEGER NOT NULL,
					second_notification_time DATETIME NOT NULL,
					second_original_text TEXT NOT NULL DEFAULT '',
					resolution TEXT NOT NULL DEFAULT 'PENDING',
					is_resolved INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					resolved_at DATETIME,
					UNIQUE(group_id, pair_key)
				)`,
				`CREATE INDEX idx_pending_duplicates_group_resolved ON pending_duplicates(group_id, is_resolved)`,

				`CREATE TABLE IF NOT EXISTS duplicate_rules (
					id TEXT PRIMARY KEY,
					group_id TEXT NOT NULL,
					bank1_id TEXT NOT NULL,
					bank2_id TEXT NOT NULL,
					resolution TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(group_id, bank1_id, bank2_id)
				)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Add custom bank patterns and unparsed notification queue",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS custom_bank_patterns (
					group_id TEXT NOT NULL,
					bank_id TEXT NOT NULL,
					display_name TEXT NOT NULL DEFAULT '',
					package_names TEXT NOT NULL DEFAULT '[]',
					income_keywords TEXT NOT NULL DEFAULT '[]',
					expense_keywords TEXT NOT NULL DEFAULT '[]',
					amount_regex TEXT NOT NULL,
					merchant_regex_list TEXT NOT NULL DEFAULT '[]',
					is_enabled INTEGER NOT NULL DEFAULT 1,
					last_modified DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (group_id, bank_id)
				)`,

				`CREATE TABLE IF NOT EXISTS unparsed_notifications (
					id TEXT PRIMARY KEY,
					group_id TEXT NOT NULL,
					user_id TEXT NOT NULL DEFAULT '',
					text TEXT NOT NULL,
					source_package TEXT NOT NULL DEFAULT '',
					reason TEXT NOT NULL,
					posted_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_unparsed_group_created ON unparsed_notifications(group_id, created_at)`,
			})
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reports the schema version recorded in the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
