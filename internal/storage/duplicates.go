package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/notiledger/internal/common"
	"github.com/Veraticus/notiledger/internal/model"
)

const pendingDuplicateColumns = `
	id, group_id,
	first_transaction_id, first_bank_id, first_description, first_type,
	first_amount, first_notification_time, first_original_text,
	second_transaction_id, second_bank_id, second_description, second_type,
	second_amount, second_notification_time, second_original_text,
	resolution, is_resolved, created_at, resolved_at`

// CreatePendingDuplicate stores p unless the group already has a record for
// the same pair of transactions, in either order.
func (s *SQLiteStorage) CreatePendingDuplicate(ctx context.Context, p *model.PendingDuplicate) (*model.PendingDuplicate, bool, error) {
	if err := validateContext(ctx); err != nil {
		return nil, false, err
	}
	if err := validatePendingDuplicate(p); err != nil {
		return nil, false, err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.Resolution == "" {
		p.Resolution = model.ResolutionPending
	}

	var (
		stored  *model.PendingDuplicate
		created bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO pending_duplicates (
				id, group_id, pair_key,
				first_transaction_id, first_bank_id, first_description, first_type,
				first_amount, first_notification_time, first_original_text,
				second_transaction_id, second_bank_id, second_description, second_type,
				second_amount, second_notification_time, second_original_text,
				resolution, is_resolved, created_at, resolved_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(group_id, pair_key) DO NOTHING
		`,
			p.ID,
			p.GroupID,
			p.PairKey(),
			p.First.TransactionID,
			p.First.BankID,
			p.First.Description,
			string(p.First.Type),
			p.First.Amount,
			p.First.NotificationTime.UTC(),
			p.First.OriginalText,
			p.Second.TransactionID,
			p.Second.BankID,
			p.Second.Description,
			string(p.Second.Type),
			p.Second.Amount,
			p.Second.NotificationTime.UTC(),
			p.Second.OriginalText,
			string(p.Resolution),
			boolToInt(p.IsResolved),
			p.CreatedAt.UTC(),
			nullTime(p.ResolvedAt),
		)
		if err != nil {
			return classify(fmt.Errorf("failed to create pending duplicate: %w", err))
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check affected rows: %w", err)
		}
		created = n == 1

		row := tx.QueryRowContext(ctx, `
			SELECT `+pendingDuplicateColumns+`
			FROM pending_duplicates
			WHERE group_id = ? AND pair_key = ?
		`, p.GroupID, p.PairKey())
		stored, err = scanPendingDuplicate(row)
		if err != nil {
			return fmt.Errorf("failed to read back pending duplicate: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// GetPendingDuplicate retrieves a pending duplicate by id.
func (s *SQLiteStorage) GetPendingDuplicate(ctx context.Context, groupID, id string) (*model.PendingDuplicate, error) {
	if err := validateScope(ctx, groupID, id); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+pendingDuplicateColumns+`
		FROM pending_duplicates
		WHERE group_id = ? AND id = ?
	`, groupID, id)

	p, err := scanPendingDuplicate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pending duplicate %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending duplicate: %w", err)
	}
	return p, nil
}

// ListPendingDuplicates returns the group's duplicates, oldest first.
func (s *SQLiteStorage) ListPendingDuplicates(ctx context.Context, groupID string, includeResolved bool) ([]*model.PendingDuplicate, error) {
	if err := validateScope(ctx, groupID); err != nil {
		return nil, err
	}

	query := `SELECT ` + pendingDuplicateColumns + ` FROM pending_duplicates WHERE group_id = ?`
	if !includeResolved {
		query += ` AND is_resolved = 0`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending duplicates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.PendingDuplicate
	for rows.Next() {
		p, err := scanPendingDuplicate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending duplicate: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending duplicates: %w", err)
	}
	return out, nil
}

// ClaimPendingDuplicate resolves an unresolved record. Only one caller can
// win the claim; the others get false.
func (s *SQLiteStorage) ClaimPendingDuplicate(ctx context.Context, groupID, id string, resolution model.Resolution, at time.Time) (bool, error) {
	if err := validateScope(ctx, groupID, id); err != nil {
		return false, err
	}
	if !resolution.IsTerminal() {
		return false, fmt.Errorf("%w: %q", common.ErrInvalidResolution, resolution)
	}

	var claimed bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE pending_duplicates
			SET is_resolved = 1, resolution = ?, resolved_at = ?
			WHERE group_id = ? AND id = ? AND is_resolved = 0
		`, string(resolution), at.UTC(), groupID, id)
		if err != nil {
			return classify(fmt.Errorf("failed to claim pending duplicate: %w", err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check affected rows: %w", err)
		}
		if n == 1 {
			claimed = true
			return nil
		}

		var exists int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM pending_duplicates WHERE group_id = ? AND id = ?`,
			groupID, id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check pending duplicate: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("pending duplicate %s: %w", id, common.ErrNotFound)
		}
		return nil
	})
	return claimed, err
}

func scanPendingDuplicate(row rowScanner) (*model.PendingDuplicate, error) {
	var (
		p          model.PendingDuplicate
		firstType  string
		secondType string
		resolution string
		resolved   int
		resolvedAt sql.NullTime
	)
	err := row.Scan(
		&p.ID,
		&p.GroupID,
		&p.First.TransactionID,
		&p.First.BankID,
		&p.First.Description,
		&firstType,
		&p.First.Amount,
		&p.First.NotificationTime,
		&p.First.OriginalText,
		&p.Second.TransactionID,
		&p.Second.BankID,
		&p.Second.Description,
		&secondType,
		&p.Second.Amount,
		&p.Second.NotificationTime,
		&p.Second.OriginalText,
		&resolution,
		&resolved,
		&p.CreatedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	p.First.Type = model.ParseTransactionType(firstType)
	p.Second.Type = model.ParseTransactionType(secondType)
	p.Resolution = model.ParseResolution(resolution)
	p.IsResolved = resolved != 0
	if resolvedAt.Valid {
		t := resolvedAt.Time
		p.ResolvedAt = &t
	}
	return &p, nil
}

// SaveDuplicateRule stores a rule for an ordered bank pair. A rule for the
// same pair in either order is replaced.
func (s *SQLiteStorage) SaveDuplicateRule(ctx context.Context, rule *model.DuplicateRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM duplicate_rules
			WHERE group_id = ? AND ((bank1_id = ? AND bank2_id = ?) OR (bank1_id = ? AND bank2_id = ?))
		`, rule.GroupID, rule.Bank1ID, rule.Bank2ID, rule.Bank2ID, rule.Bank1ID)
		if err != nil {
			return classify(fmt.Errorf("failed to replace duplicate rule: %w", err))
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO duplicate_rules (id, group_id, bank1_id, bank2_id, resolution, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rule.ID, rule.GroupID, rule.Bank1ID, rule.Bank2ID, string(rule.Resolution), rule.CreatedAt.UTC())
		if err != nil {
			return classify(fmt.Errorf("failed to save duplicate rule: %w", err))
		}
		return nil
	})
}

// GetDuplicateRules returns the group's rules, oldest first.
func (s *SQLiteStorage) GetDuplicateRules(ctx context.Context, groupID string) ([]*model.DuplicateRule, error) {
	if err := validateScope(ctx, groupID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, bank1_id, bank2_id, resolution, created_at
		FROM duplicate_rules
		WHERE group_id = ?
		ORDER BY created_at ASC, id ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicate rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.DuplicateRule
	for rows.Next() {
		var (
			r          model.DuplicateRule
			resolution string
		)
		if err := rows.Scan(&r.ID, &r.GroupID, &r.Bank1ID, &r.Bank2ID, &resolution, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan duplicate rule: %w", err)
		}
		r.Resolution = model.ParseResolution(resolution)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating duplicate rules: %w", err)
	}
	return out, nil
}

// DeleteDuplicateRule removes a rule by id.
func (s *SQLiteStorage) DeleteDuplicateRule(ctx context.Context, groupID, id string) error {
	if err := validateScope(ctx, groupID, id); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM duplicate_rules WHERE group_id = ? AND id = ?`, groupID, id)
	if err != nil {
		return classify(fmt.Errorf("failed to delete duplicate rule: %w", err))
	}
	return expectOne(res, "duplicate rule "+id)
}
