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

const depositPatternColumns = `
	id, group_id, savings_goal_id, sender_name_regex, amount_regex,
	account_number_pattern, bank_name, success_count, fail_count, is_active,
	created_at, updated_at`

// CreateDepositPattern stores a new learned deposit pattern.
func (s *SQLiteStorage) CreateDepositPattern(ctx context.Context, pattern *model.LearnedDepositPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePattern(pattern); err != nil {
		return err
	}

	now := time.Now()
	if pattern.CreatedAt.IsZero() {
		pattern.CreatedAt = now
	}
	pattern.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deposit_patterns (`+depositPatternColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		pattern.ID,
		pattern.GroupID,
		pattern.SavingsGoalID,
		pattern.SenderNameRegex,
		pattern.AmountRegex,
		pattern.AccountNumberPattern,
		pattern.BankName,
		pattern.SuccessCount,
		pattern.FailCount,
		boolToInt(pattern.IsActive),
		pattern.CreatedAt.UTC(),
		pattern.UpdatedAt.UTC(),
	)
	if err != nil {
		return classify(fmt.Errorf("failed to create deposit pattern: %w", err))
	}
	return nil
}

// GetDepositPattern retrieves a pattern by id.
func (s *SQLiteStorage) GetDepositPattern(ctx context.Context, groupID, id string) (*model.LearnedDepositPattern, error) {
	if err := validateScope(ctx, groupID, id); err != nil {
		return nil, err
	}
	return getDepositPatternTx(ctx, s.db, groupID, id)
}

func getDepositPatternTx(ctx context.Context, q queryable, groupID, id string) (*model.LearnedDepositPattern, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+depositPatternColumns+`
		FROM deposit_patterns
		WHERE group_id = ? AND id = ?
	`, groupID, id)

	p, err := scanDepositPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("deposit pattern %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit pattern: %w", err)
	}
	return p, nil
}

// GetActiveDepositPatterns returns the group's active patterns, oldest first.
func (s *SQLiteStorage) GetActiveDepositPatterns(ctx context.Context, groupID string) ([]*model.LearnedDepositPattern, error) {
	return s.listDepositPatterns(ctx, groupID, true)
}

// ListDepositPatterns returns all of the group's patterns, oldest first.
func (s *SQLiteStorage) ListDepositPatterns(ctx context.Context, groupID string) ([]*model.LearnedDepositPattern, error) {
	return s.listDepositPatterns(ctx, groupID, false)
}

func (s *SQLiteStorage) listDepositPatterns(ctx context.Context, groupID string, activeOnly bool) ([]*model.LearnedDepositPattern, error) {
	if err := validateScope(ctx, groupID); err != nil {
		return nil, err
	}

	query := `SELECT ` + depositPatternColumns + ` FROM deposit_patterns WHERE group_id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deposit patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.LearnedDepositPattern
	for rows.Next() {
		p, err := scanDepositPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deposit pattern: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deposit patterns: %w", err)
	}
	return out, nil
}

// IncrementDepositPatternSuccess atomically adds one to the success counter.
func (s *SQLiteStorage) IncrementDepositPatternSuccess(ctx context.Context, groupID, id string) (*model.LearnedDepositPattern, error) {
	return s.incrementDepositCounter(ctx, groupID, id, "success_count")
}

// IncrementDepositPatternFailure atomically adds one to the failure counter.
func (s *SQLiteStorage) IncrementDepositPatternFailure(ctx context.Context, groupID, id string) (*model.LearnedDepositPattern, error) {
	return s.incrementDepositCounter(ctx, groupID, id, "fail_count")
}

func (s *SQLiteStorage) incrementDepositCounter(ctx context.Context, groupID, id, column string) (*model.LearnedDepositPattern, error) {
	if err := validateScope(ctx, groupID, id); err != nil {
		return nil, err
	}

	var updated *model.LearnedDepositPattern
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// column is success_count or fail_count.
		res, err := tx.ExecContext(ctx,
			`UPDATE deposit_patterns SET `+column+` = `+column+` + 1, updated_at = ?
			 WHERE group_id = ? AND id = ?`,
			time.Now().UTC(), groupID, id)
		if err != nil {
			return classify(fmt.Errorf("failed to update deposit pattern: %w", err))
		}
		if err := expectOne(res, "deposit pattern "+id); err != nil {
			return err
		}
		updated, err = getDepositPatternTx(ctx, tx, groupID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeactivateDepositPattern turns a pattern off without deleting it.
func (s *SQLiteStorage) DeactivateDepositPattern(ctx context.Context, groupID, id string) error {
	return s.setDepositPatternActive(ctx, groupID, id, false)
}

// ReactivateDepositPattern turns a deactivated pattern back on.
func (s *SQLiteStorage) ReactivateDepositPattern(ctx context.Context, groupID, id string) error {
	return s.setDepositPatternActive(ctx, groupID, id, true)
}

func (s *SQLiteStorage) setDepositPatternActive(ctx context.Context, groupID, id string, active bool) error {
	if err := validateScope(ctx, groupID, id); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE deposit_patterns SET is_active = ?, updated_at = ?
		WHERE group_id = ? AND id = ?
	`, boolToInt(active), time.Now().UTC(), groupID, id)
	if err != nil {
		return classify(fmt.Errorf("failed to update deposit pattern: %w", err))
	}
	return expectOne(res, "deposit pattern "+id)
}

func scanDepositPattern(row rowScanner) (*model.LearnedDepositPattern, error) {
	var (
		p      model.LearnedDepositPattern
		active int
	)
	err := row.Scan(
		&p.ID,
		&p.GroupID,
		&p.SavingsGoalID,
		&p.SenderNameRegex,
		&p.AmountRegex,
		&p.AccountNumberPattern,
		&p.BankName,
		&p.SuccessCount,
		&p.FailCount,
		&active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.IsActive = active != 0
	return &p, nil
}
