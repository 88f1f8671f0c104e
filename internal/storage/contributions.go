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

const contributionColumns = `
	id, group_id, savings_goal_id, pattern_id, amount, is_auto_detected,
	detected_sender_name, match_confidence, original_notification_text,
	needs_review, is_modified, modified_by, modified_at, created_at`

// SaveSavingsContribution inserts a contribution.
func (s *SQLiteStorage) SaveSavingsContribution(ctx context.Context, c *model.SavingsContribution) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateContribution(c); err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO savings_contributions (`+contributionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.GroupID,
		c.SavingsGoalID,
		c.PatternID,
		c.Amount,
		boolToInt(c.IsAutoDetected),
		c.DetectedSenderName,
		string(c.MatchConfidence),
		c.OriginalNotificationText,
		boolToInt(c.NeedsReview),
		boolToInt(c.IsModified),
		c.ModifiedBy,
		nullTime(c.ModifiedAt),
		c.CreatedAt.UTC(),
	)
	if err != nil {
		return classify(fmt.Errorf("failed to save savings contribution: %w", err))
	}
	return nil
}

// GetSavingsContribution retrieves a contribution by id.
func (s *SQLiteStorage) GetSavingsContribution(ctx context.Context, groupID, id string) (*model.SavingsContribution, error) {
	if err := validateScope(ctx, groupID, id); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+contributionColumns+`
		FROM savings_contributions
		WHERE group_id = ? AND id = ?
	`, groupID, id)

	c, err := scanContribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("savings contribution %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get savings contribution: %w", err)
	}
	return c, nil
}

// ListSavingsContributions returns the group's contributions, newest first.
func (s *SQLiteStorage) ListSavingsContributions(ctx context.Context, groupID string, needsReviewOnly bool) ([]*model.SavingsContribution, error) {
	if err := validateScope(ctx, groupID); err != nil {
		return nil, err
	}

	query := `SELECT ` + contributionColumns + ` FROM savings_contributions WHERE group_id = ?`
	if needsReviewOnly {
		query += ` AND needs_review = 1`
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query savings contributions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.SavingsContribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan savings contribution: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating savings contributions: %w", err)
	}
	return out, nil
}

// UpdateSavingsContribution writes the mutable fields of a contribution.
func (s *SQLiteStorage) UpdateSavingsContribution(ctx context.Context, c *model.SavingsContribution) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateContribution(c); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE savings_contributions SET
			savings_goal_id = ?, amount = ?, match_confidence = ?, needs_review = ?,
			is_modified = ?, modified_by = ?, modified_at = ?
		WHERE group_id = ? AND id = ?
	`,
		c.SavingsGoalID,
		c.Amount,
		string(c.MatchConfidence),
		boolToInt(c.NeedsReview),
		boolToInt(c.IsModified),
		c.ModifiedBy,
		nullTime(c.ModifiedAt),
		c.GroupID,
		c.ID,
	)
	if err != nil {
		return classify(fmt.Errorf("failed to update savings contribution: %w", err))
	}
	return expectOne(res, "savings contribution "+c.ID)
}

// ClaimContributionReview clears the review flag of a contribution that still
// needs review. Only one caller can win the claim; the others get false.
func (s *SQLiteStorage) ClaimContributionReview(ctx context.Context, groupID, id string) (bool, error) {
	if err := validateScope(ctx, groupID, id); err != nil {
		return false, err
	}

	var claimed bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE savings_contributions SET needs_review = 0
			WHERE group_id = ? AND id = ? AND needs_review = 1
		`, groupID, id)
		if err != nil {
			return classify(fmt.Errorf("failed to claim savings contribution: %w", err))
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
			`SELECT COUNT(*) FROM savings_contributions WHERE group_id = ? AND id = ?`,
			groupID, id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check savings contribution: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("savings contribution %s: %w", id, common.ErrNotFound)
		}
		return nil
	})
	return claimed, err
}

// DeleteSavingsContribution removes a contribution by id.
func (s *SQLiteStorage) DeleteSavingsContribution(ctx context.Context, groupID, id string) error {
	if err := validateScope(ctx, groupID, id); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM savings_contributions WHERE group_id = ? AND id = ?`, groupID, id)
	if err != nil {
		return classify(fmt.Errorf("failed to delete savings contribution: %w", err))
	}
	return expectOne(res, "savings contribution "+id)
}

func scanContribution(row rowScanner) (*model.SavingsContribution, error) {
	var (
		c          model.SavingsContribution
		auto       int
		confidence string
		review     int
		modified   int
		modifiedAt sql.NullTime
	)
	err := row.Scan(
		&c.ID,
		&c.GroupID,
		&c.SavingsGoalID,
		&c.PatternID,
		&c.Amount,
		&auto,
		&c.DetectedSenderName,
		&confidence,
		&c.OriginalNotificationText,
		&review,
		&modified,
		&c.ModifiedBy,
		&modifiedAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.IsAutoDetected = auto != 0
	c.MatchConfidence = model.ParseConfidence(confidence)
	c.NeedsReview = review != 0
	c.IsModified = modified != 0
	if modifiedAt.Valid {
		t := modifiedAt.Time
		c.ModifiedAt = &t
	}
	return &c, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
