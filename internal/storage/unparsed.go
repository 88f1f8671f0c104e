package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/notiledger/internal/model"
)

// SaveUnparsedNotification queues a notification for manual entry.
func (s *SQLiteStorage) SaveUnparsedNotification(ctx context.Context, n *model.UnparsedNotification) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if n == nil {
		return fmt.Errorf("%w: unparsed notification", ErrNilParameter)
	}
	if err := validateScope(ctx, n.GroupID, n.ID); err != nil {
		return err
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	var posted sql.NullTime
	if !n.PostedAt.IsZero() {
		posted = sql.NullTime{Time: n.PostedAt.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO unparsed_notifications (id, group_id, user_id, text, source_package, reason, posted_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.GroupID, n.UserID, n.Text, n.SourcePackage, n.Reason, posted, n.CreatedAt.UTC())
	if err != nil {
		return classify(fmt.Errorf("failed to save unparsed notification: %w", err))
	}
	return nil
}

// ListUnparsedNotifications returns queued notifications, newest first.
// A limit of zero or less returns all of them.
func (s *SQLiteStorage) ListUnparsedNotifications(ctx context.Context, groupID string, limit int) ([]*model.UnparsedNotification, error) {
	if err := validateScope(ctx, groupID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, group_id, user_id, text, source_package, reason, posted_at, created_at
		FROM unparsed_notifications
		WHERE group_id = ?
		ORDER BY created_at DESC, id ASC`
	args := []any{groupID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unparsed notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.UnparsedNotification
	for rows.Next() {
		var (
			n      model.UnparsedNotification
			posted sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.GroupID, &n.UserID, &n.Text, &n.SourcePackage, &n.Reason, &posted, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan unparsed notification: %w", err)
		}
		if posted.Valid {
			n.PostedAt = posted.Time
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unparsed notifications: %w", err)
	}
	return out, nil
}

// DeleteUnparsedNotification removes a queued notification once it has been handled.
func (s *SQLiteStorage) DeleteUnparsedNotification(ctx context.Context, groupID, id string) error {
	if err := validateScope(ctx, groupID, id); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM unparsed_notifications WHERE group_id = ? AND id = ?`, groupID, id)
	if err != nil {
		return classify(fmt.Errorf("failed to delete unparsed notification: %w", err))
	}
	return expectOne(res, "unparsed notification "+id)
}
