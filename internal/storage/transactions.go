package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/notiledger/internal/common"
	"github.com/Veraticus/notiledger/internal/model"
	"github.com/Veraticus/notiledger/internal/service"
)

const transactionColumns = `
	id, group_id, user_id, type, amount, bank_id, bank_name, description,
	category, income_sub_type, expense_sub_type, merchant, merchant_name,
	source, original_text, source_package, linked_child_id,
	transaction_date, notification_time, is_confirmed, created_at`

// SaveTransaction inserts a transaction. A transaction with the same content
// hash in the group yields common.ErrDuplicateEntry.
func (s *SQLiteStorage) SaveTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}
	return s.saveTransactionTx(ctx, s.db, txn)
}

func (s *SQLiteStorage) saveTransactionTx(ctx context.Context, q queryable, txn *model.Transaction) error {
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}

	var notificationTime sql.NullTime
	if !txn.NotificationTime.IsZero() {
		notificationTime = sql.NullTime{Time: txn.NotificationTime.UTC(), Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (
			id, group_id, user_id, hash, type, amount, bank_id, bank_name, description,
			category, income_sub_type, expense_sub_type, merchant, merchant_name,
			source, original_text, source_package, linked_child_id,
			transaction_date, notification_time, event_at, is_confirmed, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		txn.ID,
		txn.GroupID,
		txn.UserID,
		txn.GenerateHash(),
		string(txn.Type),
		txn.Amount,
		txn.BankID,
		txn.BankName,
		txn.Description,
		string(txn.Category),
		string(txn.IncomeSubType),
		string(txn.ExpenseSubType),
		txn.Merchant,
		txn.MerchantName,
		string(txn.Source),
		txn.OriginalText,
		txn.SourcePackage,
		txn.LinkedChildID,
		txn.TransactionDate.UTC(),
		notificationTime,
		txn.EventTime().UnixMilli(),
		boolToInt(txn.IsConfirmed),
		txn.CreatedAt.UTC(),
	)
	if err != nil {
		return classify(fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err))
	}
	return nil
}

// GetTransaction retrieves a transaction by id.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, groupID, id string) (*model.Transaction, error) {
	if err := validateScope(ctx, groupID, id); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE group_id = ? AND id = ?
	`, groupID, id)

	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return txn, nil
}

// DeleteTransaction removes a transaction. Deleting a missing transaction
// returns common.ErrNotFound.
func (s *SQLiteStorage) DeleteTransaction(ctx context.Context, groupID, id string) error {
	if err := validateScope(ctx, groupID, id); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE group_id = ? AND id = ?`, groupID, id)
	if err != nil {
		return classify(fmt.Errorf("failed to delete transaction: %w", err))
	}
	return expectOne(res, "transaction "+id)
}

// GetRecentTransactions returns the group's transactions whose event time is
// at or after since, oldest first.
func (s *SQLiteStorage) GetRecentTransactions(ctx context.Context, groupID string, since time.Time) ([]*model.Transaction, error) {
	if err := validateScope(ctx, groupID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE group_id = ? AND event_at >= ?
		ORDER BY event_at ASC, id ASC
	`, groupID, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query recent transactions: %w", err)
	}
	return collectTransactions(rows)
}

// ListTransactions returns the group's transactions, newest first.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, groupID string, filter service.TransactionFilter) ([]*model.Transaction, error) {
	if err := validateScope(ctx, groupID); err != nil {
		return nil, err
	}

	var (
		where = []string{"group_id = ?"}
		args  = []any{groupID}
	)
	if filter.StartDate != nil {
		where = append(where, "event_at >= ?")
		args = append(args, filter.StartDate.UnixMilli())
	}
	if filter.EndDate != nil {
		where = append(where, "event_at <= ?")
		args = append(args, filter.EndDate.UnixMilli())
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(filter.Type))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY event_at DESC, id ASC`
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return collectTransactions(rows)
}

// UpdateTransactionCategory sets the category and confirmation flag of a transaction.
func (s *SQLiteStorage) UpdateTransactionCategory(ctx context.Context, groupID, id string, category model.Category, confirmed bool) error {
	if err := validateScope(ctx, groupID, id); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET category = ?, is_confirmed = ?
		WHERE group_id = ? AND id = ?
	`, string(category), boolToInt(confirmed), groupID, id)
	if err != nil {
		return classify(fmt.Errorf("failed to update transaction category: %w", err))
	}
	return expectOne(res, "transaction "+id)
}

func collectTransactions(rows *sql.Rows) ([]*model.Transaction, error) {
	defer func() { _ = rows.Close() }()

	var out []*model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return out, nil
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		txn              model.Transaction
		txnType          string
		category         string
		incomeSubType    string
		expenseSubType   string
		source           string
		notificationTime sql.NullTime
		createdAt        sql.NullTime
		confirmed        int
	)

	err := row.Scan(
		&txn.ID,
		&txn.GroupID,
		&txn.UserID,
		&txnType,
		&txn.Amount,
		&txn.BankID,
		&txn.BankName,
		&txn.Description,
		&category,
		&incomeSubType,
		&expenseSubType,
		&txn.Merchant,
		&txn.MerchantName,
		&source,
		&txn.OriginalText,
		&txn.SourcePackage,
		&txn.LinkedChildID,
		&txn.TransactionDate,
		&notificationTime,
		&confirmed,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	txn.Type = model.ParseTransactionType(txnType)
	txn.Category = model.ParseCategory(category)
	if incomeSubType != "" {
		txn.IncomeSubType = model.ParseIncomeSubType(incomeSubType)
	}
	if expenseSubType != "" {
		txn.ExpenseSubType = model.ParseExpenseSubType(expenseSubType)
	}
	txn.Source = model.ParseSource(source)
	if notificationTime.Valid {
		txn.NotificationTime = notificationTime.Time
	}
	if createdAt.Valid {
		txn.CreatedAt = createdAt.Time
	}
	txn.IsConfirmed = confirmed != 0

	return &txn, nil
}
