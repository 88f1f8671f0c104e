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

const mappingColumns = `
	id, group_id, merchant_name, original_merchant_name, category,
	transaction_type, use_count, created_at, last_used_at`

// GetLearnedMapping retrieves the mapping for a normalized merchant name and type.
func (s *SQLiteStorage) GetLearnedMapping(ctx context.Context, groupID, merchantName string, txnType model.TransactionType) (*model.LearnedMapping, error) {
	if err := validateScope(ctx, groupID); err != nil {
		return nil, err
	}
	if err := validateString(merchantName, "merchantName"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+mappingColumns+`
		FROM learned_mappings
		WHERE group_id = ? AND merchant_name = ? AND transaction_type = ?
	`, groupID, merchantName, string(txnType))

	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("learned mapping %s: %w", merchantName, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get learned mapping: %w", err)
	}
	return m, nil
}

// UpsertLearnedMapping inserts a mapping or bumps the existing one. The
// increment is done by the database so concurrent corrections are all counted.
func (s *SQLiteStorage) UpsertLearnedMapping(ctx context.Context, mapping *model.LearnedMapping) (*model.LearnedMapping, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateMapping(mapping); err != nil {
		return nil, err
	}

	now := mapping.LastUsedAt
	if now.IsZero() {
		now = time.Now()
	}
	created := mapping.CreatedAt
	if created.IsZero() {
		created = now
	}
	useCount := mapping.UseCount
	if useCount < 1 {
		useCount = 1
	}

	var stored *model.LearnedMapping
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO learned_mappings (
				id, group_id, merchant_name, original_merchant_name, category,
				transaction_type, use_count, created_at, last_used_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(group_id, merchant_name, transaction_type) DO UPDATE SET
				use_count = learned_mappings.use_count + 1,
				category = excluded.category,
				original_merchant_name = excluded.original_merchant_name,
				last_used_at = excluded.last_used_at
		`,
			mapping.ID,
			mapping.GroupID,
			mapping.MerchantName,
			mapping.OriginalMerchantName,
			string(mapping.Category),
			string(mapping.TransactionType),
			useCount,
			created.UTC(),
			now.UTC(),
		)
		if err != nil {
			return classify(fmt.Errorf("failed to upsert learned mapping: %w", err))
		}

		row := tx.QueryRowContext(ctx, `
			SELECT `+mappingColumns+`
			FROM learned_mappings
			WHERE group_id = ? AND merchant_name = ? AND transaction_type = ?
		`, mapping.GroupID, mapping.MerchantName, string(mapping.TransactionType))
		stored, err = scanMapping(row)
		if err != nil {
			return fmt.Errorf("failed to read back learned mapping: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// ListLearnedMappings returns the group's mappings, most used first.
func (s *SQLiteStorage) ListLearnedMappings(ctx context.Context, groupID string) ([]*model.LearnedMapping, error) {
	if err := validateScope(ctx, groupID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+mappingColumns+`
		FROM learned_mappings
		WHERE group_id = ?
		ORDER BY use_count DESC, merchant_name ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query learned mappings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.LearnedMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan learned mapping: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating learned mappings: %w", err)
	}
	return out, nil
}

// DeleteLearnedMapping removes a mapping by id.
func (s *SQLiteStorage) DeleteLearnedMapping(ctx context.Context, groupID, id string) error {
	if err := validateScope(ctx, groupID, id); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM learned_mappings WHERE group_id = ? AND id = ?`, groupID, id)
	if err != nil {
		return classify(fmt.Errorf("failed to delete learned mapping: %w", err))
	}
	return expectOne(res, "learned mapping "+id)
}

func scanMapping(row rowScanner) (*model.LearnedMapping, error) {
	var (
		m        model.LearnedMapping
		category string
		txnType  string
	)
	err := row.Scan(
		&m.ID,
		&m.GroupID,
		&m.MerchantName,
		&m.OriginalMerchantName,
		&category,
		&txnType,
		&m.UseCount,
		&m.CreatedAt,
		&m.LastUsedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Category = model.ParseCategory(category)
	m.TransactionType = model.ParseTransactionType(txnType)
	return &m, nil
}
