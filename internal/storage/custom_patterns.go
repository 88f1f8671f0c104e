package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Veraticus/notiledger/internal/model"
)

// SaveCustomBankPattern inserts or replaces a group's custom bank pattern.
func (s *SQLiteStorage) SaveCustomBankPattern(ctx context.Context, p *model.CustomBankPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateBankPattern(p); err != nil {
		return err
	}
	p.IsCustom = true
	p.LastModified = time.Now()

	lists := make([]string, 0, 4)
	for _, list := range [][]string{p.PackageNames, p.IncomeKeywords, p.ExpenseKeywords, p.MerchantRegexList} {
		if list == nil {
			list = []string{}
		}
		data, err := json.Marshal(list)
		if err != nil {
			return fmt.Errorf("failed to marshal custom bank pattern: %w", err)
		}
		lists = append(lists, string(data))
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO custom_bank_patterns (
			group_id, bank_id, display_name, package_names, income_keywords,
			expense_keywords, amount_regex, merchant_regex_list, is_enabled, last_modified
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_id, bank_id) DO UPDATE SET
			display_name = excluded.display_name,
			package_names = excluded.package_names,
			income_keywords = excluded.income_keywords,
			expense_keywords = excluded.expense_keywords,
			amount_regex = excluded.amount_regex,
			merchant_regex_list = excluded.merchant_regex_list,
			is_enabled = excluded.is_enabled,
			last_modified = excluded.last_modified
	`,
		p.GroupID,
		p.BankID,
		p.DisplayName,
		lists[0],
		lists[1],
		lists[2],
		p.AmountRegex,
		lists[3],
		boolToInt(p.IsEnabled),
		p.LastModified.UTC(),
	)
	if err != nil {
		return classify(fmt.Errorf("failed to save custom bank pattern: %w", err))
	}
	return nil
}

// GetCustomBankPatterns returns the group's custom patterns, most recently
// modified first.
func (s *SQLiteStorage) GetCustomBankPatterns(ctx context.Context, groupID string) ([]model.CustomBankPattern, error) {
	if err := validateScope(ctx, groupID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id, bank_id, display_name, package_names, income_keywords,
			expense_keywords, amount_regex, merchant_regex_list, is_enabled, last_modified
		FROM custom_bank_patterns
		WHERE group_id = ?
		ORDER BY last_modified DESC, bank_id ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query custom bank patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.CustomBankPattern
	for rows.Next() {
		var (
			p                                       model.CustomBankPattern
			packages, income, expense, merchantList string
			enabled                                 int
		)
		err := rows.Scan(
			&p.GroupID,
			&p.BankID,
			&p.DisplayName,
			&packages,
			&income,
			&expense,
			&p.AmountRegex,
			&merchantList,
			&enabled,
			&p.LastModified,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan custom bank pattern: %w", err)
		}

		targets := []*[]string{&p.PackageNames, &p.IncomeKeywords, &p.ExpenseKeywords, &p.MerchantRegexList}
		for i, raw := range []string{packages, income, expense, merchantList} {
			if err := json.Unmarshal([]byte(raw), targets[i]); err != nil {
				return nil, fmt.Errorf("failed to decode custom bank pattern %s: %w", p.BankID, err)
			}
		}
		p.IsEnabled = enabled != 0
		p.IsCustom = true
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating custom bank patterns: %w", err)
	}
	return out, nil
}

// DeleteCustomBankPattern removes a custom pattern, restoring any built-in
// config it shadowed.
func (s *SQLiteStorage) DeleteCustomBankPattern(ctx context.Context, groupID, bankID string) error {
	if err := validateScope(ctx, groupID, bankID); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM custom_bank_patterns WHERE group_id = ? AND bank_id = ?`, groupID, bankID)
	if err != nil {
		return classify(fmt.Errorf("failed to delete custom bank pattern: %w", err))
	}
	return expectOne(res, "custom bank pattern "+bankID)
}
