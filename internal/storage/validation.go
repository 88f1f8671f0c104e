// Package storage provides the data persistence layer for notiledger.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/notiledger/internal/model"
)

// Validation errors.
var (
	ErrNilContext          = errors.New("context cannot be nil")
	ErrEmptyString         = errors.New("string parameter cannot be empty")
	ErrNilParameter        = errors.New("parameter cannot be nil")
	ErrInvalidTransaction  = errors.New("invalid transaction")
	ErrInvalidMapping      = errors.New("invalid learned mapping")
	ErrInvalidPattern      = errors.New("invalid deposit pattern")
	ErrInvalidContribution = errors.New("invalid savings contribution")
	ErrInvalidDuplicate    = errors.New("invalid pending duplicate")
	ErrInvalidRule         = errors.New("invalid duplicate rule")
	ErrInvalidBankPattern  = errors.New("invalid custom bank pattern")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateScope checks the context and the group and record ids most calls take.
func validateScope(ctx context.Context, groupID string, ids ...string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(groupID, "groupID"); err != nil {
		return err
	}
	for _, id := range ids {
		if err := validateString(id, "id"); err != nil {
			return err
		}
	}
	return nil
}

func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.GroupID == "" {
		return fmt.Errorf("%w: missing group ID", ErrInvalidTransaction)
	}
	if txn.Amount < 0 {
		return fmt.Errorf("%w: negative amount %d", ErrInvalidTransaction, txn.Amount)
	}
	if txn.TransactionDate.IsZero() {
		return fmt.Errorf("%w: missing transaction date", ErrInvalidTransaction)
	}
	if txn.Type != model.TypeIncome && txn.Type != model.TypeExpense {
		return fmt.Errorf("%w: type %q", ErrInvalidTransaction, txn.Type)
	}
	return nil
}

func validateMapping(m *model.LearnedMapping) error {
	if m == nil {
		return fmt.Errorf("%w: mapping", ErrNilParameter)
	}
	if m.ID == "" || m.GroupID == "" {
		return fmt.Errorf("%w: missing id or group ID", ErrInvalidMapping)
	}
	if strings.TrimSpace(m.MerchantName) == "" {
		return fmt.Errorf("%w: missing merchant name", ErrInvalidMapping)
	}
	if !m.Category.IsKnown() {
		return fmt.Errorf("%w: category %q", ErrInvalidMapping, m.Category)
	}
	return nil
}

func validatePattern(p *model.LearnedDepositPattern) error {
	if p == nil {
		return fmt.Errorf("%w: pattern", ErrNilParameter)
	}
	if p.ID == "" || p.GroupID == "" {
		return fmt.Errorf("%w: missing id or group ID", ErrInvalidPattern)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}
	return nil
}

func validateContribution(c *model.SavingsContribution) error {
	if c == nil {
		return fmt.Errorf("%w: contribution", ErrNilParameter)
	}
	if c.ID == "" || c.GroupID == "" {
		return fmt.Errorf("%w: missing id or group ID", ErrInvalidContribution)
	}
	if c.SavingsGoalID == "" {
		return fmt.Errorf("%w: missing savings goal", ErrInvalidContribution)
	}
	if c.Amount < 0 {
		return fmt.Errorf("%w: negative amount %d", ErrInvalidContribution, c.Amount)
	}
	return nil
}

func validatePendingDuplicate(p *model.PendingDuplicate) error {
	if p == nil {
		return fmt.Errorf("%w: pending duplicate", ErrNilParameter)
	}
	if p.ID == "" || p.GroupID == "" {
		return fmt.Errorf("%w: missing id or group ID", ErrInvalidDuplicate)
	}
	if p.First.TransactionID == "" || p.Second.TransactionID == "" {
		return fmt.Errorf("%w: both transaction ids are required", ErrInvalidDuplicate)
	}
	if p.First.TransactionID == p.Second.TransactionID {
		return fmt.Errorf("%w: a transaction cannot duplicate itself", ErrInvalidDuplicate)
	}
	return nil
}

func validateRule(r *model.DuplicateRule) error {
	if r == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if r.ID == "" || r.GroupID == "" {
		return fmt.Errorf("%w: missing id or group ID", ErrInvalidRule)
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	return nil
}

func validateBankPattern(p *model.CustomBankPattern) error {
	if p == nil {
		return fmt.Errorf("%w: custom bank pattern", ErrNilParameter)
	}
	if p.GroupID == "" {
		return fmt.Errorf("%w: missing group ID", ErrInvalidBankPattern)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBankPattern, err)
	}
	return nil
}
