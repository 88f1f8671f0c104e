package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Veraticus/notiledger/internal/deposit"
	"github.com/Veraticus/notiledger/internal/duplicate"
	"github.com/Veraticus/notiledger/internal/mapping"
	"github.com/Veraticus/notiledger/internal/model"
)

// CorrectCategory sets a transaction's category at the user's request and
// teaches the learned mapping store the merchant's category.
func (e *Engine) CorrectCategory(ctx context.Context, groupID, transactionID string, category model.Category) (*model.LearnedMapping, error) {
	if !category.IsKnown() {
		return nil, fmt.Errorf("unknown category %q", category)
	}
	txn, err := e.storage.GetTransaction(ctx, groupID, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	if err := e.storage.UpdateTransactionCategory(ctx, groupID, transactionID, category, true); err != nil {
		return nil, fmt.Errorf("failed to update category: %w", err)
	}

	name := txn.MerchantName
	if name == "" {
		name = txn.Description
	}
	return e.mappings.RecordCorrection(ctx, groupID, name, txn.Type, category)
}

// SuggestCategory returns the learned category for a merchant, if any.
func (e *Engine) SuggestCategory(ctx context.Context, groupID, merchantName string, txnType model.TransactionType) (*mapping.Suggestion, bool, error) {
	return e.mappings.SuggestCategory(ctx, groupID, merchantName, txnType)
}

// ConfirmContribution accepts an automatically matched contribution.
func (e *Engine) ConfirmContribution(ctx context.Context, groupID, contributionID string) (*model.SavingsContribution, error) {
	return e.deposits.ConfirmContribution(ctx, groupID, contributionID)
}

// RejectContribution records that a match was wrong. A non-empty goalID moves
// the contribution to that goal; otherwise it is removed.
func (e *Engine) RejectContribution(ctx context.Context, groupID, contributionID, goalID, userID string) (*model.SavingsContribution, error) {
	return e.deposits.RejectContribution(ctx, groupID, contributionID, goalID, userID)
}

// EditContribution changes a contribution's amount with an audit trail.
func (e *Engine) EditContribution(ctx context.Context, groupID, contributionID string, amount int64, userID string) (*model.SavingsContribution, error) {
	return e.deposits.EditContribution(ctx, groupID, contributionID, amount, userID)
}

// RememberDeposit creates a deposit pattern from a deposit the user assigned
// to a goal by hand.
func (e *Engine) RememberDeposit(ctx context.Context, req deposit.RememberRequest) (*model.LearnedDepositPattern, error) {
	return e.deposits.Remember(ctx, req)
}

// ReactivatePattern turns a deactivated deposit pattern back on.
func (e *Engine) ReactivatePattern(ctx context.Context, groupID, patternID string) error {
	return e.deposits.Reactivate(ctx, groupID, patternID)
}

// ResolveDuplicate applies the user's decision to a pending duplicate. With
// remember set, a rule for the pair's banks is saved so the same pairing is
// resolved automatically from now on.
func (e *Engine) ResolveDuplicate(ctx context.Context, groupID, pendingID string, resolution model.Resolution, remember bool) (*duplicate.Result, error) {
	unlock := e.locks.lock(groupID)
	res, err := e.resolver.Resolve(ctx, groupID, pendingID, resolution)
	unlock()
	if err != nil {
		return res, err
	}
	if res.Applied {
		e.metrics.RecordResolution(string(resolution))
	}

	if remember && res.Pending.First.BankID != res.Pending.Second.BankID {
		rule := &model.DuplicateRule{
			ID:         uuid.NewString(),
			GroupID:    groupID,
			Bank1ID:    res.Pending.First.BankID,
			Bank2ID:    res.Pending.Second.BankID,
			Resolution: res.Pending.Resolution,
			CreatedAt:  e.now(),
		}
		if err := e.storage.SaveDuplicateRule(ctx, rule); err != nil {
			return res, fmt.Errorf("failed to save duplicate rule: %w", err)
		}
		slog.Info("Duplicate rule saved",
			"group_id", groupID,
			"bank1", rule.Bank1ID,
			"bank2", rule.Bank2ID,
			"resolution", rule.Resolution)
	}
	return res, nil
}

// groupLocks serializes detection and commit per group.
type groupLocks struct {
	m  map[string]*sync.Mutex
	mu sync.Mutex
}

func (g *groupLocks) lock(groupID string) func() {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[string]*sync.Mutex)
	}
	l, ok := g.m[groupID]
	if !ok {
		l = &sync.Mutex{}
		g.m[groupID] = l
	}
	g.mu.Unlock()

	l.Lock()
	return l.Unlock
}
