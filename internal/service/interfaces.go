// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/notiledger/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Type      model.TransactionType
	Limit     int
	Offset    int
}

// TransactionStore persists transactions. Every call is scoped to one group.
// Lookups of missing records return common.ErrNotFound.
type TransactionStore interface {
	SaveTransaction(ctx context.Context, txn *model.Transaction) error
	GetTransaction(ctx context.Context, groupID, id string) (*model.Transaction, error)
	DeleteTransaction(ctx context.Context, groupID, id string) error
	GetRecentTransactions(ctx context.Context, groupID string, since time.Time) ([]*model.Transaction, error)
	ListTransactions(ctx context.Context, groupID string, filter TransactionFilter) ([]*model.Transaction, error)
	UpdateTransactionCategory(ctx context.Context, groupID, id string, category model.Category, confirmed bool) error
}

// LearnedMappingStore persists merchant to category mappings.
type LearnedMappingStore interface {
	GetLearnedMapping(ctx context.Context, groupID, merchantName string, txnType model.TransactionType) (*model.LearnedMapping, error)
	// UpsertLearnedMapping inserts the mapping or, when one exists for the same
	// key, increments its use count and overwrites its category atomically.
	UpsertLearnedMapping(ctx context.Context, mapping *model.LearnedMapping) (*model.LearnedMapping, error)
	ListLearnedMappings(ctx context.Context, groupID string) ([]*model.LearnedMapping, error)
	DeleteLearnedMapping(ctx context.Context, groupID, id string) error
}

// DepositPatternStore persists learned deposit patterns. Counter updates are
// atomic per pattern and return the pattern as it is after the update.
type DepositPatternStore interface {
	CreateDepositPattern(ctx context.Context, pattern *model.LearnedDepositPattern) error
	GetDepositPattern(ctx context.Context, groupID, id string) (*model.LearnedDepositPattern, error)
	GetActiveDepositPatterns(ctx context.Context, groupID string) ([]*model.LearnedDepositPattern, error)
	ListDepositPatterns(ctx context.Context, groupID string) ([]*model.LearnedDepositPattern, error)
	IncrementDepositPatternSuccess(ctx context.Context, groupID, id string) (*model.LearnedDepositPattern, error)
	IncrementDepositPatternFailure(ctx context.Context, groupID, id string) (*model.LearnedDepositPattern, error)
	DeactivateDepositPattern(ctx context.Context, groupID, id string) error
	ReactivateDepositPattern(ctx context.Context, groupID, id string) error
}

// ContributionStore persists savings contributions.
type ContributionStore interface {
	SaveSavingsContribution(ctx context.Context, c *model.SavingsContribution) error
	GetSavingsContribution(ctx context.Context, groupID, id string) (*model.SavingsContribution, error)
	ListSavingsContributions(ctx context.Context, groupID string, needsReviewOnly bool) ([]*model.SavingsContribution, error)
	UpdateSavingsContribution(ctx context.Context, c *model.SavingsContribution) error
	// ClaimContributionReview clears needsReview and reports whether this
	// call was the one that cleared it.
	ClaimContributionReview(ctx context.Context, groupID, id string) (bool, error)
	DeleteSavingsContribution(ctx context.Context, groupID, id string) error
}

// DuplicateStore persists pending duplicates and duplicate rules.
type DuplicateStore interface {
	// CreatePendingDuplicate stores p unless a record for the same pair exists,
	// in which case the existing record is returned and created is false.
	CreatePendingDuplicate(ctx context.Context, p *model.PendingDuplicate) (stored *model.PendingDuplicate, created bool, err error)
	GetPendingDuplicate(ctx context.Context, groupID, id string) (*model.PendingDuplicate, error)
	ListPendingDuplicates(ctx context.Context, groupID string, includeResolved bool) ([]*model.PendingDuplicate, error)
	// ClaimPendingDuplicate marks an unresolved record resolved. It reports
	// false when another caller resolved it first.
	ClaimPendingDuplicate(ctx context.Context, groupID, id string, resolution model.Resolution, at time.Time) (bool, error)

	SaveDuplicateRule(ctx context.Context, rule *model.DuplicateRule) error
	GetDuplicateRules(ctx context.Context, groupID string) ([]*model.DuplicateRule, error)
	DeleteDuplicateRule(ctx context.Context, groupID, id string) error
}

// CustomBankPatternStore persists user-authored bank configurations.
type CustomBankPatternStore interface {
	SaveCustomBankPattern(ctx context.Context, p *model.CustomBankPattern) error
	GetCustomBankPatterns(ctx context.Context, groupID string) ([]model.CustomBankPattern, error)
	DeleteCustomBankPattern(ctx context.Context, groupID, bankID string) error
}

// UnparsedStore keeps notifications that need manual entry.
type UnparsedStore interface {
	SaveUnparsedNotification(ctx context.Context, n *model.UnparsedNotification) error
	ListUnparsedNotifications(ctx context.Context, groupID string, limit int) ([]*model.UnparsedNotification, error)
	DeleteUnparsedNotification(ctx context.Context, groupID, id string) error
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	TransactionStore
	LearnedMappingStore
	DepositPatternStore
	ContributionStore
	DuplicateStore
	CustomBankPatternStore
	UnparsedStore

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}
