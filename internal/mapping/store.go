// Package mapping learns merchant to category associations from user corrections.
package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/notiledger/internal/common"
	"github.com/Veraticus/notiledger/internal/model"
	"github.com/Veraticus/notiledger/internal/service"
)

// DefaultAutoApplyMinUses is the use count at which a learned category
// confirms a transaction on its own.
const DefaultAutoApplyMinUses = 2

// Suggestion is a remembered category for a merchant.
type Suggestion struct {
	Category  model.Category
	UseCount  int
	AutoApply bool
}

// Store suggests and records learned categories.
type Store struct {
	repo             service.LearnedMappingStore
	now              func() time.Time
	autoApplyMinUses int
}

// NewStore creates a Store. autoApplyMinUses below 1 falls back to the default.
func NewStore(repo service.LearnedMappingStore, autoApplyMinUses int) *Store {
	if autoApplyMinUses < 1 {
		autoApplyMinUses = DefaultAutoApplyMinUses
	}
	return &Store{
		repo:             repo,
		autoApplyMinUses: autoApplyMinUses,
		now:              time.Now,
	}
}

// SuggestCategory returns the stored category for the merchant and type.
// The second return is false when nothing has been learned.
func (s *Store) SuggestCategory(ctx context.Context, groupID, merchantName string, txnType model.TransactionType) (*Suggestion, bool, error) {
	key := Normalize(merchantName)
	if key == "" {
		return nil, false, nil
	}

	m, err := s.repo.GetLearnedMapping(ctx, groupID, key, txnType)
	if errors.Is(err, common.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up learned mapping: %w", err)
	}

	return &Suggestion{
		Category:  m.Category,
		UseCount:  m.UseCount,
		AutoApply: m.UseCount >= s.autoApplyMinUses,
	}, true, nil
}

// RecordCorrection remembers category for the merchant and type. A repeated
// correction increments the use count and the newest category wins.
func (s *Store) RecordCorrection(ctx context.Context, groupID, merchantName string, txnType model.TransactionType, category model.Category) (*model.LearnedMapping, error) {
	key := Normalize(merchantName)
	if key == "" {
		return nil, fmt.Errorf("merchant name %q has nothing to learn from", merchantName)
	}
	if !category.IsKnown() {
		return nil, fmt.Errorf("unknown category %q", category)
	}

	now := s.now()
	stored, err := s.repo.UpsertLearnedMapping(ctx, &model.LearnedMapping{
		ID:                   uuid.NewString(),
		GroupID:              groupID,
		MerchantName:         key,
		OriginalMerchantName: strings.TrimSpace(merchantName),
		Category:             category,
		TransactionType:      txnType,
		UseCount:             1,
		CreatedAt:            now,
		LastUsedAt:           now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record correction: %w", err)
	}

	slog.Info("Learned mapping recorded",
		"group_id", groupID,
		"merchant", key,
		"type", txnType,
		"category", stored.Category,
		"use_count", stored.UseCount)

	return stored, nil
}

// Apply overrides txn's category with a learned one. Below the auto-apply
// threshold the category is applied but txn stays unconfirmed.
func (s *Store) Apply(ctx context.Context, txn *model.Transaction) (bool, error) {
	name := txn.MerchantName
	if name == "" {
		return false, nil
	}

	sug, ok, err := s.SuggestCategory(ctx, txn.GroupID, name, txn.Type)
	if err != nil || !ok {
		return false, err
	}

	txn.Category = sug.Category
	txn.IsConfirmed = sug.AutoApply
	return true, nil
}
