package duplicate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/notiledger/internal/common"
	"github.com/Veraticus/notiledger/internal/model"
)

//go:generate mockgen -source=resolver.go -destination=resolver_mock.go -package=duplicate

// Store is the storage the resolver needs.
type Store interface {
	GetPendingDuplicate(ctx context.Context, groupID, id string) (*model.PendingDuplicate, error)
	ClaimPendingDuplicate(ctx context.Context, groupID, id string, resolution model.Resolution, at time.Time) (bool, error)
	DeleteTransaction(ctx context.Context, groupID, id string) error
}

// Result describes what a resolution call did.
type Result struct {
	Pending *model.PendingDuplicate
	Deleted []string
	// Applied is false when the record had already been resolved.
	Applied bool
}

// Resolver applies resolutions to pending duplicates.
type Resolver struct {
	store Store
	now   func() time.Time
}

// NewResolver creates a Resolver.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store, now: time.Now}
}

// Resolve records the resolution for a pending duplicate and deletes the
// transactions it discards. Only the caller that claims the record reports
// Applied. Calls on a record that is already resolved finish the deletions of
// the stored resolution instead, so a delete that failed after the claim is
// completed by retrying; deletions of transactions already gone are skipped.
func (r *Resolver) Resolve(ctx context.Context, groupID, pendingID string, resolution model.Resolution) (*Result, error) {
	if !resolution.IsTerminal() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidResolution, resolution)
	}

	pending, err := r.store.GetPendingDuplicate(ctx, groupID, pendingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending duplicate: %w", err)
	}
	if pending.IsResolved {
		return r.finish(ctx, groupID, pending)
	}

	at := r.now()
	claimed, err := r.store.ClaimPendingDuplicate(ctx, groupID, pendingID, resolution, at)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending duplicate: %w", err)
	}
	if !claimed {
		slog.Debug("Pending duplicate already resolved", "group_id", groupID, "pending_id", pendingID)
		winner, err := r.store.GetPendingDuplicate(ctx, groupID, pendingID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload pending duplicate: %w", err)
		}
		return r.finish(ctx, groupID, winner)
	}

	pending.IsResolved = true
	pending.Resolution = resolution
	pending.ResolvedAt = &at

	deleted, err := r.deleteAll(ctx, groupID, pending.TransactionsToDelete(resolution))
	result := &Result{Pending: pending, Deleted: deleted, Applied: true}
	if err != nil {
		return result, err
	}

	slog.Info("Duplicate resolved",
		"group_id", groupID,
		"pending_id", pendingID,
		"resolution", resolution,
		"deleted", len(deleted))
	return result, nil
}

// finish re-applies the deletions of a record resolved by an earlier call.
func (r *Resolver) finish(ctx context.Context, groupID string, pending *model.PendingDuplicate) (*Result, error) {
	if !pending.IsResolved || !pending.Resolution.IsTerminal() {
		return &Result{Pending: pending}, nil
	}
	deleted, err := r.deleteAll(ctx, groupID, pending.TransactionsToDelete(pending.Resolution))
	result := &Result{Pending: pending, Deleted: deleted}
	if err != nil {
		return result, err
	}
	if len(deleted) > 0 {
		slog.Info("Finished deletions for resolved duplicate",
			"group_id", groupID,
			"pending_id", pending.ID,
			"resolution", pending.Resolution,
			"deleted", len(deleted))
	}
	return result, nil
}

// ApplyRule carries out an automatic resolution for a pair that was never
// stored. The incoming transaction is not yet persisted, so it is reported
// back rather than deleted; keepIncoming is false when the caller should drop it.
func (r *Resolver) ApplyRule(ctx context.Context, outcome Outcome, incomingID string) (keepIncoming bool, deleted []string, err error) {
	if outcome.Kind != AutoResolved || outcome.Pair == nil {
		return true, nil, nil
	}

	keepIncoming = true
	var existing []string
	for _, id := range outcome.Pair.TransactionsToDelete(outcome.Resolution) {
		if id == incomingID {
			keepIncoming = false
			continue
		}
		existing = append(existing, id)
	}

	deleted, err = r.deleteAll(ctx, outcome.Pair.GroupID, existing)
	return keepIncoming, deleted, err
}

// deleteAll removes the transactions, treating ones already gone as removed
// by an earlier attempt.
func (r *Resolver) deleteAll(ctx context.Context, groupID string, ids []string) ([]string, error) {
	deleted := make([]string, 0, len(ids))
	for _, id := range ids {
		err := r.store.DeleteTransaction(ctx, groupID, id)
		switch {
		case err == nil:
			deleted = append(deleted, id)
		case errors.Is(err, common.ErrNotFound):
			slog.Debug("Duplicate transaction already deleted", "group_id", groupID, "transaction_id", id)
		default:
			return deleted, fmt.Errorf("failed to delete transaction %s: %w", id, err)
		}
	}
	return deleted, nil
}
