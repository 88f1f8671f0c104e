// Package duplicate finds transactions that report the same real-world event
// and applies the chosen resolution.
package duplicate

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/notiledger/internal/model"
)

// DefaultWindow is the largest gap between two notifications that can still
// describe one purchase. The boundary is inclusive.
const DefaultWindow = 3 * time.Minute

// Kind is the detector's verdict.
type Kind int

// Outcome kinds.
const (
	NoDuplicate Kind = iota
	AutoResolved
	PendingReview
)

func (k Kind) String() string {
	switch k {
	case AutoResolved:
		return "auto_resolved"
	case PendingReview:
		return "pending_review"
	default:
		return "none"
	}
}

// Outcome is the result of Detect. Pair is set for AutoResolved and
// PendingReview; it is not persisted by the detector. Rule and Resolution are
// set only for AutoResolved.
type Outcome struct {
	Pair       *model.PendingDuplicate
	Rule       *model.DuplicateRule
	Candidate  *model.Transaction
	Resolution model.Resolution
	Kind       Kind
}

// Detector compares a new transaction against a snapshot of recent ones.
type Detector struct {
	now    func() time.Time
	window time.Duration
}

// NewDetector creates a Detector. A non-positive window uses DefaultWindow.
func NewDetector(window time.Duration) *Detector {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Detector{window: window, now: time.Now}
}

// Window returns the configured comparison window.
func (d *Detector) Window() time.Duration {
	return d.window
}

// Detect looks for the closest recent transaction with the same amount and
// direction whose event time lies within the window of txn. The earlier of the
// two notifications becomes the first side of the pair. When a rule covers
// the pair's banks in either order its resolution applies without review.
func (d *Detector) Detect(txn *model.Transaction, recent []*model.Transaction, rules []*model.DuplicateRule) Outcome {
	candidate := d.closest(txn, recent)
	if candidate == nil {
		return Outcome{Kind: NoDuplicate}
	}

	first, second := candidate, txn
	if txn.EventTime().Before(candidate.EventTime()) {
		first, second = txn, candidate
	}
	pair := &model.PendingDuplicate{
		ID:         uuid.NewString(),
		GroupID:    txn.GroupID,
		First:      model.SnapshotOf(first),
		Second:     model.SnapshotOf(second),
		Resolution: model.ResolutionPending,
		CreatedAt:  d.now(),
	}

	for _, rule := range rules {
		resolution, ok := rule.ResolutionFor(first.BankID, second.BankID)
		if !ok {
			continue
		}
		slog.Info("Duplicate auto-resolved by rule",
			"group_id", txn.GroupID,
			"rule_id", rule.ID,
			"first_id", first.ID,
			"first_bank", first.BankID,
			"second_id", second.ID,
			"second_bank", second.BankID,
			"resolution", resolution)
		return Outcome{
			Kind:       AutoResolved,
			Pair:       pair,
			Rule:       rule,
			Candidate:  candidate,
			Resolution: resolution,
		}
	}

	return Outcome{Kind: PendingReview, Pair: pair, Candidate: candidate}
}

func (d *Detector) closest(txn *model.Transaction, recent []*model.Transaction) *model.Transaction {
	at := txn.EventTime()
	var (
		best    *model.Transaction
		bestGap time.Duration
	)
	for _, other := range recent {
		if other == nil || other.ID == txn.ID || other.GroupID != txn.GroupID {
			continue
		}
		if other.Amount != txn.Amount || other.Type != txn.Type {
			continue
		}
		gap := at.Sub(other.EventTime()).Abs()
		if gap > d.window {
			continue
		}
		if best == nil || gap < bestGap || (gap == bestGap && other.EventTime().Before(best.EventTime())) {
			best, bestGap = other, gap
		}
	}
	return best
}
