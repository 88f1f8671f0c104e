package model

import (
	"fmt"
	"strings"
	"time"
)

// Resolution is the outcome chosen for a suspected duplicate pair.
type Resolution string

// Resolution constants.
const (
	ResolutionPending    Resolution = "PENDING"
	ResolutionKeepBoth   Resolution = "KEEP_BOTH"
	ResolutionKeepFirst  Resolution = "KEEP_FIRST"
	ResolutionKeepSecond Resolution = "KEEP_SECOND"
	ResolutionDeleteBoth Resolution = "DELETE_BOTH"
)

// ParseResolution converts a stored string, falling back to ResolutionPending.
func ParseResolution(s string) Resolution {
	switch r := Resolution(strings.ToUpper(strings.TrimSpace(s))); r {
	case ResolutionKeepBoth, ResolutionKeepFirst, ResolutionKeepSecond, ResolutionDeleteBoth:
		return r
	default:
		return ResolutionPending
	}
}

// IsTerminal reports whether r is one of the four final resolutions.
func (r Resolution) IsTerminal() bool {
	switch r {
	case ResolutionKeepBoth, ResolutionKeepFirst, ResolutionKeepSecond, ResolutionDeleteBoth:
		return true
	default:
		return false
	}
}

// Mirror returns the resolution seen from the opposite ordering of the pair.
func (r Resolution) Mirror() Resolution {
	switch r {
	case ResolutionKeepFirst:
		return ResolutionKeepSecond
	case ResolutionKeepSecond:
		return ResolutionKeepFirst
	default:
		return r
	}
}

// DuplicateTransactionInfo is a snapshot of one side of a duplicate pair.
type DuplicateTransactionInfo struct {
	NotificationTime time.Time
	TransactionID    string
	BankID           string
	Description      string
	OriginalText     string
	Type             TransactionType
	Amount           int64
}

// SnapshotOf captures the fields of txn kept for duplicate review.
func SnapshotOf(txn *Transaction) DuplicateTransactionInfo {
	return DuplicateTransactionInfo{
		TransactionID:    txn.ID,
		BankID:           txn.BankID,
		Description:      txn.Description,
		Type:             txn.Type,
		NotificationTime: txn.EventTime(),
		OriginalText:     txn.OriginalText,
		Amount:           txn.Amount,
	}
}

// PendingDuplicate holds a suspected duplicate event awaiting a decision.
// Once resolved it is never revised.
type PendingDuplicate struct {
	CreatedAt  time.Time
	ResolvedAt *time.Time
	ID         string
	GroupID    string
	First      DuplicateTransactionInfo
	Second     DuplicateTransactionInfo
	Resolution Resolution
	IsResolved bool
}

// PairKey identifies the unordered pair of transactions, so a pair detected
// twice by racing evaluations maps to the same record.
func (p *PendingDuplicate) PairKey() string {
	a, b := p.First.TransactionID, p.Second.TransactionID
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%s|%s", a, b)
}

// TransactionsToDelete lists the transaction ids removed by resolution r.
func (p *PendingDuplicate) TransactionsToDelete(r Resolution) []string {
	switch r {
	case ResolutionKeepFirst:
		return []string{p.Second.TransactionID}
	case ResolutionKeepSecond:
		return []string{p.First.TransactionID}
	case ResolutionDeleteBoth:
		return []string{p.First.TransactionID, p.Second.TransactionID}
	default:
		return nil
	}
}

// DuplicateRule pre-authorizes a resolution for an ordered pair of bank ids.
// Bank1ID is the earlier notification of the pair.
type DuplicateRule struct {
	CreatedAt  time.Time
	ID         string
	GroupID    string
	Bank1ID    string
	Bank2ID    string
	Resolution Resolution
}

// Validate ensures the rule can be applied automatically.
func (r *DuplicateRule) Validate() error {
	if r.Bank1ID == "" || r.Bank2ID == "" {
		return fmt.Errorf("both bank ids are required")
	}
	if !r.Resolution.IsTerminal() {
		return fmt.Errorf("rule resolution must be terminal, got %q", r.Resolution)
	}
	return nil
}

// ResolutionFor returns the rule's resolution for a pair ordered (first, second),
// checking both orderings. The second return is false when the rule does not apply.
func (r *DuplicateRule) ResolutionFor(firstBankID, secondBankID string) (Resolution, bool) {
	switch {
	case r.Bank1ID == firstBankID && r.Bank2ID == secondBankID:
		return r.Resolution, true
	case r.Bank1ID == secondBankID && r.Bank2ID == firstBankID:
		return r.Resolution.Mirror(), true
	default:
		return ResolutionPending, false
	}
}
