package parser

import (
	"errors"
	"fmt"
)

// Kind classifies why a notification could not be parsed.
type Kind int

// Parse failure kinds.
const (
	KindNoMatchingBank Kind = iota + 1
	KindAmbiguousDirection
	KindAmountNotFound
)

// Sentinel errors matched by errors.Is against an *Error of the same kind.
var (
	ErrNoMatchingBank     = errors.New("no matching bank")
	ErrAmbiguousDirection = errors.New("ambiguous direction")
	ErrAmountNotFound     = errors.New("amount not found")
)

func (k Kind) String() string {
	switch k {
	case KindNoMatchingBank:
		return "NoMatchingBank"
	case KindAmbiguousDirection:
		return "AmbiguousDirection"
	case KindAmountNotFound:
		return "AmountNotFound"
	default:
		return "Unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindNoMatchingBank:
		return ErrNoMatchingBank
	case KindAmbiguousDirection:
		return ErrAmbiguousDirection
	case KindAmountNotFound:
		return ErrAmountNotFound
	default:
		return nil
	}
}

// Error is a recoverable parse failure. The caller falls back to manual entry.
type Error struct {
	BankID        string
	SourcePackage string
	Text          string
	Kind          Kind
}

func (e *Error) Error() string {
	if e.BankID != "" {
		return fmt.Sprintf("%s: bank %s", e.Kind.sentinel(), e.BankID)
	}
	if e.SourcePackage != "" {
		return fmt.Sprintf("%s: package %s", e.Kind.sentinel(), e.SourcePackage)
	}
	return fmt.Sprintf("%v", e.Kind.sentinel())
}

func (e *Error) Unwrap() error {
	return e.Kind.sentinel()
}

// KindOf returns the failure kind of err, or zero when err is not a parse failure.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return 0
}
