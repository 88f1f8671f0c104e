// Package model defines the core data structures for the notiledger application.
package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// TransactionType is the direction of money movement.
type TransactionType string

// Transaction type constants.
const (
	TypeIncome  TransactionType = "INCOME"
	TypeExpense TransactionType = "EXPENSE"
	// TypeUnknown is the fallback for stored values this build does not recognize.
	TypeUnknown TransactionType = "UNKNOWN"
)

// ParseTransactionType converts a stored string into a TransactionType.
// Unrecognized input yields TypeUnknown instead of an error.
func ParseTransactionType(s string) TransactionType {
	switch TransactionType(strings.ToUpper(strings.TrimSpace(s))) {
	case TypeIncome:
		return TypeIncome
	case TypeExpense:
		return TypeExpense
	default:
		return TypeUnknown
	}
}

// Source records how a transaction entered the system.
type Source string

// Source constants.
const (
	SourceNotification    Source = "NOTIFICATION"
	SourceManualTextInput Source = "MANUAL_TEXT_INPUT"
	SourceManualEntry     Source = "MANUAL_ENTRY"
)

// ParseSource converts a stored string into a Source, defaulting to SourceManualEntry.
func ParseSource(s string) Source {
	switch Source(strings.ToUpper(strings.TrimSpace(s))) {
	case SourceNotification:
		return SourceNotification
	case SourceManualTextInput:
		return SourceManualTextInput
	default:
		return SourceManualEntry
	}
}

// IncomeSubType refines an INCOME transaction.
type IncomeSubType string

// Income sub type constants.
const (
	IncomeSubTypeNone       IncomeSubType = ""
	IncomeSubTypeSalary     IncomeSubType = "SALARY"
	IncomeSubTypeTransferIn IncomeSubType = "TRANSFER_IN"
	IncomeSubTypeInterest   IncomeSubType = "INTEREST"
	IncomeSubTypeRefund     IncomeSubType = "REFUND"
	IncomeSubTypeOther      IncomeSubType = "OTHER"
)

// ParseIncomeSubType converts a stored string, falling back to IncomeSubTypeOther.
func ParseIncomeSubType(s string) IncomeSubType {
	switch v := IncomeSubType(strings.ToUpper(strings.TrimSpace(s))); v {
	case IncomeSubTypeNone, IncomeSubTypeSalary, IncomeSubTypeTransferIn, IncomeSubTypeInterest, IncomeSubTypeRefund:
		return v
	default:
		return IncomeSubTypeOther
	}
}

// ExpenseSubType refines an EXPENSE transaction.
type ExpenseSubType string

// Expense sub type constants.
const (
	ExpenseSubTypeNone        ExpenseSubType = ""
	ExpenseSubTypeCard        ExpenseSubType = "CARD"
	ExpenseSubTypeTransferOut ExpenseSubType = "TRANSFER_OUT"
	ExpenseSubTypeAutoDebit   ExpenseSubType = "AUTO_DEBIT"
	ExpenseSubTypeWithdrawal  ExpenseSubType = "WITHDRAWAL"
	ExpenseSubTypeOther       ExpenseSubType = "OTHER"
)

// ParseExpenseSubType converts a stored string, falling back to ExpenseSubTypeOther.
func ParseExpenseSubType(s string) ExpenseSubType {
	switch v := ExpenseSubType(strings.ToUpper(strings.TrimSpace(s))); v {
	case ExpenseSubTypeNone, ExpenseSubTypeCard, ExpenseSubTypeTransferOut, ExpenseSubTypeAutoDebit, ExpenseSubTypeWithdrawal:
		return v
	default:
		return ExpenseSubTypeOther
	}
}

// Transaction is the canonical parsed or manually entered money movement.
// Amount is always non-negative and expressed in the smallest currency unit.
type Transaction struct {
	TransactionDate  time.Time
	NotificationTime time.Time
	CreatedAt        time.Time
	ID               string
	GroupID          string
	UserID           string
	BankID           string
	BankName         string
	Description      string
	Category         Category
	Merchant         string // Merchant catalog id
	MerchantName     string // Display name or extracted counterparty
	OriginalText     string // Raw input preserved for audit and re-parsing
	SourcePackage    string
	LinkedChildID    string
	IncomeSubType    IncomeSubType
	ExpenseSubType   ExpenseSubType
	Type             TransactionType
	Source           Source
	Amount           int64
	IsConfirmed      bool
}

// EventTime is the instant used for duplicate comparison. Notification arrival
// time is preferred because bank and card issuer stamp the same purchase differently.
func (t *Transaction) EventTime() time.Time {
	if !t.NotificationTime.IsZero() {
		return t.NotificationTime
	}
	return t.TransactionDate
}

// GenerateHash creates a stable fingerprint of the notification content.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%d:%s:%s",
		t.GroupID,
		t.BankID,
		t.Amount,
		t.EventTime().UTC().Format(time.RFC3339),
		t.OriginalText)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// EventPayload returns the fields the push-notification dispatcher reads
// when a transaction document is created.
func (t *Transaction) EventPayload() map[string]any {
	description := t.Description
	if description == "" {
		description = t.MerchantName
	}
	return map[string]any{
		"groupId":      t.GroupID,
		"userId":       t.UserID,
		"type":         string(t.Type),
		"amount":       t.Amount,
		"description":  description,
		"merchantName": t.MerchantName,
	}
}
