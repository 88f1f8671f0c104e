package testutil

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/notiledger/internal/model"
)

// BaseTime is a fixed instant builders use unless told otherwise.
var BaseTime = time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC)

// TransactionBuilder provides a fluent interface for test transactions.
type TransactionBuilder struct {
	txn model.Transaction
}

// NewTransaction returns a builder for a confirmed card expense at BaseTime.
func NewTransaction() *TransactionBuilder {
	return &TransactionBuilder{txn: model.Transaction{
		ID:               uuid.NewString(),
		GroupID:          DefaultGroupID,
		UserID:           "user-test",
		BankID:           "kb_card",
		BankName:         "KB국민카드",
		Description:      "스타벅스",
		Category:         model.CategoryCafe,
		Merchant:         "starbucks",
		MerchantName:     "스타벅스",
		OriginalText:     "KB국민카드 승인 12,345원 스타벅스",
		Type:             model.TypeExpense,
		ExpenseSubType:   model.ExpenseSubTypeCard,
		Source:           model.SourceNotification,
		Amount:           12345,
		TransactionDate:  BaseTime,
		NotificationTime: BaseTime,
		IsConfirmed:      true,
	}}
}

// WithID sets the transaction id.
func (b *TransactionBuilder) WithID(id string) *TransactionBuilder {
	b.txn.ID = id
	return b
}

// WithGroup sets the group id.
func (b *TransactionBuilder) WithGroup(groupID string) *TransactionBuilder {
	b.txn.GroupID = groupID
	return b
}

// WithBank sets the bank id and display name.
func (b *TransactionBuilder) WithBank(id, name string) *TransactionBuilder {
	b.txn.BankID = id
	b.txn.BankName = name
	return b
}

// WithAmount sets the amount.
func (b *TransactionBuilder) WithAmount(amount int64) *TransactionBuilder {
	b.txn.Amount = amount
	return b
}

// WithType sets the direction and clears the subtype of the other direction.
func (b *TransactionBuilder) WithType(t model.TransactionType) *TransactionBuilder {
	b.txn.Type = t
	if t == model.TypeIncome {
		b.txn.ExpenseSubType = model.ExpenseSubTypeNone
		b.txn.IncomeSubType = model.IncomeSubTypeTransferIn
	}
	return b
}

// At sets both the notification time and the transaction date.
func (b *TransactionBuilder) At(t time.Time) *TransactionBuilder {
	b.txn.NotificationTime = t
	b.txn.TransactionDate = t
	return b
}

// WithText sets the original notification text.
func (b *TransactionBuilder) WithText(text string) *TransactionBuilder {
	b.txn.OriginalText = text
	return b
}

// WithMerchant sets the merchant id and name.
func (b *TransactionBuilder) WithMerchant(id, name string) *TransactionBuilder {
	b.txn.Merchant = id
	b.txn.MerchantName = name
	b.txn.Description = name
	return b
}

// WithCategory sets the category.
func (b *TransactionBuilder) WithCategory(c model.Category) *TransactionBuilder {
	b.txn.Category = c
	return b
}

// Build returns a copy of the built transaction.
func (b *TransactionBuilder) Build() *model.Transaction {
	txn := b.txn
	return &txn
}

// NewDepositPattern returns an active pattern for sender 홍길동 in DefaultGroupID.
func NewDepositPattern(goalID string) *model.LearnedDepositPattern {
	return &model.LearnedDepositPattern{
		ID:              uuid.NewString(),
		GroupID:         DefaultGroupID,
		SavingsGoalID:   goalID,
		SenderNameRegex: "홍길동",
		AmountRegex:     `([0-9][0-9,]*)\s?원`,
		IsActive:        true,
		CreatedAt:       BaseTime,
	}
}

// MustSaveTransaction persists txn or fails the test.
func (db *TestDB) MustSaveTransaction(txn *model.Transaction) *model.Transaction {
	db.t.Helper()
	if err := db.Storage.SaveTransaction(context.Background(), txn); err != nil {
		db.t.Fatalf("failed to save transaction %s: %v", txn.ID, err)
	}
	return txn
}

// MustCreatePattern persists p or fails the test.
func (db *TestDB) MustCreatePattern(p *model.LearnedDepositPattern) *model.LearnedDepositPattern {
	db.t.Helper()
	if err := db.Storage.CreateDepositPattern(context.Background(), p); err != nil {
		db.t.Fatalf("failed to create deposit pattern %s: %v", p.ID, err)
	}
	return p
}
