// Package parser turns bank and card notification text into transactions.
//
// Parsing is a pure function of the text, the source package and the catalog
// snapshot passed in. Nothing is stored and nothing is cached between calls.
package parser

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Veraticus/notiledger/internal/catalog"
	"github.com/Veraticus/notiledger/internal/model"
)

const maxDescriptionRunes = 40

// Result is a successfully parsed notification.
type Result struct {
	Merchant        model.Merchant
	BankID          string
	BankName        string
	MerchantName    string
	DirectionWord   string
	Type            model.TransactionType
	IncomeSubType   model.IncomeSubType
	ExpenseSubType  model.ExpenseSubType
	Amount          int64
	MerchantMatched bool
	CustomBank      bool
}

// Parse classifies text emitted by sourcePackage using the enabled banks of
// snap that list the package. Candidates are tried in catalog order and the
// first success wins. When every candidate fails, the first candidate's
// failure is returned.
func Parse(snap *catalog.Snapshot, text, sourcePackage string) (*Result, error) {
	candidates := snap.BanksForPackage(sourcePackage)
	if len(candidates) == 0 {
		return nil, &Error{Kind: KindNoMatchingBank, SourcePackage: sourcePackage, Text: text}
	}

	var firstErr error
	for _, bank := range candidates {
		res, err := parseWith(snap, bank, text)
		if err == nil {
			return res, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// ParseManualText classifies text typed or pasted by the user. The source app
// is unknown, so every enabled bank is a candidate; banks named in the text
// are tried first. When all candidates fail, the failure that got furthest is
// returned.
func ParseManualText(snap *catalog.Snapshot, text string) (*Result, error) {
	candidates := orderByMention(snap.EnabledBanks(), text)
	if len(candidates) == 0 {
		return nil, &Error{Kind: KindNoMatchingBank, Text: text}
	}

	var best *Error
	for _, bank := range candidates {
		res, err := parseWith(snap, bank, text)
		if err == nil {
			return res, nil
		}
		var perr *Error
		if !errors.As(err, &perr) {
			return nil, err
		}
		if best == nil || perr.Kind > best.Kind {
			best = perr
		}
	}
	return nil, best
}

func parseWith(snap *catalog.Snapshot, bank catalog.Bank, text string) (*Result, error) {
	cfg := bank.Config

	txnType, word, ok := classifyDirection(text, cfg.IncomeKeywords, cfg.ExpenseKeywords)
	if !ok {
		return nil, &Error{Kind: KindAmbiguousDirection, BankID: cfg.BankID, Text: text}
	}

	amount, ok := extractAmount(bank.AmountRe, text)
	if !ok {
		return nil, &Error{Kind: KindAmountNotFound, BankID: cfg.BankID, Text: text}
	}

	res := &Result{
		BankID:        cfg.BankID,
		BankName:      cfg.DisplayName,
		CustomBank:    bank.IsCustom,
		Type:          txnType,
		DirectionWord: word,
		Amount:        amount,
	}

	if txnType == model.TypeIncome {
		res.IncomeSubType = incomeSubType(text)
	} else {
		res.ExpenseSubType = expenseSubType(text)
	}

	merchant, matched := snap.MatchMerchant(text)
	res.Merchant = merchant
	res.MerchantMatched = matched
	if matched {
		res.MerchantName = merchant.DisplayName
	} else if name, found := extractMerchantName(bank, text); found {
		res.MerchantName = name
	}

	return res, nil
}

// Category is the category implied by the parse alone, before learned mappings.
func (r *Result) Category() model.Category {
	if r.MerchantMatched {
		return r.Merchant.DefaultCategory
	}
	switch r.IncomeSubType {
	case model.IncomeSubTypeSalary:
		return model.CategorySalary
	case model.IncomeSubTypeTransferIn:
		return model.CategoryTransfer
	}
	if r.ExpenseSubType == model.ExpenseSubTypeTransferOut {
		return model.CategoryTransfer
	}
	return model.CategoryUncategorized
}

// Transaction builds the unsaved transaction for a parsed notification.
// A catch-all merchant leaves the transaction unconfirmed.
func (r *Result) Transaction(n model.Notification, source model.Source) *model.Transaction {
	when := n.PostedAt
	if when.IsZero() {
		when = time.Now()
	}

	description := r.MerchantName
	if description == "" {
		description = truncateRunes(strings.Join(strings.Fields(n.Text), " "), maxDescriptionRunes)
	}

	return &model.Transaction{
		GroupID:          n.GroupID,
		UserID:           n.UserID,
		BankID:           r.BankID,
		BankName:         r.BankName,
		Type:             r.Type,
		IncomeSubType:    r.IncomeSubType,
		ExpenseSubType:   r.ExpenseSubType,
		Amount:           r.Amount,
		Merchant:         r.Merchant.ID,
		MerchantName:     r.MerchantName,
		Description:      description,
		Category:         r.Category(),
		Source:           source,
		OriginalText:     n.Text,
		SourcePackage:    n.SourcePackage,
		TransactionDate:  when,
		NotificationTime: n.PostedAt,
		IsConfirmed:      r.MerchantMatched,
	}
}

func orderByMention(banks []catalog.Bank, text string) []catalog.Bank {
	lowered := strings.ToLower(text)
	mentioned := make([]catalog.Bank, 0, len(banks))
	rest := make([]catalog.Bank, 0, len(banks))
	for _, b := range banks {
		name := strings.ToLower(b.Config.DisplayName)
		if name != "" && strings.Contains(lowered, name) {
			mentioned = append(mentioned, b)
			continue
		}
		rest = append(rest, b)
	}
	return append(mentioned, rest...)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
