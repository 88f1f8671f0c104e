package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Veraticus/notiledger/internal/catalog"
	"github.com/Veraticus/notiledger/internal/model"
)

// Grouping separators removed from a captured amount.
var amountSeparators = strings.NewReplacer(",", "", "，", "", " ", "", "'", "", "_", "")

// classifyDirection finds the earliest income keyword and the earliest expense
// keyword in text. The earlier one decides the direction; a tie goes to expense.
func classifyDirection(text string, income, expense []string) (model.TransactionType, string, bool) {
	lowered := strings.ToLower(text)

	inAt, inWord := earliest(lowered, income)
	exAt, exWord := earliest(lowered, expense)

	switch {
	case inAt < 0 && exAt < 0:
		return model.TypeUnknown, "", false
	case exAt < 0:
		return model.TypeIncome, inWord, true
	case inAt < 0:
		return model.TypeExpense, exWord, true
	case inAt < exAt:
		return model.TypeIncome, inWord, true
	default:
		return model.TypeExpense, exWord, true
	}
}

// earliest returns the byte offset and keyword of the first keyword occurrence
// in lowered, or -1 when none occurs. Longer keywords win at equal offsets.
func earliest(lowered string, keywords []string) (int, string) {
	at, word := -1, ""
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		i := strings.Index(lowered, strings.ToLower(kw))
		if i < 0 {
			continue
		}
		if at < 0 || i < at || (i == at && len(kw) > len(word)) {
			at, word = i, kw
		}
	}
	return at, word
}

// extractAmount applies re to text and parses the first capture group of the
// first match, after removing grouping separators.
func extractAmount(re *regexp.Regexp, text string) (int64, bool) {
	if re == nil {
		return 0, false
	}
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return 0, false
	}
	digits := amountSeparators.Replace(m[1])
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	amount, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return amount, true
}

// extractMerchantName tries the bank's merchant expressions in order and
// returns the first non-empty capture.
func extractMerchantName(bank catalog.Bank, text string) (string, bool) {
	for _, re := range bank.MerchantRes {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		if name := strings.TrimSpace(m[1]); name != "" {
			return name, true
		}
	}
	return "", false
}

type subTypeMarker[T any] struct {
	value   T
	markers []string
}

var incomeMarkers = []subTypeMarker[model.IncomeSubType]{
	{model.IncomeSubTypeSalary, []string{"급여", "월급", "상여"}},
	{model.IncomeSubTypeInterest, []string{"이자", "결산"}},
	{model.IncomeSubTypeRefund, []string{"환불", "환급", "캐시백", "취소"}},
	{model.IncomeSubTypeTransferIn, []string{"입금", "이체", "받았어요", "송금"}},
}

var expenseMarkers = []subTypeMarker[model.ExpenseSubType]{
	{model.ExpenseSubTypeAutoDebit, []string{"자동이체", "자동납부", "cms"}},
	{model.ExpenseSubTypeTransferOut, []string{"이체", "송금", "보냈어요"}},
	{model.ExpenseSubTypeCard, []string{"승인", "사용", "결제", "일시불", "할부", "체크카드"}},
	{model.ExpenseSubTypeWithdrawal, []string{"출금", "인출", "atm"}},
}

func incomeSubType(text string) model.IncomeSubType {
	return firstMarker(text, incomeMarkers, model.IncomeSubTypeOther)
}

func expenseSubType(text string) model.ExpenseSubType {
	return firstMarker(text, expenseMarkers, model.ExpenseSubTypeOther)
}

func firstMarker[T any](text string, table []subTypeMarker[T], fallback T) T {
	lowered := strings.ToLower(text)
	for _, entry := range table {
		for _, marker := range entry.markers {
			if strings.Contains(lowered, marker) {
				return entry.value
			}
		}
	}
	return fallback
}
