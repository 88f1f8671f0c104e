// Package deposit matches incoming deposit notifications to savings goals
// using patterns learned from user-confirmed contributions.
package deposit

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Veraticus/notiledger/internal/common"
	"github.com/Veraticus/notiledger/internal/model"
)

// Match is one pattern's verdict on a deposit notification.
type Match struct {
	Pattern     *model.LearnedDepositPattern
	SenderName  string
	Confidence  model.Confidence
	Amount      int64
	NeedsReview bool
}

type compiledPattern struct {
	pattern *model.LearnedDepositPattern
	sender  *regexp.Regexp
	amount  *regexp.Regexp
	account *regexp.Regexp
}

// Matcher evaluates a fixed set of deposit patterns.
type Matcher struct {
	patterns []compiledPattern
}

// NewMatcher compiles the active patterns. Inactive patterns and patterns
// whose expressions do not compile are skipped.
func NewMatcher(patterns []*model.LearnedDepositPattern) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		if p == nil || !p.IsActive {
			continue
		}
		cp, err := compile(p)
		if err != nil {
			slog.Warn("Skipping deposit pattern", "pattern_id", p.ID, "error", err)
			continue
		}
		m.patterns = append(m.patterns, cp)
	}
	return m
}

func compile(p *model.LearnedDepositPattern) (compiledPattern, error) {
	if err := p.Validate(); err != nil {
		return compiledPattern{}, err
	}
	sender, err := common.CompileRegex(p.SenderNameRegex)
	if err != nil {
		return compiledPattern{}, err
	}
	amount, err := common.CompileRegex(p.AmountRegex)
	if err != nil {
		return compiledPattern{}, err
	}
	cp := compiledPattern{pattern: p, sender: sender, amount: amount}
	if p.AccountNumberPattern != "" {
		if cp.account, err = AccountMaskRegex(p.AccountNumberPattern); err != nil {
			return compiledPattern{}, err
		}
	}
	return cp, nil
}

// Len reports how many patterns the matcher evaluates.
func (m *Matcher) Len() int {
	return len(m.patterns)
}

// Match returns every matching pattern, strongest confidence first. When more
// than one pattern matches with high confidence the goal is ambiguous and all
// of them are flagged for review.
func (m *Matcher) Match(text string) []Match {
	var matches []Match
	for _, cp := range m.patterns {
		if match, ok := cp.evaluate(text); ok {
			matches = append(matches, match)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence.Rank() > matches[j].Confidence.Rank()
	})

	highs := 0
	for _, match := range matches {
		if match.Confidence == model.ConfidenceHigh {
			highs++
		}
	}
	if highs > 1 {
		for i := range matches {
			matches[i].NeedsReview = true
		}
	}
	return matches
}

func (cp compiledPattern) evaluate(text string) (Match, bool) {
	amount, ok := extractAmount(cp.amount, text)
	if !ok || amount <= 0 {
		return Match{}, false
	}

	match := Match{Pattern: cp.pattern, Amount: amount}

	loc := cp.sender.FindStringSubmatch(text)
	switch {
	case loc != nil:
		match.SenderName = loc[0]
		if len(loc) > 1 && loc[1] != "" {
			match.SenderName = loc[1]
		}
		match.Confidence = model.ConfidenceMedium
		if cp.account != nil && cp.account.MatchString(text) {
			match.Confidence = model.ConfidenceHigh
		}
	case cp.pattern.BankName != "" && strings.Contains(text, cp.pattern.BankName):
		match.Confidence = model.ConfidenceLow
	default:
		return Match{}, false
	}

	match.NeedsReview = match.Confidence != model.ConfidenceHigh
	return match, true
}

func extractAmount(re *regexp.Regexp, text string) (int64, bool) {
	sub := re.FindStringSubmatch(text)
	if len(sub) < 2 {
		return 0, false
	}
	var b strings.Builder
	for _, r := range sub[1] {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// AccountMaskRegex turns a literal account mask such as 123-***-456 into a
// regex. '*', 'X' and 'x' stand for one digit, which notifications may
// themselves print masked; separators are optional.
func AccountMaskRegex(mask string) (*regexp.Regexp, error) {
	mask = strings.TrimSpace(mask)
	if mask == "" {
		return nil, fmt.Errorf("empty account mask")
	}

	var b strings.Builder
	digits := 0
	for _, r := range mask {
		switch {
		case r == '*' || r == 'X' || r == 'x':
			b.WriteString(`[0-9*]`)
			digits++
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == '-' || r == ' ':
			b.WriteString(`[-\s]?`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if digits == 0 {
		return nil, fmt.Errorf("account mask %q has no digit positions", mask)
	}
	return common.CompileRegex(b.String())
}
