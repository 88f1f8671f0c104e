// Package catalog holds the bank parsing configurations and the merchant table.
//
// A Snapshot is immutable. Refreshing the catalog means building a new
// Snapshot and handing it to later parse calls.
package catalog

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/Veraticus/notiledger/internal/model"
)

// Bank is a bank configuration with its expressions compiled.
type Bank struct {
	AmountRe    *regexp.Regexp
	MerchantRes []*regexp.Regexp
	Config      model.BankConfig
	IsCustom    bool
	IsEnabled   bool
}

// Source is the raw input a Snapshot is built from.
type Source struct {
	DefaultBanks     []model.BankConfig
	CustomBanks      []model.CustomBankPattern
	DefaultMerchants []model.Merchant
	CustomMerchants  []model.Merchant
}

// DefaultSource returns a Source with only the built-in tables.
func DefaultSource() Source {
	return Source{
		DefaultBanks:     DefaultBanks(),
		DefaultMerchants: DefaultMerchants(),
	}
}

// Snapshot is an ordered, read-only view of the catalog.
// Banks are ordered custom first, then defaults. Merchants are ordered custom
// first, then defaults, with the catch-all merchant last.
type Snapshot struct {
	builtAt   time.Time
	byID      map[string]int
	source    Source
	banks     []Bank
	merchants []model.Merchant
	other     model.Merchant
}

// Build validates src and produces a Snapshot. Invalid built-in configs are an
// error; invalid custom patterns are skipped with a warning.
func Build(src Source) (*Snapshot, error) {
	s := &Snapshot{
		builtAt: time.Now(),
		byID:    make(map[string]int),
		source:  src,
	}

	for i := range src.CustomBanks {
		custom := src.CustomBanks[i]
		if _, seen := s.byID[custom.BankID]; seen {
			slog.Warn("Skipping duplicate custom bank pattern", "bank_id", custom.BankID)
			continue
		}
		bank, err := compileCustom(custom)
		if err != nil {
			slog.Warn("Skipping invalid custom bank pattern", "bank_id", custom.BankID, "error", err)
			continue
		}
		s.add(bank)
	}

	for i := range src.DefaultBanks {
		cfg := src.DefaultBanks[i]
		if _, shadowed := s.byID[cfg.BankID]; shadowed {
			continue
		}
		bank, err := compileDefault(cfg)
		if err != nil {
			return nil, err
		}
		s.add(bank)
	}

	merchants, other, err := orderMerchants(src.CustomMerchants, src.DefaultMerchants)
	if err != nil {
		return nil, err
	}
	s.merchants = merchants
	s.other = other

	return s, nil
}

// Default builds a Snapshot of the built-in tables.
func Default() *Snapshot {
	s, err := Build(DefaultSource())
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return s
}

// WithCustomBanks returns a new Snapshot with custom placed ahead of the
// receiver's own custom patterns.
func (s *Snapshot) WithCustomBanks(custom ...model.CustomBankPattern) (*Snapshot, error) {
	if len(custom) == 0 {
		return s, nil
	}
	src := s.source
	merged := make([]model.CustomBankPattern, 0, len(custom)+len(src.CustomBanks))
	merged = append(merged, custom...)
	merged = append(merged, src.CustomBanks...)
	src.CustomBanks = merged
	return Build(src)
}

func (s *Snapshot) add(b Bank) {
	s.byID[b.Config.BankID] = len(s.banks)
	s.banks = append(s.banks, b)
}

// BuiltAt is when the snapshot was produced.
func (s *Snapshot) BuiltAt() time.Time {
	return s.builtAt
}

// Banks returns every bank in order, including disabled custom patterns.
func (s *Snapshot) Banks() []Bank {
	out := make([]Bank, len(s.banks))
	copy(out, s.banks)
	return out
}

// EnabledBanks returns the banks eligible for parsing, in order.
func (s *Snapshot) EnabledBanks() []Bank {
	out := make([]Bank, 0, len(s.banks))
	for _, b := range s.banks {
		if b.IsEnabled {
			out = append(out, b)
		}
	}
	return out
}

// BanksForPackage returns the enabled banks that list pkg as a source app.
func (s *Snapshot) BanksForPackage(pkg string) []Bank {
	var out []Bank
	for _, b := range s.banks {
		if b.IsEnabled && b.Config.HasPackage(pkg) {
			out = append(out, b)
		}
	}
	return out
}

// Bank looks up a bank by id. A disabled custom pattern still shadows the
// default with the same id.
func (s *Snapshot) Bank(id string) (Bank, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Bank{}, false
	}
	return s.banks[i], true
}

// Merchants returns the merchant table in match order, catch-all last.
func (s *Snapshot) Merchants() []model.Merchant {
	out := make([]model.Merchant, len(s.merchants))
	copy(out, s.merchants)
	return out
}

// Other returns the catch-all merchant.
func (s *Snapshot) Other() model.Merchant {
	return s.other
}

// MatchMerchant returns the first merchant with a keyword contained in text,
// compared case-insensitively. It falls back to the catch-all merchant.
func (s *Snapshot) MatchMerchant(text string) (model.Merchant, bool) {
	lowered := strings.ToLower(text)
	for _, m := range s.merchants {
		for _, kw := range m.Keywords {
			if kw != "" && strings.Contains(lowered, strings.ToLower(kw)) {
				return m, true
			}
		}
	}
	return s.other, false
}

func compileDefault(cfg model.BankConfig) (Bank, error) {
	if err := cfg.Validate(); err != nil {
		return Bank{}, err
	}
	return Bank{
		Config:    cfg,
		AmountRe:  regexp.MustCompile(cfg.AmountRegex),
		IsEnabled: true,
	}, nil
}

func compileCustom(p model.CustomBankPattern) (Bank, error) {
	if err := p.Validate(); err != nil {
		return Bank{}, err
	}
	bank := Bank{
		Config:    p.BankConfig,
		AmountRe:  regexp.MustCompile(p.AmountRegex),
		IsCustom:  true,
		IsEnabled: p.IsEnabled,
	}
	for _, expr := range p.MerchantRegexList {
		bank.MerchantRes = append(bank.MerchantRes, regexp.MustCompile(expr))
	}
	return bank, nil
}

func orderMerchants(custom, defaults []model.Merchant) ([]model.Merchant, model.Merchant, error) {
	seen := make(map[string]bool)
	var (
		ordered []model.Merchant
		other   *model.Merchant
	)

	for _, list := range [][]model.Merchant{custom, defaults} {
		for i := range list {
			m := list[i]
			if m.ID == "" {
				return nil, model.Merchant{}, fmt.Errorf("merchant %q: id is required", m.DisplayName)
			}
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			if m.IsCatchAll() {
				if other == nil {
					other = &m
				}
				continue
			}
			ordered = append(ordered, m)
		}
	}

	if other == nil {
		other = &model.Merchant{
			ID:              model.MerchantOtherID,
			DisplayName:     "기타",
			DefaultCategory: model.CategoryOther,
		}
	}
	return append(ordered, *other), *other, nil
}
