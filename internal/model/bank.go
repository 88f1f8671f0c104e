package model

import (
	"fmt"
	"regexp"
	"time"
)

// BankConfig is the parsing ruleset for one bank or card issuer.
type BankConfig struct {
	BankID          string   `yaml:"bank_id" json:"bankId"`
	DisplayName     string   `yaml:"display_name" json:"displayName"`
	AmountRegex     string   `yaml:"amount_regex" json:"amountRegex"`
	PackageNames    []string `yaml:"package_names" json:"packageNames"`
	IncomeKeywords  []string `yaml:"income_keywords" json:"incomeKeywords"`
	ExpenseKeywords []string `yaml:"expense_keywords" json:"expenseKeywords"`
}

// HasPackage reports whether pkg is one of the source apps for this bank.
func (c *BankConfig) HasPackage(pkg string) bool {
	for _, p := range c.PackageNames {
		if p == pkg {
			return true
		}
	}
	return false
}

// Validate ensures the config can be used by the parser.
func (c *BankConfig) Validate() error {
	if c.BankID == "" {
		return fmt.Errorf("bank id is required")
	}
	if c.AmountRegex == "" {
		return fmt.Errorf("bank %s: amount regex is required", c.BankID)
	}
	re, err := regexp.Compile(c.AmountRegex)
	if err != nil {
		return fmt.Errorf("bank %s: invalid amount regex: %w", c.BankID, err)
	}
	if re.NumSubexp() < 1 {
		return fmt.Errorf("bank %s: amount regex must have a capturing group", c.BankID)
	}
	if len(c.IncomeKeywords) == 0 && len(c.ExpenseKeywords) == 0 {
		return fmt.Errorf("bank %s: at least one direction keyword is required", c.BankID)
	}
	return nil
}

// CustomBankPattern is a user-authored bank config. A custom pattern with the
// same BankID as a built-in config shadows it.
type CustomBankPattern struct {
	LastModified      time.Time `yaml:"-" json:"lastModified"`
	GroupID           string    `yaml:"-" json:"groupId"`
	MerchantRegexList []string  `yaml:"merchant_regex_list" json:"merchantRegexList"`
	BankConfig        `yaml:",inline"`
	IsEnabled         bool `yaml:"is_enabled" json:"isEnabled"`
	IsCustom          bool `yaml:"is_custom" json:"isCustom"`
}

// Validate ensures the custom pattern and its merchant regexes compile.
func (p *CustomBankPattern) Validate() error {
	if err := p.BankConfig.Validate(); err != nil {
		return err
	}
	for i, expr := range p.MerchantRegexList {
		re, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("bank %s: invalid merchant regex at index %d: %w", p.BankID, i, err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("bank %s: merchant regex at index %d must have a capturing group", p.BankID, i)
		}
	}
	return nil
}

// MerchantOtherID is the id of the catch-all merchant.
const MerchantOtherID = "other"

// Merchant is a recognizable counterparty matched by keyword.
type Merchant struct {
	ID              string   `yaml:"id" json:"id"`
	DisplayName     string   `yaml:"display_name" json:"displayName"`
	DefaultCategory Category `yaml:"default_category" json:"defaultCategory"`
	Icon            string   `yaml:"icon" json:"icon"`
	Keywords        []string `yaml:"keywords" json:"keywords"`
}

// IsCatchAll reports whether m is the keyword-less fallback merchant.
func (m *Merchant) IsCatchAll() bool {
	return len(m.Keywords) == 0
}
