package model

import (
	"fmt"
	"regexp"
	"time"
)

// LearnedDepositPattern links incoming deposit notifications to a savings goal.
type LearnedDepositPattern struct {
	CreatedAt            time.Time
	UpdatedAt            time.Time
	ID                   string
	GroupID              string
	SavingsGoalID        string
	SenderNameRegex      string
	AmountRegex          string
	AccountNumberPattern string // Literal mask such as 123-***-456; '*' and 'X' stand for any digit
	BankName             string
	SuccessCount         int
	FailCount            int
	IsActive             bool
}

// Applications is the number of times the pattern was accepted or rejected.
func (p *LearnedDepositPattern) Applications() int {
	return p.SuccessCount + p.FailCount
}

// Validate ensures the pattern has valid data.
func (p *LearnedDepositPattern) Validate() error {
	if p.SavingsGoalID == "" {
		return fmt.Errorf("savings goal id is required")
	}

	if p.SenderNameRegex == "" {
		return fmt.Errorf("sender name regex is required")
	}
	if _, err := regexp.Compile(p.SenderNameRegex); err != nil {
		return fmt.Errorf("invalid sender name regex: %w", err)
	}

	if p.AmountRegex == "" {
		return fmt.Errorf("amount regex is required")
	}
	re, err := regexp.Compile(p.AmountRegex)
	if err != nil {
		return fmt.Errorf("invalid amount regex: %w", err)
	}
	if re.NumSubexp() < 1 {
		return fmt.Errorf("amount regex must have a capturing group")
	}

	if p.SuccessCount < 0 || p.FailCount < 0 {
		return fmt.Errorf("counters cannot be negative")
	}

	return nil
}

// Confidence is the qualitative strength of an automatic match.
type Confidence string

// Confidence constants, strongest first.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceManual Confidence = "manual"
)

// ParseConfidence converts a stored string, falling back to ConfidenceLow
// so unknown values always require review.
func ParseConfidence(s string) Confidence {
	switch c := Confidence(s); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceManual:
		return c
	default:
		return ConfidenceLow
	}
}

// Rank orders automatic confidences; manual entries rank lowest because they
// are not produced by the matcher.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// SavingsContribution is a deposit credited to a savings goal.
type SavingsContribution struct {
	CreatedAt                time.Time
	ModifiedAt               *time.Time
	ID                       string
	GroupID                  string
	SavingsGoalID            string
	PatternID                string
	DetectedSenderName       string
	OriginalNotificationText string
	ModifiedBy               string
	MatchConfidence          Confidence
	Amount                   int64
	IsAutoDetected           bool
	NeedsReview              bool
	IsModified               bool
}

// ApplyEdit changes the amount and records the edit audit trail.
func (c *SavingsContribution) ApplyEdit(amount int64, userID string, at time.Time) {
	c.Amount = amount
	c.IsModified = true
	c.ModifiedBy = userID
	c.ModifiedAt = &at
}
