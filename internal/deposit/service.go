package deposit

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/notiledger/internal/common"
	"github.com/Veraticus/notiledger/internal/model"
	"github.com/Veraticus/notiledger/internal/service"
)

// DefaultAmountRegex is used for remembered patterns.
const DefaultAmountRegex = `([0-9][0-9,]*)\s?원`

// Repository is the storage the deposit service needs.
type Repository interface {
	service.DepositPatternStore
	service.ContributionStore
}

// Service applies deposit patterns and feeds user decisions back into them.
type Service struct {
	repo         Repository
	now          func() time.Time
	onDeactivate func(*model.LearnedDepositPattern)
	policy       Policy
}

// NewService creates a Service.
func NewService(repo Repository, policy Policy) *Service {
	return &Service{repo: repo, policy: policy, now: time.Now}
}

// OnDeactivate registers a callback run after a pattern is deactivated.
func (s *Service) OnDeactivate(fn func(*model.LearnedDepositPattern)) {
	s.onDeactivate = fn
}

// Match evaluates text against the group's active patterns.
func (s *Service) Match(ctx context.Context, groupID, text string) ([]Match, error) {
	patterns, err := s.repo.GetActiveDepositPatterns(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deposit patterns: %w", err)
	}
	return NewMatcher(patterns).Match(text), nil
}

// ToContribution builds the contribution recorded for a match.
func ToContribution(groupID, text string, m Match) *model.SavingsContribution {
	return &model.SavingsContribution{
		ID:                       uuid.NewString(),
		GroupID:                  groupID,
		SavingsGoalID:            m.Pattern.SavingsGoalID,
		PatternID:                m.Pattern.ID,
		Amount:                   m.Amount,
		IsAutoDetected:           true,
		DetectedSenderName:       m.SenderName,
		MatchConfidence:          m.Confidence,
		OriginalNotificationText: text,
		NeedsReview:              m.NeedsReview,
	}
}

// Record stores the contributions for a deposit. The strongest match is
// recorded; when several matches share the strongest confidence the goal is
// ambiguous, so each of them is recorded for review and the user confirms one
// and rejects the others. Weaker matches are not recorded. A contribution that
// needs no review credits its pattern here, the rest are credited on confirm.
func (s *Service) Record(ctx context.Context, groupID, text string, matches []Match) ([]*model.SavingsContribution, error) {
	candidates := strongest(matches)
	if len(candidates) == 0 {
		return nil, nil
	}

	out := make([]*model.SavingsContribution, 0, len(candidates))
	for _, m := range candidates {
		c := ToContribution(groupID, text, m)
		if len(candidates) > 1 {
			c.NeedsReview = true
		}
		c.CreatedAt = s.now()
		if err := s.repo.SaveSavingsContribution(ctx, c); err != nil {
			return out, fmt.Errorf("failed to save contribution: %w", err)
		}
		out = append(out, c)

		slog.Info("Deposit matched to savings goal",
			"group_id", groupID,
			"pattern_id", c.PatternID,
			"goal_id", c.SavingsGoalID,
			"confidence", c.MatchConfidence,
			"needs_review", c.NeedsReview,
			"candidates", len(candidates))
	}

	for _, c := range out {
		if c.NeedsReview || c.PatternID == "" {
			continue
		}
		if _, err := s.Accept(ctx, groupID, c.PatternID); err != nil {
			return out, err
		}
	}
	return out, nil
}

// strongest returns the leading matches that share the top confidence.
func strongest(matches []Match) []Match {
	if len(matches) == 0 {
		return nil
	}
	top := matches[0].Confidence.Rank()
	n := 1
	for n < len(matches) && matches[n].Confidence.Rank() == top {
		n++
	}
	return matches[:n]
}

// Accept records a successful application of a pattern.
func (s *Service) Accept(ctx context.Context, groupID, patternID string) (*model.LearnedDepositPattern, error) {
	p, err := s.repo.IncrementDepositPatternSuccess(ctx, groupID, patternID)
	if err != nil {
		return nil, fmt.Errorf("failed to record pattern success: %w", err)
	}
	return p, nil
}

// Reject records a failed application of a pattern and deactivates it when
// the policy says so. Deactivated patterns only come back through Reactivate.
func (s *Service) Reject(ctx context.Context, groupID, patternID string) (*model.LearnedDepositPattern, bool, error) {
	p, err := s.repo.IncrementDepositPatternFailure(ctx, groupID, patternID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record pattern failure: %w", err)
	}
	if !s.policy.ShouldDeactivate(p) {
		return p, false, nil
	}

	if err := s.repo.DeactivateDepositPattern(ctx, groupID, patternID); err != nil {
		return nil, false, fmt.Errorf("failed to deactivate pattern: %w", err)
	}
	p.IsActive = false

	slog.Info("Deposit pattern deactivated",
		"group_id", groupID,
		"pattern_id", patternID,
		"success_count", p.SuccessCount,
		"fail_count", p.FailCount)
	if s.onDeactivate != nil {
		s.onDeactivate(p)
	}
	return p, true, nil
}

// Reactivate turns a deactivated pattern back on at the user's request.
func (s *Service) Reactivate(ctx context.Context, groupID, patternID string) error {
	if err := s.repo.ReactivateDepositPattern(ctx, groupID, patternID); err != nil {
		return fmt.Errorf("failed to reactivate pattern: %w", err)
	}
	slog.Info("Deposit pattern reactivated", "group_id", groupID, "pattern_id", patternID)
	return nil
}

// ConfirmContribution marks a contribution correct. The pattern is credited
// only by the call that clears the review flag, so repeated or concurrent
// confirms credit it once and contributions that never needed review are
// not credited again.
func (s *Service) ConfirmContribution(ctx context.Context, groupID, contributionID string) (*model.SavingsContribution, error) {
	claimed, err := s.repo.ClaimContributionReview(ctx, groupID, contributionID)
	if err != nil {
		return nil, fmt.Errorf("failed to confirm contribution: %w", err)
	}
	c, err := s.repo.GetSavingsContribution(ctx, groupID, contributionID)
	if err != nil {
		return nil, err
	}
	if claimed && c.PatternID != "" {
		if _, err := s.Accept(ctx, groupID, c.PatternID); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RejectContribution debits the contribution's pattern. With a goal id the
// contribution moves to that goal as a manual entry; without one it is removed.
func (s *Service) RejectContribution(ctx context.Context, groupID, contributionID, correctGoalID, userID string) (*model.SavingsContribution, error) {
	c, err := s.repo.GetSavingsContribution(ctx, groupID, contributionID)
	if err != nil {
		return nil, err
	}

	if c.PatternID != "" {
		if _, _, err := s.Reject(ctx, groupID, c.PatternID); err != nil {
			return nil, err
		}
	}

	if correctGoalID == "" {
		if err := s.repo.DeleteSavingsContribution(ctx, groupID, contributionID); err != nil {
			return nil, fmt.Errorf("failed to remove contribution: %w", err)
		}
		return nil, nil
	}

	c.SavingsGoalID = correctGoalID
	c.MatchConfidence = model.ConfidenceManual
	c.NeedsReview = false
	c.ApplyEdit(c.Amount, userID, s.now())
	if err := s.repo.UpdateSavingsContribution(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to reassign contribution: %w", err)
	}
	return c, nil
}

// EditContribution changes a contribution's amount and records who did it.
func (s *Service) EditContribution(ctx context.Context, groupID, contributionID string, amount int64, userID string) (*model.SavingsContribution, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: amount cannot be negative", common.ErrInvalidConfig)
	}
	c, err := s.repo.GetSavingsContribution(ctx, groupID, contributionID)
	if err != nil {
		return nil, err
	}
	c.ApplyEdit(amount, userID, s.now())
	if err := s.repo.UpdateSavingsContribution(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to edit contribution: %w", err)
	}
	return c, nil
}

// RememberRequest describes a deposit the user confirmed for a goal.
type RememberRequest struct {
	GroupID       string
	SavingsGoalID string
	SenderName    string
	AccountMask   string
	BankName      string
}

// Remember creates an active pattern from a confirmed deposit. The sender
// name is matched literally.
func (s *Service) Remember(ctx context.Context, req RememberRequest) (*model.LearnedDepositPattern, error) {
	sender := strings.TrimSpace(req.SenderName)
	if sender == "" {
		return nil, fmt.Errorf("sender name is required to remember a deposit")
	}
	if req.AccountMask != "" {
		if _, err := AccountMaskRegex(req.AccountMask); err != nil {
			return nil, err
		}
	}

	now := s.now()
	p := &model.LearnedDepositPattern{
		ID:                   uuid.NewString(),
		GroupID:              req.GroupID,
		SavingsGoalID:        req.SavingsGoalID,
		SenderNameRegex:      regexp.QuoteMeta(sender),
		AmountRegex:          DefaultAmountRegex,
		AccountNumberPattern: strings.TrimSpace(req.AccountMask),
		BankName:             strings.TrimSpace(req.BankName),
		IsActive:             true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.CreateDepositPattern(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to remember deposit pattern: %w", err)
	}

	slog.Info("Deposit pattern remembered",
		"group_id", req.GroupID,
		"pattern_id", p.ID,
		"goal_id", p.SavingsGoalID)
	return p, nil
}
