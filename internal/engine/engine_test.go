package engine

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/notiledger/internal/catalog"
	"github.com/Veraticus/notiledger/internal/common"
	"github.com/Veraticus/notiledger/internal/deposit"
	"github.com/Veraticus/notiledger/internal/duplicate"
	"github.com/Veraticus/notiledger/internal/metrics"
	"github.com/Veraticus/notiledger/internal/model"
	"github.com/Veraticus/notiledger/internal/parser"
	tu "github.com/Veraticus/notiledger/internal/testutil"
)

const (
	kbBankPkg = "com.kbstar.kbbank"
	kbCardPkg = "com.kbcard.cxh.appcard"

	bankText = "[KB국민] 출금 12,345원 스타벅스"
	cardText = "KB국민카드 승인 12,345원 스타벅스"
)

func newTestEngine(t *testing.T) (*Engine, *tu.TestDB) {
	t.Helper()
	db := tu.SetupTestDB(t)
	cfg := DefaultConfig()
	cfg.Metrics = metrics.New()
	e := NewWithConfig(db.Storage, catalog.NewStaticProvider(catalog.Default()), cfg)
	return e, db
}

func notice(text, pkg string, at time.Time) model.Notification {
	return model.Notification{
		GroupID:       tu.DefaultGroupID,
		UserID:        "user-1",
		Text:          text,
		SourcePackage: pkg,
		PostedAt:      at,
	}
}

func TestProcess_KBApproval(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Process(ctx, notice("[KB국민]승인 12,345원 스타벅스 사용", kbBankPkg, tu.BaseTime))
	require.NoError(t, err)
	require.Equal(t, StatusStored, res.Status)
	assert.Equal(t, duplicate.NoDuplicate, res.Duplicate)

	stored, err := db.Storage.GetTransaction(ctx, tu.DefaultGroupID, res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TypeExpense, stored.Type)
	assert.Equal(t, int64(12345), stored.Amount)
	assert.Equal(t, "kb_kookmin", stored.BankID)
	assert.Equal(t, "starbucks", stored.Merchant)
	assert.Equal(t, model.CategoryCafe, stored.Category)
	assert.Equal(t, model.SourceNotification, stored.Source)

	payload := stored.EventPayload()
	assert.Equal(t, tu.DefaultGroupID, payload["groupId"])
	assert.Equal(t, "user-1", payload["userId"])
	assert.Equal(t, "EXPENSE", payload["type"])
	assert.Equal(t, int64(12345), payload["amount"])
	assert.Equal(t, "스타벅스", payload["merchantName"])

	expected := `
# HELP notiledger_notifications_total Notifications processed, by outcome.
# TYPE notiledger_notifications_total counter
notiledger_notifications_total{outcome="stored"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(e.metrics.Registry(), strings.NewReader(expected), "notiledger_notifications_total"))
}

func TestProcess_UnparsedIsQueued(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Process(ctx, notice("승인 9,900원", "com.example.game", tu.BaseTime))
	require.NoError(t, err)
	assert.Equal(t, StatusUnparsed, res.Status)
	assert.ErrorIs(t, res.ParseError, parser.ErrNoMatchingBank)

	res, err = e.Process(ctx, notice("[KB국민] 스타벅스", kbBankPkg, tu.BaseTime))
	require.NoError(t, err)
	assert.Equal(t, StatusUnparsed, res.Status)

	queued, err := db.Storage.ListUnparsedNotifications(ctx, tu.DefaultGroupID, 0)
	require.NoError(t, err)
	require.Len(t, queued, 2)
	reasons := []string{queued[0].Reason, queued[1].Reason}
	assert.ElementsMatch(t, []string{"NoMatchingBank", "AmbiguousDirection"}, reasons)

	txns, err := db.Storage.GetRecentTransactions(ctx, tu.DefaultGroupID, tu.BaseTime.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestProcess_MissingGroup(t *testing.T) {
	e, _ := newTestEngine(t)
	n := notice(bankText, kbBankPkg, tu.BaseTime)
	n.GroupID = ""
	_, err := e.Process(context.Background(), n)
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}

func TestProcess_RedeliveryIsIgnored(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	n := notice(bankText, kbBankPkg, tu.BaseTime)

	first, err := e.Process(ctx, n)
	require.NoError(t, err)
	require.Equal(t, StatusStored, first.Status)

	again, err := e.Process(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyIngested, again.Status)
	assert.Equal(t, first.Transaction.ID, again.Transaction.ID)

	pending, err := db.Storage.ListPendingDuplicates(ctx, tu.DefaultGroupID, true)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcess_BankAndCardBecomePending(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	bank, err := e.Process(ctx, notice(bankText, kbBankPkg, tu.BaseTime))
	require.NoError(t, err)
	card, err := e.Process(ctx, notice(cardText, kbCardPkg, tu.BaseTime.Add(40*time.Second)))
	require.NoError(t, err)

	assert.Equal(t, StatusStored, card.Status)
	assert.Equal(t, duplicate.PendingReview, card.Duplicate)
	require.NotNil(t, card.Pending)
	assert.Equal(t, bank.Transaction.ID, card.Pending.First.TransactionID)
	assert.Equal(t, card.Transaction.ID, card.Pending.Second.TransactionID)
	assert.False(t, card.Pending.IsResolved)

	pending, err := db.Storage.ListPendingDuplicates(ctx, tu.DefaultGroupID, false)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// Outside the window the same amount is a separate purchase.
	later, err := e.Process(ctx, notice("KB국민카드 승인 12,345원 스타벅스 2", kbCardPkg, tu.BaseTime.Add(10*time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, duplicate.NoDuplicate, later.Duplicate)
}

func TestProcess_ConcurrentBankAndCard(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	var pendingSeen atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for _, n := range []model.Notification{
		notice(bankText, kbBankPkg, tu.BaseTime),
		notice(cardText, kbCardPkg, tu.BaseTime.Add(5*time.Second)),
	} {
		g.Go(func() error {
			res, err := e.Process(gctx, n)
			if err == nil && res.Pending != nil {
				pendingSeen.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), pendingSeen.Load())
	pending, err := db.Storage.ListPendingDuplicates(ctx, tu.DefaultGroupID, true)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestProcess_RuleResolvesAutomatically(t *testing.T) {
	tests := []struct {
		name          string
		resolution    model.Resolution
		wantStatus    Status
		wantBankKept  bool
		wantCardSaved bool
	}{
		{name: "keep card", resolution: model.ResolutionKeepSecond, wantStatus: StatusStored, wantCardSaved: true},
		{name: "keep bank", resolution: model.ResolutionKeepFirst, wantStatus: StatusDuplicateDropped, wantBankKept: true},
		{name: "keep both", resolution: model.ResolutionKeepBoth, wantStatus: StatusStored, wantBankKept: true, wantCardSaved: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, db := newTestEngine(t)
			ctx := context.Background()
			require.NoError(t, db.Storage.SaveDuplicateRule(ctx, &model.DuplicateRule{
				ID: "rule-1", GroupID: tu.DefaultGroupID, Bank1ID: "kb_kookmin", Bank2ID: "kb_card", Resolution: tt.resolution,
			}))

			bank, err := e.Process(ctx, notice(bankText, kbBankPkg, tu.BaseTime))
			require.NoError(t, err)
			card, err := e.Process(ctx, notice(cardText, kbCardPkg, tu.BaseTime.Add(time.Minute)))
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, card.Status)
			assert.Equal(t, duplicate.AutoResolved, card.Duplicate)
			assert.Nil(t, card.Pending)

			_, err = db.Storage.GetTransaction(ctx, tu.DefaultGroupID, bank.Transaction.ID)
			assert.Equal(t, tt.wantBankKept, err == nil)
			_, err = db.Storage.GetTransaction(ctx, tu.DefaultGroupID, card.Transaction.ID)
			assert.Equal(t, tt.wantCardSaved, err == nil)

			pending, err := db.Storage.ListPendingDuplicates(ctx, tu.DefaultGroupID, true)
			require.NoError(t, err)
			assert.Empty(t, pending)
		})
	}
}

func TestResolveDuplicate_RememberCreatesRule(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	bank, err := e.Process(ctx, notice(bankText, kbBankPkg, tu.BaseTime))
	require.NoError(t, err)
	card, err := e.Process(ctx, notice(cardText, kbCardPkg, tu.BaseTime.Add(20*time.Second)))
	require.NoError(t, err)
	require.NotNil(t, card.Pending)

	res, err := e.ResolveDuplicate(ctx, tu.DefaultGroupID, card.Pending.ID, model.ResolutionKeepSecond, true)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, []string{bank.Transaction.ID}, res.Deleted)

	again, err := e.ResolveDuplicate(ctx, tu.DefaultGroupID, card.Pending.ID, model.ResolutionKeepSecond, false)
	require.NoError(t, err)
	assert.False(t, again.Applied)

	rules, err := db.Storage.GetDuplicateRules(ctx, tu.DefaultGroupID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "kb_kookmin", rules[0].Bank1ID)
	assert.Equal(t, "kb_card", rules[0].Bank2ID)

	// The next pair from the same banks skips review.
	_, err = e.Process(ctx, notice("[KB국민] 출금 8,000원 이디야", kbBankPkg, tu.BaseTime.Add(time.Hour)))
	require.NoError(t, err)
	next, err := e.Process(ctx, notice("KB국민카드 승인 8,000원 이디야", kbCardPkg, tu.BaseTime.Add(time.Hour+10*time.Second)))
	require.NoError(t, err)
	assert.Equal(t, duplicate.AutoResolved, next.Duplicate)
	assert.Equal(t, StatusStored, next.Status)

	_, err = e.ResolveDuplicate(ctx, tu.DefaultGroupID, card.Pending.ID, model.ResolutionPending, false)
	assert.ErrorIs(t, err, common.ErrInvalidResolution)
}

func TestProcess_DepositBecomesContribution(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	db.MustCreatePattern(tu.NewDepositPattern("goal-house"))

	res, err := e.Process(ctx, notice("[KB국민] 입금 50,000원 홍길동", kbBankPkg, tu.BaseTime))
	require.NoError(t, err)
	assert.Equal(t, StatusStored, res.Status)
	assert.Equal(t, model.TypeIncome, res.Transaction.Type)
	require.NotNil(t, res.Contribution)
	assert.Equal(t, int64(50000), res.Contribution.Amount)
	assert.Equal(t, model.ConfidenceMedium, res.Contribution.MatchConfidence)
	assert.True(t, res.Contribution.NeedsReview)

	review, err := db.Storage.ListSavingsContributions(ctx, tu.DefaultGroupID, true)
	require.NoError(t, err)
	require.Len(t, review, 1)

	confirmed, err := e.ConfirmContribution(ctx, tu.DefaultGroupID, res.Contribution.ID)
	require.NoError(t, err)
	assert.False(t, confirmed.NeedsReview)

	// Expenses are never offered to the deposit matcher.
	res, err = e.Process(ctx, notice("[KB국민] 출금 50,000원 홍길동", kbBankPkg, tu.BaseTime.Add(time.Hour)))
	require.NoError(t, err)
	assert.Nil(t, res.Contribution)
}

func TestRejectContribution_DeactivatesPattern(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	p := db.MustCreatePattern(tu.NewDepositPattern("goal-house"))

	for i := range 5 {
		text := "[KB국민] 입금 " + []string{"1", "2", "3", "4", "5"}[i] + "0,000원 홍길동"
		res, err := e.Process(ctx, notice(text, kbBankPkg, tu.BaseTime.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
		require.NotNil(t, res.Contribution, "deposit %d", i)
		_, err = e.RejectContribution(ctx, tu.DefaultGroupID, res.Contribution.ID, "", "user-1")
		require.NoError(t, err)
	}

	got, err := db.Storage.GetDepositPattern(ctx, tu.DefaultGroupID, p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, 5, got.FailCount)

	res, err := e.Process(ctx, notice("[KB국민] 입금 70,000원 홍길동", kbBankPkg, tu.BaseTime.Add(10*time.Hour)))
	require.NoError(t, err)
	assert.Nil(t, res.Contribution)

	require.NoError(t, e.ReactivatePattern(ctx, tu.DefaultGroupID, p.ID))
	res, err = e.Process(ctx, notice("[KB국민] 입금 80,000원 홍길동", kbBankPkg, tu.BaseTime.Add(11*time.Hour)))
	require.NoError(t, err)
	assert.NotNil(t, res.Contribution)
}

func TestRememberDeposit(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.RememberDeposit(ctx, deposit.RememberRequest{
		GroupID:       tu.DefaultGroupID,
		SavingsGoalID: "goal-trip",
		SenderName:    "김영희",
		AccountMask:   "110-***-123456",
	})
	require.NoError(t, err)

	res, err := e.Process(ctx, notice("[KB국민] 입금 30,000원 김영희 110-987-123456", kbBankPkg, tu.BaseTime))
	require.NoError(t, err)
	require.NotNil(t, res.Contribution)
	assert.Equal(t, "goal-trip", res.Contribution.SavingsGoalID)
	assert.Equal(t, model.ConfidenceHigh, res.Contribution.MatchConfidence)
	assert.False(t, res.Contribution.NeedsReview)
	require.Len(t, res.Contributions, 1)

	// High-confidence matches credit the pattern without a review step.
	patterns, err := e.storage.GetActiveDepositPatterns(ctx, tu.DefaultGroupID)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, 1, patterns[0].SuccessCount)
}

func TestProcess_AmbiguousDepositOffersEveryGoal(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	house := tu.NewDepositPattern("goal-house")
	house.AccountNumberPattern = "110-***-123456"
	db.MustCreatePattern(house)
	trip := tu.NewDepositPattern("goal-trip")
	trip.AccountNumberPattern = "110-987-******"
	db.MustCreatePattern(trip)

	res, err := e.Process(ctx, notice("[KB국민] 입금 30,000원 홍길동 110-987-123456", kbBankPkg, tu.BaseTime))
	require.NoError(t, err)
	require.Len(t, res.Contributions, 2)
	assert.Same(t, res.Contributions[0], res.Contribution)

	goals := make([]string, 0, len(res.Contributions))
	for _, c := range res.Contributions {
		assert.Equal(t, model.ConfidenceHigh, c.MatchConfidence)
		assert.True(t, c.NeedsReview)
		goals = append(goals, c.SavingsGoalID)
	}
	assert.ElementsMatch(t, []string{"goal-house", "goal-trip"}, goals)

	review, err := db.Storage.ListSavingsContributions(ctx, tu.DefaultGroupID, true)
	require.NoError(t, err)
	assert.Len(t, review, 2)
}

func TestCorrectCategory_TeachesMapping(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Process(ctx, notice("[KB국민] 출금 15,000원 동네빵집", kbBankPkg, tu.BaseTime))
	require.NoError(t, err)
	assert.False(t, first.Transaction.IsConfirmed)

	// The bank config extracts no merchant name, so the description is learned.
	m, err := e.CorrectCategory(ctx, tu.DefaultGroupID, first.Transaction.ID, model.CategoryFood)
	require.NoError(t, err)
	assert.Equal(t, 1, m.UseCount)

	stored, err := db.Storage.GetTransaction(ctx, tu.DefaultGroupID, first.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryFood, stored.Category)
	assert.True(t, stored.IsConfirmed)

	_, err = e.CorrectCategory(ctx, tu.DefaultGroupID, first.Transaction.ID, model.Category("BOGUS"))
	assert.Error(t, err)
}

func TestProcessManualText(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := e.ProcessManualText(ctx, tu.DefaultGroupID, "user-1", "KB국민카드 승인 4,500원 스타벅스")
	require.NoError(t, err)
	assert.Equal(t, model.SourceManualTextInput, res.Transaction.Source)
	assert.Equal(t, "kb_card", res.Transaction.BankID)

	_, err = e.ProcessManualText(ctx, tu.DefaultGroupID, "user-1", "hello")
	var uerr *common.UserError
	assert.ErrorAs(t, err, &uerr)
}

func TestRetryUnparsed(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Process(ctx, notice("[동네은행] 출금 3,000원", "com.example.localbank", tu.BaseTime))
	require.NoError(t, err)
	require.Equal(t, StatusUnparsed, res.Status)

	n, err := e.RetryUnparsed(ctx, tu.DefaultGroupID)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, db.Storage.SaveCustomBankPattern(ctx, &model.CustomBankPattern{
		GroupID: tu.DefaultGroupID,
		BankConfig: model.BankConfig{
			BankID:          "local_bank",
			DisplayName:     "동네은행",
			PackageNames:    []string{"com.example.localbank"},
			ExpenseKeywords: []string{"출금"},
			AmountRegex:     `([0-9][0-9,]*)\s?원`,
		},
		IsEnabled: true,
	}))

	n, err = e.RetryUnparsed(ctx, tu.DefaultGroupID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	queued, err := db.Storage.ListUnparsedNotifications(ctx, tu.DefaultGroupID, 0)
	require.NoError(t, err)
	assert.Empty(t, queued)

	txns, err := db.Storage.GetRecentTransactions(ctx, tu.DefaultGroupID, tu.BaseTime.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "local_bank", txns[0].BankID)
	assert.Equal(t, int64(3000), txns[0].Amount)
}

func TestCorrectCategory_LaterPurchaseUsesMapping(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Process(ctx, notice(bankText, kbBankPkg, tu.BaseTime))
	require.NoError(t, err)

	_, err = e.CorrectCategory(ctx, tu.DefaultGroupID, first.Transaction.ID, model.CategoryFood)
	require.NoError(t, err)

	s, ok, err := e.SuggestCategory(ctx, tu.DefaultGroupID, "스타벅스", model.TypeExpense)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.CategoryFood, s.Category)
	assert.False(t, s.AutoApply)

	// Learned categories are per direction.
	_, ok, err = e.SuggestCategory(ctx, tu.DefaultGroupID, "스타벅스", model.TypeIncome)
	require.NoError(t, err)
	assert.False(t, ok)

	// A later purchase outside the duplicate window picks up the learned category.
	later, err := e.Process(ctx, notice("[KB국민] 출금 5,000원 스타벅스", kbBankPkg, tu.BaseTime.Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, model.CategoryFood, later.Transaction.Category)
	assert.False(t, later.Transaction.IsConfirmed)
}
