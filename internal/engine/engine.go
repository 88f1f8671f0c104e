// Package engine runs notifications through the parsing, learning, deposit
// matching and duplicate detection pipeline and commits the results.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/notiledger/internal/catalog"
	"github.com/Veraticus/notiledger/internal/common"
	"github.com/Veraticus/notiledger/internal/deposit"
	"github.com/Veraticus/notiledger/internal/duplicate"
	"github.com/Veraticus/notiledger/internal/mapping"
	"github.com/Veraticus/notiledger/internal/metrics"
	"github.com/Veraticus/notiledger/internal/model"
	"github.com/Veraticus/notiledger/internal/parser"
	"github.com/Veraticus/notiledger/internal/service"
)

// Status is what happened to one notification.
type Status string

// Notification statuses.
const (
	StatusStored           Status = "stored"
	StatusUnparsed         Status = "unparsed"
	StatusDuplicateDropped Status = "duplicate_dropped"
	StatusAlreadyIngested  Status = "already_ingested"
)

// Result describes the outcome of processing one notification.
type Result struct {
	Transaction *model.Transaction
	// Contribution is the first of Contributions. An ambiguous deposit yields
	// one reviewable contribution per candidate goal.
	Contribution  *model.SavingsContribution
	Contributions []*model.SavingsContribution
	Pending       *model.PendingDuplicate
	ParseError    error
	Status        Status
	Duplicate     duplicate.Kind
	Deleted       []string
}

// Config holds the engine's policy parameters.
type Config struct {
	Metrics           *metrics.Metrics
	Retry             common.RetryOptions
	DuplicateWindow   time.Duration
	DuplicateLookback time.Duration
	DepositPolicy     deposit.Policy
	AutoApplyMinUses  int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		DuplicateWindow:   duplicate.DefaultWindow,
		DuplicateLookback: duplicate.DefaultWindow,
		DepositPolicy:     deposit.DefaultPolicy(),
		AutoApplyMinUses:  mapping.DefaultAutoApplyMinUses,
		Retry:             common.DefaultRetryOptions(),
	}
}

// Engine orchestrates the pipeline for every group it is handed.
type Engine struct {
	storage  service.Storage
	catalog  *catalog.Provider
	mappings *mapping.Store
	deposits *deposit.Service
	detector *duplicate.Detector
	resolver *duplicate.Resolver
	metrics  *metrics.Metrics
	now      func() time.Time
	locks    groupLocks
	retry    common.RetryOptions
	lookback time.Duration
}

// New creates an engine with the default configuration.
func New(storage service.Storage, provider *catalog.Provider) *Engine {
	return NewWithConfig(storage, provider, DefaultConfig())
}

// NewWithConfig creates an engine with custom configuration.
func NewWithConfig(storage service.Storage, provider *catalog.Provider, config Config) *Engine {
	m := config.Metrics
	if m == nil {
		m = metrics.Default()
	}
	detector := duplicate.NewDetector(config.DuplicateWindow)
	lookback := config.DuplicateLookback
	if lookback < detector.Window() {
		lookback = detector.Window()
	}

	deposits := deposit.NewService(storage, config.DepositPolicy)
	deposits.OnDeactivate(func(*model.LearnedDepositPattern) { m.RecordDeactivation() })

	return &Engine{
		storage:  storage,
		catalog:  provider,
		mappings: mapping.NewStore(storage, config.AutoApplyMinUses),
		deposits: deposits,
		detector: detector,
		resolver: duplicate.NewResolver(storage),
		metrics:  m,
		retry:    config.Retry,
		lookback: lookback,
		now:      time.Now,
		locks:    groupLocks{},
	}
}

// Snapshot returns the catalog for groupID: the provider's current snapshot
// with the group's stored custom bank patterns ahead of it.
func (e *Engine) Snapshot(ctx context.Context, groupID string) (*catalog.Snapshot, error) {
	base := e.catalog.Current()
	custom, err := e.storage.GetCustomBankPatterns(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load custom bank patterns: %w", err)
	}
	if len(custom) == 0 {
		return base, nil
	}
	snap, err := base.WithCustomBanks(custom...)
	if err != nil {
		return nil, fmt.Errorf("failed to apply custom bank patterns: %w", err)
	}
	return snap, nil
}

// Process parses a platform notification and commits the result. Parse
// failures are not errors: the notification is queued for manual entry and
// the result has StatusUnparsed.
func (e *Engine) Process(ctx context.Context, n model.Notification) (*Result, error) {
	return e.process(ctx, n, true)
}

func (e *Engine) process(ctx context.Context, n model.Notification, queueFailures bool) (*Result, error) {
	start := e.now()
	if n.GroupID == "" {
		return nil, fmt.Errorf("%w: notification has no group id", common.ErrMissingConfig)
	}
	if n.PostedAt.IsZero() {
		n.PostedAt = start
	}

	snap, err := e.Snapshot(ctx, n.GroupID)
	if err != nil {
		e.metrics.RecordNotification(metrics.OutcomeError, e.now().Sub(start))
		return nil, err
	}

	parsed, err := parser.Parse(snap, n.Text, n.SourcePackage)
	if err != nil {
		if parser.KindOf(err) == 0 {
			e.metrics.RecordNotification(metrics.OutcomeError, e.now().Sub(start))
			return nil, err
		}
		res, qerr := e.unparsed(ctx, n, err, queueFailures)
		e.metrics.RecordNotification(metrics.OutcomeUnparsed, e.now().Sub(start))
		return res, qerr
	}

	res, err := e.ingest(ctx, parsed.Transaction(n, model.SourceNotification))
	e.record(res, err, start)
	return res, err
}

// ProcessManualText parses text the user typed or pasted. Every enabled bank
// is a candidate. Parse failures are returned to the caller rather than queued.
func (e *Engine) ProcessManualText(ctx context.Context, groupID, userID, text string) (*Result, error) {
	start := e.now()
	snap, err := e.Snapshot(ctx, groupID)
	if err != nil {
		return nil, err
	}

	parsed, err := parser.ParseManualText(snap, text)
	if err != nil {
		e.metrics.RecordParseFailure(parser.KindOf(err).String())
		return nil, common.NewUserError("could not read a transaction from the text", err)
	}

	n := model.Notification{GroupID: groupID, UserID: userID, Text: text, PostedAt: start}
	res, err := e.ingest(ctx, parsed.Transaction(n, model.SourceManualTextInput))
	e.record(res, err, start)
	return res, err
}

// RetryUnparsed runs queued notifications through the parser again, typically
// after the catalog changed. Notifications that now parse leave the queue.
func (e *Engine) RetryUnparsed(ctx context.Context, groupID string) (int, error) {
	queued, err := e.storage.ListUnparsedNotifications(ctx, groupID, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list unparsed notifications: %w", err)
	}

	recovered := 0
	for _, u := range queued {
		if err := ctx.Err(); err != nil {
			return recovered, err
		}
		res, err := e.process(ctx, model.Notification{
			GroupID:       u.GroupID,
			UserID:        u.UserID,
			Text:          u.Text,
			SourcePackage: u.SourcePackage,
			PostedAt:      u.PostedAt,
		}, false)
		if err != nil {
			return recovered, err
		}
		if res.Status == StatusUnparsed {
			continue
		}
		if err := e.storage.DeleteUnparsedNotification(ctx, groupID, u.ID); err != nil && !errors.Is(err, common.ErrNotFound) {
			return recovered, fmt.Errorf("failed to dequeue notification %s: %w", u.ID, err)
		}
		recovered++
	}
	return recovered, nil
}

func (e *Engine) unparsed(ctx context.Context, n model.Notification, parseErr error, queue bool) (*Result, error) {
	kind := parser.KindOf(parseErr)
	e.metrics.RecordParseFailure(kind.String())
	slog.Info("Notification not parsed",
		"group_id", n.GroupID,
		"source_package", n.SourcePackage,
		"reason", kind.String())

	res := &Result{Status: StatusUnparsed, ParseError: parseErr}
	if !queue {
		return res, nil
	}

	err := e.storage.SaveUnparsedNotification(ctx, &model.UnparsedNotification{
		ID:            uuid.NewString(),
		GroupID:       n.GroupID,
		UserID:        n.UserID,
		Text:          n.Text,
		SourcePackage: n.SourcePackage,
		Reason:        kind.String(),
		PostedAt:      n.PostedAt,
		CreatedAt:     e.now(),
	})
	if err != nil {
		return res, fmt.Errorf("failed to queue unparsed notification: %w", err)
	}
	return res, nil
}

// ingest applies learned categories, commits the transaction through
// duplicate detection and matches deposits for stored income.
func (e *Engine) ingest(ctx context.Context, txn *model.Transaction) (*Result, error) {
	txn.ID = uuid.NewString()
	txn.CreatedAt = e.now()

	applied, err := e.mappings.Apply(ctx, txn)
	if err != nil {
		return nil, err
	}
	if applied {
		e.metrics.RecordMappingApplied(txn.IsConfirmed)
	}

	var (
		res   *Result
		saved bool
	)
	err = common.WithRetry(ctx, func() error {
		var commitErr error
		res, commitErr = e.commit(ctx, txn, &saved)
		return commitErr
	}, e.retry)
	if err != nil {
		return nil, err
	}

	if res.Status == StatusStored && txn.Type == model.TypeIncome {
		if res.Contributions, err = e.matchDeposit(ctx, txn); err != nil {
			return res, err
		}
		if len(res.Contributions) > 0 {
			res.Contribution = res.Contributions[0]
		}
	}
	return res, nil
}

// commit runs detection and the resulting writes while holding the group's
// lock, so two notifications for one event are compared in order. saved
// carries across retries so a retried commit does not store txn twice.
func (e *Engine) commit(ctx context.Context, txn *model.Transaction, saved *bool) (*Result, error) {
	unlock := e.locks.lock(txn.GroupID)
	defer unlock()

	recent, err := e.storage.GetRecentTransactions(ctx, txn.GroupID, txn.EventTime().Add(-e.lookback))
	if err != nil {
		return nil, fmt.Errorf("failed to load recent transactions: %w", err)
	}

	hash := txn.GenerateHash()
	for _, other := range recent {
		if other.ID != txn.ID && other.GenerateHash() == hash {
			return &Result{Status: StatusAlreadyIngested, Transaction: other}, nil
		}
	}

	rules, err := e.storage.GetDuplicateRules(ctx, txn.GroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load duplicate rules: %w", err)
	}

	outcome := e.detector.Detect(txn, recent, rules)
	res := &Result{Status: StatusStored, Transaction: txn, Duplicate: outcome.Kind}
	if outcome.Kind != duplicate.NoDuplicate {
		e.metrics.RecordDuplicate(outcome.Kind.String())
	}

	if outcome.Kind == duplicate.AutoResolved {
		keep, deleted, err := e.resolver.ApplyRule(ctx, outcome, txn.ID)
		res.Deleted = deleted
		if err != nil {
			return nil, err
		}
		e.metrics.RecordResolution(string(outcome.Resolution))
		if !keep {
			res.Status = StatusDuplicateDropped
			return res, nil
		}
	}

	if !*saved {
		if err := e.storage.SaveTransaction(ctx, txn); err != nil {
			if errors.Is(err, common.ErrDuplicateEntry) {
				return &Result{Status: StatusAlreadyIngested, Transaction: txn}, nil
			}
			return nil, fmt.Errorf("failed to save transaction: %w", err)
		}
		*saved = true
	}

	if outcome.Kind == duplicate.PendingReview {
		stored, created, err := e.storage.CreatePendingDuplicate(ctx, outcome.Pair)
		if err != nil {
			return nil, fmt.Errorf("failed to record pending duplicate: %w", err)
		}
		res.Pending = stored
		if created {
			slog.Info("Possible duplicate awaiting review",
				"group_id", txn.GroupID,
				"pending_id", stored.ID,
				"first_id", stored.First.TransactionID,
				"second_id", stored.Second.TransactionID,
				"amount", txn.Amount)
		}
	}

	slog.Debug("Transaction stored",
		"group_id", txn.GroupID,
		"transaction_id", txn.ID,
		"bank_id", txn.BankID,
		"type", txn.Type,
		"amount", txn.Amount,
		"category", txn.Category)
	return res, nil
}

func (e *Engine) matchDeposit(ctx context.Context, txn *model.Transaction) ([]*model.SavingsContribution, error) {
	matches, err := e.deposits.Match(ctx, txn.GroupID, txn.OriginalText)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	recorded, err := e.deposits.Record(ctx, txn.GroupID, txn.OriginalText, matches)
	for _, c := range recorded {
		e.metrics.RecordDepositMatch(string(c.MatchConfidence))
	}
	return recorded, err
}

func (e *Engine) record(res *Result, err error, start time.Time) {
	outcome := metrics.OutcomeError
	switch {
	case err != nil || res == nil:
	case res.Contribution != nil:
		outcome = metrics.OutcomeDeposit
	case res.Status == StatusDuplicateDropped:
		outcome = metrics.OutcomeDuplicateDrop
	case res.Status == StatusAlreadyIngested:
		outcome = metrics.OutcomeAlreadyIngested
	default:
		outcome = metrics.OutcomeStored
	}
	e.metrics.RecordNotification(outcome, e.now().Sub(start))
}
