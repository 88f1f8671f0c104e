package storage

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Veraticus/notiledger/internal/common"
	"github.com/Veraticus/notiledger/internal/model"
	"github.com/Veraticus/notiledger/internal/service"
)

var _ service.Storage = (*FirestoreStore)(nil)

// Collection names under groups/{groupId}.
const (
	colGroups        = "groups"
	colTransactions  = "transactions"
	colMappings      = "learnedMappings"
	colPatterns      = "depositPatterns"
	colContributions = "savingsContributions"
	colDuplicates    = "pendingDuplicates"
	colRules         = "duplicateRules"
	colBankPatterns  = "customBankPatterns"
	colUnparsed      = "unparsedNotifications"
)

const firestoreMaxBatch = 500

// FirestoreStore implements the Storage interface on Cloud Firestore. Every
// record lives under groups/{groupId}/<collection>/{id}.
type FirestoreStore struct {
	client *firestore.Client
	now    func() time.Time
}

// NewFirestoreStore wraps an existing client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client, now: time.Now}
}

// FirestoreAuth selects how the client authenticates. A refresh token with
// its OAuth client wins over a credentials file; with neither, application
// default credentials are used.
type FirestoreAuth struct {
	CredentialsFile string
	ClientID        string
	ClientSecret    string
	RefreshToken    string
}

func (a FirestoreAuth) hasOAuth() bool {
	return a.ClientID != "" && a.ClientSecret != "" && a.RefreshToken != ""
}

func (a FirestoreAuth) clientOptions(ctx context.Context) []option.ClientOption {
	switch {
	case a.hasOAuth():
		conf := &oauth2.Config{
			ClientID:     a.ClientID,
			ClientSecret: a.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{firestoreScope},
		}
		token := &oauth2.Token{RefreshToken: a.RefreshToken, TokenType: "Bearer"}
		return []option.ClientOption{option.WithTokenSource(conf.TokenSource(ctx, token))}
	case a.CredentialsFile != "":
		return []option.ClientOption{option.WithCredentialsFile(a.CredentialsFile)}
	default:
		return nil
	}
}

const firestoreScope = "https://www.googleapis.com/auth/datastore"

// OpenFirestore creates a client for projectID.
func OpenFirestore(ctx context.Context, projectID string, auth FirestoreAuth) (*FirestoreStore, error) {
	if err := validateString(projectID, "projectID"); err != nil {
		return nil, err
	}
	client, err := firestore.NewClient(ctx, projectID, auth.clientOptions(ctx)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return NewFirestoreStore(client), nil
}

// Migrate is a no-op; Firestore is schemaless.
func (s *FirestoreStore) Migrate(ctx context.Context) error {
	return validateContext(ctx)
}

// Close closes the underlying client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) col(groupID, name string) *firestore.CollectionRef {
	return s.client.Collection(colGroups).Doc(groupID).Collection(name)
}

// fsError maps gRPC status codes onto the storage sentinels.
func fsError(err error, what string) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", what, common.ErrNotFound)
	case codes.AlreadyExists:
		return fmt.Errorf("%s: %w", what, common.ErrDuplicateEntry)
	case codes.Aborted, codes.Unavailable, codes.ResourceExhausted:
		return fmt.Errorf("%s: %w: %w", what, common.ErrStorageBusy, err)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func docID(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:40]
}

// collect drains a document iterator.
func collect[T any](iter *firestore.DocumentIterator, convert func(*firestore.DocumentSnapshot) (T, error)) ([]T, error) {
	defer iter.Stop()
	var out []T
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		v, err := convert(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// Transactions.

type transactionDoc struct {
	TransactionDate  time.Time  `firestore:"transactionDate"`
	NotificationTime *time.Time `firestore:"notificationTime"`
	CreatedAt        time.Time  `firestore:"createdAt"`
	ID               string     `firestore:"id"`
	GroupID          string     `firestore:"groupId"`
	UserID           string     `firestore:"userId"`
	BankID           string     `firestore:"bankId"`
	BankName         string     `firestore:"bankName"`
	Description      string     `firestore:"description"`
	Category         string     `firestore:"category"`
	Merchant         string     `firestore:"merchant"`
	MerchantName     string     `firestore:"merchantName"`
	OriginalText     string     `firestore:"originalText"`
	SourcePackage    string     `firestore:"sourcePackage"`
	LinkedChildID    string     `firestore:"linkedChildId"`
	IncomeSubType    string     `firestore:"incomeSubType"`
	ExpenseSubType   string     `firestore:"expenseSubType"`
	Type             string     `firestore:"type"`
	Source           string     `firestore:"source"`
	Hash             string     `firestore:"hash"`
	EventAt          int64      `firestore:"eventAt"`
	Amount           int64      `firestore:"amount"`
	IsConfirmed      bool       `firestore:"isConfirmed"`
}

func toTransactionDoc(t *model.Transaction) transactionDoc {
	d := transactionDoc{
		TransactionDate: t.TransactionDate.UTC(),
		CreatedAt:       t.CreatedAt.UTC(),
		ID:              t.ID,
		GroupID:         t.GroupID,
		UserID:          t.UserID,
		BankID:          t.BankID,
		BankName:        t.BankName,
		Description:     t.Description,
		Category:        string(t.Category),
		Merchant:        t.Merchant,
		MerchantName:    t.MerchantName,
		OriginalText:    t.OriginalText,
		SourcePackage:   t.SourcePackage,
		LinkedChildID:   t.LinkedChildID,
		IncomeSubType:   string(t.IncomeSubType),
		ExpenseSubType:  string(t.ExpenseSubType),
		Type:            string(t.Type),
		Source:          string(t.Source),
		Hash:            t.GenerateHash(),
		EventAt:         t.EventTime().UnixMilli(),
		Amount:          t.Amount,
		IsConfirmed:     t.IsConfirmed,
	}
	if !t.NotificationTime.IsZero() {
		nt := t.NotificationTime.UTC()
		d.NotificationTime = &nt
	}
	return d
}

func fromTransactionDoc(doc *firestore.DocumentSnapshot) (*model.Transaction, error) {
	var d transactionDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode transaction %s: %w", doc.Ref.ID, err)
	}
	t := &model.Transaction{
		TransactionDate: d.TransactionDate,
		CreatedAt:       d.CreatedAt,
		ID:              d.ID,
		GroupID:         d.GroupID,
		UserID:          d.UserID,
		BankID:          d.BankID,
		BankName:        d.BankName,
		Description:     d.Description,
		Category:        model.ParseCategory(d.Category),
		Merchant:        d.Merchant,
		MerchantName:    d.MerchantName,
		OriginalText:    d.OriginalText,
		SourcePackage:   d.SourcePackage,
		LinkedChildID:   d.LinkedChildID,
		IncomeSubType:   model.ParseIncomeSubType(d.IncomeSubType),
		ExpenseSubType:  model.ParseExpenseSubType(d.ExpenseSubType),
		Type:            model.ParseTransactionType(d.Type),
		Source:          model.ParseSource(d.Source),
		Amount:          d.Amount,
		IsConfirmed:     d.IsConfirmed,
	}
	if d.NotificationTime != nil {
		t.NotificationTime = *d.NotificationTime
	}
	return t, nil
}

// SaveTransaction creates the transaction document. A second delivery of the
// same notification content yields common.ErrDuplicateEntry.
func (s *FirestoreStore) SaveTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = s.now()
	}

	col := s.col(txn.GroupID, colTransactions)
	d := toTransactionDoc(txn)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Documents(col.Where("hash", "==", d.Hash).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("transaction hash %s: %w", d.Hash[:12], common.ErrDuplicateEntry)
		}
		return tx.Create(col.Doc(txn.ID), d)
	})
	if errors.Is(err, common.ErrDuplicateEntry) {
		return err
	}
	return fsError(err, "failed to save transaction")
}

// GetTransaction retrieves a transaction by id.
func (s *FirestoreStore) GetTransaction(ctx context.Context, groupID, id string) (*model.Transaction, error) {
	if err := validateScope(ctx, groupID, id); err != nil {
		return nil, err
	}
	doc, err := s.col(groupID, colTransactions).Doc(id).Get(ctx)
	if err != nil {
		return nil, fsError(err, "transaction "+id)
	}
	return fromTransactionDoc(doc)
}

// DeleteTransaction removes a transaction, failing with ErrNotFound when absent.
func (s *FirestoreStore) DeleteTransaction(ctx context.Context, groupID, id string) error {
	if err := validateScope(ctx, groupID, id); err != nil {
		return err
	}
	_, err := s.col(groupID, colTransactions).Doc(id).Delete(ctx, firestore.Exists)
	return fsError(err, "transaction "+id)
}

// GetRecentTransactions returns transactions whose event time is at or after since.
func (s *FirestoreStore) GetRecentTransactions(ctx context.Context, groupID string, since time.Time) ([]*model.Transaction, error) {
	if err := validateScope(ctx, groupID); err != nil {
		return nil, err
	}
	q := s.col(groupID, colTransactions).
		Where("eventAt", ">=", since.UnixMilli()).
		OrderBy("eventAt", firestore.Asc)
	out, err := collect(q.Documents(ctx), fromTransactionDoc)
	if err != nil {
		return nil, fsError(err, "failed to query recent transactions")
	}
	return out, nil
}

// ListTransactions returns the group's transactions, newest first.
func (s *FirestoreStore) ListTransactions(ctx context.Context, groupID string, filter service.TransactionFilter) ([]*model.Transaction, error) {
	if err := validateScope(ctx, groupID); err != nil {
		return nil, err
	}
	q := s.col(groupID, colTransactions).Query
	if filter.StartDate != nil {
		q = q.Where("eventAt", ">=", filter.StartDate.UnixMilli())
	}
	if filter.EndDate != nil {
		q = q.Where("eventAt", "<=", filter.EndDate.UnixMilli())
	}
	if filter.Type != "" {
		q = q.Where("type", "==", string(filter.Type))
	}

	out, err := collect(q.Documents(ctx), fromTransactionDoc)
	if err != nil {
		return nil, fsError(err, "failed to list transactions")
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EventTime().After(out[j].EventTime())
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UpdateTransactionCategory sets the category and confirmation flag.
func (s *FirestoreStore) UpdateTransactionCategory(ctx context.Context, groupID, id string, category model.Category, confirmed bool) error {
	if err := validateScope(ctx, groupID, id); err != nil {
		return err
	}
	_, err := s.col(groupID, colTransactions).Doc(id).Update(ctx, []firestore.Update{
		{Path: "category", Value: string(category)},
		{Path: "isConfirmed", Value: confirmed},
	})
	return fsError(err, "transaction "+id)
}

// Learned mappings.

type mappingDoc struct {
	LastUsedAt           time.Time `firestore:"lastUsedAt"`
	CreatedAt            time.Time `firestore:"createdAt"`
	ID                   string    `firestore:"id"`
	GroupID              string    `firestore:"groupId"`
	MerchantName         string    `firestore:"merchantName"`
	OriginalMerchantName string    `firestore:"originalMerchantName"`
	Category             string    `firestore:"category"`
	TransactionType      string    `firestore:"transactionType"`
	UseCount             int       `firestore:"useCount"`
}

func fromMappingDoc(doc *firestore.DocumentSnapshot) (*model.LearnedMapping, error) {
	var d mappingDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode learned mapping %s: %w", doc.Ref.ID, err)
	}
	return &model.LearnedMapping{
		LastUsedAt:           d.LastUsedAt,
		CreatedAt:            d.CreatedAt,
		ID:                   d.ID,
		GroupID:              d.GroupID,
		MerchantName:         d.MerchantName,
		OriginalMerchantName: d.OriginalMerchantName,
		Category:             model.ParseCategory(d.Category),
		TransactionType:      model.ParseTransactionType(d.TransactionType),
		UseCount:             d.UseCount,
	}, nil
}

// mappingRef keys the document by (merchant, type) so the uniqueness of a
// mapping is enforced by the document path.
func (s *FirestoreStore) mappingRef(groupID, merchantName string, txnType model.TransactionType) *firestore.DocumentRef {
	return s.col(groupID, colMappings).Doc(docID(merchantName, string(txnType)))
}

// GetLearnedMapping finds the mapping for a normalized merchant name and type.
func (s *FirestoreStore) GetLearnedMapping(ctx context.Context, groupID, merchantName string, txnType model.TransactionType) (*model.LearnedMapping, error) {
	if err := validateScope(ctx, groupID, merchantName); err != nil {
		return nil, err
	}
	doc, err := s.mappingRef(groupID, merchantName, txnType).Get(ctx)
	if err != nil {
		return nil, fsError(err, "learned mapping "+merchantName)
	}
	return fromMappingDoc(doc)
}

// UpsertLearnedMapping creates the mapping or increments the existing one.
func (s *FirestoreStore) UpsertLearnedMapping(ctx context.Context, mapping *model.LearnedMapping) (*model.LearnedMapping, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateMapping(mapping); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	ref := s.mappingRef(mapping.GroupID, mapping.MerchantName, mapping.TransactionType)
	var stored *model.LearnedMapping
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
			d := mappingDoc{
				LastUsedAt:           now,
				CreatedAt:            now,
				ID:                   ref.ID,
				GroupID:              mapping.GroupID,
				MerchantName:         mapping.MerchantName,
				OriginalMerchantName: mapping.OriginalMerchantName,
				Category:             string(mapping.Category),
				TransactionType:      string(mapping.TransactionType),
				UseCount:             1,
			}
			if err := tx.Create(ref, d); err != nil {
				return err
			}
			stored = &model.LearnedMapping{
				LastUsedAt:           now,
				CreatedAt:            now,
				ID:                   d.ID,
				GroupID:              d.GroupID,
				MerchantName:         d.MerchantName,
				OriginalMerchantName: d.OriginalMerchantName,
				Category:             mapping.Category,
				TransactionType:      mapping.TransactionType,
				UseCount:             1,
			}
			return nil
		case err != nil:
			return err
		}

		existing, err := fromMappingDoc(doc)
		if err != nil {
			return err
		}
		existing.UseCount++
		existing.Category = mapping.Category
		existing.OriginalMerchantName = mapping.OriginalMerchantName
		existing.LastUsedAt = now
		stored = existing
		return tx.Update(ref, []firestore.Update{
			{Path: "useCount", Value: firestore.Increment(1)},
			{Path: "category", Value: string(mapping.Category)},
			{Path: "originalMerchantName", Value: mapping.OriginalMerchantName},
			{Path: "lastUsedAt", Value: now},
		})
	})
	if err != nil {
		return nil, fsError(err, "failed to upsert learned mapping")
	}
	return stored, nil
}

// ListLearnedMappings returns the group's mappings, most used first.
func (s *FirestoreStore) ListLearnedMappings(ctx context.Context, groupID string) ([]*model.LearnedMapping, error) {
	if err := validateScope(ctx, groupID); err != nil {
		return nil, err
	}
	out, err := collect(s.col(groupID, colMappings).Documents(ctx), fromMappingDoc)
	if err != nil {
		return nil, fsError(err, "failed to list learned mappings")
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UseCount != out[j].UseCount {
			return out[i].UseCount > out[j].UseCount
		}
		return out[i].MerchantName < out[j].MerchantName
	})
	return out, nil
}

// DeleteLearnedMapping removes a mapping by id.
func (s *FirestoreStore) DeleteLearnedMapping(ctx context.Context, groupID, id string) error {
	if err := validateScope(ctx, groupID, id); err != nil {
		return err
	}
	_, err := s.col(groupID, colMappings).Doc(id).Delete(ctx, firestore.Exists)
	return fsError(err, "learned mapping "+id)
}

// Deposit patterns.

type patternDoc struct {
	CreatedAt            time.Time `firestore:"createdAt"`
	UpdatedAt            time.Time `firestore:"updatedAt"`
	ID                   string    `firestore:"id"`
	GroupID              string    `firestore:"groupId"`
	SavingsGoalID        string    `firestore:"savingsGoalId"`
	SenderNameRegex      string    `firestore:"senderNameRegex"`
	AmountRegex          string    `firestore:"amountRegex"`
	AccountNumberPattern string    `firestore:"accountNumberPattern"`
	BankName             string    `firestore:"bankName"`
	SuccessCount         int       `firestore:"successCount"`
	FailCount            int       `firestore:"failCount"`
	IsActive             bool      `firestore:"isActive"`
}

func fromPatternDoc(doc *firestore.DocumentSnapshot) (*model.LearnedDepositPattern, error) {
	var d patternDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode deposit pattern %s: %w", doc.Ref.ID, err)
	}
	return &model.LearnedDepositPattern{
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
		ID:                   d.ID,
		GroupID:              d.GroupID,
		SavingsGoalID:        d.SavingsGoalID,
		SenderNameRegex:      d.SenderNameRegex,
		AmountRegex:          d.AmountRegex,
		AccountNumberPattern: d.AccountNumberPattern,
		BankName:             d.BankName,
		SuccessCount:         d.SuccessCount,
		FailCount:            d.FailCount,
		IsActive:             d.IsActive,
	}, nil
}

// CreateDepositPattern stores a new learned deposit pattern.
func (s *FirestoreStore) CreateDepositPattern(ctx context.Context, p *model.LearnedDepositPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePattern(p); err != nil {
		return err
	}
	now := s.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.col(p.GroupID, colPatterns).Doc(p.ID).Create(ctx, patternDoc{
		CreatedAt:            p.CreatedAt.UTC(),
		UpdatedAt:            p.UpdatedAt,
		ID:                   p.ID,
		GroupID:              p.GroupID,
		SavingsGoalID:        p.SavingsGoalID,
		SenderNameRegex:      p.SenderNameRegex,
		AmountRegex:          p.AmountRegex,
		AccountNumberPattern: p.AccountNumberPattern,
		BankName:             p.BankName,
		SuccessCount:         p.SuccessCount,
		FailCount:            p.FailCount,
		IsActive:             p.IsActive,
	})
	return fsError(err, "failed to create deposit pattern")
}

// GetDepositPattern retrieves a pattern by id.
func (s *FirestoreStore) GetDepositPattern(ctx context.Context, groupID, id string) (*model.LearnedDepositPattern, error) {
	if err := validateScope(ctx, groupID, id); err != nil {
		return nil, err
	}
	doc, err := s.col(groupID, colPatterns).Doc(id).Get(ctx)
	if err != nil {
		return nil, fsError(err, "deposit pattern "+id)
	}
	return fromPatternDoc(doc)
}

// GetActiveDepositPatterns returns the group's active patterns, oldest first.
func (s *FirestoreStore) GetActiveDepositPatterns(ctx context.Context, groupID string) ([]*model.LearnedDepositPattern, error) {
	if err := validateScope(ctx, groupID); err != nil {
		return nil, err
	}
	return s.listPatterns(ctx, s.col(groupID, colPatterns).Where("isActive", "==", true))
}

// ListDepositPatterns returns all of the group's patterns, oldest first.
func (s *FirestoreStore) ListDepositPatterns(ctx context.Context, groupID string) ([]*model.LearnedDepositPattern, error) {
	if err := validateScope(ctx, groupID); err != nil {
		return nil, err
	}
	return s.listPatterns(ctx, s.col(groupID, colPatterns).Query)
}

func (s *FirestoreStore) listPatterns(ctx context.Context, q firestore.Query) ([]*model.LearnedDepositPattern, error) {
	out, err := collect(q.Documents(ctx), fromPatternDoc)
	if err != nil {
		return nil, fsError(err, "failed to list deposit patterns")
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// IncrementDepositPatternSuccess atomically adds one to the success counter.
func (s *FirestoreStore) IncrementDepositPatternSuccess(ctx context.Context, groupID, id string) (*model.LearnedDepositPattern, error) {
	return s.incrementPattern(ctx, groupID, id, "successCount")
}

// IncrementDepositPatternFailure atomically adds one to the failure counter.
func (s *FirestoreStore) IncrementDepositPatternFailure(ctx context.Context, groupID, id string) (*model.LearnedDepositPattern, error) {
	return s.incrementPattern(ctx, groupID, id, "failCount")
}

func (s *FirestoreStore) incrementPattern(ctx context.Context, groupID, id, field string) (*model.LearnedDepositPattern, error) {
	if err := validateScope(ctx, groupID, id); err != nil {
		return nil, err
	}
	ref := s.col(groupID, colPatterns).Doc(id)
	now := s.now().UTC()

	var updated *model.LearnedDepositPattern
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		p, err := fromPatternDoc(doc)
		if err != nil {
			return err
		}
		if field == "successCount" {
			p.SuccessCount++
		} else {
			p.FailCount++
		}
		p.UpdatedAt = now
		updated = p
		return tx.Update(ref, []firestore.Update{
			{Path: field, Value: firestore.Increment(1)},
			{Path: "updatedAt", Value: now},
		})
	})
	if err != nil {
		return nil, fsError(err, "deposit pattern "+id)
	}
	return updated, nil
}

// DeactivateDepositPattern turns a pattern off without deleting it.
func (s *FirestoreStore) DeactivateDepositPattern(ctx context.Context, groupID, id string) error {
	return s.setPatternActive(ctx, groupID, id, false)
}

// ReactivateDepositPattern turns a deactivated pattern back on.
func (s *FirestoreStore) ReactivateDepositPattern(ctx context.Context, groupID, id string) error {
	return s.setPatternActive(ctx, groupID, id, true)
}

func (s *FirestoreStore) setPatternActive(ctx context.Context, groupID, id string, active bool) error {
	if err := validateScope(ctx, groupID, id); err != nil {
		return err
	}
	_, err := s.col(groupID, colPatterns).Doc(id).Update(ctx, []firestore.Update{
		{Path: "isActive", Value: active},
		{Path: "updatedAt", Value: s.now().UTC()},
	})
	return fsError(err, "deposit pattern "+id)
}

// Savings contributions.

type contributionDoc struct {
	CreatedAt                time.Time  `firestore:"createdAt"`
	ModifiedAt               *time.Time `firestore:"modifiedAt"`
	ID                       string     `firestore:"id"`
	GroupID                  string     `firestore:"groupId"`
	SavingsGoalID            string     `firestore:"savingsGoalId"`
	PatternID                string     `firestore:"patternId"`
	DetectedSenderName       string     `firestore:"detectedSenderName"`
	OriginalNotificationText string     `firestore:"originalNotificationText"`
	ModifiedBy               string     `firestore:"modifiedBy"`
	MatchConfidence          string     `firestore:"matchConfidence"`
	Amount                   int64      `firestore:"amount"`
	IsAutoDetected           bool       `firestore:"isAutoDetected"`
	NeedsReview              bool       `firestore:"needsReview"`
	IsModified               bool       `firestore:"isModified"`
}

func toContributionDoc(c *model.SavingsContribution) contributionDoc {
	return contributionDoc{
		CreatedAt:                c.CreatedAt.UTC(),
		ModifiedAt:               c.ModifiedAt,
		ID:                       c.ID,
		GroupID:                  c.GroupID,
		SavingsGoalID:            c.SavingsGoalID,
		PatternID:                c.PatternID,
		DetectedSenderName:       c.DetectedSenderName,
		OriginalNotificationText: c.OriginalNotificationText,
		ModifiedBy:               c.ModifiedBy,
		MatchConfidence:          string(c.MatchConfidence),
		Amount:                   c.Amount,
		IsAutoDetected:           c.IsAutoDetected,
		NeedsReview:              c.NeedsReview,
		IsModified:               c.IsModified,
	}
}

func fromContributionDoc(doc *firestore.DocumentSnapshot) (*model.SavingsContribution, error) {
	var d contributionDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode savings contribution %s: %w", doc.Ref.ID, err)
	}
	return &model.SavingsContribution{
		CreatedAt:                d.CreatedAt,
		ModifiedAt:               d.ModifiedAt,
		ID:                       d.ID,
		GroupID:                  d.GroupID,
		SavingsGoalID:            d.SavingsGoalID,
		PatternID:                d.PatternID,
		DetectedSenderName:       d.DetectedSenderName,
		OriginalNotificationText: d.OriginalNotificationText,
		ModifiedBy:               d.ModifiedBy,
		MatchConfidence:          model.ParseConfidence(d.MatchConfidence),
		Amount:                   d.Amount,
		IsAutoDetected:           d.IsAutoDetected,
		NeedsReview:              d.NeedsReview,
		IsModified:               d.IsModified,
	}, nil
}

// SaveSavingsContribution inserts a contribution.
func (s *FirestoreStore) SaveSavingsContribution(ctx context.Context, c *model.SavingsContribution) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateContribution(c); err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	_, err := s.col(c.GroupID, colContributions).Doc(c.ID).Create(ctx, toContributionDoc(c))
	return fsError(err, "failed to save savings contribution")
}

// GetSavingsContribution retrieves a contribution by id.
func (s *FirestoreStore) GetSavingsContribution(ctx context.Context, groupID, id string) (*model.SavingsContribution, error) {
	if err := validateScope(ctx, groupID, id); err != nil {
		return nil, err
	}
	doc, err := s.col(groupID, colContributions).Doc(id).Get(ctx)
	if err != nil {
		return nil, fsError(err, "savings contribution "+id)
	}
	return fromContributionDoc(doc)
}

// ListSavingsContributions returns the group's contributions, newest first.
func (s *FirestoreStore) ListSavingsContributions(ctx context.Context, groupID string, needsReviewOnly bool) ([]*model.SavingsContribution, error) {
	if err := validateScope(ctx, groupID); err != nil {
		return nil, err
	}
	q := s.col(groupID, colContributions).Query
	if needsReviewOnly {
		q = q.Where("needsReview", "==", true)
	}
	out, err := collect(q.Documents(ctx), fromContributionDoc)
	if err != nil {
		return nil, fsError(err, "failed to list savings contributions")
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateSavingsContribution replaces a stored contribution.
func (s *FirestoreStore) UpdateSavingsContribution(ctx context.Context, c *model.SavingsContribution) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateContribution(c); err != nil {
		return err
	}
	ref := s.col(c.GroupID, colContributions).Doc(c.ID)
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return tx.Set(ref, toContributionDoc(c))
	})
	return fsError(err, "savings contribution "+c.ID)
}

// ClaimContributionReview clears the review flag inside a transaction, so
// exactly one concurrent caller wins.
func (s *FirestoreStore) ClaimContributionReview(ctx context.Context, groupID, id string) (bool, error) {
	if err := validateScope(ctx, groupID, id); err != nil {
		return false, err
	}

	ref := s.col(groupID, colContributions).Doc(id)
	var claimed bool
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		claimed = false
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		review, err := doc.DataAt("needsReview")
		if err != nil {
			return err
		}
		if b, ok := review.(bool); !ok || !b {
			return nil
		}
		claimed = true
		return tx.Update(ref, []firestore.Update{{Path: "needsReview", Value: false}})
	})
	if err != nil {
		return false, fsError(err, "savings contribution "+id)
	}
	return claimed, nil
}

// DeleteSavingsContribution removes a contribution by id.
func (s *FirestoreStore) DeleteSavingsContribution(ctx context.Context, groupID, id string) error {
	if err := validateScope(ctx, groupID, id); err != nil {
		return err
	}
	_, err := s.col(groupID, colContributions).Doc(id).Delete(ctx, firestore.Exists)
	return fsError(err, "savings contribution "+id)
}

// Pending duplicates and rules.

type duplicateSideDoc struct {
	NotificationTime time.Time `firestore:"notificationTime"`
	TransactionID    string    `firestore:"transactionId"`
	BankID           string    `firestore:"bankId"`
	Description      string    `firestore:"description"`
	OriginalText     string    `firestore:"originalText"`
	Type             string    `firestore:"type"`
	Amount           int64     `firestore:"amount"`
}

type duplicateDoc struct {
	CreatedAt  time.Time        `firestore:"createdAt"`
	ResolvedAt *time.Time       `firestore:"resolvedAt"`
	ID         string           `firestore:"id"`
	GroupID    string           `firestore:"groupId"`
	PairKey    string           `firestore:"pairKey"`
	Resolution string           `firestore:"resolution"`
	First      duplicateSideDoc `firestore:"first"`
	Second     duplicateSideDoc `firestore:"second"`
	IsResolved bool             `firestore:"isResolved"`
}

func toSideDoc(info model.DuplicateTransactionInfo) duplicateSideDoc {
	return duplicateSideDoc{
		NotificationTime: info.NotificationTime.UTC(),
		TransactionID:    info.TransactionID,
		BankID:           info.BankID,
		Description:      info.Description,
		OriginalText:     info.OriginalText,
		Type:             string(info.Type),
		Amount:           info.Amount,
	}
}

func fromSideDoc(d duplicateSideDoc) model.DuplicateTransactionInfo {
	return model.DuplicateTransactionInfo{
		NotificationTime: d.NotificationTime,
		TransactionID:    d.TransactionID,
		BankID:           d.BankID,
		Description:      d.Description,
		OriginalText:     d.OriginalText,
		Type:             model.ParseTransactionType(d.Type),
		Amount:           d.Amount,
	}
}

func fromDuplicateDoc(doc *firestore.DocumentSnapshot) (*model.PendingDuplicate, error) {
	var d duplicateDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode pending duplicate %s: %w", doc.Ref.ID, err)
	}
	return &model.PendingDuplicate{
		CreatedAt:  d.CreatedAt,
		ResolvedAt: d.ResolvedAt,
		ID:         d.ID,
		GroupID:    d.GroupID,
		First:      fromSideDoc(d.First),
		Second:     fromSideDoc(d.Second),
		Resolution: model.ParseResolution(d.Resolution),
		IsResolved: d.IsResolved,
	}, nil
}

// CreatePendingDuplicate stores p unless the pair already has a record.
func (s *FirestoreStore) CreatePendingDuplicate(ctx context.Context, p *model.PendingDuplicate) (*model.PendingDuplicate, bool, error) {
	if err := validateContext(ctx); err != nil {
		return nil, false, err
	}
	if err := validatePendingDuplicate(p); err != nil {
		return nil, false, err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	if p.Resolution == "" {
		p.Resolution = model.ResolutionPending
	}

	col := s.col(p.GroupID, colDuplicates)
	var (
		stored  *model.PendingDuplicate
		created bool
	)
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		created = false
		existing, err := tx.Documents(col.Where("pairKey", "==", p.PairKey()).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			stored, err = fromDuplicateDoc(existing[0])
			return err
		}

		err = tx.Create(col.Doc(p.ID), duplicateDoc{
			CreatedAt:  p.CreatedAt.UTC(),
			ResolvedAt: p.ResolvedAt,
			ID:         p.ID,
			GroupID:    p.GroupID,
			PairKey:    p.PairKey(),
			Resolution: string(p.Resolution),
			First:      toSideDoc(p.First),
			Second:     toSideDoc(p.Second),
			IsResolved: p.IsResolved,
		})
		if err != nil {
			return err
		}
		copied := *p
		stored, created = &copied, true
		return nil
	})
	if err != nil {
		return nil, false, fsError(err, "failed to create pending duplicate")
	}
	return stored, created, nil
}

// GetPendingDuplicate retrieves a pending duplicate by id.
func (s *FirestoreStore) GetPendingDuplicate(ctx context.Context, groupID, id string) (*model.PendingDuplicate, error) {
	if err := validateScope(ctx, groupID, id); err != nil {
		return nil, err
	}
	doc, err := s.col(groupID, colDuplicates).Doc(id).Get(ctx)
	if err != nil {
		return nil, fsError(err, "pending duplicate "+id)
	}
	return fromDuplicateDoc(doc)
}

// ListPendingDuplicates returns the group's duplicates, oldest first.
func (s *FirestoreStore) ListPendingDuplicates(ctx context.Context, groupID string, includeResolved bool) ([]*model.PendingDuplicate, error) {
	if err := validateScope(ctx, groupID); err != nil {
		return nil, err
	}
	q := s.col(groupID, colDuplicates).Query
	if !includeResolved {
		q = q.Where("isResolved", "==", false)
	}
	out, err := collect(q.Documents(ctx), fromDuplicateDoc)
	if err != nil {
		return nil, fsError(err, "failed to list pending duplicates")
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ClaimPendingDuplicate resolves an unresolved record inside a transaction,
// so exactly one concurrent caller wins.
func (s *FirestoreStore) ClaimPendingDuplicate(ctx context.Context, groupID, id string, resolution model.Resolution, at time.Time) (bool, error) {
	if err := validateScope(ctx, groupID, id); err != nil {
		return false, err
	}
	if !resolution.IsTerminal() {
		return false, fmt.Errorf("%w: %q", common.ErrInvalidResolution, resolution)
	}

	ref := s.col(groupID, colDuplicates).Doc(id)
	var claimed bool
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		claimed = false
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		resolved, err := doc.DataAt("isResolved")
		if err != nil {
			return err
		}
		if b, ok := resolved.(bool); ok && b {
			return nil
		}
		claimed = true
		return tx.Update(ref, []firestore.Update{
			{Path: "isResolved", Value: true},
			{Path: "resolution", Value: string(resolution)},
			{Path: "resolvedAt", Value: at.UTC()},
		})
	})
	if err != nil {
		return false, fsError(err, "pending duplicate "+id)
	}
	return claimed, nil
}

type ruleDoc struct {
	CreatedAt  time.Time `firestore:"createdAt"`
	ID         string    `firestore:"id"`
	GroupID    string    `firestore:"groupId"`
	Bank1ID    string    `firestore:"bank1Id"`
	Bank2ID    string    `firestore:"bank2Id"`
	Resolution string    `firestore:"resolution"`
}

func fromRuleDoc(doc *firestore.DocumentSnapshot) (*model.DuplicateRule, error) {
	var d ruleDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode duplicate rule %s: %w", doc.Ref.ID, err)
	}
	return &model.DuplicateRule{
		CreatedAt:  d.CreatedAt,
		ID:         d.ID,
		GroupID:    d.GroupID,
		Bank1ID:    d.Bank1ID,
		Bank2ID:    d.Bank2ID,
		Resolution: model.ParseResolution(d.Resolution),
	}, nil
}

// SaveDuplicateRule stores a rule, replacing any rule for the same bank pair
// in either order.
func (s *FirestoreStore) SaveDuplicateRule(ctx context.Context, rule *model.DuplicateRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = s.now()
	}

	col := s.col(rule.GroupID, colRules)
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		var stale []*firestore.DocumentSnapshot
		for _, pair := range [][2]string{{rule.Bank1ID, rule.Bank2ID}, {rule.Bank2ID, rule.Bank1ID}} {
			docs, err := tx.Documents(col.Where("bank1Id", "==", pair[0]).Where("bank2Id", "==", pair[1])).GetAll()
			if err != nil {
				return err
			}
			stale = append(stale, docs...)
		}
		for _, doc := range stale {
			if doc.Ref.ID == rule.ID {
				continue
			}
			if err := tx.Delete(doc.Ref); err != nil {
				return err
			}
		}
		return tx.Set(col.Doc(rule.ID), ruleDoc{
			CreatedAt:  rule.CreatedAt.UTC(),
			ID:         rule.ID,
			GroupID:    rule.GroupID,
			Bank1ID:    rule.Bank1ID,
			Bank2ID:    rule.Bank2ID,
			Resolution: string(rule.Resolution),
		})
	})
	return fsError(err, "failed to save duplicate rule")
}

// GetDuplicateRules returns the group's rules, oldest first.
func (s *FirestoreStore) GetDuplicateRules(ctx context.Context, groupID string) ([]*model.DuplicateRule, error) {
	if err := validateScope(ctx, groupID); err != nil {
		return nil, err
	}
	out, err := collect(s.col(groupID, colRules).Documents(ctx), fromRuleDoc)
	if err != nil {
		return nil, fsError(err, "failed to list duplicate rules")
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteDuplicateRule removes a rule by id.
func (s *FirestoreStore) DeleteDuplicateRule(ctx context.Context, groupID, id string) error {
	if err := validateScope(ctx, groupID, id); err != nil {
		return err
	}
	_, err := s.col(groupID, colRules).Doc(id).Delete(ctx, firestore.Exists)
	return fsError(err, "duplicate rule "+id)
}

// Custom bank patterns.

type bankPatternDoc struct {
	LastModified      time.Time `firestore:"lastModified"`
	BankID            string    `firestore:"bankId"`
	DisplayName       string    `firestore:"displayName"`
	AmountRegex       string    `firestore:"amountRegex"`
	PackageNames      []string  `firestore:"packageNames"`
	IncomeKeywords    []string  `firestore:"incomeKeywords"`
	ExpenseKeywords   []string  `firestore:"expenseKeywords"`
	MerchantRegexList []string  `firestore:"merchantRegexList"`
	IsEnabled         bool      `firestore:"isEnabled"`
}

// SaveCustomBankPattern inserts or replaces a custom bank pattern, keyed by bank id.
func (s *FirestoreStore) SaveCustomBankPattern(ctx context.Context, p *model.CustomBankPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateBankPattern(p); err != nil {
		return err
	}
	p.IsCustom = true
	p.LastModified = s.now()

	_, err := s.col(p.GroupID, colBankPatterns).Doc(p.BankID).Set(ctx, bankPatternDoc{
		LastModified:      p.LastModified.UTC(),
		BankID:            p.BankID,
		DisplayName:       p.DisplayName,
		AmountRegex:       p.AmountRegex,
		PackageNames:      p.PackageNames,
		IncomeKeywords:    p.IncomeKeywords,
		ExpenseKeywords:   p.ExpenseKeywords,
		MerchantRegexList: p.MerchantRegexList,
		IsEnabled:         p.IsEnabled,
	})
	return fsError(err, "failed to save custom bank pattern")
}

// GetCustomBankPatterns returns the group's custom patterns, most recently
// modified first.
func (s *FirestoreStore) GetCustomBankPatterns(ctx context.Context, groupID string) ([]model.CustomBankPattern, error) {
	if err := validateScope(ctx, groupID); err != nil {
		return nil, err
	}
	out, err := collect(s.col(groupID, colBankPatterns).Documents(ctx), func(doc *firestore.DocumentSnapshot) (model.CustomBankPattern, error) {
		var d bankPatternDoc
		if err := doc.DataTo(&d); err != nil {
			return model.CustomBankPattern{}, fmt.Errorf("failed to decode custom bank pattern %s: %w", doc.Ref.ID, err)
		}
		return model.CustomBankPattern{
			LastModified:      d.LastModified,
			GroupID:           groupID,
			MerchantRegexList: d.MerchantRegexList,
			BankConfig: model.BankConfig{
				BankID:          d.BankID,
				DisplayName:     d.DisplayName,
				AmountRegex:     d.AmountRegex,
				PackageNames:    d.PackageNames,
				IncomeKeywords:  d.IncomeKeywords,
				ExpenseKeywords: d.ExpenseKeywords,
			},
			IsEnabled: d.IsEnabled,
			IsCustom:  true,
		}, nil
	})
	if err != nil {
		return nil, fsError(err, "failed to list custom bank patterns")
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out, nil
}

// DeleteCustomBankPattern removes a custom pattern.
func (s *FirestoreStore) DeleteCustomBankPattern(ctx context.Context, groupID, bankID string) error {
	if err := validateScope(ctx, groupID, bankID); err != nil {
		return err
	}
	_, err := s.col(groupID, colBankPatterns).Doc(bankID).Delete(ctx, firestore.Exists)
	return fsError(err, "custom bank pattern "+bankID)
}

// Unparsed notifications.

type unparsedDoc struct {
	PostedAt      time.Time `firestore:"postedAt"`
	CreatedAt     time.Time `firestore:"createdAt"`
	ID            string    `firestore:"id"`
	GroupID       string    `firestore:"groupId"`
	UserID        string    `firestore:"userId"`
	Text          string    `firestore:"text"`
	SourcePackage string    `firestore:"sourcePackage"`
	Reason        string    `firestore:"reason"`
}

// SaveUnparsedNotification queues a notification for manual entry.
func (s *FirestoreStore) SaveUnparsedNotification(ctx context.Context, n *model.UnparsedNotification) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if n == nil {
		return fmt.Errorf("%w: unparsed notification", ErrNilParameter)
	}
	if err := validateScope(ctx, n.GroupID, n.ID); err != nil {
		return err
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	_, err := s.col(n.GroupID, colUnparsed).Doc(n.ID).Create(ctx, unparsedDoc{
		PostedAt:      n.PostedAt.UTC(),
		CreatedAt:     n.CreatedAt.UTC(),
		ID:            n.ID,
		GroupID:       n.GroupID,
		UserID:        n.UserID,
		Text:          n.Text,
		SourcePackage: n.SourcePackage,
		Reason:        n.Reason,
	})
	return fsError(err, "failed to save unparsed notification")
}

// ListUnparsedNotifications returns queued notifications, newest first.
func (s *FirestoreStore) ListUnparsedNotifications(ctx context.Context, groupID string, limit int) ([]*model.UnparsedNotification, error) {
	if err := validateScope(ctx, groupID); err != nil {
		return nil, err
	}
	q := s.col(groupID, colUnparsed).OrderBy("createdAt", firestore.Desc)
	if limit > 0 {
		q = q.Limit(min(limit, firestoreMaxBatch))
	}
	out, err := collect(q.Documents(ctx), func(doc *firestore.DocumentSnapshot) (*model.UnparsedNotification, error) {
		var d unparsedDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to decode unparsed notification %s: %w", doc.Ref.ID, err)
		}
		return &model.UnparsedNotification{
			PostedAt:      d.PostedAt,
			CreatedAt:     d.CreatedAt,
			ID:            d.ID,
			GroupID:       d.GroupID,
			UserID:        d.UserID,
			Text:          d.Text,
			SourcePackage: d.SourcePackage,
			Reason:        d.Reason,
		}, nil
	})
	if err != nil {
		return nil, fsError(err, "failed to list unparsed notifications")
	}
	return out, nil
}

// DeleteUnparsedNotification removes a queued notification.
func (s *FirestoreStore) DeleteUnparsedNotification(ctx context.Context, groupID, id string) error {
	if err := validateScope(ctx, groupID, id); err != nil {
		return err
	}
	_, err := s.col(groupID, colUnparsed).Doc(id).Delete(ctx, firestore.Exists)
	return fsError(err, "unparsed notification "+id)
}
