package duplicate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Veraticus/notiledger/internal/common"
	"github.com/Veraticus/notiledger/internal/model"
	"github.com/Veraticus/notiledger/internal/testutil"
)

func pendingPair() *model.PendingDuplicate {
	return &model.PendingDuplicate{
		ID:         "pending-1",
		GroupID:    testutil.DefaultGroupID,
		First:      model.DuplicateTransactionInfo{TransactionID: "txn-bank", BankID: "kb_kookmin", Amount: 12345},
		Second:     model.DuplicateTransactionInfo{TransactionID: "txn-card", BankID: "kb_card", Amount: 12345},
		Resolution: model.ResolutionPending,
		CreatedAt:  testutil.BaseTime,
	}
}

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	group := testutil.DefaultGroupID

	tests := []struct {
		name        string
		resolution  model.Resolution
		setupMock   func(m *MockStore)
		wantDeleted []string
		wantApplied bool
		wantErr     error
	}{
		{
			name:       "keep first deletes second",
			resolution: model.ResolutionKeepFirst,
			setupMock: func(m *MockStore) {
				m.EXPECT().GetPendingDuplicate(gomock.Any(), group, "pending-1").Return(pendingPair(), nil)
				m.EXPECT().ClaimPendingDuplicate(gomock.Any(), group, "pending-1", model.ResolutionKeepFirst, gomock.Any()).Return(true, nil)
				m.EXPECT().DeleteTransaction(gomock.Any(), group, "txn-card").Return(nil)
			},
			wantDeleted: []string{"txn-card"},
			wantApplied: true,
		},
		{
			name:       "delete both",
			resolution: model.ResolutionDeleteBoth,
			setupMock: func(m *MockStore) {
				m.EXPECT().GetPendingDuplicate(gomock.Any(), group, "pending-1").Return(pendingPair(), nil)
				m.EXPECT().ClaimPendingDuplicate(gomock.Any(), group, "pending-1", model.ResolutionDeleteBoth, gomock.Any()).Return(true, nil)
				gomock.InOrder(
					m.EXPECT().DeleteTransaction(gomock.Any(), group, "txn-bank").Return(nil),
					m.EXPECT().DeleteTransaction(gomock.Any(), group, "txn-card").Return(common.ErrNotFound),
				)
			},
			wantDeleted: []string{"txn-bank"},
			wantApplied: true,
		},
		{
			name:       "keep both deletes nothing",
			resolution: model.ResolutionKeepBoth,
			setupMock: func(m *MockStore) {
				m.EXPECT().GetPendingDuplicate(gomock.Any(), group, "pending-1").Return(pendingPair(), nil)
				m.EXPECT().ClaimPendingDuplicate(gomock.Any(), group, "pending-1", model.ResolutionKeepBoth, gomock.Any()).Return(true, nil)
			},
			wantDeleted: []string{},
			wantApplied: true,
		},
		{
			name:       "already resolved replays the stored resolution",
			resolution: model.ResolutionKeepSecond,
			setupMock: func(m *MockStore) {
				p := pendingPair()
				p.IsResolved = true
				p.Resolution = model.ResolutionKeepFirst
				m.EXPECT().GetPendingDuplicate(gomock.Any(), group, "pending-1").Return(p, nil)
				m.EXPECT().DeleteTransaction(gomock.Any(), group, "txn-card").Return(common.ErrNotFound)
			},
			wantDeleted: []string{},
		},
		{
			name:       "losing the claim follows the winner",
			resolution: model.ResolutionKeepSecond,
			setupMock: func(m *MockStore) {
				won := pendingPair()
				won.IsResolved = true
				won.Resolution = model.ResolutionKeepFirst
				gomock.InOrder(
					m.EXPECT().GetPendingDuplicate(gomock.Any(), group, "pending-1").Return(pendingPair(), nil),
					m.EXPECT().ClaimPendingDuplicate(gomock.Any(), group, "pending-1", model.ResolutionKeepSecond, gomock.Any()).Return(false, nil),
					m.EXPECT().GetPendingDuplicate(gomock.Any(), group, "pending-1").Return(won, nil),
					m.EXPECT().DeleteTransaction(gomock.Any(), group, "txn-card").Return(common.ErrNotFound),
				)
			},
			wantDeleted: []string{},
		},
		{
			name:       "keep both replay deletes nothing",
			resolution: model.ResolutionDeleteBoth,
			setupMock: func(m *MockStore) {
				p := pendingPair()
				p.IsResolved = true
				p.Resolution = model.ResolutionKeepBoth
				m.EXPECT().GetPendingDuplicate(gomock.Any(), group, "pending-1").Return(p, nil)
			},
			wantDeleted: []string{},
		},
		{
			name:       "pending resolution rejected",
			resolution: model.ResolutionPending,
			setupMock:  func(*MockStore) {},
			wantErr:    common.ErrInvalidResolution,
		},
		{
			name:       "missing record",
			resolution: model.ResolutionKeepBoth,
			setupMock: func(m *MockStore) {
				m.EXPECT().GetPendingDuplicate(gomock.Any(), group, "pending-1").Return(nil, common.ErrNotFound)
			},
			wantErr: common.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := NewMockStore(ctrl)
			tt.setupMock(store)

			r := NewResolver(store)
			r.now = func() time.Time { return testutil.BaseTime }

			res, err := r.Resolve(ctx, group, "pending-1", tt.resolution)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantApplied, res.Applied)
			assert.Equal(t, tt.wantDeleted, res.Deleted)
			if tt.wantApplied {
				assert.True(t, res.Pending.IsResolved)
				assert.Equal(t, tt.resolution, res.Pending.Resolution)
				require.NotNil(t, res.Pending.ResolvedAt)
				assert.Equal(t, testutil.BaseTime, *res.Pending.ResolvedAt)
			}
		})
	}
}

func TestResolver_DeleteFailureSurfaces(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	boom := errors.New("disk full")
	group := testutil.DefaultGroupID

	resolved := pendingPair()
	resolved.IsResolved = true
	resolved.Resolution = model.ResolutionKeepSecond

	gomock.InOrder(
		store.EXPECT().GetPendingDuplicate(gomock.Any(), group, "pending-1").Return(pendingPair(), nil),
		store.EXPECT().ClaimPendingDuplicate(gomock.Any(), group, "pending-1", model.ResolutionKeepSecond, gomock.Any()).Return(true, nil),
		store.EXPECT().DeleteTransaction(gomock.Any(), group, "txn-bank").Return(boom),
		// The retry sees the claimed record and finishes the delete.
		store.EXPECT().GetPendingDuplicate(gomock.Any(), group, "pending-1").Return(resolved, nil),
		store.EXPECT().DeleteTransaction(gomock.Any(), group, "txn-bank").Return(nil),
	)

	r := NewResolver(store)
	res, err := r.Resolve(context.Background(), group, "pending-1", model.ResolutionKeepSecond)
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, res)
	assert.True(t, res.Applied)
	assert.Empty(t, res.Deleted)

	res, err = r.Resolve(context.Background(), group, "pending-1", model.ResolutionKeepSecond)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, []string{"txn-bank"}, res.Deleted)
}

func TestResolver_RetryAfterDeleteFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	first := db.MustSaveTransaction(bankNotice(testutil.BaseTime))
	second := db.MustSaveTransaction(cardNotice(testutil.BaseTime.Add(20 * time.Second)))
	outcome := NewDetector(DefaultWindow).Detect(second, []*model.Transaction{first}, nil)
	require.Equal(t, PendingReview, outcome.Kind)
	stored, _, err := db.Storage.CreatePendingDuplicate(ctx, outcome.Pair)
	require.NoError(t, err)

	store := &failingDeletes{Store: db.Storage, failures: 1}
	r := NewResolver(store)

	_, err = r.Resolve(ctx, testutil.DefaultGroupID, stored.ID, model.ResolutionKeepFirst)
	require.Error(t, err)
	_, err = db.Storage.GetTransaction(ctx, testutil.DefaultGroupID, second.ID)
	require.NoError(t, err, "delete failed, transaction still present")

	res, err := r.Resolve(ctx, testutil.DefaultGroupID, stored.ID, model.ResolutionKeepFirst)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, []string{second.ID}, res.Deleted)

	_, err = db.Storage.GetTransaction(ctx, testutil.DefaultGroupID, second.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = db.Storage.GetTransaction(ctx, testutil.DefaultGroupID, first.ID)
	assert.NoError(t, err)
}

// failingDeletes fails the first few deletes before passing through.
type failingDeletes struct {
	Store
	failures int
}

func (f *failingDeletes) DeleteTransaction(ctx context.Context, groupID, id string) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("database is locked")
	}
	return f.Store.DeleteTransaction(ctx, groupID, id)
}

func TestResolver_ApplyRule(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	r := NewResolver(store)
	ctx := context.Background()

	outcome := Outcome{Kind: AutoResolved, Pair: pendingPair(), Resolution: model.ResolutionKeepFirst}

	// Incoming is the second side and gets dropped without touching storage.
	keep, deleted, err := r.ApplyRule(ctx, outcome, "txn-card")
	require.NoError(t, err)
	assert.False(t, keep)
	assert.Empty(t, deleted)

	// Incoming is the first side; the stored second side is removed.
	outcome.Resolution = model.ResolutionKeepSecond
	store.EXPECT().DeleteTransaction(gomock.Any(), testutil.DefaultGroupID, "txn-bank").Return(nil)
	keep, deleted, err = r.ApplyRule(ctx, outcome, "txn-card")
	require.NoError(t, err)
	assert.True(t, keep)
	assert.Equal(t, []string{"txn-bank"}, deleted)

	keep, _, err = r.ApplyRule(ctx, Outcome{Kind: PendingReview}, "txn-card")
	require.NoError(t, err)
	assert.True(t, keep)
}

func TestResolver_KeepFirstTwiceDeletesOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	first := db.MustSaveTransaction(bankNotice(testutil.BaseTime))
	second := db.MustSaveTransaction(cardNotice(testutil.BaseTime.Add(20 * time.Second)))

	outcome := NewDetector(DefaultWindow).Detect(second, []*model.Transaction{first}, nil)
	require.Equal(t, PendingReview, outcome.Kind)
	stored, created, err := db.Storage.CreatePendingDuplicate(ctx, outcome.Pair)
	require.NoError(t, err)
	require.True(t, created)

	r := NewResolver(db.Storage)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		deleted []string
		applied int
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Resolve(ctx, testutil.DefaultGroupID, stored.ID, model.ResolutionKeepFirst)
			assert.NoError(t, err)
			if res == nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			deleted = append(deleted, res.Deleted...)
			if res.Applied {
				applied++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, []string{second.ID}, deleted)

	_, err = db.Storage.GetTransaction(ctx, testutil.DefaultGroupID, first.ID)
	assert.NoError(t, err)
	_, err = db.Storage.GetTransaction(ctx, testutil.DefaultGroupID, second.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	got, err := db.Storage.GetPendingDuplicate(ctx, testutil.DefaultGroupID, stored.ID)
	require.NoError(t, err)
	assert.True(t, got.IsResolved)
	assert.Equal(t, model.ResolutionKeepFirst, got.Resolution)
	assert.NotNil(t, got.ResolvedAt)

	// A later call with a different resolution changes nothing.
	res, err := r.Resolve(ctx, testutil.DefaultGroupID, stored.ID, model.ResolutionDeleteBoth)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	_, err = db.Storage.GetTransaction(ctx, testutil.DefaultGroupID, first.ID)
	assert.NoError(t, err)
}
