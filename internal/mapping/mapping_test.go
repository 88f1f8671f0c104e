package mapping_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/notiledger/internal/mapping"
	"github.com/Veraticus/notiledger/internal/model"
	"github.com/Veraticus/notiledger/internal/testutil"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "스타벅스 강남점", want: "스타벅스강남점"},
		{in: "  STARBUCKS Coffee  ", want: "starbuckscoffee"},
		{in: "ＧＳ２５", want: "gs25"},
		{in: "(주)배달의민족", want: "주배달의민족"},
		{in: "!!!", want: ""},
		{in: "", want: ""},
		{in: "가나다라마바사아자차카타파하가나다라마바사아자차카타파하가나다라", want: "가나다라마바사아자차카타파하가나다라마바사아자차카타파하가나"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := mapping.Normalize(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mapping.Normalize(got), "normalize is idempotent")
			assert.LessOrEqual(t, len([]rune(got)), mapping.MaxNameRunes)
		})
	}
}

func FuzzNormalizeIdempotent(f *testing.F) {
	for _, seed := range []string{"스타벅스 강남점", "ＧＳ２５", "Coupang Eats", "가", "ｶﾀｶﾅ"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, s string) {
		once := mapping.Normalize(s)
		if twice := mapping.Normalize(once); twice != once {
			t.Fatalf("Normalize(%q) = %q, then %q", s, once, twice)
		}
	})
}

func TestStore_RecordThenSuggest(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	store := mapping.NewStore(db.Storage, 2)

	_, ok, err := store.SuggestCategory(ctx, testutil.DefaultGroupID, "스타벅스 강남점", model.TypeExpense)
	require.NoError(t, err)
	assert.False(t, ok)

	m, err := store.RecordCorrection(ctx, testutil.DefaultGroupID, "스타벅스 강남점", model.TypeExpense, model.CategoryCafe)
	require.NoError(t, err)
	assert.Equal(t, "스타벅스강남점", m.MerchantName)
	assert.Equal(t, "스타벅스 강남점", m.OriginalMerchantName)
	assert.Equal(t, 1, m.UseCount)

	// Spacing and case differences hit the same mapping.
	sug, ok, err := store.SuggestCategory(ctx, testutil.DefaultGroupID, "스타벅스강남점", model.TypeExpense)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.CategoryCafe, sug.Category)
	assert.False(t, sug.AutoApply)

	// Type is part of the key.
	_, ok, err = store.SuggestCategory(ctx, testutil.DefaultGroupID, "스타벅스 강남점", model.TypeIncome)
	require.NoError(t, err)
	assert.False(t, ok)

	m, err = store.RecordCorrection(ctx, testutil.DefaultGroupID, "스타벅스 강남점", model.TypeExpense, model.CategoryFood)
	require.NoError(t, err)
	assert.Equal(t, 2, m.UseCount)

	sug, ok, err = store.SuggestCategory(ctx, testutil.DefaultGroupID, "스타벅스 강남점", model.TypeExpense)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.CategoryFood, sug.Category, "newest correction wins")
	assert.True(t, sug.AutoApply)
}

func TestStore_RecordCorrectionRejectsBadInput(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := mapping.NewStore(db.Storage, 0)
	ctx := context.Background()

	_, err := store.RecordCorrection(ctx, testutil.DefaultGroupID, "***", model.TypeExpense, model.CategoryFood)
	assert.Error(t, err)

	_, err = store.RecordCorrection(ctx, testutil.DefaultGroupID, "이마트", model.TypeExpense, model.Category("NOPE"))
	assert.Error(t, err)
}

func TestStore_ApplyGate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	store := mapping.NewStore(db.Storage, 2)

	txn := testutil.NewTransaction().WithMerchant("other", "동네빵집").WithCategory(model.CategoryOther).Build()
	applied, err := store.Apply(ctx, txn)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, model.CategoryOther, txn.Category)

	_, err = store.RecordCorrection(ctx, txn.GroupID, "동네빵집", model.TypeExpense, model.CategoryFood)
	require.NoError(t, err)

	applied, err = store.Apply(ctx, txn)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, model.CategoryFood, txn.Category)
	assert.False(t, txn.IsConfirmed, "one use is suggest-only")

	// The gate decides the flag even for a transaction that arrived confirmed.
	confirmed := testutil.NewTransaction().WithMerchant("other", "동네빵집").Build()
	confirmed.IsConfirmed = true
	applied, err = store.Apply(ctx, confirmed)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.False(t, confirmed.IsConfirmed)

	_, err = store.RecordCorrection(ctx, txn.GroupID, "동네 빵집", model.TypeExpense, model.CategoryFood)
	require.NoError(t, err)

	applied, err = store.Apply(ctx, txn)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.True(t, txn.IsConfirmed)

	empty := testutil.NewTransaction().WithMerchant("", "").Build()
	applied, err = store.Apply(ctx, empty)
	require.NoError(t, err)
	assert.False(t, applied)
}
