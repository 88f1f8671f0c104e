package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/notiledger/internal/model"
)

func TestDefaultSnapshotIsValid(t *testing.T) {
	snap := Default()

	banks := snap.Banks()
	require.NotEmpty(t, banks)

	seen := make(map[string]bool)
	for _, b := range banks {
		assert.False(t, seen[b.Config.BankID], "duplicate bank id %s", b.Config.BankID)
		seen[b.Config.BankID] = true
		assert.True(t, b.IsEnabled)
		assert.NotNil(t, b.AmountRe)
	}

	merchants := snap.Merchants()
	require.NotEmpty(t, merchants)
	last := merchants[len(merchants)-1]
	assert.Equal(t, model.MerchantOtherID, last.ID)
	assert.True(t, last.IsCatchAll())
}

func TestBanksForPackage(t *testing.T) {
	snap := Default()

	banks := snap.BanksForPackage("com.kbstar.kbbank")
	require.Len(t, banks, 1)
	assert.Equal(t, "kb_kookmin", banks[0].Config.BankID)

	assert.Empty(t, snap.BanksForPackage("com.example.unknown"))
}

func TestCustomPatternShadowsDefault(t *testing.T) {
	custom := model.CustomBankPattern{
		BankConfig: model.BankConfig{
			BankID:          "kb_kookmin",
			DisplayName:     "My KB",
			PackageNames:    []string{"com.kbstar.kbbank"},
			ExpenseKeywords: []string{"결제"},
			AmountRegex:     `([0-9,]+)원`,
		},
		IsEnabled: true,
		IsCustom:  true,
	}

	snap, err := Default().WithCustomBanks(custom)
	require.NoError(t, err)

	banks := snap.Banks()
	assert.Equal(t, "kb_kookmin", banks[0].Config.BankID)
	assert.True(t, banks[0].IsCustom)

	count := 0
	for _, b := range banks {
		if b.Config.BankID == "kb_kookmin" {
			count++
		}
	}
	assert.Equal(t, 1, count, "bank ids must stay unique")

	b, ok := snap.Bank("kb_kookmin")
	require.True(t, ok)
	assert.Equal(t, "My KB", b.Config.DisplayName)
}

func TestDisabledCustomPatternIsExcluded(t *testing.T) {
	custom := model.CustomBankPattern{
		BankConfig: model.BankConfig{
			BankID:          "kb_kookmin",
			PackageNames:    []string{"com.kbstar.kbbank"},
			ExpenseKeywords: []string{"승인"},
			AmountRegex:     `([0-9,]+)원`,
		},
		IsEnabled: false,
		IsCustom:  true,
	}

	snap, err := Default().WithCustomBanks(custom)
	require.NoError(t, err)

	assert.Empty(t, snap.BanksForPackage("com.kbstar.kbbank"))
	for _, b := range snap.EnabledBanks() {
		assert.NotEqual(t, "kb_kookmin", b.Config.BankID)
	}
}

func TestInvalidCustomPatternIsSkipped(t *testing.T) {
	custom := model.CustomBankPattern{
		BankConfig: model.BankConfig{
			BankID:          "broken",
			PackageNames:    []string{"com.example.bank"},
			ExpenseKeywords: []string{"출금"},
			AmountRegex:     `([0-9`,
		},
		IsEnabled: true,
	}

	snap, err := Default().WithCustomBanks(custom)
	require.NoError(t, err)

	_, ok := snap.Bank("broken")
	assert.False(t, ok)
}

func TestInvalidDefaultIsError(t *testing.T) {
	_, err := Build(Source{
		DefaultBanks: []model.BankConfig{{BankID: "x", AmountRegex: "[0-9]+", ExpenseKeywords: []string{"a"}}},
	})
	assert.Error(t, err)
}

func TestMatchMerchant(t *testing.T) {
	snap := Default()

	tests := []struct {
		name string
		text string
		want string
	}{
		{"korean keyword", "승인 4,500원 스타벅스 강남점", "starbucks"},
		{"case insensitive", "STARBUCKS COFFEE 4,500", "starbucks"},
		{"specific before broad", "쿠팡이츠 18,000원 결제", "coupang_eats"},
		{"broad", "쿠팡 32,000원 결제", "coupang"},
		{"convenience store chain", "이마트24 3,200원", "emart24"},
		{"no keyword", "승인 1,000원 동네가게", model.MerchantOtherID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := snap.MatchMerchant(tt.text)
			assert.Equal(t, tt.want, m.ID)
		})
	}
}

func TestCustomMerchantsComeFirst(t *testing.T) {
	src := DefaultSource()
	src.CustomMerchants = []model.Merchant{
		{ID: "office_cafe", DisplayName: "Office Cafe", DefaultCategory: model.CategoryCafe, Keywords: []string{"스타벅스 본사"}},
	}
	snap, err := Build(src)
	require.NoError(t, err)

	m, ok := snap.MatchMerchant("스타벅스 본사 3,000원")
	assert.True(t, ok)
	assert.Equal(t, "office_cafe", m.ID)
}

func TestDecodeOverrides(t *testing.T) {
	doc := `
banks:
  - bank_id: local_credit_union
    display_name: Local CU
    package_names: [com.example.cu]
    income_keywords: [입금]
    expense_keywords: [출금]
    amount_regex: '([0-9,]+)원'
    merchant_regex_list: ['출금 [0-9,]+원 (\S+)']
  - bank_id: kb_kookmin
    package_names: [com.kbstar.kbbank]
    expense_keywords: [승인]
    amount_regex: '([0-9,]+)원'
    is_enabled: false
merchants:
  - id: corner_store
    display_name: Corner Store
    default_category: grocery
    keywords: [코너마트]
`
	o, err := DecodeOverrides(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, o.Banks, 2)

	assert.True(t, o.Banks[0].IsEnabled)
	assert.True(t, o.Banks[0].IsCustom)
	assert.Equal(t, []string{`출금 [0-9,]+원 (\S+)`}, o.Banks[0].MerchantRegexList)
	assert.False(t, o.Banks[1].IsEnabled)

	require.Len(t, o.Merchants, 1)
	assert.Equal(t, model.CategoryGrocery, o.Merchants[0].DefaultCategory)

	snap, err := Build(o.Source())
	require.NoError(t, err)
	assert.Len(t, snap.BanksForPackage("com.example.cu"), 1)
	assert.Empty(t, snap.BanksForPackage("com.kbstar.kbbank"))
}

func TestLoadOverridesMissingFile(t *testing.T) {
	o, err := LoadOverrides(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Empty(t, o.Banks)
}

func TestProviderReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("merchants: []\n"), 0o600))

	p, err := NewProvider(path)
	require.NoError(t, err)
	before := p.Current()

	require.NoError(t, os.WriteFile(path, []byte("banks: [\n"), 0o600))
	assert.Error(t, p.Reload())
	assert.Same(t, before, p.Current())
}

func TestProviderWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("merchants: []\n"), 0o600))

	p, err := NewProvider(path)
	require.NoError(t, err)

	reloaded := make(chan *Snapshot, 4)
	p.OnReload(func(s *Snapshot, err error) {
		if err == nil {
			reloaded <- s
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx) }()

	// Give the watcher time to register.
	time.Sleep(50 * time.Millisecond)
	doc := "banks:\n  - bank_id: extra\n    package_names: [com.example.extra]\n    expense_keywords: [출금]\n    amount_regex: '([0-9,]+)원'\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	select {
	case snap := <-reloaded:
		_, ok := snap.Bank("extra")
		assert.True(t, ok)
		assert.Same(t, snap, p.Current())
	case <-time.After(5 * time.Second):
		t.Fatal("catalog was not reloaded")
	}

	cancel()
	assert.NoError(t, <-done)
}
