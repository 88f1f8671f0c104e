package main

import (
	"bufio"
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/notiledger/internal/catalog"
	"github.com/Veraticus/notiledger/internal/config"
	"github.com/Veraticus/notiledger/internal/engine"
	"github.com/Veraticus/notiledger/internal/metrics"
	"github.com/Veraticus/notiledger/internal/model"
	"github.com/Veraticus/notiledger/internal/service"
	tu "github.com/Veraticus/notiledger/internal/testutil"
)

const (
	kbBankPkg = "com.kbstar.kbbank"
	kbCardPkg = "com.kbcard.cxh.appcard"
)

func testConfig() *config.PipelineConfig {
	cfg := config.DefaultPipelineConfig()
	cfg.GroupID = tu.DefaultGroupID
	cfg.UserID = "user-1"
	cfg.DuplicateLookback = cfg.DuplicateWindow
	return &cfg
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	db := tu.SetupTestDB(t)
	provider := catalog.NewStaticProvider(catalog.Default())
	ec := engine.DefaultConfig()
	ec.Metrics = metrics.New()
	return &app{
		cfg:      testConfig(),
		store:    db.Storage,
		provider: provider,
		metrics:  ec.Metrics,
		engine:   engine.NewWithConfig(db.Storage, provider, ec),
	}
}

func TestReadNotifications(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantTexts []string
		wantErr   bool
	}{
		{
			name:      "json array",
			input:     `[{"text":"a","sourcePackage":"p"},{"text":"b","groupId":"other"}]`,
			wantTexts: []string{"a", "b"},
		},
		{
			name:      "json lines",
			input:     "{\"text\":\"a\"}\n\n{\"text\":\"b\"}\n",
			wantTexts: []string{"a", "b"},
		},
		{
			name:      "byte order mark",
			input:     "\xef\xbb\xbf[{\"text\":\"a\"}]",
			wantTexts: []string{"a"},
		},
		{name: "empty", input: "  \n"},
		{name: "malformed", input: "{\"text\":", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readNotifications(strings.NewReader(tt.input), testConfig())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, len(tt.wantTexts))
			for i, n := range got {
				assert.Equal(t, tt.wantTexts[i], n.Text)
				assert.Equal(t, "user-1", n.UserID)
			}
		})
	}
}

func TestReadNotifications_KeepsExplicitGroup(t *testing.T) {
	got, err := readNotifications(strings.NewReader(`{"text":"a","groupId":"family","postedAt":"2024-03-15T12:30:00Z"}`), testConfig())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "family", got[0].GroupID)
	assert.True(t, tu.BaseTime.Equal(got[0].PostedAt))
}

func TestParseResolutionArg(t *testing.T) {
	tests := []struct {
		arg     string
		want    model.Resolution
		wantErr bool
	}{
		{arg: "keep-both", want: model.ResolutionKeepBoth},
		{arg: "KEEP_FIRST", want: model.ResolutionKeepFirst},
		{arg: "keep-second", want: model.ResolutionKeepSecond},
		{arg: "delete-both", want: model.ResolutionDeleteBoth},
		{arg: "pending", wantErr: true},
		{arg: "maybe", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := parseResolutionArg(tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatFileSize(t *testing.T) {
	assert.Equal(t, "512 B", formatFileSize(512))
	assert.Equal(t, "1.5 KB", formatFileSize(1536))
	assert.Equal(t, "2.0 MB", formatFileSize(2*1024*1024))
}

func TestIngestAll(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	notifications := []model.Notification{
		{Text: "[KB국민] 출금 12,345원 스타벅스", SourcePackage: kbBankPkg, PostedAt: tu.BaseTime},
		{Text: "KB국민카드 승인 12,345원 스타벅스", SourcePackage: kbCardPkg, PostedAt: tu.BaseTime.Add(30 * time.Second)},
		{Text: "오늘 날씨 맑음", SourcePackage: kbBankPkg, PostedAt: tu.BaseTime},
	}
	for i := range notifications {
		withDefaults(&notifications[i], a.cfg)
	}

	summary, err := ingestAll(ctx, a.engine, notifications, 3, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.counts[engine.StatusStored])
	assert.Equal(t, 1, summary.counts[engine.StatusUnparsed])
	assert.Equal(t, 1, summary.pending)
	assert.Zero(t, summary.failed)

	var out bytes.Buffer
	require.NoError(t, summary.print(&out))
	assert.Contains(t, out.String(), "notiledger duplicates review")

	// A second run of the same input stores nothing new.
	again, err := ingestAll(ctx, a.engine, notifications[:2], 2, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 2, again.counts[engine.StatusAlreadyIngested])
}

func TestListen(t *testing.T) {
	a := newTestApp(t)
	input := strings.Join([]string{
		`{"text":"[KB국민] 출금 4,500원 스타벅스","sourcePackage":"com.kbstar.kbbank","postedAt":"2024-03-15T12:30:00Z"}`,
		`not json`,
		``,
		`{"text":"KB국민카드 승인 8,000원 이디야","sourcePackage":"com.kbcard.cxh.appcard","postedAt":"2024-03-15T13:30:00Z"}`,
	}, "\n")

	err := listen(context.Background(), a, bufio.NewScanner(strings.NewReader(input)))
	require.NoError(t, err)

	txns, err := a.store.ListTransactions(context.Background(), tu.DefaultGroupID, service.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, txns, 2)
}

func TestListen_StopsOnCancel(t *testing.T) {
	a := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := listen(ctx, a, bufio.NewScanner(strings.NewReader("")))
	assert.NoError(t, err)
}

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()), out.String())
	return out.String()
}

func TestCLI_AddThenList(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("NOTILEDGER_DATABASE_PATH", filepath.Join(dir, "ledger.db"))
	t.Setenv("NOTILEDGER_GROUP_ID", "cli-test")

	out := runCLI(t, "add", "KB국민카드 승인 12,345원 스타벅스")
	assert.Contains(t, out, "Transaction Recorded")

	out = runCLI(t, "transactions", "list")
	assert.Contains(t, out, "12,345원")

	out = runCLI(t, "rules", "add", "kb_kookmin", "kb_card", "keep-second")
	assert.Contains(t, out, "Rule saved")

	out = runCLI(t, "rules", "list")
	assert.Contains(t, out, "KEEP_SECOND")

	out = runCLI(t, "version")
	assert.Contains(t, out, "notiledger dev")
}
