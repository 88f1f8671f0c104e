package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/notiledger/internal/common"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("NOTILEDGER_TEST_DIR", "/srv/data")

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "~", want: home},
		{in: "~/ledger.db", want: filepath.Join(home, "ledger.db")},
		{in: "$NOTILEDGER_TEST_DIR/ledger.db", want: "/srv/data/ledger.db"},
		{in: "/abs/path", want: "/abs/path"},
		{in: "~user/x", want: "~user/x"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}

func TestDir_HonorsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, "/tmp/xdg/notiledger", Dir())
	assert.Equal(t, "/tmp/xdg/notiledger/notiledger.db", DefaultDatabasePath())
}

func TestLoadPipelineConfig_Defaults(t *testing.T) {
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	cfg, err := LoadPipelineConfigFrom(viper.New())
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, 3*time.Minute, cfg.DuplicateWindow)
	assert.Equal(t, cfg.DuplicateWindow, cfg.DuplicateLookback)
	assert.Equal(t, 5, cfg.DepositMinSamples)
	assert.Equal(t, 2, cfg.AutoApplyMinUses)
	assert.Equal(t, 4, cfg.IngestWorkers)
	assert.Equal(t, "personal", cfg.GroupID)
}

func TestLoadPipelineConfig_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("database.backend", "firestore")
	v.Set("firestore.project_id", "family-ledger")
	v.Set("duplicate.window", "90s")
	v.Set("duplicate.lookback", "10m")
	v.Set("deposit.min_samples", 8)
	v.Set("mapping.auto_apply_min_uses", 3)
	v.Set("group.id", "family")
	v.Set("user.id", "dad")

	cfg, err := LoadPipelineConfigFrom(v)
	require.NoError(t, err)
	assert.Equal(t, BackendFirestore, cfg.Backend)
	assert.Equal(t, "family-ledger", cfg.FirestoreProject)
	assert.Equal(t, 90*time.Second, cfg.DuplicateWindow)
	assert.Equal(t, 10*time.Minute, cfg.DuplicateLookback)
	assert.Equal(t, 8, cfg.DepositMinSamples)
	assert.Equal(t, 3, cfg.AutoApplyMinUses)
	assert.Equal(t, "family", cfg.GroupID)
	assert.Equal(t, "dad", cfg.UserID)
}

func TestLoadPipelineConfig_FirestoreProjectFromEnv(t *testing.T) {
	t.Setenv("GOOGLE_CLOUD_PROJECT", "env-project")
	v := viper.New()
	v.Set("database.backend", "firestore")

	cfg, err := LoadPipelineConfigFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "env-project", cfg.FirestoreProject)
}

func TestPipelineConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *PipelineConfig)
		wantErr error
	}{
		{name: "unknown backend", mutate: func(c *PipelineConfig) { c.Backend = "mongo" }, wantErr: common.ErrInvalidConfig},
		{name: "firestore without project", mutate: func(c *PipelineConfig) { c.Backend = BackendFirestore }, wantErr: common.ErrMissingConfig},
		{name: "partial firestore oauth", mutate: func(c *PipelineConfig) {
			c.Backend = BackendFirestore
			c.FirestoreProject = "p"
			c.FirestoreClientID = "id"
		}, wantErr: common.ErrMissingConfig},
		{name: "sqlite without path", mutate: func(c *PipelineConfig) { c.DatabasePath = "" }, wantErr: common.ErrMissingConfig},
		{name: "zero window", mutate: func(c *PipelineConfig) { c.DuplicateWindow = 0 }, wantErr: common.ErrInvalidConfig},
		{name: "lookback shorter than window", mutate: func(c *PipelineConfig) { c.DuplicateLookback = time.Minute }, wantErr: common.ErrInvalidConfig},
		{name: "zero samples", mutate: func(c *PipelineConfig) { c.DepositMinSamples = 0 }, wantErr: common.ErrInvalidConfig},
		{name: "zero auto apply", mutate: func(c *PipelineConfig) { c.AutoApplyMinUses = 0 }, wantErr: common.ErrInvalidConfig},
		{name: "zero workers", mutate: func(c *PipelineConfig) { c.IngestWorkers = 0 }, wantErr: common.ErrInvalidConfig},
		{name: "missing group", mutate: func(c *PipelineConfig) { c.GroupID = "" }, wantErr: common.ErrMissingConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPipelineConfig()
			cfg.DuplicateLookback = cfg.DuplicateWindow
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}

	ok := DefaultPipelineConfig()
	ok.DuplicateLookback = ok.DuplicateWindow
	assert.NoError(t, ok.Validate())
}
