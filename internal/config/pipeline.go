package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/notiledger/internal/common"
)

// Storage backends.
const (
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

// PipelineConfig holds the policy parameters and collaborators' locations
// used by the notification pipeline. It is not modified after loading.
type PipelineConfig struct {
	Backend              string
	DatabasePath         string
	FirestoreProject     string
	FirestoreCredentials string
	FirestoreClientID    string
	FirestoreSecret      string
	FirestoreToken       string
	CatalogOverridesFile string
	GroupID              string
	UserID               string
	MetricsAddr          string
	DuplicateWindow      time.Duration
	DuplicateLookback    time.Duration
	DepositMinSamples    int
	AutoApplyMinUses     int
	IngestWorkers        int
}

// DefaultPipelineConfig returns the configuration used when nothing is set.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Backend:           BackendSQLite,
		DatabasePath:      DefaultDatabasePath(),
		GroupID:           "personal",
		DuplicateWindow:   3 * time.Minute,
		DepositMinSamples: 5,
		AutoApplyMinUses:  2,
		IngestWorkers:     4,
		MetricsAddr:       ":9464",
	}
}

// SetDefaults registers the defaults with v so they show up in config dumps
// and env lookups.
func SetDefaults(v *viper.Viper) {
	d := DefaultPipelineConfig()
	v.SetDefault("database.backend", d.Backend)
	v.SetDefault("database.path", d.DatabasePath)
	v.SetDefault("group.id", d.GroupID)
	v.SetDefault("duplicate.window", d.DuplicateWindow)
	v.SetDefault("deposit.min_samples", d.DepositMinSamples)
	v.SetDefault("mapping.auto_apply_min_uses", d.AutoApplyMinUses)
	v.SetDefault("ingest.workers", d.IngestWorkers)
	v.SetDefault("metrics.addr", d.MetricsAddr)
}

// LoadPipelineConfig reads the pipeline configuration from the global viper
// instance.
func LoadPipelineConfig() (*PipelineConfig, error) {
	return LoadPipelineConfigFrom(viper.GetViper())
}

// LoadPipelineConfigFrom reads the pipeline configuration with this precedence:
//  1. viper (config file or NOTILEDGER_ env vars)
//  2. Google Cloud environment variables for the Firestore settings
//  3. defaults
func LoadPipelineConfigFrom(v *viper.Viper) (*PipelineConfig, error) {
	cfg := DefaultPipelineConfig()

	if s := v.GetString("database.backend"); s != "" {
		cfg.Backend = s
	}
	if s := v.GetString("database.path"); s != "" {
		cfg.DatabasePath = ExpandPath(s)
	}
	cfg.FirestoreProject = v.GetString("firestore.project_id")
	if s := v.GetString("firestore.credentials_file"); s != "" {
		cfg.FirestoreCredentials = ExpandPath(s)
	}
	cfg.FirestoreClientID = v.GetString("firestore.client_id")
	cfg.FirestoreSecret = v.GetString("firestore.client_secret")
	cfg.FirestoreToken = v.GetString("firestore.refresh_token")
	if s := v.GetString("catalog.overrides_file"); s != "" {
		cfg.CatalogOverridesFile = ExpandPath(s)
	}
	if s := v.GetString("group.id"); s != "" {
		cfg.GroupID = s
	}
	cfg.UserID = v.GetString("user.id")
	if s := v.GetString("metrics.addr"); s != "" {
		cfg.MetricsAddr = s
	}
	if v.IsSet("duplicate.window") {
		cfg.DuplicateWindow = v.GetDuration("duplicate.window")
	}
	if v.IsSet("duplicate.lookback") {
		cfg.DuplicateLookback = v.GetDuration("duplicate.lookback")
	}
	if v.IsSet("deposit.min_samples") {
		cfg.DepositMinSamples = v.GetInt("deposit.min_samples")
	}
	if v.IsSet("mapping.auto_apply_min_uses") {
		cfg.AutoApplyMinUses = v.GetInt("mapping.auto_apply_min_uses")
	}
	if v.IsSet("ingest.workers") {
		cfg.IngestWorkers = v.GetInt("ingest.workers")
	}

	if cfg.FirestoreProject == "" {
		cfg.FirestoreProject = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if cfg.FirestoreCredentials == "" {
		cfg.FirestoreCredentials = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if cfg.DuplicateLookback == 0 {
		cfg.DuplicateLookback = cfg.DuplicateWindow
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every setting is usable.
func (c *PipelineConfig) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("%w: database.path is required for the sqlite backend", common.ErrMissingConfig)
		}
	case BackendFirestore:
		if c.FirestoreProject == "" {
			return fmt.Errorf("%w: firestore.project_id is required for the firestore backend", common.ErrMissingConfig)
		}
		set := 0
		for _, s := range []string{c.FirestoreClientID, c.FirestoreSecret, c.FirestoreToken} {
			if s != "" {
				set++
			}
		}
		if set != 0 && set != 3 {
			return fmt.Errorf("%w: firestore.client_id, client_secret and refresh_token must be set together", common.ErrMissingConfig)
		}
	default:
		return fmt.Errorf("%w: unknown database.backend %q", common.ErrInvalidConfig, c.Backend)
	}

	if c.GroupID == "" {
		return fmt.Errorf("%w: group.id is required", common.ErrMissingConfig)
	}
	if c.DuplicateWindow <= 0 {
		return fmt.Errorf("%w: duplicate.window must be positive, got %s", common.ErrInvalidConfig, c.DuplicateWindow)
	}
	if c.DuplicateLookback < c.DuplicateWindow {
		return fmt.Errorf("%w: duplicate.lookback (%s) must cover duplicate.window (%s)",
			common.ErrInvalidConfig, c.DuplicateLookback, c.DuplicateWindow)
	}
	if c.DepositMinSamples < 1 {
		return fmt.Errorf("%w: deposit.min_samples must be at least 1", common.ErrInvalidConfig)
	}
	if c.AutoApplyMinUses < 1 {
		return fmt.Errorf("%w: mapping.auto_apply_min_uses must be at least 1", common.ErrInvalidConfig)
	}
	if c.IngestWorkers < 1 {
		return fmt.Errorf("%w: ingest.workers must be at least 1", common.ErrInvalidConfig)
	}
	return nil
}
