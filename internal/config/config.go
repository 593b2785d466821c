// Package config loads ledger settings from a YAML file, a .env file and
// LEDGER_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dvloznov/expense-ledger/internal/domain"
	"github.com/dvloznov/expense-ledger/internal/reconcile"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. LEDGER_LOCAL_PATH.
const EnvPrefix = "LEDGER"

// Remote backends.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendBigQuery = "bigquery"
	BackendNotion   = "notion"
)

// Blob backends.
const (
	BlobLocal = "local"
	BlobGCS   = "gcs"
)

type Config struct {
	Log        LogConfig      `mapstructure:"log"`
	Local      LocalConfig    `mapstructure:"local"`
	State      StateConfig    `mapstructure:"state"`
	Remote     RemoteConfig   `mapstructure:"remote"`
	Mirror     MirrorConfig   `mapstructure:"mirror"`
	Blob       BlobConfig     `mapstructure:"blob"`
	Sync       SyncConfig     `mapstructure:"sync"`
	Receipts   ReceiptsConfig `mapstructure:"receipts"`
	API        APIConfig      `mapstructure:"api"`
	Categories []string       `mapstructure:"categories"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LocalConfig struct {
	// Path is the ledger file; .csv or .xlsx.
	Path  string `mapstructure:"path"`
	Sheet string `mapstructure:"sheet"`
}

type StateConfig struct {
	// Path defaults to <local.path>.sync.json.
	Path string `mapstructure:"path"`
}

type RemoteConfig struct {
	Backend  string         `mapstructure:"backend"`
	BigQuery BigQueryConfig `mapstructure:"bigquery"`
	Notion   NotionConfig   `mapstructure:"notion"`
}

type BigQueryConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Dataset   string `mapstructure:"dataset"`
	Table     string `mapstructure:"table"`
}

type NotionConfig struct {
	Token      string `mapstructure:"token"`
	DatabaseID string `mapstructure:"database_id"`
}

// MirrorConfig names an optional Notion database that receives a copy of
// the merged view after every cycle.
type MirrorConfig struct {
	Notion NotionConfig `mapstructure:"notion"`
}

// Enabled reports whether a mirror is configured.
func (m MirrorConfig) Enabled() bool {
	return m.Notion.DatabaseID != ""
}

type BlobConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
}

type SyncConfig struct {
	ConflictPolicy string        `mapstructure:"conflict_policy"`
	DeletePolicy   string        `mapstructure:"delete_policy"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	Debounce       time.Duration `mapstructure:"debounce"`
	Retry          RetryConfig   `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxRetries  uint64        `mapstructure:"max_retries"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

type ReceiptsConfig struct {
	// Autofill enables the Gemini receipt scanner.
	Autofill bool   `mapstructure:"autofill"`
	Model    string `mapstructure:"model"`
}

type APIConfig struct {
	Port        string `mapstructure:"port"`
	AuthToken   string `mapstructure:"auth_token"`
	CORSOrigins string `mapstructure:"cors_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("local.path", "expenses.xlsx")
	v.SetDefault("local.sheet", "Expenses")
	v.SetDefault("state.path", "")
	v.SetDefault("remote.backend", BackendNone)
	v.SetDefault("remote.bigquery.project_id", "")
	v.SetDefault("remote.bigquery.dataset", "expenses")
	v.SetDefault("remote.bigquery.table", "expense_records")
	v.SetDefault("remote.notion.token", "")
	v.SetDefault("remote.notion.database_id", "")
	v.SetDefault("mirror.notion.token", "")
	v.SetDefault("mirror.notion.database_id", "")
	v.SetDefault("blob.backend", BlobLocal)
	v.SetDefault("blob.dir", "")
	v.SetDefault("blob.bucket", "")
	v.SetDefault("sync.conflict_policy", string(reconcile.PolicyMutator))
	v.SetDefault("sync.delete_policy", string(reconcile.DeletePropagate))
	v.SetDefault("sync.poll_interval", 5*time.Minute)
	v.SetDefault("sync.debounce", 2*time.Second)
	v.SetDefault("sync.retry.max_retries", 4)
	v.SetDefault("sync.retry.base_delay", 200*time.Millisecond)
	v.SetDefault("sync.retry.max_delay", 5*time.Second)
	v.SetDefault("sync.retry.call_timeout", 30*time.Second)
	v.SetDefault("receipts.autofill", false)
	v.SetDefault("receipts.model", "gemini-2.5-flash")
	v.SetDefault("api.port", "8080")
	v.SetDefault("api.auth_token", "")
	v.SetDefault("api.cors_origins", "*")
	v.SetDefault("categories", domain.DefaultCategories)
}

// Load reads configuration. path may be empty, in which case ledger.yaml
// is looked up in the working directory and its absence is not an error.
func Load(path string) (*Config, error) {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config.Load: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("ledger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config.Load: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: decode: %w", err)
	}
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDerived() {
	if c.State.Path == "" && c.Local.Path != "" {
		c.State.Path = c.Local.Path + ".sync.json"
	}
	if c.Blob.Dir == "" && c.Local.Path != "" {
		c.Blob.Dir = filepath.Dir(c.Local.Path)
	}
	if c.Mirror.Notion.Token == "" {
		c.Mirror.Notion.Token = c.Remote.Notion.Token
	}
}

// Validate checks values that would otherwise fail deep inside a cycle.
func (c *Config) Validate() error {
	if c.Local.Path == "" {
		return fmt.Errorf("local.path is required")
	}
	switch ext := strings.ToLower(filepath.Ext(c.Local.Path)); ext {
	case ".csv", ".xlsx":
	default:
		return fmt.Errorf("local.path must end in .csv or .xlsx, got %q", ext)
	}

	if _, ok := reconcile.ParsePolicy(c.Sync.ConflictPolicy); !ok {
		return fmt.Errorf("sync.conflict_policy must be mutator, local or remote, got %q", c.Sync.ConflictPolicy)
	}
	if _, ok := reconcile.ParseDeletePolicy(c.Sync.DeletePolicy); !ok {
		return fmt.Errorf("sync.delete_policy must be propagate or keep, got %q", c.Sync.DeletePolicy)
	}

	switch c.Remote.Backend {
	case "", BackendNone, BackendMemory:
	case BackendBigQuery:
		if c.Remote.BigQuery.ProjectID == "" {
			return fmt.Errorf("remote.bigquery.project_id is required for the bigquery backend")
		}
	case BackendNotion:
		if c.Remote.Notion.Token == "" || c.Remote.Notion.DatabaseID == "" {
			return fmt.Errorf("remote.notion.token and remote.notion.database_id are required for the notion backend")
		}
	default:
		return fmt.Errorf("unknown remote.backend %q", c.Remote.Backend)
	}

	switch c.Blob.Backend {
	case "", BlobLocal:
	case BlobGCS:
		if c.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown blob.backend %q", c.Blob.Backend)
	}

	if c.Mirror.Enabled() && c.Mirror.Notion.Token == "" {
		return fmt.Errorf("mirror.notion.token is required when mirror.notion.database_id is set")
	}
	return nil
}

// ConflictPolicy returns the parsed conflict policy.
func (c *Config) ConflictPolicy() reconcile.Policy {
	p, _ := reconcile.ParsePolicy(c.Sync.ConflictPolicy)
	return p
}

// DeletePolicy returns the parsed delete policy.
func (c *Config) DeletePolicy() reconcile.DeletePolicy {
	p, _ := reconcile.ParseDeletePolicy(c.Sync.DeletePolicy)
	return p
}
