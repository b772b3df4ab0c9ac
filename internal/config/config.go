package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/fitsync/internal/common"
	"github.com/robfig/cron/v3"
)

const (
	BackendDrive = "drive"
	BackendS3    = "s3"

	TokenStoreKeyring = "keyring"
	TokenStoreDB      = "db"
)

// Config holds runtime settings for the fitsync CLI.
type Config struct {
	DataDir      string `json:"data_dir"`
	DatabaseFile string `json:"database_file"`

	Backend      string `json:"backend"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri"`

	S3Bucket    string `json:"s3_bucket"`
	S3Prefix    string `json:"s3_prefix"`
	S3Region    string `json:"s3_region"`
	S3Endpoint  string `json:"s3_endpoint"`
	S3AccessKey string `json:"s3_access_key"`
	S3SecretKey string `json:"s3_secret_key"`

	SyncSchedule  string   `json:"sync_schedule"`
	WatchDebounce Duration `json:"watch_debounce"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
	LogFile   string `json:"log_file"`

	TokenStore string `json:"token_store"`
}

// LoadDefaults populates c with defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = defaultDataDir()
	c.DatabaseFile = ""
	c.Backend = BackendDrive
	c.RedirectURI = common.DefaultRedirectURI
	c.S3Prefix = "fitsync/"
	c.SyncSchedule = "@every 15m"
	c.WatchDebounce = Duration(2 * time.Second)
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.TokenStore = TokenStoreKeyring
}

// DatabasePath is DatabaseFile, or state.db inside DataDir when unset.
func (c *Config) DatabasePath() string {
	if c.DatabaseFile != "" {
		return c.DatabaseFile
	}
	return filepath.Join(c.DataDir, "state.db")
}

// Validate checks the combined settings. OAuth client credentials are not
// checked here; the auth session reports them when it is configured.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is empty", common.ErrConfiguration)
	}
	switch c.Backend {
	case BackendDrive:
	case BackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("%w: s3 backend requires s3_bucket", common.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", common.ErrConfiguration, c.Backend)
	}
	switch c.LogFormat {
	case "text", "json", "console":
	default:
		return fmt.Errorf("%w: unknown log_format %q", common.ErrConfiguration, c.LogFormat)
	}
	switch c.TokenStore {
	case TokenStoreKeyring, TokenStoreDB:
	default:
		return fmt.Errorf("%w: unknown token_store %q", common.ErrConfiguration, c.TokenStore)
	}
	if _, err := cron.ParseStandard(c.SyncSchedule); err != nil {
		return fmt.Errorf("%w: sync_schedule: %v", common.ErrConfiguration, err)
	}
	if c.WatchDebounce <= 0 {
		return fmt.Errorf("%w: watch_debounce must be positive", common.ErrConfiguration)
	}
	return nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "fitsync")
	}
	return ".fitsync"
}
