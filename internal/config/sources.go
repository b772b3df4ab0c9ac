package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/fitsync/internal/common"
	"github.com/spf13/pflag"
)

// setting ties a config key to its field. The JSON key is name, the flag is
// name with dashes and the environment variable is FITSYNC_<NAME>.
type setting struct {
	name  string
	usage string
	get   func(*Config) string
	set   func(*Config, string) error
}

func str(name, usage string, field func(*Config) *string) setting {
	return setting{
		name:  name,
		usage: usage,
		get:   func(c *Config) string { return *field(c) },
		set:   func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

var settings = []setting{
	str("data_dir", "directory holding the local collections", func(c *Config) *string { return &c.DataDir }),
	str("database_file", "local state database (default <data-dir>/state.db)", func(c *Config) *string { return &c.DatabaseFile }),
	str("backend", "remote backend: drive or s3", func(c *Config) *string { return &c.Backend }),
	str("client_id", "OAuth client id", func(c *Config) *string { return &c.ClientID }),
	str("client_secret", "OAuth client secret", func(c *Config) *string { return &c.ClientSecret }),
	str("redirect_uri", "OAuth redirect URI", func(c *Config) *string { return &c.RedirectURI }),
	str("s3_bucket", "S3 bucket", func(c *Config) *string { return &c.S3Bucket }),
	str("s3_prefix", "S3 key prefix", func(c *Config) *string { return &c.S3Prefix }),
	str("s3_region", "S3 region", func(c *Config) *string { return &c.S3Region }),
	str("s3_endpoint", "S3 endpoint override", func(c *Config) *string { return &c.S3Endpoint }),
	str("s3_access_key", "S3 access key", func(c *Config) *string { return &c.S3AccessKey }),
	str("s3_secret_key", "S3 secret key", func(c *Config) *string { return &c.S3SecretKey }),
	str("sync_schedule", "cron schedule of the periodic full sync", func(c *Config) *string { return &c.SyncSchedule }),
	{
		name:  "watch_debounce",
		usage: "quiet period before a changed collection is pushed",
		get:   func(c *Config) string { return c.WatchDebounce.String() },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			c.WatchDebounce = Duration(d)
			return nil
		},
	},
	str("log_level", "debug, info, warn or error", func(c *Config) *string { return &c.LogLevel }),
	str("log_format", "text, json or console", func(c *Config) *string { return &c.LogFormat }),
	str("log_file", "write logs to a rotated file", func(c *Config) *string { return &c.LogFile }),
	str("token_store", "keyring or db", func(c *Config) *string { return &c.TokenStore }),
}

func flagName(key string) string { return strings.ReplaceAll(key, "_", "-") }

func envName(key string) string { return "FITSYNC_" + strings.ToUpper(key) }

// LoadJSON overlays c with the keys present in the JSON file at path.
func LoadJSON(c *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", common.ErrConfiguration, path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: parse %s: %v", common.ErrConfiguration, path, err)
	}
	return nil
}

// LoadEnv overlays c with non-empty environment variables.
func LoadEnv(c *Config, getenv func(string) string) error {
	if v := getenv(common.EnvClientID); v != "" {
		c.ClientID = v
	}
	if v := getenv(common.EnvClientSecret); v != "" {
		c.ClientSecret = v
	}
	for _, s := range settings {
		v := getenv(envName(s.name))
		if v == "" {
			continue
		}
		if err := s.set(c, v); err != nil {
			return fmt.Errorf("%w: %s: %v", common.ErrConfiguration, envName(s.name), err)
		}
	}
	return nil
}

// BindFlags registers one flag per setting on fs, showing the defaults of c.
func BindFlags(fs *pflag.FlagSet, c *Config) {
	for _, s := range settings {
		fs.String(flagName(s.name), s.get(c), s.usage)
	}
}

// ApplyFlags overlays c with the flags of fs that were set explicitly.
func ApplyFlags(c *Config, fs *pflag.FlagSet) error {
	var firstErr error
	for _, s := range settings {
		f := fs.Lookup(flagName(s.name))
		if f == nil || !f.Changed {
			continue
		}
		if err := s.set(c, f.Value.String()); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: --%s: %v", common.ErrConfiguration, f.Name, err)
		}
	}
	return firstErr
}

// Load builds the effective configuration: defaults, the JSON file at path
// (skipped when empty), the environment, then the changed flags of fs.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if path != "" {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := LoadEnv(cfg, os.Getenv); err != nil {
		return nil, err
	}
	if fs != nil {
		if err := ApplyFlags(cfg, fs); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
