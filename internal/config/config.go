package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	mberrors "github.com/systmms/mailbroker/internal/errors"
	"github.com/systmms/mailbroker/internal/logging"
)

const (
	DefaultConfigPath      = "mailbroker.yaml"
	DefaultListenAddr      = "localhost:8000"
	DefaultBucketRegion    = "us-east-1"
	DefaultRegionCacheSize = 16
)

// Config holds the runtime configuration
type Config struct {
	Path   string          `yaml:"-"`
	Logger *logging.Logger `yaml:"-"`
	Debug  bool            `yaml:"-"`

	Settings Settings `yaml:",inline"`
}

// Settings are the values read from the YAML file and the environment.
type Settings struct {
	TableName              string        `yaml:"table_name"`
	SecretsManagerEndpoint string        `yaml:"secrets_manager_endpoint"`
	Region                 string        `yaml:"region"`
	ListenAddr             string        `yaml:"listen_addr"`
	DefaultRegion          string        `yaml:"default_bucket_region"`
	RegionCacheSize        int           `yaml:"region_cache_size"`
	SessionDuration        time.Duration `yaml:"role_session_duration"`
	MetricsEnabled         bool          `yaml:"metrics_enabled"`
	LogLevel               string        `yaml:"log_level"`

	// Static keys for local endpoints such as LocalStack. Leave unset to use
	// the default AWS credential chain.
	StaticAccessKeyID     string `yaml:"static_access_key_id"`
	StaticSecretAccessKey string `yaml:"static_secret_access_key"`
}

// Defaults returns the settings used when nothing else is configured.
func Defaults() Settings {
	return Settings{
		ListenAddr:      DefaultListenAddr,
		DefaultRegion:   DefaultBucketRegion,
		RegionCacheSize: DefaultRegionCacheSize,
		LogLevel:        "INFO",
	}
}

// Load resolves settings from defaults, the YAML file at c.Path, a .env file
// and the process environment, in that order.
func (c *Config) Load() error {
	settings := Defaults()

	if err := c.loadFile(&settings); err != nil {
		return err
	}

	// .env never overrides variables that are already set
	_ = godotenv.Load()

	if err := applyEnv(&settings); err != nil {
		return err
	}

	if settings.RegionCacheSize <= 0 {
		return mberrors.ConfigError{
			Field:      "REGION_CACHE_SIZE",
			Value:      settings.RegionCacheSize,
			Message:    "region cache size must be positive",
			Suggestion: fmt.Sprintf("Leave it unset to use the default of %d", DefaultRegionCacheSize),
		}
	}
	if settings.DefaultRegion == "" {
		settings.DefaultRegion = DefaultBucketRegion
	}

	c.Settings = settings
	return nil
}

func (c *Config) loadFile(settings *Settings) error {
	path := c.Path
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultConfigPath {
			return nil
		}
		return mberrors.ConfigError{
			Field:      "path",
			Value:      path,
			Message:    fmt.Sprintf("failed to read configuration file: %v", err),
			Suggestion: "Check the --config path or omit it to use environment variables only",
		}
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return mberrors.ConfigError{
			Field:      "path",
			Value:      path,
			Message:    fmt.Sprintf("invalid YAML: %v", err),
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}
	return nil
}

func applyEnv(s *Settings) error {
	if v, ok := lookup("TABLE_NAME"); ok {
		s.TableName = v
	}
	if v, ok := lookup("SECRETS_MANAGER_ENDPOINT"); ok {
		s.SecretsManagerEndpoint = v
	}
	if v, ok := lookup("AWS_REGION"); ok {
		s.Region = v
	}
	if v, ok := lookup("LISTEN_ADDR"); ok {
		s.ListenAddr = v
	}
	if v, ok := lookup("DEFAULT_BUCKET_REGION"); ok {
		s.DefaultRegion = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		s.LogLevel = v
	}
	if v, ok := lookup("REGION_CACHE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return mberrors.ConfigError{Field: "REGION_CACHE_SIZE", Value: v, Message: "must be an integer"}
		}
		s.RegionCacheSize = n
	}
	if v, ok := lookup("ROLE_SESSION_DURATION"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return mberrors.ConfigError{
				Field:      "ROLE_SESSION_DURATION",
				Value:      v,
				Message:    "must be a duration",
				Suggestion: "Use a Go duration such as 1h or 900s",
			}
		}
		s.SessionDuration = d
	}
	if v, ok := lookup("METRICS_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return mberrors.ConfigError{Field: "METRICS_ENABLED", Value: v, Message: "must be a boolean"}
		}
		s.MetricsEnabled = b
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// RequireTable checks the setting the authentication commands cannot run without.
func (c *Config) RequireTable() error {
	if c.Settings.TableName == "" {
		return mberrors.ConfigError{
			Field:      "TABLE_NAME",
			Message:    "the user directory table name is required",
			Suggestion: "export TABLE_NAME=<dynamodb table> or set table_name in the config file",
		}
	}
	return nil
}
