package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const dirName = ".funnelboard"

// Global configuration structure.
type Global struct {
	// Server
	ListenAddr    string `mapstructure:"listen_addr" yaml:"listen_addr"`
	MaxUploadMB   int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	CacheSize     int    `mapstructure:"cache_size" yaml:"cache_size"`
	SessionTTLMin int    `mapstructure:"session_ttl_min" yaml:"session_ttl_min"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// Funnel defaults
	TargetColumn  string   `mapstructure:"target_column" yaml:"target_column"`
	RangeColumn   string   `mapstructure:"range_column" yaml:"range_column"`
	FunnelColumns []string `mapstructure:"funnel_columns" yaml:"funnel_columns"`
	ChartMode     string   `mapstructure:"chart_mode" yaml:"chart_mode"`

	// Loading and export
	SheetName        string `mapstructure:"sheet_name" yaml:"sheet_name"`
	DecimalSeparator string `mapstructure:"decimal_separator" yaml:"decimal_separator"`
}

// DefaultFunnelColumns are the categorical columns of the bank marketing
// dataset offered as funnel stages.
var DefaultFunnelColumns = []string{"job", "marital", "default", "housing", "loan", "contact", "month", "day_of_week"}

// Validate checks values that cannot be corrected silently.
func (c *Global) Validate() error {
	var errs []error
	if c.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("max_upload_mb must be positive, got %d", c.MaxUploadMB))
	}
	if c.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("cache_size must be >= 0, got %d", c.CacheSize))
	}
	if c.SessionTTLMin < 0 {
		errs = append(errs, fmt.Errorf("session_ttl_min must be >= 0, got %d", c.SessionTTLMin))
	}
	if strings.TrimSpace(c.TargetColumn) == "" {
		errs = append(errs, errors.New("target_column is required"))
	}
	switch strings.ToLower(c.ChartMode) {
	case "bar", "pie":
	default:
		errs = append(errs, fmt.Errorf("chart_mode must be bar or pie, got %q", c.ChartMode))
	}
	if _, err := c.Decimal(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Decimal maps decimal_separator to a rune; 0 means auto-detect.
func (c *Global) Decimal() (rune, error) {
	switch strings.ToLower(strings.TrimSpace(c.DecimalSeparator)) {
	case "", "auto":
		return 0, nil
	case ".", "dot":
		return '.', nil
	case ",", "comma":
		return ',', nil
	}
	return 0, fmt.Errorf("decimal_separator must be auto, '.' or ',', got %q", c.DecimalSeparator)
}

// SessionTTL is the idle time after which server sessions are dropped.
func (c *Global) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMin) * time.Minute
}

// MaxUploadBytes is the request body limit for uploads.
func (c *Global) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.funnelboard/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		dir := filepath.Join(home, dirName)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from .env, file, env, and defaults.
// Precedence: env (including .env) > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	// a missing .env is normal
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("FUNNELBOARD")
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8501")
	v.SetDefault("max_upload_mb", 50)
	v.SetDefault("cache_size", 128)
	v.SetDefault("session_ttl_min", 60)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("target_column", "y")
	v.SetDefault("range_column", "age")
	v.SetDefault("funnel_columns", DefaultFunnelColumns)
	v.SetDefault("chart_mode", "bar")
	v.SetDefault("sheet_name", "Sheet1")
	v.SetDefault("decimal_separator", "auto")

	explicitMissing := false
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
			// config set may be about to create it
			explicitMissing = true
		}
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		v.AddConfigPath(filepath.Join(home, dirName))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if !explicitMissing {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}
