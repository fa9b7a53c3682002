package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/goldstarfreight/inspectetl/pkg/store"
)

// Config represents the inspectetl configuration.
//
// This structure captures the static configuration of the pipeline:
//   - Logging behavior
//   - Database connection (work queue persistence)
//   - Upstream HTTP access (records and media services)
//   - Circuit breaker and retry policies
//   - Continuous runner cadences
//   - SFTP and local CSV intake
//   - Filesystem layout for output and staging
//   - Per-kind record schemas (field mappings, templates, filename patterns)
//
// The loaded Config is immutable: it is constructed once at startup and
// passed by reference; no component mutates it afterwards.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (INSPECTETL_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Database configures the work queue store (SQLite or PostgreSQL).
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Upstream configures access to the records and media HTTP services.
	Upstream UpstreamConfig `mapstructure:"upstream" yaml:"upstream"`

	// Breaker configures the circuit breaker guarding the upstream.
	Breaker BreakerConfig `mapstructure:"breaker" yaml:"breaker"`

	// Retry configures work-item level retry scheduling (distinct from the
	// intra-request retries of the upstream client).
	Retry RetryConfig `mapstructure:"retry" yaml:"retry"`

	// Runner configures the continuous processing loop.
	Runner RunnerConfig `mapstructure:"runner" yaml:"runner"`

	// SFTP configures the remote CSV drop site.
	SFTP SFTPConfig `mapstructure:"sftp" yaml:"sftp"`

	// Paths configures the output and staging filesystem layout.
	Paths PathsConfig `mapstructure:"paths" yaml:"paths"`

	// Attachments configures download validation and pacing.
	Attachments AttachmentConfig `mapstructure:"attachments" yaml:"attachments"`

	// Metrics contains Prometheus ops server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Kinds maps kind abbreviations (LCD, CCC, TA, SO, FPI, LCS) to their
	// declarative schemas. The processor is generic: everything
	// kind-specific lives here.
	Kinds map[string]KindConfig `mapstructure:"kinds" yaml:"kinds"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path (rotated)
	Output string `mapstructure:"output" validate:"required" yaml:"output"`

	// MaxSizeMB is the rotation threshold for file outputs.
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is how many rotated files to keep.
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// UpstreamConfig configures the records and media HTTP services.
type UpstreamConfig struct {
	// BaseURL is the records service base URL.
	BaseURL string `mapstructure:"base_url" validate:"required,url" yaml:"base_url"`

	// MediaServiceURL is the media service base URL. Attachment URLs
	// beginning with /media are resolved against it.
	MediaServiceURL string `mapstructure:"media_service_url" validate:"required,url" yaml:"media_service_url"`

	// Namespace is sent as the en-namespace header on every request.
	Namespace string `mapstructure:"namespace" validate:"required" yaml:"namespace"`

	// Token is the bearer token. Usually provided via
	// INSPECTETL_UPSTREAM_TOKEN rather than the config file.
	Token string `mapstructure:"token" validate:"required" yaml:"token,omitempty"`

	// RequestTimeout applies to JSON record fetches.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	// MediaTimeout applies to attachment downloads (longer).
	MediaTimeout time.Duration `mapstructure:"media_timeout" yaml:"media_timeout"`

	// MaxRetries bounds intra-request retries on transport failures.
	MaxRetries int `mapstructure:"max_retries" validate:"omitempty,min=0,max=10" yaml:"max_retries"`

	// BackoffFactor seeds the transport retry backoff: the nth retry waits
	// factor^n * factor seconds, capped at MaxBackoff.
	BackoffFactor float64 `mapstructure:"backoff_factor" yaml:"backoff_factor"`

	// MaxBackoff caps a single transport retry delay.
	MaxBackoff time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`

	// RateLimitCooldown is how long to sleep after an HTTP 429 before the
	// TIP is requeued. This sleep is separate from the retry schedule.
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown" yaml:"rate_limit_cooldown"`
}

// BreakerConfig configures the circuit breaker.
type BreakerConfig struct {
	// WindowSize is the number of recent outcomes considered.
	WindowSize int `mapstructure:"window_size" validate:"omitempty,min=1" yaml:"window_size"`

	// FailureThreshold opens the breaker when the failure fraction of a
	// full window exceeds it.
	FailureThreshold float64 `mapstructure:"failure_threshold" validate:"omitempty,gt=0,lte=1" yaml:"failure_threshold"`

	// RecoveryThreshold closes a half-open breaker when the failure
	// fraction has fallen to or below it.
	RecoveryThreshold float64 `mapstructure:"recovery_threshold" validate:"omitempty,gte=0,lte=1" yaml:"recovery_threshold"`

	// OpenDuration is the cooldown before a half-open probe is allowed.
	OpenDuration time.Duration `mapstructure:"open_duration" yaml:"open_duration"`
}

// RetryConfig configures work-item retry scheduling.
type RetryConfig struct {
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration `mapstructure:"base_delay" yaml:"base_delay"`

	// Multiplier grows the delay per retry.
	Multiplier float64 `mapstructure:"multiplier" yaml:"multiplier"`

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay"`

	// MaxAttempts is the retry budget; at the budget the item is marked
	// permanently failed.
	MaxAttempts int `mapstructure:"max_attempts" validate:"omitempty,min=1" yaml:"max_attempts"`
}

// RunnerConfig configures the continuous processing loop.
type RunnerConfig struct {
	// CycleSleep is the pause between cycles (interruptible).
	CycleSleep time.Duration `mapstructure:"cycle_sleep" yaml:"cycle_sleep"`

	// TipsPerKindPerCycle bounds the batch pulled per kind per cycle.
	TipsPerKindPerCycle int `mapstructure:"tips_per_kind_per_cycle" validate:"omitempty,min=1" yaml:"tips_per_kind_per_cycle"`

	// SFTPEveryN runs the SFTP poll every N cycles (when SFTP is enabled).
	SFTPEveryN int `mapstructure:"sftp_every_n" validate:"omitempty,min=1" yaml:"sftp_every_n"`

	// CSVEveryN runs the local directory import every N cycles.
	CSVEveryN int `mapstructure:"csv_every_n" validate:"omitempty,min=1" yaml:"csv_every_n"`

	// Parallel dispatches one processor per kind concurrently. The store,
	// breaker and journal are shared-thread-safe, so this only changes
	// cross-kind interleaving.
	Parallel bool `mapstructure:"parallel" yaml:"parallel"`

	// KindOrder fixes the iteration order over kinds. Defaults to the
	// sorted kind abbreviations.
	KindOrder []string `mapstructure:"kind_order" yaml:"kind_order,omitempty"`
}

// SFTPConfig configures the remote CSV drop site.
type SFTPConfig struct {
	// Enabled turns the SFTP poll on.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Host is the SFTP server hostname.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the SFTP server port.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// User is the SFTP username.
	User string `mapstructure:"user" yaml:"user"`

	// PrivateKeyPath is the path to the private key for public-key auth.
	PrivateKeyPath string `mapstructure:"private_key_path" yaml:"private_key_path"`

	// KnownHostsPath pins the server host key. When empty, host key
	// verification is skipped and a warning is logged.
	KnownHostsPath string `mapstructure:"known_hosts_path" yaml:"known_hosts_path,omitempty"`

	// RemoteDir is the remote directory to poll for CSV files.
	RemoteDir string `mapstructure:"remote_dir" yaml:"remote_dir"`

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// PathsConfig configures the output and staging filesystem layout.
//
// The staging tree under ETLRoot is fixed: pending/, processed/, error/,
// quarantine/ and incoming/ subdirectories.
type PathsConfig struct {
	// OutputRoot is where per-record folders are created.
	OutputRoot string `mapstructure:"output_root" validate:"required" yaml:"output_root"`

	// ETLRoot holds the CSV staging tree.
	ETLRoot string `mapstructure:"etl_root" validate:"required" yaml:"etl_root"`

	// JournalDir holds one session journal file per run.
	JournalDir string `mapstructure:"journal_dir" validate:"required" yaml:"journal_dir"`

	// UnknownHashLog is the append-only log of unresolved hash sightings.
	UnknownHashLog string `mapstructure:"unknown_hash_log" validate:"required" yaml:"unknown_hash_log"`
}

// Pending returns the local CSV drop directory.
func (p *PathsConfig) Pending() string { return filepath.Join(p.ETLRoot, "pending") }

// Processed returns the archive directory for imported CSVs.
func (p *PathsConfig) Processed() string { return filepath.Join(p.ETLRoot, "processed") }

// Error returns the directory for CSVs that failed import.
func (p *PathsConfig) Error() string { return filepath.Join(p.ETLRoot, "error") }

// Quarantine returns the directory for unrecognized or unparseable CSVs.
func (p *PathsConfig) Quarantine() string { return filepath.Join(p.ETLRoot, "quarantine") }

// Incoming returns the SFTP download staging directory.
func (p *PathsConfig) Incoming() string { return filepath.Join(p.ETLRoot, "incoming") }

// EnsureTree creates the staging tree.
func (p *PathsConfig) EnsureTree() error {
	for _, dir := range []string{p.OutputRoot, p.Pending(), p.Processed(), p.Error(), p.Quarantine(), p.Incoming(), p.JournalDir, filepath.Dir(p.UnknownHashLog)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// AttachmentConfig configures download validation and pacing.
type AttachmentConfig struct {
	// MinSizeBytes rejects downloads smaller than this.
	MinSizeBytes int64 `mapstructure:"min_size_bytes" validate:"omitempty,min=1" yaml:"min_size_bytes"`

	// Pause is the sleep between attachments of the same record.
	Pause time.Duration `mapstructure:"pause" yaml:"pause"`
}

// MetricsConfig configures the Prometheus ops HTTP server.
// When Enabled is false, no listener is started.
type MetricsConfig struct {
	// Enabled controls whether the ops HTTP server is started.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for /metrics and /healthz.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (INSPECTETL_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the config
// file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  inspectetl init\n\n"+
				"Or specify a custom config file:\n"+
				"  inspectetl <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  inspectetl init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the config may carry the upstream bearer token.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate runs struct-tag validation plus the cross-field checks the tags
// cannot express (kind schemas, thresholds).
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if cfg.Breaker.RecoveryThreshold > cfg.Breaker.FailureThreshold {
		return fmt.Errorf("breaker recovery_threshold (%v) must not exceed failure_threshold (%v)",
			cfg.Breaker.RecoveryThreshold, cfg.Breaker.FailureThreshold)
	}

	if len(cfg.Kinds) == 0 {
		return fmt.Errorf("at least one kind must be configured")
	}
	if _, err := cfg.BuildSchemas(); err != nil {
		return err
	}

	for _, abbrev := range cfg.Runner.KindOrder {
		if _, ok := cfg.Kinds[abbrev]; !ok {
			return fmt.Errorf("runner kind_order references unknown kind %q", abbrev)
		}
	}

	if cfg.SFTP.Enabled {
		if cfg.SFTP.Host == "" || cfg.SFTP.User == "" || cfg.SFTP.PrivateKeyPath == "" || cfg.SFTP.RemoteDir == "" {
			return fmt.Errorf("sftp requires host, user, private_key_path and remote_dir when enabled")
		}
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// INSPECTETL_UPSTREAM_TOKEN, INSPECTETL_LOGGING_LEVEL, ...
	v.SetEnvPrefix("INSPECTETL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// durationDecodeHook converts strings like "30s", "5m", "1h" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "inspectetl")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "inspectetl")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
