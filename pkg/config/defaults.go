package config

import (
	"strings"
	"time"

	"github.com/goldstarfreight/inspectetl/pkg/store"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and
// environment variables to fill in any missing values with sensible defaults.
// Zero values (0, "", false, nil) are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	cfg.Database.ApplyDefaults()
	applyUpstreamDefaults(&cfg.Upstream)
	applyBreakerDefaults(&cfg.Breaker)
	applyRetryDefaults(&cfg.Retry)
	applyRunnerDefaults(&cfg.Runner)
	applySFTPDefaults(&cfg.SFTP)
	applyPathsDefaults(&cfg.Paths)
	applyAttachmentDefaults(&cfg.Attachments)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = 50
	}
	if cfg.MaxBackups == 0 {
		cfg.MaxBackups = 5
	}
}

func applyUpstreamDefaults(cfg *UpstreamConfig) {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MediaTimeout == 0 {
		cfg.MediaTimeout = 60 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffFactor == 0 {
		cfg.BackoffFactor = 2.0
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.RateLimitCooldown == 0 {
		cfg.RateLimitCooldown = 60 * time.Second
	}
}

func applyBreakerDefaults(cfg *BreakerConfig) {
	if cfg.WindowSize == 0 {
		cfg.WindowSize = 20
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 0.5
	}
	if cfg.RecoveryThreshold == 0 {
		cfg.RecoveryThreshold = 0.3
	}
	if cfg.OpenDuration == 0 {
		cfg.OpenDuration = 5 * time.Minute
	}
}

func applyRetryDefaults(cfg *RetryConfig) {
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = 5 * time.Minute
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 24 * time.Hour
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
}

func applyRunnerDefaults(cfg *RunnerConfig) {
	if cfg.CycleSleep == 0 {
		cfg.CycleSleep = 30 * time.Second
	}
	if cfg.TipsPerKindPerCycle == 0 {
		cfg.TipsPerKindPerCycle = 10
	}
	if cfg.SFTPEveryN == 0 {
		cfg.SFTPEveryN = 10
	}
	if cfg.CSVEveryN == 0 {
		cfg.CSVEveryN = 5
	}
}

func applySFTPDefaults(cfg *SFTPConfig) {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
}

func applyPathsDefaults(cfg *PathsConfig) {
	if cfg.OutputRoot == "" {
		cfg.OutputRoot = "output"
	}
	if cfg.ETLRoot == "" {
		cfg.ETLRoot = "etl"
	}
	if cfg.JournalDir == "" {
		cfg.JournalDir = "journal"
	}
	if cfg.UnknownHashLog == "" {
		cfg.UnknownHashLog = "logs/unknown_hashes.log"
	}
}

func applyAttachmentDefaults(cfg *AttachmentConfig) {
	if cfg.MinSizeBytes == 0 {
		cfg.MinSizeBytes = 1024
	}
	if cfg.Pause == 0 {
		cfg.Pause = 500 * time.Millisecond
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// DefaultKinds returns the six stock record kinds. Operators usually extend
// the field lists per kind; the id and date wiring below matches the
// upstream schemas and the CSV header registry.
func DefaultKinds() map[string]KindConfig {
	return map[string]KindConfig{
		"LCD": {
			FullName: "Load Compliance Check Driver/Loader",
			Endpoint: "/api/v1/records/lcdInspection?tip=$tip",
			IDField:  FieldRef{Upstream: "lcdInspectionId", Column: "lcd_inspection_id"},
			DateField: FieldRef{
				Upstream: "date", Column: "inspection_date",
			},
			Fields: []FieldMappingConfig{
				{Upstream: "vehicle", Column: "vehicle_hash", Type: "hash", HashType: "vehicle"},
				{Upstream: "trailer", Column: "trailer_hash", Type: "hash", HashType: "trailer"},
				{Upstream: "team", Column: "team_hash", Type: "hash", HashType: "team"},
				{Upstream: "loadSecure", Column: "load_secure", Type: "bool"},
				{Upstream: "comments", Column: "comments", Type: "string"},
			},
		},
		"CCC": {
			FullName: "Coupling Compliance Check",
			Endpoint: "/api/v1/records/coupling?tip=$tip",
			IDField:  FieldRef{Upstream: "couplingId", Column: "coupling_id"},
			DateField: FieldRef{
				Upstream: "date", Column: "inspection_date",
			},
			Fields: []FieldMappingConfig{
				{Upstream: "vehicle", Column: "vehicle_hash", Type: "hash", HashType: "vehicle"},
				{Upstream: "trailer", Column: "trailer_hash", Type: "hash", HashType: "trailer"},
				{Upstream: "kingpinEngaged", Column: "kingpin_engaged", Type: "bool"},
			},
		},
		"TA": {
			FullName: "Trailer Audit",
			Endpoint: "/api/v1/records/trailerAudit?tip=$tip",
			IDField:  FieldRef{Upstream: "trailerAuditId", Column: "trailer_audit_id"},
			DateField: FieldRef{
				Upstream: "date", Column: "inspection_date",
			},
			Fields: []FieldMappingConfig{
				{Upstream: "trailer", Column: "trailer_hash", Type: "hash", HashType: "trailer"},
				{Upstream: "department", Column: "department_hash", Type: "hash", HashType: "department"},
			},
		},
		"SO": {
			FullName: "Site Observation",
			Endpoint: "/api/v1/records/siteObservation?tip=$tip",
			IDField:  FieldRef{Upstream: "siteObservationId", Column: "site_observation_id"},
			DateField: FieldRef{
				Upstream: "date", Column: "inspection_date",
			},
			Fields: []FieldMappingConfig{
				{Upstream: "team", Column: "team_hash", Type: "hash", HashType: "team"},
				{Upstream: "observations", Column: "observations", Type: "json"},
			},
		},
		"FPI": {
			FullName: "Forklift Prestart Inspection",
			Endpoint: "/api/v1/records/forkliftPrestart?tip=$tip",
			IDField:  FieldRef{Upstream: "forkliftPrestartInspectionId", Column: "forklift_prestart_inspection_id"},
			DateField: FieldRef{
				Upstream: "date", Column: "inspection_date",
			},
			Fields: []FieldMappingConfig{
				{Upstream: "vehicle", Column: "vehicle_hash", Type: "hash", HashType: "vehicle"},
				{Upstream: "hoursReading", Column: "hours_reading", Type: "float"},
			},
		},
		"LCS": {
			FullName: "Load Compliance Check Supervisor",
			Endpoint: "/api/v1/records/lcsInspection?tip=$tip",
			IDField:  FieldRef{Upstream: "lcsInspectionId", Column: "lcs_inspection_id"},
			DateField: FieldRef{
				Upstream: "date", Column: "inspection_date",
			},
			Fields: []FieldMappingConfig{
				{Upstream: "vehicle", Column: "vehicle_hash", Type: "hash", HashType: "vehicle"},
				{Upstream: "team", Column: "team_hash", Type: "hash", HashType: "team"},
			},
		},
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Database: store.Config{
			Type: store.DatabaseTypeSQLite,
		},
		Upstream: UpstreamConfig{
			BaseURL:         "https://records.example.com",
			MediaServiceURL: "https://media.example.com",
			Namespace:       "inspections",
			Token:           "REPLACE_ME",
		},
		Kinds: DefaultKinds(),
	}

	ApplyDefaults(cfg)
	return cfg
}
