package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/observability/metrics"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/privacy"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/storage"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/storage/implementations/influxdb"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/storage/implementations/postgres"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/storage/implementations/redis"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/storage/implementations/s3"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/constants"
	"github.com/mhr-212/Healthcare-Data-Warehouse/pkg/errors"
)

// EnvPrefix is prepended to every environment override, e.g. PRIVACY_AUDIT_K.
const EnvPrefix = "PRIVACY"

// Config is the full configuration of the server and CLI.
type Config struct {
	Environment string `json:"environment" mapstructure:"environment"`

	// Privacy engine
	Audit               privacy.AuditConfig `json:"audit" mapstructure:"audit"`
	QuasiIdentifiers    []string            `json:"quasi_identifiers" mapstructure:"quasi_identifiers"`
	SensitiveAttributes []string            `json:"sensitive_attributes" mapstructure:"sensitive_attributes"`
	EnforcementMethod   string              `json:"enforcement_method" mapstructure:"enforcement_method"`
	DatasetQuery        string              `json:"dataset_query" mapstructure:"dataset_query"`

	Server  ServerConfig              `json:"server" mapstructure:"server"`
	Logging LoggingConfig             `json:"logging" mapstructure:"logging"`
	Metrics *metrics.PrometheusConfig `json:"metrics" mapstructure:"metrics"`

	// Backends; each is used only when enabled
	Postgres PostgresSection `json:"postgres" mapstructure:"postgres"`
	Redis    RedisSection    `json:"redis" mapstructure:"redis"`
	S3       S3Section       `json:"s3" mapstructure:"s3"`
	Influx   InfluxSection   `json:"influx" mapstructure:"influx"`
}

// PostgresSection configures the warehouse source and report store.
type PostgresSection struct {
	Enabled                 bool `json:"enabled" mapstructure:"enabled"`
	postgres.PostgresConfig `mapstructure:",squash"`
}

// RedisSection configures the report cache.
type RedisSection struct {
	Enabled           bool `json:"enabled" mapstructure:"enabled"`
	redis.RedisConfig `mapstructure:",squash"`
}

// S3Section configures the report archive.
type S3Section struct {
	Enabled     bool `json:"enabled" mapstructure:"enabled"`
	s3.S3Config `mapstructure:",squash"`
}

// InfluxSection configures the score history writer.
type InfluxSection struct {
	Enabled                 bool `json:"enabled" mapstructure:"enabled"`
	influxdb.InfluxDBConfig `mapstructure:",squash"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `json:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// LoggingConfig selects the logrus level and formatter.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// NewDefaultConfig returns the configuration used when no file or
// environment override is present.
func NewDefaultConfig() *Config {
	return &Config{
		Environment:         constants.EnvDevelopment,
		Audit:               *privacy.DefaultAuditConfig(),
		QuasiIdentifiers:    append([]string(nil), constants.DefaultQuasiIdentifiers...),
		SensitiveAttributes: append([]string(nil), constants.DefaultSensitiveAttributes...),
		EnforcementMethod:   string(privacy.MethodSuppress),
		DatasetQuery:        postgres.DefaultDatasetQuery,
		Server: ServerConfig{
			Host:            constants.DefaultHost,
			Port:            constants.DefaultPort,
			ReadTimeout:     constants.DefaultReadTimeout,
			WriteTimeout:    constants.DefaultWriteTimeout,
			IdleTimeout:     constants.DefaultIdleTimeout,
			ShutdownTimeout: constants.DefaultShutdownTimeout,
			MaxBodyBytes:    constants.MaxUploadSize,
		},
		Logging: LoggingConfig{
			Level:  constants.DefaultLogLevel,
			Format: constants.DefaultLogFormat,
		},
		Metrics:  metrics.DefaultPrometheusConfig(),
		Postgres: PostgresSection{PostgresConfig: *postgres.DefaultPostgresConfig()},
		Redis:    RedisSection{RedisConfig: *redis.DefaultRedisConfig()},
		S3:       S3Section{S3Config: *s3.DefaultS3Config()},
		Influx:   InfluxSection{InfluxDBConfig: *influxdb.DefaultInfluxDBConfig()},
	}
}

// Load reads configuration from path (any format viper understands) and
// PRIVACY_* environment variables on top of the defaults. An empty path
// looks for privacy-audit.yaml in the working directory and /etc/privacy-audit.
func Load(path string) (*Config, error) {
	v := viper.New()
	cfg := NewDefaultConfig()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("privacy-audit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/privacy-audit")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeInvalidConfiguration,
				"Failed to read config file")
		}
	}

	// list defaults are held by viper; mapstructure appends onto non-nil slices
	cfg.QuasiIdentifiers = nil
	cfg.SensitiveAttributes = nil

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeInvalidConfiguration,
			"Failed to decode configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers the keys that may be overridden from the
// environment; viper only binds env vars for keys it already knows.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("environment", cfg.Environment)

	v.SetDefault("audit.k", cfg.Audit.K)
	v.SetDefault("audit.l", cfg.Audit.L)
	v.SetDefault("audit.t", cfg.Audit.T)
	v.SetDefault("audit.recommended_max_epsilon", cfg.Audit.RecommendedMaxEpsilon)
	v.SetDefault("quasi_identifiers", cfg.QuasiIdentifiers)
	v.SetDefault("sensitive_attributes", cfg.SensitiveAttributes)
	v.SetDefault("enforcement_method", cfg.EnforcementMethod)
	v.SetDefault("dataset_query", cfg.DatasetQuery)

	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)

	v.SetDefault("postgres.enabled", cfg.Postgres.Enabled)
	v.SetDefault("postgres.host", cfg.Postgres.Host)
	v.SetDefault("postgres.port", cfg.Postgres.Port)
	v.SetDefault("postgres.database", cfg.Postgres.Database)
	v.SetDefault("postgres.username", cfg.Postgres.Username)
	v.SetDefault("postgres.password", cfg.Postgres.Password)

	v.SetDefault("redis.enabled", cfg.Redis.Enabled)
	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.password", cfg.Redis.Password)

	v.SetDefault("s3.enabled", cfg.S3.Enabled)
	v.SetDefault("s3.bucket", cfg.S3.Bucket)
	v.SetDefault("s3.region", cfg.S3.Region)
	v.SetDefault("s3.endpoint", cfg.S3.Endpoint)

	v.SetDefault("influx.enabled", cfg.Influx.Enabled)
	v.SetDefault("influx.url", cfg.Influx.URL)
	v.SetDefault("influx.token", cfg.Influx.Token)
}

// Validate checks the configuration before any component is built.
func (c *Config) Validate() error {
	if err := c.Audit.Validate(); err != nil {
		return err
	}

	if len(c.QuasiIdentifiers) == 0 {
		return errors.NewConfigurationError("at least one quasi-identifier is required")
	}

	if _, err := privacy.ParseMethod(c.EnforcementMethod); err != nil {
		return err
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.NewConfigurationError(fmt.Sprintf("invalid port: %d", c.Server.Port))
	}

	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return errors.NewConfigurationError("server timeouts must be positive")
	}

	switch c.Logging.Format {
	case constants.LogFormatJSON, constants.LogFormatText:
	default:
		return errors.NewConfigurationError(fmt.Sprintf("unsupported log format: %q", c.Logging.Format))
	}

	if c.S3.Enabled && c.S3.Bucket == "" {
		return errors.NewConfigurationError("s3.bucket is required when s3 is enabled")
	}

	return nil
}

// FactoryConfig selects the enabled backends for storage.Open.
func (c *Config) FactoryConfig() storage.FactoryConfig {
	var fc storage.FactoryConfig
	if c.Postgres.Enabled {
		fc.Postgres = &c.Postgres.PostgresConfig
	}
	if c.Redis.Enabled {
		fc.Redis = &c.Redis.RedisConfig
	}
	if c.S3.Enabled {
		fc.S3 = &c.S3.S3Config
	}
	if c.Influx.Enabled {
		fc.InfluxDB = &c.Influx.InfluxDBConfig
	}
	return fc
}

// Address returns the server listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
