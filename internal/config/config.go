// Package config loads service configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jonesrussell/backlink-checker/internal/logger"
)

const (
	defaultServiceName     = "backlink-checker"
	defaultServerHost      = "0.0.0.0"
	defaultServerPort      = 8060
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultDatabasePort    = 5432
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultMigrationsPath  = "migrations"
	defaultRedisAddress    = "localhost:6379"

	defaultIngestBatchSize  = 100
	defaultIngestTimeout    = 5 * time.Minute
	defaultIngestMaxErrors  = 10
	defaultIngestMaxFileMiB = 50
	bytesPerMiB             = 1 << 20

	defaultLookupMaxDomains = 1000
	defaultLookupRPS        = 20
	defaultLookupBurst      = 40

	defaultFXFeedURL      = "https://api.exchangerate-api.com/v4/latest/USD"
	defaultFXSchedule     = "0 6 * * *"
	defaultFXTimeout      = 30 * time.Second
	defaultFXRetries      = 3
	defaultFXRetryDelay   = 2 * time.Second
	defaultMetricsPath    = "/metrics"
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultCORSOriginDash = "http://localhost:3000"
	defaultCORSOriginAPI  = "http://localhost:8000"
)

// Config is the full service configuration.
type Config struct {
	Debug    bool           `env:"APP_DEBUG" yaml:"debug"`
	Service  ServiceConfig  `yaml:"service"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  logger.Config  `yaml:"logging"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Lookup   LookupConfig   `yaml:"lookup"`
	FX       FXConfig       `yaml:"fx"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServiceConfig struct {
	Name    string `env:"SERVICE_NAME"    yaml:"name"`
	Version string `env:"SERVICE_VERSION" yaml:"version"`
}

type ServerConfig struct {
	Host            string        `env:"SERVER_HOST"  yaml:"host"`
	Port            int           `env:"SERVER_PORT"  yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Host            string        `env:"DB_HOST"         yaml:"host"`
	Port            int           `env:"DB_PORT"         yaml:"port"`
	User            string        `env:"DB_USER"         yaml:"user"`
	Password        string        `env:"DB_PASSWORD"     yaml:"password"`
	DBName          string        `env:"DB_NAME"         yaml:"dbname"`
	SSLMode         string        `env:"DB_SSLMODE"      yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MigrationsPath  string        `env:"MIGRATIONS_PATH" yaml:"migrations_path"`
	AutoMigrate     bool          `env:"DB_AUTO_MIGRATE" yaml:"auto_migrate"`
}

// DSN returns the lib/pq keyword/value connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the postgres:// form used by golang-migrate.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection configuration for event publishing.
type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS"        yaml:"address"`
	Password string `env:"REDIS_PASSWORD"       yaml:"password"`
	DB       int    `env:"REDIS_DB"             yaml:"db"`
	Enabled  bool   `env:"REDIS_EVENTS_ENABLED" yaml:"enabled"`
}

type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
}

// IngestConfig bounds a single spreadsheet ingestion.
type IngestConfig struct {
	BatchSize         int           `env:"INGEST_BATCH_SIZE"    yaml:"batch_size"`
	Timeout           time.Duration `env:"INGEST_TIMEOUT"       yaml:"timeout"`
	MaxErrors         int           `env:"INGEST_MAX_ERRORS"    yaml:"max_errors"`
	MaxFileSize       int64         `env:"INGEST_MAX_FILE_SIZE" yaml:"max_file_size"`
	AllowedExtensions []string      `yaml:"allowed_extensions"`
}

type LookupConfig struct {
	MaxDomains     int     `env:"LOOKUP_MAX_DOMAINS" yaml:"max_domains"`
	RecordDomains  *bool   `yaml:"record_domains"`
	RateLimitRPS   float64 `env:"LOOKUP_RATE_LIMIT_RPS"   yaml:"rate_limit_rps"`
	RateLimitBurst int     `env:"LOOKUP_RATE_LIMIT_BURST" yaml:"rate_limit_burst"`
}

// ShouldRecordDomains reports whether lookups register unseen domains.
func (l LookupConfig) ShouldRecordDomains() bool {
	return l.RecordDomains == nil || *l.RecordDomains
}

// FXConfig configures the exchange-rate feed.
type FXConfig struct {
	FeedEnabled bool          `env:"FX_FEED_ENABLED" yaml:"feed_enabled"`
	FeedURL     string        `env:"FX_FEED_URL"     yaml:"feed_url"`
	Schedule    string        `env:"FX_SCHEDULE"     yaml:"schedule"`
	Currencies  []string      `env:"FX_CURRENCIES"   yaml:"currencies"`
	Timeout     time.Duration `yaml:"timeout"`
	Retries     int           `yaml:"retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads the config file at path, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, fmt.Errorf("load environment files: %w", err)
	}

	cfg := &Config{}
	if err := decode(path, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)
	// env always wins over defaults
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return errors.New("server.host is required")
	}
	if c.Server.Port <= 0 {
		return errors.New("server.port is required and must be positive")
	}
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Port <= 0 {
		return errors.New("database.port is required and must be positive")
	}
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Ingest.BatchSize <= 0 {
		return errors.New("ingest.batch_size must be positive")
	}
	if c.Ingest.MaxErrors <= 0 {
		return errors.New("ingest.max_errors must be positive")
	}
	if c.Ingest.MaxFileSize <= 0 {
		return errors.New("ingest.max_file_size must be positive")
	}
	if c.Lookup.MaxDomains <= 0 {
		return errors.New("lookup.max_domains must be positive")
	}
	if c.FX.FeedEnabled && c.FX.FeedURL == "" {
		return errors.New("fx.feed_url is required when fx.feed_enabled is set")
	}
	if !c.Debug && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required outside debug mode")
	}
	return nil
}

// AllowsExtension reports whether an upload with the given extension is accepted.
func (i IngestConfig) AllowsExtension(ext string) bool {
	return slices.Contains(i.AllowedExtensions, strings.ToLower(ext))
}

func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setServerDefaults(&cfg.Server)
	setDatabaseDefaults(&cfg.Database)
	setIngestDefaults(&cfg.Ingest)
	setLookupDefaults(&cfg.Lookup)
	setFXDefaults(&cfg.FX)

	if cfg.Redis.Address == "" {
		cfg.Redis.Address = defaultRedisAddress
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaultLogFormat
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
}

func setServiceDefaults(s *ServiceConfig) {
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Version == "" {
		s.Version = "dev"
	}
}

func setServerDefaults(s *ServerConfig) {
	if s.Host == "" {
		s.Host = defaultServerHost
	}
	if s.Port == 0 {
		s.Port = defaultServerPort
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = defaultServerTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = defaultServerTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = defaultShutdownTimeout
	}
	if len(s.CORSOrigins) == 0 {
		s.CORSOrigins = []string{defaultCORSOriginDash, defaultCORSOriginAPI}
	}
}

func setDatabaseDefaults(d *DatabaseConfig) {
	if d.Host == "" {
		d.Host = "localhost"
	}
	if d.Port == 0 {
		d.Port = defaultDatabasePort
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.MaxOpenConns == 0 {
		d.MaxOpenConns = defaultMaxOpenConns
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = defaultMaxIdleConns
	}
	if d.ConnMaxLifetime == 0 {
		d.ConnMaxLifetime = defaultConnMaxLifetime
	}
	if d.MigrationsPath == "" {
		d.MigrationsPath = defaultMigrationsPath
	}
}

func setIngestDefaults(i *IngestConfig) {
	if i.BatchSize == 0 {
		i.BatchSize = defaultIngestBatchSize
	}
	if i.Timeout == 0 {
		i.Timeout = defaultIngestTimeout
	}
	if i.MaxErrors == 0 {
		i.MaxErrors = defaultIngestMaxErrors
	}
	if i.MaxFileSize == 0 {
		i.MaxFileSize = defaultIngestMaxFileMiB * bytesPerMiB
	}
	if len(i.AllowedExtensions) == 0 {
		i.AllowedExtensions = []string{".csv", ".xlsx", ".xls"}
	}
}

func setLookupDefaults(l *LookupConfig) {
	if l.MaxDomains == 0 {
		l.MaxDomains = defaultLookupMaxDomains
	}
	if l.RateLimitRPS == 0 {
		l.RateLimitRPS = defaultLookupRPS
	}
	if l.RateLimitBurst == 0 {
		l.RateLimitBurst = defaultLookupBurst
	}
}

func setFXDefaults(f *FXConfig) {
	if f.FeedURL == "" {
		f.FeedURL = defaultFXFeedURL
	}
	if f.Schedule == "" {
		f.Schedule = defaultFXSchedule
	}
	if f.Timeout == 0 {
		f.Timeout = defaultFXTimeout
	}
	if f.Retries == 0 {
		f.Retries = defaultFXRetries
	}
	if f.RetryDelay == 0 {
		f.RetryDelay = defaultFXRetryDelay
	}
	for i, code := range f.Currencies {
		f.Currencies[i] = strings.ToUpper(strings.TrimSpace(code))
	}
}
