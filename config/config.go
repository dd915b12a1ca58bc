// Package config loads articlehub settings from defaults, an optional YAML
// file and the environment, in that order of precedence (environment wins).
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Configuration validation errors.
var (
	ErrInvalidValue       = errors.New("invalid value")
	ErrInvalidPort        = errors.New("server.port must be between 1 and 65535")
	ErrMissingDatabaseURL = errors.New("database.url is required")
	ErrInvalidBlobBackend = errors.New("blob.backend must be 'local' or 's3'")
	ErrMissingUploadDir   = errors.New("blob.upload_dir is required for the local backend")
	ErrMissingBucket      = errors.New("blob.s3_bucket is required for the s3 backend")
	ErrInvalidSessionTTL  = errors.New("auth.session_ttl must be positive")
	ErrInvalidUploadLimit = errors.New("server.max_upload_bytes must be positive")
	ErrInvalidLoginRate   = errors.New("server.login_rate_per_minute must be positive")
	ErrMissingKafkaTopic  = errors.New("kafka.topic is required when brokers are set")
	ErrInvalidLogLevel    = errors.New("logging.level must be one of: debug, info, warn, error")
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Blob     BlobConfig     `mapstructure:"blob"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Logging  LoggingConfig  `mapstructure:"logging"`

	// SecretGenerated is set when no secret was configured and one was made up
	// for this process; sessions then do not survive a restart.
	SecretGenerated bool `mapstructure:"-"`
}

type ServerConfig struct {
	Port               int      `mapstructure:"port"`
	CORSOrigins        []string `mapstructure:"cors_origins"`
	CookieSecure       bool     `mapstructure:"cookie_secure"`
	MaxUploadBytes     int64    `mapstructure:"max_upload_bytes"`
	LoginRatePerMinute int      `mapstructure:"login_rate_per_minute"`
	FeedTitle          string   `mapstructure:"feed_title"`
	FeedLink           string   `mapstructure:"feed_link"`
}

type DatabaseConfig struct {
	URL                 string `mapstructure:"url"`
	MaxConns            int    `mapstructure:"max_conns"`
	AutoMigrate         bool   `mapstructure:"auto_migrate"`
	CaseSensitiveSearch bool   `mapstructure:"search_case_sensitive"`
}

type BlobConfig struct {
	Backend        string `mapstructure:"backend"`
	UploadDir      string `mapstructure:"upload_dir"`
	S3Bucket       string `mapstructure:"s3_bucket"`
	S3Prefix       string `mapstructure:"s3_prefix"`
	S3Region       string `mapstructure:"s3_region"`
	S3Profile      string `mapstructure:"s3_profile"`
	S3Endpoint     string `mapstructure:"s3_endpoint"`
	S3UsePathStyle bool   `mapstructure:"s3_use_path_style"`
}

type AuthConfig struct {
	SecretKey     string        `mapstructure:"secret_key"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// envBindings maps configuration keys to the flat environment variables
// that override them.
var envBindings = []struct{ key, env string }{
	{"server.port", "PORT"},
	{"server.cors_origins", "CORS_ORIGINS"},
	{"server.cookie_secure", "COOKIE_SECURE"},
	{"server.max_upload_bytes", "MAX_UPLOAD_BYTES"},
	{"server.login_rate_per_minute", "LOGIN_RATE_PER_MINUTE"},
	{"server.feed_title", "FEED_TITLE"},
	{"server.feed_link", "FEED_LINK"},

	{"database.url", "DATABASE_URL"},
	{"database.max_conns", "DATABASE_MAX_CONNS"},
	{"database.auto_migrate", "AUTO_MIGRATE"},
	{"database.search_case_sensitive", "SEARCH_CASE_SENSITIVE"},

	{"blob.backend", "BLOB_BACKEND"},
	{"blob.upload_dir", "UPLOAD_DIR"},
	{"blob.s3_bucket", "S3_BUCKET"},
	{"blob.s3_prefix", "S3_PREFIX"},
	{"blob.s3_region", "S3_REGION"},
	{"blob.s3_profile", "S3_PROFILE"},
	{"blob.s3_endpoint", "S3_ENDPOINT"},
	{"blob.s3_use_path_style", "S3_USE_PATH_STYLE"},

	{"auth.secret_key", "SECRET_KEY"},
	{"auth.session_ttl", "SESSION_TTL"},
	{"auth.redis_addr", "REDIS_ADDR"},
	{"auth.redis_password", "REDIS_PASSWORD"},
	{"auth.redis_db", "REDIS_DB"},

	{"kafka.brokers", "KAFKA_BROKERS"},
	{"kafka.topic", "KAFKA_TOPIC"},
	{"kafka.group_id", "KAFKA_GROUP_ID"},

	{"logging.level", "LOG_LEVEL"},
}

// setDefaults configures the built-in configuration: SQLite and local
// uploads, no Redis, no Kafka.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.cookie_secure", false)
	v.SetDefault("server.max_upload_bytes", int64(32<<20))
	v.SetDefault("server.login_rate_per_minute", 10)
	v.SetDefault("server.feed_title", "articlehub")
	v.SetDefault("server.feed_link", "http://localhost:5000")

	v.SetDefault("database.url", "sqlite://articles.db")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.search_case_sensitive", false)

	v.SetDefault("blob.backend", "local")
	v.SetDefault("blob.upload_dir", "uploads")
	v.SetDefault("blob.s3_bucket", "")
	v.SetDefault("blob.s3_prefix", "")
	v.SetDefault("blob.s3_region", "")
	v.SetDefault("blob.s3_profile", "")
	v.SetDefault("blob.s3_endpoint", "")
	v.SetDefault("blob.s3_use_path_style", false)

	v.SetDefault("auth.secret_key", "")
	v.SetDefault("auth.session_ttl", 24*time.Hour)
	v.SetDefault("auth.redis_addr", "")
	v.SetDefault("auth.redis_password", "")
	v.SetDefault("auth.redis_db", 0)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "articlehub.articles")
	v.SetDefault("kafka.group_id", "articlehub-events")

	v.SetDefault("logging.level", "info")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for _, b := range envBindings {
		// BindEnv only errors without a key.
		_ = v.BindEnv(b.key, b.env)
	}
	return v
}

// Default returns the built-in configuration.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads .env (if present), then CONFIG_FILE (if set), then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFrom(os.Getenv("CONFIG_FILE"))
}

// LoadFrom layers defaults, the YAML file at path (skipped when empty) and
// the environment. Empty environment variables count as unset.
func LoadFrom(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	if cfg.Auth.SecretKey == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.Auth.SecretKey = secret
		cfg.SecretGenerated = true
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	cfg.Server.CORSOrigins = cleanList(cfg.Server.CORSOrigins)
	cfg.Kafka.Brokers = cleanList(cfg.Kafka.Brokers)
	return &cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return ErrInvalidPort
	}
	if c.Server.MaxUploadBytes <= 0 {
		return ErrInvalidUploadLimit
	}
	if c.Server.LoginRatePerMinute <= 0 {
		return ErrInvalidLoginRate
	}
	if c.Database.URL == "" {
		return ErrMissingDatabaseURL
	}

	switch c.Blob.Backend {
	case "local":
		if c.Blob.UploadDir == "" {
			return ErrMissingUploadDir
		}
	case "s3":
		if c.Blob.S3Bucket == "" {
			return ErrMissingBucket
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBlobBackend, c.Blob.Backend)
	}

	if c.Auth.SessionTTL <= 0 {
		return ErrInvalidSessionTTL
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return ErrMissingKafkaTopic
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

// cleanList trims comma-separated entries coming from the environment.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, part := range in {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
