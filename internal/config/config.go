// internal/config/config.go
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported storage backends.
const (
	DBTypePostgres = "postgres"
	DBTypeMongo    = "mongo"
	DBTypeMemory   = "memory"
)

// Hide resurrection policies, see InboxConfig.HideResurrection.
const (
	HideResurrectNever    = "never"
	HideResurrectIncoming = "incoming"
	HideResurrectAny      = "any"
)

const devJWTSecret = "recruit-inbox-dev-secret"

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	MetricsEnabled  bool          `mapstructure:"metrics_enabled"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration settings
type DatabaseConfig struct {
	Type          string `mapstructure:"type"` // "postgres", "mongo" or "memory"
	URI           string `mapstructure:"uri"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Name          string `mapstructure:"name"`
	SSLMode       string `mapstructure:"ssl_mode"`
	MongoDatabase string `mapstructure:"mongo_database"`
}

// AuthConfig configures validation of session tokens issued elsewhere.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// InboxConfig tunes the messaging engine.
type InboxConfig struct {
	MaxContentLength int           `mapstructure:"max_content_length"`
	ClockSkew        time.Duration `mapstructure:"clock_skew"`
	// HideResurrection decides whether a message newer than a hide action
	// brings the thread back: "never", "incoming" or "any".
	HideResurrection         string        `mapstructure:"hide_resurrection"`
	ProfileCacheTTL          time.Duration `mapstructure:"profile_cache_ttl"`
	ProfileLookupConcurrency int           `mapstructure:"profile_lookup_concurrency"`
	SessionBuffer            int           `mapstructure:"session_buffer"`
}

// LoggerConfig holds logging output and rotation settings
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "text" or "json"
	Directory  string `mapstructure:"directory"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Config holds the complete application configuration
type Config struct {
	Server         *ServerConfig   `mapstructure:"server"`
	Database       *DatabaseConfig `mapstructure:"database"`
	Auth           *AuthConfig     `mapstructure:"auth"`
	Inbox          *InboxConfig    `mapstructure:"inbox"`
	Logger         *LoggerConfig   `mapstructure:"logger"`
	AllowedOrigins []string        `mapstructure:"allowed_origins"`
	Debug          bool            `mapstructure:"debug"`
}

// DefaultConfig provides default server settings
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Port:            8080,
		Host:            "0.0.0.0",
		MetricsEnabled:  true,
		RequestTimeout:  5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// DefaultDatabaseConfig provides default database settings
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Type:          DBTypePostgres,
		Port:          5432,
		SSLMode:       "require",
		Name:          "postgres",
		MongoDatabase: "recruit_inbox",
	}
}

// DefaultInboxConfig provides the engine defaults.
func DefaultInboxConfig() *InboxConfig {
	return &InboxConfig{
		MaxContentLength:         2000,
		ClockSkew:                5 * time.Second,
		HideResurrection:         HideResurrectIncoming,
		ProfileCacheTTL:          time.Minute,
		ProfileLookupConcurrency: 8,
		SessionBuffer:            256,
	}
}

func setDefaults(v *viper.Viper) {
	srv := DefaultConfig()
	v.SetDefault("server.port", srv.Port)
	v.SetDefault("server.host", srv.Host)
	v.SetDefault("server.metrics_enabled", srv.MetricsEnabled)
	v.SetDefault("server.request_timeout", srv.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", srv.ShutdownTimeout)

	db := DefaultDatabaseConfig()
	v.SetDefault("database.type", db.Type)
	v.SetDefault("database.port", db.Port)
	v.SetDefault("database.ssl_mode", db.SSLMode)
	v.SetDefault("database.name", db.Name)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.mongo_database", db.MongoDatabase)

	v.SetDefault("auth.token_ttl", 24*time.Hour)

	inbox := DefaultInboxConfig()
	v.SetDefault("inbox.max_content_length", inbox.MaxContentLength)
	v.SetDefault("inbox.clock_skew", inbox.ClockSkew)
	v.SetDefault("inbox.hide_resurrection", inbox.HideResurrection)
	v.SetDefault("inbox.profile_cache_ttl", inbox.ProfileCacheTTL)
	v.SetDefault("inbox.profile_lookup_concurrency", inbox.ProfileLookupConcurrency)
	v.SetDefault("inbox.session_buffer", inbox.SessionBuffer)

	v.SetDefault("logger.level", "INFO")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 30)
	v.SetDefault("logger.max_age", 90)
	v.SetDefault("logger.compress", true)

	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("debug", false)
}

// envBindings keeps the flat environment variable names used by deployments.
var envBindings = map[string]string{
	"server.port":                      "PORT",
	"server.host":                      "HOST",
	"server.metrics_enabled":           "METRICS_ENABLED",
	"server.request_timeout":           "REQUEST_TIMEOUT",
	"server.shutdown_timeout":          "SHUTDOWN_TIMEOUT",
	"database.type":                    "DB_TYPE",
	"database.uri":                     "DATABASE_URL",
	"database.host":                    "DB_HOST",
	"database.port":                    "DB_PORT",
	"database.user":                    "DB_USER",
	"database.password":                "DB_PASSWORD",
	"database.name":                    "DB_NAME",
	"database.ssl_mode":                "DB_SSL_MODE",
	"database.mongo_database":          "MONGO_DATABASE",
	"auth.jwt_secret":                  "JWT_SECRET",
	"auth.token_ttl":                   "JWT_TOKEN_TTL",
	"inbox.max_content_length":         "INBOX_MAX_CONTENT_LENGTH",
	"inbox.clock_skew":                 "INBOX_CLOCK_SKEW",
	"inbox.hide_resurrection":          "INBOX_HIDE_RESURRECTION",
	"inbox.profile_cache_ttl":          "INBOX_PROFILE_CACHE_TTL",
	"inbox.profile_lookup_concurrency": "INBOX_PROFILE_LOOKUP_CONCURRENCY",
	"inbox.session_buffer":             "INBOX_SESSION_BUFFER",
	"logger.level":                     "LOG_LEVEL",
	"logger.format":                    "LOG_FORMAT",
	"logger.directory":                 "LOG_DIR",
	"allowed_origins":                  "ALLOWED_ORIGINS",
	"debug":                            "DEBUG",
}

// LoadConfig loads configuration from an optional YAML file, environment
// variables and a .env file, and applies defaults.
func LoadConfig(configPath string) (*Config, error) {
	loadDotEnv()

	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if configPath == "" {
		configPath = os.Getenv("INBOX_CONFIG")
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		slog.Info("Using config file", "path", v.ConfigFileUsed())
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Try to load .env file from multiple possible locations
func loadDotEnv() {
	envLocations := []string{
		".env",       // Current directory
		"../../.env", // Project root when running from cmd/engine
		filepath.Join(os.Getenv("GOPATH"), "src/recruit-inbox/.env"),
	}
	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			return
		}
	}
}

// finalize fills derived settings and validates the result.
func (c *Config) finalize() error {
	if c.Server == nil {
		c.Server = DefaultConfig()
	}
	if c.Database == nil {
		c.Database = DefaultDatabaseConfig()
	}
	if c.Inbox == nil {
		c.Inbox = DefaultInboxConfig()
	}
	if c.Auth == nil {
		c.Auth = &AuthConfig{TokenTTL: 24 * time.Hour}
	}
	if c.Logger == nil {
		c.Logger = &LoggerConfig{Level: "INFO", Format: "text"}
	}

	origins := make([]string, 0, len(c.AllowedOrigins))
	for _, origin := range c.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c.AllowedOrigins = origins

	c.Database.Type = strings.ToLower(strings.TrimSpace(c.Database.Type))
	if c.Database.Type == DBTypePostgres {
		if c.Database.URI != "" {
			c.Database.SSLMode = getSSLModeFromURI(c.Database.URI)
		} else {
			if c.Database.User == "" {
				return fmt.Errorf("DB_USER environment variable is required when DB_TYPE is postgres and DATABASE_URL is not set")
			}
			if c.Database.Password == "" {
				return fmt.Errorf("DB_PASSWORD environment variable is required when DB_TYPE is postgres and DATABASE_URL is not set")
			}
			c.Database.URI = fmt.Sprintf(
				"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
				c.Database.User,
				c.Database.Password,
				c.Database.Host,
				c.Database.Port,
				c.Database.Name,
				c.Database.SSLMode,
			)
		}
	}

	if c.Auth.JWTSecret == "" && c.Debug {
		slog.Warn("JWT_SECRET not set, using the development secret")
		c.Auth.JWTSecret = devJWTSecret
	}

	return c.Validate()
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case DBTypePostgres, DBTypeMemory:
	case DBTypeMongo:
		if c.Database.URI == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_TYPE is mongo")
		}
	default:
		return fmt.Errorf("unsupported DB_TYPE %q", c.Database.Type)
	}

	switch c.Inbox.HideResurrection {
	case HideResurrectNever, HideResurrectIncoming, HideResurrectAny:
	default:
		return fmt.Errorf("unsupported hide resurrection policy %q", c.Inbox.HideResurrection)
	}

	if c.Inbox.MaxContentLength <= 0 {
		return fmt.Errorf("inbox.max_content_length must be positive, got %d", c.Inbox.MaxContentLength)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

// Helper function to extract sslmode from a DSN, defaults to "require"
func getSSLModeFromURI(uri string) string {
	parts := strings.SplitN(uri, "?", 2)
	if len(parts) == 2 {
		for _, param := range strings.Split(parts[1], "&") {
			kv := strings.SplitN(param, "=", 2)
			if len(kv) == 2 && kv[0] == "sslmode" {
				return kv[1]
			}
		}
	}
	return "require"
}
