package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/telhawk-systems/adminauth/internal/httputil"
)

const EnvPrefix = "ADMINAUTH"

// minIterations is the PBKDF2 floor accepted outside the memory backend.
const minIterations = 10_000

type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	NATS     NATSConfig     `mapstructure:"nats" yaml:"nats"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	// AllowedOrigins enables CORS for browser consoles; empty disables it.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// TrustedProxies lists the CIDRs or IPs allowed to set forwarding headers.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	AuditSecret       string        `mapstructure:"audit_secret"`
	SessionTimeout    time.Duration `mapstructure:"session_timeout"`
	RefreshThreshold  time.Duration `mapstructure:"refresh_threshold"`
	PBKDF2Iterations  int           `mapstructure:"pbkdf2_iterations"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	LockoutDuration   time.Duration `mapstructure:"lockout_duration"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	MinPasswordLength int           `mapstructure:"min_password_length"`
}

type DatabaseConfig struct {
	Type     string         `mapstructure:"type" yaml:"type"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Database string `mapstructure:"database" yaml:"database"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

type RedisConfig struct {
	URL         string        `mapstructure:"url"`
	Enabled     bool          `mapstructure:"enabled"`
	LoginLimit  int           `mapstructure:"login_limit"`
	LoginWindow time.Duration `mapstructure:"login_window"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url" yaml:"url"`
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	SubjectPrefix string `mapstructure:"subject_prefix" yaml:"subject_prefix"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.audit_secret", "")
	v.SetDefault("auth.session_timeout", "1h")
	v.SetDefault("auth.refresh_threshold", "5m")
	v.SetDefault("auth.pbkdf2_iterations", 120_000)
	v.SetDefault("auth.max_attempts", 5)
	v.SetDefault("auth.lockout_duration", "30m")
	v.SetDefault("auth.sweep_interval", "10m")
	v.SetDefault("auth.min_password_length", 8)

	v.SetDefault("database.type", "memory")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "adminauth")
	v.SetDefault("database.postgres.user", "adminauth")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.login_limit", 20)
	v.SetDefault("redis.login_window", "1m")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.subject_prefix", "adminauth")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads defaults, then the config file, then ADMINAUTH_* environment
// variables. A missing config file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/adminauth")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var problems []string

	switch c.Database.Type {
	case "memory":
	case "postgres":
		if c.Auth.JWTSecret == "" {
			problems = append(problems, "auth.jwt_secret is required")
		}
		if c.Auth.AuditSecret == "" {
			problems = append(problems, "auth.audit_secret is required")
		}
		if c.Auth.PBKDF2Iterations < minIterations {
			problems = append(problems, fmt.Sprintf("auth.pbkdf2_iterations must be at least %d", minIterations))
		}
	default:
		problems = append(problems, fmt.Sprintf("database.type must be memory or postgres, got %q", c.Database.Type))
	}

	for name, d := range map[string]time.Duration{
		"auth.session_timeout":   c.Auth.SessionTimeout,
		"auth.refresh_threshold": c.Auth.RefreshThreshold,
		"auth.lockout_duration":  c.Auth.LockoutDuration,
		"auth.sweep_interval":    c.Auth.SweepInterval,
	} {
		if d <= 0 {
			problems = append(problems, name+" must be positive")
		}
	}
	if c.Auth.RefreshThreshold >= c.Auth.SessionTimeout {
		problems = append(problems, "auth.refresh_threshold must be shorter than auth.session_timeout")
	}
	if c.Auth.MaxAttempts < 1 {
		problems = append(problems, "auth.max_attempts must be at least 1")
	}
	if c.Auth.PBKDF2Iterations < 1 {
		problems = append(problems, "auth.pbkdf2_iterations must be positive")
	}
	if c.Auth.MinPasswordLength < 8 {
		problems = append(problems, "auth.min_password_length must be at least 8")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, "server.port must be between 1 and 65535")
	}
	if _, err := httputil.ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		problems = append(problems, "server.trusted_proxies: "+err.Error())
	}
	if c.Redis.Enabled && (c.Redis.LoginLimit < 1 || c.Redis.LoginWindow <= 0) {
		problems = append(problems, "redis.login_limit and redis.login_window must be positive")
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// DatabaseURL returns the postgres:// URL used by pgx and golang-migrate.
func (c *Config) DatabaseURL() string {
	p := c.Database.Postgres
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     p.Host + ":" + strconv.Itoa(p.Port),
		Path:     "/" + p.Database,
		RawQuery: url.Values{"sslmode": []string{p.SSLMode}}.Encode(),
	}
	return u.String()
}

const masked = "********"

func mask(s string) string {
	if s == "" {
		return ""
	}
	return masked
}

// Redacted returns a copy with secrets masked.
func (c *Config) Redacted() *Config {
	r := *c
	r.Auth.JWTSecret = mask(c.Auth.JWTSecret)
	r.Auth.AuditSecret = mask(c.Auth.AuditSecret)
	r.Database.Postgres.Password = mask(c.Database.Postgres.Password)
	return &r
}

// YAML renders the redacted effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}

// Durations render as "15s" rather than nanoseconds.

func (s ServerConfig) MarshalYAML() (interface{}, error) {
	return struct {
		Port           int      `yaml:"port"`
		ReadTimeout    string   `yaml:"read_timeout"`
		WriteTimeout   string   `yaml:"write_timeout"`
		IdleTimeout    string   `yaml:"idle_timeout"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		TrustedProxies []string `yaml:"trusted_proxies"`
	}{
		s.Port, s.ReadTimeout.String(), s.WriteTimeout.String(), s.IdleTimeout.String(),
		s.AllowedOrigins, s.TrustedProxies,
	}, nil
}

func (a AuthConfig) MarshalYAML() (interface{}, error) {
	return struct {
		JWTSecret         string `yaml:"jwt_secret"`
		AuditSecret       string `yaml:"audit_secret"`
		SessionTimeout    string `yaml:"session_timeout"`
		RefreshThreshold  string `yaml:"refresh_threshold"`
		PBKDF2Iterations  int    `yaml:"pbkdf2_iterations"`
		MaxAttempts       int    `yaml:"max_attempts"`
		LockoutDuration   string `yaml:"lockout_duration"`
		SweepInterval     string `yaml:"sweep_interval"`
		MinPasswordLength int    `yaml:"min_password_length"`
	}{
		a.JWTSecret, a.AuditSecret, a.SessionTimeout.String(), a.RefreshThreshold.String(),
		a.PBKDF2Iterations, a.MaxAttempts, a.LockoutDuration.String(), a.SweepInterval.String(),
		a.MinPasswordLength,
	}, nil
}

func (r RedisConfig) MarshalYAML() (interface{}, error) {
	return struct {
		URL         string `yaml:"url"`
		Enabled     bool   `yaml:"enabled"`
		LoginLimit  int    `yaml:"login_limit"`
		LoginWindow string `yaml:"login_window"`
	}{r.URL, r.Enabled, r.LoginLimit, r.LoginWindow.String()}, nil
}
