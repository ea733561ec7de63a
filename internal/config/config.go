// Package config loads the marketplace configuration: struct defaults, then
// an optional YAML file, then mapped environment variables (a .env file in
// the working directory is loaded into the environment first).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const PathEnvVar = "CONFIG_PATH"

var DefaultPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Store   StoreConfig   `koanf:"store"`
	Upload  UploadConfig  `koanf:"upload"`
	AI      AIConfig      `koanf:"ai"`
	Cache   CacheConfig   `koanf:"cache"`
	Auth    AuthConfig    `koanf:"auth"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
}

type ServerConfig struct {
	Port            string        `koanf:"port"`
	Environment     string        `koanf:"environment"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	StaticDir       string        `koanf:"static_dir"`
	WellKnownDir    string        `koanf:"well_known_dir"`
}

type StoreConfig struct {
	Driver        string `koanf:"driver"`
	ProductsPath  string `koanf:"products_path"`
	MaterialsPath string `koanf:"materials_path"`
	DatabaseURL   string `koanf:"database_url"`
	MaxConns      int32  `koanf:"max_conns"`
}

type UploadConfig struct {
	PhotoDir       string        `koanf:"photo_dir"`
	MaxBytes       int64         `koanf:"max_bytes"`
	RateLimit      int           `koanf:"rate_limit"`
	RateLimitEvery time.Duration `koanf:"rate_limit_window"`
}

type AIConfig struct {
	APIKey         string        `koanf:"api_key"`
	BaseURL        string        `koanf:"base_url"`
	Model          string        `koanf:"model"`
	Timeout        time.Duration `koanf:"timeout"`
	RateLimit      int           `koanf:"rate_limit"`
	RateLimitEvery time.Duration `koanf:"rate_limit_window"`
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`
	BreakerTrips   uint32        `koanf:"breaker_trips"`
}

type CacheConfig struct {
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	TTL           time.Duration `koanf:"ttl"`
}

// AuthConfig.Users holds "name:password" uploader entries.
type AuthConfig struct {
	Enabled        bool          `koanf:"enabled"`
	JWTSecret      string        `koanf:"jwt_secret"`
	TokenTTL       time.Duration `koanf:"token_ttl"`
	Users          []string      `koanf:"users"`
	LoginRateLimit int           `koanf:"login_rate_limit"`
	LoginWindow    time.Duration `koanf:"login_window"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Token   string `koanf:"token"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "5000",
			Environment:     "development",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    90 * time.Second,
			IdleTimeout:     90 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			StaticDir:       "static",
			WellKnownDir:    ".well-known",
		},
		Store: StoreConfig{
			Driver:        "csv",
			ProductsPath:  "products.csv",
			MaterialsPath: "materiales.csv",
			MaxConns:      5,
		},
		Upload: UploadConfig{
			PhotoDir:       "static/fotos",
			MaxBytes:       10 << 20,
			RateLimit:      20,
			RateLimitEvery: time.Minute,
		},
		AI: AIConfig{
			BaseURL:        "https://generativelanguage.googleapis.com",
			Model:          "gemini-2.0-flash",
			Timeout:        30 * time.Second,
			RateLimit:      30,
			RateLimitEvery: time.Minute,
			BreakerTimeout: time.Minute,
			BreakerTrips:   5,
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Auth: AuthConfig{
			TokenTTL:       12 * time.Hour,
			LoginRateLimit: 5,
			LoginWindow:    time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return load(findConfigFile())
}

func load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := splitLists(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var envKeys = map[string]string{
	"port":              "server.port",
	"app_env":           "server.environment",
	"cors_origins":      "server.cors_origins",
	"static_dir":        "server.static_dir",
	"well_known_dir":    "server.well_known_dir",
	"store_driver":      "store.driver",
	"products_csv":      "store.products_path",
	"materials_csv":     "store.materials_path",
	"database_url":      "store.database_url",
	"db_max_conns":      "store.max_conns",
	"photo_dir":         "upload.photo_dir",
	"upload_max_bytes":  "upload.max_bytes",
	"upload_rate_limit": "upload.rate_limit",
	"gemini_api_key":    "ai.api_key",
	"gemini_base_url":   "ai.base_url",
	"gemini_model":      "ai.model",
	"ai_timeout":        "ai.timeout",
	"ai_rate_limit":     "ai.rate_limit",
	"redis_addr":        "cache.redis_addr",
	"redis_password":    "cache.redis_password",
	"redis_db":          "cache.redis_db",
	"cache_ttl":         "cache.ttl",
	"auth_enabled":      "auth.enabled",
	"jwt_secret":        "auth.jwt_secret",
	"auth_token_ttl":    "auth.token_ttl",
	"uploader_users":    "auth.users",
	"metrics_enabled":   "metrics.enabled",
	"metrics_token":     "metrics.token",
	"log_level":         "log.level",
}

// envKey maps a process environment variable onto a config path; unmapped
// variables are dropped.
func envKey(key string) string {
	return envKeys[strings.ToLower(key)]
}

var listKeys = []string{"server.cors_origins", "auth.users"}

func splitLists(k *koanf.Koanf) error {
	for _, path := range listKeys {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := make([]string, 0, 4)
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

func (c *Config) AIEnabled() bool {
	return c.AI.APIKey != ""
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case "csv":
		if c.Store.ProductsPath == "" || c.Store.MaterialsPath == "" {
			errs = append(errs, errors.New("store: csv driver needs products_path and materials_path"))
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("store: postgres driver needs database_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("store: unknown driver %q", c.Store.Driver))
	}

	if c.Upload.PhotoDir == "" {
		errs = append(errs, errors.New("upload: photo_dir is required"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload: max_bytes must be positive"))
	}

	if c.Auth.Enabled {
		if len(c.Auth.JWTSecret) < 32 {
			errs = append(errs, errors.New("auth: jwt_secret must be at least 32 chars"))
		}
		if len(c.Auth.Users) == 0 {
			errs = append(errs, errors.New("auth: at least one uploader user is required"))
		}
		for _, u := range c.Auth.Users {
			if name, pass, ok := strings.Cut(u, ":"); !ok || name == "" || pass == "" {
				errs = append(errs, fmt.Errorf("auth: malformed user entry %q", maskUser(u)))
			}
		}
	}

	return errors.Join(errs...)
}

func maskUser(entry string) string {
	name, _, _ := strings.Cut(entry, ":")
	return name + ":***"
}
