// config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type DBConfig struct {
	Driver       string
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
	Migrate      bool
}

type CacheConfig struct {
	FetchTimeout    time.Duration
	PrefetchTimeout time.Duration
	MaxAttempts     int
}

type Config struct {
	Env      string
	Telegram struct {
		Token string
	}
	DB   DBConfig
	Auth struct {
		JWTSecret string
		Issuer    string
	}
	GPT struct {
		APIKey  string
		Model   string
		BaseURL string
	}
	Server struct {
		Port           string
		AllowedOrigins []string
	}
	Cache       CacheConfig
	Preferences struct {
		Dir string
	}
	ShutdownTimeout time.Duration
}

// Load loads the configuration
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")
	v.AddConfigPath("$HOME/.macro-tracker")

	setDefaults(v)

	// DB_HOST overrides db.host and so on
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
		return fromEnv(), nil
	}

	// Process any ${ENV_VAR} syntax in the config values
	for _, key := range v.AllKeys() {
		value := v.GetString(key)
		if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
			envVar := strings.TrimPrefix(strings.TrimSuffix(value, "}"), "${")
			if envValue := os.Getenv(envVar); envValue != "" {
				v.Set(key, envValue)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Env", "development")
	v.SetDefault("ShutdownTimeout", 10*time.Second)
	v.SetDefault("GPT.Model", "gpt-4o-mini")
	v.SetDefault("Server.Port", "8080")
	v.SetDefault("Server.AllowedOrigins", []string{"*"})
	v.SetDefault("DB.Driver", "postgres")
	v.SetDefault("DB.Host", "localhost")
	v.SetDefault("DB.Port", "5432")
	v.SetDefault("DB.SSLMode", "disable")
	v.SetDefault("DB.MaxOpenConns", 20)
	v.SetDefault("DB.MaxIdleConns", 10)
	v.SetDefault("DB.ConnLifetime", 5*time.Minute)
	v.SetDefault("DB.Migrate", true)
	v.SetDefault("Cache.FetchTimeout", 10*time.Second)
	v.SetDefault("Cache.PrefetchTimeout", 15*time.Second)
	v.SetDefault("Cache.MaxAttempts", 3)
	v.SetDefault("Preferences.Dir", "./data/prefs")
}

// fromEnv builds a config purely from environment variables when no config
// file is present.
func fromEnv() *Config {
	cfg := &Config{}

	cfg.Env = getEnvOr("ENV", "development")
	cfg.Telegram.Token = os.Getenv("TELEGRAM_TOKEN")
	cfg.DB.Driver = getEnvOr("DB_DRIVER", "postgres")
	cfg.DB.Host = getEnvOr("DB_HOST", "localhost")
	cfg.DB.Port = getEnvOr("DB_PORT", "5432")
	cfg.DB.User = getEnvOr("DB_USER", "postgres")
	cfg.DB.Password = getEnvOr("DB_PASSWORD", "postgres")
	cfg.DB.DBName = getEnvOr("DB_NAME", "macro_tracker")
	cfg.DB.SSLMode = getEnvOr("DB_SSL_MODE", "disable")
	cfg.DB.MaxOpenConns = 20
	cfg.DB.MaxIdleConns = 10
	cfg.DB.ConnLifetime = 5 * time.Minute
	cfg.DB.Migrate = getEnvOr("DB_MIGRATE", "true") == "true"
	cfg.Auth.JWTSecret = os.Getenv("AUTH_JWT_SECRET")
	cfg.Auth.Issuer = os.Getenv("AUTH_ISSUER")
	cfg.GPT.APIKey = os.Getenv("GPT_API_KEY")
	cfg.GPT.Model = getEnvOr("GPT_MODEL", "gpt-4o-mini")
	cfg.GPT.BaseURL = os.Getenv("GPT_BASE_URL")
	cfg.Server.Port = getEnvOr("SERVER_PORT", "8080")
	cfg.Server.AllowedOrigins = strings.Split(getEnvOr("SERVER_ALLOWED_ORIGINS", "*"), ",")
	cfg.Cache.FetchTimeout = getDurationOr("CACHE_FETCH_TIMEOUT", 10*time.Second)
	cfg.Cache.PrefetchTimeout = getDurationOr("CACHE_PREFETCH_TIMEOUT", 15*time.Second)
	cfg.Cache.MaxAttempts = 3
	cfg.Preferences.Dir = getEnvOr("PREFERENCES_DIR", "./data/prefs")
	cfg.ShutdownTimeout = getDurationOr("SHUTDOWN_TIMEOUT", 10*time.Second)

	return cfg
}

// Helper function to get environment variable with default value
func getEnvOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOr(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
