package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
)

// BackendMode selects which key backend variant a session talks to.
type BackendMode string

const (
	ModeAPI   BackendMode = "api"
	ModeStore BackendMode = "store"
)

type Config struct {
	AppEnv  string `mapstructure:"APP_ENV"`
	AppName string `mapstructure:"APP_NAME"`

	// Backend forces a variant. Empty means auto-detect: API settings win
	// over a database DSN, matching how the operator tool picks a backend
	// from its environment.
	Backend string `mapstructure:"BACKEND"`

	API struct {
		BaseURL string        `mapstructure:"BASE_URL"`
		Key     string        `mapstructure:"KEY"`
		Timeout time.Duration `mapstructure:"TIMEOUT"`
	} `mapstructure:"API"`

	Database struct {
		DSN            string `mapstructure:"DSN"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConn     int           `mapstructure:"MAX_OPEN_CONN"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "keyctl")
	v.SetDefault("API.TIMEOUT", 15*time.Second)

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, the environment alone is enough.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Mode resolves the backend variant for this session. It is decided once
// at startup; the rest of the engine only sees the Backend interface.
func (c *Config) Mode() (BackendMode, error) {
	switch BackendMode(c.Backend) {
	case ModeAPI, ModeStore:
		return BackendMode(c.Backend), nil
	case "":
	default:
		return "", fmt.Errorf("unknown backend mode %q", c.Backend)
	}

	if c.API.BaseURL != "" && c.API.Key != "" {
		return ModeAPI, nil
	}
	if c.Database.DSN != "" {
		return ModeStore, nil
	}
	return "", fmt.Errorf("no backend configured: set API_BASE_URL and API_KEY, or DATABASE_DSN")
}
