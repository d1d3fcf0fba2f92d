package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "DROP"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "drop.db"
	defaultLogLevel      = "info"
	defaultTimezone      = "America/New_York"
	defaultDropSize      = 5
	defaultCacheTTL      = 300
	defaultPendingPage   = 10
	defaultApprovedLimit = 20
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress     string
	DatabasePath    string
	LogLevel        string
	AdminSecret     string
	CORSOrigins     []string
	Timezone        string
	DropSize        int
	DropCacheTTL    time.Duration
	PendingPageSize int
	ApprovedPreview int
	NotifyURL       string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("cors.origins", []string{})
	configViper.SetDefault("drop.timezone", defaultTimezone)
	configViper.SetDefault("drop.size", defaultDropSize)
	configViper.SetDefault("drop.cache_ttl_seconds", defaultCacheTTL)
	configViper.SetDefault("admin.pending_page_size", defaultPendingPage)
	configViper.SetDefault("admin.approved_preview", defaultApprovedLimit)
	configViper.SetDefault("notify.url", "")
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		DatabasePath:    configViper.GetString("database.path"),
		LogLevel:        configViper.GetString("log.level"),
		AdminSecret:     configViper.GetString("admin.secret"),
		CORSOrigins:     configViper.GetStringSlice("cors.origins"),
		Timezone:        configViper.GetString("drop.timezone"),
		DropSize:        configViper.GetInt("drop.size"),
		DropCacheTTL:    time.Duration(configViper.GetInt("drop.cache_ttl_seconds")) * time.Second,
		PendingPageSize: configViper.GetInt("admin.pending_page_size"),
		ApprovedPreview: configViper.GetInt("admin.approved_preview"),
		NotifyURL:       configViper.GetString("notify.url"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AdminSecret) == "" {
		return fmt.Errorf("admin.secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.Timezone) == "" {
		return fmt.Errorf("drop.timezone is required")
	}
	if c.DropSize <= 0 {
		return fmt.Errorf("drop.size must be positive")
	}
	if c.DropCacheTTL <= 0 {
		return fmt.Errorf("drop.cache_ttl_seconds must be positive")
	}
	return nil
}
