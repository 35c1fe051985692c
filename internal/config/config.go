// Package config loads the recognised environment configuration for the
// token pipeline using viper.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every option recognised by the core.
type Config struct {
	RetentionDays           int
	WALFilePath             string
	WALMaxSizeBytes         int64
	ReplayInterval          time.Duration
	DefaultProviderLimit    int
	ProviderConcurrency     map[string]int // PROVIDER -> override, keys lower-cased
	BreakerFailureThreshold int
	BreakerCooldown         time.Duration
	BufferSizeTrigger       int
	BufferAgeTrigger        time.Duration
	DBPath                  string
	ListenAddr              string
	ShutdownGrace           time.Duration
}

// providerDefaults holds the fixed per-provider concurrency defaults.
var providerDefaults = map[string]int{
	"openai": 5,
}

const defaultOtherProviderLimit = 3

// Load reads configuration from the process environment via viper,
// falling back to fixed defaults for anything unset.
func Load() *Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("RETENTION_DAYS", 180)
	v.SetDefault("WAL_FILE_PATH", "tokens.wal")
	v.SetDefault("WAL_MAX_SIZE_BYTES", int64(100*1024*1024))
	v.SetDefault("REPLAY_INTERVAL_SECONDS", 10)
	v.SetDefault("DB_PATH", "langdock.db")
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("SHUTDOWN_GRACE_SECONDS", 15)

	cfg := &Config{
		RetentionDays:           v.GetInt("RETENTION_DAYS"),
		WALFilePath:             v.GetString("WAL_FILE_PATH"),
		WALMaxSizeBytes:         v.GetInt64("WAL_MAX_SIZE_BYTES"),
		ReplayInterval:          time.Duration(v.GetInt("REPLAY_INTERVAL_SECONDS")) * time.Second,
		DefaultProviderLimit:    defaultOtherProviderLimit,
		ProviderConcurrency:     map[string]int{},
		BreakerFailureThreshold: 3,
		BreakerCooldown:         30 * time.Second,
		BufferSizeTrigger:       16,
		BufferAgeTrigger:        time.Second,
		DBPath:                  v.GetString("DB_PATH"),
		ListenAddr:              v.GetString("LISTEN_ADDR"),
		ShutdownGrace:           time.Duration(v.GetInt("SHUTDOWN_GRACE_SECONDS")) * time.Second,
	}

	for provider := range providerDefaults {
		cfg.ProviderConcurrency[provider] = providerDefaults[provider]
	}

	// {PROVIDER}_CONCURRENCY overrides, read only for the four providers
	// listed here; variables for any other provider name are not read.
	for _, provider := range []string{"openai", "anthropic", "google", "deepseek"} {
		key := strings.ToUpper(provider) + "_CONCURRENCY"
		if v.IsSet(key) {
			cfg.ProviderConcurrency[provider] = v.GetInt(key)
		}
	}

	return cfg
}

// ConcurrencyFor returns the permit limit configured for a provider,
// falling back to the default-other-provider limit.
func (c *Config) ConcurrencyFor(provider string) int {
	if n, ok := c.ProviderConcurrency[strings.ToLower(provider)]; ok {
		return n
	}
	return c.DefaultProviderLimit
}
