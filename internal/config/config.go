// Package config loads server configuration from defaults, an optional
// TOML file, and STACKFIN_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Forecast ForecastConfig
	Merchant MerchantConfig
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port string
}

// StoreConfig selects and parameterizes the persistence backend.
type StoreConfig struct {
	// Backend is one of "memory", "sqlite", "firestore".
	Backend          string
	SQLitePath       string
	FirestoreProject string
}

// ForecastConfig holds the lookback windows, in days.
type ForecastConfig struct {
	DetectionLookbackDays int
	HistoryLookbackDays   int
}

// MerchantConfig carries alias-table overrides layered on top of the
// built-in defaults: normalized raw string -> canonical name.
type MerchantConfig struct {
	Aliases map[string]string
}

// Load reads configuration from file and env. Env var overrides use
// prefix STACKFIN_ (e.g. STACKFIN_STORE_BACKEND=sqlite).
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("server.port", "8080")
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.sqlitepath", "stackfin.db")
	v.SetDefault("store.firestoreproject", "")
	v.SetDefault("forecast.detectionlookbackdays", 365)
	v.SetDefault("forecast.historylookbackdays", 90)

	v.SetConfigType("toml")

	if cfgPath := os.Getenv("STACKFIN_CONFIG"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("stackfin")
	}

	v.SetEnvPrefix("STACKFIN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// config file is optional
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	switch c.Store.Backend {
	case "memory", "sqlite", "firestore":
	default:
		return Config{}, fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "firestore" && c.Store.FirestoreProject == "" {
		return Config{}, fmt.Errorf("firestore backend requires store.firestoreproject")
	}
	return c, nil
}
