/*
Package config loads runtime configuration for the ledger engine.

PURPOSE:
  Centralizes the environment surface: server port, database path, and the
  reporting settings (fiscal-year start month, currency) that the ledger
  core treats as opaque input to its period helpers.

SOURCES (viper):
  1. Environment variables with the LEDGER_ prefix
  2. An optional .env file in the working directory
  3. Built-in defaults

ENVIRONMENT:
  LEDGER_PORT                     HTTP port (default 8080)
  LEDGER_DB                       SQLite path (default ledger.db, ":memory:" ok)
  LEDGER_FISCAL_YEAR_START_MONTH  1-12 (default 1, calendar years)
  LEDGER_CURRENCY                 Reporting currency code (default USD)
*/
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/clearbooks/ledger-engine/ledger"
)

// Config is the resolved runtime configuration.
type Config struct {
	Port   int
	DBPath string
	Fiscal ledger.FiscalConfig
}

// Load resolves configuration from the environment and optional .env file.
func Load() Config {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // .env is optional
	v.SetEnvPrefix("LEDGER")
	v.AutomaticEnv()

	v.SetDefault("port", 8080)
	v.SetDefault("db", "ledger.db")
	v.SetDefault("fiscal_year_start_month", 1)
	v.SetDefault("currency", "USD")

	return Config{
		Port:   v.GetInt("port"),
		DBPath: v.GetString("db"),
		Fiscal: ledger.FiscalConfig{
			StartMonth: time.Month(v.GetInt("fiscal_year_start_month")),
			Currency:   v.GetString("currency"),
		},
	}
}
