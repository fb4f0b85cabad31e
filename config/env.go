package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// loadDotEnv loads .env from the working directory when present. Variables
// already set in the process win.
func loadDotEnv() {
	_ = godotenv.Load()
}

// applyEnvOverrides lets operators inject secrets and paths at deploy time
// without editing the config file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Paper.StateFile, "BOTTRADE_STATE_FILE")
	setStr(&cfg.Paper.Timezone, "BOTTRADE_TIMEZONE")

	setStr(&cfg.Journal.Type, "BOTTRADE_JOURNAL_TYPE")
	setStr(&cfg.Journal.DBPath, "BOTTRADE_JOURNAL_DB_PATH")
	setStr(&cfg.Journal.DSN, "BOTTRADE_JOURNAL_DSN")

	setStr(&cfg.Log.Level, "BOTTRADE_LOG_LEVEL")
	setStr(&cfg.Log.Format, "BOTTRADE_LOG_FORMAT")

	setStr(&cfg.Notify.PushoverToken, "BOTTRADE_PUSHOVER_TOKEN")
	setStr(&cfg.Notify.PushoverUser, "BOTTRADE_PUSHOVER_USER")

	setBool(&cfg.Bus.Enabled, "BOTTRADE_BUS_ENABLED")
	setStr(&cfg.Bus.Addr, "BOTTRADE_REDIS_ADDR")
	setStr(&cfg.Bus.Password, "BOTTRADE_REDIS_PASSWORD")
	setInt(&cfg.Bus.DB, "BOTTRADE_REDIS_DB")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
