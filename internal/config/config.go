package config

import (
	"os"
	"strings"
)

type Config struct {
	DatabaseURL    string
	Port           string
	RateCardSource string // file or postgres
	RateCardPath   string
	LogMode        string // dev or prod
	ReloadToken    string
}

func Load() Config {
	return Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		Port:           getenv("PORT", "8080"),
		RateCardSource: strings.ToLower(getenv("RATE_CARD_SOURCE", "file")),
		RateCardPath:   getenv("RATE_CARD_PATH", "configs/ratecards.yaml"),
		LogMode:        getenv("LOG_MODE", "dev"),
		ReloadToken:    os.Getenv("RELOAD_TOKEN"),
	}
}

// UsesDatabase reports whether the rate cards come from postgres.
func (c Config) UsesDatabase() bool {
	return c.RateCardSource == "postgres" || c.RateCardSource == "postgresql"
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
