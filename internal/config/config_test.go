package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "PORT", "RATE_CARD_SOURCE", "RATE_CARD_PATH", "LOG_MODE", "RELOAD_TOKEN"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "file", cfg.RateCardSource)
	assert.Equal(t, "configs/ratecards.yaml", cfg.RateCardPath)
	assert.Equal(t, "dev", cfg.LogMode)
	assert.Empty(t, cfg.ReloadToken)
	assert.False(t, cfg.UsesDatabase())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/rates")
	t.Setenv("PORT", "9090")
	t.Setenv("RATE_CARD_SOURCE", "Postgres")
	t.Setenv("RATE_CARD_PATH", "/etc/ratequote/cards.yaml")
	t.Setenv("LOG_MODE", "prod")
	t.Setenv("RELOAD_TOKEN", "s3cret")

	cfg := Load()
	assert.Equal(t, "postgres://localhost/rates", cfg.DatabaseURL)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres", cfg.RateCardSource)
	assert.Equal(t, "/etc/ratequote/cards.yaml", cfg.RateCardPath)
	assert.Equal(t, "prod", cfg.LogMode)
	assert.Equal(t, "s3cret", cfg.ReloadToken)
	assert.True(t, cfg.UsesDatabase())
}
