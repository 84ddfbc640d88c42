package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 12*time.Second, cfg.Search.Deadline)
	assert.Equal(t, 8*time.Second, cfg.Search.DiscoveryTimeout)
	assert.InDelta(t, 0.10, cfg.Search.TextScoreThreshold, 0.001)
	assert.InDelta(t, 0.75, cfg.Search.VectorScoreThreshold, 0.001)
	assert.Equal(t, 3, cfg.Scrape.TopLinks)
	assert.Equal(t, 2, cfg.Scrape.TopSublinks)
	assert.Equal(t, 2, cfg.Scrape.MinOverlapForLLM)
	assert.Equal(t, 15*time.Second, cfg.Linkup.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Linkup.Cooldown)
	assert.Equal(t, 587, cfg.Mail.SMTPPort)
	assert.Equal(t, 993, cfg.Mail.IMAPPort)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("RATERIGHT_STORE_DRIVER", "sqlite")
	t.Setenv("RATERIGHT_SERVER_PORT", "9999")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestMailConfigured(t *testing.T) {
	assert.False(t, MailConfig{}.Configured())
	assert.True(t, MailConfig{
		SMTPHost:  "smtp.example.com",
		SMTPUser:  "bot",
		FromEmail: "bot@example.com",
	}.Configured())
}
