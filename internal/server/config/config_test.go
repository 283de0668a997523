package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.BusURL)
	assert.Equal(t, 1*time.Hour, cfg.AccessTokenValidityDuration)
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshTokenValidityDuration)
	assert.NotEmpty(t, cfg.DatabaseDSN)
	assert.NotZero(t, cfg.CodeStoreCapacity)
}

func TestParseFlags_Overrides(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	os.Args = []string{"authd",
		"-n", "nats://bus:4222",
		"-d", "postgres://x",
		"-k", "/etc/keys/session.key",
		"-t", "30",
		"-r", "120",
	}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseFlags(cfg)

	assert.Equal(t, "nats://bus:4222", cfg.BusURL)
	assert.Equal(t, "postgres://x", cfg.DatabaseDSN)
	assert.Equal(t, "/etc/keys/session.key", cfg.PrivateKeyPath)
	assert.Equal(t, 30*time.Minute, cfg.AccessTokenValidityDuration)
	assert.Equal(t, 120*time.Minute, cfg.RefreshTokenValidityDuration)
}

func TestParseJson_Overlay(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	overlay := map[string]any{
		"bus_url":                         "nats://json:4222",
		"access_token_validity_duration":  "45m",
		"refresh_token_validity_duration": "720h",
		"smtp_host":                       "mail.internal",
		"smtp_port":                       465,
		"code_store_capacity":             500,
	}
	data, err := json.Marshal(overlay)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	os.Args = []string{"authd", "-c", path}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)

	assert.Equal(t, "nats://json:4222", cfg.BusURL)
	assert.Equal(t, 45*time.Minute, cfg.AccessTokenValidityDuration)
	assert.Equal(t, 720*time.Hour, cfg.RefreshTokenValidityDuration)
	assert.Equal(t, "mail.internal", cfg.SMTPHost)
	assert.Equal(t, 465, cfg.SMTPPort)
	assert.Equal(t, 500, cfg.CodeStoreCapacity)
}

func TestParseJson_NoFileMeansNoOverlay(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	os.Args = []string{"authd"}

	cfg := &Config{}
	cfg.LoadDefaults()
	before := *cfg
	parseJson(cfg)

	assert.Equal(t, before, *cfg)
}
