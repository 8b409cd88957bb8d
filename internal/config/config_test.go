package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-crm/internal/apperr"
)

func TestLoadConfig_EmptyValuesUseDefaults(t *testing.T) {
	t.Setenv("BROADCAST_WORKERS", "")
	t.Setenv("BROADCAST_SEND_TIMEOUT", "")

	cfg := LoadConfig()
	assert.Equal(t, 5, cfg.BroadcastWorkers)
	assert.Equal(t, 15*time.Second, cfg.BroadcastSendTimeout)
}

func TestLoadConfig_ParsesOverrides(t *testing.T) {
	t.Setenv("BROADCAST_WORKERS", "12")
	t.Setenv("BROADCAST_RATE_PER_SEC", "2.5")
	t.Setenv("BROADCAST_SEND_TIMEOUT", "3s")
	t.Setenv("APP_MODE", "Permissive")

	cfg := LoadConfig()
	assert.Equal(t, 12, cfg.BroadcastWorkers)
	assert.Equal(t, 2.5, cfg.BroadcastRatePerSec)
	assert.Equal(t, 3*time.Second, cfg.BroadcastSendTimeout)
	assert.Equal(t, ModePermissive, cfg.Mode)
	assert.False(t, cfg.Strict())
}

func TestLoadConfig_BadNumbersFallBack(t *testing.T) {
	t.Setenv("BROADCAST_WORKERS", "many")
	t.Setenv("BROADCAST_SEND_TIMEOUT", "soon")

	cfg := LoadConfig()
	assert.Equal(t, 5, cfg.BroadcastWorkers)
	assert.Equal(t, 15*time.Second, cfg.BroadcastSendTimeout)
}

func TestValidate(t *testing.T) {
	full := Config{Mode: ModeStrict, AppSecret: "s", EncryptionKey: "k", JWTSecret: "j"}
	require.NoError(t, full.Validate())

	strict := Config{Mode: ModeStrict, AppSecret: "s"}
	err := strict.Validate()
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
	assert.Contains(t, err.Error(), "ENCRYPTION_KEY")
	assert.Contains(t, err.Error(), "JWT_SECRET")

	permissive := Config{Mode: ModePermissive}
	assert.NoError(t, permissive.Validate())

	unknown := Config{Mode: "lenient"}
	assert.True(t, apperr.Is(unknown.Validate(), apperr.KindConfiguration))
}
