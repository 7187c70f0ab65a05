package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "token")
	t.Setenv("RECONCILE_FAST_SECONDS", "")
	t.Setenv("RECONCILE_SLOW_SECONDS", "")
	t.Setenv("CLAIM_DEFAULT_LIMIT", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 5*time.Second, cfg.Reconcile.FastPeriod())
	assert.Equal(t, time.Hour, cfg.Reconcile.SlowPeriod())
	assert.Equal(t, 5, cfg.Claims.DefaultLimit)
}

func TestLoadParsesLists(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKEN", "token")
	t.Setenv("DISCORD_SUPPORT_ROLE_IDS", " r1, r2 ,,")
	t.Setenv("DISCORD_TICKET_PARENT_IDS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, cfg.Discord.SupportRoleIDs)
	assert.Empty(t, cfg.Discord.TicketParentIDs)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Reconcile: ReconcileConfig{FastSeconds: 5}}
	assert.Error(t, cfg.Validate())

	cfg.Discord.BotToken = "token"
	assert.NoError(t, cfg.Validate())

	cfg.Reconcile.SlowSeconds = -1
	assert.Error(t, cfg.Validate())

	cfg.Reconcile.SlowSeconds = 0
	cfg.Claims.DefaultLimit = -2
	assert.Error(t, cfg.Validate())
}

func TestSlowPeriodDisabled(t *testing.T) {
	assert.Zero(t, ReconcileConfig{SlowSeconds: 0}.SlowPeriod())
}
