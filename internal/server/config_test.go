package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.hcl"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(100_000), cfg.Server.GuestGold)
	assert.NotEmpty(t, cfg.Bets)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigParsesAndSorts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.hcl")
	content := `
server {
  address    = "127.0.0.1"
  port       = 9000
  dev_mode   = true
  guest_gold = 5000
}

rules {
  turn_time_sec = 20
  tax_percent   = 10
}

bets = [5000, 100, 1000]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddress())
	assert.True(t, cfg.Server.DevMode)
	assert.Equal(t, int64(5000), cfg.Server.GuestGold)
	assert.Equal(t, []int64{100, 1000, 5000}, cfg.Bets)

	rules := cfg.GameRules()
	assert.Equal(t, 20*time.Second, rules.TurnTime)
	assert.Equal(t, int64(10), rules.TaxPercent)
	// Untouched fields keep engine defaults.
	assert.Equal(t, 3*time.Second, rules.PrepareCountdown)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Bets = nil
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Bets = []int64{-5}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Rules.TaxPercent = 150
	assert.Error(t, cfg.Validate())
}

func TestLevelForExp(t *testing.T) {
	assert.Equal(t, 1, levelForExp(0))
	assert.Equal(t, 2, levelForExp(100))
	assert.Equal(t, 3, levelForExp(300))
	assert.Less(t, levelForExp(1_000_000), 99)
}
