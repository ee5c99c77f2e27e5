package server

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/mazzetti/tressette/internal/game"
)

// Config is the complete server configuration.
type Config struct {
	Server ServerSettings `hcl:"server,block"`
	Rules  RulesSettings  `hcl:"rules,block"`
	Bets   []int64        `hcl:"bets,optional"`
}

// ServerSettings contains process-level configuration. Secrets
// (JWT_SECRET, DATABASE_URL, REDIS_URL) come from the environment, not
// from this file.
type ServerSettings struct {
	Address      string `hcl:"address,optional"`
	Port         int    `hcl:"port,optional"`
	LogLevel     string `hcl:"log_level,optional"`
	DevMode      bool   `hcl:"dev_mode,optional"`
	GuestGold    int64  `hcl:"guest_gold,optional"`
	SessionHours int    `hcl:"session_hours,optional"`
}

// RulesSettings overrides the engine defaults. Zero values keep the
// default.
type RulesSettings struct {
	TurnTimeSec       int `hcl:"turn_time_sec,optional"`
	ShortTurnTimeSec  int `hcl:"short_turn_time_sec,optional"`
	PrepareSec        int `hcl:"prepare_sec,optional"`
	EndResetSec       int `hcl:"end_reset_sec,optional"`
	BotFillSec        int `hcl:"bot_fill_sec,optional"`
	MaxMatchMin       int `hcl:"max_match_min,optional"`
	TaxPercent        int `hcl:"tax_percent,optional"`
	BotCCULimit       int `hcl:"bot_ccu_limit,optional"`
	BotEvictPercent   int `hcl:"bot_evict_percent,optional"`
	BotSearchDepth    int `hcl:"bot_search_depth,optional"`
	ChatCooldownMilli int `hcl:"chat_cooldown_ms,optional"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Address:      "0.0.0.0",
			Port:         8080,
			LogLevel:     "info",
			GuestGold:    100_000,
			SessionHours: 24,
		},
		Bets: []int64{100, 500, 1000, 2500, 5000, 10_000, 25_000, 50_000},
	}
}

// LoadConfig loads configuration from an HCL file, falling back to
// defaults when the file does not exist.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	defaults := DefaultConfig()
	if config.Server.Address == "" {
		config.Server.Address = defaults.Server.Address
	}
	if config.Server.Port == 0 {
		config.Server.Port = defaults.Server.Port
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = defaults.Server.LogLevel
	}
	if config.Server.GuestGold == 0 {
		config.Server.GuestGold = defaults.Server.GuestGold
	}
	if config.Server.SessionHours == 0 {
		config.Server.SessionHours = defaults.Server.SessionHours
	}
	if len(config.Bets) == 0 {
		config.Bets = defaults.Bets
	}
	sort.Slice(config.Bets, func(i, j int) bool { return config.Bets[i] < config.Bets[j] })

	return &config, nil
}

// Validate checks the configuration for values the server cannot run
// with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.GuestGold < 0 {
		return fmt.Errorf("guest_gold must not be negative")
	}
	if len(c.Bets) == 0 {
		return fmt.Errorf("at least one bet tier must be configured")
	}
	for _, b := range c.Bets {
		if b <= 0 {
			return fmt.Errorf("bet tiers must be positive, got %d", b)
		}
	}
	if c.Rules.TaxPercent < 0 || c.Rules.TaxPercent > 100 {
		return fmt.Errorf("tax_percent must be between 0 and 100")
	}
	return nil
}

// GameRules folds the overrides into the engine defaults.
func (c *Config) GameRules() game.Rules {
	rules := game.DefaultRules()
	if c.Rules.TurnTimeSec > 0 {
		rules.TurnTime = time.Duration(c.Rules.TurnTimeSec) * time.Second
	}
	if c.Rules.ShortTurnTimeSec > 0 {
		rules.ShortTurnTime = time.Duration(c.Rules.ShortTurnTimeSec) * time.Second
	}
	if c.Rules.PrepareSec > 0 {
		rules.PrepareCountdown = time.Duration(c.Rules.PrepareSec) * time.Second
	}
	if c.Rules.EndResetSec > 0 {
		rules.EndResetDelay = time.Duration(c.Rules.EndResetSec) * time.Second
	}
	if c.Rules.BotFillSec > 0 {
		rules.BotFillDelay = time.Duration(c.Rules.BotFillSec) * time.Second
	}
	if c.Rules.MaxMatchMin > 0 {
		rules.MaxMatchTime = time.Duration(c.Rules.MaxMatchMin) * time.Minute
	}
	if c.Rules.TaxPercent > 0 {
		rules.TaxPercent = int64(c.Rules.TaxPercent)
	}
	if c.Rules.BotCCULimit > 0 {
		rules.BotCCULimit = c.Rules.BotCCULimit
	}
	if c.Rules.BotEvictPercent > 0 {
		rules.BotEvictPercent = c.Rules.BotEvictPercent
	}
	if c.Rules.BotSearchDepth > 0 {
		rules.SearchDepth = c.Rules.BotSearchDepth
	}
	if c.Rules.ChatCooldownMilli > 0 {
		rules.ChatCooldown = time.Duration(c.Rules.ChatCooldownMilli) * time.Millisecond
	}
	return rules
}

// ListenAddress returns the host:port to bind.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}
