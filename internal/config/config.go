// Package config carries the server's environment configuration and the
// game-rules file shared by every room.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/caarlos0/env/v11"
)

// Env holds process-level settings loaded from the environment.
type Env struct {
	Addr      string `env:"DICEE_ADDR" envDefault:":8080"`
	DBPath    string `env:"DICEE_DB_PATH" envDefault:"dicee.db"`
	JWKSURL   string `env:"DICEE_JWKS_URL"`
	JWTIssuer string `env:"DICEE_JWT_ISSUER"`
	RulesPath string `env:"DICEE_RULES_PATH"`
	LogLevel  string `env:"DICEE_LOG_LEVEL" envDefault:"info"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// Rules are the tunable game and lobby rules. They are fixed for the process
// lifetime; per-room overrides come from the room config at creation.
type Rules struct {
	MaxPlayers         int `json:"max_players"`
	TurnTimeoutSeconds int `json:"turn_timeout_seconds"`
	// WarningLeadSeconds is how long before the AFK timeout the warning fires.
	WarningLeadSeconds    int `json:"warning_lead_seconds"`
	CountdownSeconds      int `json:"countdown_seconds"`
	DisconnectGraceSecs   int `json:"disconnect_grace_seconds"`
	ChatMaxLength         int `json:"chat_max_length"`
	ChatPerMinute         int `json:"chat_per_minute"`
	ChatHistoryLimit      int `json:"chat_history_limit"`
	DirectoryGraceSeconds int `json:"directory_grace_seconds"`

	// SkipPolicy selects the category chosen on a skipped player's behalf:
	// "lowest" (punitive default) or "greedy".
	SkipPolicy string `json:"skip_policy"`
}

// DefaultRules returns the deployed defaults.
func DefaultRules() Rules {
	return Rules{
		MaxPlayers:            4,
		TurnTimeoutSeconds:    60,
		WarningLeadSeconds:    15,
		CountdownSeconds:      3,
		DisconnectGraceSecs:   30,
		ChatMaxLength:         500,
		ChatPerMinute:         20,
		ChatHistoryLimit:      50,
		DirectoryGraceSeconds: 60,
		SkipPolicy:            "lowest",
	}
}

var (
	rules     Rules
	rulesOnce sync.Once
	rulesErr  error
)

// LoadRules loads the rules file once. An empty path keeps the defaults.
func LoadRules(path string) (Rules, error) {
	rulesOnce.Do(func() {
		rules = DefaultRules()
		if path == "" {
			return
		}
		data, err := os.ReadFile(path)
		if err != nil {
			rulesErr = fmt.Errorf("read rules file: %w", err)
			return
		}
		if err := json.Unmarshal(data, &rules); err != nil {
			rulesErr = fmt.Errorf("unmarshal rules file: %w", err)
		}
	})
	return rules, rulesErr
}
