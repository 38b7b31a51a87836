package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

// Pump policies. Exactly one is applied by a running server.
const (
	// PolicyCapped rejects pumps once MaxPumpsPerRound is reached; no randomness.
	PolicyCapped = "capped"
	// PolicyPop lets the balloon pop with rising probability from PopThreshold onward.
	PolicyPop = "pop"
)

// MaxPumpLimit bounds MaxPumpsPerRound and PopThreshold: the k-th pump earns
// BasePoints << (k-1), which stays within 63 shifts up to this pump.
const MaxPumpLimit = 64

// GameRules holds the balloon game rules.
type GameRules struct {
	EntryFee         uint64 `json:"entry_fee"` // exact amount required by start_game (wei)
	BasePoints       uint64 `json:"base_points"`
	MaxRounds        int    `json:"max_rounds"`
	PumpPolicy       string `json:"pump_policy"`
	MaxPumpsPerRound int    `json:"max_pumps_per_round"` // capped policy only
	PopThreshold     int    `json:"pop_threshold"`       // pop policy only: first pump that may pop
}

// Config holds all configurable server parameters.
type Config struct {
	Game GameRules `json:"game"`

	LeaderboardSize   int    `json:"leaderboard_size"`
	MaxPlayerIDLength int    `json:"max_player_id_length"`
	WSPort            int    `json:"ws_port"`
	LogLevel          string `json:"log_level"`

	// ClientActionsPerSec and ClientActionBurst rate-limit actions per WebSocket connection.
	ClientActionsPerSec float64 `json:"client_actions_per_sec"`
	ClientActionBurst   int     `json:"client_action_burst"`

	// DatabaseURL enables Postgres persistence when set.
	DatabaseURL string `json:"-"`
	// NeonAuthBaseURL enables JWT auth when set; otherwise clients identify themselves with hello.
	NeonAuthBaseURL string `json:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Game: GameRules{
			EntryFee:         1_000_000_000_000_000, // 0.001 ether
			BasePoints:       10,
			MaxRounds:        5,
			PumpPolicy:       PolicyCapped,
			MaxPumpsPerRound: 2,
			PopThreshold:     3,
		},
		LeaderboardSize:     10,
		MaxPlayerIDLength:   64,
		WSPort:              8080,
		LogLevel:            "info",
		ClientActionsPerSec: 10,
		ClientActionBurst:   20,
	}
}

// Load reads configuration from an optional config.json file,
// then applies environment variable overrides. Fields not set
// in either source retain their default values.
func Load() *Config {
	cfg := Defaults()

	if f, err := os.Open("config.json"); err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			log.Printf("Warning: failed to parse config.json: %v", err)
		}
	}

	overrideUint(&cfg.Game.EntryFee, "ENTRY_FEE")
	overrideUint(&cfg.Game.BasePoints, "BASE_POINTS")
	overrideInt(&cfg.Game.MaxRounds, "MAX_ROUNDS")
	overrideString(&cfg.Game.PumpPolicy, "PUMP_POLICY")
	overrideInt(&cfg.Game.MaxPumpsPerRound, "MAX_PUMPS_PER_ROUND")
	overrideInt(&cfg.Game.PopThreshold, "POP_THRESHOLD")
	overrideInt(&cfg.LeaderboardSize, "LEADERBOARD_SIZE")
	overrideInt(&cfg.MaxPlayerIDLength, "MAX_PLAYER_ID_LENGTH")
	overrideInt(&cfg.WSPort, "WS_PORT")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")
	overrideFloat(&cfg.ClientActionsPerSec, "CLIENT_ACTIONS_PER_SEC")
	overrideInt(&cfg.ClientActionBurst, "CLIENT_ACTION_BURST")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.NeonAuthBaseURL, "NEON_AUTH_BASE_URL")

	cfg.Game.PumpPolicy = strings.ToLower(strings.TrimSpace(cfg.Game.PumpPolicy))
	return cfg
}

// Validate reports rule combinations the game engine cannot run with.
func (c *Config) Validate() error {
	g := c.Game
	if g.BasePoints == 0 {
		return fmt.Errorf("base_points must be positive")
	}
	if g.MaxRounds < 1 {
		return fmt.Errorf("max_rounds must be at least 1, got %d", g.MaxRounds)
	}
	switch g.PumpPolicy {
	case PolicyCapped:
		if g.MaxPumpsPerRound < 1 || g.MaxPumpsPerRound > MaxPumpLimit {
			return fmt.Errorf("max_pumps_per_round must be between 1 and %d, got %d", MaxPumpLimit, g.MaxPumpsPerRound)
		}
	case PolicyPop:
		if g.PopThreshold < 1 || g.PopThreshold > MaxPumpLimit {
			return fmt.Errorf("pop_threshold must be between 1 and %d, got %d", MaxPumpLimit, g.PopThreshold)
		}
	default:
		return fmt.Errorf("unknown pump_policy %q (want %q or %q)", g.PumpPolicy, PolicyCapped, PolicyPop)
	}
	if c.MaxPlayerIDLength < 1 {
		return fmt.Errorf("max_player_id_length must be at least 1, got %d", c.MaxPlayerIDLength)
	}
	return nil
}

func overrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*field = n
		} else {
			log.Printf("Warning: invalid value for %s: %q", envKey, val)
		}
	}
}

func overrideUint(field *uint64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if n, err := strconv.ParseUint(val, 10, 64); err == nil {
			*field = n
		} else {
			log.Printf("Warning: invalid value for %s: %q", envKey, val)
		}
	}
}

func overrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*field = f
		} else {
			log.Printf("Warning: invalid value for %s: %q", envKey, val)
		}
	}
}

func overrideString(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}
