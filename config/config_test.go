package config

import (
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Game.EntryFee != 1_000_000_000_000_000 {
		t.Errorf("expected EntryFee=1e15, got %d", cfg.Game.EntryFee)
	}
	if cfg.Game.BasePoints != 10 {
		t.Errorf("expected BasePoints=10, got %d", cfg.Game.BasePoints)
	}
	if cfg.Game.MaxRounds != 5 {
		t.Errorf("expected MaxRounds=5, got %d", cfg.Game.MaxRounds)
	}
	if cfg.Game.PumpPolicy != PolicyCapped {
		t.Errorf("expected PumpPolicy=%q, got %q", PolicyCapped, cfg.Game.PumpPolicy)
	}
	if cfg.Game.MaxPumpsPerRound != 2 {
		t.Errorf("expected MaxPumpsPerRound=2, got %d", cfg.Game.MaxPumpsPerRound)
	}
	if cfg.WSPort != 8080 {
		t.Errorf("expected WSPort=8080, got %d", cfg.WSPort)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("ENTRY_FEE", "500")
	t.Setenv("PUMP_POLICY", " POP ")
	t.Setenv("POP_THRESHOLD", "4")
	t.Setenv("WS_PORT", "9090")
	t.Setenv("CLIENT_ACTIONS_PER_SEC", "2.5")
	t.Setenv("DATABASE_URL", "postgres://localhost/balloon")

	cfg := Load()

	if cfg.Game.EntryFee != 500 {
		t.Errorf("expected EntryFee=500 after env override, got %d", cfg.Game.EntryFee)
	}
	if cfg.Game.PumpPolicy != PolicyPop {
		t.Errorf("expected PumpPolicy normalized to %q, got %q", PolicyPop, cfg.Game.PumpPolicy)
	}
	if cfg.Game.PopThreshold != 4 {
		t.Errorf("expected PopThreshold=4, got %d", cfg.Game.PopThreshold)
	}
	if cfg.WSPort != 9090 {
		t.Errorf("expected WSPort=9090 after env override, got %d", cfg.WSPort)
	}
	if cfg.ClientActionsPerSec != 2.5 {
		t.Errorf("expected ClientActionsPerSec=2.5, got %v", cfg.ClientActionsPerSec)
	}
	if cfg.DatabaseURL != "postgres://localhost/balloon" {
		t.Errorf("expected DatabaseURL from env, got %q", cfg.DatabaseURL)
	}
	// Non-overridden fields should remain default
	if cfg.Game.BasePoints != 10 {
		t.Errorf("expected BasePoints=10 (default), got %d", cfg.Game.BasePoints)
	}
}

func TestLoadWithInvalidEnv(t *testing.T) {
	t.Setenv("MAX_ROUNDS", "invalid")
	t.Setenv("ENTRY_FEE", "-1")

	cfg := Load()

	if cfg.Game.MaxRounds != 5 {
		t.Errorf("expected MaxRounds=5 (default) with invalid env, got %d", cfg.Game.MaxRounds)
	}
	if cfg.Game.EntryFee != Defaults().Game.EntryFee {
		t.Errorf("expected default EntryFee with invalid env, got %d", cfg.Game.EntryFee)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"pop policy", func(c *Config) { c.Game.PumpPolicy = PolicyPop }, false},
		{"unknown policy", func(c *Config) { c.Game.PumpPolicy = "explode" }, true},
		{"zero base points", func(c *Config) { c.Game.BasePoints = 0 }, true},
		{"zero rounds", func(c *Config) { c.Game.MaxRounds = 0 }, true},
		{"zero pump cap", func(c *Config) { c.Game.MaxPumpsPerRound = 0 }, true},
		{"zero pump cap ignored under pop", func(c *Config) {
			c.Game.PumpPolicy = PolicyPop
			c.Game.MaxPumpsPerRound = 0
		}, false},
		{"zero pop threshold", func(c *Config) {
			c.Game.PumpPolicy = PolicyPop
			c.Game.PopThreshold = 0
		}, true},
		{"pump cap at limit", func(c *Config) { c.Game.MaxPumpsPerRound = MaxPumpLimit }, false},
		{"pump cap beyond doubling range", func(c *Config) { c.Game.MaxPumpsPerRound = MaxPumpLimit + 1 }, true},
		{"pop threshold beyond doubling range", func(c *Config) {
			c.Game.PumpPolicy = PolicyPop
			c.Game.PopThreshold = MaxPumpLimit + 1
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
