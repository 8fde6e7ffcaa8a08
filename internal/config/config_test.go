package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Book.Symbol != "RSP" {
		t.Errorf("symbol = %q, want RSP", cfg.Book.Symbol)
	}
	if cfg.Book.FairValue != 76.80 {
		t.Errorf("fair value = %v, want 76.80", cfg.Book.FairValue)
	}
	if cfg.Halt.CureWindow != 15*time.Second || cfg.Halt.HaltDuration != 5*time.Minute {
		t.Errorf("halt timing = %v / %v, want 15s / 5m", cfg.Halt.CureWindow, cfg.Halt.HaltDuration)
	}
	if cfg.Simulation.Ticks != 390 {
		t.Errorf("ticks = %d, want a full session", cfg.Simulation.Ticks)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ETFSIM_SYMBOL", "DVY")
	t.Setenv("ETFSIM_TICKS", "42")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Book.Symbol != "DVY" {
		t.Errorf("symbol = %q, want env override", cfg.Book.Symbol)
	}
	if cfg.Simulation.Ticks != 42 {
		t.Errorf("ticks = %d, want env override", cfg.Simulation.Ticks)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("book:\n  fair_value: -5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load accepted a negative fair value")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero ticks", func(c *Config) { c.Simulation.Ticks = 0 }},
		{"bad tier", func(c *Config) { c.Halt.Tier = 3 }},
		{"zero cure window", func(c *Config) { c.Halt.CureWindow = 0 }},
		{"negative threshold", func(c *Config) { c.MarketMaker.WithdrawalThresholdBps = -1 }},
		{"coverage threshold at 1", func(c *Config) { c.Arbitrage.HedgeableThreshold = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted a broken config")
			}
		})
	}
}
