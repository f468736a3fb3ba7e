package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyEnvOverridesSetsFields(t *testing.T) {
	cfg := Defaults()

	t.Setenv("KEEPER_PAIR", "WETH-DAI")
	t.Setenv("KEEPER_EXCHANGE_KIND", "onchain")
	t.Setenv("KEEPER_REDIS_POOL_SIZE", "25")
	t.Setenv("KEEPER_CONTROL_CYCLE_INTERVAL", "45s")
	t.Setenv("KEEPER_SERVER_ENABLED", "false")
	t.Setenv("KEEPER_NOTIFY_EVENTS", "cycle_error, keeper_stopped")

	applyEnvOverrides(&cfg)

	if cfg.Pair != "WETH-DAI" {
		t.Fatalf("Pair = %q, want WETH-DAI", cfg.Pair)
	}
	if cfg.Exchange.Kind != "onchain" {
		t.Fatalf("Exchange.Kind = %q, want onchain", cfg.Exchange.Kind)
	}
	if cfg.Redis.PoolSize != 25 {
		t.Fatalf("Redis.PoolSize = %d, want 25", cfg.Redis.PoolSize)
	}
	if cfg.Control.CycleInterval.Duration != 45*time.Second {
		t.Fatalf("Control.CycleInterval = %v, want 45s", cfg.Control.CycleInterval.Duration)
	}
	if cfg.Server.Enabled {
		t.Fatalf("Server.Enabled = true, want false")
	}
	if len(cfg.Notify.Events) != 2 || cfg.Notify.Events[0] != "cycle_error" || cfg.Notify.Events[1] != "keeper_stopped" {
		t.Fatalf("Notify.Events = %v, want [cycle_error keeper_stopped]", cfg.Notify.Events)
	}
}

func TestApplyEnvOverridesLeavesUnsetFieldsAlone(t *testing.T) {
	cfg := Defaults()
	original := cfg.Redis.Addr

	applyEnvOverrides(&cfg)

	if cfg.Redis.Addr != original {
		t.Fatalf("Redis.Addr = %q, want unchanged default %q", cfg.Redis.Addr, original)
	}
}

func TestApplyEnvOverridesIgnoresUnparsableValues(t *testing.T) {
	cfg := Defaults()
	originalPoolSize := cfg.Redis.PoolSize

	t.Setenv("KEEPER_REDIS_POOL_SIZE", "not-a-number")
	applyEnvOverrides(&cfg)

	if cfg.Redis.PoolSize != originalPoolSize {
		t.Fatalf("Redis.PoolSize = %d, want it left at the default %d when the env var doesn't parse", cfg.Redis.PoolSize, originalPoolSize)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keeper.toml")
	content := `
pair = "WETH-USDC"
mode = "once"

[exchange]
kind = "mock"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pair != "WETH-USDC" {
		t.Fatalf("Pair = %q, want WETH-USDC", cfg.Pair)
	}
	if cfg.Mode != "once" {
		t.Fatalf("Mode = %q, want once", cfg.Mode)
	}
	// Values absent from the file keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("Redis.Addr = %q, want the default", cfg.Redis.Addr)
	}
}

func TestLoadAppliesEnvOverridesAfterFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keeper.toml")
	if err := os.WriteFile(path, []byte(`pair = "WETH-USDC"`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("KEEPER_PAIR", "WETH-DAI")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pair != "WETH-DAI" {
		t.Fatalf("Pair = %q, want the env override WETH-DAI to win over the file", cfg.Pair)
	}
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
