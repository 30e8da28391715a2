package config

import (
	"testing"
	"time"

	"fncoins/internal/game"
)

func TestLoadAPIDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "FNCOINS_API_ADDR", "SUPABASE_URL", "FNCOINS_SPREAD_PCT",
		"FNCOINS_MARKET_TABLES", "FNCOINS_REQUEST_TIMEOUT",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadAPIFromEnv()
	if cfg.Addr != ":8080" {
		t.Fatalf("addr: %q", cfg.Addr)
	}
	if cfg.SpreadPct != game.DefaultSpreadPct {
		t.Fatalf("spread: %v", cfg.SpreadPct)
	}
	if len(cfg.MarketTables) != 3 || cfg.MarketTables[0] != "coin_market_latest" {
		t.Fatalf("tables: %v", cfg.MarketTables)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("request timeout: %v", cfg.RequestTimeout)
	}
}

func TestLoadAPIOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SUPABASE_URL", "https://proj.supabase.co/")
	t.Setenv("FNCOINS_SPREAD_PCT", "0.01")
	t.Setenv("FNCOINS_MARKET_TABLES", "custom_latest, prices_latest")
	t.Setenv("FNCOINS_REQUEST_TIMEOUT", "10s")

	cfg := LoadAPIFromEnv()
	if cfg.Addr != ":9090" {
		t.Fatalf("PORT should win and gain a colon, got %q", cfg.Addr)
	}
	if cfg.SupabaseURL != "https://proj.supabase.co" {
		t.Fatalf("trailing slash should be stripped, got %q", cfg.SupabaseURL)
	}
	if cfg.SpreadPct != 0.01 {
		t.Fatalf("spread: %v", cfg.SpreadPct)
	}
	if len(cfg.MarketTables) != 2 || cfg.MarketTables[1] != "prices_latest" {
		t.Fatalf("tables: %v", cfg.MarketTables)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("request timeout: %v", cfg.RequestTimeout)
	}
}

func TestBadValuesFallBack(t *testing.T) {
	t.Setenv("FNCOINS_SPREAD_PCT", "lots")
	t.Setenv("FNCOINS_REQUEST_TIMEOUT", "soon")

	cfg := LoadAPIFromEnv()
	if cfg.SpreadPct != game.DefaultSpreadPct {
		t.Fatalf("unparsable spread should fall back, got %v", cfg.SpreadPct)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("unparsable duration should fall back, got %v", cfg.RequestTimeout)
	}
}
