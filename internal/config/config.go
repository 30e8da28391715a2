package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"fncoins/internal/game"
	"fncoins/internal/market"
)

type APIConfig struct {
	Addr            string
	SupabaseURL     string
	SupabaseKey     string
	DatabaseURL     string
	RedisURL        string
	AdminToken      string
	SyncToken       string
	SpreadPct       float64
	StartingCash    float64
	MarketTables    []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

func LoadAPIFromEnv() APIConfig {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("FNCOINS_API_ADDR", ":8080")
	}

	return APIConfig{
		Addr:            addr,
		SupabaseURL:     strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/"),
		SupabaseKey:     strings.TrimSpace(os.Getenv("SUPABASE_SERVICE_ROLE_KEY")),
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		RedisURL:        strings.TrimSpace(os.Getenv("REDIS_URL")),
		AdminToken:      strings.TrimSpace(os.Getenv("ADMIN_TOKEN")),
		SyncToken:       strings.TrimSpace(os.Getenv("SYNC_TOKEN")),
		SpreadPct:       envFloatDefault("FNCOINS_SPREAD_PCT", game.DefaultSpreadPct),
		StartingCash:    envFloatDefault("FNCOINS_STARTING_CASH", game.DefaultStartingCash),
		MarketTables:    envListDefault("FNCOINS_MARKET_TABLES", market.DefaultTables),
		RequestTimeout:  envDurationDefault("FNCOINS_REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: envDurationDefault("FNCOINS_SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envListDefault(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
