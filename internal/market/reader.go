// Package market reads the latest coin snapshot out of the tabular
// store. The feed pipeline has renamed its output table twice, so the
// reader probes an ordered list of candidates and serves the first one
// that has rows.
package market

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fncoins/internal/store"
)

const (
	Historic = "historic"
	Season   = "season"
)

// ErrNoDataSource means every candidate table was empty or erroring.
var ErrNoDataSource = errors.New("unable to read market data from any source")

// DefaultTables is the candidate chain, newest schema first.
var DefaultTables = []string{
	"coin_market_latest",
	"market_prices_latest",
	"prices_latest",
}

var snapshotColumns = []string{
	"coin", "display_name", "market", "price_now", "power_score_now",
	"change_24h_pct", "high_24h", "low_24h", "last_updated",
}

// Item is one coin in a market snapshot.
type Item struct {
	Coin          string  `json:"coin"`
	DisplayName   string  `json:"display_name"`
	Market        string  `json:"market"`
	PriceNow      float64 `json:"price_now"`
	PowerScoreNow float64 `json:"power_score_now"`
	Change24hPct  float64 `json:"change_24h_pct"`
	High24h       float64 `json:"high_24h"`
	Low24h        float64 `json:"low_24h"`
	LastUpdated   string  `json:"last_updated"`
}

type Reader struct {
	store  store.Store
	tables []string
	log    *slog.Logger
}

func NewReader(st store.Store, tables []string, logger *slog.Logger) *Reader {
	if len(tables) == 0 {
		tables = DefaultTables
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{store: st, tables: tables, log: logger}
}

// Normalize maps a raw market name to a known market, or "".
func Normalize(value string) string {
	if value == Historic || value == Season {
		return value
	}
	return ""
}

// Items returns the snapshot for one market, price-descending. Rows
// come from exactly one candidate table; partial results are never
// merged across candidates.
func (r *Reader) Items(ctx context.Context, market string) ([]Item, error) {
	for _, table := range r.tables {
		rows, err := r.store.Select(ctx, table, snapshotColumns, store.Query{
			Eq:      []store.Cond{store.Eq("market", market)},
			OrderBy: "price_now",
			Desc:    true,
		})
		if err != nil {
			r.log.Debug("market candidate failed", "table", table, "err", err)
			continue
		}
		if len(rows) == 0 {
			continue
		}
		items := make([]Item, len(rows))
		for i, row := range rows {
			items[i] = normalizeRow(row, market)
		}
		return items, nil
	}
	return nil, ErrNoDataSource
}

// normalizeRow coerces one raw row into the canonical item shape.
// Older tables store numerics as text and may omit display names.
func normalizeRow(row store.Row, fallbackMarket string) Item {
	coin := row.String("coin")
	displayName := row.String("display_name")
	if displayName == "" {
		displayName = coin
	}
	m := Normalize(row.String("market"))
	if m == "" {
		m = fallbackMarket
	}
	lastUpdated := row.String("last_updated")
	if lastUpdated == "" {
		lastUpdated = time.Now().UTC().Format(time.RFC3339)
	}
	return Item{
		Coin:          coin,
		DisplayName:   displayName,
		Market:        m,
		PriceNow:      row.Float("price_now"),
		PowerScoreNow: row.Float("power_score_now"),
		Change24hPct:  row.Float("change_24h_pct"),
		High24h:       row.Float("high_24h"),
		Low24h:        row.Float("low_24h"),
		LastUpdated:   lastUpdated,
	}
}
