package game

import "errors"

const (
	// DefaultSpreadPct is the markup/markdown applied to the snapshot
	// price on execution. One value for the whole system.
	DefaultSpreadPct = 0.005

	// DefaultStartingCash is the balance a player is created with.
	DefaultStartingCash = 100_000.0
)

const (
	tableRooms    = "rooms"
	tablePlayers  = "room_players"
	tableHoldings = "holdings"
	tableTrades   = "trades"
)

var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrCoinNotFound         = errors.New("coin not found in market")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrInvalidSide          = errors.New("side must be buy or sell")
	ErrInsufficientCash     = errors.New("insufficient cash")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrDuplicateIdempotency = errors.New("duplicate idempotency key")
)

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// NormalizeSide maps a raw side to buy/sell, or "".
func NormalizeSide(value string) string {
	if value == SideBuy || value == SideSell {
		return value
	}
	return ""
}
