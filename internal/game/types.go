package game

type Room struct {
	ID       string `json:"-"`
	RoomCode string `json:"room_code"`
}

type Player struct {
	ID          string  `json:"id"`
	RoomID      string  `json:"-"`
	DisplayName string  `json:"display_name"`
	PlayerCode  string  `json:"-"`
	Cash        float64 `json:"cash"`
}

// PlayerView is the roster entry exposed to other players: no PIN, no
// room internals.
type PlayerView struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Cash        float64 `json:"cash"`
}

type HoldingView struct {
	Coin    string  `json:"coin"`
	Qty     float64 `json:"qty"`
	AvgCost float64 `json:"avg_cost"`
}

type TradeView struct {
	ID        string  `json:"id"`
	Coin      string  `json:"coin"`
	Side      string  `json:"side"`
	Qty       float64 `json:"qty"`
	PriceExec float64 `json:"price_exec"`
	Notional  float64 `json:"notional"`
	SpreadPct float64 `json:"spread_pct"`
	CreatedAt string  `json:"created_at"`
}

type TradeInput struct {
	Market         string
	Coin           string
	Side           string
	Qty            float64
	IdempotencyKey string
}

type TradeResult struct {
	Cash      float64     `json:"cash"`
	Holding   HoldingView `json:"holding"`
	Trade     TradeView   `json:"trade"`
	PriceExec float64     `json:"price_exec"`
}
