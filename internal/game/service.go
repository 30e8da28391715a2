package game

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"fncoins/internal/lock"
	"fncoins/internal/market"
	"fncoins/internal/store"

	"golang.org/x/crypto/bcrypt"
)

var (
	playerColumns  = []string{"id", "room_id", "display_name", "player_code", "cash"}
	holdingColumns = []string{"id", "room_id", "player_id", "market", "coin", "qty", "avg_cost"}
)

// Service resolves rooms and players and executes trades against the
// tabular store. Trades for one player are serialized through the
// locker; the three writes of a trade are still not atomic against
// the store, so a failure mid-sequence can leave cash and holdings
// out of step until the next successful trade.
type Service struct {
	store        store.Store
	market       *market.Reader
	locks        lock.Locker
	log          *slog.Logger
	spreadPct    float64
	startingCash float64
}

func NewService(st store.Store, reader *market.Reader, locks lock.Locker, logger *slog.Logger, spreadPct, startingCash float64) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if locks == nil {
		locks = lock.NewKeyed()
	}
	return &Service{
		store:        st,
		market:       reader,
		locks:        locks,
		log:          logger,
		spreadPct:    spreadPct,
		startingCash: startingCash,
	}
}

func (s *Service) SpreadPct() float64 {
	return s.spreadPct
}

// JoinRoom resolves a (room code, display name) pair, creating the
// room and/or player on first contact. An existing player must present
// the PIN it was created with.
func (s *Service) JoinRoom(ctx context.Context, roomCode, displayName, playerCode string) (Room, Player, error) {
	room, err := s.getOrCreateRoom(ctx, roomCode)
	if err != nil {
		return Room{}, Player{}, err
	}
	player, err := s.getPlayerByName(ctx, room.ID, displayName)
	if err != nil {
		return Room{}, Player{}, err
	}
	if player == nil {
		created, err := s.createPlayer(ctx, room.ID, displayName, playerCode)
		if err != nil {
			return Room{}, Player{}, err
		}
		s.log.Info("player created", "room_code", room.RoomCode, "display_name", displayName)
		return room, created, nil
	}
	if !pinMatches(player.PlayerCode, playerCode) {
		return Room{}, Player{}, ErrInvalidCredentials
	}
	return room, *player, nil
}

// Authenticate re-derives the player from the three credential fields.
// Any miss or PIN mismatch is ErrInvalidCredentials; lookups never
// create records.
func (s *Service) Authenticate(ctx context.Context, roomCode, displayName, playerCode string) (Player, error) {
	room, err := s.getRoomByCode(ctx, roomCode)
	if err != nil {
		return Player{}, err
	}
	if room == nil {
		return Player{}, ErrInvalidCredentials
	}
	player, err := s.getPlayerByName(ctx, room.ID, displayName)
	if err != nil {
		return Player{}, err
	}
	if player == nil || !pinMatches(player.PlayerCode, playerCode) {
		return Player{}, ErrInvalidCredentials
	}
	return *player, nil
}

// Holdings returns the player's positions in one market, coin-ascending.
func (s *Service) Holdings(ctx context.Context, player Player, marketName string) ([]HoldingView, error) {
	rows, err := s.store.Select(ctx, tableHoldings, holdingColumns, store.Query{
		Eq: []store.Cond{
			store.Eq("room_id", player.RoomID),
			store.Eq("player_id", player.ID),
			store.Eq("market", marketName),
		},
		OrderBy: "coin",
	})
	if err != nil {
		return nil, err
	}
	out := make([]HoldingView, len(rows))
	for i, row := range rows {
		out[i] = HoldingView{
			Coin:    row.String("coin"),
			Qty:     row.Float("qty"),
			AvgCost: row.Float("avg_cost"),
		}
	}
	return out, nil
}

// RoomPlayers returns the roster for a room code. An unknown room is
// an empty roster, not an error.
func (s *Service) RoomPlayers(ctx context.Context, roomCode string) ([]PlayerView, error) {
	room, err := s.getRoomByCode(ctx, roomCode)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return []PlayerView{}, nil
	}
	rows, err := s.store.Select(ctx, tablePlayers, []string{"id", "display_name", "cash", "created_at"}, store.Query{
		Eq: []store.Cond{store.Eq("room_id", room.ID)},
	})
	if err != nil {
		return nil, err
	}
	out := make([]PlayerView, len(rows))
	for i, row := range rows {
		out[i] = PlayerView{
			ID:          row.String("id"),
			DisplayName: row.String("display_name"),
			Cash:        row.Float("cash"),
		}
	}
	return out, nil
}

// ExecuteTrade runs the trade algorithm for an authenticated player:
// fresh snapshot, spread-adjusted execution price, affordability or
// sufficiency check, then cash patch, holding upsert and trade insert.
// Validation failures happen before the first write, so a rejected
// trade is a no-op on persisted state.
func (s *Service) ExecuteTrade(ctx context.Context, player Player, in TradeInput) (TradeResult, error) {
	var out TradeResult
	if in.Qty <= 0 {
		return out, ErrInvalidQuantity
	}

	release, err := s.locks.Acquire(ctx, player.ID)
	if err != nil {
		return out, err
	}
	defer release()

	if in.IdempotencyKey != "" {
		dup, err := s.store.Select(ctx, tableTrades, []string{"id"}, store.Query{
			Eq:    []store.Cond{store.Eq("idempotency_key", in.IdempotencyKey)},
			Limit: 1,
		})
		if err != nil {
			return out, err
		}
		if len(dup) > 0 {
			return out, ErrDuplicateIdempotency
		}
	}

	// Re-read cash under the lock: the authenticated snapshot was taken
	// before the lock and may predate a concurrent trade.
	player, err = s.refreshPlayer(ctx, player)
	if err != nil {
		return out, err
	}

	items, err := s.market.Items(ctx, in.Market)
	if err != nil {
		return out, err
	}
	item, ok := findItem(items, in.Coin)
	if !ok {
		return out, ErrCoinNotFound
	}

	priceExec := item.PriceNow * (1 + s.spreadPct)
	if in.Side == SideSell {
		priceExec = item.PriceNow * (1 - s.spreadPct)
	}
	notional := in.Qty * priceExec

	currentQty, currentAvgCost, err := s.getHolding(ctx, player, in.Market, item.Coin)
	if err != nil {
		return out, err
	}

	nextCash := player.Cash
	nextQty := currentQty
	nextAvgCost := currentAvgCost

	switch in.Side {
	case SideBuy:
		if player.Cash < notional {
			return out, ErrInsufficientCash
		}
		nextCash = player.Cash - notional
		nextQty = currentQty + in.Qty
		if nextQty > 0 {
			nextAvgCost = (currentQty*currentAvgCost + in.Qty*priceExec) / nextQty
		} else {
			nextAvgCost = 0
		}
	case SideSell:
		if currentQty < in.Qty {
			return out, ErrInsufficientHoldings
		}
		nextCash = player.Cash + notional
		nextQty = currentQty - in.Qty
		if nextQty == 0 {
			nextAvgCost = 0
		}
	default:
		return out, ErrInvalidSide
	}

	if err := s.store.Patch(ctx, tablePlayers, store.Query{
		Eq: []store.Cond{store.Eq("id", player.ID)},
	}, store.Row{"cash": nextCash}); err != nil {
		return out, err
	}

	if err := s.store.Upsert(ctx, tableHoldings, store.Row{
		"room_id":    player.RoomID,
		"player_id":  player.ID,
		"market":     in.Market,
		"coin":       item.Coin,
		"qty":        nextQty,
		"avg_cost":   nextAvgCost,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}, "player_id", "market", "coin"); err != nil {
		return out, err
	}

	tradePayload := store.Row{
		"room_id":    player.RoomID,
		"player_id":  player.ID,
		"market":     in.Market,
		"coin":       item.Coin,
		"side":       in.Side,
		"qty":        in.Qty,
		"price_exec": priceExec,
		"notional":   notional,
		"spread_pct": s.spreadPct,
	}
	if in.IdempotencyKey != "" {
		tradePayload["idempotency_key"] = in.IdempotencyKey
	}
	trade, err := s.store.Insert(ctx, tableTrades, tradePayload)
	if err != nil {
		return out, err
	}

	s.log.Info("trade executed",
		"player_id", player.ID,
		"market", in.Market,
		"coin", item.Coin,
		"side", in.Side,
		"qty", in.Qty,
		"price_exec", priceExec,
	)

	return TradeResult{
		Cash: nextCash,
		Holding: HoldingView{
			Coin:    item.Coin,
			Qty:     nextQty,
			AvgCost: nextAvgCost,
		},
		Trade: TradeView{
			ID:        trade.String("id"),
			Coin:      trade.String("coin"),
			Side:      trade.String("side"),
			Qty:       trade.Float("qty"),
			PriceExec: trade.Float("price_exec"),
			Notional:  trade.Float("notional"),
			SpreadPct: trade.Float("spread_pct"),
			CreatedAt: trade.String("created_at"),
		},
		PriceExec: priceExec,
	}, nil
}

// DebugState dumps rooms and players for the admin endpoint.
func (s *Service) DebugState(ctx context.Context) ([]store.Row, []store.Row, error) {
	rooms, err := s.store.Select(ctx, tableRooms, []string{"id", "room_code", "name", "created_at"}, store.Query{
		OrderBy: "created_at",
		Desc:    true,
	})
	if err != nil {
		return nil, nil, err
	}
	players, err := s.store.Select(ctx, tablePlayers, []string{"id", "room_id", "display_name", "cash", "created_at"}, store.Query{
		OrderBy: "created_at",
		Desc:    true,
	})
	if err != nil {
		return nil, nil, err
	}
	return rooms, players, nil
}

// findItem resolves a coin by canonical code first; display name is
// accepted as an alias and can never shadow another coin's code.
func findItem(items []market.Item, coin string) (market.Item, bool) {
	for _, item := range items {
		if item.Coin == coin {
			return item, true
		}
	}
	for _, item := range items {
		if item.DisplayName == coin {
			return item, true
		}
	}
	return market.Item{}, false
}

func (s *Service) getRoomByCode(ctx context.Context, roomCode string) (*Room, error) {
	rows, err := s.store.Select(ctx, tableRooms, []string{"id", "room_code"}, store.Query{
		Eq:    []store.Cond{store.Eq("room_code", roomCode)},
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &Room{ID: rows[0].String("id"), RoomCode: rows[0].String("room_code")}, nil
}

// getOrCreateRoom is idempotent per code but not race-free: two
// concurrent first joins can insert duplicate rooms unless the store
// enforces the room_code unique constraint.
func (s *Service) getOrCreateRoom(ctx context.Context, roomCode string) (Room, error) {
	existing, err := s.getRoomByCode(ctx, roomCode)
	if err != nil {
		return Room{}, err
	}
	if existing != nil {
		return *existing, nil
	}
	row, err := s.store.Insert(ctx, tableRooms, store.Row{"room_code": roomCode})
	if err != nil {
		return Room{}, err
	}
	s.log.Info("room created", "room_code", roomCode)
	return Room{ID: row.String("id"), RoomCode: row.String("room_code")}, nil
}

func (s *Service) refreshPlayer(ctx context.Context, player Player) (Player, error) {
	rows, err := s.store.Select(ctx, tablePlayers, playerColumns, store.Query{
		Eq:    []store.Cond{store.Eq("id", player.ID)},
		Limit: 1,
	})
	if err != nil {
		return Player{}, err
	}
	if len(rows) == 0 {
		return Player{}, ErrInvalidCredentials
	}
	return playerFromRow(rows[0]), nil
}

func (s *Service) getPlayerByName(ctx context.Context, roomID, displayName string) (*Player, error) {
	rows, err := s.store.Select(ctx, tablePlayers, playerColumns, store.Query{
		Eq: []store.Cond{
			store.Eq("room_id", roomID),
			store.Eq("display_name", displayName),
		},
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	player := playerFromRow(rows[0])
	return &player, nil
}

func (s *Service) createPlayer(ctx context.Context, roomID, displayName, playerCode string) (Player, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(playerCode), bcrypt.DefaultCost)
	if err != nil {
		return Player{}, err
	}
	row, err := s.store.Insert(ctx, tablePlayers, store.Row{
		"room_id":      roomID,
		"display_name": displayName,
		"player_code":  string(hash),
		"cash":         s.startingCash,
	})
	if err != nil {
		return Player{}, err
	}
	return playerFromRow(row), nil
}

// pinMatches verifies a presented PIN against the stored credential.
// Players created before PINs were hashed still carry the plain code,
// so anything that is not a bcrypt hash falls back to direct equality.
func pinMatches(stored, presented string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(presented)) == nil
	}
	return stored == presented
}

func (s *Service) getHolding(ctx context.Context, player Player, marketName, coin string) (qty, avgCost float64, err error) {
	rows, err := s.store.Select(ctx, tableHoldings, holdingColumns, store.Query{
		Eq: []store.Cond{
			store.Eq("player_id", player.ID),
			store.Eq("room_id", player.RoomID),
			store.Eq("market", marketName),
			store.Eq("coin", coin),
		},
		Limit: 1,
	})
	if err != nil {
		return 0, 0, err
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}
	return rows[0].Float("qty"), rows[0].Float("avg_cost"), nil
}

func playerFromRow(row store.Row) Player {
	return Player{
		ID:          row.String("id"),
		RoomID:      row.String("room_id"),
		DisplayName: row.String("display_name"),
		PlayerCode:  row.String("player_code"),
		Cash:        row.Float("cash"),
	}
}
