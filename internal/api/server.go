package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"fncoins/internal/config"
	"fncoins/internal/game"
	"fncoins/internal/market"
	"fncoins/internal/metrics"
	"fncoins/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	cfg    config.APIConfig
	log    *slog.Logger
	game   *game.Service
	market *market.Reader
	mux    *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, gameSvc *game.Service, reader *market.Reader) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		log:    logger,
		game:   gameSvc,
		market: reader,
		mux:    chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "service": "fncoins-api"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/market", s.handleMarket)
		r.Post("/room/join", s.handleRoomJoin)
		r.Get("/room/state", s.handleRoomState)
		r.Get("/wallet", s.handleWallet)
		r.Post("/trade", s.handleTrade)
		r.Post("/trade/buy", s.handleTrade)
		r.Post("/trade/sell", s.handleTrade)
		r.Get("/players", s.handlePlayers)
		r.Get("/rooms/debug", s.handleRoomsDebug)
		r.Post("/sync", s.handleSync)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
}

// corsMiddleware mirrors what the browser UI needs: wildcard origin
// and an empty 204 on preflight.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "content-type,authorization,idempotency-key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	marketName := market.Normalize(r.URL.Query().Get("market"))
	if marketName == "" {
		writeError(w, http.StatusBadRequest, "Invalid market")
		return
	}
	items, err := s.market.Items(r.Context(), marketName)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market": marketName, "items": items})
}

func (s *Server) handleRoomJoin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RoomCode    string `json:"room_code"`
		DisplayName string `json:"display_name"`
		PlayerCode  string `json:"player_code"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	roomCode := strings.TrimSpace(in.RoomCode)
	displayName := strings.TrimSpace(in.DisplayName)
	playerCode := strings.TrimSpace(in.PlayerCode)
	if roomCode == "" || displayName == "" || playerCode == "" {
		writeError(w, http.StatusBadRequest, "room_code, display_name and player_code are required")
		return
	}

	room, player, err := s.game.JoinRoom(r.Context(), roomCode, displayName, playerCode)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"room":       room,
		"player":     player,
		"spread_pct": s.game.SpreadPct(),
	})
}

func (s *Server) handleRoomState(w http.ResponseWriter, r *http.Request) {
	player, marketName, ok := s.authenticateQuery(w, r, true)
	if !ok {
		return
	}
	holdings, err := s.game.Holdings(r.Context(), player, marketName)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"room":       game.Room{RoomCode: r.URL.Query().Get("room_code")},
		"player":     player,
		"market":     marketName,
		"spread_pct": s.game.SpreadPct(),
		"holdings":   holdings,
	})
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	player, marketName, ok := s.authenticateQuery(w, r, true)
	if !ok {
		return
	}
	holdings, err := s.game.Holdings(r.Context(), player, marketName)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cash":     player.Cash,
		"holdings": holdings,
	})
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RoomCode    string  `json:"room_code"`
		DisplayName string  `json:"display_name"`
		PlayerCode  string  `json:"player_code"`
		Market      string  `json:"market"`
		Coin        string  `json:"coin"`
		Side        string  `json:"side"`
		Qty         float64 `json:"qty"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	side := sideFromPath(r.URL.Path)
	if side == "" {
		side = game.NormalizeSide(in.Side)
	}
	roomCode := strings.TrimSpace(in.RoomCode)
	displayName := strings.TrimSpace(in.DisplayName)
	playerCode := strings.TrimSpace(in.PlayerCode)
	marketName := market.Normalize(in.Market)
	coin := strings.TrimSpace(in.Coin)
	if roomCode == "" || displayName == "" || playerCode == "" || marketName == "" || coin == "" || side == "" || in.Qty <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid trade payload")
		return
	}

	player, err := s.game.Authenticate(r.Context(), roomCode, displayName, playerCode)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	result, err := s.game.ExecuteTrade(r.Context(), player, game.TradeInput{
		Market:         marketName,
		Coin:           coin,
		Side:           side,
		Qty:            in.Qty,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		s.countRejection(err)
		s.writeDomainError(w, err)
		return
	}
	metrics.TradesTotal.WithLabelValues(side).Inc()

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"cash":       result.Cash,
		"holding":    result.Holding,
		"trade":      result.Trade,
		"price_exec": result.PriceExec,
		"spread_pct": s.game.SpreadPct(),
	})
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	roomCode := strings.TrimSpace(r.URL.Query().Get("room_code"))
	if roomCode == "" {
		writeError(w, http.StatusBadRequest, "room_code is required")
		return
	}
	players, err := s.game.RoomPlayers(r.Context(), roomCode)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room_code": roomCode,
		"players":   players,
	})
}

func (s *Server) handleRoomsDebug(w http.ResponseWriter, r *http.Request) {
	expected := s.cfg.AdminToken
	if expected == "" {
		expected = s.cfg.SyncToken
	}
	if expected == "" || bearerToken(r.Header.Get("Authorization")) != expected {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	rooms, players, err := s.game.DebugState(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms, "players": players})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.cfg.SyncToken == "" || strings.TrimSpace(in.Token) != s.cfg.SyncToken {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "Sync endpoint is available"})
}

// authenticateQuery resolves the player from the credential triple in
// the query string. Writes the error response itself on failure.
func (s *Server) authenticateQuery(w http.ResponseWriter, r *http.Request, needMarket bool) (game.Player, string, bool) {
	q := r.URL.Query()
	roomCode := strings.TrimSpace(q.Get("room_code"))
	displayName := strings.TrimSpace(q.Get("display_name"))
	playerCode := strings.TrimSpace(q.Get("player_code"))
	marketName := market.Normalize(q.Get("market"))
	if roomCode == "" || displayName == "" || playerCode == "" || (needMarket && marketName == "") {
		writeError(w, http.StatusBadRequest, "room_code, display_name, player_code and market are required")
		return game.Player{}, "", false
	}
	player, err := s.game.Authenticate(r.Context(), roomCode, displayName, playerCode)
	if err != nil {
		s.writeDomainError(w, err)
		return game.Player{}, "", false
	}
	return player, marketName, true
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, game.ErrCoinNotFound),
		errors.Is(err, game.ErrInvalidQuantity),
		errors.Is(err, game.ErrInvalidSide),
		errors.Is(err, game.ErrInsufficientCash),
		errors.Is(err, game.ErrInsufficientHoldings):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrDuplicateIdempotency):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, market.ErrNoDataSource), errors.Is(err, store.ErrUnavailable):
		s.log.Error("store failure", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.log.Error("unexpected failure", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) countRejection(err error) {
	switch {
	case errors.Is(err, game.ErrInsufficientCash):
		metrics.TradeRejections.WithLabelValues("insufficient_cash").Inc()
	case errors.Is(err, game.ErrInsufficientHoldings):
		metrics.TradeRejections.WithLabelValues("insufficient_holdings").Inc()
	case errors.Is(err, game.ErrCoinNotFound):
		metrics.TradeRejections.WithLabelValues("coin_not_found").Inc()
	case errors.Is(err, game.ErrDuplicateIdempotency):
		metrics.TradeRejections.WithLabelValues("duplicate").Inc()
	}
}

func sideFromPath(path string) string {
	switch {
	case strings.HasSuffix(path, "/trade/buy"):
		return game.SideBuy
	case strings.HasSuffix(path, "/trade/sell"):
		return game.SideSell
	default:
		return ""
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
