// Package server exposes the broker's operations over HTTP, with websocket
// streams for quotes and executions.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"brokersim/engine"
	"brokersim/ledger"
	"brokersim/market"
	"brokersim/metrics"
)

// Config controls the HTTP surface.
type Config struct {
	ListenAddr string
	AuthToken  string
	CORSOrigin string
}

// NewDefaultConfig listens on :8080 with no auth token and permissive CORS.
func NewDefaultConfig() Config {
	return Config{
		ListenAddr: ":8080",
		CORSOrigin: "*",
	}
}

// Server maps the broker operations to REST endpoints and streams.
type Server struct {
	cfg    Config
	log    *zap.Logger
	broker *engine.Broker
	feed   *market.Feed

	quoteHub *hub[market.Quote]
	execHub  *hub[engine.Execution]
	upgrader websocket.Upgrader
}

// New wires a server to the broker and feed and starts consuming their
// streams. Quote subscriptions are registered for every instrument listed
// at construction time.
func New(cfg Config, broker *engine.Broker, feed *market.Feed, log *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		log:      log,
		broker:   broker,
		feed:     feed,
		quoteHub: newHub[market.Quote](),
		execHub:  newHub[engine.Execution](),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}

	for _, inst := range feed.Instruments() {
		feed.Subscribe(inst.Symbol, s.quoteHub.Broadcast)
	}
	go s.consumeExecutions()
	return s
}

// Routes builds the handler tree.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/orders", s.withCORS(s.withAuth(http.HandlerFunc(s.handleOrders))))
	mux.Handle("/orders/cancel", s.withCORS(s.withAuth(http.HandlerFunc(s.handleCancel))))
	mux.Handle("/orders/open", s.withCORS(s.withAuth(http.HandlerFunc(s.handleOpenOrders))))
	mux.Handle("/accounts/deposit", s.withCORS(s.withAuth(http.HandlerFunc(s.handleDeposit))))
	mux.Handle("/accounts/withdraw", s.withCORS(s.withAuth(http.HandlerFunc(s.handleWithdraw))))
	mux.Handle("/portfolio", s.withCORS(s.withAuth(http.HandlerFunc(s.handlePortfolio))))
	mux.Handle("/quotes", s.withCORS(s.withAuth(http.HandlerFunc(s.handleQuote))))
	mux.Handle("/instruments", s.withCORS(s.withAuth(http.HandlerFunc(s.handleInstruments))))
	mux.Handle("/market/open", s.withCORS(s.withAuth(http.HandlerFunc(s.handleMarketOpen))))
	mux.Handle("/market/close", s.withCORS(s.withAuth(http.HandlerFunc(s.handleMarketClose))))
	mux.Handle("/ws/quotes", s.withCORS(s.withAuth(http.HandlerFunc(s.handleQuoteStream))))
	mux.Handle("/ws/executions", s.withCORS(s.withAuth(http.HandlerFunc(s.handleExecutionStream))))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AuthToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token != s.cfg.AuthToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("missing or invalid token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type orderRequest struct {
	AccountID  string          `json:"account_id"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Type       string          `json:"type"`
	Quantity   int64           `json:"quantity"`
	LimitPrice decimal.Decimal `json:"limit_price"`
	StopPrice  decimal.Decimal `json:"stop_price"`
}

type orderView struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	Symbol       string          `json:"symbol"`
	Side         string          `json:"side"`
	Type         string          `json:"type"`
	Quantity     int64           `json:"quantity"`
	LimitPrice   decimal.Decimal `json:"limit_price,omitempty"`
	StopPrice    decimal.Decimal `json:"stop_price,omitempty"`
	Filled       int64           `json:"filled_quantity"`
	AvgFillPrice decimal.Decimal `json:"average_fill_price"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type cancelRequest struct {
	ID string `json:"id"`
}

type cashRequest struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type rejectionResponse struct {
	Error string     `json:"error"`
	Order *orderView `json:"order,omitempty"`
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePlaceOrder(w, r)
	case http.MethodGet:
		s.handleGetOrder(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}

	side, err := parseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ordType, err := parseOrderType(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	snap, err := s.broker.PlaceOrder(engine.OrderRequest{
		AccountID:  req.AccountID,
		Symbol:     req.Symbol,
		Side:       side,
		Type:       ordType,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		StopPrice:  req.StopPrice,
	})
	if err != nil {
		view := toOrderView(snap)
		writeJSON(w, statusFor(err), rejectionResponse{Error: err.Error(), Order: &view})
		return
	}
	writeJSON(w, http.StatusCreated, toOrderView(snap))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	snap, err := s.broker.GetOrder(r.URL.Query().Get("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(snap))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	if err := s.broker.CancelOrder(req.ID); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (s *Server) handleOpenOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	snaps := s.broker.ListOpenOrders(r.URL.Query().Get("account"))
	views := make([]orderView, 0, len(snaps))
	for _, snap := range snaps {
		views = append(views, toOrderView(snap))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleCashMovement(w, r, s.broker.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleCashMovement(w, r, s.broker.Withdraw)
}

func (s *Server) handleCashMovement(w http.ResponseWriter, r *http.Request, apply func(string, decimal.Decimal) (ledger.Transaction, error)) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req cashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	tx, err := apply(req.AccountID, req.Amount)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	portfolio, err := s.broker.GetPortfolio(r.URL.Query().Get("account"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, portfolio)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	quote, err := s.feed.GetQuote(r.URL.Query().Get("symbol"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleInstruments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.feed.Instruments())
}

func (s *Server) handleMarketOpen(w http.ResponseWriter, r *http.Request) {
	s.handleMarketStatus(w, r, s.broker.OpenMarket)
}

func (s *Server) handleMarketClose(w http.ResponseWriter, r *http.Request) {
	s.handleMarketStatus(w, r, s.broker.CloseMarket)
}

func (s *Server) handleMarketStatus(w http.ResponseWriter, r *http.Request, set func() error) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := set(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": s.feed.Status().String()})
}

type outboundMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func (s *Server) handleQuoteStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.quoteHub.Subscribe(32)
	defer s.quoteHub.Unsubscribe(sub)

	for quote := range sub.ch {
		msg := outboundMessage{Type: "quote", Data: quote}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (s *Server) handleExecutionStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.execHub.Subscribe(32)
	defer s.execHub.Unsubscribe(sub)

	for ex := range sub.ch {
		msg := outboundMessage{Type: "execution", Data: ex}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// ListenAndServe blocks serving HTTP until the context is canceled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.ListenAddr, Handler: s.Routes()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("listening", zap.String("addr", s.cfg.ListenAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) consumeExecutions() {
	for ex := range s.broker.Matcher().Executions() {
		s.execHub.Broadcast(ex)
	}
}

func toOrderView(snap engine.Snapshot) orderView {
	return orderView{
		ID:           snap.ID,
		AccountID:    snap.AccountID,
		Symbol:       snap.Symbol,
		Side:         strings.ToLower(snap.Side.String()),
		Type:         strings.ToLower(snap.Type.String()),
		Quantity:     snap.Quantity,
		LimitPrice:   snap.LimitPrice,
		StopPrice:    snap.StopPrice,
		Filled:       snap.Filled,
		AvgFillPrice: snap.AvgFillPrice,
		Status:       snap.Status.String(),
		CreatedAt:    snap.CreatedAt,
		UpdatedAt:    snap.UpdatedAt,
	}
}

func parseSide(value string) (engine.Side, error) {
	switch strings.ToLower(value) {
	case "buy", "bid", "b":
		return engine.Buy, nil
	case "sell", "ask", "s":
		return engine.Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %s", value)
	}
}

func parseOrderType(value string) (engine.OrderType, error) {
	switch strings.ToLower(strings.ReplaceAll(value, "-", "_")) {
	case "market", "mkt":
		return engine.Market, nil
	case "limit", "lmt":
		return engine.Limit, nil
	case "stop_loss", "stop", "stoploss":
		return engine.StopLoss, nil
	case "stop_limit", "stoplimit":
		return engine.StopLimit, nil
	default:
		return 0, fmt.Errorf("unknown order type %s", value)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrOrderNotFound),
		errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, market.ErrInstrumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrOrderTerminal):
		return http.StatusConflict
	case errors.Is(err, engine.ErrMarketClosed):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientHoldings):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
