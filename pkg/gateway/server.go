// Package gateway exposes a usecase.Exchange over REST and WebSocket,
// the way the reference module's pkg/api package exposes its perp engine:
// gorilla/mux for routing, rs/cors for cross-origin access, and a
// gorilla/websocket hub for the streaming side.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperlicked/pkg/clock"
	"github.com/uhyunpark/hyperlicked/pkg/events"
	"github.com/uhyunpark/hyperlicked/pkg/matching"
	"github.com/uhyunpark/hyperlicked/pkg/money"
	"github.com/uhyunpark/hyperlicked/pkg/order"
	"github.com/uhyunpark/hyperlicked/pkg/orderbook"
	"github.com/uhyunpark/hyperlicked/pkg/usecase"
	"github.com/uhyunpark/hyperlicked/pkg/xerrors"
)

// Server serves the simulator's REST surface and WebSocket stream over an
// already-wired usecase.Exchange.
type Server struct {
	log      *zap.Logger
	clk      clock.Clock
	exchange *usecase.Exchange
	hub      *events.Hub
	router   *mux.Router
	ws       *wsHub
	strategy *strategyHub
}

// NewServer builds a Server; hub is the same events.Hub the Exchange
// publishes to, so the WebSocket side observes the same feed a REST
// caller's own orders affect.
func NewServer(log *zap.Logger, clk clock.Clock, exchange *usecase.Exchange, hub *events.Hub) *Server {
	s := &Server{
		log:      log,
		clk:      clk,
		exchange: exchange,
		hub:      hub,
		router:   mux.NewRouter(),
		ws:       newWSHub(log, hub),
		strategy: newStrategyHub(log, hub, exchange),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)
	s.router.HandleFunc("/time", s.handleTime).Methods(http.MethodGet)
	s.router.HandleFunc("/exchangeInfo", s.handleExchangeInfo).Methods(http.MethodGet)
	s.router.HandleFunc("/depth", s.handleDepth).Methods(http.MethodGet)
	s.router.HandleFunc("/order", s.handleSubmitOrder).Methods(http.MethodPost)
	s.router.HandleFunc("/order", s.handleCancelOrder).Methods(http.MethodDelete)
	s.router.HandleFunc("/ws", s.ws.handleUpgrade)
	s.router.HandleFunc("/strategy", s.strategy.handleUpgrade)
}

// Start serves the router behind a permissive-by-default CORS policy,
// blocking until addr fails to bind or the process is terminated.
func (s *Server) Start(addr string) error {
	go s.ws.run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "X-API-Key"},
		AllowCredentials: false,
	})

	s.log.Info("gateway listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// clientID implements the client-identification rule: API-key header
// preferred, else the leading X-Forwarded-For hop, else "anonymous".
func clientID(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	return "anonymous"
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TimeResponse{ServerTime: s.clk.Now().UnixMilli()})
}

func (s *Server) handleExchangeInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.exchange.GetExchangeInfo(clientID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	symbols := make([]SymbolInfo, len(info.Symbols))
	for i, pair := range info.Symbols {
		types := make([]string, 0, len(orderTypeNames))
		for _, t := range orderTypeNames {
			if pair.AllowsType(t) {
				types = append(types, strings.ToUpper(t.String()))
			}
		}
		symbols[i] = SymbolInfo{
			Symbol:     pair.Symbol,
			BaseAsset:  pair.BaseAsset,
			QuoteAsset: pair.QuoteAsset,
			Status:     pair.Status.String(),
			OrderTypes: types,
			PriceFilter: PriceFilter{
				MinPrice: "0",
				MaxPrice: "0",
				TickSize: pair.TickSize.String(),
			},
			LotSizeFilter: LotSizeFilter{
				MinQty:   pair.MinQty.String(),
				MaxQty:   pair.MaxQty.String(),
				StepSize: pair.LotSize.String(),
			},
			MinNotionalFilter: MinNotionalFilter{MinNotional: pair.MinNotional.String()},
		}
	}

	rateLimits := []RateLimitDescriptor{
		{RateLimitType: "REQUEST_WEIGHT", Interval: "MINUTE", Limit: info.RateLimits.RequestWeightPerMinute},
		{RateLimitType: "ORDERS", Interval: "SECOND", Limit: info.RateLimits.OrdersPerSecond},
		{RateLimitType: "ORDERS", Interval: "DAY", Limit: info.RateLimits.OrdersPerDay},
	}

	writeJSON(w, http.StatusOK, ExchangeInfoResponse{
		ServerTime: s.clk.Now().UnixMilli(),
		RateLimits: rateLimits,
		Symbols:    symbols,
	})
}

func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: ErrCodeValidation, Msg: "symbol is required"})
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	depth, err := s.exchange.GetDepth(r.Context(), clientID(r), symbol, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DepthResponse{
		LastUpdateID: depth.Sequence,
		Bids:         levelsOf(depth.Bids),
		Asks:         levelsOf(depth.Asks),
	})
}

func levelsOf(ls []orderbook.Level) []Level {
	out := make([]Level, len(ls))
	for i, l := range ls {
		out[i] = Level{l.Price.String(), l.Quantity.String()}
	}
	return out
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: ErrCodeValidation, Msg: "invalid JSON body"})
		return
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: ErrCodeValidation, Msg: "invalid accountId"})
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: ErrCodeValidation, Msg: err.Error()})
		return
	}
	typ, err := parseType(req.Type)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: ErrCodeValidation, Msg: err.Error()})
		return
	}
	tif, err := parseTimeInForce(req.TimeInForce)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: ErrCodeValidation, Msg: err.Error()})
		return
	}
	qty, err := parseDecimalQuantity(req.Quantity)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: ErrCodeValidation, Msg: "invalid quantity"})
		return
	}

	var price money.Price
	hasPrice := req.Price != ""
	if hasPrice {
		if price, err = parseDecimalPrice(req.Price); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: ErrCodeValidation, Msg: "invalid price"})
			return
		}
	}
	var stopPrice money.Price
	hasStopPrice := req.StopPrice != ""
	if hasStopPrice {
		if stopPrice, err = parseDecimalPrice(req.StopPrice); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: ErrCodeValidation, Msg: "invalid stopPrice"})
			return
		}
	}

	var marketTop money.Price
	if !hasPrice {
		marketTop = s.topOfBook(r.Context(), req.Symbol, side)
	}

	res, err := s.exchange.SubmitOrder(r.Context(), usecase.SubmitOrderRequest{
		ClientID:       clientID(r),
		AccountID:      accountID,
		ClientOrderID:  req.NewClientOrderID,
		Symbol:         req.Symbol,
		Side:           side,
		Type:           typ,
		TimeInForce:    tif,
		Quantity:       qty,
		Price:          price,
		HasPrice:       hasPrice,
		StopPrice:      stopPrice,
		HasStopPrice:   hasStopPrice,
		MarketTopPrice: marketTop,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, orderResponse(res.Order, res.Trades))
}

// topOfBook gives SubmitOrder a best-effort top-of-book estimate for
// sizing a priceless order's (Market, or any !HasPrice) reservation; a
// symbol with an empty book on the relevant side falls back to zero. For
// a priceless Buy that makes the quote reservation zero, which
// ledger.Reserve rejects, so SubmitOrder fails with an account error.
func (s *Server) topOfBook(ctx context.Context, symbol string, side order.Side) money.Price {
	depth, err := s.exchange.GetDepth(ctx, "internal", symbol, 1)
	if err != nil {
		return 0
	}
	if side == order.Buy {
		if len(depth.Asks) > 0 {
			return depth.Asks[0].Price
		}
		return 0
	}
	if len(depth.Bids) > 0 {
		return depth.Bids[0].Price
	}
	return 0
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	idRaw := r.URL.Query().Get("orderId")
	if symbol == "" || idRaw == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: ErrCodeValidation, Msg: "symbol and orderId are required"})
		return
	}
	orderID, err := uuid.Parse(idRaw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Code: ErrCodeValidation, Msg: "invalid orderId"})
		return
	}

	o, err := s.exchange.CancelOrder(r.Context(), clientID(r), symbol, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse(o, nil))
}

func orderResponse(o *order.Order, trades []matching.Trade) OrderResponse {
	resp := OrderResponse{
		OrderID:       o.ID.String(),
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          strings.ToUpper(o.Side.String()),
		Type:          strings.ToUpper(o.Type.String()),
		TimeInForce:   o.TimeInForce.String(),
		OrigQty:       o.Quantity.String(),
		ExecutedQty:   o.FilledQuantity.String(),
		Status:        o.Status.String(),
		TransactTime:  o.UpdatedAt.UnixMilli(),
	}
	if o.HasPrice {
		resp.Price = o.Price.String()
	}
	for _, tr := range trades {
		isBuyer := tr.BuyOrderID == o.ID
		counter := tr.SellOrderID
		isMaker := tr.BuyerIsMaker
		if !isBuyer {
			counter = tr.BuyOrderID
			isMaker = !tr.BuyerIsMaker
		}
		resp.Fills = append(resp.Fills, Fill{
			Price:        tr.Price.String(),
			Quantity:     tr.Quantity.String(),
			CounterOrder: counter.String(),
			IsMaker:      isMaker,
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a xerrors.Code to the REST surface's numeric-code error
// shape and HTTP status.
func writeError(w http.ResponseWriter, err error) {
	xe, ok := xerrors.As(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Code: ErrCodeUnknown, Msg: err.Error()})
		return
	}

	status := http.StatusBadRequest
	resp := ErrorResponse{Msg: xe.Message}
	switch xe.Code {
	case xerrors.CodeRateLimited:
		status = http.StatusTooManyRequests
		resp.Code = ErrCodeRateLimit
		resp.RetryAfterMs = xe.RetryAfter.Milliseconds()
	case xerrors.CodeAccountError:
		status = http.StatusBadRequest
		resp.Code = ErrCodeInsufficientFunds
	case xerrors.CodeOrderNotFound, xerrors.CodeMissingOrderID:
		status = http.StatusBadRequest
		resp.Code = ErrCodeUnknownOrder
	case xerrors.CodeValidationFailed, xerrors.CodeMissingPrice, xerrors.CodeMissingStopPrice,
		xerrors.CodeInvalidSymbol, xerrors.CodeSymbolNotFound:
		status = http.StatusBadRequest
		resp.Code = ErrCodeValidation
	case xerrors.CodeShardShutdown, xerrors.CodeInternal, xerrors.CodeTimeout:
		status = http.StatusInternalServerError
		resp.Code = ErrCodeUnknown
	default:
		status = http.StatusInternalServerError
		resp.Code = ErrCodeUnknown
	}
	if resp.Msg == "" {
		resp.Msg = string(xe.Code)
	}
	writeJSON(w, status, resp)
}
