package gateway

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperlicked/pkg/events"
	"github.com/uhyunpark/hyperlicked/pkg/marketdata"
	"github.com/uhyunpark/hyperlicked/pkg/money"
	"github.com/uhyunpark/hyperlicked/pkg/order"
	"github.com/uhyunpark/hyperlicked/pkg/usecase"
)

// strategyHub upgrades connections on /strategy to a binary WireMessage
// stream: the gob envelope spec.md §6 defines for gateway/strategy IPC,
// as opposed to /ws's JSON-over-text feed meant for browser clients.
// A strategy connection receives trade pushes, requests depth snapshots
// (sent only in reply to a SnapshotRequest) and submits orders over the
// same socket, so a colocated strategy process never needs a second REST
// round trip just to place an order.
type strategyHub struct {
	log      *zap.Logger
	events   *events.Hub
	exchange *usecase.Exchange
}

func newStrategyHub(log *zap.Logger, hub *events.Hub, exchange *usecase.Exchange) *strategyHub {
	return &strategyHub{log: log, events: hub, exchange: exchange}
}

func (h *strategyHub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("strategy ws upgrade failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	sub := h.events.Register(id)
	c := &strategyClient{id: id, conn: conn, sub: sub, hub: h}

	go c.writePump()
	go c.readPump()
}

type strategyClient struct {
	id   string
	conn *websocket.Conn
	sub  *events.Subscriber
	hub  *strategyHub
	seq  uint64
}

func (c *strategyClient) close() {
	c.hub.events.Unregister(c.id)
	c.conn.Close()
}

// readPump decodes incoming WireMessage frames. It handles two request
// types: MsgOrderRequest, answered on the same connection with
// MsgOrderResponse, and MsgSnapshotRequest, answered with
// MsgOrderBookSnapshot; other types are logged and ignored.
func (c *strategyClient) readPump() {
	defer c.close()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("strategy ws read error", zap.Error(err))
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		env, err := decodeEnvelope(data)
		if err != nil {
			c.hub.log.Warn("strategy ws decode envelope failed", zap.Error(err))
			continue
		}

		switch env.MsgType {
		case MsgOrderRequest:
			c.handleOrderRequest(env)
		case MsgSnapshotRequest:
			c.handleSnapshotRequest(env)
		default:
			c.hub.log.Debug("strategy ws unhandled message type", zap.Uint8("msg_type", uint8(env.MsgType)))
		}
	}
}

func (c *strategyClient) handleOrderRequest(env WireMessage) {
	var req OrderWireRequest
	if err := env.Decode(&req); err != nil {
		c.hub.log.Warn("strategy ws decode order request failed", zap.Error(err))
		return
	}

	resp := c.submitOrder(req)
	c.send(MsgOrderResponse, resp)
}

func (c *strategyClient) submitOrder(req OrderWireRequest) OrderWireResponse {
	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		return OrderWireResponse{ClientOrderID: req.ClientOrderID, ErrorCode: "VALIDATION_FAILED", ErrorMsg: "invalid accountId"}
	}

	res, err := c.hub.exchange.SubmitOrder(context.Background(), usecase.SubmitOrderRequest{
		ClientID:      c.id,
		AccountID:     accountID,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          order.Side(req.Side),
		Type:          order.Type(req.Type),
		TimeInForce:   order.TimeInForce(req.TimeInForce),
		Quantity:      money.QuantityFromRaw(req.QuantityRaw),
		Price:         money.PriceFromRaw(req.PriceRaw),
		HasPrice:      req.HasPrice,
		StopPrice:     money.PriceFromRaw(req.StopPriceRaw),
		HasStopPrice:  req.HasStopPrice,
	})
	if err != nil {
		return OrderWireResponse{ClientOrderID: req.ClientOrderID, ErrorCode: "SUBMIT_FAILED", ErrorMsg: err.Error()}
	}

	o := res.Order
	return OrderWireResponse{
		OrderID:       o.ID.String(),
		ClientOrderID: o.ClientOrderID,
		Status:        int8(o.Status),
		FilledQtyRaw:  o.FilledQuantity.Raw(),
		RemainingRaw:  o.Remaining().Raw(),
	}
}

func (c *strategyClient) handleSnapshotRequest(env WireMessage) {
	var req marketdata.SnapshotRequest
	if err := env.Decode(&req); err != nil {
		c.hub.log.Warn("strategy ws decode snapshot request failed", zap.Error(err))
		return
	}

	depth, err := c.hub.exchange.GetDepth(context.Background(), c.id, req.Symbol, 0)
	if err != nil {
		c.hub.log.Warn("strategy ws snapshot query failed", zap.String("symbol", req.Symbol), zap.Error(err))
		return
	}

	snap := marketdata.NewSnapshot("exchange-sim", req.Symbol, depth.Sequence, c.nowNs(), depth.Bids, depth.Asks)
	c.send(MsgOrderBookSnapshot, snap)
}

func (c *strategyClient) nowNs() int64 {
	return c.hub.exchange.Clock().Now().UnixNano()
}

func (c *strategyClient) send(msgType MsgType, payload any) {
	c.seq++
	env, err := EncodeWireMessage(msgType, c.seq, c.nowNs(), c.id, payload)
	if err != nil {
		c.hub.log.Warn("strategy ws encode envelope failed", zap.Error(err))
		return
	}
	raw, err := encodeEnvelope(env)
	if err != nil {
		c.hub.log.Warn("strategy ws encode frame failed", zap.Error(err))
		return
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
		c.hub.log.Debug("strategy ws write failed", zap.Error(err))
	}
}

// writePump relays trade executions from the shared events.Hub as
// MsgTrade WireMessage frames; a strategy subscribes to the same feed a
// browser client sees over /ws, just gob-encoded instead of JSON.
func (c *strategyClient) writePump() {
	for e := range c.sub.Events() {
		if e.Kind != events.KindTradeExecuted {
			continue
		}
		trade, ok := e.Payload.(events.TradeExecuted)
		if !ok {
			continue
		}
		price, err := money.ParsePrice(trade.Price)
		if err != nil {
			continue
		}
		qty, err := money.ParseQuantity(trade.Quantity)
		if err != nil {
			continue
		}
		c.send(MsgTrade, marketdata.TradeUpdate{
			Exchange:     "exchange-sim",
			Symbol:       e.Symbol,
			TradeID:      e.Sequence,
			TimestampNs:  e.Timestamp.UnixNano(),
			PriceRaw:     price.Raw(),
			QuantityRaw:  qty.Raw(),
			BuyerIsMaker: trade.BuyerIsMaker,
		})
	}
}
