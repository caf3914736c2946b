package gateway

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/uhyunpark/hyperlicked/pkg/marketdata"
)

// MsgType tags the payload carried by a WireMessage envelope.
type MsgType uint8

const (
	MsgOrderBookSnapshot MsgType = iota
	MsgDepthUpdate
	MsgTrade
	MsgSnapshotRequest
	MsgOrderRequest
	MsgOrderResponse
)

func init() {
	gob.Register(marketdata.OrderBookSnapshot{})
	gob.Register(marketdata.DepthUpdate{})
	gob.Register(marketdata.TradeUpdate{})
	gob.Register(marketdata.SnapshotRequest{})
	gob.Register(OrderWireRequest{})
	gob.Register(OrderWireResponse{})
}

// WireMessage is the envelope every payload crosses the gateway/strategy
// IPC boundary wrapped in, gob-encoded the same way this lineage's P2P
// transport wraps its consensus messages.
type WireMessage struct {
	MsgType     MsgType
	Sequence    uint64
	TimestampNs int64
	Source      string
	Payload     []byte
}

// OrderWireRequest is the ORDER_REQUEST payload: a strategy's order
// intent, priced and sized in raw fixed-point so nothing is lost between
// a Go strategy process and the gateway.
type OrderWireRequest struct {
	Symbol           string
	AccountID        string
	Side             int8
	Type             int8
	TimeInForce      int8
	QuantityRaw      int64
	PriceRaw         int64
	HasPrice         bool
	StopPriceRaw     int64
	HasStopPrice     bool
	ClientOrderID    string
}

// OrderWireResponse is the ORDER_RESPONSE payload.
type OrderWireResponse struct {
	OrderID        string
	ClientOrderID  string
	Status         int8
	FilledQtyRaw   int64
	RemainingRaw   int64
	ErrorCode      string
	ErrorMsg       string
}

// EncodeWireMessage gob-encodes payload and wraps it in a WireMessage
// envelope stamped with msgType/sequence/timestampNs/source.
func EncodeWireMessage(msgType MsgType, sequence uint64, timestampNs int64, source string, payload any) (WireMessage, error) {
	body, err := gobEncode(payload)
	if err != nil {
		return WireMessage{}, fmt.Errorf("gateway: encode wire payload: %w", err)
	}
	return WireMessage{
		MsgType:     msgType,
		Sequence:    sequence,
		TimestampNs: timestampNs,
		Source:      source,
		Payload:     body,
	}, nil
}

// Decode gob-decodes m's payload bytes into target, which must be a
// pointer to the concrete type matching m.MsgType.
func (m WireMessage) Decode(target any) error {
	return gobDecode(m.Payload, target)
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

// encodeEnvelope/decodeEnvelope (de)serialize the WireMessage envelope
// itself, as opposed to gobEncode/gobDecode which (de)serialize the
// payload a WireMessage carries. A strategy connection's binary WS frame
// is one encodeEnvelope call's worth of bytes.
func encodeEnvelope(m WireMessage) ([]byte, error) {
	return gobEncode(m)
}

func decodeEnvelope(b []byte) (WireMessage, error) {
	var m WireMessage
	if err := gobDecode(b, &m); err != nil {
		return WireMessage{}, err
	}
	return m, nil
}
