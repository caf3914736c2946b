package gateway

// REST request/response shapes. Every price/quantity field crosses this
// boundary as a decimal string (money.Price/money.Quantity's String/Parse
// round trip) so a client never has to know the fixed-point scale.

// OrderRequest is the payload for POST /order.
type OrderRequest struct {
	Symbol           string `json:"symbol"`
	AccountID        string `json:"accountId"`
	Side             string `json:"side"`             // "BUY" | "SELL"
	Type             string `json:"type"`              // "LIMIT" | "MARKET" | "STOP_LOSS" | "STOP_LOSS_LIMIT" | ...
	TimeInForce      string `json:"timeInForce,omitempty"`
	Quantity         string `json:"quantity"`
	Price            string `json:"price,omitempty"`
	StopPrice        string `json:"stopPrice,omitempty"`
	NewClientOrderID string `json:"newClientOrderId,omitempty"`
}

// Fill is one trade an order participated in, as returned in OrderResponse.
type Fill struct {
	Price        string `json:"price"`
	Quantity     string `json:"qty"`
	CounterOrder string `json:"counterOrderId"`
	IsMaker      bool   `json:"isMaker"`
}

// OrderResponse is the order snapshot returned by POST /order and DELETE
// /order.
type OrderResponse struct {
	OrderID           string `json:"orderId"`
	ClientOrderID     string `json:"clientOrderId"`
	Symbol            string `json:"symbol"`
	Side              string `json:"side"`
	Type              string `json:"type"`
	TimeInForce       string `json:"timeInForce"`
	Price             string `json:"price,omitempty"`
	OrigQty           string `json:"origQty"`
	ExecutedQty       string `json:"executedQty"`
	Status            string `json:"status"`
	TransactTime       int64  `json:"transactTime"`
	Fills             []Fill `json:"fills,omitempty"`
}

// Level is a [price, qty] tuple as rendered for GET /depth.
type Level [2]string

// DepthResponse is the reply to GET /depth.
type DepthResponse struct {
	LastUpdateID uint64  `json:"lastUpdateId"`
	Bids         []Level `json:"bids"`
	Asks         []Level `json:"asks"`
}

// PriceFilter, LotSizeFilter, MinNotionalFilter are the per-symbol filter
// descriptors exposed by GET /exchangeInfo, named after the same filter
// shapes a venue's own API documents.
type PriceFilter struct {
	MinPrice string `json:"minPrice"`
	MaxPrice string `json:"maxPrice"`
	TickSize string `json:"tickSize"`
}

type LotSizeFilter struct {
	MinQty   string `json:"minQty"`
	MaxQty   string `json:"maxQty"`
	StepSize string `json:"stepSize"`
}

type MinNotionalFilter struct {
	MinNotional string `json:"minNotional"`
}

// SymbolInfo is one entry of GET /exchangeInfo's symbols array.
type SymbolInfo struct {
	Symbol             string            `json:"symbol"`
	BaseAsset          string            `json:"baseAsset"`
	QuoteAsset         string            `json:"quoteAsset"`
	Status             string            `json:"status"`
	OrderTypes         []string          `json:"orderTypes"`
	PriceFilter        PriceFilter       `json:"priceFilter"`
	LotSizeFilter      LotSizeFilter     `json:"lotSizeFilter"`
	MinNotionalFilter  MinNotionalFilter `json:"minNotionalFilter"`
}

// RateLimitDescriptor mirrors one of the limiter's configured buckets.
type RateLimitDescriptor struct {
	RateLimitType string `json:"rateLimitType"` // "REQUEST_WEIGHT" | "ORDERS"
	Interval      string `json:"interval"`      // "SECOND" | "MINUTE" | "DAY"
	Limit         uint32 `json:"limit"`
}

// ExchangeInfoResponse is the reply to GET /exchangeInfo.
type ExchangeInfoResponse struct {
	ServerTime int64                 `json:"serverTime"`
	RateLimits []RateLimitDescriptor `json:"rateLimits"`
	Symbols    []SymbolInfo          `json:"symbols"`
}

// TimeResponse is the reply to GET /time.
type TimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

// ErrorCode is the venue-style negative integer error code carried in
// ErrorResponse, matching the reference module's convention of a small
// closed set of numeric codes rather than a growing string enum.
type ErrorCode int

const (
	ErrCodeUnknown          ErrorCode = -1000
	ErrCodeValidation       ErrorCode = -1013
	ErrCodeInsufficientFunds ErrorCode = -2010
	ErrCodeUnknownOrder      ErrorCode = -2011
	ErrCodeRateLimit         ErrorCode = -1003
)

// ErrorResponse is the body of every non-2xx REST response.
type ErrorResponse struct {
	Code         ErrorCode `json:"code"`
	Msg          string    `json:"msg"`
	RetryAfterMs int64     `json:"retryAfterMs,omitempty"`
}
