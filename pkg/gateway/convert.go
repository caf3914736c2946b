package gateway

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/hyperlicked/pkg/money"
	"github.com/uhyunpark/hyperlicked/pkg/order"
)

// parseDecimalPrice and parseDecimalQuantity are the REST boundary's only
// entry point for caller-supplied decimal strings. decimal.NewFromString
// rejects malformed input (stray commas, multiple signs) with a clear
// error before the string ever reaches money's own truncating fixed-point
// parser, which remains the sole source of truth for the actual
// raw-integer conversion — no rounding happens here. Scientific notation
// such as "1e10" passes decimal's check but is rejected by money's parser,
// which accepts only plain digits with an optional sign and decimal point.
func parseDecimalPrice(s string) (money.Price, error) {
	if _, err := decimal.NewFromString(s); err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}
	return money.ParsePrice(s)
}

func parseDecimalQuantity(s string) (money.Quantity, error) {
	if _, err := decimal.NewFromString(s); err != nil {
		return 0, fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	return money.ParseQuantity(s)
}

func parseSide(s string) (order.Side, error) {
	switch strings.ToUpper(s) {
	case "BUY":
		return order.Buy, nil
	case "SELL":
		return order.Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

func parseType(s string) (order.Type, error) {
	switch strings.ToUpper(s) {
	case "MARKET":
		return order.Market, nil
	case "LIMIT":
		return order.Limit, nil
	case "LIMIT_MAKER":
		return order.LimitMaker, nil
	case "STOP_LOSS":
		return order.StopLoss, nil
	case "STOP_LOSS_LIMIT":
		return order.StopLossLimit, nil
	case "TAKE_PROFIT":
		return order.TakeProfit, nil
	case "TAKE_PROFIT_LIMIT":
		return order.TakeProfitLimit, nil
	default:
		return 0, fmt.Errorf("unknown order type %q", s)
	}
}

func parseTimeInForce(s string) (order.TimeInForce, error) {
	if s == "" {
		return order.GTC, nil
	}
	switch strings.ToUpper(s) {
	case "GTC":
		return order.GTC, nil
	case "IOC":
		return order.IOC, nil
	case "FOK":
		return order.FOK, nil
	default:
		return 0, fmt.Errorf("unknown timeInForce %q", s)
	}
}

// orderTypeNames lists every order.Type string, in declaration order, for
// SymbolInfo.OrderTypes rendering.
var orderTypeNames = []order.Type{
	order.Market, order.Limit, order.LimitMaker,
	order.StopLoss, order.StopLossLimit, order.TakeProfit, order.TakeProfitLimit,
}
