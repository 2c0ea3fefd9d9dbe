// Package exchange defines the capability the execution engine needs from a
// derivatives exchange, plus the Binance USDⓈ-M futures implementation.
package exchange

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Order sides and types, as the exchange spells them
const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeLimit  = "LIMIT"
	OrderTypeMarket = "MARKET"

	TimeInForceGTC = "GTC"
)

// Filters holds the per-symbol trading constraints. A zero value means the
// exchange imposes no constraint on that axis.
type Filters struct {
	StepSize    decimal.Decimal // minimum quantity increment
	TickSize    decimal.Decimal // minimum price increment
	MinNotional decimal.Decimal // minimum price * quantity
}

// OrderRequest describes one order to be placed. Price and TimeInForce are
// only set for LIMIT orders.
type OrderRequest struct {
	Symbol      string
	Side        string
	Type        string
	Quantity    decimal.Decimal
	Price       decimal.Decimal
	TimeInForce string
}

// Position is the signed position size for one symbol. Quantity > 0 is long,
// < 0 is short, zero is flat.
type Position struct {
	Symbol   string
	Quantity decimal.Decimal
}

// Exchange is the capability consumed by the engine. Implementations own
// authentication, signing, transport and timeouts; the engine treats every
// call as potentially slow.
type Exchange interface {
	// GetFilters returns the trading constraints for a symbol.
	GetFilters(ctx context.Context, symbol string) (Filters, error)

	// PlaceOrder submits one order and returns the exchange order ID.
	// A business-level refusal comes back as *RejectedError, a transport
	// or exchange outage as *UnavailableError.
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)

	// CancelAllOrders cancels every open order for a symbol and returns
	// how many were open at the time.
	CancelAllOrders(ctx context.Context, symbol string) (int, error)

	// GetPosition returns the current signed position for a symbol.
	GetPosition(ctx context.Context, symbol string) (Position, error)
}

// RejectedError is a business-level order refusal from the exchange. It is
// data for the caller to record, not a fault to abort on.
type RejectedError struct {
	Code    int64
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("order rejected by exchange (code %d): %s", e.Code, e.Message)
}

// Binance rejection codes for an order whose notional is too small.
// -4164 is the futures MIN_NOTIONAL code, -1013 the generic filter failure.
const (
	codeMinNotional   = -4164
	codeFilterFailure = -1013
)

// IsMinNotional reports whether the rejection is the minimum-notional case,
// the only rejection the engine is allowed to retry.
func (e *RejectedError) IsMinNotional() bool {
	if e.Code == codeMinNotional {
		return true
	}
	return e.Code == codeFilterFailure && strings.Contains(strings.ToLower(e.Message), "notional")
}

// UnavailableError wraps a connectivity or exchange-side outage. There is no
// per-order meaning to it; the whole signal fails.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("exchange unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
