// Package engine turns validated grid signals into exchange-compliant order
// placement and position-closing requests.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"gridhook/exchange"
	"gridhook/logger"
)

// priceBump is the fixed upward price adjustment applied before the single
// retry of a minimum-notional rejection
var priceBump = decimal.RequireFromString("1.01")

// Sink receives every processed signal together with its report. The engine
// only writes to it; persistence and notification live behind it.
type Sink interface {
	RecordExecution(sig *GridSignal, rep *Report)
}

// Engine executes grid entry and exit signals against an injected exchange.
// One signal is processed to completion by a single goroutine; signals for
// the same symbol are serialized so an exit cannot interleave with a
// still-placing entry.
type Engine struct {
	ex   exchange.Exchange
	sink Sink

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an engine. sink may be nil.
func New(ex exchange.Exchange, sink Sink) *Engine {
	return &Engine{
		ex:    ex,
		sink:  sink,
		locks: make(map[string]*sync.Mutex),
	}
}

// Process executes one signal and returns its report. It never returns an
// error: every failure mode past parsing has a defined report shape.
func (e *Engine) Process(ctx context.Context, sig *GridSignal) *Report {
	lock := e.symbolLock(sig.Symbol)
	lock.Lock()
	defer lock.Unlock()

	var rep *Report
	switch sig.Kind {
	case KindGridEntry:
		rep = e.placeGrid(ctx, sig)
	case KindGridExit:
		rep = e.closeGrid(ctx, sig)
	case KindOrder:
		rep = e.placeSingle(ctx, sig)
	default:
		rep = failureReport(nil, 0, fmt.Sprintf("unsupported signal kind %q", sig.Kind), false)
	}

	if e.sink != nil {
		e.sink.RecordExecution(sig, rep)
	}
	return rep
}

// symbolLock returns the mutex serializing all processing for one symbol
func (e *Engine) symbolLock(symbol string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[symbol] = lock
	}
	return lock
}

// placeGrid places one GTC limit order per level, strictly in the given
// order. Levels fail independently; a partial grid is a normal outcome.
func (e *Engine) placeGrid(ctx context.Context, sig *GridSignal) *Report {
	filters, err := e.ex.GetFilters(ctx, sig.Symbol)
	if err != nil {
		// Without filters no level can be built
		logger.Errorf("[engine] %s: filters fetch failed: %v", sig.Symbol, err)
		return failureReport(nil, 0, fmt.Sprintf("fetching filters for %s: %v", sig.Symbol, err), isUnavailable(err))
	}

	outcomes := make([]OrderOutcome, 0, len(sig.Levels))
	message := ""
	for _, level := range sig.Levels {
		outcome := e.placeLevel(ctx, sig, level, filters)
		outcomes = append(outcomes, outcome)

		if isUnavailable(outcome.Err) {
			// Keep the already-placed levels in the report but stop
			// submitting into an outage
			logger.Errorf("[engine] %s: exchange unavailable after %d levels: %v",
				sig.Symbol, len(outcomes), outcome.Err)
			message = fmt.Sprintf("exchange unavailable after level %d of %d", len(outcomes), len(sig.Levels))
			break
		}
	}
	return newReport(outcomes, 0, message)
}

// placeLevel submits one grid level, retrying exactly once with a 1% higher
// price when the exchange calls the order too small
func (e *Engine) placeLevel(ctx context.Context, sig *GridSignal, level decimal.Decimal, filters exchange.Filters) OrderOutcome {
	req := e.buildLimitOrder(sig, level, filters)
	orderID, err := e.ex.PlaceOrder(ctx, req)
	if err == nil {
		return OrderOutcome{Request: req, OrderID: orderID}
	}

	var rej *exchange.RejectedError
	if errors.As(err, &rej) && rej.IsMinNotional() {
		bumped := level.Mul(priceBump)
		logger.Warnf("[engine] %s: level %s below min notional, retrying at %s",
			sig.Symbol, level, bumped)
		req = e.buildLimitOrder(sig, bumped, filters)
		orderID, err = e.ex.PlaceOrder(ctx, req)
		if err == nil {
			return OrderOutcome{Request: req, OrderID: orderID}
		}
	}

	logger.Warnf("[engine] %s: level %s rejected: %v", sig.Symbol, level, err)
	return OrderOutcome{Request: req, Err: err}
}

func (e *Engine) buildLimitOrder(sig *GridSignal, level decimal.Decimal, filters exchange.Filters) exchange.OrderRequest {
	quantity, price := Normalize(sig.LotSize, level, filters)
	return exchange.OrderRequest{
		Symbol:      sig.Symbol,
		Side:        sig.Side,
		Type:        exchange.OrderTypeLimit,
		Quantity:    quantity,
		Price:       price,
		TimeInForce: exchange.TimeInForceGTC,
	}
}

// closeGrid cancels all resident orders for the symbol, then flattens any
// open position with one market order. The steps run unconditionally in
// order: a cancel failure must not block flattening, and a flatten failure
// is reported, not raised.
func (e *Engine) closeGrid(ctx context.Context, sig *GridSignal) *Report {
	logger.Infof("[engine] %s: exit signal (%s)", sig.Symbol, sig.Reason)

	cancelled, err := e.ex.CancelAllOrders(ctx, sig.Symbol)
	if err != nil {
		logger.Warnf("[engine] %s: cancel-all failed, proceeding to flatten: %v", sig.Symbol, err)
	}

	pos, err := e.ex.GetPosition(ctx, sig.Symbol)
	if err != nil {
		logger.Errorf("[engine] %s: position fetch failed: %v", sig.Symbol, err)
		return failureReport(nil, cancelled,
			fmt.Sprintf("fetching position for %s: %v", sig.Symbol, err), isUnavailable(err))
	}

	if pos.Quantity.IsZero() {
		return newReport(nil, cancelled, "")
	}

	// Flatten on the opposite side of the position sign
	side := exchange.SideSell
	if pos.Quantity.IsNegative() {
		side = exchange.SideBuy
	}
	req := exchange.OrderRequest{
		Symbol:   sig.Symbol,
		Side:     side,
		Type:     exchange.OrderTypeMarket,
		Quantity: pos.Quantity.Abs(),
	}

	outcome := OrderOutcome{Request: req}
	outcome.OrderID, outcome.Err = e.ex.PlaceOrder(ctx, req)
	if outcome.Err != nil {
		logger.Errorf("[engine] %s: close order failed: %v", sig.Symbol, outcome.Err)
	}
	return newReport([]OrderOutcome{outcome}, cancelled, "")
}

// placeSingle executes the original webhook bot's one-shot order form
// through the same normalization path as the grid
func (e *Engine) placeSingle(ctx context.Context, sig *GridSignal) *Report {
	filters, err := e.ex.GetFilters(ctx, sig.Symbol)
	if err != nil {
		logger.Errorf("[engine] %s: filters fetch failed: %v", sig.Symbol, err)
		return failureReport(nil, 0, fmt.Sprintf("fetching filters for %s: %v", sig.Symbol, err), isUnavailable(err))
	}

	quantity, price := Normalize(sig.Quantity, sig.Price, filters)
	req := exchange.OrderRequest{
		Symbol:   sig.Symbol,
		Side:     sig.Side,
		Type:     sig.OrderType,
		Quantity: quantity,
	}
	if sig.OrderType == exchange.OrderTypeLimit {
		req.Price = price
		req.TimeInForce = exchange.TimeInForceGTC
	}

	outcome := OrderOutcome{Request: req}
	outcome.OrderID, outcome.Err = e.ex.PlaceOrder(ctx, req)
	return newReport([]OrderOutcome{outcome}, 0, "")
}

func isUnavailable(err error) bool {
	var unavail *exchange.UnavailableError
	return errors.As(err, &unavail)
}
