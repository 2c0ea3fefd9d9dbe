package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gridhook/logger"
)

// BinanceFutures implements Exchange against Binance USDⓈ-M futures
type BinanceFutures struct {
	client *futures.Client

	// Exchange-info cache
	filtersCache    map[string]Filters
	filtersCachedAt time.Time
	filtersMu       sync.RWMutex
	cacheDuration   time.Duration
}

// NewBinanceFutures creates a Binance futures client. With testnet set, all
// requests go to the futures testnet.
func NewBinanceFutures(apiKey, secretKey string, testnet bool) *BinanceFutures {
	futures.UseTestnet = testnet
	return &BinanceFutures{
		client:        futures.NewClient(apiKey, secretKey),
		filtersCache:  make(map[string]Filters),
		cacheDuration: 15 * time.Second,
	}
}

// GetFilters returns the PRICE_FILTER / LOT_SIZE / MIN_NOTIONAL constraints
// for a symbol. The full exchange info is fetched once and cached briefly,
// since one grid signal asks for the same symbol several times.
func (b *BinanceFutures) GetFilters(ctx context.Context, symbol string) (Filters, error) {
	b.filtersMu.RLock()
	if time.Since(b.filtersCachedAt) < b.cacheDuration {
		if f, ok := b.filtersCache[symbol]; ok {
			b.filtersMu.RUnlock()
			return f, nil
		}
	}
	b.filtersMu.RUnlock()

	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return Filters{}, classifyErr(err)
	}

	cache := make(map[string]Filters, len(info.Symbols))
	for _, s := range info.Symbols {
		var f Filters
		if lot := s.LotSizeFilter(); lot != nil {
			f.StepSize = parseDecimal(lot.StepSize)
		}
		if price := s.PriceFilter(); price != nil {
			f.TickSize = parseDecimal(price.TickSize)
		}
		if notional := s.MinNotionalFilter(); notional != nil {
			f.MinNotional = parseDecimal(notional.Notional)
		}
		cache[s.Symbol] = f
	}

	b.filtersMu.Lock()
	b.filtersCache = cache
	b.filtersCachedAt = time.Now()
	b.filtersMu.Unlock()

	f, ok := cache[symbol]
	if !ok {
		return Filters{}, &RejectedError{Message: fmt.Sprintf("unknown symbol %s", symbol)}
	}
	return f, nil
}

// PlaceOrder submits one order and returns the exchange order ID
func (b *BinanceFutures) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	svc := b.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Type(futures.OrderType(req.Type)).
		Quantity(req.Quantity.String()).
		NewClientOrderID(newClientOrderID())
	if req.Type == OrderTypeLimit {
		svc = svc.Price(req.Price.String()).
			TimeInForce(futures.TimeInForceType(req.TimeInForce))
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return "", classifyErr(err)
	}
	logger.Infof("[binance] placed %s %s %s qty=%s price=%s orderId=%d",
		req.Type, req.Side, req.Symbol, req.Quantity, req.Price, resp.OrderID)
	return fmt.Sprintf("%d", resp.OrderID), nil
}

// CancelAllOrders cancels every open order for the symbol and returns how
// many were open before the cancel
func (b *BinanceFutures) CancelAllOrders(ctx context.Context, symbol string) (int, error) {
	open, err := b.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, classifyErr(err)
	}
	if err := b.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx); err != nil {
		return 0, classifyErr(err)
	}
	logger.Infof("[binance] cancelled %d open orders for %s", len(open), symbol)
	return len(open), nil
}

// GetPosition returns the signed net position for the symbol. In one-way
// mode Binance reports a single entry whose positionAmt carries the sign.
func (b *BinanceFutures) GetPosition(ctx context.Context, symbol string) (Position, error) {
	risks, err := b.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return Position{}, classifyErr(err)
	}

	total := decimal.Zero
	for _, r := range risks {
		if r.Symbol != symbol {
			continue
		}
		total = total.Add(parseDecimal(r.PositionAmt))
	}
	return Position{Symbol: symbol, Quantity: total}, nil
}

// classifyErr maps SDK errors onto the exchange error taxonomy: an API error
// body is a rejection, anything else means we could not reach the exchange.
func classifyErr(err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return &RejectedError{Code: apiErr.Code, Message: apiErr.Message}
	}
	return &UnavailableError{Err: err}
}

// newClientOrderID builds a client order ID within Binance's 36-char limit
func newClientOrderID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "grid-" + id[:24]
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
