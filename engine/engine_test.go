package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridhook/exchange"
)

// fakeExchange is a scriptable Exchange for engine tests
type fakeExchange struct {
	mu sync.Mutex

	filters    exchange.Filters
	filtersErr error

	// placeErrs is consumed one entry per PlaceOrder call; nil means the
	// order is accepted. Calls beyond the script are accepted.
	placeErrs []error
	placed    []exchange.OrderRequest
	nextID    int

	openOrders int
	cancelErr  error
	cancels    int

	position    exchange.Position
	positionErr error
}

func (f *fakeExchange) GetFilters(ctx context.Context, symbol string) (exchange.Filters, error) {
	if f.filtersErr != nil {
		return exchange.Filters{}, f.filtersErr
	}
	return f.filters, nil
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := len(f.placed)
	f.placed = append(f.placed, req)
	if call < len(f.placeErrs) && f.placeErrs[call] != nil {
		return "", f.placeErrs[call]
	}
	f.nextID++
	return fmt.Sprintf("%d", f.nextID), nil
}

func (f *fakeExchange) CancelAllOrders(ctx context.Context, symbol string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	if f.cancelErr != nil {
		return 0, f.cancelErr
	}
	return f.openOrders, nil
}

func (f *fakeExchange) GetPosition(ctx context.Context, symbol string) (exchange.Position, error) {
	if f.positionErr != nil {
		return exchange.Position{}, f.positionErr
	}
	return f.position, nil
}

func standardFilters() exchange.Filters {
	return exchange.Filters{
		StepSize:    dec("0.001"),
		TickSize:    dec("0.1"),
		MinNotional: dec("100"),
	}
}

func entrySignal(levels ...string) *GridSignal {
	sig := &GridSignal{
		Kind:    KindGridEntry,
		Symbol:  "BTCUSDT",
		Side:    exchange.SideBuy,
		LotSize: dec("0.01"),
	}
	for _, l := range levels {
		sig.Levels = append(sig.Levels, dec(l))
	}
	return sig
}

func exitSignal() *GridSignal {
	return &GridSignal{Kind: KindGridExit, Symbol: "BTCUSDT", Reason: "take_profit"}
}

func minNotionalErr() error {
	return &exchange.RejectedError{Code: -4164, Message: "Order's notional must be no smaller than 100"}
}

func TestPlaceGridAllAccepted(t *testing.T) {
	fake := &fakeExchange{filters: standardFilters()}
	eng := New(fake, nil)

	rep := eng.Process(context.Background(), entrySignal("60000", "59500", "59000"))

	assert.Equal(t, StatusSuccess, rep.Status)
	require.Len(t, rep.Orders, 3)
	for i, o := range rep.Orders {
		assert.True(t, o.Placed(), "level %d should be placed", i)
		assert.Equal(t, exchange.OrderTypeLimit, o.Request.Type)
		assert.Equal(t, exchange.SideBuy, o.Request.Side)
		assert.Equal(t, exchange.TimeInForceGTC, o.Request.TimeInForce)
		assert.True(t, o.Request.Quantity.Equal(dec("0.01")))
	}
	assert.True(t, rep.Orders[1].Request.Price.Equal(dec("59500")))
}

func TestPlaceGridMinNotionalRetrySucceeds(t *testing.T) {
	fake := &fakeExchange{
		filters:   standardFilters(),
		placeErrs: []error{nil, nil, minNotionalErr(), nil},
	}
	eng := New(fake, nil)

	rep := eng.Process(context.Background(), entrySignal("60000", "59500", "59000"))

	assert.Equal(t, StatusSuccess, rep.Status)
	require.Len(t, rep.Orders, 3)
	assert.True(t, rep.Orders[2].Placed())
	// 59000 * 1.01 = 59590, already tick-aligned
	assert.True(t, rep.Orders[2].Request.Price.Equal(dec("59590")),
		"retry price: got %s", rep.Orders[2].Request.Price)
	assert.Len(t, fake.placed, 4, "rejected level retried exactly once")
}

func TestPlaceGridRetryAlsoRejected(t *testing.T) {
	fake := &fakeExchange{
		filters:   standardFilters(),
		placeErrs: []error{nil, minNotionalErr(), minNotionalErr(), nil},
	}
	eng := New(fake, nil)

	rep := eng.Process(context.Background(), entrySignal("60000", "59500", "59000"))

	assert.Equal(t, StatusPartial, rep.Status)
	require.Len(t, rep.Orders, 3)
	assert.True(t, rep.Orders[0].Placed())
	assert.False(t, rep.Orders[1].Placed(), "doubly rejected level stays rejected")
	assert.True(t, rep.Orders[2].Placed(), "later levels continue after a rejection")
	assert.Len(t, fake.placed, 4)
}

func TestPlaceGridOtherRejectionNotRetried(t *testing.T) {
	fake := &fakeExchange{
		filters: standardFilters(),
		placeErrs: []error{
			&exchange.RejectedError{Code: -2019, Message: "Margin is insufficient."},
			nil,
		},
	}
	eng := New(fake, nil)

	rep := eng.Process(context.Background(), entrySignal("60000", "59500"))

	assert.Equal(t, StatusPartial, rep.Status)
	assert.Len(t, fake.placed, 2, "non-notional rejection must not be retried")

	var rej *exchange.RejectedError
	require.ErrorAs(t, rep.Orders[0].Err, &rej)
	assert.Equal(t, int64(-2019), rej.Code)
}

func TestPlaceGridAllRejected(t *testing.T) {
	fake := &fakeExchange{
		filters: standardFilters(),
		placeErrs: []error{
			&exchange.RejectedError{Code: -2019, Message: "Margin is insufficient."},
			&exchange.RejectedError{Code: -2019, Message: "Margin is insufficient."},
		},
	}
	eng := New(fake, nil)

	rep := eng.Process(context.Background(), entrySignal("60000", "59500"))
	assert.Equal(t, StatusFailure, rep.Status)
	assert.False(t, rep.ExchangeSide(), "rejections are a caller-side failure")
}

func TestPlaceGridFiltersUnavailable(t *testing.T) {
	fake := &fakeExchange{
		filtersErr: &exchange.UnavailableError{Err: fmt.Errorf("connection refused")},
	}
	eng := New(fake, nil)

	rep := eng.Process(context.Background(), entrySignal("60000"))

	assert.Equal(t, StatusFailure, rep.Status)
	assert.True(t, rep.ExchangeSide())
	assert.Empty(t, rep.Orders)
	assert.Empty(t, fake.placed, "no order attempted without filters")
}

func TestPlaceGridUnavailableMidGridStops(t *testing.T) {
	fake := &fakeExchange{
		filters: standardFilters(),
		placeErrs: []error{
			nil,
			&exchange.UnavailableError{Err: fmt.Errorf("timeout")},
		},
	}
	eng := New(fake, nil)

	rep := eng.Process(context.Background(), entrySignal("60000", "59500", "59000"))

	assert.Equal(t, StatusPartial, rep.Status)
	require.Len(t, rep.Orders, 2, "remaining levels not submitted into an outage")
	assert.True(t, rep.ExchangeSide())
	assert.NotEmpty(t, rep.Message)
}

func TestPlaceGridSellSide(t *testing.T) {
	fake := &fakeExchange{filters: standardFilters()}
	eng := New(fake, nil)

	sig := entrySignal("61000")
	sig.Side = exchange.SideSell
	rep := eng.Process(context.Background(), sig)

	assert.Equal(t, StatusSuccess, rep.Status)
	assert.Equal(t, exchange.SideSell, rep.Orders[0].Request.Side)
}

func TestCloseGridFlatPosition(t *testing.T) {
	fake := &fakeExchange{
		openOrders: 3,
		position:   exchange.Position{Symbol: "BTCUSDT"},
	}
	eng := New(fake, nil)

	rep := eng.Process(context.Background(), exitSignal())

	assert.Equal(t, StatusSuccess, rep.Status)
	assert.Equal(t, 1, fake.cancels, "cancel-all still runs on a flat position")
	assert.Equal(t, 3, rep.Cancelled)
	assert.Empty(t, rep.Orders)
	assert.Empty(t, fake.placed)
}

func TestCloseGridLongPosition(t *testing.T) {
	fake := &fakeExchange{
		openOrders: 2,
		position:   exchange.Position{Symbol: "BTCUSDT", Quantity: dec("0.5")},
	}
	eng := New(fake, nil)

	rep := eng.Process(context.Background(), exitSignal())

	assert.Equal(t, StatusSuccess, rep.Status)
	require.Len(t, fake.placed, 1)
	req := fake.placed[0]
	assert.Equal(t, exchange.OrderTypeMarket, req.Type)
	assert.Equal(t, exchange.SideSell, req.Side)
	assert.True(t, req.Quantity.Equal(dec("0.5")))
}

func TestCloseGridShortPosition(t *testing.T) {
	fake := &fakeExchange{
		position: exchange.Position{Symbol: "BTCUSDT", Quantity: dec("-0.25")},
	}
	eng := New(fake, nil)

	rep := eng.Process(context.Background(), exitSignal())

	assert.Equal(t, StatusSuccess, rep.Status)
	require.Len(t, fake.placed, 1)
	assert.Equal(t, exchange.SideBuy, fake.placed[0].Side)
	assert.True(t, fake.placed[0].Quantity.Equal(dec("0.25")))
}

func TestCloseGridCancelFailureStillFlattens(t *testing.T) {
	fake := &fakeExchange{
		cancelErr: &exchange.UnavailableError{Err: fmt.Errorf("timeout")},
		position:  exchange.Position{Symbol: "BTCUSDT", Quantity: dec("0.1")},
	}
	eng := New(fake, nil)

	rep := eng.Process(context.Background(), exitSignal())

	assert.Equal(t, StatusSuccess, rep.Status)
	require.Len(t, fake.placed, 1, "flatten must proceed past a failed cancel")
	assert.Equal(t, 0, rep.Cancelled)
}

func TestCloseGridCloseRejectedIsRecorded(t *testing.T) {
	fake := &fakeExchange{
		openOrders: 1,
		position:   exchange.Position{Symbol: "BTCUSDT", Quantity: dec("0.5")},
		placeErrs:  []error{&exchange.RejectedError{Code: -2019, Message: "Margin is insufficient."}},
	}
	eng := New(fake, nil)

	rep := eng.Process(context.Background(), exitSignal())

	assert.Equal(t, StatusFailure, rep.Status)
	require.Len(t, rep.Orders, 1)
	assert.False(t, rep.Orders[0].Placed())
	assert.Equal(t, 1, rep.Cancelled, "cancellation result survives a failed close")
}

func TestCloseGridPositionFetchFails(t *testing.T) {
	fake := &fakeExchange{
		openOrders:  2,
		positionErr: &exchange.UnavailableError{Err: fmt.Errorf("timeout")},
	}
	eng := New(fake, nil)

	rep := eng.Process(context.Background(), exitSignal())

	assert.Equal(t, StatusFailure, rep.Status)
	assert.True(t, rep.ExchangeSide())
	assert.Equal(t, 2, rep.Cancelled, "cancel count preserved")
}

func TestPlaceSingleOrder(t *testing.T) {
	fake := &fakeExchange{filters: standardFilters()}
	eng := New(fake, nil)

	rep := eng.Process(context.Background(), &GridSignal{
		Kind:      KindOrder,
		Symbol:    "BTCUSDT",
		Side:      exchange.SideSell,
		OrderType: exchange.OrderTypeMarket,
		Quantity:  dec("0.1234567"),
	})

	assert.Equal(t, StatusSuccess, rep.Status)
	require.Len(t, fake.placed, 1)
	assert.Equal(t, exchange.OrderTypeMarket, fake.placed[0].Type)
	assert.True(t, fake.placed[0].Quantity.Equal(dec("0.123")), "quantity normalized to step")
}

type captureSink struct {
	mu   sync.Mutex
	sigs []*GridSignal
	reps []*Report
}

func (c *captureSink) RecordExecution(sig *GridSignal, rep *Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sigs = append(c.sigs, sig)
	c.reps = append(c.reps, rep)
}

func TestProcessNotifiesSink(t *testing.T) {
	fake := &fakeExchange{filters: standardFilters()}
	sink := &captureSink{}
	eng := New(fake, sink)

	eng.Process(context.Background(), entrySignal("60000"))

	require.Len(t, sink.reps, 1)
	assert.Equal(t, StatusSuccess, sink.reps[0].Status)
	assert.Equal(t, KindGridEntry, sink.sigs[0].Kind)
}

// slowExchange asserts that no two calls for the same symbol overlap
type slowExchange struct {
	fakeExchange
	inFlight int32
	overlap  int32
}

func (s *slowExchange) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (string, error) {
	if atomic.AddInt32(&s.inFlight, 1) > 1 {
		atomic.StoreInt32(&s.overlap, 1)
	}
	time.Sleep(time.Millisecond)
	atomic.AddInt32(&s.inFlight, -1)
	return s.fakeExchange.PlaceOrder(ctx, req)
}

func TestProcessSerializesSameSymbol(t *testing.T) {
	slow := &slowExchange{fakeExchange: fakeExchange{filters: standardFilters()}}
	eng := New(slow, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eng.Process(context.Background(), entrySignal("60000", "59500"))
		}()
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&slow.overlap),
		"signals for one symbol must not interleave")
}
