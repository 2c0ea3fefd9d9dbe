package engine

import (
	"errors"

	"gridhook/exchange"
)

// Status classifies one processed signal
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailure Status = "error"
)

// OrderOutcome records one attempted order. Err is nil when the order was
// placed; a rejection lives here as data, not as a fault.
type OrderOutcome struct {
	Request exchange.OrderRequest
	OrderID string
	Err     error
}

// Placed reports whether the order went live on the exchange
func (o OrderOutcome) Placed() bool {
	return o.Err == nil
}

// Report is the engine's single return value for one signal
type Report struct {
	Status    Status
	Orders    []OrderOutcome
	Cancelled int
	Message   string

	// Set when the signal failed because the exchange was unreachable,
	// before any per-order outcome could carry that information
	unavailable bool
}

// ExchangeSide reports whether the failure originated on the exchange side
// (outage) rather than from what the caller asked for. The HTTP shell maps
// this to 500 vs 400.
func (r *Report) ExchangeSide() bool {
	for _, o := range r.Orders {
		var unavail *exchange.UnavailableError
		if errors.As(o.Err, &unavail) {
			return true
		}
	}
	return r.unavailable
}

// newReport classifies a set of outcomes. An empty set is a success: a flat
// position on exit legitimately attempts nothing.
func newReport(outcomes []OrderOutcome, cancelled int, message string) *Report {
	placed, rejected := 0, 0
	for _, o := range outcomes {
		if o.Placed() {
			placed++
		} else {
			rejected++
		}
	}

	status := StatusSuccess
	switch {
	case rejected > 0 && placed > 0:
		status = StatusPartial
	case rejected > 0:
		status = StatusFailure
	}

	return &Report{
		Status:    status,
		Orders:    outcomes,
		Cancelled: cancelled,
		Message:   message,
	}
}

// failureReport is a whole-signal failure before or between operations
func failureReport(outcomes []OrderOutcome, cancelled int, message string, exchangeSide bool) *Report {
	return &Report{
		Status:      StatusFailure,
		Orders:      outcomes,
		Cancelled:   cancelled,
		Message:     message,
		unavailable: exchangeSide,
	}
}
