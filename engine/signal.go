package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"gridhook/exchange"
)

// SignalKind discriminates the signal variants
type SignalKind string

const (
	KindGridEntry SignalKind = "grid_entry"
	KindGridExit  SignalKind = "grid_exit"
	KindOrder     SignalKind = "order"
)

// Compact message prefixes used by payload-size-constrained senders
const (
	compactEntryPrefix = "GRID_ENTRY"
	compactExitPrefix  = "GRID_EXIT"
)

// GridSignal is one parsed, validated trading signal. Which fields are
// meaningful depends on Kind.
type GridSignal struct {
	Kind       SignalKind
	Symbol     string
	Passphrase string

	// Grid entry
	Side    string
	LotSize decimal.Decimal
	Levels  []decimal.Decimal

	// Grid exit. ReferencePrice is informational only and never feeds
	// order construction.
	Reason         string
	ReferencePrice *decimal.Decimal

	// Single-order passthrough
	OrderType string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
}

// wireSignal is the structured JSON wire form. Decimal fields are pointers so
// an absent field can be told apart from a present zero.
type wireSignal struct {
	Action     string `json:"action"`
	Message    string `json:"message"`
	Passphrase string `json:"passphrase"`

	Symbol         string            `json:"symbol"`
	Side           string            `json:"side"`
	LotSize        *decimal.Decimal  `json:"lot_size"`
	GridLevels     []decimal.Decimal `json:"grid_levels"`
	Reason         string            `json:"reason"`
	ReferencePrice *decimal.Decimal  `json:"reference_price"`

	// Single-order form, as the original webhook bot accepted it
	Amount *decimal.Decimal `json:"amount"`
	Type   string           `json:"type"`
	Price  *decimal.Decimal `json:"price"`
}

// ParseSignal turns a raw webhook payload into a validated GridSignal.
// Both the structured JSON form and the compact pipe-delimited form carried
// in a "message" field normalize to the same signal.
func ParseSignal(raw []byte) (*GridSignal, error) {
	var wire wireSignal
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}

	var sig *GridSignal
	var err error
	if wire.Message != "" {
		sig, err = parseCompact(wire.Message)
	} else {
		sig, err = parseStructured(&wire)
	}
	if err != nil {
		return nil, err
	}

	sig.Passphrase = wire.Passphrase
	if err := sig.validate(); err != nil {
		return nil, err
	}
	return sig, nil
}

func parseStructured(wire *wireSignal) (*GridSignal, error) {
	switch strings.ToLower(wire.Action) {
	case "":
		return nil, &MissingFieldError{Field: "action"}
	case string(KindGridEntry):
		sig := &GridSignal{
			Kind:   KindGridEntry,
			Symbol: wire.Symbol,
			Side:   wire.Side,
			Levels: wire.GridLevels,
		}
		if wire.LotSize == nil {
			return nil, &MissingFieldError{Field: "lot_size"}
		}
		sig.LotSize = *wire.LotSize
		return sig, nil
	case string(KindGridExit):
		return &GridSignal{
			Kind:           KindGridExit,
			Symbol:         wire.Symbol,
			Reason:         wire.Reason,
			ReferencePrice: wire.ReferencePrice,
		}, nil
	case string(KindOrder):
		sig := &GridSignal{
			Kind:      KindOrder,
			Symbol:    wire.Symbol,
			Side:      wire.Side,
			OrderType: wire.Type,
		}
		if wire.Amount == nil {
			return nil, &MissingFieldError{Field: "amount"}
		}
		sig.Quantity = *wire.Amount
		if wire.Price != nil {
			sig.Price = *wire.Price
		}
		return sig, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, wire.Action)
	}
}

// parseCompact parses the pipe-delimited message form:
//
//	GRID_ENTRY|<symbol>|<lot_size>|<level1>,<level2>,...
//	GRID_EXIT|<symbol>|<reason>|<reference_price?>
func parseCompact(message string) (*GridSignal, error) {
	parts := strings.Split(strings.TrimSpace(message), "|")

	switch parts[0] {
	case compactEntryPrefix:
		if len(parts) < 2 || parts[1] == "" {
			return nil, &MissingFieldError{Field: "symbol"}
		}
		if len(parts) < 3 || parts[2] == "" {
			return nil, &MissingFieldError{Field: "lot_size"}
		}
		if len(parts) < 4 || parts[3] == "" {
			return nil, &MissingFieldError{Field: "grid_levels"}
		}

		lot, err := decimal.NewFromString(parts[2])
		if err != nil {
			return nil, fmt.Errorf("%w: lot_size %q", ErrMalformedSignal, parts[2])
		}
		var levels []decimal.Decimal
		for _, s := range strings.Split(parts[3], ",") {
			level, err := decimal.NewFromString(strings.TrimSpace(s))
			if err != nil {
				return nil, fmt.Errorf("%w: grid level %q", ErrMalformedSignal, s)
			}
			levels = append(levels, level)
		}
		return &GridSignal{
			Kind:    KindGridEntry,
			Symbol:  parts[1],
			LotSize: lot,
			Levels:  levels,
		}, nil

	case compactExitPrefix:
		if len(parts) < 2 || parts[1] == "" {
			return nil, &MissingFieldError{Field: "symbol"}
		}
		if len(parts) < 3 || parts[2] == "" {
			return nil, &MissingFieldError{Field: "reason"}
		}
		sig := &GridSignal{
			Kind:   KindGridExit,
			Symbol: parts[1],
			Reason: parts[2],
		}
		if len(parts) >= 4 && parts[3] != "" {
			ref, err := decimal.NewFromString(parts[3])
			if err != nil {
				return nil, fmt.Errorf("%w: reference price %q", ErrMalformedSignal, parts[3])
			}
			sig.ReferencePrice = &ref
		}
		return sig, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, parts[0])
	}
}

// validate enforces the signal invariants and applies defaults
func (s *GridSignal) validate() error {
	if s.Symbol == "" {
		return &MissingFieldError{Field: "symbol"}
	}
	s.Symbol = strings.ToUpper(s.Symbol)

	switch s.Kind {
	case KindGridEntry:
		if err := s.validateSide(); err != nil {
			return err
		}
		if !s.LotSize.IsPositive() {
			return fmt.Errorf("%w: lot_size must be positive, got %s", ErrMalformedSignal, s.LotSize)
		}
		if len(s.Levels) == 0 {
			return &MissingFieldError{Field: "grid_levels"}
		}
		for _, level := range s.Levels {
			if !level.IsPositive() {
				return fmt.Errorf("%w: grid level must be positive, got %s", ErrMalformedSignal, level)
			}
		}
	case KindGridExit:
		if s.Reason == "" {
			return &MissingFieldError{Field: "reason"}
		}
	case KindOrder:
		if err := s.validateSide(); err != nil {
			return err
		}
		if !s.Quantity.IsPositive() {
			return fmt.Errorf("%w: amount must be positive, got %s", ErrMalformedSignal, s.Quantity)
		}
		s.OrderType = strings.ToUpper(s.OrderType)
		if s.OrderType == "" {
			s.OrderType = exchange.OrderTypeMarket
		}
		switch s.OrderType {
		case exchange.OrderTypeMarket:
		case exchange.OrderTypeLimit:
			if !s.Price.IsPositive() {
				return &MissingFieldError{Field: "price"}
			}
		default:
			return fmt.Errorf("%w: unsupported order type %q", ErrMalformedSignal, s.OrderType)
		}
	}
	return nil
}

// validateSide defaults the side to BUY when unspecified. The source system
// only ever sent long grids; an explicit SELL is accepted but never implied.
func (s *GridSignal) validateSide() error {
	s.Side = strings.ToUpper(s.Side)
	switch s.Side {
	case "":
		s.Side = exchange.SideBuy
	case exchange.SideBuy, exchange.SideSell:
	default:
		return fmt.Errorf("%w: invalid side %q", ErrMalformedSignal, s.Side)
	}
	return nil
}
