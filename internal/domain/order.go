// Package domain holds the wire and persisted types shared by every
// service in the pipeline: the matcher, the settlement processor, and
// the HTTP intake/query adapters.
package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

func ParseSide(s string) (Side, error) {
	switch s {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	default:
		return 0, fmt.Errorf("invalid order_type %q", s)
	}
}

func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Side) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseSide(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// OrderStatus is the persisted lifecycle state of an order row.
type OrderStatus int

const (
	Pending OrderStatus = iota
	PartiallyFilled
	Filled
	Cancelled
)

func (s OrderStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case PartiallyFilled:
		return "partially_filled"
	case Filled:
		return "filled"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch s {
	case "pending":
		return Pending, nil
	case "partially_filled":
		return PartiallyFilled, nil
	case "filled":
		return Filled, nil
	case "cancelled":
		return Cancelled, nil
	default:
		return 0, fmt.Errorf("invalid status %q", s)
	}
}

func (s OrderStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseOrderStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// OrderMessage is the wire payload of the "orders" topic: one per
// client order accepted by intake, keyed by pair.
type OrderMessage struct {
	OrderID   uuid.UUID       `json:"order_id"`
	UserID    string          `json:"user_id"`
	Pair      string          `json:"pair"`
	OrderType Side            `json:"order_type"`
	Rate      decimal.Decimal `json:"rate"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// Validate rejects a malformed order message before it reaches the
// matching engine. Matches the MalformedMessage error kind.
func (m OrderMessage) Validate(supportedPair string) error {
	if m.Pair != supportedPair {
		return fmt.Errorf("%w: unsupported pair %q", ErrMalformedMessage, m.Pair)
	}
	if m.Rate.Sign() <= 0 {
		return fmt.Errorf("%w: rate must be positive", ErrMalformedMessage)
	}
	if m.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrMalformedMessage)
	}
	if m.OrderID == uuid.Nil {
		return fmt.Errorf("%w: missing order_id", ErrMalformedMessage)
	}
	return nil
}

// MatchedOrder is the wire payload of the "matched-orders" topic: one
// per fill produced by the matching engine.
type MatchedOrder struct {
	BuyOrderID  uuid.UUID       `json:"buy_order_id"`
	SellOrderID uuid.UUID       `json:"sell_order_id"`
	Pair        string          `json:"pair"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
	BuyFee      decimal.Decimal `json:"buy_fee"`
	SellFee     decimal.Decimal `json:"sell_fee"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Key is the "matched-orders" partition key: "{buy_order_id}-{sell_order_id}".
func (m MatchedOrder) Key() string {
	return m.BuyOrderID.String() + "-" + m.SellOrderID.String()
}

// Order is the persisted order row.
type Order struct {
	ID               uuid.UUID
	UserID           string
	Pair             string
	OrderType        Side
	Rate             decimal.Decimal
	Amount           decimal.Decimal
	RemainingAmount  decimal.Decimal
	Status           OrderStatus
	ExecutedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Balance is the persisted (user_id, currency) balance row.
type Balance struct {
	UserID    string
	Currency  string
	Balance   decimal.Decimal
	Locked    decimal.Decimal
}

// Available returns balance minus locked; must never be negative.
func (b Balance) Available() decimal.Decimal {
	return b.Balance.Sub(b.Locked)
}

// OrderBookEntry is a resting order inside the in-memory book.
type OrderBookEntry struct {
	OrderID         uuid.UUID
	UserID          string
	AmountRemaining decimal.Decimal
	EnqueuedAt      time.Time
}

// OrderBookLevel is one price level of a book snapshot, used by the
// query adapter (GET /api/order_books), not by the matching engine's
// internal representation (see internal/matching.OrderBook).
type OrderBookLevel struct {
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

// OrderBookSnapshot is the GET /api/order_books response body.
type OrderBookSnapshot struct {
	Pair string           `json:"pair"`
	Bids []OrderBookLevel `json:"bids"`
	Asks []OrderBookLevel `json:"asks"`
}
