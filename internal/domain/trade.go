package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Trade is the persisted row settlement inserts as both an audit record
// and an idempotency guard (unique on buy/sell/amount/rate/created_at).
type Trade struct {
	ID          uuid.UUID
	BuyOrderID  uuid.UUID
	SellOrderID uuid.UUID
	Pair        string
	Rate        decimal.Decimal
	Amount      decimal.Decimal
	CreatedAt   time.Time
}

func NewTrade(m MatchedOrder) Trade {
	return Trade{
		ID:          uuid.New(),
		BuyOrderID:  m.BuyOrderID,
		SellOrderID: m.SellOrderID,
		Pair:        m.Pair,
		Rate:        m.Rate,
		Amount:      m.Amount,
		CreatedAt:   m.CreatedAt,
	}
}
