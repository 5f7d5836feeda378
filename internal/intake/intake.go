// Package intake accepts new orders from the HTTP surface: it locks
// the required balance and persists a pending order row in one
// transaction, and publishes the order onto the bus only after that
// transaction commits.
package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"cex/internal/bus"
	"cex/internal/domain"
	"cex/internal/store"
)

// CreateOrderRequest is the POST /api/exchange/orders request body.
type CreateOrderRequest struct {
	Pair      string          `json:"pair"`
	OrderType string          `json:"order_type"`
	Rate      decimal.Decimal `json:"rate"`
	Amount    decimal.Decimal `json:"amount"`
}

// Intake wires the store and the orders-topic producer together.
type Intake struct {
	Store    *store.Store
	Producer bus.Producer
}

func New(s *store.Store, p bus.Producer) *Intake {
	return &Intake{Store: s, Producer: p}
}

// PlaceOrder validates req, locks the required reservation, inserts a
// pending order row, and publishes an OrderMessage. If the balance
// lock fails (insufficient funds) no order row is created and no
// message is sent — the request fails atomically before anything
// external is touched.
func (in *Intake) PlaceOrder(ctx context.Context, userID string, req CreateOrderRequest) (uuid.UUID, error) {
	if req.Pair != domain.SupportedPair {
		return uuid.Nil, fmt.Errorf("%w: unsupported pair %q", domain.ErrMalformedMessage, req.Pair)
	}
	side, err := domain.ParseSide(req.OrderType)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	if req.Rate.Sign() <= 0 || req.Amount.Sign() <= 0 {
		return uuid.Nil, fmt.Errorf("%w: rate and amount must be positive", domain.ErrMalformedMessage)
	}

	base, quote, err := domain.CurrenciesFor(req.Pair)
	if err != nil {
		return uuid.Nil, err
	}

	currency, required := quote, req.Rate.Mul(req.Amount)
	if side == domain.Sell {
		currency, required = base, req.Amount
	}

	orderID := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	err = in.Store.WithSerializableTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		bal, err := store.LockBalance(ctx, tx, userID, currency)
		if err != nil {
			return err
		}
		if bal.Available().LessThan(required) {
			return fmt.Errorf("%w: need %s %s, have %s available", domain.ErrInsufficientFunds, required, currency, bal.Available())
		}
		bal.Locked = bal.Locked.Add(required)
		if err := store.UpdateBalance(ctx, tx, bal); err != nil {
			return err
		}
		return store.InsertOrder(ctx, tx, domain.Order{
			ID:              orderID,
			UserID:          userID,
			Pair:            req.Pair,
			OrderType:       side,
			Rate:            req.Rate,
			Amount:          req.Amount,
			RemainingAmount: req.Amount,
			Status:          domain.Pending,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	})
	if err != nil {
		return uuid.Nil, err
	}

	msg := domain.OrderMessage{
		OrderID:   orderID,
		UserID:    userID,
		Pair:      req.Pair,
		OrderType: side,
		Rate:      req.Rate,
		Amount:    req.Amount,
		CreatedAt: now,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal order message: %w", err)
	}
	if err := in.Producer.Send(ctx, []byte(req.Pair), payload); err != nil {
		return uuid.Nil, err
	}
	return orderID, nil
}
