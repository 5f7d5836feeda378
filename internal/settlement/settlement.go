// Package settlement turns a matched trade into durable state: two
// order rows updated, up to four balance rows updated, and one trades
// row inserted as both audit record and idempotency guard.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"cex/internal/domain"
	"cex/internal/store"
)

const (
	maxRetries      = 5
	baseBackoff     = 20 * time.Millisecond
	pgSerialization = "40001"
)

// Processor settles MatchedOrder events against the store.
type Processor struct {
	Store *store.Store
}

func NewProcessor(s *store.Store) *Processor {
	return &Processor{Store: s}
}

// Settle runs one settlement attempt inside a Serializable transaction,
// retrying on a Postgres serialization failure (SQLSTATE 40001) with
// jittered backoff, for at most maxRetries attempts in all. Exceeding the bound returns
// ErrTransactionAborted. A duplicate delivery of the same trade is a
// no-op, recognized via the trades table's idempotency guard.
func (p *Processor) Settle(ctx context.Context, m domain.MatchedOrder) error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := p.Store.WithSerializableTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			return settleOnce(ctx, tx, m)
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, store.ErrAlreadySettled):
			log.Info().Str("buy_order_id", m.BuyOrderID.String()).Str("sell_order_id", m.SellOrderID.String()).Msg("trade already settled, skipping")
			return nil
		case isSerializationFailure(err):
			backoff := jitteredBackoff(attempt)
			log.Warn().Err(err).Int("attempt", attempt+1).Dur("backoff", backoff).Msg("settlement serialization conflict, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			continue
		default:
			return err
		}
	}
	return fmt.Errorf("%w: settlement exceeded %d attempts", domain.ErrTransactionAborted, maxRetries)
}

func settleOnce(ctx context.Context, tx pgx.Tx, m domain.MatchedOrder) error {
	buyOrder, err := store.GetOrder(ctx, tx, m.BuyOrderID)
	if err != nil {
		return err
	}
	sellOrder, err := store.GetOrder(ctx, tx, m.SellOrderID)
	if err != nil {
		return err
	}

	base, quote, err := domain.CurrenciesFor(m.Pair)
	if err != nil {
		return err
	}

	notional := m.Amount.Mul(m.Rate)
	now := m.CreatedAt

	buyOrder.RemainingAmount = buyOrder.RemainingAmount.Sub(m.Amount)
	buyOrder.Status = fillStatus(buyOrder.RemainingAmount)
	if err := store.UpdateOrderFill(ctx, tx, buyOrder, now); err != nil {
		return err
	}

	sellOrder.RemainingAmount = sellOrder.RemainingAmount.Sub(m.Amount)
	sellOrder.Status = fillStatus(sellOrder.RemainingAmount)
	if err := store.UpdateOrderFill(ctx, tx, sellOrder, now); err != nil {
		return err
	}

	// Buyer: unlock and deduct quote currency, receive base currency.
	buyQuote, err := store.LockBalance(ctx, tx, buyOrder.UserID, quote)
	if err != nil {
		return err
	}
	buyQuote.Locked = buyQuote.Locked.Sub(notional)
	buyQuote.Balance = buyQuote.Balance.Sub(notional)
	if err := store.UpdateBalance(ctx, tx, buyQuote); err != nil {
		return err
	}
	if err := store.CreditBalance(ctx, tx, buyOrder.UserID, base, m.Amount); err != nil {
		return err
	}

	// Seller: unlock and deduct base currency, receive quote currency.
	sellBase, err := store.LockBalance(ctx, tx, sellOrder.UserID, base)
	if err != nil {
		return err
	}
	sellBase.Locked = sellBase.Locked.Sub(m.Amount)
	sellBase.Balance = sellBase.Balance.Sub(m.Amount)
	if err := store.UpdateBalance(ctx, tx, sellBase); err != nil {
		return err
	}
	if err := store.CreditBalance(ctx, tx, sellOrder.UserID, quote, notional); err != nil {
		return err
	}

	return store.InsertTrade(ctx, tx, domain.NewTrade(m))
}

func fillStatus(remaining decimal.Decimal) domain.OrderStatus {
	if remaining.Sign() <= 0 {
		return domain.Filled
	}
	return domain.PartiallyFilled
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgSerialization
}

func jitteredBackoff(attempt int) time.Duration {
	base := baseBackoff * time.Duration(1<<attempt)
	jitter := time.Duration(rand.Int63n(int64(base)))
	return base + jitter
}
