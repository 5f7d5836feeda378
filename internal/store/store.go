// Package store is the pgx-backed persistence layer shared by intake,
// settlement, and the query adapter: orders, balances, and the trades
// idempotency ledger.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"cex/internal/domain"
)

// Store wraps a pgxpool.Pool. All multi-row mutations go through
// WithSerializableTx so callers control transaction boundaries; single-row
// reads used only for display (query adapter) go straight to the pool.
type Store struct {
	Pool *pgxpool.Pool
}

// Open connects to url and verifies connectivity with a ping.
func Open(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

// WithSerializableTx runs fn inside a Serializable transaction,
// rolling back on any error fn returns. It does not retry; retrying
// on serialization conflicts is the caller's responsibility (see
// internal/settlement, which bounds retries at 5 attempts).
func (s *Store) WithSerializableTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// LockBalance selects the (user_id, currency) balance row FOR UPDATE
// within tx, returning ErrOrderMissing if no such row exists. Callers
// must already be inside a transaction; the lock is released on
// commit/rollback.
func LockBalance(ctx context.Context, tx pgx.Tx, userID, currency string) (domain.Balance, error) {
	const q = `SELECT user_id, currency, balance, locked FROM balances WHERE user_id = $1 AND currency = $2 FOR UPDATE`
	var b domain.Balance
	err := tx.QueryRow(ctx, q, userID, currency).Scan(&b.UserID, &b.Currency, &b.Balance, &b.Locked)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Balance{}, fmt.Errorf("%w: balance %s/%s", domain.ErrOrderMissing, userID, currency)
		}
		return domain.Balance{}, fmt.Errorf("lock balance: %w", err)
	}
	return b, nil
}

// UpdateBalance writes back balance and locked for an existing row.
func UpdateBalance(ctx context.Context, tx pgx.Tx, b domain.Balance) error {
	const q = `UPDATE balances SET balance = $3, locked = $4 WHERE user_id = $1 AND currency = $2`
	_, err := tx.Exec(ctx, q, b.UserID, b.Currency, b.Balance, b.Locked)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}

// CreditBalance adds amount to a (user_id, currency) balance, inserting
// a fresh zero-locked row if none exists yet — the same upsert the
// settlement side of the original implementation performs when a
// trader receives a currency they have never held.
func CreditBalance(ctx context.Context, tx pgx.Tx, userID, currency string, amount decimal.Decimal) error {
	const q = `
		INSERT INTO balances (user_id, currency, balance, locked)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (user_id, currency) DO UPDATE SET balance = balances.balance + EXCLUDED.balance
	`
	_, err := tx.Exec(ctx, q, userID, currency, amount)
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}

// GetOrder loads an order row FOR UPDATE within tx.
func GetOrder(ctx context.Context, tx pgx.Tx, id uuid.UUID) (domain.Order, error) {
	const q = `
		SELECT id, user_id, pair, order_type, rate, amount, remaining_amount, status, executed_at, created_at, updated_at
		FROM orders WHERE id = $1 FOR UPDATE
	`
	var o domain.Order
	var orderType, status string
	err := tx.QueryRow(ctx, q, id).Scan(&o.ID, &o.UserID, &o.Pair, &orderType, &o.Rate, &o.Amount, &o.RemainingAmount, &status, &o.ExecutedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, fmt.Errorf("%w: order %v", domain.ErrOrderMissing, id)
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	side, err := domain.ParseSide(orderType)
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	o.OrderType = side
	st, err := domain.ParseOrderStatus(status)
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	o.Status = st
	return o, nil
}

// UpdateOrderFill writes back an order's remaining_amount, status, and
// timestamps after a fill. executedAt is set only the first time an
// order transitions out of Pending.
func UpdateOrderFill(ctx context.Context, tx pgx.Tx, o domain.Order, now time.Time) error {
	const q = `
		UPDATE orders
		SET remaining_amount = $2, status = $3, executed_at = COALESCE(executed_at, $4), updated_at = $4
		WHERE id = $1
	`
	_, err := tx.Exec(ctx, q, o.ID, o.RemainingAmount, o.Status.String(), now)
	if err != nil {
		return fmt.Errorf("update order fill: %w", err)
	}
	return nil
}

// InsertOrder persists a newly accepted order at Pending status.
func InsertOrder(ctx context.Context, tx pgx.Tx, o domain.Order) error {
	const q = `
		INSERT INTO orders (id, user_id, pair, order_type, rate, amount, remaining_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`
	_, err := tx.Exec(ctx, q, o.ID, o.UserID, o.Pair, o.OrderType.String(), o.Rate, o.Amount, o.RemainingAmount, o.Status.String(), o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// InsertTrade records a settled fill. Its unique constraint on
// (buy_order_id, sell_order_id, amount, rate, created_at) is the
// idempotency guard: a duplicate delivery of the same MatchedOrder
// hits a unique-violation, which callers treat as a no-op rather than
// an error.
func InsertTrade(ctx context.Context, tx pgx.Tx, t domain.Trade) error {
	const q = `
		INSERT INTO trades (id, buy_order_id, sell_order_id, pair, rate, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (buy_order_id, sell_order_id, amount, rate, created_at) DO NOTHING
	`
	tag, err := tx.Exec(ctx, q, t.ID, t.BuyOrderID, t.SellOrderID, t.Pair, t.Rate, t.Amount, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadySettled
	}
	return nil
}
