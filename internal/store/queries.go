package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cex/internal/domain"
)

// PendingOrders returns every resting order for pair, ordered by rate
// descending (best first for bids, worst first for asks), then oldest
// first within a rate.
func (s *Store) PendingOrders(ctx context.Context, pair string) ([]domain.Order, error) {
	const q = `
		SELECT id, user_id, pair, order_type, rate, amount, remaining_amount, status, executed_at, created_at, updated_at
		FROM orders
		WHERE pair = $1 AND status IN ('pending', 'partially_filled')
		ORDER BY rate DESC, created_at ASC
	`
	rows, err := s.Pool.Query(ctx, q, pair)
	if err != nil {
		return nil, fmt.Errorf("pending orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

// ExecutedOrders returns the most recently executed orders, newest
// first, for the query adapter's trade-history endpoint.
func (s *Store) ExecutedOrders(ctx context.Context, limit, offset int) ([]domain.Order, error) {
	const q = `
		SELECT id, user_id, pair, order_type, rate, amount, remaining_amount, status, executed_at, created_at, updated_at
		FROM orders
		WHERE executed_at IS NOT NULL
		ORDER BY executed_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := s.Pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("executed orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

func scanOrders(rows pgx.Rows) ([]domain.Order, error) {
	var out []domain.Order
	for rows.Next() {
		var o domain.Order
		var orderType, status string
		if err := rows.Scan(&o.ID, &o.UserID, &o.Pair, &orderType, &o.Rate, &o.Amount, &o.RemainingAmount, &status, &o.ExecutedAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		side, err := domain.ParseSide(orderType)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.OrderType = side
		st, err := domain.ParseOrderStatus(status)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = st
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}
	return out, nil
}

// EnsureBalance makes sure a (user_id, currency) row exists, crediting
// it with an opening amount if it does not. Used by intake's test
// fixtures and any onboarding flow that seeds a new trader's wallet.
func (s *Store) EnsureBalance(ctx context.Context, userID, currency string, opening domain.Balance) error {
	const q = `
		INSERT INTO balances (user_id, currency, balance, locked)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, currency) DO NOTHING
	`
	_, err := s.Pool.Exec(ctx, q, userID, currency, opening.Balance, opening.Locked)
	if err != nil {
		return fmt.Errorf("ensure balance: %w", err)
	}
	return nil
}
