package store

import (
	"context"
	"fmt"
)

// Schema is the DDL for all three tables. It is additive and
// idempotent (IF NOT EXISTS throughout) so cmd binaries can apply it
// on startup against a fresh database without a separate migration
// step, the same way the original implementation's sea-orm entities
// map onto a hand-written schema.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	id               uuid PRIMARY KEY,
	user_id          text NOT NULL,
	pair             text NOT NULL,
	order_type       text NOT NULL,
	rate             numeric NOT NULL,
	amount           numeric NOT NULL,
	remaining_amount numeric NOT NULL,
	status           text NOT NULL,
	executed_at      timestamptz,
	created_at       timestamptz NOT NULL,
	updated_at       timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS orders_pair_status_idx ON orders (pair, status);
CREATE INDEX IF NOT EXISTS orders_executed_at_idx ON orders (executed_at) WHERE executed_at IS NOT NULL;

CREATE TABLE IF NOT EXISTS balances (
	user_id  text NOT NULL,
	currency text NOT NULL,
	balance  numeric NOT NULL DEFAULT 0,
	locked   numeric NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, currency)
);

CREATE TABLE IF NOT EXISTS trades (
	id            uuid PRIMARY KEY,
	buy_order_id  uuid NOT NULL,
	sell_order_id uuid NOT NULL,
	pair          text NOT NULL,
	rate          numeric NOT NULL,
	amount        numeric NOT NULL,
	created_at    timestamptz NOT NULL,
	UNIQUE (buy_order_id, sell_order_id, amount, rate, created_at)
);
`

// ApplySchema runs Schema against the pool. Safe to call on every
// process startup.
func (s *Store) ApplySchema(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
