// Package queryapi reconstructs read-only views from the database for
// the HTTP query endpoints: the current order book and the trade
// history, both derived from persisted order rows rather than the
// matcher's live in-memory book.
package queryapi

import (
	"context"
	"fmt"
	"sort"

	"cex/internal/domain"
	"cex/internal/store"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// QueryAPI reads order rows back out of the store.
type QueryAPI struct {
	Store *store.Store
}

func New(s *store.Store) *QueryAPI {
	return &QueryAPI{Store: s}
}

// OrderBookSnapshot aggregates pending+partially_filled orders for
// pair into price levels: bids sorted by descending price, asks by
// ascending price, each level's amount the sum of its orders'
// remaining_amount.
func (q *QueryAPI) OrderBookSnapshot(ctx context.Context, pair string) (domain.OrderBookSnapshot, error) {
	if pair != domain.SupportedPair {
		return domain.OrderBookSnapshot{}, fmt.Errorf("%w: unsupported pair %q", domain.ErrMalformedMessage, pair)
	}

	orders, err := q.Store.PendingOrders(ctx, pair)
	if err != nil {
		return domain.OrderBookSnapshot{}, err
	}

	snapshot := domain.OrderBookSnapshot{Pair: pair}
	bidLevels := map[string]int{}
	askLevels := map[string]int{}

	for _, o := range orders {
		switch o.OrderType {
		case domain.Buy:
			if i, ok := bidLevels[o.Rate.String()]; ok {
				snapshot.Bids[i].Amount = snapshot.Bids[i].Amount.Add(o.RemainingAmount)
				continue
			}
			bidLevels[o.Rate.String()] = len(snapshot.Bids)
			snapshot.Bids = append(snapshot.Bids, domain.OrderBookLevel{Price: o.Rate, Amount: o.RemainingAmount})
		case domain.Sell:
			if i, ok := askLevels[o.Rate.String()]; ok {
				snapshot.Asks[i].Amount = snapshot.Asks[i].Amount.Add(o.RemainingAmount)
				continue
			}
			askLevels[o.Rate.String()] = len(snapshot.Asks)
			snapshot.Asks = append(snapshot.Asks, domain.OrderBookLevel{Price: o.Rate, Amount: o.RemainingAmount})
		}
	}

	// PendingOrders already returns rows ordered rate DESC, so bids
	// (which share that ordering) come out sorted correctly; asks need
	// re-sorting ascending since they were built from the same
	// descending-rate scan.
	sort.Slice(snapshot.Asks, func(i, j int) bool {
		return snapshot.Asks[i].Price.LessThan(snapshot.Asks[j].Price)
	})

	return snapshot, nil
}

// ExecutedOrders returns up to maxLimit most-recently-executed orders.
// limit <= 0 defaults to defaultLimit; limit above maxLimit is capped.
func (q *QueryAPI) ExecutedOrders(ctx context.Context, limit, offset int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return q.Store.ExecutedOrders(ctx, limit, offset)
}
