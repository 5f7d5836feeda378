// Package matching implements the in-memory, price/time-priority order
// book and the pure match_order operation described by the design: no
// I/O, no database access, no clock dependence beyond the created_at
// stamp on emitted matches.
package matching

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"cex/internal/domain"
)

// PriceLevel is one resting price with its FIFO queue of entries,
// oldest first. Grounded on the teacher's engine.PriceLevel /
// price-indexed btree container (internal/engine/orderbook.go), with
// the FIFO queue generalized from a flat order slice consumed
// head-first to an explicit deque of domain.OrderBookEntry values.
type PriceLevel struct {
	Price  decimal.Decimal
	Orders []*domain.OrderBookEntry
}

type levels = btree.BTreeG[*PriceLevel]

// OrderBook is the per-pair book. It is single-owner in production
// (one matcher instance per pair, via input-bus partitioning); the
// mutex exists only so tests and the engine's lazy per-pair creation
// can treat it safely, and is never held across a bus send.
type OrderBook struct {
	mu   sync.Mutex
	Pair string
	Bids *levels // best = maximum price
	Asks *levels // best = minimum price
}

// NewOrderBook creates an empty book for pair.
func NewOrderBook(pair string) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.GreaterThan(b.Price) // Min() yields the highest bid
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.LessThan(b.Price) // Min() yields the lowest ask
	})
	return &OrderBook{Pair: pair, Bids: bids, Asks: asks}
}

// Match runs the match_order operation for one incoming order message,
// returning the fills it produced in emission order. It mutates the
// book in place: resting orders are reduced or removed, and any
// unfilled residual of msg is enqueued as a new resting entry.
func (b *OrderBook) Match(msg domain.OrderMessage, now func() time.Time) ([]domain.MatchedOrder, error) {
	if msg.Pair != b.Pair {
		return nil, fmt.Errorf("%w: order for pair %q presented to %q book", domain.ErrMalformedMessage, msg.Pair, b.Pair)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var opposite *levels
	if msg.OrderType == domain.Buy {
		opposite = b.Asks
	} else {
		opposite = b.Bids
	}

	var out []domain.MatchedOrder
	remaining := msg.Amount

	for remaining.Sign() > 0 {
		best, ok := opposite.MinMut()
		if !ok {
			break
		}

		matchable := false
		if msg.OrderType == domain.Buy {
			matchable = best.Price.LessThanOrEqual(msg.Rate)
		} else {
			matchable = best.Price.GreaterThanOrEqual(msg.Rate)
		}
		if !matchable {
			break
		}

		resting := best.Orders[0]
		fill := decimal.Min(remaining, resting.AmountRemaining)

		buyOrderID, sellOrderID := msg.OrderID, resting.OrderID
		if msg.OrderType == domain.Sell {
			buyOrderID, sellOrderID = resting.OrderID, msg.OrderID
		}

		out = append(out, domain.MatchedOrder{
			BuyOrderID:  buyOrderID,
			SellOrderID: sellOrderID,
			Pair:        msg.Pair,
			Rate:        best.Price,
			Amount:      fill,
			BuyFee:      decimal.Zero,
			SellFee:     decimal.Zero,
			CreatedAt:   now(),
		})

		remaining = remaining.Sub(fill)
		resting.AmountRemaining = resting.AmountRemaining.Sub(fill)

		if resting.AmountRemaining.Sign() <= 0 {
			best.Orders = best.Orders[1:]
			if len(best.Orders) == 0 {
				opposite.Delete(best)
			}
		}
	}

	if remaining.Sign() > 0 {
		entry := &domain.OrderBookEntry{
			OrderID:         msg.OrderID,
			UserID:          msg.UserID,
			AmountRemaining: remaining,
			EnqueuedAt:      msg.CreatedAt,
		}
		same := b.Bids
		if msg.OrderType == domain.Sell {
			same = b.Asks
		}
		if level, ok := same.GetMut(&PriceLevel{Price: msg.Rate}); ok {
			level.Orders = append(level.Orders, entry)
		} else {
			same.Set(&PriceLevel{Price: msg.Rate, Orders: []*domain.OrderBookEntry{entry}})
		}
	}

	return out, nil
}

// Snapshot returns a copy of the resting levels on both sides, bids
// sorted by descending price and asks by ascending price — the same
// ordering the query adapter's GET /api/order_books exposes. It copies
// rather than aliasing internal slices so callers can't mutate the
// live book.
func (b *OrderBook) Snapshot() (bids, asks []PriceLevel) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Bids.Scan(func(lvl *PriceLevel) bool {
		bids = append(bids, copyLevel(lvl))
		return true
	})
	b.Asks.Scan(func(lvl *PriceLevel) bool {
		asks = append(asks, copyLevel(lvl))
		return true
	})
	return bids, asks
}

func copyLevel(lvl *PriceLevel) PriceLevel {
	orders := make([]*domain.OrderBookEntry, len(lvl.Orders))
	for i, o := range lvl.Orders {
		cp := *o
		orders[i] = &cp
	}
	return PriceLevel{Price: lvl.Price, Orders: orders}
}

