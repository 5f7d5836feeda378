package matching

import (
	"sync"
	"time"

	"cex/internal/domain"
)

// Engine owns one OrderBook per trading pair. A single process only
// ever matches SupportedPair today, but the map keeps a second market
// a data change rather than a structural one, the same shape as
// domain.CurrenciesFor.
type Engine struct {
	mu    sync.Mutex
	books map[string]*OrderBook
	now   func() time.Time
}

// NewEngine builds an empty engine. now defaults, when nil, to the
// current UTC time truncated to the microsecond; tests can override it
// to pin CreatedAt on emitted matches.
func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
	}
	return &Engine{books: make(map[string]*OrderBook), now: now}
}

// Match validates msg and runs it through that pair's book, creating
// the book on first use.
func (e *Engine) Match(msg domain.OrderMessage) ([]domain.MatchedOrder, error) {
	if err := msg.Validate(domain.SupportedPair); err != nil {
		return nil, err
	}
	book := e.bookFor(msg.Pair)
	return book.Match(msg, e.now)
}

// Snapshot returns the resting book for pair, or an empty one if the
// pair has never seen an order.
func (e *Engine) Snapshot(pair string) (bids, asks []PriceLevel) {
	return e.bookFor(pair).Snapshot()
}

func (e *Engine) bookFor(pair string) *OrderBook {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.books[pair]
	if !ok {
		b = NewOrderBook(pair)
		e.books[pair] = b
	}
	return b
}
