package matching

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cex/internal/domain"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func order(side domain.Side, rate, amount string, at time.Time) domain.OrderMessage {
	return domain.OrderMessage{
		OrderID:   uuid.New(),
		UserID:    "user",
		Pair:      domain.SupportedPair,
		OrderType: side,
		Rate:      decimal.RequireFromString(rate),
		Amount:    decimal.RequireFromString(amount),
		CreatedAt: at,
	}
}

// S1 — Simple cross.
func TestMatch_SimpleCross(t *testing.T) {
	book := NewOrderBook(domain.SupportedPair)
	now := fixedClock(time.Now().UTC())

	sell := order(domain.Sell, "100", "1", now())
	fills, err := book.Match(sell, now)
	require.NoError(t, err)
	assert.Empty(t, fills)

	buy := order(domain.Buy, "100", "1", now())
	fills, err = book.Match(buy, now)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Rate.Equal(decimal.RequireFromString("100")))
	assert.True(t, fills[0].Amount.Equal(decimal.RequireFromString("1")))
	assert.Equal(t, sell.OrderID, fills[0].SellOrderID)
	assert.Equal(t, buy.OrderID, fills[0].BuyOrderID)

	bids, asks := book.Snapshot()
	assert.Empty(t, bids)
	assert.Empty(t, asks)
}

// S2 — Price improvement: taker pays the resting maker's price.
func TestMatch_PriceImprovement(t *testing.T) {
	book := NewOrderBook(domain.SupportedPair)
	now := fixedClock(time.Now().UTC())

	sell := order(domain.Sell, "99", "2", now())
	_, err := book.Match(sell, now)
	require.NoError(t, err)

	buy := order(domain.Buy, "100", "1", now())
	fills, err := book.Match(buy, now)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Rate.Equal(decimal.RequireFromString("99")), "fill must execute at the maker's price, not the taker's")

	bids, asks := book.Snapshot()
	assert.Empty(t, bids)
	require.Len(t, asks, 1)
	assert.True(t, asks[0].Price.Equal(decimal.RequireFromString("99")))
	require.Len(t, asks[0].Orders, 1)
	assert.True(t, asks[0].Orders[0].AmountRemaining.Equal(decimal.RequireFromString("1")))
}

// S3 — Time priority within a price level.
func TestMatch_TimePriority(t *testing.T) {
	book := NewOrderBook(domain.SupportedPair)
	now := fixedClock(time.Now().UTC())

	sellA := order(domain.Sell, "100", "1", now())
	_, err := book.Match(sellA, now)
	require.NoError(t, err)

	sellB := order(domain.Sell, "100", "1", now())
	_, err = book.Match(sellB, now)
	require.NoError(t, err)

	buy := order(domain.Buy, "100", "1", now())
	fills, err := book.Match(buy, now)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, sellA.OrderID, fills[0].SellOrderID, "the earlier resting order must fill first")

	_, asks := book.Snapshot()
	require.Len(t, asks, 1)
	require.Len(t, asks[0].Orders, 1)
	assert.Equal(t, sellB.OrderID, asks[0].Orders[0].OrderID)
	assert.True(t, asks[0].Orders[0].AmountRemaining.Equal(decimal.RequireFromString("1")))
}

// S4 — Walk the book across multiple price levels.
func TestMatch_WalkTheBook(t *testing.T) {
	book := NewOrderBook(domain.SupportedPair)
	now := fixedClock(time.Now().UTC())

	for _, rate := range []string{"100", "101", "102"} {
		_, err := book.Match(order(domain.Sell, rate, "1", now()), now)
		require.NoError(t, err)
	}

	buy := order(domain.Buy, "101", "3", now())
	fills, err := book.Match(buy, now)
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.True(t, fills[0].Rate.Equal(decimal.RequireFromString("100")))
	assert.True(t, fills[1].Rate.Equal(decimal.RequireFromString("101")))

	bids, asks := book.Snapshot()
	require.Len(t, bids, 1)
	assert.True(t, bids[0].Price.Equal(decimal.RequireFromString("101")))
	assert.True(t, bids[0].Orders[0].AmountRemaining.Equal(decimal.RequireFromString("1")))

	require.Len(t, asks, 1)
	assert.True(t, asks[0].Price.Equal(decimal.RequireFromString("102")))
	assert.True(t, asks[0].Orders[0].AmountRemaining.Equal(decimal.RequireFromString("1")))
}

// S5 — No cross: orders rest without matching.
func TestMatch_NoCross(t *testing.T) {
	book := NewOrderBook(domain.SupportedPair)
	now := fixedClock(time.Now().UTC())

	_, err := book.Match(order(domain.Sell, "110", "1", now()), now)
	require.NoError(t, err)

	fills, err := book.Match(order(domain.Buy, "100", "1", now()), now)
	require.NoError(t, err)
	assert.Empty(t, fills)

	bids, asks := book.Snapshot()
	require.Len(t, bids, 1)
	assert.True(t, bids[0].Price.Equal(decimal.RequireFromString("100")))
	require.Len(t, asks, 1)
	assert.True(t, asks[0].Price.Equal(decimal.RequireFromString("110")))
}

func TestMatch_RejectsWrongPair(t *testing.T) {
	book := NewOrderBook(domain.SupportedPair)
	now := fixedClock(time.Now().UTC())

	bad := order(domain.Buy, "100", "1", now())
	bad.Pair = "eth_jpy"
	_, err := book.Match(bad, now)
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)
}

func TestEngine_CreatesBookLazilyAndValidates(t *testing.T) {
	e := NewEngine(fixedClock(time.Now().UTC()))

	_, err := e.Match(domain.OrderMessage{Pair: "eth_jpy"})
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)

	msg := order(domain.Buy, "100", "1", time.Now().UTC())
	fills, err := e.Match(msg)
	require.NoError(t, err)
	assert.Empty(t, fills)

	bids, _ := e.Snapshot(domain.SupportedPair)
	require.Len(t, bids, 1)
}
