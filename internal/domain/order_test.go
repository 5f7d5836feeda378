package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderMessageJSONRoundTrip(t *testing.T) {
	want := OrderMessage{
		OrderID:   uuid.New(),
		UserID:    "user-1",
		Pair:      SupportedPair,
		OrderType: Sell,
		Rate:      decimal.RequireFromString("1234567.891234"),
		Amount:    decimal.RequireFromString("0.00000001"),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	raw, err := json.Marshal(want)
	require.NoError(t, err)

	var got OrderMessage
	require.NoError(t, json.Unmarshal(raw, &got))

	assert.Equal(t, want.OrderID, got.OrderID)
	assert.Equal(t, want.UserID, got.UserID)
	assert.Equal(t, want.Pair, got.Pair)
	assert.Equal(t, want.OrderType, got.OrderType)
	assert.True(t, want.Rate.Equal(got.Rate), "rate precision must survive the wire")
	assert.True(t, want.Amount.Equal(got.Amount), "amount precision must survive the wire")
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}

func TestMatchedOrderJSONRoundTripAndKey(t *testing.T) {
	buy, sell := uuid.New(), uuid.New()
	want := MatchedOrder{
		BuyOrderID:  buy,
		SellOrderID: sell,
		Pair:        SupportedPair,
		Rate:        decimal.RequireFromString("500"),
		Amount:      decimal.RequireFromString("1"),
		BuyFee:      decimal.Zero,
		SellFee:     decimal.Zero,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}

	raw, err := json.Marshal(want)
	require.NoError(t, err)

	var got MatchedOrder
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.True(t, want.Rate.Equal(got.Rate))
	assert.True(t, want.Amount.Equal(got.Amount))
	assert.Equal(t, buy.String()+"-"+sell.String(), want.Key())
}

func TestOrderMessageValidate(t *testing.T) {
	base := OrderMessage{
		OrderID:   uuid.New(),
		UserID:    "u",
		Pair:      SupportedPair,
		OrderType: Buy,
		Rate:      decimal.RequireFromString("100"),
		Amount:    decimal.RequireFromString("1"),
		CreatedAt: time.Now().UTC(),
	}
	assert.NoError(t, base.Validate(SupportedPair))

	badPair := base
	badPair.Pair = "eth_jpy"
	assert.ErrorIs(t, badPair.Validate(SupportedPair), ErrMalformedMessage)

	zeroRate := base
	zeroRate.Rate = decimal.Zero
	assert.ErrorIs(t, zeroRate.Validate(SupportedPair), ErrMalformedMessage)

	negAmount := base
	negAmount.Amount = decimal.RequireFromString("-1")
	assert.ErrorIs(t, negAmount.Validate(SupportedPair), ErrMalformedMessage)

	noID := base
	noID.OrderID = uuid.Nil
	assert.ErrorIs(t, noID.Validate(SupportedPair), ErrMalformedMessage)
}
