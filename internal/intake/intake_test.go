package intake

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"cex/internal/bus"
	"cex/internal/domain"
	"cex/internal/store"
)

func openTestIntake(t *testing.T) (*Intake, *bus.FakeBus) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := store.Open(ctx, url)
	require.NoError(t, err)
	require.NoError(t, s.ApplySchema(ctx))
	t.Cleanup(s.Close)

	fake := bus.NewFakeBus()
	return New(s, fake), fake
}

func TestPlaceOrder_LocksBalanceAndPublishes(t *testing.T) {
	in, fake := openTestIntake(t)
	ctx := context.Background()

	userID := uuid.New().String()
	require.NoError(t, in.Store.EnsureBalance(ctx, userID, "JPY", domain.Balance{Balance: decimal.RequireFromString("1000")}))

	orderID, err := in.PlaceOrder(ctx, userID, CreateOrderRequest{
		Pair: domain.SupportedPair, OrderType: "buy",
		Rate: decimal.RequireFromString("500"), Amount: decimal.RequireFromString("1"),
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, orderID)

	msg, ok, err := fake.Recv(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	var published domain.OrderMessage
	require.NoError(t, json.Unmarshal(msg.Value, &published))
	require.Equal(t, orderID, published.OrderID)
}

func TestPlaceOrder_InsufficientBalanceBlocksEverything(t *testing.T) {
	in, fake := openTestIntake(t)
	ctx := context.Background()

	userID := uuid.New().String()
	require.NoError(t, in.Store.EnsureBalance(ctx, userID, "JPY", domain.Balance{Balance: decimal.Zero}))

	_, err := in.PlaceOrder(ctx, userID, CreateOrderRequest{
		Pair: domain.SupportedPair, OrderType: "buy",
		Rate: decimal.RequireFromString("500"), Amount: decimal.RequireFromString("1"),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	recvCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, ok, err := fake.Recv(recvCtx)
	require.NoError(t, err)
	require.False(t, ok, "no order message should be published when the lock fails")
}
