package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"cex/internal/bus"
	"cex/internal/domain"
	"cex/internal/intake"
	"cex/internal/queryapi"
	"cex/internal/store"
)

func openTestServer(t *testing.T) *Server {
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

	return New(intake.New(s, bus.NewFakeBus()), queryapi.New(s))
}

func TestCreateOrder_RejectsUnsupportedPair(t *testing.T) {
	srv := openTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"pair": "eth_jpy", "order_type": "buy", "rate": "1", "amount": "1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/exchange/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrder_SucceedsAndAppearsInBook(t *testing.T) {
	srv := openTestServer(t)
	ctx := context.Background()
	require.NoError(t, srv.Intake.Store.EnsureBalance(ctx, defaultUserID, "BTC", domain.Balance{Balance: decimal.RequireFromString("5")}))

	body, _ := json.Marshal(map[string]any{
		"pair": domain.SupportedPair, "order_type": "sell", "rate": "600", "amount": "2",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/exchange/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var created createOrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.True(t, created.Success)
	_, err := uuid.Parse(created.OrderID)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/order_books", nil)
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot domain.OrderBookSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	found := false
	for _, lvl := range snapshot.Asks {
		if lvl.Price.Equal(decimal.RequireFromString("600")) {
			found = true
		}
	}
	require.True(t, found, "newly rested ask must appear in the book snapshot")
}
