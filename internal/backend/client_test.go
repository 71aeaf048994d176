package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fjod/go_cart/order-engine/internal/domain"
	"github.com/fjod/go_cart/order-engine/pkg/circuitbreaker"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", Timeout: 2 * time.Second}, nil)
}

func TestCreateDraft(t *testing.T) {
	var got domain.DraftRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orders/draft", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"draft_order_id": "d1",
			"signature": "sig",
			"total_amount": 523.40,
			"subtotal": 450,
			"delivery_fee": 40,
			"app_fee": 5,
			"tip_amount": 30,
			"discount": 1.6,
			"expires_at": "2026-03-01T10:15:00"
		}`))
	})

	ctx := WithToken(context.Background(), "tok-1")
	draft, err := client.CreateDraft(ctx, domain.DraftRequest{
		Items:     []domain.OrderItemPayload{{Type: domain.ServiceProduct, ProductID: "p1", Quantity: 1}},
		TipAmount: 30,
	})
	require.NoError(t, err)

	assert.Equal(t, "d1", draft.DraftOrderID)
	assert.True(t, draft.TotalAmount.Equal(decimal.RequireFromString("523.4")))
	assert.Equal(t, 15, draft.ExpiresAt.Minute())
	require.Len(t, got.Items, 1)
	assert.Nil(t, got.PromoCode)
}

func TestCreateDraft_MissingSignature(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"draft_order_id": "d1", "total_amount": 10}`))
	})

	_, err := client.CreateDraft(context.Background(), domain.DraftRequest{})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestAPIErrorDetail(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		detail string
	}{
		{"string detail", http.StatusBadRequest, `{"detail":"Shop is closed"}`, "Shop is closed"},
		{"list detail ignored", http.StatusUnprocessableEntity, `{"detail":[{"msg":"bad"}]}`, ""},
		{"plain text", http.StatusBadGateway, `upstream failure`, ""},
		{"empty body", http.StatusInternalServerError, ``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.CreateDraft(context.Background(), domain.DraftRequest{})
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.detail, apiErr.Detail)
			assert.Equal(t, orFallback(tt.detail), DetailOr(err, "fallback"))
		})
	}
}

func orFallback(detail string) string {
	if detail == "" {
		return "fallback"
	}
	return detail
}

func TestConfirmOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req domain.ConfirmRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, domain.PaymentCOD, req.PaymentMethod)
		assert.Equal(t, "sig", req.Signature)
		_, _ = w.Write([]byte(`{"order_id":"ord_9","status":"confirmed"}`))
	})

	res, err := client.ConfirmOrder(context.Background(), domain.ConfirmRequest{
		DraftOrderID: "d1", Signature: "sig", PaymentMethod: domain.PaymentCOD,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord_9", res.Reference())
}

func TestConfirmOrder_EmptyBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := client.ConfirmOrder(context.Background(), domain.ConfirmRequest{})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestConfirmOrder_UndecodableBodyStillConfirms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["confirmed"]`))
	}))
	t.Cleanup(srv.Close)
	core, logs := observer.New(zapcore.DebugLevel)
	client := NewClient(Config{BaseURL: srv.URL + "/", Timeout: 2 * time.Second}, zap.New(core))

	res, err := client.ConfirmOrder(context.Background(), domain.ConfirmRequest{DraftOrderID: "d1"})
	require.NoError(t, err)
	require.NotNil(t, res)

	entries := logs.FilterMessage("confirmation body not decoded").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "d1", entries[0].ContextMap()["draft_order_id"])
}

func TestGetOrder_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/ord_404", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Order not found"}`))
	})

	_, err := client.GetOrder(context.Background(), "ord_404")
	assert.True(t, IsNotFound(err))
}

func TestGetOrder_EmptyID(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"}, nil)
	_, err := client.GetOrder(context.Background(), " ")
	assert.Error(t, err)
}

func TestActiveOrders_Shapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"list", `[{"id":"a","order_status":"preparing"},{"id":"b","order_status":"assigned"}]`, 2},
		{"object", `{"id":"a","order_status":"preparing"}`, 1},
		{"null", `null`, 0},
		{"empty", ``, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			orders, err := client.ActiveOrders(context.Background())
			require.NoError(t, err)
			assert.Len(t, orders, tt.want)
		})
	}
}

func TestTipRateClear(t *testing.T) {
	seen := map[string]string{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		raw, _ := json.Marshal(body)
		seen[r.Method+" "+r.URL.Path] = string(raw)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	ctx := context.Background()

	require.NoError(t, client.AddTip(ctx, "o1", 30))
	require.NoError(t, client.RateOrder(ctx, "o1", 5, ""))
	require.NoError(t, client.ClearCart(ctx))

	assert.JSONEq(t, `{"tip_amount":30,"order_id":"o1"}`, seen["POST /orders/o1/add-tip"])
	assert.JSONEq(t, `{"rating":5,"order_id":"o1"}`, seen["POST /orders/o1/rate"])
	assert.Contains(t, seen, "DELETE /cart/clear")
}

func TestShopStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"is_open":false,"reopen_time":"2026-03-02T09:00:00Z","reason":"Holiday"}`))
	})

	status, err := client.ShopStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, status.IsOpen)
	require.NotNil(t, status.Reason)
	assert.Equal(t, "Holiday", *status.Reason)
	require.NotNil(t, status.ReopenTime)
	assert.Equal(t, 9, status.ReopenTime.Hour())
}

func TestBreaker_ServerErrorsTrip(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	breaker := circuitbreaker.DefaultConfig("backend-test")
	breaker.ConsecutiveFailures = 2
	breaker.Timeout = time.Hour
	client := NewClient(Config{BaseURL: srv.URL, Breaker: breaker}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := client.ShopStatus(ctx)
		require.Error(t, err)
	}
	_, err := client.ShopStatus(ctx)
	assert.True(t, circuitbreaker.IsOpen(err))
	assert.Equal(t, 2, calls)
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := client.ShopStatus(ctx)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr), "call %d: %v", i, err)
	}
}
