// Package backend is the REST/JSON client for the commerce backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/go_cart/order-engine/internal/domain"
	"github.com/fjod/go_cart/order-engine/pkg/circuitbreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

var ErrMalformedResponse = errors.New("backend: malformed response")

type tokenKey struct{}

// WithToken attaches the bearer token forwarded on every backend call made
// with the returned context.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	Breaker circuitbreaker.Config
}

type Client struct {
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.Breaker[[]byte]
	logger  *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	breakerCfg := cfg.Breaker
	if breakerCfg.Name == "" {
		breakerCfg = circuitbreaker.DefaultConfig("backend")
	}
	// 4xx responses count as successes.
	breakerCfg.IsSuccessful = func(err error) bool {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr.StatusCode < http.StatusInternalServerError
		}
		return err == nil
	}

	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: circuitbreaker.New[[]byte](breakerCfg, logger),
		logger:  logger,
	}
}

type ConfirmResult struct {
	OrderID string `json:"order_id"`
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Reference returns whichever order identifier the backend sent.
func (r ConfirmResult) Reference() string {
	if r.OrderID != "" {
		return r.OrderID
	}
	return r.ID
}

func (c *Client) CreateDraft(ctx context.Context, req domain.DraftRequest) (*domain.DraftOrder, error) {
	var draft domain.DraftOrder
	if err := c.do(ctx, http.MethodPost, req, &draft, "orders", "draft"); err != nil {
		return nil, err
	}
	if draft.DraftOrderID == "" || draft.Signature == "" {
		return nil, fmt.Errorf("%w: draft without id or signature", ErrMalformedResponse)
	}
	return &draft, nil
}

func (c *Client) ConfirmOrder(ctx context.Context, req domain.ConfirmRequest) (*ConfirmResult, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, req, &raw, "orders", "confirm"); err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: empty confirmation", ErrMalformedResponse)
	}
	var result ConfirmResult
	// Any non-empty body confirms the order; the fields are informational.
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.Debug("confirmation body not decoded",
			zap.String("draft_order_id", req.DraftOrderID),
			zap.Error(err))
	}
	return &result, nil
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*domain.ActiveOrder, error) {
	var order domain.ActiveOrder
	if err := c.do(ctx, http.MethodGet, nil, &order, "orders", orderID); err != nil {
		return nil, err
	}
	if order.ID == "" {
		order.ID = orderID
	}
	return &order, nil
}

// ActiveOrders accepts a single order, a list or null from GET /orders/active.
func (c *Client) ActiveOrders(ctx context.Context) ([]domain.ActiveOrder, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, nil, &raw, "orders", "active"); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var orders []domain.ActiveOrder
		if err := json.Unmarshal(raw, &orders); err != nil {
			return nil, fmt.Errorf("decode active orders: %w", err)
		}
		return orders, nil
	}
	var order domain.ActiveOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("decode active order: %w", err)
	}
	if order.ID == "" {
		return nil, nil
	}
	return []domain.ActiveOrder{order}, nil
}

func (c *Client) AddTip(ctx context.Context, orderID string, amount int) error {
	req := domain.AddTipRequest{TipAmount: amount, OrderID: orderID}
	return c.do(ctx, http.MethodPost, req, nil, "orders", orderID, "add-tip")
}

func (c *Client) RateOrder(ctx context.Context, orderID string, rating int, review string) error {
	req := domain.RatingRequest{Rating: rating, Review: review, OrderID: orderID}
	return c.do(ctx, http.MethodPost, req, nil, "orders", orderID, "rate")
}

func (c *Client) ClearCart(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, nil, nil, "cart", "clear")
}

func (c *Client) ShopStatus(ctx context.Context) (*domain.ShopStatus, error) {
	var status domain.ShopStatus
	if err := c.do(ctx, http.MethodGet, nil, &status, "shop", "status"); err != nil {
		return nil, err
	}
	return &status, nil
}

// do sends body as JSON and decodes a 2xx response into out when out is
// non-nil. Non-2xx responses become *APIError.
func (c *Client) do(ctx context.Context, method string, body, out any, path ...string) error {
	for _, p := range path {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("backend: empty path segment in %s %v", method, path)
		}
	}
	endpoint, err := url.JoinPath(c.baseURL, path...)
	if err != nil {
		return fmt.Errorf("backend: build url: %w", err)
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: encode %s body: %w", method, err)
		}
	}

	data, err := c.breaker.Execute(ctx, func(ctx context.Context) ([]byte, error) {
		return c.send(ctx, method, endpoint, payload)
	})
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			c.logger.Warn("backend request failed",
				zap.String("method", method),
				zap.String("url", endpoint),
				zap.Error(err))
		}
		return err
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		if raw, ok := out.(*json.RawMessage); ok {
			*raw = nil
		}
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrMalformedResponse, method, endpoint, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := tokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, resp.Body)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend: read body: %w", err)
	}
	return data, nil
}
