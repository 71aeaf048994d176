package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/order-engine/internal/engine"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

// NewRouter builds the engine API. Backend calls made by a handler are
// bounded by RequestTimeout.
func NewRouter(eng *engine.Engine, shop ShopStatusProvider, cfg RouterConfig, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = 1 << 20 // 1MB
	}

	cartHandler := NewCartHandler(cfg.RequestTimeout)
	checkoutHandler := NewCheckoutHandler(cfg.RequestTimeout)
	ordersHandler := NewOrdersHandler(cfg.RequestTimeout)
	shopHandler := NewShopHandler(shop, cfg.RequestTimeout)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware)
		r.Get("/shop/status", shopHandler.GetStatus)

		r.Group(func(r chi.Router) {
			r.Use(SessionMiddleware(eng))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)
				r.Post("/items", cartHandler.AddItem)
				r.Put("/items/{item_id}", cartHandler.UpdateQuantity)
				r.Delete("/items/{item_id}", cartHandler.RemoveItem)
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Get("/", checkoutHandler.GetCheckout)
				r.Put("/", checkoutHandler.UpdateInputs)
				r.Post("/place", checkoutHandler.PlaceOrder)
				r.Post("/accept", checkoutHandler.AcceptPrice)
				r.Post("/decline", checkoutHandler.DeclinePrice)
				r.Post("/confirm", checkoutHandler.RetryConfirm)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/active/banner", ordersHandler.GetBanner)
				r.Route("/{order_id}", func(r chi.Router) {
					r.Post("/tracking", ordersHandler.StartTracking)
					r.Get("/tracking", ordersHandler.GetTracking)
					r.Delete("/tracking", ordersHandler.StopTracking)
					r.Post("/tip", ordersHandler.AddTip)
					r.Post("/rating", ordersHandler.SubmitRating)
					r.Delete("/rating", ordersHandler.DismissRating)
					r.Post("/banner/dismiss", ordersHandler.DismissBanner)
				})
			})
		})
	})

	return otelhttp.NewHandler(r, "order-engine")
}

func withTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), d)
}
