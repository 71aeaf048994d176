package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/order-engine/internal/backend"
	"github.com/fjod/go_cart/order-engine/internal/engine"
	"github.com/fjod/go_cart/order-engine/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const SessionHeader = "X-Session-ID"

type ctxKey int

const (
	authenticatedKey ctxKey = iota
	sessionKey
	loggerKey
)

// RequestIDMiddleware echoes the chi request id back to the client.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set("X-Request-ID", id)
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs every completed request with its status and latency.
func RequestLogger(l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			reqLog := l.With(zap.String("request_id", middleware.GetReqID(r.Context())))
			r = r.WithContext(context.WithValue(r.Context(), loggerKey, reqLog))
			next.ServeHTTP(ww, r)

			var route string
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			fields := []zap.Field{
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.Int("bytes", ww.BytesWritten()),
			}
			log := logger.WithTrace(r.Context(), l)
			switch {
			case ww.Status() >= http.StatusInternalServerError:
				log.Error("request completed", fields...)
			case ww.Status() >= http.StatusBadRequest:
				log.Warn("request completed", fields...)
			default:
				log.Info("request completed", fields...)
			}
		})
	}
}

// AuthMiddleware forwards a bearer token to the backend. Requests without
// one run as guests.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			respondError(w, r, http.StatusUnauthorized, "unauthorized", "malformed authorization header")
			return
		}

		ctx := backend.WithToken(r.Context(), token)
		ctx = context.WithValue(ctx, authenticatedKey, true)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionMiddleware resolves the device session named by X-Session-ID.
func SessionMiddleware(eng *engine.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(SessionHeader))
			if id == "" {
				respondError(w, r, http.StatusBadRequest, "missing_session_id", SessionHeader+" header is required")
				return
			}
			s, err := eng.Session(r.Context(), id, isAuthenticated(r.Context()))
			if err != nil {
				handleError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), sessionKey, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isAuthenticated(ctx context.Context) bool {
	ok, _ := ctx.Value(authenticatedKey).(bool)
	return ok
}

func sessionFrom(ctx context.Context) *engine.Session {
	s, _ := ctx.Value(sessionKey).(*engine.Session)
	return s
}

// requireAuth rejects guest requests.
func requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isAuthenticated(r.Context()) {
			respondError(w, r, http.StatusUnauthorized, "unauthorized", "missing user authentication")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggerFrom returns the request logger installed by RequestLogger.
func loggerFrom(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger.WithTrace(ctx, l)
	}
	return zap.NewNop()
}
