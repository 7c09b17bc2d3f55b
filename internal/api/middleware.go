/**
 * @description
 * Authentication, logging and throttling middleware for the entitlement service.
 */
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/StephenStolk/nutriapp-sub001/internal/app"
	"github.com/StephenStolk/nutriapp-sub001/internal/domain"
	"github.com/StephenStolk/nutriapp-sub001/internal/metrics"
)

type contextKey string

// UserContextKey is the key used to store the authenticated user in the request context.
const UserContextKey = contextKey("user")

// SessionAuthMiddleware validates HS256 session tokens and injects the user into context.
func SessionAuthMiddleware(secret string) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				respondWithError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			claims := jwt.MapClaims{}
			token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				respondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			userID, _ := claims["sub"].(string)
			if strings.TrimSpace(userID) == "" {
				respondWithError(w, http.StatusUnauthorized, "User ID not found in token")
				return
			}
			name, _ := claims["name"].(string)
			email, _ := claims["email"].(string)

			user := &domain.User{ID: userID, Name: name, Email: email}
			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// InternalAuthMiddleware validates the internal API key for server-to-server calls.
func InternalAuthMiddleware(requiredKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Internal-API-Key")
			if requiredKey == "" || provided == "" || provided != requiredKey {
				respondWithError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext retrieves the authenticated user from the request context.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*domain.User)
	return user, ok && user != nil && user.ID != ""
}

// RateLimiter counts requests per user within a fixed window.
type RateLimiter interface {
	Consume(ctx context.Context, scope, subject string) (app.RateLimitResult, error)
}

// RateLimitMiddleware throttles authenticated users per scope. When the
// limiter is unavailable the request is let through and a warning is logged.
func RateLimitMiddleware(limiter RateLimiter, scope string, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			result, err := limiter.Consume(r.Context(), scope, user.ID)
			if err != nil {
				logger.Warn().Err(err).Str("scope", scope).Str("user_id", user.ID).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if result.Exceeded() {
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfterSeconds))
				respondWithError(w, http.StatusTooManyRequests, "Too many requests, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one line per request and records its latency.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			duration := time.Since(start)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			metrics.HTTPRequestDuration.WithLabelValues(route, r.Method, strconv.Itoa(status)).Observe(duration.Seconds())

			event := logger.Info()
			if status >= http.StatusInternalServerError {
				event = logger.Error()
			}
			event.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", duration).
				Msg(fmt.Sprintf("%s %s", r.Method, route))
		})
	}
}
