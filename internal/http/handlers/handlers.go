package handlers

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/lkrent/lkrent-server/internal/http/response"
	"github.com/lkrent/lkrent-server/internal/service"
	"github.com/lkrent/lkrent-server/pkg/auth"
	"github.com/lkrent/lkrent-server/pkg/config"
	"github.com/lkrent/lkrent-server/pkg/logger"
)

// RateLimiter bounds request rates per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Handlers struct {
	authService service.AuthService
	limiter     RateLimiter
	config      *config.Config
}

func New(authService service.AuthService, limiter RateLimiter, config *config.Config) *Handlers {
	return &Handlers{
		authService: authService,
		limiter:     limiter,
		config:      config,
	}
}

type ctxKey string

const ctxClaims ctxKey = "claims"

// RequireJWT authenticates the bearer token and puts its claims in context.
func (h *Handlers) RequireJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			response.Unauthorized(w, "Missing or invalid authorization header")
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := auth.Parse(token, h.config.Auth.JWTSecret)
		if err != nil {
			response.WriteError(w, http.StatusUnauthorized, "Invalid token", response.CodeInvalidToken)
			return
		}

		ctx := context.WithValue(r.Context(), logger.UserIDKey, claims.Sub)
		ctx = context.WithValue(ctx, ctxClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OtpRateLimit bounds OTP traffic per client IP.
func (h *Handlers) OtpRateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "otp:" + getClientIP(r)

			allowed, err := h.limiter.Allow(r.Context(), key, 10, time.Minute)
			if err != nil {
				logger.ErrorContext(r.Context(), "Rate limit check failed", "error", err)
				// Allow request on error (fail open)
			} else if !allowed {
				response.RateLimit(w, "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Helper functions
func getClaims(r *http.Request) *auth.Claims {
	if claims, ok := r.Context().Value(ctxClaims).(*auth.Claims); ok {
		return claims
	}
	return nil
}

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
