package handlers

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/userauth/apiserver/internal/ratelimit"
	"github.com/userauth/apiserver/internal/services"
)

// TokenHeader is the header carrying the raw token. Authorization: Bearer is
// accepted as a fallback.
const TokenHeader = "X-Auth-Token"

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// RequireAuth verifies the request token and injects the user id into the
// context. It never consults the store.
func RequireAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, present := requestToken(r)
			if !present {
				writeMessage(w, http.StatusUnauthorized, msgNoToken)
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				writeMessage(w, http.StatusUnauthorized, msgInvalidToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// requestToken extracts the token. present is false only when neither header
// was sent; a malformed Authorization header counts as a present token that
// will fail verification.
func requestToken(r *http.Request) (token string, present bool) {
	if raw := strings.TrimSpace(r.Header.Get(TokenHeader)); raw != "" {
		return raw, true
	}

	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", false
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", true
	}
	return strings.TrimSpace(parts[1]), true
}

// RateLimit rejects clients that exceed limit requests per window for the
// named operation. The budget is shared by every path mounting the same
// scope. Clients are keyed by r.RemoteAddr; forwarding headers only count when
// middleware.RealIP ran earlier in the chain. onReject, when set, is called
// for each rejected request.
func RateLimit(limiter ratelimit.Limiter, scope string, limit int, window time.Duration, onReject func(r *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			decision := limiter.Allow(rateLimitKey(scope, r), limit, window)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining(limit)))
			if !decision.WindowEnd.IsZero() {
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.WindowEnd.Unix(), 10))
			}
			if !decision.Allowed {
				if onReject != nil {
					onReject(r)
				}
				if !decision.WindowEnd.IsZero() {
					retry := int(time.Until(decision.WindowEnd).Seconds()) + 1
					w.Header().Set("Retry-After", strconv.Itoa(retry))
				}
				writeErrors(w, http.StatusTooManyRequests, services.FieldError{Msg: msgTooManyHits})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(scope string, r *http.Request) string {
	return scope + ":ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
