package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/userauth/apiserver/internal/ratelimit"
)

type stubVerifier struct {
	valid map[string]string
}

func (s stubVerifier) Verify(token string) (string, error) {
	if id, ok := s.valid[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

func echoUserID(w http.ResponseWriter, r *http.Request) {
	id, _ := UserIDFromContext(r.Context())
	_, _ = w.Write([]byte(id))
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) MessageResponse {
	t.Helper()
	var body MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRequireAuth(t *testing.T) {
	mw := RequireAuth(stubVerifier{valid: map[string]string{"good": "user-1"}})
	h := mw(http.HandlerFunc(echoUserID))

	tests := []struct {
		name    string
		headers map[string]string
		status  int
		msg     string
		userID  string
	}{
		{name: "no headers", status: http.StatusUnauthorized, msg: "No token, authorization denied"},
		{name: "blank token header", headers: map[string]string{TokenHeader: "   "}, status: http.StatusUnauthorized, msg: "No token, authorization denied"},
		{name: "invalid token", headers: map[string]string{TokenHeader: "nope"}, status: http.StatusUnauthorized, msg: "Token is not valid"},
		{name: "malformed authorization", headers: map[string]string{"Authorization": "Basic abc"}, status: http.StatusUnauthorized, msg: "Token is not valid"},
		{name: "token header", headers: map[string]string{TokenHeader: "good"}, status: http.StatusOK, userID: "user-1"},
		{name: "bearer fallback", headers: map[string]string{"Authorization": "Bearer good"}, status: http.StatusOK, userID: "user-1"},
		{name: "token header wins", headers: map[string]string{TokenHeader: "good", "Authorization": "Bearer nope"}, status: http.StatusOK, userID: "user-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, decodeMessage(t, rec).Msg)
				return
			}
			assert.Equal(t, tt.userID, rec.Body.String())
		})
	}
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewMemory()
	defer limiter.Close()

	var rejected int
	mw := RateLimit(limiter, ScopeLogin, 2, time.Minute, func(*http.Request) { rejected++ })
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := do("10.0.0.1:1234")
	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1235").Code)

	blocked := do("10.0.0.1:1236")
	require.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.NotEmpty(t, blocked.Header().Get("Retry-After"))
	var body ErrorsResponse
	require.NoError(t, json.Unmarshal(blocked.Body.Bytes(), &body))
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "Too many requests", body.Errors[0].Msg)
	assert.Equal(t, 1, rejected)

	assert.Equal(t, http.StatusNoContent, do("10.0.0.2:1234").Code, "other clients keep their own budget")
}

func TestRateLimitDisabled(t *testing.T) {
	h := RateLimit(nil, ScopeLogin, 1, time.Minute, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestRateLimitIgnoresForwardingHeaders(t *testing.T) {
	limiter := ratelimit.NewMemory()
	defer limiter.Close()

	h := RateLimit(limiter, ScopeLogin, 2, time.Minute, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	var limited int
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.9:4000"
		req.Header.Set("X-Forwarded-For", "203.0.113."+strconv.Itoa(i))
		req.Header.Set("X-Real-IP", "198.51.100."+strconv.Itoa(i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 8, limited)
}

func TestRateLimitScopeSharedAcrossPaths(t *testing.T) {
	limiter := ratelimit.NewMemory()
	defer limiter.Close()

	h := RateLimit(limiter, ScopeLogin, 2, time.Minute, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 4)
	for _, path := range []string{"/login", "/api/users/login", "/login", "/api/users/login"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = "10.0.0.3:1000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{
		http.StatusNoContent,
		http.StatusNoContent,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
	}, codes)
}

func TestRateLimitKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/users/register", nil)
	req.RemoteAddr = "192.0.2.1:80"
	assert.Equal(t, "register:ip:192.0.2.1", rateLimitKey(ScopeRegister, req))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7", clientIP(req))

	req.RemoteAddr = "not-an-addr"
	assert.Equal(t, "not-an-addr", clientIP(req))
}
