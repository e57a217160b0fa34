package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/userauth/apiserver/internal/services"
)

const maxBodyBytes = 1 << 20

const (
	msgServerError   = "Server error"
	msgInvalidBody   = "Invalid request body"
	msgNoToken       = "No token, authorization denied"
	msgInvalidToken  = "Token is not valid"
	msgNotFound      = "Page Not Found"
	msgTooManyHits   = "Too many requests"
	msgUserExists    = "User already exists"
	msgInvalidCreds  = "Invalid credentials"
	msgMethodNotUsed = "Method Not Allowed"
)

type contextKey string

const contextUserIDKey contextKey = "user.id"

// WithUserID returns a copy of ctx carrying a verified user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextUserIDKey, userID)
}

// UserIDFromContext returns the id attached by RequireAuth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextUserIDKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// MessageResponse is the {msg} payload used for 401 and 404 answers.
type MessageResponse struct {
	Msg string `json:"msg"`
}

// ErrorsResponse is the {errors:[...]} payload used for 400 answers.
type ErrorsResponse struct {
	Errors []services.FieldError `json:"errors"`
}

// TokenResponse is returned by register and login.
type TokenResponse struct {
	Token string `json:"token"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Msg: message})
}

func writeErrors(w http.ResponseWriter, status int, errs ...services.FieldError) {
	writeJSON(w, status, ErrorsResponse{Errors: errs})
}

// writeServerError answers with an opaque text body; details stay in logs.
func writeServerError(w http.ResponseWriter) {
	http.Error(w, msgServerError, http.StatusInternalServerError)
}

var errBadBody = errors.New("bad request body")

// decodeBody fills dst from a JSON or urlencoded form body. Form values are
// copied through setField, keyed by form field name.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, setField func(key, value string)) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return errBadBody
		}
		for key, values := range r.PostForm {
			if len(values) > 0 {
				setField(strings.ToLower(key), values[0])
			}
		}
		return nil
	default:
		dec := json.NewDecoder(r.Body)
		if err := dec.Decode(dst); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errBadBody
		}
		return nil
	}
}
