package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/userauth/apiserver/internal/services"
)

// AuthHandler provides the registration, login and identity endpoints.
type AuthHandler struct {
	userService *services.UserService
	logger      *slog.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(userService *services.UserService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		userService: userService,
		logger:      logger,
	}
}

// Rate limit scopes for the public auth operations.
const (
	ScopeRegister = "register"
	ScopeLogin    = "login"
)

// AuthRoutes holds the middleware applied to auth routes. RateLimit, when
// set, builds the limiter for one scope.
type AuthRoutes struct {
	RequireAuth func(http.Handler) http.Handler
	RateLimit   func(scope string) func(http.Handler) http.Handler
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler, mw AuthRoutes) {
	limited := func(scope string) chi.Router {
		if mw.RateLimit == nil {
			return r.With()
		}
		return r.With(mw.RateLimit(scope))
	}
	limited(ScopeRegister).Post("/register", handler.Register)
	limited(ScopeLogin).Post("/login", handler.Login)
	r.With(mw.RequireAuth).Get("/me", handler.Me)
}

// Register creates a new user account and returns a token.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	err := decodeBody(w, r, &req, func(key, value string) {
		switch key {
		case "name":
			req.Name = value
		case "email":
			req.Email = value
		case "password":
			req.Password = value
		}
	})
	if err != nil {
		writeErrors(w, http.StatusBadRequest, services.FieldError{Msg: msgInvalidBody})
		return
	}

	token, err := h.userService.Register(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "register", err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// Login verifies credentials and returns a token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginInput
	err := decodeBody(w, r, &req, func(key, value string) {
		switch key {
		case "email":
			req.Email = value
		case "password":
			req.Password = value
		}
	})
	if err != nil {
		writeErrors(w, http.StatusBadRequest, services.FieldError{Msg: msgInvalidBody})
		return
	}

	token, err := h.userService.Login(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, "login", err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, msgNoToken)
		return
	}

	profile, err := h.userService.Profile(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, "me", err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *AuthHandler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeErrors(w, http.StatusBadRequest, verr.Errors...)
	case errors.Is(err, services.ErrDuplicateIdentity):
		writeErrors(w, http.StatusBadRequest, services.FieldError{Msg: msgUserExists})
	case errors.Is(err, services.ErrInvalidCredentials):
		writeErrors(w, http.StatusBadRequest, services.FieldError{Msg: msgInvalidCreds})
	case errors.Is(err, services.ErrUnauthorized):
		writeMessage(w, http.StatusUnauthorized, msgInvalidToken)
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			"op", op,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeServerError(w)
	}
}
