package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/userauth/apiserver/internal/avatar"
	"github.com/userauth/apiserver/internal/store"
	"github.com/userauth/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// PasswordHasher hashes new passwords and checks presented ones.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(hash, plain string) bool
}

// TokenIssuer signs a bearer token for a user id.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// EventPublisher announces account lifecycle events.
type EventPublisher interface {
	UserRegistered(ctx context.Context, user types.User) error
}

// UserService implements registration, login and the identity query.
type UserService struct {
	repo      UserRepository
	hasher    PasswordHasher
	tokens    TokenIssuer
	validator *Validator
	events    EventPublisher
	logger    *slog.Logger
}

// Option customizes a UserService.
type Option func(*UserService)

// WithEvents sets the publisher notified after each registration.
func WithEvents(p EventPublisher) Option {
	return func(s *UserService) { s.events = p }
}

// WithLogger sets the logger used for best-effort failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *UserService) { s.logger = l }
}

func NewUserService(repo UserRepository, hasher PasswordHasher, tokens TokenIssuer, opts ...Option) *UserService {
	s := &UserService{
		repo:      repo,
		hasher:    hasher,
		tokens:    tokens,
		validator: NewValidator(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account and returns a token for it.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (string, error) {
	if err := s.validator.ValidateRegister(&in); err != nil {
		return "", err
	}

	if _, err := s.repo.GetByEmail(ctx, in.Email); err == nil {
		return "", ErrDuplicateIdentity
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", internal("lookup user", err)
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return "", internal("hash password", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Name:         in.Name,
		Email:        in.Email,
		Avatar:       avatar.URL(in.Email, avatar.DefaultOptions),
		PasswordHash: hashed,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return "", ErrDuplicateIdentity
		}
		return "", internal("create user", err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", internal("issue token", err)
	}

	if s.events != nil {
		if err := s.events.UserRegistered(ctx, user); err != nil {
			s.logger.WarnContext(ctx, "publish user registered event failed", "user_id", user.ID, "error", err)
		}
	}

	return token, nil
}

// Login checks credentials and returns a token. Unknown emails and wrong
// passwords produce the same error.
func (s *UserService) Login(ctx context.Context, in LoginInput) (string, error) {
	if err := s.validator.ValidateLogin(&in); err != nil {
		return "", err
	}

	user, err := s.repo.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", internal("lookup user", err)
	}

	if !s.hasher.Compare(user.PasswordHash, in.Password) {
		return "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", internal("issue token", err)
	}
	return token, nil
}

// Profile returns the caller's account without password material. A verified
// id that no longer resolves is treated as an internal failure.
func (s *UserService) Profile(ctx context.Context, userID string) (types.Profile, error) {
	if userID == "" {
		return types.Profile{}, ErrUnauthorized
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return types.Profile{}, internal("load user", err)
	}
	return user.Profile(), nil
}
