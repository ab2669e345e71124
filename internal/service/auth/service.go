package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/taskboard/internal/domain"
	"github.com/splax/taskboard/internal/repository"
	"github.com/splax/taskboard/pkg/crypto"
	jwtpkg "github.com/splax/taskboard/pkg/jwt"
)

// MinPasswordLength is the shortest password accepted at signup.
const MinPasswordLength = 6

// Service handles signup, login and bearer-token authentication.
type Service struct {
	users  repository.UserRepository
	issuer *jwtpkg.Issuer
	hasher crypto.Hasher
	logger *slog.Logger
}

// New constructs a Service.
func New(users repository.UserRepository, issuer *jwtpkg.Issuer, hasher crypto.Hasher, logger *slog.Logger) Service {
	return Service{users: users, issuer: issuer, hasher: hasher, logger: logger}
}

// Token is a signed bearer credential and its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Signup registers a new user and issues a token for it.
func (s Service) Signup(ctx context.Context, name, email, password string) (*domain.User, Token, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, Token{}, &domain.ValidationError{Field: "name", Message: "is required"}
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, Token{}, err
	}
	if len(password) < MinPasswordLength {
		return nil, Token{}, &domain.ValidationError{Field: "password", Message: fmt.Sprintf("must be at least %d characters", MinPasswordLength)}
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, Token{}, fmt.Errorf("hash password: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, Token{}, fmt.Errorf("generate user id: %w", err)
	}
	user := &domain.User{
		ID:           id.String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, Token{}, ErrEmailTaken
		}
		return nil, Token{}, fmt.Errorf("create user: %w", err)
	}
	token, err := s.Issue(user.ID)
	if err != nil {
		return nil, Token{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, token, nil
}

// Login authenticates a user and returns a token.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, Token, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, Token{}, ErrInvalidCredentials
	}
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, Token{}, ErrInvalidCredentials
		}
		return nil, Token{}, fmt.Errorf("lookup user: %w", err)
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if errors.Is(err, crypto.ErrPasswordMismatch) {
			return nil, Token{}, ErrInvalidCredentials
		}
		return nil, Token{}, fmt.Errorf("compare password: %w", err)
	}
	token, err := s.Issue(user.ID)
	if err != nil {
		return nil, Token{}, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, token, nil
}

// Issue signs a token for userID.
func (s Service) Issue(userID string) (Token, error) {
	value, expires, err := s.issuer.Issue(userID)
	if err != nil {
		return Token{}, fmt.Errorf("issue token: %w", err)
	}
	return Token{Value: value, ExpiresAt: expires}, nil
}

// Authenticate resolves an Authorization header value to a principal.
// Rejections are *AuthError; any other error is a store failure.
func (s Service) Authenticate(ctx context.Context, rawHeader string) (domain.Principal, error) {
	token, err := bearerToken(rawHeader)
	if err != nil {
		return domain.Principal{}, authError(KindMissingCredential, err)
	}
	claims, err := s.issuer.Verify(token)
	if err != nil {
		if errors.Is(err, jwtpkg.ErrExpired) {
			return domain.Principal{}, authError(KindExpiredCredential, err)
		}
		return domain.Principal{}, authError(KindMalformedCredential, err)
	}
	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Principal{}, authError(KindPrincipalNotFound, fmt.Errorf("user %s", claims.UserID))
		}
		return domain.Principal{}, fmt.Errorf("resolve principal: %w", err)
	}
	return user.Principal(), nil
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", &domain.ValidationError{Field: "email", Message: "is required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", &domain.ValidationError{Field: "email", Message: "is not a valid address"}
	}
	return email, nil
}
