package auth

import (
	"errors"
	"fmt"
)

// AuthErrorKind classifies why a credential was rejected.
type AuthErrorKind string

const (
	KindMissingCredential   AuthErrorKind = "missing_credential"
	KindMalformedCredential AuthErrorKind = "malformed_credential"
	KindExpiredCredential   AuthErrorKind = "expired_credential"
	KindPrincipalNotFound   AuthErrorKind = "principal_not_found"
)

// AuthError is returned by Authenticate. Match a kind with errors.Is against
// the sentinels below, or any kind with errors.As.
type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "auth: " + string(e.Kind)
	}
	return fmt.Sprintf("auth: %s: %v", e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches another AuthError of the same kind.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

var (
	ErrMissingCredential   = &AuthError{Kind: KindMissingCredential}
	ErrMalformedCredential = &AuthError{Kind: KindMalformedCredential}
	ErrExpiredCredential   = &AuthError{Kind: KindExpiredCredential}
	ErrPrincipalNotFound   = &AuthError{Kind: KindPrincipalNotFound}
)

var (
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when signup hits an existing account.
	ErrEmailTaken = errors.New("email already registered")
)

func authError(kind AuthErrorKind, err error) error {
	return &AuthError{Kind: kind, Err: err}
}
