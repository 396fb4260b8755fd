// Package identity holds the interfaces to the external identity
// service: credential resolution, the may-message policy predicate and
// the online/last-seen sink. The messaging subsystem never owns user
// accounts or the follow graph; it consumes them through these
// interfaces.
package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/nexthire/chatd/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid credential")
	ErrTokenExpired = errors.New("credential expired")
	ErrUserNotFound = errors.New("user not found")
)

// Authenticator resolves a bearer credential to a user record.
// Implementations must fail closed: expired or malformed credentials
// return an error and no user.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*models.User, error)
}

// Authorizer answers the "may sender message receiver" policy question.
type Authorizer interface {
	CanMessage(ctx context.Context, sender, receiver uuid.UUID) (bool, error)
}

// Directory reads user profiles and records presence changes back to
// the identity service.
type Directory interface {
	Lookup(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetOnline(ctx context.Context, id uuid.UUID, online bool) error
	Ping(ctx context.Context) error
}
