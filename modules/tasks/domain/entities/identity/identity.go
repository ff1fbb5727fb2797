package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrUserNotFound = errors.New("user not found")

// Resolver normalizes user identity at the engine boundary. Route handlers
// deal in numeric row ids; everything inside the engine runs on the stable
// UID, and the super-admin flag is keyed by UID.
type Resolver interface {
	ResolveUID(ctx context.Context, userID uint) (uuid.UUID, error)
	IsSuperAdmin(ctx context.Context, uid uuid.UUID) (bool, error)
}
