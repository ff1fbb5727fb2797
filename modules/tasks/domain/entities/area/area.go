package area

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("area not found")
	ErrMembershipNotFound = errors.New("area membership not found")
	ErrSubscriberNotFound = errors.New("area subscriber not found")
)

type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleMember, RoleAdmin:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown area role: %q", s)
	}
}

// Area is a department: it owns projects and carries a membership roster.
// Exactly one owner; a user belongs to at most one area at a time.
type Area struct {
	UID       uuid.UUID
	TenantID  uuid.UUID
	Name      string
	OwnerUID  uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdministeredBy reports whether the user is the owner or holds the admin
// role on the roster.
func (a *Area) IsAdministeredBy(userUID uuid.UUID, membership *Member) bool {
	if a.OwnerUID == userUID {
		return true
	}
	return membership != nil && membership.UserUID == userUID && membership.Role == RoleAdmin
}

type Member struct {
	AreaUID   uuid.UUID
	UserUID   uuid.UUID
	Role      Role
	AddedBy   uuid.UUID
	CreatedAt time.Time
}

// SubscriberSource distinguishes system-managed subscriber rows from the
// manual path. admin_role rows are created and removed with role changes and
// are not removable manually; manual rows outlive role changes.
type SubscriberSource string

const (
	SubscriberSourceManual    SubscriberSource = "manual"
	SubscriberSourceAdminRole SubscriberSource = "admin_role"
)

type Subscriber struct {
	AreaUID   uuid.UUID
	UserUID   uuid.UUID
	AddedBy   uuid.UUID
	Source    SubscriberSource
	CreatedAt time.Time
}

type Repository interface {
	GetByUID(ctx context.Context, uid uuid.UUID) (*Area, error)
	UpdateOwner(ctx context.Context, areaUID, ownerUID uuid.UUID) error

	// FindMembership returns nil when the user is not on the roster.
	FindMembership(ctx context.Context, areaUID, userUID uuid.UUID) (*Member, error)
	// FindMembershipByUser returns the user's single membership across all
	// areas, or nil.
	FindMembershipByUser(ctx context.Context, userUID uuid.UUID) (*Member, error)
	ListMembers(ctx context.Context, areaUID uuid.UUID) ([]*Member, error)
	// ListAdministeredAreaUIDs returns areas the user owns or admins.
	ListAdministeredAreaUIDs(ctx context.Context, userUID uuid.UUID) ([]uuid.UUID, error)
	AddMember(ctx context.Context, member *Member) error
	RemoveMember(ctx context.Context, areaUID, userUID uuid.UUID) error
	UpdateMemberRole(ctx context.Context, areaUID, userUID uuid.UUID, role Role) error

	// FindSubscriber returns nil when no row exists.
	FindSubscriber(ctx context.Context, areaUID, userUID uuid.UUID) (*Subscriber, error)
	AddSubscriber(ctx context.Context, sub *Subscriber) error
	// RemoveSubscriberBySource deletes only rows with the given source.
	RemoveSubscriberBySource(ctx context.Context, areaUID, userUID uuid.UUID, source SubscriberSource) error
}
