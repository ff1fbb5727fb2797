package permission

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/access"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/resource"
)

// Permission is one explicit grant of access on a resource. Rows are written
// exclusively through cascade diffs; SourceActionID links each row to the
// action that produced it.
type Permission struct {
	ID             uint
	TenantID       uuid.UUID
	UserUID        uuid.UUID
	ResourceType   resource.Type
	ResourceUID    uuid.UUID
	Level          access.Level
	Propagation    access.Propagation
	GrantedByUID   uuid.UUID
	SourceActionID uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Key is the storage-level upsert identity: one row per user and resource.
type Key struct {
	UserUID      uuid.UUID
	ResourceType resource.Type
	ResourceUID  uuid.UUID
}

func (p *Permission) Key() Key {
	return Key{
		UserUID:      p.UserUID,
		ResourceType: p.ResourceType,
		ResourceUID:  p.ResourceUID,
	}
}

type FindParams struct {
	UserUID      *uuid.UUID
	ResourceType resource.Type
	ResourceUID  *uuid.UUID
	Propagation  access.Propagation
	Limit        int
	Offset       int
}

type Repository interface {
	// Get returns nil when no row exists for the key.
	Get(ctx context.Context, key Key) (*Permission, error)
	List(ctx context.Context, params *FindParams) ([]*Permission, error)
	// ListResourceUIDsForUser returns the uids of one resource type the user
	// holds explicit rows on.
	ListResourceUIDsForUser(ctx context.Context, userUID uuid.UUID, t resource.Type) ([]uuid.UUID, error)
	ListBySourceAction(ctx context.Context, actionID uuid.UUID) ([]*Permission, error)
	// UpsertMany writes rows keyed on (user, type, uid) with
	// last-writer-wins semantics for level and propagation.
	UpsertMany(ctx context.Context, perms []*Permission) error
	DeleteMany(ctx context.Context, keys []Key) error
}
