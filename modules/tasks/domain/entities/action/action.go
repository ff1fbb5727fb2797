package action

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/access"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/resource"
)

type Verb string

const (
	VerbShareGrant            Verb = "share_grant"
	VerbShareRevoke           Verb = "share_revoke"
	VerbAreaMemberAdd         Verb = "area_member_add"
	VerbAreaMemberRemove      Verb = "area_member_remove"
	VerbAreaOwnershipTransfer Verb = "area_ownership_transfer"
	VerbTag                   Verb = "tag"
)

func ParseVerb(s string) (Verb, error) {
	switch Verb(s) {
	case VerbShareGrant, VerbShareRevoke, VerbAreaMemberAdd, VerbAreaMemberRemove,
		VerbAreaOwnershipTransfer, VerbTag:
		return Verb(s), nil
	default:
		return "", ErrUnknownVerb
	}
}

// Action is the immutable audit record of one permission-changing operation.
// Append-only; never updated or deleted. Every permission row a cascade
// produces references its action through source_action_id.
type Action struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	ActorUID     uuid.UUID
	Verb         Verb
	ResourceType resource.Type
	ResourceUID  uuid.UUID
	TargetUID    uuid.UUID
	Level        access.Level
	Metadata     json.RawMessage
	IP           string
	UserAgent    string
	CreatedAt    time.Time
}

type FindParams struct {
	ActorUID     *uuid.UUID
	TargetUID    *uuid.UUID
	Verb         Verb
	ResourceType resource.Type
	ResourceUID  *uuid.UUID
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
	SortBy       []string
}

type Repository interface {
	Create(ctx context.Context, act *Action) error
	GetByID(ctx context.Context, id uuid.UUID) (*Action, error)
	List(ctx context.Context, params *FindParams) ([]*Action, error)
	Count(ctx context.Context, params *FindParams) (int64, error)
}
