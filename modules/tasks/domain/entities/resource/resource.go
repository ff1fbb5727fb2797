package resource

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Type string

const (
	TypeProject Type = "project"
	TypeTask    Type = "task"
	TypeNote    Type = "note"
	TypeArea    Type = "area"
)

func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeProject, TypeTask, TypeNote, TypeArea:
		return Type(s), nil
	default:
		return "", fmt.Errorf("unknown resource type: %q", s)
	}
}

// Ref identifies a resource across the polymorphic hierarchy.
type Ref struct {
	Type Type
	UID  uuid.UUID
}

func (r Ref) String() string {
	return string(r.Type) + ":" + r.UID.String()
}

// Owner is the live ownership/attachment state of a single resource. Fields
// that do not apply to the variant are uuid.Nil.
type Owner struct {
	Type          Type
	UID           uuid.UUID
	OwnerUID      uuid.UUID
	AssigneeUID   uuid.UUID // tasks only
	ProjectUID    uuid.UUID // tasks and notes
	ParentTaskUID uuid.UUID // subtasks
	AreaUID       uuid.UUID // projects only
}

// TaskNode is one row of the task adjacency index. ParentUID is uuid.Nil for
// root tasks.
type TaskNode struct {
	UID       uuid.UUID
	ParentUID uuid.UUID
}

// Store is the resource-tree read surface the engine depends on. It is
// implemented over the task manager's tables; the engine itself never
// mutates projects, tasks or notes.
type Store interface {
	// FindOwner returns nil (not an error) when the resource does not exist.
	FindOwner(ctx context.Context, t Type, uid uuid.UUID) (*Owner, error)
	// FindOwnerForUpdate locks the resource row for the duration of the
	// enclosing transaction to serialize concurrent cascades.
	FindOwnerForUpdate(ctx context.Context, t Type, uid uuid.UUID) (*Owner, error)

	// ListTaskNodes returns the tenant's task adjacency index.
	ListTaskNodes(ctx context.Context) ([]TaskNode, error)
	// ListProjectTaskUIDs returns tasks attached to the project, including
	// subtasks that carry the project id.
	ListProjectTaskUIDs(ctx context.Context, projectUID uuid.UUID) ([]uuid.UUID, error)
	ListProjectNoteUIDs(ctx context.Context, projectUID uuid.UUID) ([]uuid.UUID, error)
	ListAreaProjectUIDs(ctx context.Context, areaUID uuid.UUID) ([]uuid.UUID, error)
	ListProjectUIDsOwnedBy(ctx context.Context, ownerUID uuid.UUID) ([]uuid.UUID, error)

	// ProjectHasTaskTouchedBy reports whether any task in the project is
	// owned by or assigned to one of the given users.
	ProjectHasTaskTouchedBy(ctx context.Context, projectUID uuid.UUID, userUIDs []uuid.UUID) (bool, error)
	// ListProjectUIDsWithTasksTouchedBy is the bulk form used by the
	// visibility predicate builder.
	ListProjectUIDsWithTasksTouchedBy(ctx context.Context, userUIDs []uuid.UUID) ([]uuid.UUID, error)
	// ListSubscribedTaskUIDs returns tasks the user subscribes to.
	ListSubscribedTaskUIDs(ctx context.Context, userUID uuid.UUID) ([]uuid.UUID, error)
	IsTaskSubscriber(ctx context.Context, taskUID, userUID uuid.UUID) (bool, error)
	// ListTaskUIDsOwnedBy returns tasks owned by or assigned to any of the
	// given users.
	ListTaskUIDsOwnedBy(ctx context.Context, userUIDs []uuid.UUID) ([]uuid.UUID, error)
}
