package services

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/access"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/area"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/identity"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/permission"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/resource"
	"github.com/iota-uz/taskflow/pkg/metrics"
)

// AccessResolver computes the effective access level for a (user, resource)
// pair by merging every access source: super-admin, ownership, assignment,
// department administration, project fall-through, membership, and explicit
// permission rows. Pure read path; resolution rules are checked in order and
// the first match wins.
type AccessResolver struct {
	identity identity.Resolver
	store    resource.Store
	areas    area.Repository
	perms    permission.Repository
}

func NewAccessResolver(
	id identity.Resolver,
	store resource.Store,
	areas area.Repository,
	perms permission.Repository,
) *AccessResolver {
	return &AccessResolver{
		identity: id,
		store:    store,
		areas:    areas,
		perms:    perms,
	}
}

// ResolveForUserID is the numeric-id boundary adapter: it converts the route
// layer's row id to the stable UID before any rule runs, since the
// super-admin flag is keyed by UID. Unknown users resolve to none.
func (r *AccessResolver) ResolveForUserID(ctx context.Context, userID uint, t resource.Type, uid uuid.UUID) (access.Level, error) {
	userUID, err := r.identity.ResolveUID(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return access.LevelNone, nil
		}
		return access.LevelNone, lookupFailed("resolve user uid", err)
	}
	return r.Resolve(ctx, userUID, t, uid)
}

func (r *AccessResolver) Resolve(ctx context.Context, userUID uuid.UUID, t resource.Type, uid uuid.UUID) (access.Level, error) {
	scope := newAdminScope(r.areas, userUID)
	lvl, err := r.resolve(ctx, scope, userUID, t, uid)
	if err != nil {
		return access.LevelNone, err
	}
	metrics.AccessResolves.WithLabelValues(string(t), lvl.String()).Inc()
	return lvl, nil
}

func (r *AccessResolver) resolve(ctx context.Context, scope *adminScope, userUID uuid.UUID, t resource.Type, uid uuid.UUID) (access.Level, error) {
	super, err := r.identity.IsSuperAdmin(ctx, userUID)
	if err != nil {
		return access.LevelNone, lookupFailed("super-admin check", err)
	}
	if super {
		// Task access is capped at rw for super-admins so task-specific
		// semantics are not silently overridden.
		if t == resource.TypeTask {
			return access.LevelRW, nil
		}
		return access.LevelAdmin, nil
	}

	owner, err := r.store.FindOwner(ctx, t, uid)
	if err != nil {
		return access.LevelNone, lookupFailed("find owner", err)
	}
	if owner == nil {
		// Unknown resource is not an error.
		return access.LevelNone, nil
	}

	if owner.OwnerUID == userUID {
		if t == resource.TypeArea {
			return access.LevelAdmin, nil
		}
		return access.LevelRW, nil
	}

	switch t {
	case resource.TypeTask:
		lvl, err := r.resolveTask(ctx, scope, userUID, owner)
		if err != nil || lvl != access.LevelNone {
			return lvl, err
		}
	case resource.TypeProject:
		lvl, err := r.resolveProject(ctx, scope, userUID, owner)
		if err != nil || lvl != access.LevelNone {
			return lvl, err
		}
	case resource.TypeNote:
		if owner.ProjectUID != uuid.Nil {
			lvl, err := r.resolveProjectAccess(ctx, scope, userUID, owner.ProjectUID)
			if err != nil || lvl != access.LevelNone {
				return lvl, err
			}
		}
	case resource.TypeArea:
		membership, err := r.areas.FindMembership(ctx, uid, userUID)
		if err != nil {
			return access.LevelNone, lookupFailed("find membership", err)
		}
		if membership != nil {
			if membership.Role == area.RoleAdmin {
				return access.LevelAdmin, nil
			}
			return access.LevelRW, nil
		}
	}

	perm, err := r.perms.Get(ctx, permission.Key{UserUID: userUID, ResourceType: t, ResourceUID: uid})
	if err != nil {
		return access.LevelNone, lookupFailed("get permission", err)
	}
	if perm != nil {
		return perm.Level, nil
	}
	return access.LevelNone, nil
}

func (r *AccessResolver) resolveTask(ctx context.Context, scope *adminScope, userUID uuid.UUID, owner *resource.Owner) (access.Level, error) {
	if owner.AssigneeUID == userUID {
		return access.LevelRW, nil
	}

	// Department admins see member tasks read-only; editing stays with the
	// member.
	ownerMembership, err := r.areas.FindMembershipByUser(ctx, owner.OwnerUID)
	if err != nil {
		return access.LevelNone, lookupFailed("find owner membership", err)
	}
	if ownerMembership != nil {
		administers, err := scope.AdministersArea(ctx, ownerMembership.AreaUID)
		if err != nil {
			return access.LevelNone, err
		}
		if administers {
			return access.LevelRO, nil
		}
	}

	if owner.ProjectUID != uuid.Nil {
		lvl, err := r.resolveProjectAccess(ctx, scope, userUID, owner.ProjectUID)
		if err != nil || lvl != access.LevelNone {
			return lvl, err
		}
	}

	// Subscribers can read the task they follow even without any grant.
	subscribed, err := r.store.IsTaskSubscriber(ctx, owner.UID, userUID)
	if err != nil {
		return access.LevelNone, lookupFailed("subscriber check", err)
	}
	if subscribed {
		return access.LevelRO, nil
	}
	return access.LevelNone, nil
}

func (r *AccessResolver) resolveProject(ctx context.Context, scope *adminScope, userUID uuid.UUID, owner *resource.Owner) (access.Level, error) {
	if owner.AreaUID != uuid.Nil {
		administers, err := scope.AdministersArea(ctx, owner.AreaUID)
		if err != nil {
			return access.LevelNone, err
		}
		if administers {
			return access.LevelRW, nil
		}
	}

	touched := []uuid.UUID{userUID}
	memberUIDs, err := scope.MemberUIDs(ctx)
	if err != nil {
		return access.LevelNone, err
	}
	touched = append(touched, memberUIDs...)

	has, err := r.store.ProjectHasTaskTouchedBy(ctx, owner.UID, touched)
	if err != nil {
		return access.LevelNone, lookupFailed("project task scan", err)
	}
	if has {
		return access.LevelRW, nil
	}
	return access.LevelNone, nil
}

// resolveProjectAccess is the task/note fall-through: a project grant of
// level L implies L on the project's tasks and notes.
func (r *AccessResolver) resolveProjectAccess(ctx context.Context, scope *adminScope, userUID, projectUID uuid.UUID) (access.Level, error) {
	owner, err := r.store.FindOwner(ctx, resource.TypeProject, projectUID)
	if err != nil {
		return access.LevelNone, lookupFailed("find project owner", err)
	}
	if owner == nil {
		return access.LevelNone, nil
	}
	if owner.OwnerUID == userUID {
		return access.LevelRW, nil
	}
	lvl, err := r.resolveProject(ctx, scope, userUID, owner)
	if err != nil || lvl != access.LevelNone {
		return lvl, err
	}
	perm, err := r.perms.Get(ctx, permission.Key{
		UserUID:      userUID,
		ResourceType: resource.TypeProject,
		ResourceUID:  projectUID,
	})
	if err != nil {
		return access.LevelNone, lookupFailed("get project permission", err)
	}
	if perm != nil {
		return perm.Level, nil
	}
	return access.LevelNone, nil
}
