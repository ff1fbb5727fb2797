package services

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/area"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/identity"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/permission"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/resource"
	"github.com/iota-uz/taskflow/pkg/metrics"
	"github.com/iota-uz/taskflow/pkg/repo"
)

// Predicate is the declarative visibility filter for one (resource type,
// user) pair. It renders to a SQL disjunction for bulk list queries and
// evaluates in memory against live resource state, so list results stay
// consistent with per-item resolution.
type Predicate struct {
	ResourceType resource.Type

	// MatchAll bypasses filtering entirely (super-admin on task/project).
	MatchAll bool

	OwnerUID    uuid.UUID
	AssigneeUID uuid.UUID // tasks only
	// ResourceUIDs are resources visible by their own uid: direct and
	// cascaded permission rows, plus task subscriptions.
	ResourceUIDs []uuid.UUID
	// ProjectUIDs make a task or note visible through its parent project.
	ProjectUIDs []uuid.UUID
	// OwnerUIDs make tasks visible because the caller administers their
	// owners' department.
	OwnerUIDs []uuid.UUID
	// AreaUIDs make projects visible because the caller administers the
	// owning department.
	AreaUIDs []uuid.UUID
}

// Matches evaluates the predicate against one resource's live state.
func (p *Predicate) Matches(res *resource.Owner) bool {
	if res == nil || res.Type != p.ResourceType {
		return false
	}
	if p.MatchAll {
		return true
	}
	if res.OwnerUID == p.OwnerUID {
		return true
	}
	if p.AssigneeUID != uuid.Nil && res.AssigneeUID == p.AssigneeUID {
		return true
	}
	if containsUID(p.ResourceUIDs, res.UID) {
		return true
	}
	if res.ProjectUID != uuid.Nil && containsUID(p.ProjectUIDs, res.ProjectUID) {
		return true
	}
	if containsUID(p.OwnerUIDs, res.OwnerUID) {
		return true
	}
	if res.AreaUID != uuid.Nil && containsUID(p.AreaUIDs, res.AreaUID) {
		return true
	}
	return false
}

// ToSQL renders the predicate as a WHERE-clause disjunction over the given
// table alias. Placeholders start at argOffset+1.
func (p *Predicate) ToSQL(alias string, argOffset int) (string, []any) {
	if p.MatchAll {
		return "TRUE", nil
	}

	var clauses []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", argOffset+len(args))
	}

	clauses = append(clauses, fmt.Sprintf("%s.owner_uid = %s", alias, next(p.OwnerUID)))
	if p.AssigneeUID != uuid.Nil {
		clauses = append(clauses, fmt.Sprintf("%s.assigned_to_uid = %s", alias, next(p.AssigneeUID)))
	}
	if len(p.ResourceUIDs) > 0 {
		clauses = append(clauses, fmt.Sprintf("%s.uid = ANY(%s)", alias, next(p.ResourceUIDs)))
	}
	if len(p.ProjectUIDs) > 0 {
		clauses = append(clauses, fmt.Sprintf("%s.project_uid = ANY(%s)", alias, next(p.ProjectUIDs)))
	}
	if len(p.OwnerUIDs) > 0 {
		clauses = append(clauses, fmt.Sprintf("%s.owner_uid = ANY(%s)", alias, next(p.OwnerUIDs)))
	}
	if len(p.AreaUIDs) > 0 {
		clauses = append(clauses, fmt.Sprintf("%s.area_uid = ANY(%s)", alias, next(p.AreaUIDs)))
	}
	return repo.OrClause(clauses...), args
}

func containsUID(uids []uuid.UUID, uid uuid.UUID) bool {
	for _, u := range uids {
		if u == uid {
			return true
		}
	}
	return false
}

// VisibilityService builds list-time visibility predicates consistent with
// the AccessResolver: a resource matches the filter exactly when per-item
// resolution returns at least ro. The one documented exception is the
// super-admin note asymmetry, which is product behavior and kept as is.
type VisibilityService struct {
	identity identity.Resolver
	store    resource.Store
	areas    area.Repository
	perms    permission.Repository
}

func NewVisibilityService(
	id identity.Resolver,
	store resource.Store,
	areas area.Repository,
	perms permission.Repository,
) *VisibilityService {
	return &VisibilityService{
		identity: id,
		store:    store,
		areas:    areas,
		perms:    perms,
	}
}

// BuildFilterForUserID converts the route layer's numeric user id to the
// stable UID before building the filter. Unknown users get a predicate that
// matches only their own (nonexistent) resources, i.e. nothing.
func (s *VisibilityService) BuildFilterForUserID(ctx context.Context, t resource.Type, userID uint) (*Predicate, error) {
	userUID, err := s.identity.ResolveUID(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return &Predicate{ResourceType: t}, nil
		}
		return nil, lookupFailed("resolve user uid", err)
	}
	return s.BuildFilter(ctx, t, userUID)
}

func (s *VisibilityService) BuildFilter(ctx context.Context, t resource.Type, userUID uuid.UUID) (*Predicate, error) {
	metrics.VisibilityFilters.WithLabelValues(string(t)).Inc()

	super, err := s.identity.IsSuperAdmin(ctx, userUID)
	if err != nil {
		return nil, lookupFailed("super-admin check", err)
	}
	// Notes stay ownership/share-scoped even for super-admins.
	if super && (t == resource.TypeTask || t == resource.TypeProject) {
		return &Predicate{ResourceType: t, MatchAll: true, OwnerUID: userUID}, nil
	}

	scope := newAdminScope(s.areas, userUID)
	switch t {
	case resource.TypeTask:
		return s.buildTaskFilter(ctx, scope, userUID)
	case resource.TypeProject:
		return s.buildProjectFilter(ctx, scope, userUID)
	case resource.TypeNote:
		return s.buildNoteFilter(ctx, scope, userUID)
	default:
		return nil, ErrValidation.WithDetails("no visibility filter for resource type %q", t)
	}
}

func (s *VisibilityService) buildTaskFilter(ctx context.Context, scope *adminScope, userUID uuid.UUID) (*Predicate, error) {
	shared, err := s.perms.ListResourceUIDsForUser(ctx, userUID, resource.TypeTask)
	if err != nil {
		return nil, lookupFailed("list shared tasks", err)
	}
	subscribed, err := s.store.ListSubscribedTaskUIDs(ctx, userUID)
	if err != nil {
		return nil, lookupFailed("list subscribed tasks", err)
	}
	projectUIDs, err := s.visibleProjectParents(ctx, scope, userUID)
	if err != nil {
		return nil, err
	}
	memberUIDs, err := scope.MemberUIDs(ctx)
	if err != nil {
		return nil, err
	}
	return &Predicate{
		ResourceType: resource.TypeTask,
		OwnerUID:     userUID,
		AssigneeUID:  userUID,
		ResourceUIDs: dedupUIDs(shared, subscribed),
		ProjectUIDs:  projectUIDs,
		OwnerUIDs:    memberUIDs,
	}, nil
}

func (s *VisibilityService) buildNoteFilter(ctx context.Context, scope *adminScope, userUID uuid.UUID) (*Predicate, error) {
	shared, err := s.perms.ListResourceUIDsForUser(ctx, userUID, resource.TypeNote)
	if err != nil {
		return nil, lookupFailed("list shared notes", err)
	}
	projectUIDs, err := s.visibleProjectParents(ctx, scope, userUID)
	if err != nil {
		return nil, err
	}
	return &Predicate{
		ResourceType: resource.TypeNote,
		OwnerUID:     userUID,
		ResourceUIDs: shared,
		ProjectUIDs:  projectUIDs,
	}, nil
}

func (s *VisibilityService) buildProjectFilter(ctx context.Context, scope *adminScope, userUID uuid.UUID) (*Predicate, error) {
	shared, err := s.perms.ListResourceUIDsForUser(ctx, userUID, resource.TypeProject)
	if err != nil {
		return nil, lookupFailed("list shared projects", err)
	}
	areaUIDs, err := scope.AdministeredAreaUIDs(ctx)
	if err != nil {
		return nil, err
	}
	memberUIDs, err := scope.MemberUIDs(ctx)
	if err != nil {
		return nil, err
	}
	touched, err := s.store.ListProjectUIDsWithTasksTouchedBy(ctx, append([]uuid.UUID{userUID}, memberUIDs...))
	if err != nil {
		return nil, lookupFailed("list touched projects", err)
	}
	return &Predicate{
		ResourceType: resource.TypeProject,
		OwnerUID:     userUID,
		ResourceUIDs: dedupUIDs(shared, touched),
		AreaUIDs:     areaUIDs,
	}, nil
}

// visibleProjectParents collects every project uid whose tasks and notes the
// user can list through the parent. The set mirrors the resolver's project
// fall-through exactly: explicitly shared projects, projects the user owns,
// projects in administered areas, and projects touched by the user or an
// administered-area member. Each source the fall-through grants from must
// appear here, or list filtering produces false negatives.
func (s *VisibilityService) visibleProjectParents(ctx context.Context, scope *adminScope, userUID uuid.UUID) ([]uuid.UUID, error) {
	shared, err := s.perms.ListResourceUIDsForUser(ctx, userUID, resource.TypeProject)
	if err != nil {
		return nil, lookupFailed("list shared projects", err)
	}
	owned, err := s.store.ListProjectUIDsOwnedBy(ctx, userUID)
	if err != nil {
		return nil, lookupFailed("list owned projects", err)
	}
	areaUIDs, err := scope.AdministeredAreaUIDs(ctx)
	if err != nil {
		return nil, err
	}
	memberUIDs, err := scope.MemberUIDs(ctx)
	if err != nil {
		return nil, err
	}
	touched, err := s.store.ListProjectUIDsWithTasksTouchedBy(ctx, append([]uuid.UUID{userUID}, memberUIDs...))
	if err != nil {
		return nil, lookupFailed("list touched projects", err)
	}
	out := append([]uuid.UUID(nil), shared...)
	out = append(out, owned...)
	out = append(out, touched...)
	for _, areaUID := range areaUIDs {
		projectUIDs, err := s.store.ListAreaProjectUIDs(ctx, areaUID)
		if err != nil {
			return nil, lookupFailed("list area projects", err)
		}
		out = append(out, projectUIDs...)
	}
	return dedupUIDs(out), nil
}

func dedupUIDs(lists ...[]uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, list := range lists {
		for _, uid := range list {
			if _, ok := seen[uid]; ok {
				continue
			}
			seen[uid] = struct{}{}
			out = append(out, uid)
		}
	}
	return out
}
