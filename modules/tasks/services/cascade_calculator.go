package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/access"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/action"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/area"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/permission"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/resource"
)

// Diff is the full set of permission writes a single action requires.
type Diff struct {
	Upserts []*permission.Permission
	Deletes []permission.Key
}

func (d *Diff) Size() int {
	return len(d.Upserts) + len(d.Deletes)
}

// CascadeCalculator turns one permission-changing action into the permission
// rows it implies across the resource subtree. Pure function over current
// store state plus the action payload; it never mutates.
//
// Strategies are a table keyed by verb, with share verbs dispatching again on
// the resource variant, so adding a resource type stays a localized change.
type CascadeCalculator struct {
	store resource.Store
	areas area.Repository

	strategies map[action.Verb]cascadeFn
	shareScope map[resource.Type]scopeFn
}

type cascadeFn func(ctx context.Context, act *action.Action) (*Diff, error)

// scopeFn returns the resource refs a share on the given root covers, root
// first.
type scopeFn func(ctx context.Context, c *CascadeCalculator, root uuid.UUID) ([]resource.Ref, error)

func NewCascadeCalculator(store resource.Store, areas area.Repository) *CascadeCalculator {
	c := &CascadeCalculator{store: store, areas: areas}
	c.strategies = map[action.Verb]cascadeFn{
		action.VerbShareGrant:            c.shareGrant,
		action.VerbShareRevoke:           c.shareRevoke,
		action.VerbAreaMemberAdd:         c.areaMemberAdd,
		action.VerbAreaMemberRemove:      c.areaMemberRemove,
		action.VerbAreaOwnershipTransfer: c.areaMemberRemove,
		action.VerbTag:                   c.noop,
	}
	c.shareScope = map[resource.Type]scopeFn{
		resource.TypeProject: shareScopeProject,
		resource.TypeTask:    shareScopeTask,
		resource.TypeNote:    shareScopeNote,
	}
	return c
}

func (c *CascadeCalculator) Calculate(ctx context.Context, act *action.Action) (*Diff, error) {
	strategy, ok := c.strategies[act.Verb]
	if !ok {
		return nil, ErrValidation.WithDetails("no cascade strategy for verb %q", act.Verb)
	}
	return strategy(ctx, act)
}

func (c *CascadeCalculator) noop(context.Context, *action.Action) (*Diff, error) {
	return &Diff{}, nil
}

func (c *CascadeCalculator) shareGrant(ctx context.Context, act *action.Action) (*Diff, error) {
	refs, err := c.shareRefs(ctx, act)
	if err != nil {
		return nil, err
	}
	diff := &Diff{Upserts: make([]*permission.Permission, 0, len(refs))}
	for i, ref := range refs {
		prop := access.PropagationDirect
		if i > 0 {
			prop = access.PropagationInherited
		}
		diff.Upserts = append(diff.Upserts, c.permissionRow(act, ref, act.Level, prop))
	}
	return diff, nil
}

func (c *CascadeCalculator) shareRevoke(ctx context.Context, act *action.Action) (*Diff, error) {
	refs, err := c.shareRefs(ctx, act)
	if err != nil {
		return nil, err
	}
	diff := &Diff{Deletes: make([]permission.Key, 0, len(refs))}
	for _, ref := range refs {
		diff.Deletes = append(diff.Deletes, permission.Key{
			UserUID:      act.TargetUID,
			ResourceType: ref.Type,
			ResourceUID:  ref.UID,
		})
	}
	return diff, nil
}

func (c *CascadeCalculator) shareRefs(ctx context.Context, act *action.Action) ([]resource.Ref, error) {
	scope, ok := c.shareScope[act.ResourceType]
	if !ok {
		return nil, ErrValidation.WithDetails("resource type %q cannot be shared", act.ResourceType)
	}
	refs, err := scope(ctx, c, act.ResourceUID)
	if err != nil {
		return nil, err
	}
	return dedupRefs(refs), nil
}

// shareScopeProject covers the project itself, every task attached to it
// (recursively through subtasks), and every note in it.
func shareScopeProject(ctx context.Context, c *CascadeCalculator, root uuid.UUID) ([]resource.Ref, error) {
	refs := []resource.Ref{{Type: resource.TypeProject, UID: root}}

	taskUIDs, err := c.projectTaskSubtrees(ctx, root)
	if err != nil {
		return nil, err
	}
	for _, uid := range taskUIDs {
		refs = append(refs, resource.Ref{Type: resource.TypeTask, UID: uid})
	}

	noteUIDs, err := c.store.ListProjectNoteUIDs(ctx, root)
	if err != nil {
		return nil, lookupFailed("list project notes", err)
	}
	for _, uid := range noteUIDs {
		refs = append(refs, resource.Ref{Type: resource.TypeNote, UID: uid})
	}
	return refs, nil
}

// shareScopeTask covers the task and its subtask subtree only; sharing a
// task never ascends to the project or touches siblings.
func shareScopeTask(ctx context.Context, c *CascadeCalculator, root uuid.UUID) ([]resource.Ref, error) {
	graph, err := c.taskGraph(ctx)
	if err != nil {
		return nil, err
	}
	refs := []resource.Ref{{Type: resource.TypeTask, UID: root}}
	for _, uid := range graph.Descendants(root) {
		refs = append(refs, resource.Ref{Type: resource.TypeTask, UID: uid})
	}
	return refs, nil
}

func shareScopeNote(_ context.Context, _ *CascadeCalculator, root uuid.UUID) ([]resource.Ref, error) {
	return []resource.Ref{{Type: resource.TypeNote, UID: root}}, nil
}

// areaMemberAdd is the widest cascade: an area_membership row on the area
// itself plus inherited rows on every project in the area with all of their
// tasks and notes.
func (c *CascadeCalculator) areaMemberAdd(ctx context.Context, act *action.Action) (*Diff, error) {
	refs, err := c.areaRefs(ctx, act.ResourceUID)
	if err != nil {
		return nil, err
	}
	diff := &Diff{Upserts: make([]*permission.Permission, 0, len(refs))}
	for i, ref := range refs {
		prop := access.PropagationAreaMembership
		if i > 0 {
			prop = access.PropagationInherited
		}
		diff.Upserts = append(diff.Upserts, c.permissionRow(act, ref, act.Level, prop))
	}
	return diff, nil
}

func (c *CascadeCalculator) areaMemberRemove(ctx context.Context, act *action.Action) (*Diff, error) {
	refs, err := c.areaRefs(ctx, act.ResourceUID)
	if err != nil {
		return nil, err
	}
	diff := &Diff{Deletes: make([]permission.Key, 0, len(refs))}
	for _, ref := range refs {
		diff.Deletes = append(diff.Deletes, permission.Key{
			UserUID:      act.TargetUID,
			ResourceType: ref.Type,
			ResourceUID:  ref.UID,
		})
	}
	return diff, nil
}

func (c *CascadeCalculator) areaRefs(ctx context.Context, areaUID uuid.UUID) ([]resource.Ref, error) {
	refs := []resource.Ref{{Type: resource.TypeArea, UID: areaUID}}

	projectUIDs, err := c.store.ListAreaProjectUIDs(ctx, areaUID)
	if err != nil {
		return nil, lookupFailed("list area projects", err)
	}
	for _, projectUID := range projectUIDs {
		projectRefs, err := shareScopeProject(ctx, c, projectUID)
		if err != nil {
			return nil, err
		}
		refs = append(refs, projectRefs...)
	}
	return dedupRefs(refs), nil
}

// projectTaskSubtrees expands the project's direct tasks through the
// adjacency index so subtasks are covered even when they carry no project
// reference of their own.
func (c *CascadeCalculator) projectTaskSubtrees(ctx context.Context, projectUID uuid.UUID) ([]uuid.UUID, error) {
	roots, err := c.store.ListProjectTaskUIDs(ctx, projectUID)
	if err != nil {
		return nil, lookupFailed("list project tasks", err)
	}
	graph, err := c.taskGraph(ctx)
	if err != nil {
		return nil, err
	}
	return graph.Expand(roots), nil
}

func (c *CascadeCalculator) taskGraph(ctx context.Context) (*resource.TaskGraph, error) {
	nodes, err := c.store.ListTaskNodes(ctx)
	if err != nil {
		return nil, lookupFailed("list task nodes", err)
	}
	return resource.NewTaskGraph(nodes), nil
}

func (c *CascadeCalculator) permissionRow(act *action.Action, ref resource.Ref, lvl access.Level, prop access.Propagation) *permission.Permission {
	return &permission.Permission{
		TenantID:       act.TenantID,
		UserUID:        act.TargetUID,
		ResourceType:   ref.Type,
		ResourceUID:    ref.UID,
		Level:          lvl,
		Propagation:    prop,
		GrantedByUID:   act.ActorUID,
		SourceActionID: act.ID,
	}
}

func dedupRefs(refs []resource.Ref) []resource.Ref {
	seen := make(map[resource.Ref]struct{}, len(refs))
	out := refs[:0]
	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}
