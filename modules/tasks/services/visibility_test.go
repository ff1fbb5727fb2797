package services_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/access"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/action"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/area"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/resource"
	"github.com/iota-uz/taskflow/modules/tasks/services"
)

func TestVisibility_SuperAdminAsymmetry(t *testing.T) {
	e := newEngine()
	ctx := testContext()
	super := e.identity.addUser(1, true)
	other := e.identity.addUser(2, false)

	otherNote := e.store.addNote(other, uuid.Nil)

	// Tasks and projects: everything.
	for _, rt := range []resource.Type{resource.TypeTask, resource.TypeProject} {
		p, err := e.visibility.BuildFilter(ctx, rt, super)
		require.NoError(t, err)
		require.True(t, p.MatchAll)
	}

	// Notes stay ownership/share-scoped even for super-admins.
	p, err := e.visibility.BuildFilter(ctx, resource.TypeNote, super)
	require.NoError(t, err)
	require.False(t, p.MatchAll)
	noteOwner, err := e.store.FindOwner(ctx, resource.TypeNote, otherNote)
	require.NoError(t, err)
	require.False(t, p.Matches(noteOwner))
}

func TestVisibility_TaskFilterSources(t *testing.T) {
	e := newEngine()
	ctx := testContext()
	user := e.identity.addUser(1, false)
	other := e.identity.addUser(2, false)

	ownTask := e.store.addTask(user, uuid.Nil, uuid.Nil, uuid.Nil)
	assignedTask := e.store.addTask(other, user, uuid.Nil, uuid.Nil)
	subscribedTask := e.store.addTask(other, uuid.Nil, uuid.Nil, uuid.Nil)
	e.store.subscribe(subscribedTask, user)
	invisibleTask := e.store.addTask(other, uuid.Nil, uuid.Nil, uuid.Nil)

	// A task shared through a project grant.
	projectUID := e.store.addProject(other, uuid.Nil)
	projectTask := e.store.addTask(other, uuid.Nil, projectUID, uuid.Nil)
	_, err := e.executor.Execute(ctx, services.Command{
		Verb:         action.VerbShareGrant,
		ActorUID:     other,
		TargetUID:    user,
		ResourceType: resource.TypeProject,
		ResourceUID:  projectUID,
		Level:        access.LevelRO,
	})
	require.NoError(t, err)

	p, err := e.visibility.BuildFilter(ctx, resource.TypeTask, user)
	require.NoError(t, err)

	visible := map[uuid.UUID]bool{
		ownTask:        true,
		assignedTask:   true,
		subscribedTask: true,
		projectTask:    true,
		invisibleTask:  false,
	}
	for taskUID, want := range visible {
		owner, err := e.store.FindOwner(ctx, resource.TypeTask, taskUID)
		require.NoError(t, err)
		require.Equal(t, want, p.Matches(owner), "task %s", taskUID)
	}
}

func TestVisibility_MatchesResolver(t *testing.T) {
	e := newEngine()
	ctx := testContext()
	deptAdmin := e.identity.addUser(1, false)
	member := e.identity.addUser(2, false)
	outsider := e.identity.addUser(3, false)

	areaUID := e.newArea("Platform", deptAdmin)
	e.areas.addMemberRow(areaUID, member, area.RoleMember)

	areaProject := e.store.addProject(member, areaUID)
	areaTask := e.store.addTask(member, uuid.Nil, areaProject, uuid.Nil)
	memberTask := e.store.addTask(member, uuid.Nil, uuid.Nil, uuid.Nil)
	strangerTask := e.store.addTask(outsider, uuid.Nil, uuid.Nil, uuid.Nil)

	// Predicate match must agree with per-item resolution: at least ro
	// resolves exactly when the filter matches.
	for _, tc := range []struct {
		name string
		uid  uuid.UUID
	}{
		{"task in administered area project", areaTask},
		{"member personal task", memberTask},
		{"outsider task", strangerTask},
	} {
		lvl, err := e.resolver.Resolve(ctx, deptAdmin, resource.TypeTask, tc.uid)
		require.NoError(t, err)

		p, err := e.visibility.BuildFilter(ctx, resource.TypeTask, deptAdmin)
		require.NoError(t, err)
		owner, err := e.store.FindOwner(ctx, resource.TypeTask, tc.uid)
		require.NoError(t, err)

		require.Equal(t, lvl.AtLeast(access.LevelRO), p.Matches(owner), tc.name)
	}

	// Same agreement on projects.
	for _, projectUID := range []uuid.UUID{areaProject} {
		lvl, err := e.resolver.Resolve(ctx, deptAdmin, resource.TypeProject, projectUID)
		require.NoError(t, err)
		require.True(t, lvl.AtLeast(access.LevelRO))

		p, err := e.visibility.BuildFilter(ctx, resource.TypeProject, deptAdmin)
		require.NoError(t, err)
		owner, err := e.store.FindOwner(ctx, resource.TypeProject, projectUID)
		require.NoError(t, err)
		require.True(t, p.Matches(owner))
	}
}

func TestVisibility_ProjectFilterIncludesTouchedProjects(t *testing.T) {
	e := newEngine()
	ctx := testContext()
	user := e.identity.addUser(1, false)
	other := e.identity.addUser(2, false)

	touched := e.store.addProject(other, uuid.Nil)
	e.store.addTask(user, uuid.Nil, touched, uuid.Nil)
	untouched := e.store.addProject(other, uuid.Nil)
	e.store.addTask(other, uuid.Nil, untouched, uuid.Nil)

	p, err := e.visibility.BuildFilter(ctx, resource.TypeProject, user)
	require.NoError(t, err)

	touchedOwner, err := e.store.FindOwner(ctx, resource.TypeProject, touched)
	require.NoError(t, err)
	require.True(t, p.Matches(touchedOwner))

	untouchedOwner, err := e.store.FindOwner(ctx, resource.TypeProject, untouched)
	require.NoError(t, err)
	require.False(t, p.Matches(untouchedOwner))
}

func TestVisibility_AreaHasNoFilter(t *testing.T) {
	e := newEngine()
	ctx := testContext()
	user := e.identity.addUser(1, false)

	_, err := e.visibility.BuildFilter(ctx, resource.TypeArea, user)
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestPredicate_ToSQL(t *testing.T) {
	userUID := uuid.New()
	shared := uuid.New()
	projectUID := uuid.New()

	p := &services.Predicate{
		ResourceType: resource.TypeTask,
		OwnerUID:     userUID,
		AssigneeUID:  userUID,
		ResourceUIDs: []uuid.UUID{shared},
		ProjectUIDs:  []uuid.UUID{projectUID},
	}
	clause, args := p.ToSQL("t", 2)
	require.Equal(t,
		"(t.owner_uid = $3 OR t.assigned_to_uid = $4 OR t.uid = ANY($5) OR t.project_uid = ANY($6))",
		clause,
	)
	require.Len(t, args, 4)

	all := &services.Predicate{ResourceType: resource.TypeTask, MatchAll: true}
	clause, args = all.ToSQL("t", 0)
	require.Equal(t, "TRUE", clause)
	require.Empty(t, args)
}

func TestVisibility_NumericIDAdapter(t *testing.T) {
	e := newEngine()
	ctx := testContext()
	user := e.identity.addUser(1, false)
	taskUID := e.store.addTask(user, uuid.Nil, uuid.Nil, uuid.Nil)

	pred, err := e.visibility.BuildFilterForUserID(ctx, resource.TypeTask, 1)
	require.NoError(t, err)
	require.True(t, pred.Matches(e.store.owners[resource.Ref{Type: resource.TypeTask, UID: taskUID}]))

	// Unknown ids get an empty predicate rather than an error.
	pred, err = e.visibility.BuildFilterForUserID(ctx, resource.TypeTask, 99)
	require.NoError(t, err)
	require.False(t, pred.MatchAll)
	require.False(t, pred.Matches(e.store.owners[resource.Ref{Type: resource.TypeTask, UID: taskUID}]))
}

func TestVisibility_TouchedProjectSiblings(t *testing.T) {
	e := newEngine()
	ctx := testContext()
	user := e.identity.addUser(1, false)
	other := e.identity.addUser(2, false)

	// Owning one task in a project makes the whole project rw, so every
	// sibling task and note must pass the list filter too.
	project := e.store.addProject(other, uuid.Nil)
	owned := e.store.addTask(user, uuid.Nil, project, uuid.Nil)
	sibling := e.store.addTask(other, uuid.Nil, project, uuid.Nil)
	note := e.store.addNote(other, project)

	for _, tc := range []struct {
		name string
		t    resource.Type
		uid  uuid.UUID
	}{
		{"own task", resource.TypeTask, owned},
		{"sibling task", resource.TypeTask, sibling},
		{"sibling note", resource.TypeNote, note},
	} {
		lvl, err := e.resolver.Resolve(ctx, user, tc.t, tc.uid)
		require.NoError(t, err)
		require.True(t, lvl.AtLeast(access.LevelRO), tc.name)

		p, err := e.visibility.BuildFilter(ctx, tc.t, user)
		require.NoError(t, err)
		owner, err := e.store.FindOwner(ctx, tc.t, tc.uid)
		require.NoError(t, err)
		require.True(t, p.Matches(owner), tc.name)
	}
}

func TestVisibility_OwnedProjectContents(t *testing.T) {
	e := newEngine()
	ctx := testContext()
	user := e.identity.addUser(1, false)
	other := e.identity.addUser(2, false)

	// Someone else's task in a project the user owns resolves rw via the
	// project fall-through; the task filter must include it.
	project := e.store.addProject(user, uuid.Nil)
	task := e.store.addTask(other, uuid.Nil, project, uuid.Nil)

	lvl, err := e.resolver.Resolve(ctx, user, resource.TypeTask, task)
	require.NoError(t, err)
	require.Equal(t, access.LevelRW, lvl)

	p, err := e.visibility.BuildFilter(ctx, resource.TypeTask, user)
	require.NoError(t, err)
	owner, err := e.store.FindOwner(ctx, resource.TypeTask, task)
	require.NoError(t, err)
	require.True(t, p.Matches(owner))
}
