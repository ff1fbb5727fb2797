package services_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/access"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/area"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/permission"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/resource"
)

func TestAccessResolver_Ownership(t *testing.T) {
	e := newEngine()
	ctx := testContext()
	owner := e.identity.addUser(1, false)
	stranger := e.identity.addUser(2, false)

	projectUID := e.store.addProject(owner, uuid.Nil)
	taskUID := e.store.addTask(owner, uuid.Nil, uuid.Nil, uuid.Nil)
	areaUID := e.newArea("Platform", owner)

	lvl, err := e.resolver.Resolve(ctx, owner, resource.TypeProject, projectUID)
	require.NoError(t, err)
	require.Equal(t, access.LevelRW, lvl)

	lvl, err = e.resolver.Resolve(ctx, owner, resource.TypeTask, taskUID)
	require.NoError(t, err)
	require.Equal(t, access.LevelRW, lvl)

	// Area ownership grants admin, not rw.
	lvl, err = e.resolver.Resolve(ctx, owner, resource.TypeArea, areaUID)
	require.NoError(t, err)
	require.Equal(t, access.LevelAdmin, lvl)

	lvl, err = e.resolver.Resolve(ctx, stranger, resource.TypeProject, projectUID)
	require.NoError(t, err)
	require.Equal(t, access.LevelNone, lvl)
}

func TestAccessResolver_SuperAdmin(t *testing.T) {
	e := newEngine()
	ctx := testContext()
	super := e.identity.addUser(1, true)
	owner := e.identity.addUser(2, false)

	projectUID := e.store.addProject(owner, uuid.Nil)
	taskUID := e.store.addTask(owner, uuid.Nil, uuid.Nil, uuid.Nil)

	lvl, err := e.resolver.Resolve(ctx, super, resource.TypeProject, projectUID)
	require.NoError(t, err)
	require.Equal(t, access.LevelAdmin, lvl)

	// Task access is capped at rw even for super-admins.
	lvl, err = e.resolver.Resolve(ctx, super, resource.TypeTask, taskUID)
	require.NoError(t, err)
	require.Equal(t, access.LevelRW, lvl)
}

func TestAccessResolver_UnknownUserAndResource(t *testing.T) {
	e := newEngine()
	ctx := testContext()
	owner := e.identity.addUser(1, false)
	taskUID := e.store.addTask(owner, uuid.Nil, uuid.Nil, uuid.Nil)

	// Numeric id with no user row resolves to none, not an error.
	lvl, err := e.resolver.ResolveForUserID(ctx, 99, resource.TypeTask, taskUID)
	require.NoError(t, err)
	require.Equal(t, access.LevelNone, lvl)

	// Missing resource resolves to none.
	lvl, err = e.resolver.Resolve(ctx, owner, resource.TypeTask, uuid.New())
	require.NoError(t, err)
	require.Equal(t, access.LevelNone, lvl)
}

func TestAccessResolver_Assignment(t *testing.T) {
	e := newEngine()
	ctx := testContext()
	owner := e.identity.addUser(1, false)
	assignee := e.identity.addUser(2, false)

	taskUID := e.store.addTask(owner, assignee, uuid.Nil, uuid.Nil)

	lvl, err := e.resolver.Resolve(ctx, assignee, resource.TypeTask, taskUID)
	require.NoError(t, err)
	require.Equal(t, access.LevelRW, lvl)
}

func TestAccessResolver_DepartmentAdmin(t *testing.T) {
	e := newEngine()
	ctx := testContext()
	deptAdmin := e.identity.addUser(1, false)
	member := e.identity.addUser(2, false)

	areaUID := e.newArea("Platform", deptAdmin)
	e.areas.addMemberRow(areaUID, member, area.RoleMember)

	// Member's personal task: the department admin reads it, but does not
	// edit it.
	memberTask := e.store.addTask(member, uuid.Nil, uuid.Nil, uuid.Nil)
	lvl, err := e.resolver.Resolve(ctx, deptAdmin, resource.TypeTask, memberTask)
	require.NoError(t, err)
	require.Equal(t, access.LevelRO, lvl)

	// Project in the administered area: full rw.
	projectUID := e.store.addProject(member, areaUID)
	lvl, err = e.resolver.Resolve(ctx, deptAdmin, resource.TypeProject, projectUID)
	require.NoError(t, err)
	require.Equal(t, access.LevelRW, lvl)

	// A project outside the area where a roster member owns a task is still
	// reachable through the member-task rule.
	outsideProject := e.store.addProject(uuid.New(), uuid.Nil)
	e.store.addTask(member, uuid.Nil, outsideProject, uuid.Nil)
	lvl, err = e.resolver.Resolve(ctx, deptAdmin, resource.TypeProject, outsideProject)
	require.NoError(t, err)
	require.Equal(t, access.LevelRW, lvl)
}

func TestAccessResolver_ProjectFallThrough(t *testing.T) {
	e := newEngine()
	ctx := testContext()
	owner := e.identity.addUser(1, false)
	grantee := e.identity.addUser(2, false)

	projectUID := e.store.addProject(owner, uuid.Nil)
	taskUID := e.store.addTask(owner, uuid.Nil, projectUID, uuid.Nil)
	noteUID := e.store.addNote(owner, projectUID)

	// Explicit ro grant on the project.
	require.NoError(t, e.perms.UpsertMany(ctx, []*permission.Permission{{
		TenantID:     testTenantID,
		UserUID:      grantee,
		ResourceType: resource.TypeProject,
		ResourceUID:  projectUID,
		Level:        access.LevelRO,
		Propagation:  access.PropagationDirect,
	}}))

	lvl, err := e.resolver.Resolve(ctx, grantee, resource.TypeProject, projectUID)
	require.NoError(t, err)
	require.Equal(t, access.LevelRO, lvl)

	// The grant falls through to the project's tasks and notes.
	lvl, err = e.resolver.Resolve(ctx, grantee, resource.TypeTask, taskUID)
	require.NoError(t, err)
	require.Equal(t, access.LevelRO, lvl)

	lvl, err = e.resolver.Resolve(ctx, grantee, resource.TypeNote, noteUID)
	require.NoError(t, err)
	require.Equal(t, access.LevelRO, lvl)
}

func TestAccessResolver_TaskSubscription(t *testing.T) {
	e := newEngine()
	ctx := testContext()
	owner := e.identity.addUser(1, false)
	subscriber := e.identity.addUser(2, false)

	taskUID := e.store.addTask(owner, uuid.Nil, uuid.Nil, uuid.Nil)
	e.store.subscribe(taskUID, subscriber)

	lvl, err := e.resolver.Resolve(ctx, subscriber, resource.TypeTask, taskUID)
	require.NoError(t, err)
	require.Equal(t, access.LevelRO, lvl)
}

func TestAccessResolver_SubscriptionDoesNotShadowProjectGrant(t *testing.T) {
	e := newEngine()
	ctx := testContext()
	owner := e.identity.addUser(1, false)
	user := e.identity.addUser(2, false)

	projectUID := e.store.addProject(owner, uuid.Nil)
	taskUID := e.store.addTask(owner, uuid.Nil, projectUID, uuid.Nil)
	e.store.subscribe(taskUID, user)

	require.NoError(t, e.perms.UpsertMany(ctx, []*permission.Permission{{
		TenantID:     testTenantID,
		UserUID:      user,
		ResourceType: resource.TypeProject,
		ResourceUID:  projectUID,
		Level:        access.LevelRW,
		Propagation:  access.PropagationDirect,
	}}))

	// Project rw wins over the subscriber's ro.
	lvl, err := e.resolver.Resolve(ctx, user, resource.TypeTask, taskUID)
	require.NoError(t, err)
	require.Equal(t, access.LevelRW, lvl)
}

func TestAccessResolver_AreaMembership(t *testing.T) {
	e := newEngine()
	ctx := testContext()
	owner := e.identity.addUser(1, false)
	member := e.identity.addUser(2, false)
	admin := e.identity.addUser(3, false)

	areaUID := e.newArea("Platform", owner)
	e.areas.addMemberRow(areaUID, member, area.RoleMember)
	e.areas.addMemberRow(areaUID, admin, area.RoleAdmin)

	lvl, err := e.resolver.Resolve(ctx, member, resource.TypeArea, areaUID)
	require.NoError(t, err)
	require.Equal(t, access.LevelRW, lvl)

	lvl, err = e.resolver.Resolve(ctx, admin, resource.TypeArea, areaUID)
	require.NoError(t, err)
	require.Equal(t, access.LevelAdmin, lvl)
}

func TestAccessResolver_ExplicitPermissionRow(t *testing.T) {
	e := newEngine()
	ctx := testContext()
	owner := e.identity.addUser(1, false)
	grantee := e.identity.addUser(2, false)

	taskUID := e.store.addTask(owner, uuid.Nil, uuid.Nil, uuid.Nil)
	require.NoError(t, e.perms.UpsertMany(ctx, []*permission.Permission{{
		TenantID:     testTenantID,
		UserUID:      grantee,
		ResourceType: resource.TypeTask,
		ResourceUID:  taskUID,
		Level:        access.LevelRW,
		Propagation:  access.PropagationDirect,
	}}))

	lvl, err := e.resolver.Resolve(ctx, grantee, resource.TypeTask, taskUID)
	require.NoError(t, err)
	require.Equal(t, access.LevelRW, lvl)
}
