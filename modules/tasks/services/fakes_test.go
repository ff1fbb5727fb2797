package services_test

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/action"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/area"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/identity"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/permission"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/resource"
	"github.com/iota-uz/taskflow/modules/tasks/services"
	"github.com/iota-uz/taskflow/pkg/composables"
	"github.com/iota-uz/taskflow/pkg/eventbus"
)

var testTenantID = uuid.MustParse("00000000-0000-0000-0000-00000000feed")

// testContext carries a stub transaction so nested WithinTx calls run the
// callback directly instead of dialing a database.
func testContext() context.Context {
	ctx := composables.WithTx(context.Background(), stubTx{})
	return composables.WithTenantID(ctx, testTenantID)
}

// stubTx satisfies pgx.Tx so it can sit in the context; the in-memory fakes
// never touch it.
type stubTx struct{}

func (stubTx) Begin(context.Context) (pgx.Tx, error)   { return stubTx{}, nil }
func (stubTx) Commit(context.Context) error            { return nil }
func (stubTx) Rollback(context.Context) error          { return nil }
func (stubTx) Conn() *pgx.Conn                         { return nil }
func (stubTx) LargeObjects() pgx.LargeObjects          { return pgx.LargeObjects{} }
func (stubTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (stubTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (stubTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (stubTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (stubTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (stubTx) QueryRow(context.Context, string, ...any) pgx.Row       { return nil }

type fakeIdentity struct {
	byID   map[uint]uuid.UUID
	supers map[uuid.UUID]bool
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		byID:   make(map[uint]uuid.UUID),
		supers: make(map[uuid.UUID]bool),
	}
}

func (f *fakeIdentity) addUser(id uint, super bool) uuid.UUID {
	uid := uuid.New()
	f.byID[id] = uid
	f.supers[uid] = super
	return uid
}

func (f *fakeIdentity) ResolveUID(_ context.Context, userID uint) (uuid.UUID, error) {
	uid, ok := f.byID[userID]
	if !ok {
		return uuid.Nil, identity.ErrUserNotFound
	}
	return uid, nil
}

func (f *fakeIdentity) IsSuperAdmin(_ context.Context, uid uuid.UUID) (bool, error) {
	return f.supers[uid], nil
}

type fakeStore struct {
	owners      map[resource.Ref]*resource.Owner
	subscribers map[uuid.UUID][]uuid.UUID // task -> users
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		owners:      make(map[resource.Ref]*resource.Owner),
		subscribers: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (f *fakeStore) put(o *resource.Owner) {
	f.owners[resource.Ref{Type: o.Type, UID: o.UID}] = o
}

func (f *fakeStore) addProject(ownerUID, areaUID uuid.UUID) uuid.UUID {
	uid := uuid.New()
	f.put(&resource.Owner{Type: resource.TypeProject, UID: uid, OwnerUID: ownerUID, AreaUID: areaUID})
	return uid
}

func (f *fakeStore) addTask(ownerUID, assigneeUID, projectUID, parentUID uuid.UUID) uuid.UUID {
	uid := uuid.New()
	f.put(&resource.Owner{
		Type: resource.TypeTask, UID: uid, OwnerUID: ownerUID,
		AssigneeUID: assigneeUID, ProjectUID: projectUID, ParentTaskUID: parentUID,
	})
	return uid
}

func (f *fakeStore) addNote(ownerUID, projectUID uuid.UUID) uuid.UUID {
	uid := uuid.New()
	f.put(&resource.Owner{Type: resource.TypeNote, UID: uid, OwnerUID: ownerUID, ProjectUID: projectUID})
	return uid
}

func (f *fakeStore) addArea(ownerUID uuid.UUID) uuid.UUID {
	uid := uuid.New()
	f.put(&resource.Owner{Type: resource.TypeArea, UID: uid, OwnerUID: ownerUID})
	return uid
}

func (f *fakeStore) subscribe(taskUID, userUID uuid.UUID) {
	f.subscribers[taskUID] = append(f.subscribers[taskUID], userUID)
}

func (f *fakeStore) FindOwner(_ context.Context, t resource.Type, uid uuid.UUID) (*resource.Owner, error) {
	return f.owners[resource.Ref{Type: t, UID: uid}], nil
}

func (f *fakeStore) FindOwnerForUpdate(ctx context.Context, t resource.Type, uid uuid.UUID) (*resource.Owner, error) {
	return f.FindOwner(ctx, t, uid)
}

func (f *fakeStore) ListTaskNodes(context.Context) ([]resource.TaskNode, error) {
	nodes := make([]resource.TaskNode, 0)
	for ref, o := range f.owners {
		if ref.Type != resource.TypeTask {
			continue
		}
		nodes = append(nodes, resource.TaskNode{UID: o.UID, ParentUID: o.ParentTaskUID})
	}
	return nodes, nil
}

func (f *fakeStore) ListProjectTaskUIDs(_ context.Context, projectUID uuid.UUID) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0)
	for ref, o := range f.owners {
		if ref.Type == resource.TypeTask && o.ProjectUID == projectUID {
			out = append(out, o.UID)
		}
	}
	return out, nil
}

func (f *fakeStore) ListProjectNoteUIDs(_ context.Context, projectUID uuid.UUID) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0)
	for ref, o := range f.owners {
		if ref.Type == resource.TypeNote && o.ProjectUID == projectUID {
			out = append(out, o.UID)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAreaProjectUIDs(_ context.Context, areaUID uuid.UUID) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0)
	for ref, o := range f.owners {
		if ref.Type == resource.TypeProject && o.AreaUID == areaUID {
			out = append(out, o.UID)
		}
	}
	return out, nil
}

func (f *fakeStore) ListProjectUIDsOwnedBy(_ context.Context, ownerUID uuid.UUID) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0)
	for ref, o := range f.owners {
		if ref.Type == resource.TypeProject && o.OwnerUID == ownerUID {
			out = append(out, o.UID)
		}
	}
	return out, nil
}

func (f *fakeStore) ProjectHasTaskTouchedBy(ctx context.Context, projectUID uuid.UUID, userUIDs []uuid.UUID) (bool, error) {
	for _, o := range f.owners {
		if o.Type != resource.TypeTask || o.ProjectUID != projectUID {
			continue
		}
		for _, uid := range userUIDs {
			if o.OwnerUID == uid || o.AssigneeUID == uid {
				return true, nil
			}
		}
	}
	return false, nil
}

func (f *fakeStore) ListProjectUIDsWithTasksTouchedBy(_ context.Context, userUIDs []uuid.UUID) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{})
	out := make([]uuid.UUID, 0)
	for _, o := range f.owners {
		if o.Type != resource.TypeTask || o.ProjectUID == uuid.Nil {
			continue
		}
		for _, uid := range userUIDs {
			if o.OwnerUID == uid || o.AssigneeUID == uid {
				if _, ok := seen[o.ProjectUID]; !ok {
					seen[o.ProjectUID] = struct{}{}
					out = append(out, o.ProjectUID)
				}
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ListSubscribedTaskUIDs(_ context.Context, userUID uuid.UUID) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0)
	for taskUID, users := range f.subscribers {
		for _, u := range users {
			if u == userUID {
				out = append(out, taskUID)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) IsTaskSubscriber(_ context.Context, taskUID, userUID uuid.UUID) (bool, error) {
	for _, u := range f.subscribers[taskUID] {
		if u == userUID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListTaskUIDsOwnedBy(_ context.Context, userUIDs []uuid.UUID) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0)
	for _, o := range f.owners {
		if o.Type != resource.TypeTask {
			continue
		}
		for _, uid := range userUIDs {
			if o.OwnerUID == uid || o.AssigneeUID == uid {
				out = append(out, o.UID)
				break
			}
		}
	}
	return out, nil
}

type memberKey struct {
	areaUID uuid.UUID
	userUID uuid.UUID
}

type subscriberKey struct {
	areaUID uuid.UUID
	userUID uuid.UUID
	source  area.SubscriberSource
}

type fakeAreaRepo struct {
	areas       map[uuid.UUID]*area.Area
	members     map[memberKey]*area.Member
	subscribers map[subscriberKey]*area.Subscriber
}

func newFakeAreaRepo() *fakeAreaRepo {
	return &fakeAreaRepo{
		areas:       make(map[uuid.UUID]*area.Area),
		members:     make(map[memberKey]*area.Member),
		subscribers: make(map[subscriberKey]*area.Subscriber),
	}
}

func (f *fakeAreaRepo) addArea(uid uuid.UUID, name string, ownerUID uuid.UUID) *area.Area {
	a := &area.Area{UID: uid, TenantID: testTenantID, Name: name, OwnerUID: ownerUID}
	f.areas[uid] = a
	return a
}

func (f *fakeAreaRepo) addMemberRow(areaUID, userUID uuid.UUID, role area.Role) {
	f.members[memberKey{areaUID, userUID}] = &area.Member{
		AreaUID: areaUID, UserUID: userUID, Role: role,
	}
}

func (f *fakeAreaRepo) GetByUID(_ context.Context, uid uuid.UUID) (*area.Area, error) {
	a, ok := f.areas[uid]
	if !ok {
		return nil, area.ErrNotFound
	}
	return a, nil
}

func (f *fakeAreaRepo) UpdateOwner(_ context.Context, areaUID, ownerUID uuid.UUID) error {
	a, ok := f.areas[areaUID]
	if !ok {
		return area.ErrNotFound
	}
	a.OwnerUID = ownerUID
	return nil
}

func (f *fakeAreaRepo) FindMembership(_ context.Context, areaUID, userUID uuid.UUID) (*area.Member, error) {
	return f.members[memberKey{areaUID, userUID}], nil
}

func (f *fakeAreaRepo) FindMembershipByUser(_ context.Context, userUID uuid.UUID) (*area.Member, error) {
	for key, m := range f.members {
		if key.userUID == userUID {
			return m, nil
		}
	}
	return nil, nil
}

func (f *fakeAreaRepo) ListMembers(_ context.Context, areaUID uuid.UUID) ([]*area.Member, error) {
	out := make([]*area.Member, 0)
	for key, m := range f.members {
		if key.areaUID == areaUID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeAreaRepo) ListAdministeredAreaUIDs(_ context.Context, userUID uuid.UUID) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{})
	out := make([]uuid.UUID, 0)
	for uid, a := range f.areas {
		if a.OwnerUID == userUID {
			seen[uid] = struct{}{}
			out = append(out, uid)
		}
	}
	for key, m := range f.members {
		if key.userUID == userUID && m.Role == area.RoleAdmin {
			if _, ok := seen[key.areaUID]; !ok {
				out = append(out, key.areaUID)
			}
		}
	}
	return out, nil
}

func (f *fakeAreaRepo) AddMember(_ context.Context, member *area.Member) error {
	f.members[memberKey{member.AreaUID, member.UserUID}] = member
	return nil
}

func (f *fakeAreaRepo) RemoveMember(_ context.Context, areaUID, userUID uuid.UUID) error {
	key := memberKey{areaUID, userUID}
	if _, ok := f.members[key]; !ok {
		return area.ErrMembershipNotFound
	}
	delete(f.members, key)
	return nil
}

func (f *fakeAreaRepo) UpdateMemberRole(_ context.Context, areaUID, userUID uuid.UUID, role area.Role) error {
	m, ok := f.members[memberKey{areaUID, userUID}]
	if !ok {
		return area.ErrMembershipNotFound
	}
	m.Role = role
	return nil
}

func (f *fakeAreaRepo) FindSubscriber(_ context.Context, areaUID, userUID uuid.UUID) (*area.Subscriber, error) {
	for key, sub := range f.subscribers {
		if key.areaUID == areaUID && key.userUID == userUID {
			return sub, nil
		}
	}
	return nil, nil
}

func (f *fakeAreaRepo) AddSubscriber(_ context.Context, sub *area.Subscriber) error {
	f.subscribers[subscriberKey{sub.AreaUID, sub.UserUID, sub.Source}] = sub
	return nil
}

func (f *fakeAreaRepo) RemoveSubscriberBySource(_ context.Context, areaUID, userUID uuid.UUID, source area.SubscriberSource) error {
	delete(f.subscribers, subscriberKey{areaUID, userUID, source})
	return nil
}

func (f *fakeAreaRepo) hasSubscriber(areaUID, userUID uuid.UUID, source area.SubscriberSource) bool {
	_, ok := f.subscribers[subscriberKey{areaUID, userUID, source}]
	return ok
}

type fakePermRepo struct {
	rows map[permission.Key]*permission.Permission
}

func newFakePermRepo() *fakePermRepo {
	return &fakePermRepo{rows: make(map[permission.Key]*permission.Permission)}
}

func (f *fakePermRepo) Get(_ context.Context, key permission.Key) (*permission.Permission, error) {
	return f.rows[key], nil
}

func (f *fakePermRepo) List(_ context.Context, params *permission.FindParams) ([]*permission.Permission, error) {
	out := make([]*permission.Permission, 0)
	for _, p := range f.rows {
		if params.UserUID != nil && p.UserUID != *params.UserUID {
			continue
		}
		if params.ResourceType != "" && p.ResourceType != params.ResourceType {
			continue
		}
		if params.ResourceUID != nil && p.ResourceUID != *params.ResourceUID {
			continue
		}
		if params.Propagation != "" && p.Propagation != params.Propagation {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakePermRepo) ListResourceUIDsForUser(_ context.Context, userUID uuid.UUID, t resource.Type) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0)
	for key := range f.rows {
		if key.UserUID == userUID && key.ResourceType == t {
			out = append(out, key.ResourceUID)
		}
	}
	return out, nil
}

func (f *fakePermRepo) ListBySourceAction(_ context.Context, actionID uuid.UUID) ([]*permission.Permission, error) {
	out := make([]*permission.Permission, 0)
	for _, p := range f.rows {
		if p.SourceActionID == actionID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePermRepo) UpsertMany(_ context.Context, perms []*permission.Permission) error {
	for _, p := range perms {
		f.rows[p.Key()] = p
	}
	return nil
}

func (f *fakePermRepo) DeleteMany(_ context.Context, keys []permission.Key) error {
	for _, key := range keys {
		delete(f.rows, key)
	}
	return nil
}

type fakeActionRepo struct {
	actions []*action.Action
}

func newFakeActionRepo() *fakeActionRepo {
	return &fakeActionRepo{}
}

func (f *fakeActionRepo) Create(_ context.Context, act *action.Action) error {
	f.actions = append(f.actions, act)
	return nil
}

func (f *fakeActionRepo) GetByID(_ context.Context, id uuid.UUID) (*action.Action, error) {
	for _, act := range f.actions {
		if act.ID == id {
			return act, nil
		}
	}
	return nil, action.ErrNotFound
}

func (f *fakeActionRepo) List(_ context.Context, _ *action.FindParams) ([]*action.Action, error) {
	return f.actions, nil
}

func (f *fakeActionRepo) Count(_ context.Context, _ *action.FindParams) (int64, error) {
	return int64(len(f.actions)), nil
}

// nopBus swallows events; tests that assert on events use recordingBus.
type nopBus struct{}

func (nopBus) Publish(...interface{})  {}
func (nopBus) Subscribe(interface{})   {}
func (nopBus) Unsubscribe(interface{}) {}
func (nopBus) SubscribersCount() int   { return 0 }

type recordingBus struct {
	events []interface{}
}

func (b *recordingBus) Publish(args ...interface{}) { b.events = append(b.events, args...) }
func (b *recordingBus) Subscribe(interface{})       {}
func (b *recordingBus) Unsubscribe(interface{})     {}
func (b *recordingBus) SubscribersCount() int       { return 0 }

var _ eventbus.EventBus = (*recordingBus)(nil)

// engine bundles the full service graph over in-memory fakes.
type engine struct {
	identity *fakeIdentity
	store    *fakeStore
	areas    *fakeAreaRepo
	perms    *fakePermRepo
	actions  *fakeActionRepo
	bus      *recordingBus

	resolver   *services.AccessResolver
	visibility *services.VisibilityService
	executor   *services.ActionExecutor
	membership *services.AreaMembershipService
}

func newEngine() *engine {
	e := &engine{
		identity: newFakeIdentity(),
		store:    newFakeStore(),
		areas:    newFakeAreaRepo(),
		perms:    newFakePermRepo(),
		actions:  newFakeActionRepo(),
		bus:      &recordingBus{},
	}
	e.resolver = services.NewAccessResolver(e.identity, e.store, e.areas, e.perms)
	e.visibility = services.NewVisibilityService(e.identity, e.store, e.areas, e.perms)
	calculator := services.NewCascadeCalculator(e.store, e.areas)
	e.executor = services.NewActionExecutor(e.identity, e.store, e.areas, e.perms, e.actions, calculator, e.bus)
	e.membership = services.NewAreaMembershipService(e.identity, e.areas, e.executor, e.bus)
	return e
}

// newArea registers the area in both the resource store and the area
// repository, matching how the two views share one table.
func (e *engine) newArea(name string, ownerUID uuid.UUID) uuid.UUID {
	uid := e.store.addArea(ownerUID)
	e.areas.addArea(uid, name, ownerUID)
	return uid
}
