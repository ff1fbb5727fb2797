package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/resource"
	"github.com/iota-uz/taskflow/pkg/composables"
)

const (
	selectProjectOwnerQuery = `
		SELECT p.uid, p.owner_uid, p.area_uid
		FROM projects p
		WHERE p.tenant_id = $1 AND p.uid = $2`

	selectTaskOwnerQuery = `
		SELECT t.uid, t.owner_uid, t.assigned_to_uid, t.project_uid, t.parent_task_uid
		FROM tasks t
		WHERE t.tenant_id = $1 AND t.uid = $2`

	selectNoteOwnerQuery = `
		SELECT n.uid, n.owner_uid, n.project_uid
		FROM notes n
		WHERE n.tenant_id = $1 AND n.uid = $2`

	selectAreaOwnerQuery = `
		SELECT a.uid, a.owner_uid
		FROM areas a
		WHERE a.tenant_id = $1 AND a.uid = $2`
)

// PgResourceStore reads the task manager's own tables. The permission engine
// only observes them; every write stays with the host application.
type PgResourceStore struct{}

func NewResourceStore() resource.Store {
	return &PgResourceStore{}
}

func (g *PgResourceStore) FindOwner(ctx context.Context, t resource.Type, uid uuid.UUID) (*resource.Owner, error) {
	return g.findOwner(ctx, t, uid, "")
}

func (g *PgResourceStore) FindOwnerForUpdate(ctx context.Context, t resource.Type, uid uuid.UUID) (*resource.Owner, error) {
	return g.findOwner(ctx, t, uid, " FOR UPDATE")
}

func (g *PgResourceStore) findOwner(ctx context.Context, t resource.Type, uid uuid.UUID, suffix string) (*resource.Owner, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	owner := &resource.Owner{Type: t}
	var (
		resUID, ownerUID                           string
		assigneeUID, projectUID, parentUID, areaUID *string
	)
	switch t {
	case resource.TypeProject:
		err = tx.QueryRow(ctx, selectProjectOwnerQuery+suffix, tenantID, uid.String()).
			Scan(&resUID, &ownerUID, &areaUID)
	case resource.TypeTask:
		err = tx.QueryRow(ctx, selectTaskOwnerQuery+suffix, tenantID, uid.String()).
			Scan(&resUID, &ownerUID, &assigneeUID, &projectUID, &parentUID)
	case resource.TypeNote:
		err = tx.QueryRow(ctx, selectNoteOwnerQuery+suffix, tenantID, uid.String()).
			Scan(&resUID, &ownerUID, &projectUID)
	case resource.TypeArea:
		err = tx.QueryRow(ctx, selectAreaOwnerQuery+suffix, tenantID, uid.String()).
			Scan(&resUID, &ownerUID)
	default:
		return nil, errors.Errorf("unknown resource type: %q", t)
	}
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to query resource owner")
	}

	if owner.UID, err = parseUID(resUID, "resource uid"); err != nil {
		return nil, err
	}
	if owner.OwnerUID, err = parseUID(ownerUID, "owner uid"); err != nil {
		return nil, err
	}
	if owner.AssigneeUID, err = parseUIDPtr(assigneeUID, "assignee uid"); err != nil {
		return nil, err
	}
	if owner.ProjectUID, err = parseUIDPtr(projectUID, "project uid"); err != nil {
		return nil, err
	}
	if owner.ParentTaskUID, err = parseUIDPtr(parentUID, "parent task uid"); err != nil {
		return nil, err
	}
	if owner.AreaUID, err = parseUIDPtr(areaUID, "area uid"); err != nil {
		return nil, err
	}
	return owner, nil
}

func (g *PgResourceStore) ListTaskNodes(ctx context.Context) ([]resource.TaskNode, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(
		ctx,
		`SELECT t.uid, t.parent_task_uid FROM tasks t WHERE t.tenant_id = $1`,
		tenantID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query task nodes")
	}
	defer rows.Close()

	nodes := make([]resource.TaskNode, 0)
	for rows.Next() {
		var (
			uid    string
			parent *string
		)
		if err := rows.Scan(&uid, &parent); err != nil {
			return nil, errors.Wrap(err, "failed to scan task node")
		}
		node := resource.TaskNode{}
		if node.UID, err = parseUID(uid, "task uid"); err != nil {
			return nil, err
		}
		if node.ParentUID, err = parseUIDPtr(parent, "parent task uid"); err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

func (g *PgResourceStore) ListProjectTaskUIDs(ctx context.Context, projectUID uuid.UUID) ([]uuid.UUID, error) {
	return g.queryUIDs(
		ctx,
		`SELECT t.uid FROM tasks t WHERE t.tenant_id = $1 AND t.project_uid = $2`,
		projectUID.String(),
	)
}

func (g *PgResourceStore) ListProjectNoteUIDs(ctx context.Context, projectUID uuid.UUID) ([]uuid.UUID, error) {
	return g.queryUIDs(
		ctx,
		`SELECT n.uid FROM notes n WHERE n.tenant_id = $1 AND n.project_uid = $2`,
		projectUID.String(),
	)
}

func (g *PgResourceStore) ListAreaProjectUIDs(ctx context.Context, areaUID uuid.UUID) ([]uuid.UUID, error) {
	return g.queryUIDs(
		ctx,
		`SELECT p.uid FROM projects p WHERE p.tenant_id = $1 AND p.area_uid = $2`,
		areaUID.String(),
	)
}

func (g *PgResourceStore) ListProjectUIDsOwnedBy(ctx context.Context, ownerUID uuid.UUID) ([]uuid.UUID, error) {
	return g.queryUIDs(
		ctx,
		`SELECT p.uid FROM projects p WHERE p.tenant_id = $1 AND p.owner_uid = $2`,
		ownerUID.String(),
	)
}

func (g *PgResourceStore) ProjectHasTaskTouchedBy(ctx context.Context, projectUID uuid.UUID, userUIDs []uuid.UUID) (bool, error) {
	if len(userUIDs) == 0 {
		return false, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := tx.QueryRow(
		ctx,
		`SELECT EXISTS (
			SELECT 1 FROM tasks t
			WHERE t.tenant_id = $1 AND t.project_uid = $2
			AND (t.owner_uid = ANY($3) OR t.assigned_to_uid = ANY($3))
		)`,
		tenantID, projectUID.String(), uidStrings(userUIDs),
	).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "failed to query project task ownership")
	}
	return exists, nil
}

func (g *PgResourceStore) ListProjectUIDsWithTasksTouchedBy(ctx context.Context, userUIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(userUIDs) == 0 {
		return nil, nil
	}
	return g.queryUIDs(
		ctx,
		`SELECT DISTINCT t.project_uid FROM tasks t
		WHERE t.tenant_id = $1 AND t.project_uid IS NOT NULL
		AND (t.owner_uid = ANY($2) OR t.assigned_to_uid = ANY($2))`,
		uidStrings(userUIDs),
	)
}

func (g *PgResourceStore) ListSubscribedTaskUIDs(ctx context.Context, userUID uuid.UUID) ([]uuid.UUID, error) {
	return g.queryUIDs(
		ctx,
		`SELECT s.task_uid FROM task_subscribers s
		JOIN tasks t ON t.uid = s.task_uid
		WHERE t.tenant_id = $1 AND s.user_uid = $2`,
		userUID.String(),
	)
}

func (g *PgResourceStore) IsTaskSubscriber(ctx context.Context, taskUID, userUID uuid.UUID) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := tx.QueryRow(
		ctx,
		`SELECT EXISTS (
			SELECT 1 FROM task_subscribers s WHERE s.task_uid = $1 AND s.user_uid = $2
		)`,
		taskUID.String(), userUID.String(),
	).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "failed to query task subscription")
	}
	return exists, nil
}

func (g *PgResourceStore) ListTaskUIDsOwnedBy(ctx context.Context, userUIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(userUIDs) == 0 {
		return nil, nil
	}
	return g.queryUIDs(
		ctx,
		`SELECT t.uid FROM tasks t
		WHERE t.tenant_id = $1 AND (t.owner_uid = ANY($2) OR t.assigned_to_uid = ANY($2))`,
		uidStrings(userUIDs),
	)
}

func (g *PgResourceStore) queryUIDs(ctx context.Context, query string, arg any) ([]uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, query, tenantID, arg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query resource uids")
	}
	defer rows.Close()
	return scanUIDs(rows)
}

func uidStrings(uids []uuid.UUID) []string {
	out := make([]string, len(uids))
	for i, uid := range uids {
		out[i] = uid.String()
	}
	return out
}
