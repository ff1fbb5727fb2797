package persistence

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/permission"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/resource"
	"github.com/iota-uz/taskflow/modules/tasks/infrastructure/persistence/models"
	"github.com/iota-uz/taskflow/pkg/composables"
	"github.com/iota-uz/taskflow/pkg/repo"
)

const (
	selectPermissionsQuery = `
		SELECT
			p.id,
			p.tenant_id,
			p.user_uid,
			p.resource_type,
			p.resource_uid,
			p.access_level,
			p.propagation,
			p.granted_by_uid,
			p.source_action_id,
			p.created_at,
			p.updated_at
		FROM permissions p`

	upsertPermissionsQuery = `
		INSERT INTO permissions (
			tenant_id,
			user_uid,
			resource_type,
			resource_uid,
			access_level,
			propagation,
			granted_by_uid,
			source_action_id
		) VALUES`

	upsertPermissionsConflict = `
		ON CONFLICT (tenant_id, user_uid, resource_type, resource_uid)
		DO UPDATE SET
			access_level = EXCLUDED.access_level,
			propagation = EXCLUDED.propagation,
			granted_by_uid = EXCLUDED.granted_by_uid,
			source_action_id = EXCLUDED.source_action_id,
			updated_at = now()`

	deletePermissionQuery = `
		DELETE FROM permissions
		WHERE tenant_id = $1 AND user_uid = $2 AND resource_type = $3 AND resource_uid = $4`
)

type PgPermissionRepository struct{}

func NewPermissionRepository() permission.Repository {
	return &PgPermissionRepository{}
}

func (g *PgPermissionRepository) queryPermissions(ctx context.Context, query string, args ...any) ([]*permission.Permission, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query permissions")
	}
	defer rows.Close()

	perms := make([]*permission.Permission, 0)
	for rows.Next() {
		var p models.Permission
		if err := rows.Scan(
			&p.ID,
			&p.TenantID,
			&p.UserUID,
			&p.ResourceType,
			&p.ResourceUID,
			&p.AccessLevel,
			&p.Propagation,
			&p.GrantedByUID,
			&p.SourceActionID,
			&p.CreatedAt,
			&p.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan permission row")
		}
		entity, err := toDomainPermission(&p)
		if err != nil {
			return nil, err
		}
		perms = append(perms, entity)
	}
	return perms, rows.Err()
}

func (g *PgPermissionRepository) Get(ctx context.Context, key permission.Key) (*permission.Permission, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	perms, err := g.queryPermissions(
		ctx,
		repo.Join(
			selectPermissionsQuery,
			"WHERE p.tenant_id = $1 AND p.user_uid = $2 AND p.resource_type = $3 AND p.resource_uid = $4",
		),
		tenantID, key.UserUID.String(), string(key.ResourceType), key.ResourceUID.String(),
	)
	if err != nil {
		return nil, err
	}
	if len(perms) == 0 {
		return nil, nil
	}
	return perms[0], nil
}

func (g *PgPermissionRepository) List(ctx context.Context, params *permission.FindParams) ([]*permission.Permission, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	where := []string{"p.tenant_id = $1"}
	args := []any{tenantID}

	if params.UserUID != nil {
		args = append(args, params.UserUID.String())
		where = append(where, fmt.Sprintf("p.user_uid = $%d", len(args)))
	}
	if params.ResourceType != "" {
		args = append(args, string(params.ResourceType))
		where = append(where, fmt.Sprintf("p.resource_type = $%d", len(args)))
	}
	if params.ResourceUID != nil {
		args = append(args, params.ResourceUID.String())
		where = append(where, fmt.Sprintf("p.resource_uid = $%d", len(args)))
	}
	if params.Propagation != "" {
		args = append(args, string(params.Propagation))
		where = append(where, fmt.Sprintf("p.propagation = $%d", len(args)))
	}

	return g.queryPermissions(
		ctx,
		repo.Join(
			selectPermissionsQuery,
			repo.JoinWhere(where...),
			"ORDER BY p.id",
			repo.FormatLimitOffset(params.Limit, params.Offset),
		),
		args...,
	)
}

func (g *PgPermissionRepository) ListResourceUIDsForUser(ctx context.Context, userUID uuid.UUID, t resource.Type) ([]uuid.UUID, error) {
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
		`SELECT resource_uid FROM permissions WHERE tenant_id = $1 AND user_uid = $2 AND resource_type = $3`,
		tenantID, userUID.String(), string(t),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query permission resource uids")
	}
	defer rows.Close()
	return scanUIDs(rows)
}

func (g *PgPermissionRepository) ListBySourceAction(ctx context.Context, actionID uuid.UUID) ([]*permission.Permission, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return g.queryPermissions(
		ctx,
		repo.Join(
			selectPermissionsQuery,
			"WHERE p.tenant_id = $1 AND p.source_action_id = $2",
			"ORDER BY p.id",
		),
		tenantID, actionID.String(),
	)
}

func (g *PgPermissionRepository) UpsertMany(ctx context.Context, perms []*permission.Permission) error {
	if len(perms) == 0 {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	values := make([][]any, 0, len(perms))
	for _, p := range perms {
		values = append(values, []any{
			p.TenantID.String(),
			p.UserUID.String(),
			string(p.ResourceType),
			p.ResourceUID.String(),
			p.Level.String(),
			string(p.Propagation),
			p.GrantedByUID.String(),
			p.SourceActionID.String(),
		})
	}
	q, args := repo.BatchInsertQueryN(upsertPermissionsQuery, values)
	if _, err := tx.Exec(ctx, q+upsertPermissionsConflict, args...); err != nil {
		return errors.Wrap(err, "failed to upsert permissions")
	}
	return nil
}

func (g *PgPermissionRepository) DeleteMany(ctx context.Context, keys []permission.Key) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, key := range keys {
		batch.Queue(deletePermissionQuery, tenantID, key.UserUID.String(), string(key.ResourceType), key.ResourceUID.String())
	}
	// UseTx hands back the narrowed interface; batches need the concrete tx.
	sender, ok := tx.(interface {
		SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	})
	if !ok {
		for _, key := range keys {
			if _, err := tx.Exec(ctx, deletePermissionQuery, tenantID, key.UserUID.String(), string(key.ResourceType), key.ResourceUID.String()); err != nil {
				return errors.Wrap(err, "failed to delete permission")
			}
		}
		return nil
	}
	results := sender.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()
	for range keys {
		if _, err := results.Exec(); err != nil {
			return errors.Wrap(err, "failed to delete permission")
		}
	}
	return nil
}
