package persistence

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/action"
	"github.com/iota-uz/taskflow/modules/tasks/infrastructure/persistence/models"
	"github.com/iota-uz/taskflow/pkg/composables"
	"github.com/iota-uz/taskflow/pkg/repo"
)

const (
	selectActionsQuery = `
		SELECT
			a.id,
			a.tenant_id,
			a.actor_uid,
			a.verb,
			a.resource_type,
			a.resource_uid,
			a.target_uid,
			a.access_level,
			a.metadata,
			a.ip,
			a.user_agent,
			a.created_at
		FROM actions a`

	countActionsQuery = `SELECT COUNT(*) FROM actions a`

	insertActionQuery = `
		INSERT INTO actions (
			id,
			tenant_id,
			actor_uid,
			verb,
			resource_type,
			resource_uid,
			target_uid,
			access_level,
			metadata,
			ip,
			user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`
)

// Actions are append-only: the repository exposes no update or delete.
type PgActionRepository struct{}

func NewActionRepository() action.Repository {
	return &PgActionRepository{}
}

func (g *PgActionRepository) buildFilters(params *action.FindParams, args []any) ([]string, []any) {
	where := []string{"a.tenant_id = $1"}

	if params.ActorUID != nil {
		args = append(args, params.ActorUID.String())
		where = append(where, fmt.Sprintf("a.actor_uid = $%d", len(args)))
	}
	if params.TargetUID != nil {
		args = append(args, params.TargetUID.String())
		where = append(where, fmt.Sprintf("a.target_uid = $%d", len(args)))
	}
	if params.Verb != "" {
		args = append(args, string(params.Verb))
		where = append(where, fmt.Sprintf("a.verb = $%d", len(args)))
	}
	if params.ResourceType != "" {
		args = append(args, string(params.ResourceType))
		where = append(where, fmt.Sprintf("a.resource_type = $%d", len(args)))
	}
	if params.ResourceUID != nil {
		args = append(args, params.ResourceUID.String())
		where = append(where, fmt.Sprintf("a.resource_uid = $%d", len(args)))
	}
	if params.From != nil {
		args = append(args, *params.From)
		where = append(where, fmt.Sprintf("a.created_at >= $%d", len(args)))
	}
	if params.To != nil {
		args = append(args, *params.To)
		where = append(where, fmt.Sprintf("a.created_at <= $%d", len(args)))
	}
	return where, args
}

func (g *PgActionRepository) queryActions(ctx context.Context, query string, args ...any) ([]*action.Action, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query actions")
	}
	defer rows.Close()

	acts := make([]*action.Action, 0)
	for rows.Next() {
		var a models.Action
		if err := rows.Scan(
			&a.ID,
			&a.TenantID,
			&a.ActorUID,
			&a.Verb,
			&a.ResourceType,
			&a.ResourceUID,
			&a.TargetUID,
			&a.AccessLevel,
			&a.Metadata,
			&a.IP,
			&a.UserAgent,
			&a.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan action row")
		}
		entity, err := toDomainAction(&a)
		if err != nil {
			return nil, err
		}
		acts = append(acts, entity)
	}
	return acts, rows.Err()
}

func (g *PgActionRepository) Create(ctx context.Context, act *action.Action) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	dbAct := toDBAction(act)
	if err := tx.QueryRow(
		ctx,
		insertActionQuery,
		dbAct.ID,
		dbAct.TenantID,
		dbAct.ActorUID,
		dbAct.Verb,
		dbAct.ResourceType,
		dbAct.ResourceUID,
		dbAct.TargetUID,
		dbAct.AccessLevel,
		dbAct.Metadata,
		dbAct.IP,
		dbAct.UserAgent,
	).Scan(&act.CreatedAt); err != nil {
		return errors.Wrap(err, "failed to insert action")
	}
	return nil
}

func (g *PgActionRepository) GetByID(ctx context.Context, id uuid.UUID) (*action.Action, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	acts, err := g.queryActions(
		ctx,
		repo.Join(selectActionsQuery, "WHERE a.tenant_id = $1 AND a.id = $2"),
		tenantID, id.String(),
	)
	if err != nil {
		return nil, err
	}
	if len(acts) == 0 {
		return nil, action.ErrNotFound
	}
	return acts[0], nil
}

func (g *PgActionRepository) List(ctx context.Context, params *action.FindParams) ([]*action.Action, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	where, args := g.buildFilters(params, []any{tenantID})
	return g.queryActions(
		ctx,
		repo.Join(
			selectActionsQuery,
			repo.JoinWhere(where...),
			"ORDER BY a.created_at DESC",
			repo.FormatLimitOffset(params.Limit, params.Offset),
		),
		args...,
	)
}

func (g *PgActionRepository) Count(ctx context.Context, params *action.FindParams) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return 0, err
	}
	where, args := g.buildFilters(params, []any{tenantID})
	var count int64
	if err := tx.QueryRow(
		ctx,
		repo.Join(countActionsQuery, repo.JoinWhere(where...)),
		args...,
	).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count actions")
	}
	return count, nil
}
