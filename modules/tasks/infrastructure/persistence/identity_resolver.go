package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/identity"
	"github.com/iota-uz/taskflow/pkg/composables"
)

type PgIdentityResolver struct{}

func NewIdentityResolver() identity.Resolver {
	return &PgIdentityResolver{}
}

func (g *PgIdentityResolver) ResolveUID(ctx context.Context, userID uint) (uuid.UUID, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	var uid string
	if err := tx.QueryRow(
		ctx,
		`SELECT u.uid FROM users u WHERE u.tenant_id = $1 AND u.id = $2`,
		tenantID, int64(userID),
	).Scan(&uid); err != nil {
		if isNoRows(err) {
			return uuid.Nil, identity.ErrUserNotFound
		}
		return uuid.Nil, errors.Wrap(err, "failed to resolve user uid")
	}
	return parseUID(uid, "user uid")
}

func (g *PgIdentityResolver) IsSuperAdmin(ctx context.Context, uid uuid.UUID) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return false, err
	}
	var superAdmin bool
	if err := tx.QueryRow(
		ctx,
		`SELECT u.super_admin FROM users u WHERE u.tenant_id = $1 AND u.uid = $2`,
		tenantID, uid.String(),
	).Scan(&superAdmin); err != nil {
		if isNoRows(err) {
			return false, identity.ErrUserNotFound
		}
		return false, errors.Wrap(err, "failed to query super-admin flag")
	}
	return superAdmin, nil
}
