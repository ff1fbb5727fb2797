package persistence

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/area"
	"github.com/iota-uz/taskflow/modules/tasks/infrastructure/persistence/models"
	"github.com/iota-uz/taskflow/pkg/composables"
	"github.com/iota-uz/taskflow/pkg/repo"
)

const (
	selectAreaQuery = `
		SELECT
			a.uid,
			a.tenant_id,
			a.name,
			a.owner_uid,
			a.created_at,
			a.updated_at
		FROM areas a`

	selectAreaMembersQuery = `
		SELECT
			m.area_uid,
			m.user_uid,
			m.role,
			m.added_by,
			m.created_at
		FROM area_members m`

	selectAreaSubscribersQuery = `
		SELECT
			s.area_uid,
			s.user_uid,
			s.added_by,
			s.source,
			s.created_at
		FROM area_subscribers s`

	updateAreaOwnerQuery = `
		UPDATE areas SET owner_uid = $1, updated_at = now()
		WHERE tenant_id = $2 AND uid = $3`

	insertAreaMemberQuery = `
		INSERT INTO area_members (area_uid, user_uid, role, added_by)
		VALUES ($1, $2, $3, $4)`

	deleteAreaMemberQuery = `
		DELETE FROM area_members WHERE area_uid = $1 AND user_uid = $2`

	updateAreaMemberRoleQuery = `
		UPDATE area_members SET role = $1 WHERE area_uid = $2 AND user_uid = $3`

	insertAreaSubscriberQuery = `
		INSERT INTO area_subscribers (area_uid, user_uid, added_by, source)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (area_uid, user_uid, source) DO NOTHING`

	deleteAreaSubscriberBySourceQuery = `
		DELETE FROM area_subscribers
		WHERE area_uid = $1 AND user_uid = $2 AND source = $3`
)

type PgAreaRepository struct{}

func NewAreaRepository() area.Repository {
	return &PgAreaRepository{}
}

func (g *PgAreaRepository) queryMembers(ctx context.Context, query string, args ...any) ([]*area.Member, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query area members")
	}
	defer rows.Close()

	members := make([]*area.Member, 0)
	for rows.Next() {
		var m models.AreaMember
		if err := rows.Scan(&m.AreaUID, &m.UserUID, &m.Role, &m.AddedBy, &m.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan area member row")
		}
		entity, err := toDomainMember(&m)
		if err != nil {
			return nil, err
		}
		members = append(members, entity)
	}
	return members, rows.Err()
}

func (g *PgAreaRepository) GetByUID(ctx context.Context, uid uuid.UUID) (*area.Area, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	var a models.Area
	if err := tx.QueryRow(
		ctx,
		repo.Join(selectAreaQuery, "WHERE a.tenant_id = $1 AND a.uid = $2"),
		tenantID, uid.String(),
	).Scan(&a.UID, &a.TenantID, &a.Name, &a.OwnerUID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if isNoRows(err) {
			return nil, area.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to query area")
	}
	return toDomainArea(&a)
}

func (g *PgAreaRepository) UpdateOwner(ctx context.Context, areaUID, ownerUID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, updateAreaOwnerQuery, ownerUID.String(), tenantID, areaUID.String())
	if err != nil {
		return errors.Wrap(err, "failed to update area owner")
	}
	if tag.RowsAffected() == 0 {
		return area.ErrNotFound
	}
	return nil
}

func (g *PgAreaRepository) FindMembership(ctx context.Context, areaUID, userUID uuid.UUID) (*area.Member, error) {
	members, err := g.queryMembers(
		ctx,
		repo.Join(selectAreaMembersQuery, "WHERE m.area_uid = $1 AND m.user_uid = $2"),
		areaUID.String(), userUID.String(),
	)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	return members[0], nil
}

func (g *PgAreaRepository) FindMembershipByUser(ctx context.Context, userUID uuid.UUID) (*area.Member, error) {
	members, err := g.queryMembers(
		ctx,
		repo.Join(selectAreaMembersQuery, "WHERE m.user_uid = $1"),
		userUID.String(),
	)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	return members[0], nil
}

func (g *PgAreaRepository) ListMembers(ctx context.Context, areaUID uuid.UUID) ([]*area.Member, error) {
	return g.queryMembers(
		ctx,
		repo.Join(selectAreaMembersQuery, "WHERE m.area_uid = $1", "ORDER BY m.created_at"),
		areaUID.String(),
	)
}

func (g *PgAreaRepository) ListAdministeredAreaUIDs(ctx context.Context, userUID uuid.UUID) ([]uuid.UUID, error) {
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
		`SELECT a.uid FROM areas a
		WHERE a.tenant_id = $1 AND a.owner_uid = $2
		UNION
		SELECT m.area_uid FROM area_members m
		JOIN areas a ON a.uid = m.area_uid
		WHERE a.tenant_id = $1 AND m.user_uid = $2 AND m.role = 'admin'`,
		tenantID, userUID.String(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query administered areas")
	}
	defer rows.Close()
	return scanUIDs(rows)
}

func (g *PgAreaRepository) AddMember(ctx context.Context, member *area.Member) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(
		ctx,
		insertAreaMemberQuery,
		member.AreaUID.String(), member.UserUID.String(), string(member.Role), member.AddedBy.String(),
	); err != nil {
		return errors.Wrap(err, "failed to insert area member")
	}
	return nil
}

func (g *PgAreaRepository) RemoveMember(ctx context.Context, areaUID, userUID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, deleteAreaMemberQuery, areaUID.String(), userUID.String())
	if err != nil {
		return errors.Wrap(err, "failed to delete area member")
	}
	if tag.RowsAffected() == 0 {
		return area.ErrMembershipNotFound
	}
	return nil
}

func (g *PgAreaRepository) UpdateMemberRole(ctx context.Context, areaUID, userUID uuid.UUID, role area.Role) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, updateAreaMemberRoleQuery, string(role), areaUID.String(), userUID.String())
	if err != nil {
		return errors.Wrap(err, "failed to update area member role")
	}
	if tag.RowsAffected() == 0 {
		return area.ErrMembershipNotFound
	}
	return nil
}

func (g *PgAreaRepository) FindSubscriber(ctx context.Context, areaUID, userUID uuid.UUID) (*area.Subscriber, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(
		ctx,
		repo.Join(selectAreaSubscribersQuery, "WHERE s.area_uid = $1 AND s.user_uid = $2", "ORDER BY s.created_at"),
		areaUID.String(), userUID.String(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query area subscribers")
	}
	defer rows.Close()

	subs := make([]*area.Subscriber, 0)
	for rows.Next() {
		var s models.AreaSubscriber
		if err := rows.Scan(&s.AreaUID, &s.UserUID, &s.AddedBy, &s.Source, &s.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan area subscriber row")
		}
		entity, err := toDomainSubscriber(&s)
		if err != nil {
			return nil, err
		}
		subs = append(subs, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, nil
	}
	return subs[0], nil
}

func (g *PgAreaRepository) AddSubscriber(ctx context.Context, sub *area.Subscriber) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(
		ctx,
		insertAreaSubscriberQuery,
		sub.AreaUID.String(), sub.UserUID.String(), sub.AddedBy.String(), string(sub.Source),
	); err != nil {
		return errors.Wrap(err, "failed to insert area subscriber")
	}
	return nil
}

func (g *PgAreaRepository) RemoveSubscriberBySource(ctx context.Context, areaUID, userUID uuid.UUID, source area.SubscriberSource) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(
		ctx,
		deleteAreaSubscriberBySourceQuery,
		areaUID.String(), userUID.String(), string(source),
	); err != nil {
		return errors.Wrap(err, "failed to delete area subscriber")
	}
	return nil
}
