package persistence

import (
	"database/sql"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/access"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/action"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/area"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/permission"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/resource"
	"github.com/iota-uz/taskflow/modules/tasks/infrastructure/persistence/models"
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func scanUIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	uids := make([]uuid.UUID, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errors.Wrap(err, "failed to scan uid")
		}
		uid, err := parseUID(s, "uid")
		if err != nil {
			return nil, err
		}
		uids = append(uids, uid)
	}
	return uids, rows.Err()
}

func parseUID(s, field string) (uuid.UUID, error) {
	uid, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "failed to parse "+field)
	}
	return uid, nil
}

func parseUIDPtr(s *string, field string) (uuid.UUID, error) {
	if s == nil || *s == "" {
		return uuid.Nil, nil
	}
	return parseUID(*s, field)
}

func toDomainArea(dbArea *models.Area) (*area.Area, error) {
	uid, err := parseUID(dbArea.UID, "area uid")
	if err != nil {
		return nil, err
	}
	tenantID, err := parseUID(dbArea.TenantID, "tenant id")
	if err != nil {
		return nil, err
	}
	ownerUID, err := parseUID(dbArea.OwnerUID, "owner uid")
	if err != nil {
		return nil, err
	}
	return &area.Area{
		UID:       uid,
		TenantID:  tenantID,
		Name:      dbArea.Name,
		OwnerUID:  ownerUID,
		CreatedAt: dbArea.CreatedAt,
		UpdatedAt: dbArea.UpdatedAt,
	}, nil
}

func toDomainMember(dbMember *models.AreaMember) (*area.Member, error) {
	areaUID, err := parseUID(dbMember.AreaUID, "area uid")
	if err != nil {
		return nil, err
	}
	userUID, err := parseUID(dbMember.UserUID, "user uid")
	if err != nil {
		return nil, err
	}
	addedBy, err := parseUID(dbMember.AddedBy, "added_by uid")
	if err != nil {
		return nil, err
	}
	role, err := area.ParseRole(dbMember.Role)
	if err != nil {
		return nil, err
	}
	return &area.Member{
		AreaUID:   areaUID,
		UserUID:   userUID,
		Role:      role,
		AddedBy:   addedBy,
		CreatedAt: dbMember.CreatedAt,
	}, nil
}

func toDomainSubscriber(dbSub *models.AreaSubscriber) (*area.Subscriber, error) {
	areaUID, err := parseUID(dbSub.AreaUID, "area uid")
	if err != nil {
		return nil, err
	}
	userUID, err := parseUID(dbSub.UserUID, "user uid")
	if err != nil {
		return nil, err
	}
	addedBy, err := parseUID(dbSub.AddedBy, "added_by uid")
	if err != nil {
		return nil, err
	}
	return &area.Subscriber{
		AreaUID:   areaUID,
		UserUID:   userUID,
		AddedBy:   addedBy,
		Source:    area.SubscriberSource(dbSub.Source),
		CreatedAt: dbSub.CreatedAt,
	}, nil
}

func toDomainPermission(dbPerm *models.Permission) (*permission.Permission, error) {
	tenantID, err := parseUID(dbPerm.TenantID, "tenant id")
	if err != nil {
		return nil, err
	}
	userUID, err := parseUID(dbPerm.UserUID, "user uid")
	if err != nil {
		return nil, err
	}
	resourceUID, err := parseUID(dbPerm.ResourceUID, "resource uid")
	if err != nil {
		return nil, err
	}
	grantedBy, err := parseUID(dbPerm.GrantedByUID, "granted_by uid")
	if err != nil {
		return nil, err
	}
	actionID, err := parseUID(dbPerm.SourceActionID, "source action id")
	if err != nil {
		return nil, err
	}
	resourceType, err := resource.ParseType(dbPerm.ResourceType)
	if err != nil {
		return nil, err
	}
	lvl, err := access.ParseLevel(dbPerm.AccessLevel)
	if err != nil {
		return nil, err
	}
	prop, err := access.ParsePropagation(dbPerm.Propagation)
	if err != nil {
		return nil, err
	}
	return &permission.Permission{
		ID:             dbPerm.ID,
		TenantID:       tenantID,
		UserUID:        userUID,
		ResourceType:   resourceType,
		ResourceUID:    resourceUID,
		Level:          lvl,
		Propagation:    prop,
		GrantedByUID:   grantedBy,
		SourceActionID: actionID,
		CreatedAt:      dbPerm.CreatedAt,
		UpdatedAt:      dbPerm.UpdatedAt,
	}, nil
}

func toDomainAction(dbAct *models.Action) (*action.Action, error) {
	id, err := parseUID(dbAct.ID, "action id")
	if err != nil {
		return nil, err
	}
	tenantID, err := parseUID(dbAct.TenantID, "tenant id")
	if err != nil {
		return nil, err
	}
	actorUID, err := parseUID(dbAct.ActorUID, "actor uid")
	if err != nil {
		return nil, err
	}
	resourceUID, err := parseUID(dbAct.ResourceUID, "resource uid")
	if err != nil {
		return nil, err
	}
	targetUID, err := parseUID(dbAct.TargetUID, "target uid")
	if err != nil {
		return nil, err
	}
	verb, err := action.ParseVerb(dbAct.Verb)
	if err != nil {
		return nil, err
	}
	resourceType, err := resource.ParseType(dbAct.ResourceType)
	if err != nil {
		return nil, err
	}
	lvl := access.LevelNone
	if dbAct.AccessLevel.Valid && dbAct.AccessLevel.String != "" {
		lvl, err = access.ParseLevel(dbAct.AccessLevel.String)
		if err != nil {
			return nil, err
		}
	}
	return &action.Action{
		ID:           id,
		TenantID:     tenantID,
		ActorUID:     actorUID,
		Verb:         verb,
		ResourceType: resourceType,
		ResourceUID:  resourceUID,
		TargetUID:    targetUID,
		Level:        lvl,
		Metadata:     json.RawMessage(dbAct.Metadata),
		IP:           dbAct.IP.String,
		UserAgent:    dbAct.UserAgent.String,
		CreatedAt:    dbAct.CreatedAt,
	}, nil
}

func toDBAction(act *action.Action) *models.Action {
	dbAct := &models.Action{
		ID:           act.ID.String(),
		TenantID:     act.TenantID.String(),
		ActorUID:     act.ActorUID.String(),
		Verb:         string(act.Verb),
		ResourceType: string(act.ResourceType),
		ResourceUID:  act.ResourceUID.String(),
		TargetUID:    act.TargetUID.String(),
		Metadata:     []byte(act.Metadata),
		CreatedAt:    act.CreatedAt,
	}
	if act.Level != access.LevelNone {
		dbAct.AccessLevel = sql.NullString{String: act.Level.String(), Valid: true}
	}
	if act.IP != "" {
		dbAct.IP = sql.NullString{String: act.IP, Valid: true}
	}
	if act.UserAgent != "" {
		dbAct.UserAgent = sql.NullString{String: act.UserAgent, Valid: true}
	}
	return dbAct
}

