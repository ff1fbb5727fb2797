package services

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/access"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/action"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/area"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/identity"
	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/resource"
	"github.com/iota-uz/taskflow/pkg/composables"
	"github.com/iota-uz/taskflow/pkg/eventbus"
)

// AreaMembershipService enforces the department-membership invariants: one
// department per user, owner/admin-gated mutations, owner removal as a
// super-admin ownership transfer, and admin_role subscriber rows kept in
// lockstep with role transitions. Every mutation fires the Action Executor
// so the membership cascade lands in the same transaction.
type AreaMembershipService struct {
	identity  identity.Resolver
	areas     area.Repository
	executor  *ActionExecutor
	publisher eventbus.EventBus
}

func NewAreaMembershipService(
	id identity.Resolver,
	areas area.Repository,
	executor *ActionExecutor,
	publisher eventbus.EventBus,
) *AreaMembershipService {
	return &AreaMembershipService{
		identity:  id,
		areas:     areas,
		executor:  executor,
		publisher: publisher,
	}
}

type AddMemberCommand struct {
	AreaUID   uuid.UUID
	ActorUID  uuid.UUID
	TargetUID uuid.UUID
	Role      area.Role
}

func RoleLevel(role area.Role) access.Level {
	if role == area.RoleAdmin {
		return access.LevelAdmin
	}
	return access.LevelRW
}

func (s *AreaMembershipService) AddMember(ctx context.Context, cmd AddMemberCommand) error {
	if cmd.TargetUID == uuid.Nil {
		return ErrValidation.WithDetails("user_id is required")
	}
	if _, err := area.ParseRole(string(cmd.Role)); err != nil {
		return ErrValidation.WithDetails("invalid role %q", cmd.Role)
	}

	a, err := s.authorizeManage(ctx, cmd.AreaUID, cmd.ActorUID)
	if err != nil {
		return err
	}

	var member *area.Member
	err = composables.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.checkSingleMembership(txCtx, cmd.AreaUID, cmd.TargetUID); err != nil {
			return err
		}

		member = &area.Member{
			AreaUID:   cmd.AreaUID,
			UserUID:   cmd.TargetUID,
			Role:      cmd.Role,
			AddedBy:   cmd.ActorUID,
			CreatedAt: time.Now(),
		}
		if err := s.areas.AddMember(txCtx, member); err != nil {
			return err
		}

		if cmd.Role == area.RoleAdmin {
			if err := s.ensureAdminSubscriber(txCtx, cmd.AreaUID, cmd.TargetUID, cmd.ActorUID); err != nil {
				return err
			}
		}

		_, err := s.executor.Execute(txCtx, Command{
			Verb:         action.VerbAreaMemberAdd,
			ActorUID:     cmd.ActorUID,
			TargetUID:    cmd.TargetUID,
			ResourceType: resource.TypeArea,
			ResourceUID:  cmd.AreaUID,
			Level:        RoleLevel(cmd.Role),
		})
		return err
	})
	if err != nil {
		return err
	}

	s.publisher.Publish(area.NewMemberAddedEvent(a, member, cmd.ActorUID))
	return nil
}

func (s *AreaMembershipService) RemoveMember(ctx context.Context, areaUID, targetUID, actorUID uuid.UUID) error {
	if targetUID == uuid.Nil {
		return ErrValidation.WithDetails("user_id is required")
	}

	a, err := s.authorizeManage(ctx, areaUID, actorUID)
	if err != nil {
		return err
	}

	if targetUID == a.OwnerUID {
		return s.transferOwnership(ctx, a, actorUID)
	}

	membership, err := s.areas.FindMembership(ctx, areaUID, targetUID)
	if err != nil {
		return lookupFailed("find membership", err)
	}
	if membership == nil {
		return ErrNotFound.WithDetails("user is not a member of this area")
	}

	err = composables.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.areas.RemoveMember(txCtx, areaUID, targetUID); err != nil {
			return err
		}
		if err := s.areas.RemoveSubscriberBySource(txCtx, areaUID, targetUID, area.SubscriberSourceAdminRole); err != nil {
			return err
		}
		_, err := s.executor.Execute(txCtx, Command{
			Verb:         action.VerbAreaMemberRemove,
			ActorUID:     actorUID,
			TargetUID:    targetUID,
			ResourceType: resource.TypeArea,
			ResourceUID:  areaUID,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.publisher.Publish(area.NewMemberRemovedEvent(a, targetUID, actorUID))
	return nil
}

func (s *AreaMembershipService) UpdateRole(ctx context.Context, areaUID, targetUID, actorUID uuid.UUID, role area.Role) error {
	if _, err := area.ParseRole(string(role)); err != nil {
		return ErrValidation.WithDetails("invalid role %q", role)
	}

	a, err := s.authorizeManage(ctx, areaUID, actorUID)
	if err != nil {
		return err
	}

	membership, err := s.areas.FindMembership(ctx, areaUID, targetUID)
	if err != nil {
		return lookupFailed("find membership", err)
	}
	if membership == nil {
		return ErrNotFound.WithDetails("user is not a member of this area")
	}
	oldRole := membership.Role
	if oldRole == role {
		return nil
	}

	err = composables.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.areas.UpdateMemberRole(txCtx, areaUID, targetUID, role); err != nil {
			return err
		}
		if role == area.RoleAdmin {
			if err := s.ensureAdminSubscriber(txCtx, areaUID, targetUID, actorUID); err != nil {
				return err
			}
		} else {
			// Demotion removes only the system-managed row; a manual
			// subscription survives unchanged.
			if err := s.areas.RemoveSubscriberBySource(txCtx, areaUID, targetUID, area.SubscriberSourceAdminRole); err != nil {
				return err
			}
		}
		// Re-running the membership cascade overwrites the area-sourced
		// permission rows with the new level.
		_, err := s.executor.Execute(txCtx, Command{
			Verb:         action.VerbAreaMemberAdd,
			ActorUID:     actorUID,
			TargetUID:    targetUID,
			ResourceType: resource.TypeArea,
			ResourceUID:  areaUID,
			Level:        RoleLevel(role),
		})
		return err
	})
	if err != nil {
		return err
	}

	membership.Role = role
	s.publisher.Publish(area.NewRoleChangedEvent(a, membership, oldRole, actorUID))
	return nil
}

func (s *AreaMembershipService) GetMembers(ctx context.Context, areaUID, actorUID uuid.UUID) ([]*area.Member, error) {
	if _, err := s.authorizeManage(ctx, areaUID, actorUID); err != nil {
		return nil, err
	}
	members, err := s.areas.ListMembers(ctx, areaUID)
	if err != nil {
		return nil, lookupFailed("list members", err)
	}
	return members, nil
}

// transferOwnership handles removing the area owner: super-admin only. The
// area is reassigned to the actor, the old owner leaves the roster, and the
// cascade strips their area_membership-sourced permission rows.
func (s *AreaMembershipService) transferOwnership(ctx context.Context, a *area.Area, actorUID uuid.UUID) error {
	super, err := s.identity.IsSuperAdmin(ctx, actorUID)
	if err != nil {
		return lookupFailed("super-admin check", err)
	}
	if !super {
		return ErrForbidden.WithDetails("removing the area owner requires a super-admin")
	}

	oldOwner := a.OwnerUID
	err = composables.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.areas.UpdateOwner(txCtx, a.UID, actorUID); err != nil {
			return err
		}
		// Owners may hold a roster row on their own area; drop it if so.
		if err := s.areas.RemoveMember(txCtx, a.UID, oldOwner); err != nil && !errors.Is(err, area.ErrMembershipNotFound) {
			return err
		}
		if err := s.areas.RemoveSubscriberBySource(txCtx, a.UID, oldOwner, area.SubscriberSourceAdminRole); err != nil {
			return err
		}
		_, err := s.executor.Execute(txCtx, Command{
			Verb:         action.VerbAreaOwnershipTransfer,
			ActorUID:     actorUID,
			TargetUID:    oldOwner,
			ResourceType: resource.TypeArea,
			ResourceUID:  a.UID,
		})
		return err
	})
	if err != nil {
		return err
	}

	a.OwnerUID = actorUID
	s.publisher.Publish(area.NewOwnershipTransferredEvent(a, oldOwner, actorUID))
	return nil
}

// ensureAdminSubscriber puts an admin_role subscriber row in place for a user
// holding the admin role. An existing manual row is left untouched; the two
// sources coexist so a later demotion only strips the admin_role row.
func (s *AreaMembershipService) ensureAdminSubscriber(ctx context.Context, areaUID, userUID, addedBy uuid.UUID) error {
	sub, err := s.areas.FindSubscriber(ctx, areaUID, userUID)
	if err != nil {
		return lookupFailed("find subscriber", err)
	}
	if sub != nil && sub.Source == area.SubscriberSourceAdminRole {
		return nil
	}
	return s.areas.AddSubscriber(ctx, &area.Subscriber{
		AreaUID: areaUID,
		UserUID: userUID,
		AddedBy: addedBy,
		Source:  area.SubscriberSourceAdminRole,
	})
}

func (s *AreaMembershipService) authorizeManage(ctx context.Context, areaUID, actorUID uuid.UUID) (*area.Area, error) {
	a, err := s.areas.GetByUID(ctx, areaUID)
	if err != nil {
		return nil, ErrNotFound.WithDetails("area %s", areaUID)
	}

	super, err := s.identity.IsSuperAdmin(ctx, actorUID)
	if err != nil {
		return nil, lookupFailed("super-admin check", err)
	}
	if super {
		return a, nil
	}

	membership, err := s.areas.FindMembership(ctx, areaUID, actorUID)
	if err != nil {
		return nil, lookupFailed("find membership", err)
	}
	if a.IsAdministeredBy(actorUID, membership) {
		return a, nil
	}
	return nil, ErrMembersForbidden
}

// checkSingleMembership enforces the one-department invariant and names the
// conflicting department in the error.
func (s *AreaMembershipService) checkSingleMembership(ctx context.Context, areaUID, targetUID uuid.UUID) error {
	existing, err := s.areas.FindMembershipByUser(ctx, targetUID)
	if err != nil {
		return lookupFailed("find existing membership", err)
	}
	if existing == nil {
		return nil
	}
	if existing.AreaUID == areaUID {
		return ErrConflict.WithDetails("user is already a member of this area")
	}
	other, err := s.areas.GetByUID(ctx, existing.AreaUID)
	if err != nil {
		return lookupFailed("load conflicting area", err)
	}
	return ErrConflict.
		WithDetails("user already belongs to area %q", other.Name).
		WithTemplateData(map[string]string{"area": other.Name})
}
