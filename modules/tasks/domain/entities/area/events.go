package area

import "github.com/google/uuid"

// Events published after membership transactions commit. The notification
// collaborator uses them for department-admin auto-subscription to member
// tasks; handler failures never roll back the cascade.

type MemberAddedEvent struct {
	Area     *Area
	Member   *Member
	ActorUID uuid.UUID
}

type MemberRemovedEvent struct {
	Area     *Area
	UserUID  uuid.UUID
	ActorUID uuid.UUID
}

type RoleChangedEvent struct {
	Area     *Area
	Member   *Member
	OldRole  Role
	ActorUID uuid.UUID
}

type OwnershipTransferredEvent struct {
	Area        *Area
	OldOwnerUID uuid.UUID
	NewOwnerUID uuid.UUID
}

func NewMemberAddedEvent(a *Area, m *Member, actor uuid.UUID) *MemberAddedEvent {
	return &MemberAddedEvent{Area: a, Member: m, ActorUID: actor}
}

func NewMemberRemovedEvent(a *Area, userUID, actor uuid.UUID) *MemberRemovedEvent {
	return &MemberRemovedEvent{Area: a, UserUID: userUID, ActorUID: actor}
}

func NewRoleChangedEvent(a *Area, m *Member, old Role, actor uuid.UUID) *RoleChangedEvent {
	return &RoleChangedEvent{Area: a, Member: m, OldRole: old, ActorUID: actor}
}

func NewOwnershipTransferredEvent(a *Area, oldOwner, newOwner uuid.UUID) *OwnershipTransferredEvent {
	return &OwnershipTransferredEvent{Area: a, OldOwnerUID: oldOwner, NewOwnerUID: newOwner}
}
