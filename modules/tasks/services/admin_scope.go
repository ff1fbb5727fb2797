package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/taskflow/modules/tasks/domain/entities/area"
)

// adminScope is the per-operation cache of "which areas does this user
// administer, and who are their members". It is created at the top of a
// resolve or filter-build call and passed explicitly down the call chain, so
// repeated department lookups within one operation hit memory instead of the
// store. Never shared across operations: access is per-user and per-request.
type adminScope struct {
	areas   area.Repository
	userUID uuid.UUID

	loadedAreas bool
	areaUIDs    []uuid.UUID
	areaSet     map[uuid.UUID]struct{}

	loadedMembers bool
	memberUIDs    []uuid.UUID
	memberSet     map[uuid.UUID]struct{}
}

func newAdminScope(areas area.Repository, userUID uuid.UUID) *adminScope {
	return &adminScope{areas: areas, userUID: userUID}
}

// AdministeredAreaUIDs returns the areas the user owns or holds the admin
// role on.
func (s *adminScope) AdministeredAreaUIDs(ctx context.Context) ([]uuid.UUID, error) {
	if s.loadedAreas {
		return s.areaUIDs, nil
	}
	uids, err := s.areas.ListAdministeredAreaUIDs(ctx, s.userUID)
	if err != nil {
		return nil, lookupFailed("list administered areas", err)
	}
	s.areaUIDs = uids
	s.areaSet = make(map[uuid.UUID]struct{}, len(uids))
	for _, uid := range uids {
		s.areaSet[uid] = struct{}{}
	}
	s.loadedAreas = true
	return s.areaUIDs, nil
}

func (s *adminScope) AdministersArea(ctx context.Context, areaUID uuid.UUID) (bool, error) {
	if _, err := s.AdministeredAreaUIDs(ctx); err != nil {
		return false, err
	}
	_, ok := s.areaSet[areaUID]
	return ok, nil
}

// MemberUIDs returns the roster of every area the user administers,
// excluding the user themselves.
func (s *adminScope) MemberUIDs(ctx context.Context) ([]uuid.UUID, error) {
	if s.loadedMembers {
		return s.memberUIDs, nil
	}
	areaUIDs, err := s.AdministeredAreaUIDs(ctx)
	if err != nil {
		return nil, err
	}
	s.memberSet = make(map[uuid.UUID]struct{})
	for _, areaUID := range areaUIDs {
		members, err := s.areas.ListMembers(ctx, areaUID)
		if err != nil {
			return nil, lookupFailed("list area members", err)
		}
		for _, m := range members {
			if m.UserUID == s.userUID {
				continue
			}
			if _, ok := s.memberSet[m.UserUID]; ok {
				continue
			}
			s.memberSet[m.UserUID] = struct{}{}
			s.memberUIDs = append(s.memberUIDs, m.UserUID)
		}
	}
	s.loadedMembers = true
	return s.memberUIDs, nil
}

func (s *adminScope) AdministersUser(ctx context.Context, userUID uuid.UUID) (bool, error) {
	if _, err := s.MemberUIDs(ctx); err != nil {
		return false, err
	}
	_, ok := s.memberSet[userUID]
	return ok, nil
}
