package access

import (
	"sort"

	"github.com/google/uuid"
)

// Role is the three-tier visibility role carried by every caller.
type Role string

const (
	RoleIndividualContributor Role = "individual_contributor"
	RoleTeamLead              Role = "team_lead"
	RoleAdmin                 Role = "admin"
)

// ParseRole maps a claim value to a Role. Unknown values yield the
// individual contributor role.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin, RoleTeamLead, RoleIndividualContributor:
		return Role(s)
	}
	switch s {
	case "administrator":
		return RoleAdmin
	case "lead", "manager":
		return RoleTeamLead
	}
	return RoleIndividualContributor
}

// Purpose distinguishes the operation a scope is computed for.
type Purpose int

const (
	// PurposeListing covers listing and reporting reads.
	PurposeListing Purpose = iota
	// PurposeReassignment lets team leads see their whole region.
	PurposeReassignment
)

// Caller is the resolved identity of the requesting user.
type Caller struct {
	ID        uuid.UUID
	Role      Role
	Region    string
	ReportsTo *uuid.UUID
}

// IsAdmin reports whether the caller has unrestricted visibility.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Member is one edge of the reports-to relation plus region membership.
type Member struct {
	ID        uuid.UUID
	ReportsTo *uuid.UUID
	Region    string
}

// Scope is the set of user ids a caller may see.
type Scope struct {
	unrestricted bool
	ids          map[uuid.UUID]struct{}
}

// Unrestricted returns a scope that admits every user.
func Unrestricted() Scope {
	return Scope{unrestricted: true}
}

// Only returns a scope limited to the given ids.
func Only(ids ...uuid.UUID) Scope {
	s := Scope{ids: make(map[uuid.UUID]struct{}, len(ids))}
	for _, id := range ids {
		if id != uuid.Nil {
			s.ids[id] = struct{}{}
		}
	}
	return s
}

func (s Scope) IsUnrestricted() bool {
	return s.unrestricted
}

// Allows reports whether userID is visible.
func (s Scope) Allows(userID uuid.UUID) bool {
	if s.unrestricted {
		return true
	}
	_, ok := s.ids[userID]
	return ok
}

// UserIDs returns the visible ids in a stable order. It is nil for an
// unrestricted scope.
func (s Scope) UserIDs() []uuid.UUID {
	if s.unrestricted {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Resolve computes the visible user set for caller. members is the part of
// the directory relevant to the caller: direct reports for team leads, and
// region members when purpose is PurposeReassignment.
func Resolve(caller Caller, members []Member, purpose Purpose) Scope {
	if caller.ID == uuid.Nil {
		return Only()
	}

	switch caller.Role {
	case RoleAdmin:
		return Unrestricted()

	case RoleTeamLead:
		ids := []uuid.UUID{caller.ID}
		for _, m := range members {
			if m.ReportsTo != nil && *m.ReportsTo == caller.ID {
				ids = append(ids, m.ID)
				continue
			}
			if purpose == PurposeReassignment && caller.Region != "" && m.Region == caller.Region {
				ids = append(ids, m.ID)
			}
		}
		return Only(ids...)

	default:
		return Only(caller.ID)
	}
}
