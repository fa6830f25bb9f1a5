package access

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Directory exposes the reports-to relation and region membership.
type Directory interface {
	DirectReports(ctx context.Context, managerID uuid.UUID) ([]Member, error)
	RegionMembers(ctx context.Context, region string) ([]Member, error)
}

// Resolver is the single place visibility is decided. Every scoped read in
// tracking, monitoring, summaries and the error log goes through ScopeFor.
type Resolver struct {
	directory Directory
}

func NewResolver(directory Directory) *Resolver {
	return &Resolver{directory: directory}
}

// ScopeFor loads only the relation the caller's role needs and resolves it.
func (r *Resolver) ScopeFor(ctx context.Context, caller Caller, purpose Purpose) (Scope, error) {
	if caller.Role != RoleTeamLead {
		return Resolve(caller, nil, purpose), nil
	}

	members, err := r.directory.DirectReports(ctx, caller.ID)
	if err != nil {
		return Scope{}, fmt.Errorf("load direct reports: %w", err)
	}

	if purpose == PurposeReassignment && caller.Region != "" {
		regional, err := r.directory.RegionMembers(ctx, caller.Region)
		if err != nil {
			return Scope{}, fmt.Errorf("load region members: %w", err)
		}
		members = append(members, regional...)
	}

	return Resolve(caller, members, purpose), nil
}

// Filter returns a gorm scope restricting column to the visible ids.
//
//	db.Scopes(scope.Filter("user_id")).Find(&rows)
func (s Scope) Filter(column string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if s.unrestricted {
			return db
		}
		ids := s.UserIDs()
		if len(ids) == 0 {
			return db.Where("1 = 0")
		}
		return db.Where(column+" IN ?", ids)
	}
}
