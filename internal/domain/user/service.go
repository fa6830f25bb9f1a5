package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/Hari1275/sdp-sub000/internal/domain/access"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Identity is what the authentication layer asserts about a caller.
type Identity struct {
	UserID    uuid.UUID
	Role      string
	Region    string
	ReportsTo *uuid.UUID
}

type Service interface {
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]User, int64, error)
	// ResolveCaller turns token claims into an access.Caller. The directory
	// record wins over the claims when one exists.
	ResolveCaller(ctx context.Context, identity Identity) (access.Caller, error)
}

type service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) Service {
	return &service{repo: repo, logger: logger}
}

func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *service) ListUsers(ctx context.Context, filter UserFilter) ([]User, int64, error) {
	return s.repo.FindAll(ctx, filter)
}

func (s *service) ResolveCaller(ctx context.Context, identity Identity) (access.Caller, error) {
	if identity.UserID == uuid.Nil {
		return access.Caller{}, ErrUserNotFound
	}

	u, err := s.repo.FindByID(ctx, identity.UserID)
	switch {
	case errors.Is(err, ErrUserNotFound):
		s.logger.Debug("Caller not in directory, using token claims",
			zap.String("user_id", identity.UserID.String()))
		return access.Caller{
			ID:        identity.UserID,
			Role:      access.ParseRole(identity.Role),
			Region:    identity.Region,
			ReportsTo: identity.ReportsTo,
		}, nil
	case err != nil:
		return access.Caller{}, fmt.Errorf("resolve caller: %w", err)
	}

	if !u.IsActive {
		return access.Caller{}, ErrUserInactive
	}

	return access.Caller{
		ID:        u.ID,
		Role:      access.ParseRole(u.Role),
		Region:    u.Region,
		ReportsTo: u.ManagerID,
	}, nil
}
