package user

import (
	"context"
	"errors"

	"github.com/Hari1275/sdp-sub000/internal/domain/access"
	"github.com/Hari1275/sdp-sub000/internal/infrastructure/persistence/postgres/connection"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserInactive = errors.New("user is inactive")
)

// UserFilter defines the filtering options for users
type UserFilter struct {
	Role      *string
	Region    *string
	ManagerID *uuid.UUID
	IsActive  *bool
	Page      int
	PageSize  int
}

type Repository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindAll(ctx context.Context, filter UserFilter) ([]User, int64, error)

	// access.Directory
	DirectReports(ctx context.Context, managerID uuid.UUID) ([]access.Member, error)
	RegionMembers(ctx context.Context, region string) ([]access.Member, error)
}

type repository struct {
	db *connection.Database
}

func NewRepository(db *connection.Database) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, user *User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

func (r *repository) FindAll(ctx context.Context, filter UserFilter) ([]User, int64, error) {
	var users []User
	var total int64
	query := r.db.WithContext(ctx).Model(&User{})

	if filter.Role != nil {
		query = query.Where("role = ?", *filter.Role)
	}
	if filter.Region != nil {
		query = query.Where("region = ?", *filter.Region)
	}
	if filter.ManagerID != nil {
		query = query.Where("manager_id = ?", *filter.ManagerID)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		query = query.Offset(filter.Page * filter.PageSize).Limit(filter.PageSize)
	}
	if err := query.Order("name ASC").Find(&users).Error; err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

func (r *repository) DirectReports(ctx context.Context, managerID uuid.UUID) ([]access.Member, error) {
	var users []User
	err := r.db.WithContext(ctx).
		Where("manager_id = ? AND is_active = ?", managerID, true).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return toMembers(users), nil
}

func (r *repository) RegionMembers(ctx context.Context, region string) ([]access.Member, error) {
	var users []User
	err := r.db.WithContext(ctx).
		Where("region = ? AND is_active = ?", region, true).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return toMembers(users), nil
}

func toMembers(users []User) []access.Member {
	members := make([]access.Member, 0, len(users))
	for _, u := range users {
		members = append(members, access.Member{ID: u.ID, ReportsTo: u.ManagerID, Region: u.Region})
	}
	return members
}
