package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a directory entry for a field agent, team lead or administrator.
// Accounts are administered elsewhere; this service only reads role,
// region and the reports-to edge.
type User struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	Email     string     `json:"email" gorm:"uniqueIndex:idx_user_email;not null"`
	Name      string     `json:"name" gorm:"not null"`
	Role      string     `json:"role" gorm:"not null;default:'individual_contributor';index:idx_user_role"`
	Region    string     `json:"region" gorm:"index:idx_user_region"`
	ManagerID *uuid.UUID `json:"manager_id,omitempty" gorm:"type:uuid;index:idx_user_manager"`
	IsActive  bool       `json:"is_active" gorm:"default:true;index:idx_user_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// BeforeCreate assigns an id when the caller did not.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}
