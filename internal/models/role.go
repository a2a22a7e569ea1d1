package models

import "time"

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// UserRole maps a token subject to a role. A subject without a row is a USER.
type UserRole struct {
	UserID    string    `gorm:"primaryKey;column:user_id" json:"user_id"`
	Role      string    `gorm:"not null;default:'USER'" json:"role"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (UserRole) TableName() string {
	return "user_roles"
}
