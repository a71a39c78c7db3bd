package models

import (
	"time"

	"github.com/google/uuid"
)

// UserRole represents the role of a user
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleMember UserRole = "member"
	RoleViewer UserRole = "viewer"
)

// User is the principal resolved from a bearer JWT
type User struct {
	ID          uuid.UUID `json:"id" db:"id" validate:"required"`
	Email       string    `json:"email" db:"email" validate:"required,email"`
	Subject     string    `json:"subject" db:"subject" validate:"required"` // Identity provider subject (sub claim)
	DisplayName string    `json:"display_name,omitempty" db:"display_name"`
	Role        UserRole  `json:"role" db:"role" validate:"required,oneof=admin member viewer"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new User instance
func NewUser(email, subject string, role UserRole) *User {
	now := time.Now()
	return &User{
		ID:        uuid.New(),
		Email:     email,
		Subject:   subject,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsAdmin returns true if the user has admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
