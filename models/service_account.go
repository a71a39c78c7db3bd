package models

import (
	"time"

	"github.com/google/uuid"
)

// ServiceAccount is the principal resolved from an API key header
type ServiceAccount struct {
	ID        uuid.UUID  `json:"id" db:"id" validate:"required"`
	Name      string     `json:"name" db:"name" validate:"required,min=1,max=255"`
	TokenHash string     `json:"-" db:"token_hash" validate:"required,len=64,hexadecimal"` // Never expose in JSON
	Scopes    []string   `json:"scopes" db:"scopes"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
}

// TableName returns the table name for the ServiceAccount model
func (ServiceAccount) TableName() string {
	return "service_accounts"
}

// NewServiceAccount creates a new ServiceAccount instance
func NewServiceAccount(name, tokenHash string, scopes []string) *ServiceAccount {
	return &ServiceAccount{
		ID:        uuid.New(),
		Name:      name,
		TokenHash: tokenHash,
		Scopes:    scopes,
		CreatedAt: time.Now(),
	}
}

// IsRevoked reports whether the account's key has been revoked
func (s *ServiceAccount) IsRevoked() bool {
	return s.RevokedAt != nil
}

// HasScope checks if the account was granted scope
func (s *ServiceAccount) HasScope(scope string) bool {
	for _, sc := range s.Scopes {
		if sc == scope {
			return true
		}
	}
	return false
}
