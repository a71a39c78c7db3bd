package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/headerauth/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert collides with a unique column
	ErrDuplicate = errors.New("duplicate record")
)

// UserRepository handles user data operations
type UserRepository interface {
	// Create creates a new user
	Create(ctx context.Context, user *models.User) error

	// GetBySubject retrieves a user by identity provider subject
	GetBySubject(ctx context.Context, subject string) (*models.User, error)
}

// ServiceAccountRepository handles service account data operations
type ServiceAccountRepository interface {
	// Create creates a new service account
	Create(ctx context.Context, account *models.ServiceAccount) error

	// GetByTokenHash retrieves a service account by the SHA-256 hex digest of its key
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.ServiceAccount, error)

	// Revoke marks a service account's key as revoked
	Revoke(ctx context.Context, id uuid.UUID) error
}

// Repositories groups all repository instances
type Repositories struct {
	Users           UserRepository
	ServiceAccounts ServiceAccountRepository
}
