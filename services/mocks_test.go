package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/upb/headerauth/models"
	"github.com/upb/headerauth/tokens"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetBySubject(ctx context.Context, subject string) (*models.User, error) {
	args := m.Called(ctx, subject)
	if user := args.Get(0); user != nil {
		return user.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockServiceAccountRepository is a mock implementation of ServiceAccountRepository
type MockServiceAccountRepository struct {
	mock.Mock
}

func (m *MockServiceAccountRepository) Create(ctx context.Context, account *models.ServiceAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockServiceAccountRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.ServiceAccount, error) {
	args := m.Called(ctx, tokenHash)
	if account := args.Get(0); account != nil {
		return account.(*models.ServiceAccount), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockServiceAccountRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockVerifier is a mock implementation of tokens.Verifier
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, raw string) (*tokens.Claims, error) {
	args := m.Called(ctx, raw)
	if claims := args.Get(0); claims != nil {
		return claims.(*tokens.Claims), args.Error(1)
	}
	return nil, args.Error(1)
}
