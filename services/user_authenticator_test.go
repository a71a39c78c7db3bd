package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/headerauth/middleware"
	"github.com/upb/headerauth/models"
	"github.com/upb/headerauth/repositories"
	"github.com/upb/headerauth/tokens"
	"go.uber.org/zap"
)

func TestUserAuthenticator_Authorization(t *testing.T) {
	auth := NewUserAuthenticator(new(MockVerifier), new(MockUserRepository), zap.NewNop())

	h := http.Header{}
	h.Set("Authorization", "Bearer abc123")
	token, ok := auth.Authorization(h)
	require.True(t, ok)
	assert.Equal(t, "abc123", token.Token)

	_, ok = auth.Authorization(http.Header{})
	assert.False(t, ok)
}

func TestUserAuthenticator_Authenticate(t *testing.T) {
	user := models.NewUser("ada@example.com", "subject-1", models.RoleMember)
	token := middleware.NewAuthorizationValue("abc123")

	tests := []struct {
		name      string
		setup     func(*MockVerifier, *MockUserRepository)
		wantFound bool
		wantErr   func(error) bool
	}{
		{
			name: "token resolves to user",
			setup: func(v *MockVerifier, r *MockUserRepository) {
				v.On("Verify", mock.Anything, "abc123").Return(&tokens.Claims{Subject: "subject-1"}, nil)
				r.On("GetBySubject", mock.Anything, "subject-1").Return(user, nil)
			},
			wantFound: true,
		},
		{
			name: "rejected token is a miss",
			setup: func(v *MockVerifier, r *MockUserRepository) {
				v.On("Verify", mock.Anything, "abc123").Return(nil, tokens.ErrTokenExpired)
			},
		},
		{
			name: "unknown subject is a miss",
			setup: func(v *MockVerifier, r *MockUserRepository) {
				v.On("Verify", mock.Anything, "abc123").Return(&tokens.Claims{Subject: "ghost"}, nil)
				r.On("GetBySubject", mock.Anything, "ghost").Return(nil, fmt.Errorf("user ghost: %w", repositories.ErrNotFound))
			},
		},
		{
			name: "keys unavailable is an external error",
			setup: func(v *MockVerifier, r *MockUserRepository) {
				v.On("Verify", mock.Anything, "abc123").Return(nil, fmt.Errorf("%w: timeout", tokens.ErrKeysUnavailable))
			},
			wantErr: IsExternalError,
		},
		{
			name: "store failure is an internal error",
			setup: func(v *MockVerifier, r *MockUserRepository) {
				v.On("Verify", mock.Anything, "abc123").Return(&tokens.Claims{Subject: "subject-1"}, nil)
				r.On("GetBySubject", mock.Anything, "subject-1").Return(nil, errors.New("connection refused"))
			},
			wantErr: IsInternalError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := new(MockVerifier)
			users := new(MockUserRepository)
			tt.setup(verifier, users)

			auth := NewUserAuthenticator(verifier, users, zap.NewNop())
			got, found, err := auth.Authenticate(context.Background(), token, httptest.NewRequest(http.MethodGet, "/", nil))

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err))
				assert.False(t, found)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.Equal(t, user, got)
			} else {
				assert.Nil(t, got)
			}
			verifier.AssertExpectations(t)
			users.AssertExpectations(t)
		})
	}
}
