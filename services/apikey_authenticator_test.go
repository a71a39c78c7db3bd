package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/headerauth/middleware"
	"github.com/upb/headerauth/models"
	"github.com/upb/headerauth/repositories"
	"go.uber.org/zap"
)

func TestHashAPIKey(t *testing.T) {
	// echo -n "secret" | sha256sum
	assert.Equal(t, "2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b", HashAPIKey("secret"))
	assert.Len(t, HashAPIKey(""), 64)
}

func TestAPIKeyAuthenticator_Authorization(t *testing.T) {
	t.Run("default header", func(t *testing.T) {
		auth := NewAPIKeyAuthenticator(new(MockServiceAccountRepository), "", zap.NewNop())
		h := http.Header{}
		h.Set("X-API-Key", " key-1 ")

		token, ok := auth.Authorization(h)
		require.True(t, ok)
		assert.Equal(t, "key-1", token.Token)
	})

	t.Run("custom header", func(t *testing.T) {
		auth := NewAPIKeyAuthenticator(new(MockServiceAccountRepository), "X-Service-Token", zap.NewNop())
		h := http.Header{}
		h.Set("X-API-Key", "key-1")

		_, ok := auth.Authorization(h)
		assert.False(t, ok)

		h.Set("X-Service-Token", "key-2")
		token, ok := auth.Authorization(h)
		require.True(t, ok)
		assert.Equal(t, "key-2", token.Token)
	})
}

func TestAPIKeyAuthenticator_Authenticate(t *testing.T) {
	account := models.NewServiceAccount("ci", HashAPIKey("key-1"), []string{"deploy"})
	revokedAt := time.Now()
	revoked := models.NewServiceAccount("old", HashAPIKey("key-1"), nil)
	revoked.RevokedAt = &revokedAt

	tests := []struct {
		name      string
		account   *models.ServiceAccount
		repoErr   error
		wantFound bool
		wantErr   bool
	}{
		{name: "active key", account: account, wantFound: true},
		{name: "revoked key is a miss", account: revoked},
		{name: "unknown key is a miss", repoErr: repositories.ErrNotFound},
		{name: "store failure", repoErr: errors.New("connection reset"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockServiceAccountRepository)
			if tt.account != nil {
				repo.On("GetByTokenHash", mock.Anything, HashAPIKey("key-1")).Return(tt.account, nil)
			} else {
				repo.On("GetByTokenHash", mock.Anything, HashAPIKey("key-1")).Return(nil, tt.repoErr)
			}

			auth := NewAPIKeyAuthenticator(repo, "", zap.NewNop())
			got, found, err := auth.Authenticate(context.Background(), middleware.NewAuthorizationValue("key-1"), httptest.NewRequest(http.MethodGet, "/", nil))

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsInternalError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.Equal(t, account, got)
			} else {
				assert.Nil(t, got)
			}
			repo.AssertExpectations(t)
		})
	}
}
