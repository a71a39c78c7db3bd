package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/upb/headerauth/models"
	"github.com/upb/headerauth/repositories"
	"github.com/upb/headerauth/utils"
	"go.uber.org/zap"
)

// APIKeyPrefix marks keys issued by CreateServiceAccount
const APIKeyPrefix = "hak_"

// apiKeyBytes is the amount of randomness in an issued key
const apiKeyBytes = 32

// Provisioner registers users and issues service account keys
type Provisioner struct {
	users    repositories.UserRepository
	accounts repositories.ServiceAccountRepository
	logger   *zap.Logger
	random   io.Reader
}

// NewProvisioner creates a new Provisioner
func NewProvisioner(repos *repositories.Repositories, logger *zap.Logger) *Provisioner {
	return &Provisioner{
		users:    repos.Users,
		accounts: repos.ServiceAccounts,
		logger:   logger,
		random:   rand.Reader,
	}
}

// CreateUser registers the identity provider subject as a user
func (p *Provisioner) CreateUser(ctx context.Context, email, subject, displayName string, role models.UserRole) (*models.User, error) {
	user := models.NewUser(email, subject, role)
	user.DisplayName = displayName

	if err := p.users.Create(ctx, user); err != nil {
		return nil, p.storeError(err, ErrDuplicateSubject)
	}

	p.logger.Info("user created",
		zap.String("user_id", user.ID.String()),
		zap.String("subject", user.Subject),
		zap.String("role", string(user.Role)))
	return user, nil
}

// CreateServiceAccount issues a new API key. The raw key is returned once
// and only its digest is stored.
func (p *Provisioner) CreateServiceAccount(ctx context.Context, name string, scopes []string) (*models.ServiceAccount, string, error) {
	key, err := p.newAPIKey()
	if err != nil {
		return nil, "", WrapInternal("failed to generate API key", err)
	}

	if scopes == nil {
		scopes = []string{}
	}
	account := models.NewServiceAccount(name, HashAPIKey(key), scopes)
	if err := p.accounts.Create(ctx, account); err != nil {
		return nil, "", p.storeError(err, nil)
	}

	p.logger.Info("service account created",
		zap.String("service_account_id", account.ID.String()),
		zap.String("name", account.Name),
		zap.Strings("scopes", account.Scopes))
	return account, key, nil
}

// storeError maps repository errors to domain errors. duplicate is used for
// unique violations when non-nil.
func (p *Provisioner) storeError(err error, duplicate *DomainError) error {
	switch {
	case utils.IsValidationError(err):
		return NewDomainError(ErrorTypeValidation, ErrInvalidInput.Message, err).
			WithDetail("fields", utils.GetValidationFields(err))
	case duplicate != nil && errors.Is(err, repositories.ErrDuplicate):
		return NewDomainError(duplicate.Type, duplicate.Message, err)
	default:
		return WrapInternal(ErrDatabaseError.Message, err)
	}
}

func (p *Provisioner) newAPIKey() (string, error) {
	buf := make([]byte, apiKeyBytes)
	if _, err := io.ReadFull(p.random, buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return APIKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
