package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/headerauth/models"
	"github.com/upb/headerauth/repositories"
	"github.com/upb/headerauth/utils"
	"go.uber.org/zap"
)

// ServiceAccountRepository implements the repositories.ServiceAccountRepository interface
type ServiceAccountRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewServiceAccountRepository creates a new service account repository
func NewServiceAccountRepository(db *DB, logger *zap.Logger) repositories.ServiceAccountRepository {
	return &ServiceAccountRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new service account
func (r *ServiceAccountRepository) Create(ctx context.Context, account *models.ServiceAccount) error {
	if err := utils.ValidateStruct(account); err != nil {
		return err
	}

	query := `
		INSERT INTO service_accounts (id, name, token_hash, scopes, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.Name,
		account.TokenHash,
		pq.Array(account.Scopes),
		account.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("service account key: %w", repositories.ErrDuplicate)
		}
		return fmt.Errorf("failed to create service account: %w", err)
	}

	r.logger.Debug("service account created", zap.String("id", account.ID.String()), zap.String("name", account.Name))
	return nil
}

// GetByTokenHash retrieves a service account by key hash. Revoked accounts are returned
// with RevokedAt set; callers decide how to treat them.
func (r *ServiceAccountRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.ServiceAccount, error) {
	query := `
		SELECT id, name, token_hash, scopes, created_at, revoked_at
		FROM service_accounts
		WHERE token_hash = $1
	`

	account := &models.ServiceAccount{}
	var revokedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&account.ID,
		&account.Name,
		&account.TokenHash,
		pq.Array(&account.Scopes),
		&account.CreatedAt,
		&revokedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("service account: %w", repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get service account: %w", err)
	}

	if revokedAt.Valid {
		account.RevokedAt = &revokedAt.Time
	}
	return account, nil
}

// Revoke marks a service account's key as revoked
func (r *ServiceAccountRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE service_accounts
		SET revoked_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND revoked_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to revoke service account: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("service account %s: %w", id, repositories.ErrNotFound)
	}

	r.logger.Info("service account revoked", zap.String("id", id.String()))
	return nil
}
