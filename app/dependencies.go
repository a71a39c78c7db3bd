package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/upb/headerauth/config"
	"github.com/upb/headerauth/handlers"
	"github.com/upb/headerauth/internal/observability"
	"github.com/upb/headerauth/middleware"
	"github.com/upb/headerauth/models"
	"github.com/upb/headerauth/repositories"
	"github.com/upb/headerauth/repositories/postgres"
	"github.com/upb/headerauth/services"
	"github.com/upb/headerauth/tokens"
	"go.uber.org/zap"
)

// cacheCleanupInterval is how often expired principal cache entries are swept
const cacheCleanupInterval = time.Minute

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory
	ownsDB      bool

	// Repositories
	Users           repositories.UserRepository
	ServiceAccounts repositories.ServiceAccountRepository

	// Metrics
	Registry *prometheus.Registry
	Metrics  *observability.AuthMetrics

	// Auth
	Verifier           tokens.Verifier
	UserAuth           middleware.HeaderAuthenticatable[*models.User]
	ServiceAccountAuth middleware.HeaderAuthenticatable[*models.ServiceAccount]
	serviceAccountKeys *services.CachingAuthenticator[*models.ServiceAccount]

	// Handlers
	Health    *handlers.HealthHandler
	Principal *handlers.PrincipalHandler

	stopCleanup chan struct{}
}

// NewDependencies opens the database and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := newDependencies(ctx, cfg, logger, factory)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	deps.ownsDB = true

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// NewDependenciesWithDB wires dependencies around an already opened pool.
// Close does not close db.
func NewDependenciesWithDB(ctx context.Context, cfg *config.Config, logger *zap.Logger, db *postgres.DB) (*Dependencies, error) {
	return newDependencies(ctx, cfg, logger, postgres.NewRepositoryFactoryWithDB(db, logger))
}

func newDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger, factory *postgres.RepositoryFactory) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		DB:          factory.GetDB(),
		RepoFactory: factory,
		stopCleanup: make(chan struct{}),
	}

	if err := deps.initDatabase(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	deps.initRepositories()
	deps.initMetrics()

	if err := deps.initAuth(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}
	deps.initHandlers()

	return deps, nil
}

// initDatabase optionally creates the credential tables
func (d *Dependencies) initDatabase(ctx context.Context) error {
	if !d.Config.Database.InitSchema {
		return nil
	}
	return d.DB.InitSchema(ctx)
}

func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()
	d.Users = repos.Users
	d.ServiceAccounts = repos.ServiceAccounts
	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initMetrics() {
	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.Metrics = observability.NewAuthMetrics(d.Registry)
}

// initAuth builds the token verifier and the two header authenticators
func (d *Dependencies) initAuth(ctx context.Context) error {
	verifier, err := d.newVerifier(ctx)
	if err != nil {
		return err
	}
	d.Verifier = verifier

	var userAuth middleware.HeaderAuthenticatable[*models.User] = services.NewUserAuthenticator(verifier, d.Users, d.Logger)
	var accountAuth middleware.HeaderAuthenticatable[*models.ServiceAccount] = services.NewAPIKeyAuthenticator(d.ServiceAccounts, d.Config.Auth.APIKeyHeader, d.Logger)

	authCfg := d.Config.Auth
	if authCfg.CacheSize > 0 {
		userCache := services.NewPrincipalCache[*models.User](authCfg.CacheSize, authCfg.CacheTTL, authCfg.NegativeCacheTTL)
		accountCache := services.NewPrincipalCache[*models.ServiceAccount](authCfg.CacheSize, authCfg.CacheTTL, authCfg.NegativeCacheTTL)
		go userCache.StartCleanupWorker(cacheCleanupInterval, d.stopCleanup)
		go accountCache.StartCleanupWorker(cacheCleanupInterval, d.stopCleanup)

		userAuth = services.NewCachingAuthenticator(userAuth, userCache, d.Metrics)
		d.serviceAccountKeys = services.NewCachingAuthenticator(accountAuth, accountCache, d.Metrics)
		accountAuth = d.serviceAccountKeys

		d.Logger.Info("principal cache enabled",
			zap.Int("size", authCfg.CacheSize),
			zap.Duration("ttl", authCfg.CacheTTL),
			zap.Duration("negative_ttl", authCfg.NegativeCacheTTL))
	}

	d.UserAuth = userAuth
	d.ServiceAccountAuth = accountAuth
	return nil
}

// newVerifier prefers OIDC discovery, then a static JWKS URL. With neither
// configured every bearer token is rejected and requests stay anonymous.
func (d *Dependencies) newVerifier(ctx context.Context) (tokens.Verifier, error) {
	authCfg := d.Config.Auth
	switch {
	case authCfg.OIDCIssuer != "":
		v, err := tokens.NewOIDCVerifier(ctx, authCfg.OIDCIssuer, authCfg.OIDCClientID)
		if err != nil {
			return nil, err
		}
		d.Logger.Info("using OIDC token verifier", zap.String("issuer", authCfg.OIDCIssuer))
		return v, nil
	case authCfg.JWKSURL != "":
		d.Logger.Info("using JWKS token verifier", zap.String("jwks_url", authCfg.JWKSURL))
		return tokens.NewJWKSValidator(tokens.JWKSConfig{
			JWKSURL:  authCfg.JWKSURL,
			Issuer:   authCfg.JWTIssuer,
			Audience: authCfg.JWTAudience,
			CacheTTL: authCfg.JWKSCacheTTL,
		}), nil
	default:
		d.Logger.Warn("no token issuer configured, bearer tokens will not authenticate")
		return rejectAllVerifier{}, nil
	}
}

func (d *Dependencies) initHandlers() {
	d.Health = handlers.NewHealthHandler(d.DB, d.Logger)

	var invalidator handlers.CredentialInvalidator
	if d.serviceAccountKeys != nil {
		invalidator = d.serviceAccountKeys
	}
	d.Principal = handlers.NewPrincipalHandler(
		d.ServiceAccounts,
		d.ServiceAccountAuth.Authorization,
		invalidator,
		d.Logger,
	)
}

// rejectAllVerifier rejects all tokens (used when no issuer is configured)
type rejectAllVerifier struct{}

func (rejectAllVerifier) Verify(context.Context, string) (*tokens.Claims, error) {
	return nil, tokens.ErrInvalidToken
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.stopCleanup != nil {
		close(d.stopCleanup)
		d.stopCleanup = nil
	}

	if d.ownsDB && d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
