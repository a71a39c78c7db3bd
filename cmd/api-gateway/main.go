// Package main is the entry point for the headerauth API server. It
// supports these subcommands:
//
//   - serve:                  runs the HTTP API behind header authentication
//   - migrate:                creates the credential tables and exits
//   - create-user:            registers an identity provider subject
//   - create-service-account: issues an API key and prints it once
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/upb/headerauth/app"
	"github.com/upb/headerauth/config"
	"github.com/upb/headerauth/internal/observability"
	"github.com/upb/headerauth/models"
	"github.com/upb/headerauth/repositories/postgres"
	"github.com/upb/headerauth/routes"
	"github.com/upb/headerauth/services"
	"go.uber.org/zap"
)

// version is injected at build time via -ldflags
// (e.g. -ldflags "-X main.version=v1.2.3").
var version = "devel"

func main() {
	// Cancel on SIGINT (Ctrl+C) or SIGTERM (container runtime).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		// Cobra is configured with SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFiles []string

	c := &cobra.Command{
		Use:           "headerauth",
		Short:         "HTTP API with optional header-based authentication",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "env files to load before reading the environment (default .env when present)")

	c.AddCommand(
		newServeCommand(&envFiles),
		newMigrateCommand(&envFiles),
		newCreateUserCommand(&envFiles),
		newCreateServiceAccountCommand(&envFiles),
	)
	return c
}

func newServeCommand(envFiles *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, logger, err := bootstrap(ctx, *envFiles)
			if err != nil {
				return err
			}

			deps, err := app.NewDependencies(ctx, cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := deps.Close(closeCtx); err != nil {
					logger.Error("failed to close dependencies", zap.Error(err))
				}
			}()

			srv := &http.Server{
				Addr:              cfg.Server.Address(),
				Handler:           routes.SetupRoutes(deps),
				ReadTimeout:       cfg.Server.ReadTimeout,
				ReadHeaderTimeout: 5 * time.Second,
				WriteTimeout:      cfg.Server.WriteTimeout,
			}

			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
			}

			logger.Info("server starting",
				zap.String("address", srv.Addr),
				zap.String("environment", cfg.Environment),
				zap.String("version", version))
			return serve(ctx, srv, ln, cfg.Server.ShutdownTimeout, logger)
		},
	}
}

func newMigrateCommand(envFiles *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the credential tables if they do not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, logger, err := bootstrap(ctx, *envFiles)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			db, err := postgres.NewDB(cfg.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			return db.InitSchema(ctx)
		},
	}
}

func newCreateUserCommand(envFiles *[]string) *cobra.Command {
	var email, subject, displayName, role string

	c := &cobra.Command{
		Use:   "create-user",
		Short: "Register an identity provider subject as a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withProvisioner(cmd.Context(), *envFiles, func(ctx context.Context, p *services.Provisioner) error {
				user, err := p.CreateUser(ctx, email, subject, displayName, models.UserRole(role))
				if err != nil {
					return describeError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created user %s (subject %s, role %s)\n", user.ID, user.Subject, user.Role)
				return nil
			})
		},
	}
	c.Flags().StringVar(&email, "email", "", "email address of the user")
	c.Flags().StringVar(&subject, "subject", "", "identity provider subject (sub claim)")
	c.Flags().StringVar(&displayName, "display-name", "", "display name")
	c.Flags().StringVar(&role, "role", string(models.RoleMember), "one of admin, member, viewer")
	_ = c.MarkFlagRequired("email")
	_ = c.MarkFlagRequired("subject")
	return c
}

func newCreateServiceAccountCommand(envFiles *[]string) *cobra.Command {
	var (
		name   string
		scopes []string
	)

	c := &cobra.Command{
		Use:   "create-service-account",
		Short: "Issue a new service account API key",
		Long:  "Issue a new service account API key. The key is printed once and cannot be recovered.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withProvisioner(cmd.Context(), *envFiles, func(ctx context.Context, p *services.Provisioner) error {
				account, key, err := p.CreateServiceAccount(ctx, name, scopes)
				if err != nil {
					return describeError(err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "created service account %s (%s)\n", account.ID, account.Name)
				fmt.Fprintf(out, "api key: %s\n", key)
				return nil
			})
		},
	}
	c.Flags().StringVar(&name, "name", "", "service account name")
	c.Flags().StringSliceVar(&scopes, "scope", nil, "granted scope (repeatable)")
	_ = c.MarkFlagRequired("name")
	return c
}

// withProvisioner opens the credential store for the duration of fn
func withProvisioner(ctx context.Context, envFiles []string, fn func(context.Context, *services.Provisioner) error) error {
	cfg, logger, err := bootstrap(ctx, envFiles)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return err
	}
	defer factory.Close()

	return fn(ctx, services.NewProvisioner(factory.NewRepositories(), logger))
}

// describeError turns a domain error into a message for the terminal
func describeError(err error) error {
	switch {
	case services.IsValidationError(err):
		return fmt.Errorf("%s: %v", services.GetErrorMessage(err), services.GetErrorDetails(err)["fields"])
	case services.IsConflictError(err):
		return errors.New(services.GetErrorMessage(err))
	}
	return err
}

// bootstrap loads configuration and builds the logger
func bootstrap(ctx context.Context, envFiles []string) (*config.Config, *zap.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if len(envFiles) > 0 {
		cfg, err = config.Load(ctx, envFiles...)
	} else {
		cfg, err = config.New(ctx)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// serve runs srv on ln until ctx is cancelled, then drains in-flight
// requests for at most shutdownTimeout.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, shutdownTimeout time.Duration, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
