package main

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"go-auth-server/internal/app"
	"go-auth-server/internal/config"
	"go-auth-server/internal/logger"
	"go-auth-server/internal/model"
)

const defaultTimeout = 30 * time.Second

// adminService is the subset of the credential service the CLI drives.
type adminService interface {
	CreateClient(ctx context.Context, appName string, description string, profile string) (*model.ClientRegistration, error)
	CreateUser(ctx context.Context, req model.CreateUserRequest, staff bool) (*model.User, error)
	DeleteClient(ctx context.Context, id string) error
	SetPassword(ctx context.Context, email string, password string) error
	DeleteUser(ctx context.Context, email string) error
	CreatePolicy(ctx context.Context, p model.PasswordPolicy, activate bool) (*model.PasswordPolicy, error)
	ListPolicies(ctx context.Context) ([]model.PasswordPolicy, error)
	GetPolicy(ctx context.Context, id string) (*model.PasswordPolicy, error)
	SetActivePolicy(ctx context.Context, id string) error
}

// connectFunc opens the stores; the returned func releases them.
type connectFunc func(ctx context.Context, errOut io.Writer) (adminService, func(), error)

func connectCore(ctx context.Context, errOut io.Writer) (adminService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(errOut, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(log)

	core, err := app.Bootstrap(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return core.Credentials, core.Close, nil
}

func NewRootCmd(connect connectFunc) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:          "authctl",
		Short:        "Administer the authorization server",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", defaultTimeout, "timeout for store operations")

	run := func(cmd *cobra.Command, fn func(ctx context.Context, svc adminService) error) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		svc, closeFn, err := connect(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer closeFn()
		return fn(ctx, svc)
	}

	cmd.AddCommand(newClientCmd(run))
	cmd.AddCommand(newUserCmd(run))
	cmd.AddCommand(newPolicyCmd(run))
	return cmd
}

type runner func(cmd *cobra.Command, fn func(ctx context.Context, svc adminService) error) error
