package main

import (
	"context"

	"github.com/spf13/cobra"

	"go-auth-server/internal/model"
)

func newUserCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var req model.CreateUserRequest
	var staff bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user, optionally with staff rights",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, svc adminService) error {
				u, err := svc.CreateUser(ctx, req, staff)
				if err != nil {
					return err
				}
				cmd.Printf("user_id: %s\n", u.ID)
				return nil
			})
		},
	}
	create.Flags().StringVar(&req.Email, "email", "", "login email")
	create.Flags().StringVar(&req.Password, "password", "", "initial password")
	create.Flags().StringVar(&req.Profile.Name, "display-name", "", "full name claim")
	create.Flags().BoolVar(&staff, "staff", false, "grant staff rights")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	var email, password string
	setPassword := &cobra.Command{
		Use:   "set-password",
		Short: "Replace a user's password and clear any lockout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, svc adminService) error {
				if err := svc.SetPassword(ctx, email, password); err != nil {
					return err
				}
				cmd.Printf("password updated for %s\n", email)
				return nil
			})
		},
	}
	setPassword.Flags().StringVar(&email, "email", "", "login email")
	setPassword.Flags().StringVar(&password, "password", "", "new password")
	_ = setPassword.MarkFlagRequired("email")
	_ = setPassword.MarkFlagRequired("password")

	var deleteEmail string
	remove := &cobra.Command{
		Use:   "delete",
		Short: "Delete a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, svc adminService) error {
				if err := svc.DeleteUser(ctx, deleteEmail); err != nil {
					return err
				}
				cmd.Printf("deleted user %s\n", deleteEmail)
				return nil
			})
		},
	}
	remove.Flags().StringVar(&deleteEmail, "email", "", "login email")
	_ = remove.MarkFlagRequired("email")

	cmd.AddCommand(create, setPassword, remove)
	return cmd
}
