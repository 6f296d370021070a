package main

import (
	"context"

	"github.com/spf13/cobra"

	"go-auth-server/internal/model"
)

func newClientCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Manage OAuth clients",
	}

	var name, description, profile string
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a client application",
		Long: `Registers a client. Web applications are confidential and receive a secret,
which is printed once and cannot be recovered later.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, svc adminService) error {
				reg, err := svc.CreateClient(ctx, name, description, profile)
				if err != nil {
					return err
				}
				cmd.Printf("client_id: %s\n", reg.Client.ID)
				cmd.Printf("type: %s\n", reg.Client.Type())
				if reg.ClientSecret != "" {
					cmd.Printf("client_secret: %s\n", reg.ClientSecret)
				}
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "application name")
	create.Flags().StringVar(&description, "description", "", "application description")
	create.Flags().StringVar(&profile, "profile", string(model.ProfileWebApplication),
		`client profile: "web application", "browser-based application" or "native application"`)
	_ = create.MarkFlagRequired("name")

	remove := &cobra.Command{
		Use:   "delete <client-id>",
		Short: "Delete a client registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, svc adminService) error {
				if err := svc.DeleteClient(ctx, args[0]); err != nil {
					return err
				}
				cmd.Printf("deleted client %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(create, remove)
	return cmd
}
