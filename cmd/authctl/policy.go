package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"go-auth-server/internal/model"
)

func newPolicyCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage password policies",
	}

	p := model.DefaultPasswordPolicy()
	var activate bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Store a password policy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, svc adminService) error {
				created, err := svc.CreatePolicy(ctx, p, activate)
				if err != nil {
					return err
				}
				cmd.Printf("policy_id: %s active: %t\n", created.ID, created.IsActive)
				return nil
			})
		},
	}

	bindPolicyFlags(create.Flags(), &p)
	create.Flags().BoolVar(&activate, "activate", false, "make this the active policy")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored policies, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, svc adminService) error {
				policies, err := svc.ListPolicies(ctx)
				if err != nil {
					return err
				}
				for _, p := range policies {
					marker := " "
					if p.IsActive {
						marker = "*"
					}
					cmd.Printf("%s %s  created %s  length %d-%d\n",
						marker, p.ID, p.CreatedAt.Format(time.RFC3339), p.MinLength, p.MaxLength)
				}
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <policy-id>",
		Short: "Print a policy as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, svc adminService) error {
				p, err := svc.GetPolicy(ctx, args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(p)
			})
		},
	}

	activateCmd := &cobra.Command{
		Use:   "activate <policy-id>",
		Short: "Make a stored policy the enforced one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, svc adminService) error {
				if err := svc.SetActivePolicy(ctx, args[0]); err != nil {
					return err
				}
				cmd.Printf("policy %s is active\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(create, list, show, activateCmd)
	return cmd
}

func bindPolicyFlags(f *pflag.FlagSet, p *model.PasswordPolicy) {
	f.IntVar(&p.MinLength, "min-length", p.MinLength, "minimum length, 0 disables")
	f.IntVar(&p.MaxLength, "max-length", p.MaxLength, "maximum length, 0 disables")
	f.BoolVar(&p.RequireAlpha, "require-alpha", p.RequireAlpha, "require a letter")
	f.BoolVar(&p.RequireLower, "require-lower", p.RequireLower, "require a lowercase letter")
	f.BoolVar(&p.RequireUpper, "require-upper", p.RequireUpper, "require an uppercase letter")
	f.BoolVar(&p.RequireDigit, "require-digit", p.RequireDigit, "require a digit")
	f.BoolVar(&p.RequireSpecial, "require-special", p.RequireSpecial, "require a special character")
	f.BoolVar(&p.AllowWhitespace, "allow-whitespace", p.AllowWhitespace, "allow whitespace")
	f.BoolVar(&p.AllowUnicode, "allow-unicode", p.AllowUnicode, "allow non-ASCII characters")
	f.BoolVar(&p.AllowDictionaryWords, "allow-dictionary-words", p.AllowDictionaryWords, "allow common passwords")
	f.StringSliceVar(&p.Blacklist, "blacklist", nil, "extra forbidden words")
}
