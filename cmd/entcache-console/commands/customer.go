package commands

import (
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/entcache/internal/app"
)

func (c *CLI) newGetCustomerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get-customer <id>",
		Short: "Show a customer, optionally with wallets and subscriptions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wallets, _ := cmd.Flags().GetBool("wallets")
			subs, _ := cmd.Flags().GetBool("subscriptions")

			return c.withApp(cmd, func(a *app.App) error {
				ctx := cmd.Context()
				out := map[string]any{}
				cust, err := a.Console.Customer(ctx, args[0])
				if err != nil {
					return err
				}
				out["customer"] = cust
				if wallets {
					if out["wallets"], err = a.Console.Wallets(ctx, args[0]); err != nil {
						return err
					}
				}
				if subs {
					if out["subscriptions"], err = a.Console.Subscriptions(ctx, args[0]); err != nil {
						return err
					}
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().BoolP("wallets", "w", false, "Include the customer's wallets")
	cmd.Flags().BoolP("subscriptions", "s", false, "Include the customer's subscriptions")
	return cmd
}
