package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/entcache/console"
	"github.com/unkn0wn-root/entcache/form"
	"github.com/unkn0wn-root/entcache/internal/app"
)

var walletFlags = []struct{ flag, field, usage string }{
	{"name", console.FieldName, "Wallet name"},
	{"rate", console.FieldRateAmount, "Value of one credit"},
	{"paid", console.FieldPaidCredits, "Paid credits"},
	{"granted", console.FieldGrantedCredits, "Offered credits"},
	{"expires", console.FieldExpirationDate, "Expiration date (YYYY-MM-DD)"},
}

func (c *CLI) newAddWalletCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-wallet <customer-id>",
		Short: "Create a prepaid credit wallet for a customer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			currency, _ := cmd.Flags().GetString("currency")

			return c.withApp(cmd, func(a *app.App) error {
				d, err := a.Console.AddWalletDialog()
				if err != nil {
					return err
				}
				defer d.Destroy()
				task := console.WalletTask{CustomerID: args[0], Currency: currency}
				if err := d.Open(task); err != nil {
					return err
				}
				for _, f := range walletFlags {
					if !cmd.Flags().Changed(f.flag) {
						continue
					}
					v, _ := cmd.Flags().GetString(f.flag)
					if err := d.Form().SetField(f.field, v); err != nil {
						return err
					}
				}

				w := cmd.OutOrStdout()
				texts, err := a.Console.WalletTexts(task, d.Form().Values())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(w, "%s\n%s\n", texts.Title, texts.Total)

				_, err = d.Confirm(cmd.Context())
				var verr *form.ValidationError
				if errors.As(err, &verr) {
					for name, ferr := range verr.Fields {
						_, _ = fmt.Fprintf(w, "  %s: %v\n", name, ferr)
					}
				}
				printToasts(w, a)
				return err
			})
		},
	}
	cmd.Flags().String("currency", "USD", "Wallet currency (ISO 4217)")
	for _, f := range walletFlags {
		cmd.Flags().String(f.flag, "", f.usage)
	}
	return cmd
}
