package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/entcache/console"
	"github.com/unkn0wn-root/entcache/internal/app"
)

var ErrNotConfirmed = errors.New("not confirmed; pass --yes to proceed")

func (c *CLI) newTerminateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "terminate-subscription <id>",
		Short: "Terminate a subscription immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			yes, _ := cmd.Flags().GetBool("yes")

			return c.withApp(cmd, func(a *app.App) error {
				info := console.SubscriptionInfo{ID: args[0], Name: name}
				if info.Name == "" {
					info.Name = info.ID
				}
				texts := a.Console.TerminateTexts(info)
				w := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(w, "%s\n%s\n", texts.Title, texts.Body)
				if !yes {
					return ErrNotConfirmed
				}

				d, err := a.Console.TerminateSubscriptionDialog()
				if err != nil {
					return err
				}
				defer d.Destroy()
				if err := d.Open(info); err != nil {
					return err
				}
				_, err = d.Confirm(cmd.Context())
				printToasts(w, a)
				return err
			})
		},
	}
	cmd.Flags().String("name", "", "Subscription name shown in the confirmation")
	cmd.Flags().BoolP("yes", "y", false, "Confirm the termination")
	return cmd
}
