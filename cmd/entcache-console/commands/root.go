// Package commands implements the console CLI: cached reads and the two
// confirmed mutations.
package commands

import (
	"context"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/entcache/internal/app"
)

// Opener builds the application from a config file path. An empty path
// means defaults plus environment.
type Opener func(ctx context.Context, configPath string) (*app.App, error)

type CLI struct {
	open    Opener
	rootCmd *cobra.Command
	cfgPath string
}

func New(open Opener) *CLI {
	rootCmd := &cobra.Command{
		Use:           "entcache-console",
		Short:         "Billing console backed by a normalized entity cache",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	c := &CLI{open: open, rootCmd: rootCmd}
	rootCmd.PersistentFlags().StringVarP(&c.cfgPath, "config", "c", "", "Path to a YAML config file")

	rootCmd.AddCommand(c.newGetCustomerCmd())
	rootCmd.AddCommand(c.newTerminateCmd())
	rootCmd.AddCommand(c.newAddWalletCmd())
	return c
}

func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}

// withApp opens the application for one command and closes it afterwards.
func (c *CLI) withApp(cmd *cobra.Command, fn func(a *app.App) error) (err error) {
	a, err := c.open(cmd.Context(), c.cfgPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(cmd.Context())); err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

// printToasts writes the notifications the last command produced.
func printToasts(w io.Writer, a *app.App) {
	cat := a.Console.Catalog()
	for _, t := range a.Toasts.Toasts() {
		_, _ = io.WriteString(w, "["+string(t.Severity)+"] "+cat.Translate(t.Key, t.Params)+"\n")
	}
}
