// Package main is the entry point for the billing console CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/unkn0wn-root/entcache/cmd/entcache-console/commands"
	"github.com/unkn0wn-root/entcache/config"
	"github.com/unkn0wn-root/entcache/internal/app"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, open(os.Stderr)))
}

func open(logOut io.Writer) commands.Opener {
	return func(ctx context.Context, path string) (*app.App, error) {
		cfg := config.Default()
		if path != "" {
			var err error
			if cfg, err = config.Load(path); err != nil {
				return nil, err
			}
		} else {
			cfg.ApplyEnv()
		}
		return app.Build(ctx, cfg, app.Options{Out: logOut})
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, opener commands.Opener) int {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cli := commands.New(opener)
	cli.SetArgs(args)
	cli.SetOutput(stdout, stderr)

	if err := cli.Execute(ctx); err != nil {
		_, _ = fmt.Fprintln(stderr, "Error: "+err.Error())
		return 1
	}
	return 0
}
