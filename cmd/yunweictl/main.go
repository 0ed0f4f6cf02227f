package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fredphp/yunwei/internal/cli"
	"github.com/fredphp/yunwei/internal/config"
	"github.com/fredphp/yunwei/internal/container"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Logging.NewLogger(os.Stderr)

	app := cli.New(cli.Options{
		Timeout: cfg.Jobs.Timeout,
		Open: func(ctx context.Context) (cli.Backend, func() error, error) {
			ctr, err := container.New(ctx, cfg, logger)
			if err != nil {
				return nil, nil, err
			}
			return cli.NewLocal(ctr), func() error { return ctr.Stop(context.Background()) }, nil
		},
	})

	if err := app.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
