// Command milkflowd serves a rate-limited milk dispenser over HTTP.
//
// Every POST /9/milk withdraws one unit from a fixed-capacity bucket and is
// refused with 429 while the bucket is empty. A background task refills the
// bucket at a configured rate; POST /9/refill fills it to capacity at once.
//
// Configuration comes from an optional TOML or YAML file, overridden by
// MILKFLOW_* environment variables, overridden by flags.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

var version = "dev"

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "milkflowd: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:           "milkflowd",
		Usage:          "rate-limited milk dispenser",
		Version:        version,
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			serveCommand(runServe),
			convertCommand(),
		},
	}
}
