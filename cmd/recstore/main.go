// Command recstore inspects and edits recstore databases.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/roach88/recstore/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
