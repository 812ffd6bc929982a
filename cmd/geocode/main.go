// Command geocode runs one-off searches with the same configuration and
// provider wiring as the geosearch service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(buildFromEnv).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
