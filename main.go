// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/scalpel-e2e/cmd"
)

// main is the entry point for the scalpel-e2e CLI. An interrupt cancels the
// run; in-flight sessions are closed before exit.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cmd.Main(ctx)
	stop()
	os.Exit(code)
}
