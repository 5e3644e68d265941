// cmd/marketwatch/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/law-makers/marketwatch/internal/cli"
)

func main() {
	// Interrupts cancel in-flight scrapes; the app then closes the browser
	// and the diagnosis sink before exiting
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
