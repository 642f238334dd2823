// Command tracecli is a command-line client for a hosted error-tracking
// service: multi-target issue listing, org/project resolution, and
// credential management, backed by a local persistent store.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kouak/tracecli/internal/telemetry"
)

func main() {
	shutdown, err := telemetry.Setup(context.Background(), "tracecli")
	if err != nil {
		fmt.Fprintln(os.Stderr, "tracecli: telemetry setup:", err)
		os.Exit(4)
	}

	runErr := rootCmd.Execute()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = shutdown(shutdownCtx)
	cancel()

	if runErr != nil {
		os.Exit(exitCodeFor(runErr))
	}
}
