// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"bivo/cmd"
	"bivo/internal/log"
	"bivo/pkg/build"
)

// main is the entry point for the sensor.
//
// 1. Startup (cold path): build info, runtime settings, configuration. Any
// configuration error is fatal before the sample source is armed.
//
// 2. Run: the selected command runs until SIGINT/SIGTERM or a fault. For
// the sensor that is one worker goroutine plus the source's delivery
// context.
//
// 3. Shutdown: the signal cancels the context, the link is closed to
// release the worker and every component is stopped in reverse order.
func main() {
	if err := build.Initialize(); err != nil {
		log.Fatalf("%v", err)
	}

	// One thread for the delivery context (time critical), one for the
	// worker and I/O.
	runtime.GOMAXPROCS(2)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		stop()
		log.Fatalf("%v", err)
	}
}
