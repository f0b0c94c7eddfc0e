// Command dsqchild is the stand-in game executable. It is copied under the requested name,
// idles for the given number of minutes and exits. Zero minutes means it idles until stopped.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/dsqprocess/dsqprocess/internal/logging"
)

func main() {
	logger := logging.New(logging.ParseLevel(os.Getenv("DSQ_CHILD_LOG_LEVEL")), false, os.Stderr).
		Component(filepath.Base(os.Args[0]))

	minutes, err := parseMinutes(os.Args[1:])
	if err != nil {
		logger.Error("invalid arguments", logging.Fields{"err": err})
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if minutes > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(minutes)*time.Minute)
		defer cancel()
	}

	logger.Info("running", logging.Fields{"pid": os.Getpid(), "minutes": minutes})
	<-ctx.Done()
	logger.Info("exiting", logging.Fields{"reason": ctx.Err()})
}

func parseMinutes(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("duration %q is not a number of minutes", args[0])
	}
	if n < 0 {
		return 0, fmt.Errorf("duration must not be negative, got %d", n)
	}
	return n, nil
}
