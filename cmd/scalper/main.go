package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/yanun0323/logs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logs.Errorf("scalper: %+v", err)
		os.Exit(1)
	}
}
