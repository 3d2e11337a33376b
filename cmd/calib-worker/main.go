package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/CalibBox/config"
	"github.com/BearBump/CalibBox/internal/logger"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		panic(err)
	}
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("config parse error, %v", err))
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format, "calib-worker")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := RunCalibWorker(ctx, cfg, defaultWorkerFactories(), os.Getenv("workerSwaggerPath"), log); err != nil && !errors.Is(err, context.Canceled) {
		panic(err)
	}
}
