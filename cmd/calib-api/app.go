package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/CalibBox/internal/broker/messages"
	"github.com/BearBump/CalibBox/internal/calerr"
	"github.com/BearBump/CalibBox/internal/models"
	"go.uber.org/zap"
)

const (
	failPolicyNone         = "none"
	failPolicyOutOfService = "out_of_service"

	defaultRetryMin = time.Second
	defaultRetryMax = 30 * time.Second
)

type calibAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string
	failPolicy    string

	// zero means defaultRetryMin / defaultRetryMax
	retryMin time.Duration
	retryMax time.Duration

	onListen func(httpAddr string)
}

type eventConsumer interface {
	ConsumeEvents(ctx context.Context, handler func(ctx context.Context, ev messages.CalibrationEvent) error) error
}

type failPolicyApplier interface {
	ApplyFailPolicy(ctx context.Context, equipmentID int64, status models.EquipmentStatus) error
}

type routerFunc func(swaggerPath string) http.Handler

func runCalibAPI(ctx context.Context, opts calibAPIOpts, router routerFunc, consumer eventConsumer, registry failPolicyApplier, log *zap.Logger) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runHTTPServer(ctx, lis, router(opts.swaggerPath), log)
	}()

	if consumer != nil {
		go func() {
			log.Info("kafka consumer started",
				zap.String("topic", opts.topic), zap.String("group", opts.consumerGroup), zap.String("fail_policy", opts.failPolicy))
			consumeWithRetry(ctx, consumer, failPolicyHandler(opts.failPolicy, registry, log), opts.retryMin, opts.retryMax, log)
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}

// consumeWithRetry runs the consumer until ctx is done. A failing event is retried in
// place with a doubling delay, since skipping it would let a later commit move past it.
// A consumer that returns on its own is restarted after the same delay.
func consumeWithRetry(ctx context.Context, consumer eventConsumer, handler func(ctx context.Context, ev messages.CalibrationEvent) error, minDelay, maxDelay time.Duration, log *zap.Logger) {
	if minDelay <= 0 {
		minDelay = defaultRetryMin
	}
	if maxDelay < minDelay {
		maxDelay = max(defaultRetryMax, minDelay)
	}
	next := func(d time.Duration) time.Duration { return min(2*d, maxDelay) }

	retrying := func(ctx context.Context, ev messages.CalibrationEvent) error {
		delay := minDelay
		for attempt := 1; ; attempt++ {
			err := handler(ctx, ev)
			if err == nil {
				return nil
			}
			log.Warn("event handling failed, retrying",
				zap.String("type", ev.Type), zap.ByteString("key", ev.Key()),
				zap.Int("attempt", attempt), zap.Duration("backoff", delay), zap.Error(err))
			if !sleepCtx(ctx, delay) {
				return ctx.Err()
			}
			delay = next(delay)
		}
	}

	delay := minDelay
	for {
		started := time.Now()
		err := consumer.ConsumeEvents(ctx, retrying)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > maxDelay {
			delay = minDelay
		}
		log.Error("kafka consumer stopped, restarting", zap.Duration("backoff", delay), zap.Error(err))
		if !sleepCtx(ctx, delay) {
			return
		}
		delay = next(delay)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func runHTTPServer(ctx context.Context, lis net.Listener, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("HTTP server listening", zap.String("addr", lis.Addr().String()))
	err := srv.Serve(lis)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// failPolicyHandler takes failing equipment out of service when the policy says so.
// Domain errors are logged and the event is committed; infrastructure errors are
// returned so the event is retried before its offset is committed.
func failPolicyHandler(policy string, registry failPolicyApplier, log *zap.Logger) func(ctx context.Context, ev messages.CalibrationEvent) error {
	return func(ctx context.Context, ev messages.CalibrationEvent) error {
		if ev.Type != messages.ResultRecorded || ev.Pass == nil || *ev.Pass {
			return nil
		}
		if policy != failPolicyOutOfService || registry == nil {
			log.Debug("failing verdict left to manual handling", zap.Int64("equipment_id", ev.EquipmentID), zap.Int64("result_id", ev.ResultID))
			return nil
		}
		err := registry.ApplyFailPolicy(ctx, ev.EquipmentID, models.EquipmentOutOfService)
		if err != nil && calerr.Is(err, calerr.KindInfrastructure) {
			return err
		}
		if err != nil {
			log.Warn("fail policy not applied", zap.Int64("equipment_id", ev.EquipmentID), zap.Error(err))
		}
		return nil
	}
}
