package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/CalibBox/config"
	"github.com/BearBump/CalibBox/internal/api/authn"
	calibapi "github.com/BearBump/CalibBox/internal/api/calib_api"
	"github.com/BearBump/CalibBox/internal/broker/kafka"
	"github.com/BearBump/CalibBox/internal/cache"
	"github.com/BearBump/CalibBox/internal/cache/rediscache"
	"github.com/BearBump/CalibBox/internal/logger"
	"github.com/BearBump/CalibBox/internal/services/accounts"
	"github.com/BearBump/CalibBox/internal/services/equipment"
	"github.com/BearBump/CalibBox/internal/services/events"
	"github.com/BearBump/CalibBox/internal/services/jobs"
	"github.com/BearBump/CalibBox/internal/services/measurements"
	"github.com/BearBump/CalibBox/internal/services/requests"
	"github.com/BearBump/CalibBox/internal/services/results"
	"github.com/BearBump/CalibBox/internal/storage/memcalib"
	"github.com/BearBump/CalibBox/internal/storage/pgcalib"
	"go.uber.org/zap"
)

// calibStore is what every service needs from storage; pgcalib and memcalib both satisfy it.
type calibStore interface {
	accounts.Repository
	equipment.Repository
	requests.Repository
	jobs.Repository
	results.Repository
	measurements.Repository
}

type calibAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     calibAPIOpts
	log      *zap.Logger
	api      *calibapi.API
	registry *equipment.Registry
	consumer *kafka.Consumer
	closers  []func()
}

func mustBootstrapCalibAPI() *calibAPIApp {
	if err := config.LoadEnv(); err != nil {
		panic(err)
	}
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("config parse error, %v", err))
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format, "calib-api")
	if err != nil {
		panic(err)
	}

	httpAddr := cfg.CalibBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.CalibBox.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "calib-api"
	}
	topic := cfg.Kafka.EventsTopicName
	if topic == "" {
		topic = "calibration.events"
	}
	failPolicy := cfg.CalibBox.FailPolicy
	if failPolicy == "" {
		failPolicy = failPolicyNone
	}
	cacheTTL := time.Duration(cfg.CalibBox.EquipmentCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	app := &calibAPIApp{log: log}

	st, closeDB := mustOpenStore(cfg, log)
	app.closers = append(app.closers, closeDB)

	var equipmentCache cache.BytesCache
	if cfg.Redis.Host != "" {
		rc := rediscache.New(cfg.Redis.Addr())
		equipmentCache = rc
		app.closers = append(app.closers, func() { _ = rc.Close() })
	}

	var emitter *events.Emitter
	if cfg.Kafka.Host != "" {
		producer := kafka.NewProducer(cfg.Kafka.Brokers())
		emitter = events.NewEmitter(producer, topic, log)
		app.closers = append(app.closers, func() { _ = producer.Close() })

		app.consumer = kafka.NewConsumer(cfg.Kafka.Brokers(), topic, consumerGroup).WithLogger(log)
	}

	registry := equipment.New(st, equipmentCache, cacheTTL, emitter, log)
	svc := calibapi.Services{
		Accounts:     accounts.New(st, log).WithEquipmentCache(registry),
		Equipment:    registry,
		Requests:     requests.New(st, emitter, log),
		Jobs:         jobs.New(st, emitter, log),
		Results:      results.New(st, registry, emitter, log),
		Measurements: measurements.New(st, log),
	}
	auth := authn.New(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)

	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app.api = calibapi.New(svc, auth, log)
	app.registry = registry
	app.opts = calibAPIOpts{
		httpAddr:      httpAddr,
		swaggerPath:   swaggerPath,
		topic:         topic,
		consumerGroup: consumerGroup,
		failPolicy:    failPolicy,
	}
	return app
}

func mustOpenStore(cfg *config.Config, log *zap.Logger) (calibStore, func()) {
	if cfg.Database.Driver == "memory" {
		log.Warn("using in-memory store, data is lost on restart")
		return memcalib.New(), func() {}
	}
	st := mustOpenPostgresWithRetry(cfg.Database.ConnString(), 60*time.Second)
	return st, st.Close
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgcalib.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgcalib.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *calibAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.log.Sync()
}

func (a *calibAPIApp) Run() error {
	var consumer eventConsumer
	if a.consumer != nil {
		consumer = a.consumer
	}
	return runCalibAPI(a.ctx, a.opts, a.api.Router, consumer, a.registry, a.log)
}
