package main

import (
	"context"
	"time"

	"github.com/BearBump/CalibBox/config"
	"github.com/BearBump/CalibBox/internal/broker/kafka"
	"github.com/BearBump/CalibBox/internal/cache/rediscache"
	"github.com/BearBump/CalibBox/internal/integrations/notifier"
	"github.com/BearBump/CalibBox/internal/integrations/notifier/fake"
	"github.com/BearBump/CalibBox/internal/integrations/notifier/webhook"
	"github.com/BearBump/CalibBox/internal/services/duescan"
	"github.com/BearBump/CalibBox/internal/storage/memcalib"
	"github.com/BearBump/CalibBox/internal/storage/pgcalib"
	"go.uber.org/zap"
)

type workerFactories struct {
	newStorage     func(cfg *config.Config) (repo duescan.Repository, closeFn func(), err error)
	newProducer    func(cfg *config.Config) duescan.Producer
	newRateLimiter func(cfg *config.Config) duescan.RateLimiter
	newNotifier    func(cfg *config.Config, log *zap.Logger) notifier.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (duescan.Repository, func(), error) {
			if cfg.Database.Driver == "memory" {
				return memcalib.New(), nil, nil
			}
			st, err := pgcalib.New(cfg.Database.ConnString())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) duescan.Producer {
			if cfg.Kafka.Host == "" {
				return nil
			}
			return kafka.NewProducer(cfg.Kafka.Brokers())
		},
		newRateLimiter: func(cfg *config.Config) duescan.RateLimiter {
			if cfg.Redis.Host == "" {
				return nil
			}
			return rediscache.NewRateLimiter(cfg.Redis.Addr())
		},
		newNotifier: func(cfg *config.Config, log *zap.Logger) notifier.Client {
			// Without a gateway configured notices stay in memory.
			if cfg.CalibBox.NotifierBaseURL != "" {
				return webhook.New(cfg.CalibBox.NotifierBaseURL, cfg.CalibBox.NotifierAPIKey, log)
			}
			return fake.New()
		},
	}
}

func seconds(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

func plannerConfig(cfg *config.Config) duescan.PlannerConfig {
	c := cfg.CalibBox
	return duescan.PlannerConfig{
		OverdueDelay:  seconds(c.WorkerOverdueNoticeSeconds, 0),
		UpcomingDelay: seconds(c.WorkerUpcomingNoticeSeconds, 0),
		Backoff1:      seconds(c.WorkerBackoff1Seconds, 0),
		Backoff2:      seconds(c.WorkerBackoff2Seconds, 0),
		Backoff3:      seconds(c.WorkerBackoff3Seconds, 0),
		Backoff4:      seconds(c.WorkerBackoff4Seconds, 0),
	}
}

func newWorker(cfg *config.Config, f workerFactories, repo duescan.Repository, log *zap.Logger) *duescan.Worker {
	topic := cfg.Kafka.EventsTopicName
	if topic == "" {
		topic = "calibration.events"
	}
	c := cfg.CalibBox

	pollInterval := seconds(c.WorkerPollIntervalSeconds, time.Minute)
	horizonDays := c.WorkerHorizonDays
	if horizonDays <= 0 {
		horizonDays = 30
	}
	batchSize := c.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := c.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	lease := seconds(c.WorkerLeaseSeconds, 5*time.Minute)
	perOwner := int64(c.WorkerNoticesPerOwnerMinute)
	if perOwner <= 0 {
		perOwner = 30
	}

	return duescan.New(repo, f.newNotifier(cfg, log), f.newProducer(cfg), f.newRateLimiter(cfg), topic, log).
		WithSettings(pollInterval, time.Duration(horizonDays)*24*time.Hour, batchSize, concurrency, lease, perOwner).
		WithPlanner(plannerConfig(cfg))
}

// RunCalibWorker runs the due scan loop and its ops HTTP server until ctx is done.
func RunCalibWorker(ctx context.Context, cfg *config.Config, f workerFactories, swaggerPath string, log *zap.Logger) error {
	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	w := newWorker(cfg, f, repo, log)

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    cfg.CalibBox.WorkerHTTPAddr,
			swaggerPath: swaggerPath,
			worker:      w,
			store:       repo,
			cfg:         cfg,
		})
	}()

	runErr := w.Run(ctx)
	select {
	case err := <-httpErr:
		if err != nil {
			log.Warn("worker http server stopped", zap.Error(err))
		}
	case <-time.After(3 * time.Second):
	}
	return runErr
}
