package duescan

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/CalibBox/internal/broker/messages"
	"github.com/BearBump/CalibBox/internal/integrations/notifier"
	"github.com/BearBump/CalibBox/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Repository interface {
	ClaimDueEquipment(ctx context.Context, now time.Time, horizon time.Duration, limit int, lease time.Duration) ([]*models.Equipment, error)
	ScheduleDueNotice(ctx context.Context, upd models.DueNoticeUpdate) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Worker scans for equipment approaching its due date and reminds the owners.
type Worker struct {
	repo     Repository
	notifier notifier.Client
	producer Producer
	rl       RateLimiter
	log      *zap.Logger

	topic   string
	planner *Planner
	now     func() time.Time

	pollInterval        time.Duration
	horizon             time.Duration
	batchSize           int
	concurrency         int
	lease               time.Duration
	noticesPerOwnerMin  int64
	publishAttempts     int
	publishRetryBackoff time.Duration

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalNotified       atomic.Int64
	totalDeferred       atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, n notifier.Client, producer Producer, rl RateLimiter, topic string, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		repo: repo, notifier: n, producer: producer, rl: rl, topic: topic, log: log,
		planner:             NewPlanner(DefaultPlannerConfig()),
		now:                 func() time.Time { return time.Now().UTC() },
		pollInterval:        time.Minute,
		horizon:             30 * 24 * time.Hour,
		batchSize:           100,
		concurrency:         10,
		lease:               5 * time.Minute,
		noticesPerOwnerMin:  30,
		publishAttempts:     5,
		publishRetryBackoff: 150 * time.Millisecond,
		triggerCh:           make(chan struct{}, 1),
		startedAtUnixNano:   time.Now().UTC().UnixNano(),
	}
}

func (w *Worker) WithSettings(pollInterval, horizon time.Duration, batchSize, concurrency int, lease time.Duration, perOwnerPerMin int64) *Worker {
	if pollInterval > 0 {
		w.pollInterval = pollInterval
	}
	if horizon > 0 {
		w.horizon = horizon
	}
	if batchSize > 0 {
		w.batchSize = batchSize
	}
	if concurrency > 0 {
		w.concurrency = concurrency
	}
	if lease > 0 {
		w.lease = lease
	}
	if perOwnerPerMin > 0 {
		w.noticesPerOwnerMin = perOwnerPerMin
	}
	return w
}

func (w *Worker) WithPlanner(cfg PlannerConfig) *Worker {
	w.planner = NewPlanner(cfg)
	return w
}

func (w *Worker) WithClock(now func() time.Time) *Worker {
	if now != nil {
		w.now = now
	}
	return w
}

func (w *Worker) WithPublishRetry(attempts int, backoff time.Duration) *Worker {
	if attempts > 0 {
		w.publishAttempts = attempts
	}
	if backoff >= 0 {
		w.publishRetryBackoff = backoff
	}
	return w
}

// Trigger forces an immediate scan (best-effort, non-blocking).
func (w *Worker) Trigger() {
	w.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastCycleAt   *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed  int64      `json:"totalClaimed"`
	TotalNotified int64      `json:"totalNotified"`
	TotalDeferred int64      `json:"totalDeferred"`
	TotalErrors   int64      `json:"totalErrors"`
	InFlight      int64      `json:"inFlight"`
	LastError     string     `json:"lastError,omitempty"`
}

func (w *Worker) Stats() Stats {
	st := Stats{
		StartedAt:     time.Unix(0, w.startedAtUnixNano).UTC(),
		TotalClaimed:  w.totalClaimed.Load(),
		TotalNotified: w.totalNotified.Load(),
		TotalDeferred: w.totalDeferred.Load(),
		TotalErrors:   w.totalErrors.Load(),
		InFlight:      w.inFlight.Load(),
	}
	if n := w.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := w.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	w.lastErrorMu.Lock()
	st.LastError = w.lastError
	w.lastErrorMu.Unlock()
	return st
}

func (w *Worker) Run(ctx context.Context) error {
	t := time.NewTicker(w.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			w.RunOnce(ctx)
		case <-w.triggerCh:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce claims one batch and processes it with bounded concurrency.
func (w *Worker) RunOnce(ctx context.Context) {
	now := w.now()
	w.lastCycleUnixNano.Store(time.Now().UTC().UnixNano())

	items, err := w.repo.ClaimDueEquipment(ctx, now, w.horizon, w.batchSize, w.lease)
	if err != nil {
		w.log.Error("claim due equipment", zap.Error(err))
		w.setLastError(err)
		return
	}
	w.totalClaimed.Add(int64(len(items)))

	sem := make(chan struct{}, w.concurrency)
	var wg sync.WaitGroup
	for _, e := range items {
		sem <- struct{}{}
		wg.Add(1)
		w.inFlight.Add(1)
		go func(e *models.Equipment) {
			defer func() {
				w.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := w.processOne(ctx, e, now); err != nil {
				w.totalErrors.Add(1)
				w.setLastError(err)
				w.log.Error("process due equipment", zap.Int64("equipment_id", e.ID), zap.Error(err))
			}
		}(e)
	}
	wg.Wait()
}

func (w *Worker) processOne(ctx context.Context, e *models.Equipment, now time.Time) error {
	notice, ok := notifier.NoticeFor(e, now)
	if !ok {
		return w.schedule(ctx, e.ID, now.Add(w.planner.NextNoticeDelay(false)), 0)
	}

	if w.rl != nil && w.noticesPerOwnerMin > 0 {
		key := fmt.Sprintf("rl:owner:%d:%s", e.OwnerID, now.Format("200601021504"))
		allowed, n, err := w.rl.Allow(ctx, key, w.noticesPerOwnerMin, 70*time.Second)
		if err != nil {
			return err
		}
		if !allowed {
			w.log.Warn("owner notice rate limit exceeded", zap.Int64("owner_id", e.OwnerID), zap.Int64("count", n))
			w.totalDeferred.Add(1)
			return w.schedule(ctx, e.ID, now.Add(w.planner.DeferDelay()), e.NoticeFailCount)
		}
	}

	if err := w.notifier.SendDueNotice(ctx, notice); err != nil {
		fails := e.NoticeFailCount + 1
		if schedErr := w.schedule(ctx, e.ID, now.Add(w.planner.BackoffDelay(fails)), fails); schedErr != nil {
			return schedErr
		}
		return errors.Wrap(err, "send due notice")
	}
	w.totalNotified.Add(1)

	if err := w.schedule(ctx, e.ID, now.Add(w.planner.NextNoticeDelay(notice.Overdue)), 0); err != nil {
		return err
	}
	return w.publishDue(ctx, e, notice, now)
}

func (w *Worker) schedule(ctx context.Context, id int64, at time.Time, fails int32) error {
	err := w.repo.ScheduleDueNotice(ctx, models.DueNoticeUpdate{
		EquipmentID:  id,
		NextNoticeAt: at,
		FailCount:    fails,
	})
	return errors.Wrap(err, "schedule due notice")
}

func (w *Worker) publishDue(ctx context.Context, e *models.Equipment, n notifier.DueNotice, now time.Time) error {
	if w.producer == nil {
		return nil
	}
	due := n.NextDueDate
	ev := messages.CalibrationEvent{
		Type:        messages.EquipmentDue,
		OccurredAt:  now,
		EquipmentID: e.ID,
		Status:      string(e.Status),
		DueDate:     &due,
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal due event")
	}

	// the broker may not be up yet right after a compose start
	var pubErr error
	for i := 0; i < w.publishAttempts; i++ {
		if pubErr = w.producer.Publish(ctx, w.topic, ev.Key(), b); pubErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * w.publishRetryBackoff):
		}
	}
	return errors.Wrap(pubErr, "publish due event")
}

func (w *Worker) setLastError(err error) {
	w.lastErrorMu.Lock()
	w.lastError = err.Error()
	w.lastErrorMu.Unlock()
}
