package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/CalibBox/internal/broker/messages"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Emitter publishes domain events after the owning transaction committed. Publishing is
// best-effort: a broker failure is logged and never undoes the committed change.
type Emitter struct {
	p     Publisher
	topic string
	log   *zap.Logger
	now   func() time.Time
}

func NewEmitter(p Publisher, topic string, log *zap.Logger) *Emitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{p: p, topic: topic, log: log, now: time.Now}
}

func (e *Emitter) Emit(ctx context.Context, ev messages.CalibrationEvent) {
	if e == nil || e.p == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.now().UTC()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		e.log.Error("marshal event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	if err := e.p.Publish(ctx, e.topic, ev.Key(), b); err != nil {
		e.log.Warn("publish event", zap.String("type", ev.Type), zap.ByteString("key", ev.Key()), zap.Error(err))
	}
}
