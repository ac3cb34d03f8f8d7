package repository

import (
	"context"
	"time"

	"OptionPulse/internal/domain/models"
	domrepo "OptionPulse/internal/domain/repository"
	"OptionPulse/pkg/queue"
)

// SignalEventMsgType routes fired-signal messages on the redis queue.
const SignalEventMsgType = "signal_event"

// QueuedSignalLog decouples the poll cycle from the durable signal store:
// Append enqueues and returns, a queue worker does the actual insert with
// retry and dead-lettering. Reads go straight to the underlying log.
type QueuedSignalLog struct {
	queue queue.QueueService
	store domrepo.SignalLog
}

func NewQueuedSignalLog(q queue.QueueService, store domrepo.SignalLog) domrepo.SignalLog {
	return &QueuedSignalLog{queue: q, store: store}
}

func (l *QueuedSignalLog) Append(ctx context.Context, ev *models.SignalEvent) error {
	if err := l.queue.PublishMessage(ctx, SignalEventMsgType, ev); err != nil {
		// Queue down: write synchronously rather than lose the event.
		return l.store.Append(ctx, ev)
	}
	return nil
}

func (l *QueuedSignalLog) List(ctx context.Context, username string, from, to time.Time, limit int) ([]*models.SignalEvent, error) {
	return l.store.List(ctx, username, from, to, limit)
}

func (l *QueuedSignalLog) Health(ctx context.Context) error {
	return l.store.Health(ctx)
}

func (l *QueuedSignalLog) Close() error {
	return l.store.Close()
}

// SignalEventJob is the queue consumer that lands fired signals in the
// durable store.
type SignalEventJob struct {
	store domrepo.SignalLog
}

func NewSignalEventJob(store domrepo.SignalLog) queue.Job {
	return &SignalEventJob{store: store}
}

func (j *SignalEventJob) Name() string { return "signal-event-writer" }

func (j *SignalEventJob) Type() string { return SignalEventMsgType }

func (j *SignalEventJob) Handle(ctx context.Context, payload interface{}) error {
	ev, err := queue.ParsePayload[models.SignalEvent](payload)
	if err != nil {
		return err
	}
	return j.store.Append(ctx, ev)
}
