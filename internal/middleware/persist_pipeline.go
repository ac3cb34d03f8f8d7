package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"OptionPulse/internal/domain/models"
	domrepo "OptionPulse/internal/domain/repository"
	"OptionPulse/pkg/logger"
)

// PersistPipeline is the write-behind stage between the poll cycle and the
// durable sinks. Enqueue never blocks the cycle; a background worker batches
// snapshots and flushes them to the market-data log and the message bus.
// Either sink may be nil when its backend is disabled.
type PersistPipeline struct {
	log     *logger.Logger
	snapLog domrepo.SnapshotLog
	pub     domrepo.Publisher
	metrics domrepo.Metrics

	batchSize    int
	flushEvery   time.Duration
	flushTimeout time.Duration

	bufCh   chan *models.PublishedSnapshot
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

type PipelineOption func(*PersistPipeline)

// WithBatchSize sets how many snapshots a flush carries at most.
func WithBatchSize(n int) PipelineOption {
	return func(p *PersistPipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithFlushInterval sets how long a partial batch may sit before flushing.
func WithFlushInterval(d time.Duration) PipelineOption {
	return func(p *PersistPipeline) {
		if d > 0 {
			p.flushEvery = d
		}
	}
}

// WithBufferSize sets the intake buffer size; once full, snapshots are
// dropped rather than blocking the poll cycle.
func WithBufferSize(n int) PipelineOption {
	return func(p *PersistPipeline) {
		if n > 0 {
			p.bufCh = make(chan *models.PublishedSnapshot, n)
		}
	}
}

func NewPersistPipeline(log *logger.Logger, snapLog domrepo.SnapshotLog, pub domrepo.Publisher, metrics domrepo.Metrics, opts ...PipelineOption) *PersistPipeline {
	p := &PersistPipeline{
		log:          log,
		snapLog:      snapLog,
		pub:          pub,
		metrics:      metrics,
		batchSize:    50,
		flushEvery:   10 * time.Second,
		flushTimeout: 5 * time.Second,
		bufCh:        make(chan *models.PublishedSnapshot, 1000),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the background flusher.
func (p *PersistPipeline) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.run()
}

// Stop drains the buffer, flushes the final batch and returns.
func (p *PersistPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	close(p.stopCh)
	<-p.doneCh
}

// Enqueue hands a snapshot to the write-behind worker. It validates, then
// either buffers or drops; it never blocks and never returns an error to the
// poll cycle.
func (p *PersistPipeline) Enqueue(snap *models.PublishedSnapshot) {
	if err := validateSnapshot(snap); err != nil {
		p.metrics.RecordPersistError("validate")
		p.log.Warn("snapshot rejected", logger.Error(err))
		return
	}

	select {
	case p.bufCh <- snap:
		p.metrics.RecordPersistQueueDepth(len(p.bufCh))
	default:
		p.metrics.RecordPersistError("buffer_full")
	}
}

func (p *PersistPipeline) run() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.flushEvery)
	defer ticker.Stop()

	batch := make([]*models.PublishedSnapshot, 0, p.batchSize)
	for {
		select {
		case <-p.stopCh:
			// Drain whatever the cycle managed to enqueue before shutdown.
			for {
				select {
				case snap := <-p.bufCh:
					batch = append(batch, snap)
				default:
					p.flush(batch)
					return
				}
			}
		case snap := <-p.bufCh:
			batch = append(batch, snap)
			p.metrics.RecordPersistQueueDepth(len(p.bufCh))
			if len(batch) >= p.batchSize {
				batch = p.flush(batch)
			}
		case <-ticker.C:
			batch = p.flush(batch)
		}
	}
}

// flush writes the batch to both sinks. A failed sink keeps the batch for the
// next flush, capped at four batch sizes; beyond that the oldest snapshots
// are dropped so a dead backend cannot grow memory without bound.
func (p *PersistPipeline) flush(batch []*models.PublishedSnapshot) []*models.PublishedSnapshot {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.flushTimeout)
	defer cancel()

	ok := true
	if p.snapLog != nil {
		if err := p.snapLog.StoreBatch(ctx, batch); err != nil {
			ok = false
			p.metrics.RecordPersistError("snapshot_log")
			p.log.Error("snapshot log flush failed", logger.Error(err), logger.Int("batch", len(batch)))
		}
	}
	if p.pub != nil {
		if err := p.pub.PublishBatch(ctx, batch); err != nil {
			ok = false
			p.metrics.RecordPersistError("publish")
			p.log.Error("snapshot publish failed", logger.Error(err), logger.Int("batch", len(batch)))
		}
	}
	if ok {
		return batch[:0]
	}

	if limit := 4 * p.batchSize; len(batch) > limit {
		p.metrics.RecordPersistError("retry_overflow")
		batch = append(batch[:0], batch[len(batch)-limit:]...)
	}
	return batch
}

func validateSnapshot(snap *models.PublishedSnapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot nil")
	}
	if snap.Username == "" {
		return fmt.Errorf("username empty")
	}
	if snap.PollTimestamp.IsZero() {
		return fmt.Errorf("poll timestamp missing")
	}
	if snap.Sequence == 0 {
		return fmt.Errorf("sequence missing")
	}
	return nil
}
