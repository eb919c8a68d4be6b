package websocket

import (
	"sync"
	"time"

	"github.com/canvaslab/canvas-sync/pkg/models"
	"github.com/canvaslab/canvas-sync/pkg/models/wire"
	"github.com/canvaslab/canvas-sync/pkg/observability"
)

// BatchScheduler accumulates accepted operations per document and flushes
// each non-empty queue as a single batch_operations broadcast on a fixed
// interval. Every accepted operation appears in exactly one batch, in
// application order, and the batch goes to all active members of the
// document, submitter included — clients filter their own echoes.
type BatchScheduler struct {
	mu     sync.Mutex
	queues map[string][]*models.Operation

	interval time.Duration
	queueCap int

	sessions *SessionManager
	logger   observability.Logger
	metrics  observability.MetricsClient

	stop     chan struct{}
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

// NewBatchScheduler creates a batch scheduler flushing on the given interval
func NewBatchScheduler(interval time.Duration, queueCap int, sessions *SessionManager, logger observability.Logger, metrics observability.MetricsClient) *BatchScheduler {
	if queueCap <= 0 {
		queueCap = DefaultConfig().BatchQueueCap
	}
	return &BatchScheduler{
		queues:   make(map[string][]*models.Operation),
		interval: interval,
		queueCap: queueCap,
		sessions: sessions,
		logger:   logger,
		metrics:  metrics,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Enqueue appends an accepted operation to its document's pending queue.
// Reaching the queue cap flushes that document early instead of growing the
// queue without bound.
func (b *BatchScheduler) Enqueue(docID string, op *models.Operation) {
	var overflow []*models.Operation

	b.mu.Lock()
	b.queues[docID] = append(b.queues[docID], op)
	if len(b.queues[docID]) >= b.queueCap {
		overflow = b.queues[docID]
		delete(b.queues, docID)
	}
	b.mu.Unlock()

	if overflow != nil {
		b.metrics.IncrementCounter("batch_early_flushes_total", 1)
		b.broadcast(docID, overflow)
	}
}

// Start runs the flush loop until Stop is called
func (b *BatchScheduler) Start() {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	go func() {
		defer close(b.done)
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				b.Flush()
			case <-b.stop:
				b.Flush()
				return
			}
		}
	}()
}

// Stop ends the flush loop after one final flush. Stopping a scheduler that
// was never started only flushes.
func (b *BatchScheduler) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		started := b.started
		b.mu.Unlock()

		if !started {
			b.Flush()
			return
		}
		close(b.stop)
		<-b.done
	})
}

// Flush drains every non-empty queue into one broadcast per document
func (b *BatchScheduler) Flush() {
	b.mu.Lock()
	pending := b.queues
	b.queues = make(map[string][]*models.Operation)
	b.mu.Unlock()

	for docID, ops := range pending {
		b.broadcast(docID, ops)
	}
}

// Pending returns the number of queued operations for a document
func (b *BatchScheduler) Pending(docID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[docID])
}

func (b *BatchScheduler) broadcast(docID string, ops []*models.Operation) {
	msg := wire.NewMessage(wire.MessageTypeBatchOperations)
	msg.DocumentID = docID
	msg.Operations = ops

	b.sessions.Broadcast(docID, msg, "")

	b.metrics.IncrementCounter("batches_sent_total", 1)
	b.metrics.RecordHistogram("batch_size", float64(len(ops)))
}
