package analytics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fghsg9075-lab/aios/internal/store"
	"github.com/fghsg9075-lab/aios/internal/store/model"
	"go.uber.org/zap"
)

// Ingestor persists dispatch attempts in the background so that the
// dispatcher never waits on the store.
type Ingestor interface {
	Log(attempt *model.Attempt)
	Start(ctx context.Context)
	Stop()
}

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = 10000
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 5 * time.Second
	}
	return o
}

type ingestor struct {
	logger    *zap.Logger
	repo      store.AttemptRepository
	logChan   chan *model.Attempt
	batchSize int
	flushTime time.Duration

	started  atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
	finished chan struct{}
}

func NewIngestor(logger *zap.Logger, repo store.AttemptRepository, opts Options) Ingestor {
	opts = opts.withDefaults()
	return &ingestor{
		logger:    logger,
		repo:      repo,
		logChan:   make(chan *model.Attempt, opts.BufferSize),
		batchSize: opts.BatchSize,
		flushTime: opts.FlushInterval,
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
}

// Log enqueues an attempt. It never blocks; a full buffer drops the entry.
func (i *ingestor) Log(attempt *model.Attempt) {
	select {
	case <-i.done:
		return
	default:
	}
	select {
	case i.logChan <- attempt:
	default:
		i.logger.Warn("Analytics buffer full, dropping attempt",
			zap.String("request_id", attempt.RequestID),
			zap.String("provider", attempt.ProviderID),
		)
	}
}

// Start runs the worker until Stop is called or ctx is done. Cancelling ctx
// abandons anything logged afterwards, so long-lived callers pass a context
// that outlives request handling and rely on Stop.
func (i *ingestor) Start(ctx context.Context) {
	if i.started.CompareAndSwap(false, true) {
		go i.worker(ctx)
	}
}

// Stop drains what is buffered and waits for the final flush.
func (i *ingestor) Stop() {
	i.stopOnce.Do(func() {
		close(i.done)
	})
	if i.started.Load() {
		<-i.finished
	}
}

func (i *ingestor) worker(ctx context.Context) {
	defer close(i.finished)

	batch := make([]*model.Attempt, 0, i.batchSize)
	ticker := time.NewTicker(i.flushTime)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// the request context may be gone by now
		writeCtx := context.WithoutCancel(ctx)
		for _, a := range batch {
			if err := i.repo.Log(writeCtx, a); err != nil {
				i.logger.Error("Failed to persist attempt", zap.String("request_id", a.RequestID), zap.Error(err))
			}
		}
		i.logger.Debug("Flushed attempts", zap.Int("count", len(batch)))
		batch = batch[:0]
	}

	drain := func() {
		for {
			select {
			case a := <-i.logChan:
				batch = append(batch, a)
			default:
				flush()
				return
			}
		}
	}

	for {
		select {
		case a := <-i.logChan:
			batch = append(batch, a)
			if len(batch) >= i.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-i.done:
			drain()
			return
		case <-ctx.Done():
			drain()
			return
		}
	}
}
