package audit

import (
	"context"
	"sync"
	"time"

	"driftregistry.org/internal/ids"
	"driftregistry.org/internal/obs"
)

const (
	defaultQueueSize     = 1024
	defaultBatchSize     = 64
	defaultFlushInterval = time.Second
)

// Recorder accepts records through a bounded queue and persists them in
// batches from a background consumer. The producer side never blocks: when
// the queue is full the oldest unflushed record is dropped and counted, so
// authorization latency is never tied to audit persistence.
type Recorder struct {
	sink          Sink
	queue         chan Record
	batchSize     int
	flushInterval time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithQueueSize bounds the producer queue.
func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.queue = make(chan Record, n)
		}
	}
}

// WithBatchSize sets how many records a single sink write may carry.
func WithBatchSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithFlushInterval sets how long a partial batch may wait.
func WithFlushInterval(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.flushInterval = d
		}
	}
}

// NewRecorder starts the background consumer over the given sink.
func NewRecorder(sink Sink, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		sink:          sink,
		queue:         make(chan Record, defaultQueueSize),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record enqueues without blocking. On overflow the oldest queued record is
// dropped in its favor; if the queue is still full the new record is dropped
// instead. Either way the drop counter moves.
func (r *Recorder) Record(rec Record) {
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}
	select {
	case r.queue <- rec:
		obs.SetAuditQueueDepth(len(r.queue))
		return
	default:
	}
	select {
	case <-r.queue:
		obs.AuditDropped()
	default:
	}
	select {
	case r.queue <- rec:
	default:
		obs.AuditDropped()
	}
	obs.SetAuditQueueDepth(len(r.queue))
}

// Close drains the queue, flushes the final batch, and stops the consumer.
func (r *Recorder) Close() {
	close(r.done)
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, r.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.sink.Write(context.Background(), batch); err != nil {
			obs.LogRequest(map[string]any{
				"level": "error",
				"msg":   "audit flush failed",
				"count": len(batch),
				"error": err.Error(),
			})
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-r.queue:
			batch = append(batch, rec)
			obs.SetAuditQueueDepth(len(r.queue))
			if len(batch) >= r.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-r.done:
			for {
				select {
				case rec := <-r.queue:
					batch = append(batch, rec)
					if len(batch) >= r.batchSize {
						flush()
					}
					continue
				default:
				}
				break
			}
			flush()
			obs.SetAuditQueueDepth(0)
			return
		}
	}
}
