package audit

import (
	"context"
	"encoding/json"
	"sync"

	"driftregistry.org/internal/obs"
)

// MemorySink keeps records in memory in arrival order and serves filtered,
// paginated reads. It backs deployments without a durable audit store and
// every test.
type MemorySink struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemorySink builds an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write appends a batch.
func (s *MemorySink) Write(ctx context.Context, batch []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, batch...)
	return nil
}

// Len reports how many records the sink holds.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Query returns one page of matching records. A page is probed with one
// extra record to decide has-next without counting the full set.
func (s *MemorySink) Query(ctx context.Context, q Query) (Result, error) {
	q.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	offset := (q.Page - 1) * q.PageSize
	matched := 0
	page := make([]Record, 0, q.PageSize)
	hasNext := false
	for _, rec := range s.records {
		if !q.Matches(rec) {
			continue
		}
		if matched >= offset {
			if len(page) < q.PageSize {
				page = append(page, rec)
			} else {
				hasNext = true
				break
			}
		}
		matched++
	}
	return Result{Records: page, Paging: paging(q, hasNext)}, nil
}

// LogSink writes each record as a JSON line through the shared logger.
type LogSink struct{}

// Write emits one line per record.
func (LogSink) Write(ctx context.Context, batch []Record) error {
	for _, rec := range batch {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		obs.Logger().Println(string(data))
	}
	return nil
}

// MultiSink fans a batch out to several sinks. The first error wins but all
// sinks see the batch.
type MultiSink []Sink

// Write delivers the batch to every sink.
func (m MultiSink) Write(ctx context.Context, batch []Record) error {
	var first error
	for _, sink := range m {
		if err := sink.Write(ctx, batch); err != nil && first == nil {
			first = err
		}
	}
	return first
}
