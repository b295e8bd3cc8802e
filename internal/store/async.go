package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/msageha/conductor/internal/events"
	"github.com/msageha/conductor/internal/logging"
)

const (
	DefaultAsyncBuffer = 256
	recordTimeout      = 5 * time.Second
)

// Async hands records to a background goroutine. Record never blocks and
// never fails: a full buffer drops the record, and inner errors are only
// logged.
type Async struct {
	inner  Recorder
	logger *logging.Logger

	mu     sync.RWMutex
	ch     chan events.Record
	closed bool
	done   chan struct{}

	dropped atomic.Int64
	failed  atomic.Int64
}

func NewAsync(inner Recorder, buffer int, logger *logging.Logger) *Async {
	if buffer <= 0 {
		buffer = DefaultAsyncBuffer
	}
	a := &Async{
		inner:  inner,
		logger: logger,
		ch:     make(chan events.Record, buffer),
		done:   make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for rec := range a.ch {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := a.inner.Record(ctx, rec); err != nil {
			a.failed.Add(1)
			a.logger.Warnf("run=%s kind=%s record failed: %v", rec.RunID, rec.Kind, err)
		}
		cancel()
	}
}

func (a *Async) Record(_ context.Context, rec events.Record) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return nil
	}
	select {
	case a.ch <- rec:
	default:
		a.dropped.Add(1)
		a.logger.Warnf("run=%s kind=%s record dropped: buffer full", rec.RunID, rec.Kind)
	}
	return nil
}

// Close stops accepting records and waits for queued ones to be written,
// or for ctx to end.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) Dropped() int64 { return a.dropped.Load() }
func (a *Async) Failed() int64  { return a.failed.Load() }
