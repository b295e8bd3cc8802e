package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// Subscriber receives records delivered by the bus.
type Subscriber func(Record)

// Bus fans records out to subscribers without ever blocking the publisher.
// Each subscriber has its own buffered channel and goroutine; when the
// buffer is full the record is dropped for that subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Kind][]chan Record
	bufferSize  int
	dropped     atomic.Int64
	closed      bool
}

func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[Kind][]chan Record),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers fn for records of kind. Returns an unsubscribe func.
func (b *Bus) Subscribe(kind Kind, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Record, b.bufferSize)
	b.subscribers[kind] = append(b.subscribers[kind], ch)

	go func() {
		for rec := range ch {
			func() {
				// a panicking subscriber must not take the bus down
				defer func() { _ = recover() }()
				fn(rec)
			}()
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subscribers[kind]
			for i, subCh := range subs {
				if subCh == ch {
					b.subscribers[kind] = append(subs[:i], subs[i+1:]...)
					close(ch)
					break
				}
			}
		})
	}
}

// Publish delivers rec to every subscriber of rec.Kind.
func (b *Bus) Publish(rec Record) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers[rec.Kind] {
		select {
		case ch <- rec:
		default:
			b.dropped.Add(1)
		}
	}
}

// Record lets the bus sit in a store fan-out. It never fails.
func (b *Bus) Record(_ context.Context, rec Record) error {
	b.Publish(rec)
	return nil
}

// Dropped returns how many deliveries were dropped on full buffers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for kind, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, kind)
	}
}
