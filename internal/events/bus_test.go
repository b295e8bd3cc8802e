package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/msageha/conductor/internal/model"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	var received []Record

	unsub := bus.Subscribe(KindPhase, func(r Record) {
		mu.Lock()
		received = append(received, r)
		mu.Unlock()
	})
	defer unsub()

	bus.Publish(NewPhaseRecord("run_1", model.PhaseIntake, model.PhaseTriage, map[string]any{"matches": 2}))
	bus.Publish(Record{Kind: KindTrace, RunID: "run_1"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	if received[0].Phase != model.PhaseTriage {
		t.Errorf("expected phase %s, got %s", model.PhaseTriage, received[0].Phase)
	}
	if received[0].Details["matches"] != 2 {
		t.Errorf("expected matches detail 2, got %v", received[0].Details["matches"])
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	counts := make(map[int]int)
	for i := 0; i < 2; i++ {
		i := i
		unsub := bus.Subscribe(KindTrace, func(Record) {
			mu.Lock()
			counts[i]++
			mu.Unlock()
		})
		defer unsub()
	}

	if err := bus.Record(context.Background(), Record{Kind: KindTrace}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts[0] == 1 && counts[1] == 1
	})
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	n := 0
	unsub := bus.Subscribe(KindPhase, func(Record) {
		mu.Lock()
		n++
		mu.Unlock()
	})
	unsub()
	unsub()

	bus.Publish(Record{Kind: KindPhase})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if n != 0 {
		t.Errorf("expected no deliveries after unsubscribe, got %d", n)
	}
}

func TestBus_NonBlockingWhenFull(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	release := make(chan struct{})
	unsub := bus.Subscribe(KindPhase, func(Record) { <-release })
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			bus.Publish(Record{Kind: KindPhase})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	close(release)

	if bus.Dropped() == 0 {
		t.Error("expected dropped deliveries")
	}
}

func TestBus_SubscriberPanicRecovered(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	calls := 0
	unsub := bus.Subscribe(KindPhase, func(Record) {
		mu.Lock()
		calls++
		mu.Unlock()
		panic("boom")
	})
	defer unsub()

	bus.Publish(Record{Kind: KindPhase})
	bus.Publish(Record{Kind: KindPhase})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	})
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := NewBus(10)
	bus.Subscribe(KindPhase, func(Record) {})
	bus.Close()
	bus.Close()
	bus.Publish(Record{Kind: KindPhase})
}
