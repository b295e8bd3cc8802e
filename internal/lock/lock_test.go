package lock

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestPathLocks_SameKeySerialises(t *testing.T) {
	p := NewPathLocks()
	var counter, peak, running int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := p.Lock("inbox/a.yaml")
			defer unlock()

			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			counter++
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	if peak != 1 {
		t.Errorf("peak concurrency = %d, want 1", peak)
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d after all unlocks, want 0", p.Len())
	}
}

func TestPathLocks_DifferentKeysIndependent(t *testing.T) {
	p := NewPathLocks()
	unlockA := p.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := p.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestFileLock_WritesPID(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "locks", "watch.lock")

	fl := NewFileLock(lockPath)
	if err := fl.TryLock(); err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	defer fl.Unlock()

	data, err := os.ReadFile(lockPath)
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != strconv.Itoa(os.Getpid()) {
		t.Errorf("lock file pid = %q, want %d", got, os.Getpid())
	}
}

func TestFileLock_SecondHolderRejected(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "watch.lock")

	fl1 := NewFileLock(lockPath)
	if err := fl1.TryLock(); err != nil {
		t.Fatalf("first TryLock: %v", err)
	}
	defer fl1.Unlock()

	fl2 := NewFileLock(lockPath)
	err := fl2.TryLock()
	if err == nil {
		fl2.Unlock()
		t.Fatal("expected second TryLock to fail")
	}
	if !errors.Is(err, ErrHeld) {
		t.Errorf("error = %v, want ErrHeld", err)
	}
}

func TestFileLock_UnlockAllowsRelock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "watch.lock")

	fl1 := NewFileLock(lockPath)
	if err := fl1.TryLock(); err != nil {
		t.Fatalf("first TryLock: %v", err)
	}
	if err := fl1.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("lock file still present after Unlock")
	}

	fl2 := NewFileLock(lockPath)
	if err := fl2.TryLock(); err != nil {
		t.Fatalf("relock after unlock: %v", err)
	}
	fl2.Unlock()

	if err := fl2.Unlock(); err != nil {
		t.Fatalf("double unlock should be safe, got: %v", err)
	}
}
