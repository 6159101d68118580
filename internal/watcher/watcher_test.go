package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func waitForCalls(t *testing.T, calls *atomic.Int32, want int32) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if calls.Load() >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("onSync calls = %d, want at least %d", calls.Load(), want)
}

func TestWatcher_syncOnFileCreate(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w := New(dir, func() { calls.Add(1) }, WithDebounce(50*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0600); err != nil {
		t.Fatal(err)
	}
	waitForCalls(t, &calls, 1)
}

func TestWatcher_burstCollapses(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w := New(dir, func() { calls.Add(1) }, WithDebounce(200*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	for i := 0; i < 5; i++ {
		name := filepath.Join(dir, "f"+string(rune('a'+i))+".txt")
		if err := os.WriteFile(name, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	waitForCalls(t, &calls, 1)
	// Let any straggler timers fire, then check the burst produced one sync.
	time.Sleep(400 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("onSync calls = %d, want 1 for a single burst", got)
	}
}

func TestWatcher_newSubdirectoryWatched(t *testing.T) {
	dir := t.TempDir()
	var calls atomic.Int32
	w := New(dir, func() { calls.Add(1) }, WithDebounce(50*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	waitForCalls(t, &calls, 1)

	if err := os.WriteFile(filepath.Join(sub, "nested.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	waitForCalls(t, &calls, 2)
}

func TestWatcher_stopIsIdempotent(t *testing.T) {
	w := New(t.TempDir(), func() {})
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}

func TestWatcher_stopDuringEventBurst(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, func() {}, WithDebounce(10*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			name := filepath.Join(dir, "burst.txt")
			_ = os.WriteFile(name, []byte{byte(i)}, 0600)
		}
	}()
	time.Sleep(5 * time.Millisecond)
	w.Stop() // must not race the event loop
	<-done
}

func TestWatcher_contextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := New(t.TempDir(), func() {})
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w.mu.Lock()
		started := w.started
		w.mu.Unlock()
		if !started {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("watcher still running after context cancel")
}
