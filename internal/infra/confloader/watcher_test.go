package confloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type changeRecorder struct {
	ch chan string
}

func newChangeRecorder() *changeRecorder {
	return &changeRecorder{ch: make(chan string, 16)}
}

func (r *changeRecorder) record(path string) {
	select {
	case r.ch <- path:
	default:
	}
}

func startWatcher(t *testing.T, w *Watcher) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestNewWatcher(t *testing.T) {
	w, err := NewWatcher(WithWatcherDebounce(time.Second))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.watcher.Close()

	if w.logger == nil {
		t.Error("NewWatcher() logger is nil")
	}
	if w.debounce != time.Second {
		t.Errorf("debounce = %v, want 1s", w.debounce)
	}
}

func TestWatcher_Watch_MissingDir(t *testing.T) {
	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.watcher.Close()

	if err := w.Watch("/nonexistent/dir/config.yaml"); err == nil {
		t.Error("Watch() should fail when the directory does not exist")
	}
}

func TestWatcher_NotifiesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cli.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(WithWatcherDebounce(time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	rec := newChangeRecorder()
	w.OnChange(rec.record)
	startWatcher(t, w)

	if err := os.WriteFile(path, []byte("a: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	want, _ := filepath.Abs(path)
	select {
	case got := <-rec.ch:
		if got != want {
			t.Errorf("changed path = %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestWatcher_IgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cli.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(WithWatcherDebounce(time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if err := w.Watch(path); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	rec := newChangeRecorder()
	w.OnChange(rec.record)
	startWatcher(t, w)

	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("b: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-rec.ch:
		t.Errorf("unexpected notification for %q", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_Debounce(t *testing.T) {
	w, err := NewWatcher(WithWatcherDebounce(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.watcher.Close()

	if !w.due("/x/cli.yaml") {
		t.Error("first event should be due")
	}
	if w.due("/x/cli.yaml") {
		t.Error("second event within the debounce window should be dropped")
	}
	if !w.due("/x/other.yaml") {
		t.Error("debounce is per file")
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestWatcher_NotifyRunsCallbacksInOrder(t *testing.T) {
	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.watcher.Close()

	var calls []string
	w.OnChange(func(path string) {
		calls = append(calls, "first:"+path)
		// Registering from a callback must not deadlock or run in this round.
		w.OnChange(func(path string) { calls = append(calls, "late:"+path) })
	})
	w.OnChange(func(path string) { calls = append(calls, "second:"+path) })

	w.notify("/etc/sidus/cli.yaml")

	want := []string{"first:/etc/sidus/cli.yaml", "second:/etc/sidus/cli.yaml"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %q, want %q", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}
