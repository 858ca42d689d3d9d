package devtools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestWatchTriggersDebouncedRebuild(t *testing.T) {
	b := newTestBuilder(t, `{
		"name": "punchy",
		"ignore": ["src/gen/**"],
		"client": {"root": ".", "build": {"dev": ["true"]}, "watchPaths": ["src"], "outDir": "build"},
		"server": {"root": ".", "build": {"dev": ["true"]}, "watchPaths": ["src"], "out": "bin"}
	}`)
	srcDir := filepath.Join(b.Root(), "src")
	genDir := filepath.Join(srcDir, "gen")
	if err := os.MkdirAll(genDir, 0755); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	counts := map[Target]int{}
	deb := NewDebouncer(50*time.Millisecond, func(tg Target) {
		mu.Lock()
		counts[tg]++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchDone := make(chan error, 1)
	go func() {
		watchDone <- b.Watch(ctx, NewSelection(true, true, false, false), deb)
	}()

	// Give the poller a cycle to take its baseline.
	time.Sleep(300 * time.Millisecond)

	// Changes under an ignored glob must never trigger.
	if err := os.WriteFile(filepath.Join(genDir, "bindings.rs"), []byte("// generated"), 0600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(500 * time.Millisecond)
	mu.Lock()
	if counts[Client] != 0 || counts[Server] != 0 {
		mu.Unlock()
		t.Fatalf("ignored path produced triggers: %v", counts)
	}
	mu.Unlock()

	// A real source change triggers every target watching that path.
	if err := os.WriteFile(filepath.Join(srcDir, "main.rs"), []byte("fn main() {}"), 0600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "client trigger", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts[Client] == 1 && counts[Server] == 1
	})

	cancel()
	if err := <-watchDone; err != nil {
		t.Fatalf("watch returned %v", err)
	}
}

func TestWatchMissingPathIsNotifierError(t *testing.T) {
	b := newTestBuilder(t, `{
		"name": "punchy",
		"client": {"root": ".", "build": {"dev": ["true"]}, "watchPaths": ["does-not-exist"], "outDir": "build"},
		"server": {"root": ".", "build": {"dev": ["true"]}, "watchPaths": [], "out": "bin"}
	}`)
	deb := NewDebouncer(50*time.Millisecond, func(Target) {})
	err := b.Watch(context.Background(), NewSelection(true, false, false, false), deb)
	var ne *NotifierError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want NotifierError", err)
	}
}
