package devtools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/radovskyb/watcher"
)

// NotifierError wraps a failure of the change-notification stream itself.
// Once the stream is gone no further triggers can be observed, so callers
// treat it as fatal for the watch run.
type NotifierError struct {
	Err error
}

func (e *NotifierError) Error() string { return "watch: " + e.Err.Error() }
func (e *NotifierError) Unwrap() error { return e.Err }

const watchPollInterval = 100 * time.Millisecond

// Watch subscribes the debouncer to file changes under the manifest's watch
// paths for the selected targets. Blocks until ctx is done or the notifier
// fails. Paths matching the manifest's ignore globs (plus cargo's target
// directory and this tool's own output) never produce triggers.
func (b *Builder) Watch(ctx context.Context, sel TargetSelection, deb *Debouncer) error {
	m, err := b.Manifest()
	if err != nil {
		return err
	}

	w := watcher.New()
	w.FilterOps(watcher.Write, watcher.Create, watcher.Remove, watcher.Rename, watcher.Move)

	type route struct {
		target Target
		path   string
	}
	var routes []route
	for _, t := range sel.Targets() {
		for _, p := range m.WatchPaths(t) {
			abs := filepath.Join(b.root, p)
			info, err := os.Stat(abs)
			if err != nil {
				return &NotifierError{Err: err}
			}
			if info.IsDir() {
				if err := w.AddRecursive(abs); err != nil {
					return &NotifierError{Err: err}
				}
			} else if err := w.Add(abs); err != nil {
				return &NotifierError{Err: err}
			}
			routes = append(routes, route{t, abs})
		}
	}

	ignore := append([]string{".punchy-dev/**", "dist/**"}, m.Ignore...)
	if rel, err := filepath.Rel(b.root, b.TargetDir()); err == nil && !strings.HasPrefix(rel, "..") {
		ignore = append(ignore, filepath.ToSlash(rel)+"/**")
	}

	go func() {
		<-ctx.Done()
		w.Close()
	}()

	result := make(chan error, 1)
	go func() {
		for {
			select {
			case e := <-w.Event:
				if b.ignored(ignore, e.Path) {
					continue
				}
				hit := map[Target]bool{}
				for _, r := range routes {
					if hit[r.target] {
						continue
					}
					rel, err := filepath.Rel(r.path, e.Path)
					if err != nil {
						continue
					}
					if !strings.HasPrefix(rel, "..") {
						hit[r.target] = true
						deb.Notify(r.target)
					}
				}
			case err := <-w.Error:
				if errors.Is(err, watcher.ErrWatchedFileDeleted) {
					continue
				}
				result <- &NotifierError{Err: err}
				w.Close()
				return
			case <-w.Closed:
				result <- nil
				return
			}
		}
	}()

	if err := w.Start(watchPollInterval); err != nil {
		return &NotifierError{Err: err}
	}
	return <-result
}

func (b *Builder) ignored(patterns []string, p string) bool {
	rel, err := filepath.Rel(b.root, p)
	if err != nil {
		rel = p
	}
	rel = filepath.ToSlash(rel)
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, rel); ok {
			return true
		}
		// A glob like gen/** should also swallow events for gen itself,
		// since creating a file bumps the parent directory's mtime.
		if dir, found := strings.CutSuffix(pat, "/**"); found && rel == dir {
			return true
		}
	}
	return false
}
