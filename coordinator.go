package devtools

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gookit/color"
	"golang.org/x/sync/errgroup"
)

// ReloadNotifier gets told about build outcomes, typically to push reload
// events to connected browsers.
type ReloadNotifier interface {
	Reload(t Target)
	BuildError(t Target, stdout, stderr string)
}

type buildFunc func(ctx context.Context, t Target, mode BuildMode) (*Result, error)
type startFunc func(ctx context.Context) (handle, error)

type handle interface {
	Done() <-chan struct{}
	Err() error
	Stop(grace time.Duration)
}

// Coordinator owns the selected targets. Each target gets its own loop: an
// initial build at startup, then one rebuild per trigger, never two at once.
// Triggers arriving while a build is in flight collapse into a single owed
// rebuild that runs the moment the current one completes.
type Coordinator struct {
	build buildFunc
	start startFunc
	sel   TargetSelection
	loops map[Target]chan struct{}

	// Optional collaborators, set before Run.
	Status   *StatusFile
	Notifier ReloadNotifier
	Grace    time.Duration
}

func NewCoordinator(b *Builder, sel TargetSelection) *Coordinator {
	return newCoordinator(sel, b.Build, func(ctx context.Context) (handle, error) {
		h, err := b.Start(ctx)
		if err != nil {
			return nil, err
		}
		return h, nil
	})
}

func newCoordinator(sel TargetSelection, build buildFunc, start startFunc) *Coordinator {
	c := &Coordinator{
		build: build,
		start: start,
		sel:   sel,
		loops: map[Target]chan struct{}{},
		Grace: 5 * time.Second,
	}
	for _, t := range sel.Targets() {
		c.loops[t] = make(chan struct{}, 1)
	}
	return c
}

// Trigger requests a rebuild of t. Safe to call from any goroutine; the
// one-slot buffer is what bounds owed rebuilds to exactly one.
func (c *Coordinator) Trigger(t Target) {
	ch, ok := c.loops[t]
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done. Target loops are independent: a fatal error
// ends only its own loop, and Wait reports the first such error once every
// loop has finished.
func (c *Coordinator) Run(ctx context.Context) error {
	g := new(errgroup.Group)
	for _, t := range c.sel.Targets() {
		t := t
		g.Go(func() error {
			if t == ServerRun {
				return c.runServe(ctx, t)
			}
			return c.runBuilds(ctx, t)
		})
	}
	return g.Wait()
}

func (c *Coordinator) runBuilds(ctx context.Context, t Target) error {
	if err := c.buildOnce(ctx, t); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.loops[t]:
			if err := c.buildOnce(ctx, t); err != nil {
				return err
			}
		}
	}
}

// buildOnce runs one build and sorts the outcome into the error taxonomy.
// The returned error is non-nil only for fatal conditions.
func (c *Coordinator) buildOnce(ctx context.Context, t Target) error {
	c.setStatus(t, "building", nil, nil)
	color.Printf("<cyan>[%s]</> build started\n", t)
	res, err := c.build(ctx, t, Dev)
	if err != nil {
		c.setStatus(t, "failed", res, err)
		var xe *ExitError
		var te *TimeoutError
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case errors.As(err, &xe):
			color.Printf("<red>[%s]</> build failed (exit %d)\n", t, xe.Code)
			if c.Notifier != nil {
				c.Notifier.BuildError(t, string(xe.Stdout), string(xe.Stderr))
			}
			return nil
		case errors.As(err, &te):
			color.Printf("<red>[%s]</> build timed out after %s\n", t, te.After)
			return nil
		default:
			// SpawnError and anything unclassified: the environment is
			// broken, retrying on the next save cannot help.
			return err
		}
	}
	c.setStatus(t, "ok", res, nil)
	color.Printf("<green>[%s]</> build finished in %s\n", t, res.Duration.Round(time.Millisecond))
	if c.Notifier != nil {
		c.Notifier.Reload(t)
	}
	return nil
}

// runServe drives the long-running server target. A trigger terminates the
// live process before the replacement starts; natural exits park the loop
// until the next trigger.
func (c *Coordinator) runServe(ctx context.Context, t Target) error {
	h, err := c.startOnce(ctx, t)
	if err != nil {
		return err
	}
	for {
		var done <-chan struct{}
		if h != nil {
			done = h.Done()
		}
		select {
		case <-ctx.Done():
			if h != nil {
				h.Stop(c.Grace)
			}
			return nil
		case <-done:
			if err := h.Err(); err != nil {
				log.Printf("[%s] exited: %v", t, err)
			} else {
				log.Printf("[%s] exited", t)
			}
			c.setStatus(t, "stopped", nil, h.Err())
			h = nil
		case <-c.loops[t]:
			if h != nil {
				color.Printf("<yellow>[%s]</> change detected, restarting\n", t)
				h.Stop(c.Grace)
			}
			h, err = c.startOnce(ctx, t)
			if err != nil {
				return err
			}
		}
	}
}

func (c *Coordinator) startOnce(ctx context.Context, t Target) (handle, error) {
	h, err := c.start(ctx)
	if err != nil {
		c.setStatus(t, "failed", nil, err)
		return nil, err
	}
	c.setStatus(t, "running", nil, nil)
	color.Printf("<green>[%s]</> started\n", t)
	return h, nil
}

func (c *Coordinator) setStatus(t Target, state string, res *Result, err error) {
	if c.Status != nil {
		c.Status.Update(t, state, res, err)
	}
}
