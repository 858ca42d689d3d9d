package devtools

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of change events into single rebuild triggers.
// Each target has its own quiet window; an event arriving before the window
// elapses resets it, so one trigger fires per burst, after the last event.
type Debouncer struct {
	quiet time.Duration
	out   func(Target)

	mu     sync.Mutex
	timers map[Target]*time.Timer
}

func NewDebouncer(quiet time.Duration, out func(Target)) *Debouncer {
	return &Debouncer{
		quiet:  quiet,
		out:    out,
		timers: map[Target]*time.Timer{},
	}
}

// Notify records a raw change event for t. Safe for concurrent use.
func (d *Debouncer) Notify(t Target) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if tm, ok := d.timers[t]; ok {
		tm.Reset(d.quiet)
		return
	}
	d.timers[t] = time.AfterFunc(d.quiet, func() {
		d.mu.Lock()
		delete(d.timers, t)
		d.mu.Unlock()
		d.out(t)
	})
}
