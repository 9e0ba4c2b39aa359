package timing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// A Driver ticks a Group at a fixed frequency until its context is done.
// Writes issued by the host do not go through the driver; they happen on the
// caller's goroutine.
type Driver struct {
	group *Group
	freq  Freq

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex

	singleRunLock sync.Mutex
	running       atomic.Bool

	reportHandlers []func(Report)
}

// NewDriver creates a driver of g at frequency f.
func NewDriver(g *Group, f Freq) *Driver {
	_ = f.Period()

	return &Driver{group: g, freq: f}
}

// Group returns the driven group.
func (d *Driver) Group() *Group {
	return d.group
}

// Freq returns the tick frequency.
func (d *Driver) Freq() Freq {
	return d.freq
}

// OnReport registers fn to receive the report of every tick run by the
// driver. It must be called before Run.
func (d *Driver) OnReport(fn func(Report)) {
	d.reportHandlers = append(d.reportHandlers, fn)
}

// Run ticks the group until ctx is done and then returns nil. Ticks that are
// due while the driver is paused are skipped, not queued.
func (d *Driver) Run(ctx context.Context) error {
	d.singleRunLock.Lock()
	defer d.singleRunLock.Unlock()

	d.running.Store(true)
	defer d.running.Store(false)

	ticker := time.NewTicker(d.freq.Period())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if d.Paused() {
				continue
			}

			d.pauseLock.Lock()
			rep := d.group.Tick()
			d.pauseLock.Unlock()

			for _, h := range d.reportHandlers {
				h(rep)
			}
		}
	}
}

// Running reports whether Run is active.
func (d *Driver) Running() bool {
	return d.running.Load()
}

// Pause stops the driver from ticking. It returns after any tick in progress
// finished.
func (d *Driver) Pause() {
	d.isPausedLock.Lock()
	defer d.isPausedLock.Unlock()

	if d.isPaused {
		return
	}

	d.pauseLock.Lock()
	d.isPaused = true
}

// Continue lets the driver tick again.
func (d *Driver) Continue() {
	d.isPausedLock.Lock()
	defer d.isPausedLock.Unlock()

	if !d.isPaused {
		return
	}

	d.pauseLock.Unlock()
	d.isPaused = false
}

// Paused reports whether the driver is paused.
func (d *Driver) Paused() bool {
	d.isPausedLock.Lock()
	defer d.isPausedLock.Unlock()

	return d.isPaused
}
