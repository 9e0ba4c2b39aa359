package bus

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/memsync/cell"
	"github.com/sarchlab/memsync/instrumentation/hooking"
)

// Mode is the direction of a binding.
type Mode int

// Binding modes.
const (
	// OneWay copies remote changes to the property.
	OneWay Mode = iota

	// TwoWay also writes property changes to remote memory.
	TwoWay
)

func (m Mode) String() string {
	if m == TwoWay {
		return "two-way"
	}

	return "one-way"
}

// LinkOption configures a binding.
type LinkOption func(*linkOptions)

type linkOptions struct {
	onError func(error)
}

// WithErrorHandler sets the function called when writing a property change
// to remote memory fails. Without it, the last error is kept for Err.
func WithErrorHandler(fn func(error)) LinkOption {
	return func(o *linkOptions) {
		o.onError = fn
	}
}

// A Binding keeps a property in step with a source.
type Binding[T any] struct {
	src  Source[T]
	prop Property[T]
	mode Mode

	onError func(error)

	closed     atomic.Bool
	srcSub     *hooking.Subscription
	cancelProp func()

	mu       sync.Mutex
	lastErr  error
	inflight []T
}

// Link binds p to src. The property is first seeded with the current value of
// the source.
//
// Remote changes are applied to the property. With TwoWay, property changes
// are written to the source on behalf of the binding, so neither the change
// event of that write nor the poll that confirms it comes back to the
// property.
func Link[T any](src Source[T], p Property[T], mode Mode, opts ...LinkOption) *Binding[T] {
	o := linkOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	l := &Binding[T]{
		src:     src,
		prop:    p,
		mode:    mode,
		onError: o.onError,
	}

	l.apply(src.Value())

	l.srcSub = src.OnChange(func(e cell.ChangeEvent[T]) {
		if e.Origin == any(l) {
			return
		}

		l.apply(e.New)
	})

	if mode == TwoWay {
		l.cancelProp = p.OnChange(l.push)
	}

	return l
}

func (l *Binding[T]) apply(v T) {
	if l.closed.Load() {
		return
	}

	l.mu.Lock()
	l.inflight = append(l.inflight, v)
	l.mu.Unlock()

	defer l.settle(v)

	l.prop.Set(v)
}

// settle forgets one in-flight copy of v.
func (l *Binding[T]) settle(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(l.inflight) - 1; i >= 0; i-- {
		if reflect.DeepEqual(l.inflight[i], v) {
			l.inflight = append(l.inflight[:i:i], l.inflight[i+1:]...)
			return
		}
	}
}

// echoes reports whether v is a value the binding is applying right now.
func (l *Binding[T]) echoes(v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, in := range l.inflight {
		if reflect.DeepEqual(in, v) {
			return true
		}
	}

	return false
}

// push writes a property change to the source. Only the echo of a value
// being applied from the source is held back; other values set while
// applying, such as a subscriber clamping the property, are written.
func (l *Binding[T]) push(v T) {
	if l.closed.Load() || l.echoes(v) {
		return
	}

	if err := l.src.WriteFrom(v, l); err != nil {
		l.fail(err)
	}
}

func (l *Binding[T]) fail(err error) {
	if l.onError != nil {
		l.onError(err)
		return
	}

	l.mu.Lock()
	l.lastErr = err
	l.mu.Unlock()
}

// Mode returns the direction of the binding.
func (l *Binding[T]) Mode() Mode {
	return l.mode
}

// Err returns the last failed write when no error handler is set.
func (l *Binding[T]) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.lastErr
}

// Closed reports whether the binding no longer forwards changes, because it
// was closed or its source was disposed.
func (l *Binding[T]) Closed() bool {
	return l.closed.Load() || !l.srcSub.Active()
}

// Close detaches both directions. Closing twice is allowed.
func (l *Binding[T]) Close() {
	if l.closed.Swap(true) {
		return
	}

	l.srcSub.Cancel()
	if l.cancelProp != nil {
		l.cancelProp()
	}
}
