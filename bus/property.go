// Package bus connects cells to observable properties of the host.
//
// A Binding keeps a host property and a remote value in step, in one or both
// directions, without echoing a change back to the side it came from.
package bus

import (
	"reflect"
	"sync"

	"github.com/sarchlab/memsync/cell"
	"github.com/sarchlab/memsync/instrumentation/hooking"
)

// A Property is an observable value owned by the host, such as the model
// behind a form control.
type Property[T any] interface {
	Get() T
	Set(v T)

	// OnChange registers fn for every change and returns a function that
	// removes it.
	OnChange(fn func(v T)) (cancel func())
}

// A Source is the remote side of a binding. *cell.Memory[T] is a Source.
type Source[T any] interface {
	Value() T
	WriteFrom(v T, origin any) error
	OnChange(fn func(cell.ChangeEvent[T])) *hooking.Subscription
}

// Value is a ready to use Property. Setting a value equal to the current one
// does not notify.
type Value[T any] struct {
	mu    sync.Mutex
	v     T
	hooks *hooking.HookableBase
}

// NewValue creates a property holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		v:     initial,
		hooks: hooking.NewHookableBase(),
	}
}

// Get returns the current value.
func (p *Value[T]) Get() T {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.v
}

// Set stores v and notifies the subscribers if it differs from the current
// value.
func (p *Value[T]) Set(v T) {
	p.mu.Lock()
	if reflect.DeepEqual(p.v, v) {
		p.mu.Unlock()
		return
	}

	p.v = v
	p.mu.Unlock()

	p.hooks.InvokeHook(hooking.HookCtx{
		Pos:  hooking.HookPosChange,
		Item: v,
	})
}

// OnChange registers fn for every change of the value.
func (p *Value[T]) OnChange(fn func(v T)) (cancel func()) {
	sub := p.hooks.Subscribe(hooking.HookPosChange, func(ctx hooking.HookCtx) {
		fn(ctx.Item.(T))
	})

	return sub.Cancel
}

// NumSubscribers returns the number of registered functions.
func (p *Value[T]) NumSubscribers() int {
	return p.hooks.NumHooks()
}

var (
	_ Property[int] = (*Value[int])(nil)
	_ Source[int32] = (*cell.Memory[int32])(nil)
)
