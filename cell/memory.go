// Package cell binds one field of remote memory to a typed, cached value.
//
// A cell is polled by its owner once per tick. A poll that observes a value
// different from the cache fires exactly one change notification. Writes go
// to the target immediately and are confirmed by the next poll.
package cell

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/memsync/instrumentation/hooking"
	"github.com/sarchlab/memsync/layout"
	"github.com/sarchlab/memsync/remote"
)

// Option configures a cell.
type Option func(*options)

type options struct {
	name          string
	order         binary.ByteOrder
	tolerateFault bool
}

// WithName sets the name reported in change events and faults. It defaults
// to the field name.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithByteOrder sets the byte order of the target. It defaults to little
// endian.
func WithByteOrder(order binary.ByteOrder) Option {
	return func(o *options) {
		o.order = order
	}
}

// TolerateInitialFault lets New succeed when the initial read fails. The
// cell starts Faulted and binds on the first successful poll.
func TolerateInitialFault() Option {
	return func(o *options) {
		o.tolerateFault = true
	}
}

// Memory is one field of remote memory seen as a value of type T.
type Memory[T any] struct {
	hooks *hooking.HookableBase

	mu    sync.Mutex
	acc   remote.Accessor
	addr  AddressFunc
	field layout.Field
	name  string
	order binary.ByteOrder

	value      T
	pending    T
	hasPending bool
	state      State
	faults     int
	lastErr    error

	disposed atomic.Bool
}

// New binds field f at the address returned by addr and performs the initial
// read.
func New[T any](
	acc remote.Accessor,
	addr AddressFunc,
	f layout.Field,
	opts ...Option,
) (*Memory[T], error) {
	if !f.IsScalar() {
		return nil, fmt.Errorf("cell: field %q of kind %s has no single value", f.Name, f.Kind)
	}

	o := options{name: f.Name, order: binary.LittleEndian}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Memory[T]{
		hooks: hooking.NewHookableBase(),
		acc:   acc,
		addr:  addr,
		field: f,
		name:  o.name,
		order: o.order,
		state: StateUnbound,
	}

	v, err := m.read()
	if err != nil {
		if !o.tolerateFault || !remote.IsAccessFault(err) {
			return nil, err
		}

		m.state = StateFaulted
		m.faults = 1
		m.lastErr = err

		return m, nil
	}

	m.value = v
	m.state = StateBound

	return m, nil
}

// Name returns the name reported in events.
func (m *Memory[T]) Name() string {
	return m.name
}

// Field returns the bound field.
func (m *Memory[T]) Field() layout.Field {
	return m.field
}

// Address resolves the current address of the cell.
func (m *Memory[T]) Address() (remote.Address, error) {
	return m.addr()
}

// Read reads and decodes the field without touching the cache.
func (m *Memory[T]) Read() (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateDisposed {
		var zero T
		return zero, ErrDisposed
	}

	return m.read()
}

// Value returns the last known value.
func (m *Memory[T]) Value() T {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.value
}

// State returns the synchronization state.
func (m *Memory[T]) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Faults returns the number of consecutive failed accesses.
func (m *Memory[T]) Faults() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.faults
}

// Err returns the error of the last failed access, or nil if the last access
// succeeded.
func (m *Memory[T]) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastErr
}

// Disposed reports whether Dispose has been called.
func (m *Memory[T]) Disposed() bool {
	return m.disposed.Load()
}

// Write writes v to remote memory.
func (m *Memory[T]) Write(v T) error {
	return m.WriteFrom(v, nil)
}

// WriteFrom writes v to remote memory on behalf of origin. On success the
// cache holds v and the cell is Diverging until a poll confirms the value.
// On failure the cache is unchanged and the cell is Faulted.
func (m *Memory[T]) WriteFrom(v T, origin any) error {
	m.mu.Lock()

	if m.state == StateDisposed {
		m.mu.Unlock()
		return ErrDisposed
	}

	raw, err := layout.Encode(m.field, v, m.order)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	if err = m.write(raw); err != nil {
		m.fault(err)
		m.mu.Unlock()
		m.notify(hooking.HookPosFault, err)

		return err
	}

	stored := m.canonical(raw, v)
	evt := ChangeEvent[T]{
		Field:  m.name,
		Old:    m.value,
		New:    stored,
		Source: SourceLocal,
		Origin: origin,
	}

	m.value = stored
	m.pending = stored
	m.hasPending = true
	m.state = StateDiverging
	m.faults = 0
	m.lastErr = nil
	m.mu.Unlock()

	m.notify(hooking.HookPosWrite, evt)
	m.notify(hooking.HookPosChange, evt)

	return nil
}

// Poll reads the field and compares it with the cache. It reports whether a
// change notification was fired. A value that matches a pending write only
// confirms the write.
func (m *Memory[T]) Poll() (bool, error) {
	m.mu.Lock()

	if m.state == StateDisposed {
		m.mu.Unlock()
		return false, ErrDisposed
	}

	v, err := m.read()
	if err != nil {
		m.fault(err)
		m.mu.Unlock()
		m.notify(hooking.HookPosFault, err)

		return false, err
	}

	m.faults = 0
	m.lastErr = nil

	if m.hasPending {
		m.hasPending = false
		if layout.Equal(m.field, v, m.pending) {
			m.state = StateSynced
			m.mu.Unlock()

			return false, nil
		}
	}

	if layout.Equal(m.field, v, m.value) {
		m.state = StateSynced
		m.mu.Unlock()

		return false, nil
	}

	evt := ChangeEvent[T]{
		Field:  m.name,
		Old:    m.value,
		New:    v,
		Source: SourceRemote,
	}
	m.value = v
	m.state = StateSynced
	m.mu.Unlock()

	m.notify(hooking.HookPosChange, evt)

	return true, nil
}

// OnChange registers fn for every change of the cell, remote or local. It
// panics if the cell is disposed.
func (m *Memory[T]) OnChange(fn func(ChangeEvent[T])) *hooking.Subscription {
	return m.hooks.Subscribe(hooking.HookPosChange, func(ctx hooking.HookCtx) {
		fn(ctx.Item.(ChangeEvent[T]))
	})
}

// OnFault registers fn for every failed access. It panics if the cell is
// disposed.
func (m *Memory[T]) OnFault(fn func(error)) *hooking.Subscription {
	return m.hooks.Subscribe(hooking.HookPosFault, func(ctx hooking.HookCtx) {
		fn(ctx.Item.(error))
	})
}

// Dispose detaches all listeners, discards any pending confirmation and makes
// the cell inert. Disposing twice is allowed.
func (m *Memory[T]) Dispose() {
	m.mu.Lock()
	if m.state == StateDisposed {
		m.mu.Unlock()
		return
	}

	m.state = StateDisposed
	m.hasPending = false
	m.mu.Unlock()

	m.hooks.InvokeHook(hooking.HookCtx{
		Domain: m,
		Pos:    hooking.HookPosDispose,
		Item:   m.name,
	})

	m.disposed.Store(true)
	m.hooks.Close()
}

// AcceptHook registers a hook for every position the cell raises. It panics
// if the cell is disposed.
func (m *Memory[T]) AcceptHook(hook hooking.Hook) *hooking.Subscription {
	return m.hooks.AcceptHook(hook)
}

// NumHooks returns the number of hooks registered.
func (m *Memory[T]) NumHooks() int {
	return m.hooks.NumHooks()
}

// Hooks returns all the hooks registered.
func (m *Memory[T]) Hooks() []hooking.Hook {
	return m.hooks.Hooks()
}

// InvokeHook triggers the registered hooks.
func (m *Memory[T]) InvokeHook(ctx hooking.HookCtx) {
	m.hooks.InvokeHook(ctx)
}

func (m *Memory[T]) notify(pos *hooking.HookPos, item any) {
	if m.disposed.Load() {
		return
	}

	m.hooks.InvokeHook(hooking.HookCtx{
		Domain: m,
		Pos:    pos,
		Item:   item,
		Detail: m.field,
	})
}

func (m *Memory[T]) fault(err error) {
	m.state = StateFaulted
	m.faults++
	m.lastErr = err
}

func (m *Memory[T]) read() (T, error) {
	var zero T

	addr, err := m.addr()
	if err != nil {
		return zero, err
	}

	raw, err := m.acc.Read(addr, m.field.Width)
	if err != nil {
		return zero, remote.NewFault("read", addr, m.field.Width, err)
	}

	decoded, err := layout.Decode(m.field, raw, m.order)
	if err != nil {
		return zero, err
	}

	v, ok := decoded.(T)
	if !ok {
		return zero, &layout.DecodeError{
			Op:     "decode",
			Field:  m.field.Name,
			Kind:   m.field.Kind,
			Reason: fmt.Sprintf("value of type %T is not a %s", decoded, typeName[T]()),
		}
	}

	return v, nil
}

func (m *Memory[T]) write(raw []byte) error {
	addr, err := m.addr()
	if err != nil {
		return err
	}

	if err := m.acc.Write(addr, raw); err != nil {
		return remote.NewFault("write", addr, len(raw), err)
	}

	return nil
}

// canonical returns the value the target will report for raw, so that the
// confirming poll compares equal even when v had another Go type or was
// truncated.
func (m *Memory[T]) canonical(raw []byte, v T) T {
	decoded, err := layout.Decode(m.field, raw, m.order)
	if err != nil {
		return v
	}

	if c, ok := decoded.(T); ok {
		return c
	}

	return v
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

var _ hooking.Hookable = (*Memory[int32])(nil)
