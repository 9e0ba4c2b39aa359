// Package hooking is the notification fabric of memsync. Cells, binders and
// tick groups raise hooks at well-known positions; loggers, recorders, host
// property links and user callbacks attach to them.
package hooking

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/memsync/idgen"
)

// HookPos defines the enum of possible hooking positions.
type HookPos struct {
	Name string
}

// HookCtx is the context that holds all the information about the site that a
// hook is triggered.
type HookCtx struct {
	// Domain is the hookable object that is raising this hook.
	Domain Hookable

	// Pos identifies the lifecycle stage or location the hook is firing from.
	Pos *HookPos

	// Item carries the primary subject associated with the hook (a change
	// event, a fault, a tick number).
	Item any

	// Detail holds optional auxiliary data; hook sites may leave it nil.
	Detail any
}

// Hookable defines an object that accept Hooks.
type Hookable interface {
	// AcceptHook registers a hook. The returned subscription detaches it.
	AcceptHook(hook Hook) *Subscription

	// NumHooks returns the number of hooks registered.
	NumHooks() int

	// Hooks returns all the hooks registered.
	Hooks() []Hook

	// InvokeHook triggers the registered Hooks.
	InvokeHook(ctx HookCtx)
}

// Hook is a short piece of program that can be invoked by a hookable object.
type Hook interface {
	// Func determines what to do if hook is invoked.
	Func(ctx HookCtx)
}

// HookFunc adapts a plain function to the Hook interface.
type HookFunc func(ctx HookCtx)

// Func calls f.
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// A Subscription is one attached hook. Cancelling it removes the hook and
// stops any delivery that has not started yet, including deliveries of an
// InvokeHook call that is already walking the hook list.
type Subscription struct {
	id     idgen.ID
	owner  *HookableBase
	hook   Hook
	active atomic.Bool
}

// ID returns the identifier of the subscription, unique within its owner.
func (s *Subscription) ID() idgen.ID {
	return s.id
}

// Active reports whether the hook will still be invoked.
func (s *Subscription) Active() bool {
	return s != nil && s.active.Load()
}

// Cancel detaches the hook. Cancelling twice is allowed.
func (s *Subscription) Cancel() {
	if s == nil || !s.active.Swap(false) {
		return
	}

	s.owner.remove(s)
}

// A HookableBase provides some utility function for other type that implement
// the Hookable interface.
//
// Hooks may be attached and detached at any time, including from inside a
// hook. InvokeHook walks a snapshot of the list, so hooks added during an
// invocation only see later invocations.
type HookableBase struct {
	mu     sync.Mutex
	ids    idgen.Generator
	subs   []*Subscription
	closed bool
}

// NewHookableBase creates a HookableBase object.
func NewHookableBase() *HookableBase {
	return &HookableBase{
		ids:  idgen.New(),
		subs: make([]*Subscription, 0),
	}
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs)
}

// Hooks returns all the hooks registered.
func (h *HookableBase) Hooks() []Hook {
	h.mu.Lock()
	defer h.mu.Unlock()

	hooks := make([]Hook, 0, len(h.subs))
	for _, s := range h.subs {
		hooks = append(hooks, s.hook)
	}

	return hooks
}

// AcceptHook register a hook. It panics if the same comparable hook is
// already registered or if the hookable has been closed.
func (h *HookableBase) AcceptHook(hook Hook) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		panic("hooking: hook registered on a closed hookable")
	}

	h.mustNotHaveDuplicatedHook(hook)

	s := &Subscription{
		id:    h.ids.Generate(),
		owner: h,
		hook:  hook,
	}
	s.active.Store(true)
	h.subs = append(h.subs, s)

	return s
}

// Subscribe registers fn to run only for hooks raised at pos.
func (h *HookableBase) Subscribe(pos *HookPos, fn func(ctx HookCtx)) *Subscription {
	return h.AcceptHook(HookFunc(func(ctx HookCtx) {
		if ctx.Pos == pos {
			fn(ctx)
		}
	}))
}

func (h *HookableBase) mustNotHaveDuplicatedHook(hook Hook) {
	if !reflect.TypeOf(hook).Comparable() {
		return
	}

	for _, s := range h.subs {
		if reflect.TypeOf(s.hook).Comparable() && s.hook == hook {
			panic("duplicated hook")
		}
	}
}

func (h *HookableBase) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, sub := range h.subs {
		if sub == s {
			h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
			return
		}
	}
}

// InvokeHook triggers the register Hooks.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	h.mu.Lock()
	snapshot := make([]*Subscription, len(h.subs))
	copy(snapshot, h.subs)
	h.mu.Unlock()

	for _, s := range snapshot {
		if !s.Active() {
			continue
		}

		s.hook.Func(ctx)
	}
}

// Close cancels every subscription and refuses new ones. Hooks that are
// part of an in-flight InvokeHook are not delivered after Close returns.
func (h *HookableBase) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = nil
	h.closed = true
	h.mu.Unlock()

	for _, s := range subs {
		s.active.Store(false)
	}
}

// IsClosed reports whether Close has been called.
func (h *HookableBase) IsClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.closed
}

var _ Hookable = (*HookableBase)(nil)
