package timing

import (
	"sync"

	"github.com/sarchlab/memsync/cell"
	"github.com/sarchlab/memsync/instrumentation/hooking"
)

// A Tickable is anything a Group can advance: binders, cell sets and
// controllers built on them.
type Tickable interface {
	Tick() cell.TickResult
	Disposed() bool
	Dispose()
}

// A Report describes one tick of a group.
type Report struct {
	Tick uint64

	// Changed lists the changed fields as "member/path".
	Changed []string

	// Faults holds the failed accesses, with paths prefixed like Changed.
	Faults []cell.Fault

	// Dropped lists the members removed because their owner disposed them.
	Dropped []string

	// Disposed lists the members disposed by the group after reaching the
	// fault limit.
	Disposed []string
}

type member struct {
	name    string
	t       Tickable
	faulted int
}

// GroupOption configures a Group.
type GroupOption func(*Group)

// WithFaultLimit makes the group dispose a member after n consecutive ticks
// in which at least one of its accesses failed. Zero disables the limit.
func WithFaultLimit(n int) GroupOption {
	return func(g *Group) {
		g.faultLimit = n
	}
}

// A Group is the registry of live tickables. It has no goroutine of its own;
// every call to Tick advances each member by exactly one tick, in
// registration order.
type Group struct {
	hooks *hooking.HookableBase

	mu      sync.Mutex
	members []*member
	now     uint64

	tickLock   sync.Mutex
	faultLimit int
}

// NewGroup creates an empty group.
func NewGroup(opts ...GroupOption) *Group {
	g := &Group{hooks: hooking.NewHookableBase()}
	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Add registers t under name. Names do not need to be unique, but they are
// how members appear in reports.
func (g *Group) Add(name string, t Tickable) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.members = append(g.members, &member{name: name, t: t})
}

// Remove unregisters t without disposing it. It reports whether t was a
// member.
func (g *Group) Remove(t Tickable) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, m := range g.members {
		if m.t == t {
			g.members = append(g.members[:i:i], g.members[i+1:]...)
			return true
		}
	}

	return false
}

// Names returns the names of the members in registration order.
func (g *Group) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	names := make([]string, 0, len(g.members))
	for _, m := range g.members {
		names = append(names, m.name)
	}

	return names
}

// Member returns the first member registered under name.
func (g *Group) Member(name string) (Tickable, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, m := range g.members {
		if m.name == name {
			return m.t, true
		}
	}

	return nil, false
}

// Len returns the number of members.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.members)
}

// Now returns the number of ticks run so far.
func (g *Group) Now() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.now
}

// Tick advances every member by one tick. Members disposed by their owners
// are dropped instead of ticked.
func (g *Group) Tick() Report {
	g.tickLock.Lock()
	defer g.tickLock.Unlock()

	g.mu.Lock()
	g.now++
	rep := Report{Tick: g.now}
	members := make([]*member, len(g.members))
	copy(members, g.members)
	g.mu.Unlock()

	g.hooks.InvokeHook(hooking.HookCtx{
		Domain: g,
		Pos:    hooking.HookPosBeforeTick,
		Item:   rep.Tick,
	})

	for _, m := range members {
		if m.t.Disposed() {
			g.drop(m)
			rep.Dropped = append(rep.Dropped, m.name)

			continue
		}

		res := m.t.Tick()
		rep.add(m.name, res)

		if !res.Faulted() {
			m.faulted = 0
			continue
		}

		m.faulted++
		if g.faultLimit > 0 && m.faulted >= g.faultLimit {
			m.t.Dispose()
			g.drop(m)
			rep.Disposed = append(rep.Disposed, m.name)
		}
	}

	g.hooks.InvokeHook(hooking.HookCtx{
		Domain: g,
		Pos:    hooking.HookPosAfterTick,
		Item:   rep,
	})

	return rep
}

func (g *Group) drop(target *member) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, m := range g.members {
		if m == target {
			g.members = append(g.members[:i:i], g.members[i+1:]...)
			return
		}
	}
}

func (r *Report) add(name string, res cell.TickResult) {
	for _, c := range res.Changed {
		r.Changed = append(r.Changed, name+"/"+c)
	}

	for _, f := range res.Faults {
		r.Faults = append(r.Faults, cell.Fault{Path: name + "/" + f.Path, Err: f.Err})
	}
}

// Dispose disposes and removes every member.
func (g *Group) Dispose() {
	g.mu.Lock()
	members := g.members
	g.members = nil
	g.mu.Unlock()

	for _, m := range members {
		m.t.Dispose()
	}
}

// AcceptHook registers a hook for the before and after tick positions.
func (g *Group) AcceptHook(hook hooking.Hook) *hooking.Subscription {
	return g.hooks.AcceptHook(hook)
}

// NumHooks returns the number of hooks registered.
func (g *Group) NumHooks() int {
	return g.hooks.NumHooks()
}

// Hooks returns all the hooks registered.
func (g *Group) Hooks() []hooking.Hook {
	return g.hooks.Hooks()
}

// InvokeHook triggers the registered hooks.
func (g *Group) InvokeHook(ctx hooking.HookCtx) {
	g.hooks.InvokeHook(ctx)
}

var _ hooking.Hookable = (*Group)(nil)
