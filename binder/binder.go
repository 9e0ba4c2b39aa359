// Package binder mirrors a record layout in remote memory as a tree of cells.
//
// A Binder owns one cell per scalar field and one child binder per nested
// record or pointer field. Nested records live at the base of the parent plus
// the field offset. Pointer children live wherever the pointer points right
// now; the pointer is chased again on every access.
package binder

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/sarchlab/memsync/cell"
	"github.com/sarchlab/memsync/instrumentation/hooking"
	"github.com/sarchlab/memsync/layout"
	"github.com/sarchlab/memsync/remote"
)

// TickResult summarizes one tick of a binder tree.
type TickResult = cell.TickResult

// A FieldChange is raised at HookPosChange by a binder whenever one of the
// cells of its tree changes. Path is relative to the root binder.
type FieldChange struct {
	Path   string
	Old    any
	New    any
	Source cell.Source
	Origin any
}

// Option configures a binder.
type Option func(*options)

type options struct {
	name  string
	hooks []hooking.Hook
}

// WithName names the binder in hook contexts and logs. It defaults to the
// layout name.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithHooks attaches hooks to the root binder before its first tick.
func WithHooks(hooks ...hooking.Hook) Option {
	return func(o *options) {
		o.hooks = append(o.hooks, hooks...)
	}
}

type node struct {
	field layout.Field
	path  string
	cell  *cell.Memory[any]
	child *Binder
}

// A Binder is the live mirror of one record.
type Binder struct {
	hooks *hooking.HookableBase

	name   string
	acc    remote.Accessor
	layout *layout.Layout
	base   remote.Resolver
	prefix string
	parent *Binder
	nodes  []*node

	disposed atomic.Bool
}

// Bind resolves base and builds the whole tree. It fails with an AccessFault
// if the base cannot be resolved or a field of the record itself cannot be
// read. Records reached through pointers bind even if they are unreadable
// now; their cells start Faulted.
func Bind(
	acc remote.Accessor,
	l *layout.Layout,
	base remote.Resolver,
	opts ...Option,
) (*Binder, error) {
	o := options{name: l.Name()}
	for _, opt := range opts {
		opt(&o)
	}

	if _, err := base.Resolve(acc); err != nil {
		return nil, fmt.Errorf("binder: resolve %s: %w", o.name, remote.NewFault("resolve", 0, 0, err))
	}

	b := newBinder(o.name, acc, l, base, "", nil)
	if err := b.build(false); err != nil {
		b.Dispose()
		return nil, err
	}

	for _, h := range o.hooks {
		b.AcceptHook(h)
	}

	return b, nil
}

func newBinder(
	name string,
	acc remote.Accessor,
	l *layout.Layout,
	base remote.Resolver,
	prefix string,
	parent *Binder,
) *Binder {
	return &Binder{
		hooks:  hooking.NewHookableBase(),
		name:   name,
		acc:    acc,
		layout: l,
		base:   base,
		prefix: prefix,
		parent: parent,
	}
}

func (b *Binder) build(tolerant bool) error {
	for _, f := range b.layout.Fields() {
		n := &node{field: f, path: joinPath(b.prefix, f.Name)}
		b.nodes = append(b.nodes, n)

		if f.Kind == layout.KindRecord {
			n.child = b.newChild(f.Child, n.path, remote.Offset(b.base, f.Offset))
			if err := n.child.build(tolerant); err != nil {
				return err
			}

			continue
		}

		if err := b.bindCell(n, tolerant); err != nil {
			return err
		}

		if f.Kind == layout.KindPointer {
			n.child = b.newChild(f.Child, n.path, remote.Deref(b.base, f.Offset, f.Deref, b.layout.Order()))
			if err := n.child.build(true); err != nil {
				return err
			}
		}
	}

	return nil
}

func (b *Binder) newChild(l *layout.Layout, path string, base remote.Resolver) *Binder {
	return newBinder(b.root().name+"."+path, b.acc, l, base, path, b)
}

func (b *Binder) bindCell(n *node, tolerant bool) error {
	opts := []cell.Option{
		cell.WithName(n.path),
		cell.WithByteOrder(b.layout.Order()),
	}
	if tolerant {
		opts = append(opts, cell.TolerateInitialFault())
	}

	c, err := cell.New[any](b.acc, cell.Resolved(b.acc, b.base, n.field.Offset), n.field, opts...)
	if err != nil {
		return fmt.Errorf("binder: bind %s.%s: %w", b.root().name, n.path, err)
	}

	n.cell = c
	c.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
		b.forward(n, ctx)
	}))

	return nil
}

func (b *Binder) forward(n *node, ctx hooking.HookCtx) {
	switch ctx.Pos {
	case hooking.HookPosChange, hooking.HookPosWrite:
		e := ctx.Item.(cell.ChangeEvent[any])
		b.raise(ctx.Pos, FieldChange{
			Path:   n.path,
			Old:    e.Old,
			New:    e.New,
			Source: e.Source,
			Origin: e.Origin,
		}, n.field)
	case hooking.HookPosFault:
		b.raise(ctx.Pos, cell.Fault{Path: n.path, Err: ctx.Item.(error)}, n.field)
	}
}

// raise delivers a hook to this binder and every ancestor, unless the tree
// is being torn down.
func (b *Binder) raise(pos *hooking.HookPos, item, detail any) {
	for x := b; x != nil; x = x.parent {
		if x.Disposed() {
			return
		}

		x.hooks.InvokeHook(hooking.HookCtx{
			Domain: x,
			Pos:    pos,
			Item:   item,
			Detail: detail,
		})
	}
}

// Name returns the name of the binder.
func (b *Binder) Name() string {
	return b.name
}

// Layout returns the bound layout.
func (b *Binder) Layout() *layout.Layout {
	return b.layout
}

// Base resolves the current base address of the record.
func (b *Binder) Base() (remote.Address, error) {
	return b.base.Resolve(b.acc)
}

// Field returns the cell bound at a dotted path. The path of a pointer
// field names the cell holding the pointer itself.
func (b *Binder) Field(path string) (*cell.Memory[any], error) {
	n, err := b.find(path)
	if err != nil {
		return nil, err
	}

	if n.cell == nil {
		return nil, fmt.Errorf("binder: %s: %q is a record, not a field", b.name, path)
	}

	return n.cell, nil
}

// Child returns the binder of the nested record or pointed-to record at a
// dotted path.
func (b *Binder) Child(path string) (*Binder, error) {
	n, err := b.find(path)
	if err != nil {
		return nil, err
	}

	if n.child == nil {
		return nil, fmt.Errorf("binder: %s: %q is not a record", b.name, path)
	}

	return n.child, nil
}

func (b *Binder) find(path string) (*node, error) {
	if b.Disposed() {
		return nil, cell.ErrDisposed
	}

	parts := strings.Split(path, ".")
	current := b

	for i, part := range parts {
		n := current.node(part)
		if n == nil {
			return nil, fmt.Errorf("binder: %s: no field %q", b.name, path)
		}

		if i == len(parts)-1 {
			return n, nil
		}

		if n.child == nil {
			return nil, fmt.Errorf("binder: %s: %q does not lead to a record", b.name, path)
		}

		current = n.child
	}

	return nil, fmt.Errorf("binder: %s: empty path", b.name)
}

func (b *Binder) node(name string) *node {
	for _, n := range b.nodes {
		if n.field.Name == name {
			return n
		}
	}

	return nil
}

// Paths returns the paths of every cell of the tree in poll order.
func (b *Binder) Paths() []string {
	paths := []string{}
	b.visit(func(n *node) {
		paths = append(paths, n.path)
	})

	return paths
}

// Snapshot returns the last known value of every cell of the tree, keyed by
// path.
func (b *Binder) Snapshot() map[string]any {
	values := make(map[string]any)
	b.visit(func(n *node) {
		values[n.path] = n.cell.Value()
	})

	return values
}

func (b *Binder) visit(fn func(n *node)) {
	for _, n := range b.nodes {
		if n.cell != nil {
			fn(n)
		}

		if n.child != nil {
			n.child.visit(fn)
		}
	}
}

// Tick polls every cell of the tree in declaration order, visiting nested
// records in place. A fault is reported for the failing cell only. When the
// binder gets disposed during the tick the walk stops and no further
// callbacks are delivered.
func (b *Binder) Tick() TickResult {
	res := TickResult{}
	b.tick(&res)

	return res
}

func (b *Binder) tick(res *TickResult) {
	for _, n := range b.nodes {
		if b.Disposed() {
			return
		}

		if n.cell != nil {
			changed, err := n.cell.Poll()
			if !errors.Is(err, cell.ErrDisposed) {
				res.Record(n.path, changed, err)
			}
		}

		if n.child != nil {
			n.child.tick(res)
		}
	}
}

// OnChange registers fn for every change of any cell of the tree.
func (b *Binder) OnChange(fn func(FieldChange)) *hooking.Subscription {
	return b.hooks.Subscribe(hooking.HookPosChange, func(ctx hooking.HookCtx) {
		fn(ctx.Item.(FieldChange))
	})
}

// OnFault registers fn for every failed access of any cell of the tree.
func (b *Binder) OnFault(fn func(cell.Fault)) *hooking.Subscription {
	return b.hooks.Subscribe(hooking.HookPosFault, func(ctx hooking.HookCtx) {
		fn(ctx.Item.(cell.Fault))
	})
}

// Disposed reports whether the binder or one of its ancestors has been
// disposed.
func (b *Binder) Disposed() bool {
	for x := b; x != nil; x = x.parent {
		if x.disposed.Load() {
			return true
		}
	}

	return false
}

// Dispose tears the tree down depth first: child binders, then the cells of
// this binder, then its hooks. No access to remote memory happens after
// Dispose returns.
func (b *Binder) Dispose() {
	if b.disposed.Swap(true) {
		return
	}

	b.hooks.InvokeHook(hooking.HookCtx{
		Domain: b,
		Pos:    hooking.HookPosDispose,
		Item:   b.name,
	})

	for _, n := range b.nodes {
		if n.child != nil {
			n.child.Dispose()
		}
	}

	for _, n := range b.nodes {
		if n.cell != nil {
			n.cell.Dispose()
		}
	}

	b.hooks.Close()
}

// AcceptHook registers a hook for every position raised by the tree.
func (b *Binder) AcceptHook(hook hooking.Hook) *hooking.Subscription {
	return b.hooks.AcceptHook(hook)
}

// NumHooks returns the number of hooks registered.
func (b *Binder) NumHooks() int {
	return b.hooks.NumHooks()
}

// Hooks returns all the hooks registered.
func (b *Binder) Hooks() []hooking.Hook {
	return b.hooks.Hooks()
}

// InvokeHook triggers the registered hooks.
func (b *Binder) InvokeHook(ctx hooking.HookCtx) {
	b.hooks.InvokeHook(ctx)
}

func (b *Binder) root() *Binder {
	r := b
	for r.parent != nil {
		r = r.parent
	}

	return r
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}

	return prefix + "." + name
}

var _ hooking.Hookable = (*Binder)(nil)
