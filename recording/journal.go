package recording

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/xid"

	"github.com/sarchlab/memsync/binder"
	"github.com/sarchlab/memsync/cell"
	"github.com/sarchlab/memsync/instrumentation/hooking"
	"github.com/sarchlab/memsync/timing"
)

// Table names used by a Journal.
const (
	ChangeTable = "field_change"
	FaultTable  = "access_fault"
	TickTable   = "tick"
)

// A ChangeEntry is one observed or written change of a field.
type ChangeEntry struct {
	ID      string
	Session string
	Tick    uint64
	Time    int64
	Binder  string
	Path    string
	Old     string
	New     string
	Source  string
}

// A FaultEntry is one failed access.
type FaultEntry struct {
	ID      string
	Session string
	Tick    uint64
	Time    int64
	Binder  string
	Path    string
	Error   string
}

// A TickEntry summarizes one tick of a group.
type TickEntry struct {
	Session  string
	Tick     uint64
	Time     int64
	Changed  int
	Faults   int
	Dropped  int
	Disposed int
}

type named interface {
	Name() string
}

// A Journal is a hook that records the changes and faults of binders and the
// ticks of groups it is attached to. Values are stored in their printed form.
type Journal struct {
	recorder Recorder
	session  string
	tick     atomic.Uint64
}

// NewJournal creates the journal tables in recorder.
func NewJournal(recorder Recorder, session string) *Journal {
	recorder.CreateTable(ChangeTable, ChangeEntry{})
	recorder.CreateTable(FaultTable, FaultEntry{})
	recorder.CreateTable(TickTable, TickEntry{})

	return &Journal{
		recorder: recorder,
		session:  session,
	}
}

// Session returns the session identifier written with every entry.
func (j *Journal) Session() string {
	return j.session
}

// Func records the hook.
func (j *Journal) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case hooking.HookPosBeforeTick:
		if n, ok := ctx.Item.(uint64); ok {
			j.tick.Store(n)
		}
	case hooking.HookPosChange:
		j.recordChange(ctx)
	case hooking.HookPosFault:
		j.recordFault(ctx)
	case hooking.HookPosAfterTick:
		j.recordTick(ctx)
	}
}

func (j *Journal) recordChange(ctx hooking.HookCtx) {
	e := ChangeEntry{
		ID:      xid.New().String(),
		Session: j.session,
		Tick:    j.tick.Load(),
		Time:    time.Now().UnixNano(),
		Binder:  domainName(ctx.Domain),
	}

	switch c := ctx.Item.(type) {
	case binder.FieldChange:
		e.Path = c.Path
		e.Old = fmt.Sprint(c.Old)
		e.New = fmt.Sprint(c.New)
		e.Source = c.Source.String()
	case cell.ChangeEvent[any]:
		e.Path = c.Field
		e.Old = fmt.Sprint(c.Old)
		e.New = fmt.Sprint(c.New)
		e.Source = c.Source.String()
	default:
		return
	}

	j.recorder.InsertData(ChangeTable, e)
}

func (j *Journal) recordFault(ctx hooking.HookCtx) {
	e := FaultEntry{
		ID:      xid.New().String(),
		Session: j.session,
		Tick:    j.tick.Load(),
		Time:    time.Now().UnixNano(),
		Binder:  domainName(ctx.Domain),
	}

	switch f := ctx.Item.(type) {
	case cell.Fault:
		e.Path = f.Path
		e.Error = f.Err.Error()
	case error:
		e.Error = f.Error()
	default:
		return
	}

	j.recorder.InsertData(FaultTable, e)
}

func (j *Journal) recordTick(ctx hooking.HookCtx) {
	rep, ok := ctx.Item.(timing.Report)
	if !ok {
		return
	}

	j.recorder.InsertData(TickTable, TickEntry{
		Session:  j.session,
		Tick:     rep.Tick,
		Time:     time.Now().UnixNano(),
		Changed:  len(rep.Changed),
		Faults:   len(rep.Faults),
		Dropped:  len(rep.Dropped),
		Disposed: len(rep.Disposed),
	})
}

func domainName(d hooking.Hookable) string {
	if n, ok := d.(named); ok {
		return n.Name()
	}

	return ""
}

var _ hooking.Hook = (*Journal)(nil)
