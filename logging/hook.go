package logging

import (
	"go.uber.org/zap"

	"github.com/sarchlab/memsync/binder"
	"github.com/sarchlab/memsync/cell"
	"github.com/sarchlab/memsync/instrumentation/hooking"
	"github.com/sarchlab/memsync/timing"
)

// LogHookBase provides the common logic for all log hooks.
type LogHookBase struct {
	Logger *zap.SugaredLogger
}

// ChangeLogger is a hook that logs changes, faults and disposals raised by
// binders, cells and tick groups.
type ChangeLogger struct {
	LogHookBase
}

// NewChangeLogger returns a hook that writes into logger.
func NewChangeLogger(logger *zap.SugaredLogger) *ChangeLogger {
	h := new(ChangeLogger)
	h.Logger = logger

	return h
}

// Func writes the hook information into the logger.
func (h *ChangeLogger) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case hooking.HookPosChange:
		h.logChange(ctx)
	case hooking.HookPosFault:
		h.logFault(ctx)
	case hooking.HookPosDispose:
		h.Logger.Infow("disposed", "domain", ctx.Item)
	case hooking.HookPosAfterTick:
		h.logTick(ctx)
	}
}

func (h *ChangeLogger) logChange(ctx hooking.HookCtx) {
	switch c := ctx.Item.(type) {
	case binder.FieldChange:
		h.Logger.Infow("changed",
			"field", c.Path,
			"old", c.Old,
			"new", c.New,
			"source", c.Source.String())
	case cell.ChangeEvent[any]:
		h.Logger.Infow("changed",
			"field", c.Field,
			"old", c.Old,
			"new", c.New,
			"source", c.Source.String())
	default:
		h.Logger.Infow("changed", "item", c)
	}
}

func (h *ChangeLogger) logFault(ctx hooking.HookCtx) {
	switch f := ctx.Item.(type) {
	case cell.Fault:
		h.Logger.Warnw("access fault", "field", f.Path, "error", f.Err)
	case error:
		h.Logger.Warnw("access fault", "error", f)
	}
}

func (h *ChangeLogger) logTick(ctx hooking.HookCtx) {
	rep, ok := ctx.Item.(timing.Report)
	if !ok {
		return
	}

	if len(rep.Disposed) > 0 {
		h.Logger.Warnw("disposed after repeated faults",
			"tick", rep.Tick, "members", rep.Disposed)
	}

	h.Logger.Debugw("tick",
		"tick", rep.Tick,
		"changed", len(rep.Changed),
		"faults", len(rep.Faults),
		"dropped", len(rep.Dropped))
}
