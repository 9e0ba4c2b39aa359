package hooking

// Hook positions shared by cells, binders and tick groups.
var (
	// HookPosChange fires after a cell detected or applied a new value. The
	// Item is the change event of the cell.
	HookPosChange = &HookPos{Name: "Change"}

	// HookPosWrite fires after a local write reached remote memory.
	HookPosWrite = &HookPos{Name: "Write"}

	// HookPosFault fires when an access to remote memory failed. The Item is
	// the error.
	HookPosFault = &HookPos{Name: "Fault"}

	// HookPosDispose fires once, right before a domain is torn down.
	HookPosDispose = &HookPos{Name: "Dispose"}

	// HookPosBeforeTick fires before a tick group starts polling its members.
	HookPosBeforeTick = &HookPos{Name: "BeforeTick"}

	// HookPosAfterTick fires after a tick group finished polling its members.
	HookPosAfterTick = &HookPos{Name: "AfterTick"}
)
