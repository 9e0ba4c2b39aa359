package hooking

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type countingHook struct {
	count int
}

func (h *countingHook) Func(_ HookCtx) {
	h.count++
}

var _ = Describe("HookableBase", func() {
	var h *HookableBase

	BeforeEach(func() {
		h = NewHookableBase()
	})

	It("should invoke hooks in registration order", func() {
		var order []string
		h.AcceptHook(HookFunc(func(HookCtx) { order = append(order, "a") }))
		h.AcceptHook(HookFunc(func(HookCtx) { order = append(order, "b") }))

		h.InvokeHook(HookCtx{Domain: h, Pos: HookPosChange})

		Expect(order).To(Equal([]string{"a", "b"}))
		Expect(h.NumHooks()).To(Equal(2))
	})

	It("should panic on duplicated comparable hooks", func() {
		hook := &countingHook{}
		h.AcceptHook(hook)

		Expect(func() { h.AcceptHook(hook) }).To(Panic())
	})

	It("should stop delivering after cancel", func() {
		hook := &countingHook{}
		sub := h.AcceptHook(hook)

		h.InvokeHook(HookCtx{Pos: HookPosChange})
		sub.Cancel()
		sub.Cancel()
		h.InvokeHook(HookCtx{Pos: HookPosChange})

		Expect(hook.count).To(Equal(1))
		Expect(sub.Active()).To(BeFalse())
		Expect(h.NumHooks()).To(Equal(0))
	})

	It("should skip hooks cancelled during an invocation", func() {
		second := &countingHook{}
		var secondSub *Subscription

		h.AcceptHook(HookFunc(func(HookCtx) { secondSub.Cancel() }))
		secondSub = h.AcceptHook(second)

		h.InvokeHook(HookCtx{Pos: HookPosChange})

		Expect(second.count).To(Equal(0))
	})

	It("should filter by position when subscribing", func() {
		changes := 0
		h.Subscribe(HookPosChange, func(HookCtx) { changes++ })

		h.InvokeHook(HookCtx{Pos: HookPosFault})
		h.InvokeHook(HookCtx{Pos: HookPosChange})

		Expect(changes).To(Equal(1))
	})

	It("should refuse hooks after close", func() {
		hook := &countingHook{}
		sub := h.AcceptHook(hook)

		h.Close()
		h.InvokeHook(HookCtx{Pos: HookPosChange})

		Expect(hook.count).To(Equal(0))
		Expect(sub.Active()).To(BeFalse())
		Expect(h.IsClosed()).To(BeTrue())
		Expect(func() { h.AcceptHook(&countingHook{}) }).To(Panic())
	})
})
