package binder_test

import (
	"encoding/binary"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/memsync/binder"
	"github.com/sarchlab/memsync/bus"
	"github.com/sarchlab/memsync/cell"
	"github.com/sarchlab/memsync/instrumentation/hooking"
	"github.com/sarchlab/memsync/layout"
	"github.com/sarchlab/memsync/remote"
)

const (
	actorBase     = remote.Address(0x10000)
	equipmentAt   = 0x40
	transformPtr  = 0x20
	transformAddr = remote.Address(0x30000)
)

var (
	equipmentLayout = layout.MakeBuilder("Equipment").
			WithUint("Head", 0x00, 4).
			WithUint("Body", 0x04, 4).
			WithUint("Hands", 0x08, 4).
			MustBuild()

	transformLayout = layout.MakeBuilder("Transform").
			WithVector3("Position", 0x00).
			WithFloat32("Scale", 0x10).
			MustBuild()

	actorLayout = layout.MakeBuilder("Actor").
			WithText("Name", 0x00, 16).
			WithUint("ActorId", 0x10, 4).
			WithPointer("Transform", transformPtr, transformLayout, 0x50).
			WithRecord("Equipment", equipmentAt, equipmentLayout).
			WithBool("IsFriendly", 0x60).
			MustBuild()
)

func putU32(s *remote.Storage, addr remote.Address, v uint32) {
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, v)
	Expect(s.Write(addr, raw)).To(Succeed())
}

func putPointer(s *remote.Storage, addr, target remote.Address) {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint64(raw, uint64(target))
	Expect(s.Write(addr, raw)).To(Succeed())
}

var _ = Describe("Binder", func() {
	var (
		storage *remote.Storage
		b       *binder.Binder
	)

	BeforeEach(func() {
		storage = remote.NewStorage(0x100000)
		Expect(storage.Write(actorBase, []byte("Urianger\x00"))).To(Succeed())
		putU32(storage, actorBase+0x10, 1001)
		putPointer(storage, actorBase+transformPtr, transformAddr)
		putU32(storage, actorBase+equipmentAt+0x04, 0xCAFE)

		var err error
		b, err = binder.Bind(storage, actorLayout, remote.Fixed(actorBase))
		Expect(err).ToNot(HaveOccurred())
	})

	It("should expose every field by path", func() {
		name, err := binder.Get[string](b, "Name")
		Expect(err).ToNot(HaveOccurred())
		Expect(name).To(Equal("Urianger"))

		body, err := binder.Get[uint32](b, "Equipment.Body")
		Expect(err).ToNot(HaveOccurred())
		Expect(body).To(Equal(uint32(0xCAFE)))

		id, err := binder.Get[int](b, "ActorId")
		Expect(err).ToNot(HaveOccurred())
		Expect(id).To(Equal(1001))
	})

	It("should mirror the layout in poll order", func() {
		Expect(b.Paths()).To(Equal([]string{
			"Name", "ActorId",
			"Transform", "Transform.Position", "Transform.Scale",
			"Equipment.Head", "Equipment.Body", "Equipment.Hands",
			"IsFriendly",
		}))
	})

	It("should write nested fields at base plus offset without touching neighbours", func() {
		putU32(storage, actorBase+equipmentAt+0x00, 0x11111111)
		putU32(storage, actorBase+equipmentAt+0x08, 0x33333333)

		Expect(binder.Set[uint32](b, "Equipment.Body", 0xAABBCCDD)).To(Succeed())

		raw, err := storage.Read(actorBase+equipmentAt, 12)
		Expect(err).ToNot(HaveOccurred())
		Expect(raw).To(Equal([]byte{
			0x11, 0x11, 0x11, 0x11,
			0xDD, 0xCC, 0xBB, 0xAA,
			0x33, 0x33, 0x33, 0x33,
		}))

		off, _ := actorLayout.AbsoluteOffset("Equipment.Body")
		addr, _ := mustField(b, "Equipment.Body").Address()
		Expect(addr).To(Equal(actorBase + remote.Address(off)))
	})

	It("should report changes in declared order", func() {
		changes := []string{}
		b.OnChange(func(c binder.FieldChange) {
			changes = append(changes, c.Path)
		})

		Expect(storage.Write(actorBase+0x60, []byte{1})).To(Succeed())
		putU32(storage, actorBase+equipmentAt+0x08, 7)
		putU32(storage, actorBase+0x10, 1002)

		res := b.Tick()

		Expect(res.Changed).To(Equal([]string{"ActorId", "Equipment.Hands", "IsFriendly"}))
		Expect(changes).To(Equal(res.Changed))
		Expect(res.Faults).To(BeEmpty())
	})

	It("should not report anything when memory is unchanged", func() {
		calls := 0
		b.OnChange(func(binder.FieldChange) { calls++ })

		for i := 0; i < 5; i++ {
			res := b.Tick()
			Expect(res.Changed).To(BeEmpty())
		}

		Expect(calls).To(Equal(0))
	})

	It("should follow the pointer again on every access", func() {
		s, err := binder.Get[float32](b, "Transform.Scale")
		Expect(err).ToNot(HaveOccurred())
		Expect(s).To(Equal(float32(0)))

		moved := remote.Address(0x50000)
		raw, _ := layout.Encode(layout.Field{Kind: layout.KindFloat, Width: 4},
			float32(2.5), binary.LittleEndian)
		Expect(storage.Write(moved+0x50+0x10, raw)).To(Succeed())
		putPointer(storage, actorBase+transformPtr, moved)

		b.Tick()

		s, _ = binder.Get[float32](b, "Transform.Scale")
		Expect(s).To(Equal(float32(2.5)))

		Expect(binder.Set[float32](b, "Transform.Scale", 3)).To(Succeed())
		got, _ := storage.Read(moved+0x50+0x10, 4)
		Expect(got).To(Equal([]byte{0, 0, 0x40, 0x40}))
	})

	It("should isolate faults to the failing field", func() {
		storage.Unmap(actorBase+equipmentAt+0x04, 4)
		putU32(storage, actorBase+equipmentAt+0x08, 9)

		res := b.Tick()

		Expect(res.Faults).To(HaveLen(1))
		Expect(res.Faults[0].Path).To(Equal("Equipment.Body"))
		Expect(res.Changed).To(Equal([]string{"Equipment.Hands"}))
		Expect(errors.Is(res.Err(), remote.ErrUnmapped)).To(BeTrue())

		body, _ := binder.Get[uint32](b, "Equipment.Body")
		Expect(body).To(Equal(uint32(0xCAFE)))
	})

	It("should bind a null pointer target as faulted", func() {
		putPointer(storage, actorBase+transformPtr, 0)

		other, err := binder.Bind(storage, actorLayout, remote.Fixed(actorBase))
		Expect(err).ToNot(HaveOccurred())

		Expect(mustField(other, "Transform.Position").State()).To(Equal(cell.StateFaulted))

		res := other.Tick()
		Expect(res.Faults).To(HaveLen(2))
		Expect(errors.Is(res.Faults[0].Err, remote.ErrNullPointer)).To(BeTrue())
	})

	It("should fail to bind when the record is unreadable", func() {
		storage.Unmap(actorBase, 0x10)

		_, err := binder.Bind(storage, actorLayout, remote.Fixed(actorBase))

		Expect(remote.IsAccessFault(err)).To(BeTrue())
	})

	It("should fail to bind when the base cannot be resolved", func() {
		_, err := binder.Bind(storage, actorLayout, remote.Chain(0x90000, 0x8, 0x0))

		Expect(errors.Is(err, remote.ErrNullPointer)).To(BeTrue())
	})

	It("should snapshot the last known values", func() {
		snap := b.Snapshot()

		Expect(snap["Name"]).To(Equal("Urianger"))
		Expect(snap["ActorId"]).To(Equal(uint32(1001)))
		Expect(snap["Transform"]).To(Equal(transformAddr))
		Expect(snap).To(HaveLen(9))
	})

	It("should reject unknown and non-scalar paths", func() {
		_, err := b.Field("Equipment")
		Expect(err).To(HaveOccurred())

		_, err = b.Field("Equipment.Feet")
		Expect(err).To(HaveOccurred())

		_, err = b.Child("ActorId")
		Expect(err).To(HaveOccurred())

		child, err := b.Child("Equipment")
		Expect(err).ToNot(HaveOccurred())

		hands, err := binder.Get[uint32](child, "Hands")
		Expect(err).ToNot(HaveOccurred())
		Expect(hands).To(Equal(uint32(0)))
	})

	Context("when disposed", func() {
		It("should dispose every cell and child", func() {
			body := mustField(b, "Equipment.Body")
			pos := mustField(b, "Transform.Position")

			b.Dispose()

			Expect(body.Disposed()).To(BeTrue())
			Expect(pos.Disposed()).To(BeTrue())
			Expect(b.NumHooks()).To(Equal(0))

			_, err := binder.Get[uint32](b, "Equipment.Body")
			Expect(err).To(MatchError(cell.ErrDisposed))
		})

		It("should not access memory afterwards", func() {
			b.Dispose()
			reads, writes := storage.Accesses()

			res := b.Tick()

			r, w := storage.Accesses()
			Expect(r).To(Equal(reads))
			Expect(w).To(Equal(writes))
			Expect(res.Changed).To(BeEmpty())
		})

		It("should stop a tick and deliver nothing more", func() {
			calls := 0
			b.OnChange(func(c binder.FieldChange) {
				calls++
				if c.Path == "ActorId" {
					b.Dispose()
				}
			})

			putU32(storage, actorBase+0x10, 5)
			putU32(storage, actorBase+equipmentAt, 6)
			Expect(storage.Write(actorBase+0x60, []byte{1})).To(Succeed())

			res := b.Tick()

			Expect(calls).To(Equal(1))
			Expect(res.Changed).To(Equal([]string{"ActorId"}))

			b.Tick()
			Expect(calls).To(Equal(1))
		})

		It("should raise the dispose hook once", func() {
			disposed := 0
			b.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
				if ctx.Pos == hooking.HookPosDispose {
					disposed++
				}
			}))

			b.Dispose()
			b.Dispose()

			Expect(disposed).To(Equal(1))
		})
	})

	It("should bind a host property both ways", func() {
		prop := bus.NewValue[uint32](0)

		l, err := binder.BindProperty[uint32](b, "ActorId", prop, bus.TwoWay)
		Expect(err).ToNot(HaveOccurred())
		defer l.Close()

		Expect(prop.Get()).To(Equal(uint32(1001)))

		remoteChanges := 0
		b.OnChange(func(c binder.FieldChange) {
			if c.Source == cell.SourceRemote {
				remoteChanges++
			}
		})

		prop.Set(77)

		raw, _ := storage.Read(actorBase+0x10, 4)
		Expect(binary.LittleEndian.Uint32(raw)).To(Equal(uint32(77)))

		b.Tick()
		Expect(remoteChanges).To(Equal(0))

		putU32(storage, actorBase+0x10, 78)
		b.Tick()
		Expect(prop.Get()).To(Equal(uint32(78)))
		Expect(remoteChanges).To(Equal(1))
	})
})

var _ = Describe("Big-endian binder", func() {
	It("should chase pointers in the layout byte order", func() {
		storage := remote.NewStorage(1 << 16)

		target := layout.MakeBuilder("Target").
			WithByteOrder(binary.BigEndian).
			WithUint("V", 0x0, 4).
			MustBuild()
		holder := layout.MakeBuilder("Holder").
			WithByteOrder(binary.BigEndian).
			WithPointer("Ptr", 0x0, target, 0).
			MustBuild()

		raw := make([]byte, remote.PointerSize)
		binary.BigEndian.PutUint64(raw, 0x2000)
		Expect(storage.Write(0x1000, raw)).To(Succeed())
		Expect(storage.Write(0x2000, []byte{0, 0, 0, 7})).To(Succeed())

		b, err := binder.Bind(storage, holder, remote.Fixed(0x1000))
		Expect(err).ToNot(HaveOccurred())
		defer b.Dispose()

		ptr, err := binder.Get[remote.Address](b, "Ptr")
		Expect(err).ToNot(HaveOccurred())
		Expect(ptr).To(Equal(remote.Address(0x2000)))

		child, err := b.Child("Ptr")
		Expect(err).ToNot(HaveOccurred())
		Expect(child.Base()).To(Equal(remote.Address(0x2000)))

		v, err := binder.Get[uint32](b, "Ptr.V")
		Expect(err).ToNot(HaveOccurred())
		Expect(v).To(Equal(uint32(7)))
	})
})

func mustField(b *binder.Binder, path string) *cell.Memory[any] {
	c, err := b.Field(path)
	Expect(err).ToNot(HaveOccurred())

	return c
}
