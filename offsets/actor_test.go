package offsets_test

import (
	"encoding/binary"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/memsync/binder"
	"github.com/sarchlab/memsync/layout"
	"github.com/sarchlab/memsync/offsets"
	"github.com/sarchlab/memsync/remote"
)

var _ = Describe("Actor", func() {
	DescribeTable("absolute offsets",
		func(path string, want uint64) {
			off, err := offsets.Actor.AbsoluteOffset(path)
			Expect(err).ToNot(HaveOccurred())
			Expect(off).To(Equal(want))
		},
		Entry("name", "Name", uint64(0x30)),
		Entry("object kind", "ObjectKind", uint64(0x8C)),
		Entry("render mode", "RenderMode", uint64(0x104)),
		Entry("main hand variant", "MainHand.Variant", uint64(0x1454)),
		Entry("off hand dye", "OffHand.Dye", uint64(0x14BE)),
		Entry("feet dye", "Equipment.Feet.Dye", uint64(0x171B)),
		Entry("left finger", "Equipment.LFinger.Base", uint64(0x172C)),
		Entry("gender", "Customize.Gender", uint64(0x17B9)),
		Entry("face paint color", "Customize.FacePaintColor", uint64(0x17D1)),
		Entry("model type", "ModelType", uint64(0x1888)),
	)

	It("should size the nested records", func() {
		Expect(offsets.Weapon.Span()).To(Equal(uint64(0x68)))
		Expect(offsets.Equipment.Span()).To(Equal(uint64(0x28)))
		Expect(offsets.Appearance.Span()).To(Equal(uint64(26)))
		Expect(offsets.Actor.Span()).To(Equal(uint64(0x188C)))
	})

	It("should point to the transform", func() {
		f, ok := offsets.Actor.Field("Transform")
		Expect(ok).To(BeTrue())
		Expect(f.Kind).To(Equal(layout.KindPointer))
		Expect(f.Deref).To(Equal(uint64(offsets.TransformDeref)))
		Expect(f.Child).To(BeIdenticalTo(offsets.Transform))
	})

	It("should list the built-in layouts", func() {
		Expect(offsets.Layouts()).To(HaveKeyWithValue("Actor", offsets.Actor))
		Expect(offsets.Layouts()).To(HaveLen(6))
	})

	It("should name render modes", func() {
		name, ok := offsets.RenderModes.Lookup(2)
		Expect(ok).To(BeTrue())
		Expect(name).To(Equal("Unload"))
	})

	It("should bind an actor in memory", func() {
		const (
			base      = remote.Address(0x10000)
			transform = remote.Address(0x40000)
		)

		storage := remote.NewStorage(0x100000)
		Expect(storage.Write(base+0x30, []byte("Estinien\x00"))).To(Succeed())
		Expect(storage.Write(base+0x8C, []byte{0x01})).To(Succeed())

		ptr := make([]byte, 8)
		binary.LittleEndian.PutUint64(ptr, uint64(transform))
		Expect(storage.Write(base+0xF0, ptr)).To(Succeed())

		scale := make([]byte, 4)
		binary.LittleEndian.PutUint32(scale, math.Float32bits(1.5))
		Expect(storage.Write(transform+offsets.TransformDeref+0x20, scale)).To(Succeed())

		b, err := binder.Bind(storage, offsets.Actor, remote.Fixed(base))
		Expect(err).ToNot(HaveOccurred())
		defer b.Dispose()

		name, err := binder.Get[string](b, "Name")
		Expect(err).ToNot(HaveOccurred())
		Expect(name).To(Equal("Estinien"))

		kind, err := binder.Get[layout.EnumValue](b, "ObjectKind")
		Expect(err).ToNot(HaveOccurred())
		Expect(kind.String()).To(Equal("Player"))

		s, err := binder.Get[layout.Vector3](b, "Transform.Scale")
		Expect(err).ToNot(HaveOccurred())
		Expect(s.X).To(Equal(float32(1.5)))

		Expect(binder.Set(b, "RenderMode", uint32(2))).To(Succeed())
		raw, err := storage.Read(base+0x104, 4)
		Expect(err).ToNot(HaveOccurred())
		Expect(raw).To(Equal([]byte{2, 0, 0, 0}))
	})
})
