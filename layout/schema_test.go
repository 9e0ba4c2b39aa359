package layout_test

import (
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/memsync/layout"
)

const actorSchema = `
version: "7.0"
layouts:
  - name: Actor
    span: 0x1900
    fields:
      - {name: Name, offset: 0x30, width: 30, kind: text}
      - {name: ActorId, offset: 0x74, width: 4, kind: uint}
      - name: RenderMode
        offset: 0x104
        width: 4
        kind: enum
        enum:
          name: RenderMode
          values: {0: Draw, 2: Unload}
      - {name: MainHand, offset: 0x1450, kind: record, child: Weapon}
      - {name: Transform, offset: 0xF0, kind: pointer, child: Transform, deref: 0x50}
  - name: Weapon
    fields:
      - {name: Set, offset: 0, width: 2, kind: uint}
      - {name: Dye, offset: 6, width: 1, kind: uint}
  - name: Transform
    fields:
      - {name: Position, offset: 0, kind: vector3}
      - {name: Scale, offset: 0x20, kind: float, width: 4, epsilon: 0.001}
`

var _ = Describe("Schema", func() {
	It("should load layouts referenced before they are declared", func() {
		s, err := layout.LoadSchema(strings.NewReader(actorSchema))
		Expect(err).ToNot(HaveOccurred())

		Expect(s.Version).To(Equal("7.0"))
		Expect(s.Names()).To(Equal([]string{"Actor", "Weapon", "Transform"}))

		actor, ok := s.Layout("Actor")
		Expect(ok).To(BeTrue())
		Expect(actor.Span()).To(Equal(uint64(0x1900)))

		off, err := actor.AbsoluteOffset("MainHand.Dye")
		Expect(err).ToNot(HaveOccurred())
		Expect(off).To(Equal(uint64(0x1456)))

		ptr, _ := actor.Field("Transform")
		Expect(ptr.Deref).To(Equal(uint64(0x50)))
		Expect(ptr.Child.Name()).To(Equal("Transform"))

		mode, _ := actor.Field("RenderMode")
		name, _ := mode.Enum.Lookup(2)
		Expect(name).To(Equal("Unload"))

		transform, _ := s.Layout("Transform")
		scale, _ := transform.Field("Scale")
		Expect(scale.Epsilon).To(Equal(0.001))
	})

	It("should reject cycles", func() {
		_, err := layout.LoadSchema(strings.NewReader(`
layouts:
  - name: Node
    fields:
      - {name: Next, offset: 0, kind: pointer, child: Node}
`))
		Expect(errors.Is(err, layout.ErrInvalidLayout)).To(BeTrue())
	})

	It("should reject unknown children", func() {
		_, err := layout.LoadSchema(strings.NewReader(`
layouts:
  - name: Actor
    fields:
      - {name: MainHand, offset: 0, kind: record, child: Weapon}
`))
		Expect(err).To(MatchError(ContainSubstring("unknown layout")))
	})

	It("should reject unknown kinds", func() {
		_, err := layout.LoadSchema(strings.NewReader(`
layouts:
  - name: Actor
    fields:
      - {name: Id, offset: 0, width: 4, kind: integer}
`))
		Expect(errors.Is(err, layout.ErrInvalidLayout)).To(BeTrue())
	})

	It("should reject dotted field names", func() {
		_, err := layout.LoadSchema(strings.NewReader(`
layouts:
  - name: Actor
    fields:
      - {name: Pos.X, offset: 0, width: 4, kind: float}
`))
		Expect(errors.Is(err, layout.ErrInvalidLayout)).To(BeTrue())
		Expect(err).To(MatchError(ContainSubstring("Pos.X")))
	})

	It("should reject malformed offsets", func() {
		_, err := layout.LoadSchema(strings.NewReader(`
layouts:
  - name: Actor
    fields:
      - {name: Id, offset: 0xZZ, width: 4, kind: int}
`))
		Expect(err).To(HaveOccurred())
	})

	It("should honour big endian schemas", func() {
		s, err := layout.LoadSchema(strings.NewReader(`
byte_order: big
layouts:
  - name: Header
    fields:
      - {name: Magic, offset: 0, width: 4, kind: uint}
`))
		Expect(err).ToNot(HaveOccurred())

		h, _ := s.Layout("Header")
		Expect(h.Order().String()).To(Equal("BigEndian"))
	})
})
