package offsets_test

import (
	"encoding/binary"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/memsync/offsets"
	"github.com/sarchlab/memsync/remote"
)

var _ = Describe("World", func() {
	It("should load the example table", func() {
		w, err := offsets.LoadWorldFile("../configs/world.example.yaml")
		Expect(err).ToNot(HaveOccurred())
		Expect(w.Module).To(Equal(remote.Address(0x140000000)))
		Expect(w.Time).To(Equal(offsets.Location{0x1D8A6E8, 0x1608}))
		Expect(w.CameraPosition).To(HaveLen(2))
	})

	It("should reject missing locations", func() {
		_, err := offsets.LoadWorld(strings.NewReader(`
module: 0x1000
locations:
  time: [0x10, 0x8]
`))
		Expect(errors.Is(err, offsets.ErrInvalidWorld)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("camera_angle"))
	})

	It("should reject unknown locations", func() {
		_, err := offsets.LoadWorld(strings.NewReader(`
locations:
  sunlight: [0x10]
`))
		Expect(errors.Is(err, offsets.ErrInvalidWorld)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("sunlight"))
	})

	It("should reject unknown keys", func() {
		_, err := offsets.LoadWorld(strings.NewReader("modules: 0x10\n"))
		Expect(errors.Is(err, offsets.ErrInvalidWorld)).To(BeTrue())
	})

	It("should resolve a location through its pointer", func() {
		storage := remote.NewStorage(0x10000)

		ptr := make([]byte, 8)
		binary.LittleEndian.PutUint64(ptr, 0x4000)
		Expect(storage.Write(0x1010, ptr)).To(Succeed())

		w := &offsets.World{Module: 0x1000, Time: offsets.Location{0x10, 0x8}}

		addr, err := w.Resolve(w.Time).Resolve(storage)
		Expect(err).ToNot(HaveOccurred())
		Expect(addr).To(Equal(remote.Address(0x4008)))
		Expect(w.Time.String()).To(Equal("[0x10 0x8]"))
	})
})
