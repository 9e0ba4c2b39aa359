package home_test

import (
	"encoding/binary"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/memsync/cell"
	"github.com/sarchlab/memsync/home"
	"github.com/sarchlab/memsync/layout"
	"github.com/sarchlab/memsync/offsets"
	"github.com/sarchlab/memsync/remote"
	"github.com/sarchlab/memsync/timing"
)

const (
	module      = remote.Address(0x1000)
	timeBlock   = remote.Address(0x4000)
	placeBlock  = remote.Address(0x5000)
	filterBlock = remote.Address(0x6000)
	cameraBlock = remote.Address(0x7000)
	gposeBlock  = remote.Address(0x8000)
)

var world = &offsets.World{
	Module:         module,
	Time:           offsets.Location{0x10, 0x8},
	Territory:      offsets.Location{0x20, 0x4},
	Weather:        offsets.Location{0x30, 0x27},
	CameraAngle:    offsets.Location{0x40, 0x130},
	CameraPan:      offsets.Location{0x40, 0x150},
	CameraRotation: offsets.Location{0x40, 0x160},
	CameraZoom:     offsets.Location{0x40, 0x114},
	CameraMinZoom:  offsets.Location{0x40, 0x118},
	CameraMaxZoom:  offsets.Location{0x40, 0x11C},
	CameraFov:      offsets.Location{0x40, 0x120},
	CameraYMin:     offsets.Location{0x40, 0x14C},
	CameraYMax:     offsets.Location{0x40, 0x148},
	CameraPosition: offsets.Location{0x50, 0xA0},
}

var (
	clearSkies = home.Weather{Key: 1, Name: "Clear Skies"}
	fairSkies  = home.Weather{Key: 2, Name: "Fair Skies"}
	rain       = home.Weather{Key: 7, Name: "Rain"}

	territories = home.TerritoryTable{
		132: {
			Key:      132,
			Region:   "The Black Shroud",
			Place:    "New Gridania",
			Weathers: []home.Weather{clearSkies, fairSkies, rain},
		},
		129: {
			Key:      129,
			Region:   "La Noscea",
			Place:    "Limsa Lominsa Lower Decks",
			Weathers: []home.Weather{clearSkies},
		},
	}
)

func putPointer(s *remote.Storage, at, target remote.Address) {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint64(raw, uint64(target))
	Expect(s.Write(at, raw)).To(Succeed())
}

func putU32(s *remote.Storage, at remote.Address, v uint32) {
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint32(raw, v)
	Expect(s.Write(at, raw)).To(Succeed())
}

func putF32(s *remote.Storage, at remote.Address, values ...float32) {
	for i, v := range values {
		putU32(s, at+remote.Address(4*i), math.Float32bits(v))
	}
}

func getU32(s *remote.Storage, at remote.Address) uint32 {
	raw, err := s.Read(at, 4)
	Expect(err).ToNot(HaveOccurred())

	return binary.LittleEndian.Uint32(raw)
}

func getF32(s *remote.Storage, at remote.Address) float32 {
	return math.Float32frombits(getU32(s, at))
}

// writeFailing refuses writes once failWrites is set.
type writeFailing struct {
	*remote.Storage
	failWrites bool
}

func (w *writeFailing) Write(addr remote.Address, data []byte) error {
	if w.failWrites {
		return remote.ErrUnmapped
	}

	return w.Storage.Write(addr, data)
}

var _ = Describe("Controller", func() {
	var (
		storage *remote.Storage
		c       *home.Controller
	)

	BeforeEach(func() {
		storage = remote.NewStorage(0x10000)
		putPointer(storage, module+0x10, timeBlock)
		putPointer(storage, module+0x20, placeBlock)
		putPointer(storage, module+0x30, filterBlock)
		putPointer(storage, module+0x40, cameraBlock)
		putPointer(storage, module+0x50, gposeBlock)

		putU32(storage, placeBlock+0x4, 132)
		Expect(storage.Write(filterBlock+0x27, []byte{2, 2})).To(Succeed())
		putF32(storage, cameraBlock+0x130, 1, 2)
		putF32(storage, cameraBlock+0x114, 6)

		var err error
		c, err = home.New(storage, world, territories)
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		c.Dispose()
	})

	It("should look up the current territory and weather", func() {
		t, ok := c.Territory()
		Expect(ok).To(BeTrue())
		Expect(t.Title()).To(Equal("The Black Shroud - New Gridania"))

		w, ok := c.Weather()
		Expect(ok).To(BeTrue())
		Expect(w).To(Equal(fairSkies))
	})

	It("should follow territory changes", func() {
		putU32(storage, placeBlock+0x4, 129)
		res := c.Tick()
		Expect(res.Changed).To(ContainElement("Territory"))

		t, ok := c.Territory()
		Expect(ok).To(BeTrue())
		Expect(t.Place).To(Equal("Limsa Lominsa Lower Decks"))

		_, ok = c.Weather()
		Expect(ok).To(BeFalse())

		putU32(storage, placeBlock+0x4, 9999)
		c.Tick()
		_, ok = c.Territory()
		Expect(ok).To(BeFalse())
	})

	It("should force the weather as a doubled byte", func() {
		Expect(rain.Value()).To(Equal(uint16(0x0707)))
		Expect(c.SetWeather(rain)).To(Succeed())

		raw, err := storage.Read(filterBlock+0x27, 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(raw).To(Equal([]byte{7, 7}))

		w, ok := c.Weather()
		Expect(ok).To(BeTrue())
		Expect(w).To(Equal(rain))
	})

	It("should refuse scene writes while not observing", func() {
		Expect(c.Observing()).To(BeFalse())
		Expect(c.SetTime(600)).To(MatchError(home.ErrNotObserving))
		Expect(c.SetCameraAngleX(3)).To(MatchError(home.ErrNotObserving))
	})

	Context("when observing", func() {
		BeforeEach(func() {
			Expect(c.SetObserving(true)).To(Succeed())
		})

		It("should load the camera", func() {
			Expect(c.Observing()).To(BeTrue())
			Expect(c.CameraAngle().Get()).To(Equal(layout.Vector2{X: 1, Y: 2}))
			Expect(c.CameraZoom().Get()).To(Equal(float32(6)))
		})

		It("should combine moon and time", func() {
			Expect(c.SetMoon(3)).To(Succeed())
			Expect(c.SetTime(600)).To(Succeed())

			Expect(c.Moon()).To(Equal(3))
			Expect(c.Time()).To(Equal(600))
			Expect(getU32(storage, timeBlock+0x8)).To(Equal(uint32(3*86400 + 600*60)))
		})

		It("should link the camera both ways", func() {
			putF32(storage, cameraBlock+0x114, 12)
			res := c.Tick()
			Expect(res.Changed).To(ContainElement("CameraZoom"))
			Expect(c.CameraZoom().Get()).To(Equal(float32(12)))

			c.CameraFov().Set(0.75)
			Expect(getF32(storage, cameraBlock+0x120)).To(Equal(float32(0.75)))

			c.CameraPan().Set(layout.Vector2{X: 0.5, Y: -0.5})
			Expect(getF32(storage, cameraBlock+0x154)).To(Equal(float32(-0.5)))

			res = c.Tick()
			Expect(res.Changed).To(BeEmpty())
		})

		It("should adopt a camera angle moved by the target", func() {
			putF32(storage, cameraBlock+0x130, 4, 5)
			c.Tick()

			Expect(c.CameraAngle().Get()).To(Equal(layout.Vector2{X: 4, Y: 5}))
		})

		It("should hold a locked camera angle", func() {
			Expect(c.SetCameraAngleY(2.5)).To(Succeed())
			c.LockCameraAngle(true)
			Expect(c.CameraAngleLocked()).To(BeTrue())

			putF32(storage, cameraBlock+0x130, 4, 5)
			c.Tick()

			Expect(c.CameraAngle().Get()).To(Equal(layout.Vector2{X: 1, Y: 2.5}))
			Expect(getF32(storage, cameraBlock+0x130)).To(Equal(float32(1)))
			Expect(getF32(storage, cameraBlock+0x134)).To(Equal(float32(2.5)))

			res := c.Tick()
			Expect(res.Changed).To(BeEmpty())
		})

		It("should keep the error of a failed camera angle write-back", func() {
			acc := &writeFailing{Storage: storage}
			held, err := home.New(acc, world, territories)
			Expect(err).ToNot(HaveOccurred())
			defer held.Dispose()

			Expect(held.SetObserving(true)).To(Succeed())
			held.LockCameraAngle(true)
			Expect(held.Err()).ToNot(HaveOccurred())

			putF32(storage, cameraBlock+0x130, 4, 5)
			acc.failWrites = true
			held.Tick()

			Expect(errors.Is(held.Err(), remote.ErrUnmapped)).To(BeTrue())
			Expect(held.CameraAngle().Get()).To(Equal(layout.Vector2{X: 1, Y: 2}))
		})

		It("should reset the time and release the camera on leave", func() {
			Expect(c.SetTime(720)).To(Succeed())
			Expect(c.SetObserving(false)).To(Succeed())

			Expect(c.Observing()).To(BeFalse())
			Expect(getU32(storage, timeBlock+0x8)).To(Equal(uint32(0)))

			c.CameraZoom().Set(99)
			Expect(getF32(storage, cameraBlock+0x114)).To(Equal(float32(6)))

			putF32(storage, cameraBlock+0x114, 30)
			res := c.Tick()
			Expect(res.Changed).To(BeEmpty())
		})

		It("should reset the time when disposed", func() {
			Expect(c.SetTime(720)).To(Succeed())
			c.Dispose()

			Expect(c.Disposed()).To(BeTrue())
			Expect(getU32(storage, timeBlock+0x8)).To(Equal(uint32(0)))
			Expect(c.SetObserving(true)).To(MatchError(cell.ErrDisposed))
		})
	})

	It("should fail to observe when the camera is unreachable", func() {
		putPointer(storage, module+0x40, 0)

		err := c.SetObserving(true)
		Expect(remote.IsAccessFault(err)).To(BeTrue())
		Expect(c.Observing()).To(BeFalse())
	})

	DescribeTable("camera limits",
		func(unlock bool, maxZoom, minZoom, yMin, yMax float32) {
			Expect(c.UnlockCamera(unlock)).To(Succeed())

			Expect(getF32(storage, cameraBlock+0x11C)).To(Equal(maxZoom))
			Expect(getF32(storage, cameraBlock+0x118)).To(Equal(minZoom))
			Expect(getF32(storage, cameraBlock+0x14C)).To(Equal(yMin))
			Expect(getF32(storage, cameraBlock+0x148)).To(Equal(yMax))
		},
		Entry("unlocked", true, float32(1000), float32(0), float32(1.5), float32(-1.5)),
		Entry("locked", false, float32(20), float32(1.75), float32(1.25), float32(-1.4)),
	)

	It("should report camera limit faults", func() {
		putPointer(storage, module+0x40, 0)

		err := c.UnlockCamera(true)
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, remote.ErrNullPointer)).To(BeTrue())
	})

	It("should tick in a group", func() {
		g := timing.NewGroup()
		g.Add("home", c)

		putU32(storage, placeBlock+0x4, 129)
		rep := g.Tick()
		Expect(rep.Changed).To(Equal([]string{"home/Territory"}))

		c.Dispose()
		rep = g.Tick()
		Expect(rep.Dropped).To(Equal([]string{"home"}))
	})
})

var _ = Describe("New", func() {
	It("should fail when the territory cannot be read", func() {
		storage := remote.NewStorage(0x10000)

		_, err := home.New(storage, world, territories)
		Expect(remote.IsAccessFault(err)).To(BeTrue())
	})
})
