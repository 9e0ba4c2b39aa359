package monitoring

import (
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/memsync/binder"
	"github.com/sarchlab/memsync/layout"
	"github.com/sarchlab/memsync/remote"
	"github.com/sarchlab/memsync/timing"
)

var statsLayout = layout.MakeBuilder("Stats").
	WithUint("Level", 0x00, 2).
	WithFloat32("Hp", 0x04).
	MustBuild()

const statsBase = remote.Address(0x2000)

var _ = Describe("Monitor", func() {
	var (
		m       *Monitor
		storage *remote.Storage
		b       *binder.Binder
		group   *timing.Group
	)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		m.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		return rec
	}

	decode := func(rec *httptest.ResponseRecorder, v any) {
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(json.Unmarshal(rec.Body.Bytes(), v)).To(Succeed())
	}

	fieldPath := func(route, binderName, field string) string {
		req, err := json.Marshal(fieldReq{BinderName: binderName, FieldName: field})
		Expect(err).ToNot(HaveOccurred())

		return route + url.PathEscape(string(req))
	}

	setLevel := func(v uint16) {
		raw := make([]byte, 2)
		binary.LittleEndian.PutUint16(raw, v)
		Expect(storage.Write(statsBase, raw)).To(Succeed())
	}

	BeforeEach(func() {
		storage = remote.NewStorage(0x10000)
		setLevel(50)

		var err error
		b, err = binder.Bind(storage, statsLayout, remote.Fixed(statsBase),
			binder.WithName("player"))
		Expect(err).ToNot(HaveOccurred())

		group = timing.NewGroup()
		group.Add("player", b)

		m = NewMonitor()
		m.RegisterGroup(group)
		m.RegisterBinder(b)
	})

	It("should replace reserved port numbers", func() {
		Expect(NewMonitor().WithPortNumber(80).portNumber).To(Equal(0))
		Expect(NewMonitor().WithPortNumber(8080).portNumber).To(Equal(8080))
	})

	It("should list live binders", func() {
		var names []string
		decode(get("/api/list_binders"), &names)
		Expect(names).To(Equal([]string{"player"}))

		b.Dispose()

		decode(get("/api/list_binders"), &names)
		Expect(names).To(BeEmpty())
		Expect(get("/api/snapshot/player").Code).To(Equal(http.StatusNotFound))
	})

	It("should describe the fields of a binder", func() {
		var d binderDetail
		decode(get("/api/snapshot/player"), &d)

		Expect(d.Name).To(Equal("player"))
		Expect(d.Layout).To(Equal("Stats"))
		Expect(d.Base).To(Equal(statsBase.String()))
		Expect(d.Fields).To(HaveLen(2))
		Expect(d.Fields[0].Path).To(Equal("Level"))
		Expect(d.Fields[0].Value).To(Equal("50"))
		Expect(d.Fields[0].State).To(Equal("Bound"))
		Expect(d.Fields[1].Kind).To(Equal("float"))
	})

	It("should serialize binder details", func() {
		rec := get("/api/binder/player")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("Level"))

		Expect(get("/api/binder/npc").Code).To(Equal(http.StatusNotFound))
	})

	It("should tick the group on request", func() {
		setLevel(51)

		var rsp reportRsp
		decode(get("/api/tick"), &rsp)
		Expect(rsp.Tick).To(Equal(uint64(1)))
		Expect(rsp.Changed).To(Equal([]string{"player/Level"}))
		Expect(rsp.Faults).To(BeEmpty())

		var now nowRsp
		decode(get("/api/now"), &now)
		Expect(now.Now).To(Equal(uint64(1)))

		var last reportRsp
		decode(get("/api/report"), &last)
		Expect(last).To(Equal(rsp))
	})

	It("should report faults of a tick", func() {
		storage.Unmap(statsBase+4, 4)

		var rsp reportRsp
		decode(get("/api/tick"), &rsp)
		Expect(rsp.Faults).To(HaveLen(1))
		Expect(rsp.Faults[0].Path).To(Equal("player/Hp"))
	})

	It("should have no report before the first tick", func() {
		Expect(get("/api/report").Code).To(Equal(http.StatusNoContent))
	})

	It("should read a value from the target", func() {
		setLevel(70)

		var rsp valueRsp
		decode(get(fieldPath("/api/value/", "player", "Level")), &rsp)
		Expect(rsp.Text).To(Equal("70"))

		cached, err := binder.Get[uint16](b, "Level")
		Expect(err).ToNot(HaveOccurred())
		Expect(cached).To(Equal(uint16(50)))

		Expect(get(fieldPath("/api/value/", "player", "Mp")).Code).
			To(Equal(http.StatusNotFound))
	})

	It("should reject malformed field requests", func() {
		Expect(get("/api/value/" + url.PathEscape("{broken")).Code).
			To(Equal(http.StatusBadRequest))
	})

	It("should refuse to pause without a driver", func() {
		Expect(get("/api/pause").Code).To(Equal(http.StatusMethodNotAllowed))
	})

	It("should pause and continue the driver", func() {
		d := timing.NewDriver(group, 30*timing.Hz)
		m.RegisterDriver(d)

		Expect(get("/api/pause").Code).To(Equal(http.StatusOK))
		Expect(d.Paused()).To(BeTrue())

		var now nowRsp
		decode(get("/api/now"), &now)
		Expect(now.Paused).To(BeTrue())

		Expect(get("/api/continue").Code).To(Equal(http.StatusOK))
		Expect(d.Paused()).To(BeFalse())
	})

	It("should list progress bars", func() {
		bar := m.CreateProgressBar("ticks", 10)
		bar.IncrementInProgress(3)
		bar.MoveInProgressToFinished(2)

		var bars []ProgressSnapshot
		decode(get("/api/progress"), &bars)
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Name).To(Equal("ticks"))
		Expect(bars[0].Finished).To(Equal(uint64(2)))
		Expect(bars[0].InProgress).To(Equal(uint64(1)))

		m.CompleteProgressBar(bar)
		decode(get("/api/progress"), &bars)
		Expect(bars).To(BeEmpty())
	})

	It("should report its own resources", func() {
		var rsp resourceRsp
		decode(get("/api/resource"), &rsp)
		Expect(rsp.PID).To(Equal(os.Getpid()))
		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})

	It("should report the target resources", func() {
		Expect(get("/api/target").Code).To(Equal(http.StatusNotFound))

		m.RegisterTarget(os.Getpid())

		var rsp resourceRsp
		decode(get("/api/target"), &rsp)
		Expect(rsp.PID).To(Equal(os.Getpid()))
	})

	It("should serve the page", func() {
		rec := get("/")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(HavePrefix("<!DOCTYPE html>"))
	})
})
