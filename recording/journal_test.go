package recording_test

import (
	"context"
	"database/sql"
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/memsync/binder"
	"github.com/sarchlab/memsync/layout"
	"github.com/sarchlab/memsync/recording"
	"github.com/sarchlab/memsync/remote"
	"github.com/sarchlab/memsync/timing"
)

var statsLayout = layout.MakeBuilder("Stats").
	WithUint("Level", 0x00, 2).
	WithFloat32("Hp", 0x04).
	MustBuild()

const statsBase = remote.Address(0x2000)

var _ = Describe("Journal", func() {
	var (
		db      *sql.DB
		rec     recording.Recorder
		journal *recording.Journal
		storage *remote.Storage
		b       *binder.Binder
		group   *timing.Group
	)

	BeforeEach(func() {
		dir, err := os.MkdirTemp("", "journal")
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)

		db, err = sql.Open("sqlite3", filepath.Join(dir, "j.sqlite3"))
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(db.Close)

		rec = recording.NewWithDB(db)
		journal = recording.NewJournal(rec, "session-1")

		storage = remote.NewStorage(0x10000)
		b, err = binder.Bind(storage, statsLayout, remote.Fixed(statsBase),
			binder.WithName("player"),
			binder.WithHooks(journal))
		Expect(err).ToNot(HaveOccurred())

		group = timing.NewGroup()
		group.Add("player", b)
		group.AcceptHook(journal)
	})

	reader := func() *recording.JournalReader {
		rec.Flush()

		return recording.NewJournalReader(db)
	}

	ctx := context.Background()

	It("should create its tables", func() {
		Expect(rec.ListTables()).To(ConsistOf(
			recording.ChangeTable, recording.FaultTable, recording.TickTable))
		Expect(journal.Session()).To(Equal("session-1"))
	})

	It("should record remote and local changes with their tick", func() {
		group.Tick()

		raw := make([]byte, 2)
		binary.LittleEndian.PutUint16(raw, 90)
		Expect(storage.Write(statsBase, raw)).To(Succeed())
		group.Tick()

		Expect(binder.Set[uint16](b, "Level", 80)).To(Succeed())

		rows, _, err := reader().Changes(ctx, recording.Filter{})
		Expect(err).ToNot(HaveOccurred())
		Expect(rows).To(HaveLen(2))

		remoteChange := rows[0]
		Expect(remoteChange.Session).To(Equal("session-1"))
		Expect(remoteChange.Tick).To(Equal(uint64(2)))
		Expect(remoteChange.Binder).To(Equal("player"))
		Expect(remoteChange.Path).To(Equal("Level"))
		Expect(remoteChange.Old).To(Equal("0"))
		Expect(remoteChange.New).To(Equal("90"))
		Expect(remoteChange.Source).To(Equal("remote"))

		localChange := rows[1]
		Expect(localChange.New).To(Equal("80"))
		Expect(localChange.Source).To(Equal("local"))
	})

	It("should record faults", func() {
		storage.Unmap(statsBase+4, 4)
		group.Tick()

		rows, _, err := reader().Faults(ctx, recording.Filter{Session: "session-1"})
		Expect(err).ToNot(HaveOccurred())
		Expect(rows).To(HaveLen(1))

		f := rows[0]
		Expect(f.Path).To(Equal("Hp"))
		Expect(f.Tick).To(Equal(uint64(1)))
		Expect(f.Error).To(ContainSubstring("not mapped"))
	})

	It("should summarize ticks", func() {
		storage.Unmap(statsBase+4, 4)
		group.Tick()
		group.Tick()

		rows, total, err := reader().Ticks(ctx, recording.Filter{})
		Expect(err).ToNot(HaveOccurred())
		Expect(total).To(Equal(2))
		Expect(rows[1].Tick).To(Equal(uint64(2)))
		Expect(rows[1].Faults).To(Equal(1))
	})
})
