package timing_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/memsync/timing"
)

var _ = Describe("Freq", func() {
	It("should get period", func() {
		var f = 50 * timing.Hz
		Expect(f.Period()).To(Equal(20 * time.Millisecond))
	})

	It("should panic on a zero frequency", func() {
		Expect(func() { timing.Freq(0).Period() }).To(Panic())
	})

	It("should get the n cycles later", func() {
		var f = 1 * timing.KHz
		Expect(f.NCyclesLater(12)).To(Equal(12 * time.Millisecond))
	})

	It("should count whole cycles", func() {
		var f = 10 * timing.Hz
		Expect(f.Cycles(250 * time.Millisecond)).To(Equal(uint64(2)))
		Expect(f.Cycles(-time.Second)).To(Equal(uint64(0)))
	})

	DescribeTable("parsing",
		func(in string, want timing.Freq) {
			f, err := timing.ParseFreq(in)
			Expect(err).ToNot(HaveOccurred())
			Expect(f).To(BeNumerically("~", want, 1e-9))
		},
		Entry("bare number", "60", 60*timing.Hz),
		Entry("hertz", "30Hz", 30*timing.Hz),
		Entry("kilohertz", "1.5kHz", 1500*timing.Hz),
		Entry("spaces", " 20 hz ", 20*timing.Hz),
	)

	It("should reject bad frequencies", func() {
		for _, in := range []string{"", "fast", "-1", "0Hz"} {
			_, err := timing.ParseFreq(in)
			Expect(err).To(HaveOccurred(), in)
		}
	})

	It("should print", func() {
		Expect((60 * timing.Hz).String()).To(Equal("60Hz"))
		Expect((2 * timing.KHz).String()).To(Equal("2kHz"))
	})
})
