// Package timing drives ticks. A Group advances every registered member by
// one tick; a Driver calls a Group at a fixed frequency on the wall clock.
package timing

import (
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"
)

// Freq defines the type of frequency
type Freq float64

// Defines the unit of frequency
const (
	Hz  Freq = 1
	KHz Freq = 1e3
)

// Period returns the time between two consecutive ticks
func (f Freq) Period() time.Duration {
	if f <= 0 || math.IsNaN(float64(f)) {
		log.Panic("frequency must be positive")
	}

	return time.Duration(float64(time.Second) / float64(f))
}

// NCyclesLater returns the duration of n ticks.
func (f Freq) NCyclesLater(n int) time.Duration {
	return time.Duration(n) * f.Period()
}

// Cycles returns the number of whole ticks that fit in d.
func (f Freq) Cycles(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}

	return uint64(d / f.Period())
}

func (f Freq) String() string {
	if f >= KHz {
		return strconv.FormatFloat(float64(f/KHz), 'f', -1, 64) + "kHz"
	}

	return strconv.FormatFloat(float64(f), 'f', -1, 64) + "Hz"
}

// ParseFreq parses frequencies such as "60", "60Hz" or "1.5kHz".
func ParseFreq(s string) (Freq, error) {
	s = strings.TrimSpace(s)
	unit := Hz
	lower := strings.ToLower(s)

	switch {
	case strings.HasSuffix(lower, "khz"):
		unit = KHz
		s = s[:len(s)-3]
	case strings.HasSuffix(lower, "hz"):
		s = s[:len(s)-2]
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) {
		return 0, fmt.Errorf("timing: invalid frequency %q", s)
	}

	return Freq(v) * unit, nil
}
