// Package navigation implements the Bit Synchronizer & Navigation Decoder:
// 20 ms bit-boundary detection, TLM preamble frame sync,
// IS-GPS-200 parity, and subframe 1/2/3(/4/5) unpacking into a published
// Ephemeris.
package navigation

import (
	"github.com/charmbracelet/log"

	"github.com/openskynav/gogps/config"
)

const bitsPerNavBit = 20     // 1 ms correlator ticks per 20 ms nav bit
const preambleBits = 8
const subframeBitLen = 300

var tlmPreamble = [preambleBits]byte{1, 0, 0, 0, 1, 0, 1, 1} // 0x8B

// Decoder runs one channel's bit/frame synchronizer and subframe
// assembler. It is driven by 1 ms prompt-correlator samples (I_P) pushed
// from the tracker; it is not safe for concurrent use by more than one
// goroutine (each Channel owns exactly one Decoder).
type Decoder struct {
	prn  int
	conf config.NavConf

	// bit sync
	bitSynced    bool
	prevSign     int8
	transitions  [bitsPerNavBit]int
	totalTrans   int
	tickInBit    int
	bitBoundary  int
	windowTicks  int

	// 20 ms bit integration
	bitAccum    float64
	bitAccCount int

	// frame sync / subframe assembly
	bits       []byte // ring of decoded nav bits (0/1), oldest-first
	bitsBase   int    // absolute bit index of bits[0]
	totalBits  int
	frameSync bool
	inverted  bool
	nextSfBit int

	bitsSinceSubframe int

	store Store
	eph   Ephemeris

	// OnSubframe, if set, is called after every successfully decoded
	// subframe (used by diagnostics / the TUI); id is the IS-GPS-200
	// subframe id 1..5.
	OnSubframe func(id int)
}

// New returns a Decoder for the given PRN, tuned by conf.
func New(prn int, conf config.NavConf) *Decoder {
	return &Decoder{prn: prn, conf: conf, eph: Ephemeris{PRN: prn}}
}

// Synced reports whether the 20 ms bit boundary has been established.
func (d *Decoder) Synced() bool { return d.bitSynced }

// FrameSynced reports whether subframe assembly is underway.
func (d *Decoder) FrameSynced() bool { return d.frameSync }

// Ephemeris returns the most recently published ephemeris, or nil.
func (d *Decoder) Ephemeris() *Ephemeris { return d.store.Load() }

// BitsSinceSubframe returns the count of nav bits decoded since the start
// of the current (possibly still-assembling) subframe, used by the
// measurement builder to reconstruct transmit time.
func (d *Decoder) BitsSinceSubframe() int { return d.bitsSinceSubframe }

// TickInBit returns the correlator-tick offset within the current nav
// bit (0..19, counted from the bit boundary), the whole-millisecond
// component of transmit time.
func (d *Decoder) TickInBit() int {
	return (d.tickInBit - d.bitBoundary + bitsPerNavBit) % bitsPerNavBit
}

// FeedPrompt is called once per 1 ms tick with the channel's prompt
// correlator output I_P. It drives bit-boundary histogramming before
// sync, and bit integration/subframe assembly after.
func (d *Decoder) FeedPrompt(ip float64) {
	if !d.bitSynced {
		d.feedBitSync(ip)
		return
	}
	d.integrateBit(ip)
}

// feedBitSync histograms the positions
// (mod 20 ms) of sign transitions in I_P over a window (default 2 s); the
// bin with overwhelming majority (> confidence threshold, default 70%) is
// declared the bit boundary.
func (d *Decoder) feedBitSync(ip float64) {
	sign := int8(1)
	if ip < 0 {
		sign = -1
	}
	if d.windowTicks == 0 {
		d.prevSign = sign
	} else if sign != d.prevSign {
		d.transitions[d.tickInBit]++
		d.totalTrans++
		d.prevSign = sign
	}

	d.tickInBit = (d.tickInBit + 1) % bitsPerNavBit
	d.windowTicks++

	windowMsec := d.conf.BitSyncWindowSec
	if windowMsec <= 0 {
		windowMsec = 2.0
	}
	limit := int(windowMsec * 1000)

	if d.windowTicks < limit {
		return
	}

	confidence := d.conf.BitSyncConfidence
	if confidence <= 0 {
		confidence = 0.7
	}

	if d.totalTrans == 0 {
		d.resetBitSyncWindow()
		return
	}

	best, bestCount := 0, 0
	for i, c := range d.transitions {
		if c > bestCount {
			bestCount = c
			best = i
		}
	}

	if float64(bestCount)/float64(d.totalTrans) > confidence {
		d.bitBoundary = best
		d.bitSynced = true
		log.Infof("prn %d: bit sync established, boundary=%d", d.prn, d.bitBoundary)
		return
	}

	d.resetBitSyncWindow()
}

func (d *Decoder) resetBitSyncWindow() {
	d.transitions = [bitsPerNavBit]int{}
	d.totalTrans = 0
	d.windowTicks = 0
}

// integrateBit sums 20 consecutive I_P samples aligned to the boundary
// into one ±1 nav bit. tickInBit keeps
// cycling mod 20 from the bit-sync phase, so it lands on bitBoundary
// exactly every 20 ticks with no realignment needed.
func (d *Decoder) integrateBit(ip float64) {
	d.bitAccum += ip
	d.bitAccCount++
	d.tickInBit = (d.tickInBit + 1) % bitsPerNavBit

	if d.tickInBit != d.bitBoundary {
		return
	}
	if d.bitAccCount < bitsPerNavBit {
		// partial bit left over from the moment sync was declared
		d.bitAccum = 0
		d.bitAccCount = 0
		return
	}

	bit := byte(1)
	if d.bitAccum < 0 {
		bit = 0
	}
	d.bitAccum = 0
	d.bitAccCount = 0

	d.pushBit(bit)
}

func (d *Decoder) pushBit(bit byte) {
	d.bits = append(d.bits, bit)
	d.totalBits++
	d.bitsSinceSubframe++

	const keep = 1200
	if len(d.bits) > keep {
		drop := len(d.bits) - keep
		d.bits = d.bits[drop:]
		d.bitsBase += drop
	}

	if !d.frameSync {
		d.tryFrameSync()
		return
	}

	if d.totalBits >= d.nextSfBit+subframeBitLen {
		d.decodeNextSubframe()
	}
}

// tryFrameSync looks for the 8-bit
// TLM preamble (normal or inverted) recurring at 300-bit (6 s) spacing,
// confirmed by two consecutive occurrences and subframe parity.
func (d *Decoder) tryFrameSync() {
	need := preambleBits + subframeBitLen + preambleBits
	if len(d.bits) < need {
		return
	}
	start := len(d.bits) - need

	normalFirst := matches(d.bits[start:start+preambleBits], tlmPreamble, false)
	normalSecond := matches(d.bits[start+subframeBitLen:start+subframeBitLen+preambleBits], tlmPreamble, false)
	invFirst := matches(d.bits[start:start+preambleBits], tlmPreamble, true)
	invSecond := matches(d.bits[start+subframeBitLen:start+subframeBitLen+preambleBits], tlmPreamble, true)

	var inverted bool
	switch {
	case normalFirst && normalSecond:
		inverted = false
	case invFirst && invSecond:
		inverted = true
	default:
		return
	}

	subframe := extractSubframe(d.bits[start:start+subframeBitLen], inverted)
	if !checkSubframeParity(subframe) {
		return
	}

	d.frameSync = true
	d.inverted = inverted
	d.nextSfBit = d.bitsBase + start
	log.Infof("prn %d: frame sync established (inverted=%v)", d.prn, inverted)
	d.applySubframe(subframe)
	d.nextSfBit += subframeBitLen
	d.bitsSinceSubframe = 0
}

func (d *Decoder) decodeNextSubframe() {
	offset := d.nextSfBit - d.bitsBase
	if offset < 0 || offset+subframeBitLen > len(d.bits) {
		// buffer underrun; resync on the next clean preamble occurrence
		d.frameSync = false
		return
	}
	subframe := extractSubframe(d.bits[offset:offset+subframeBitLen], d.inverted)
	if !checkSubframeParity(subframe) {
		log.Warnf("prn %d: subframe parity failure, discarding subframe", d.prn)
		d.nextSfBit += subframeBitLen
		d.bitsSinceSubframe = 0
		return
	}
	d.applySubframe(subframe)
	d.nextSfBit += subframeBitLen
	d.bitsSinceSubframe = 0
}

func (d *Decoder) applySubframe(buf []byte) {
	id := subframeID(buf)
	d.eph.TOW = towCount(buf) * 6

	switch id {
	case 1:
		decodeSubframe1(buf, &d.eph)
	case 2:
		decodeSubframe2(buf, &d.eph)
	case 3:
		decodeSubframe3(buf, &d.eph)
	case 4:
		s := decodeSubframe4(buf)
		if len(s.Unhealthy) > 0 {
			log.Warnf("prn %d: subframe-4 page 25: unhealthy SVs %v", d.prn, s.Unhealthy)
		}
	case 5:
		decodeSubframe5(buf)
	default:
		log.Warnf("prn %d: invalid subframe id %d", d.prn, id)
	}

	if id >= 1 && id <= 3 && d.eph.Complete() {
		d.store.Publish(&d.eph)
		log.Infof("prn %d: ephemeris published (iode=%d iodc=%d)", d.prn, d.eph.IODE, d.eph.IODC)
	}

	if d.OnSubframe != nil {
		d.OnSubframe(id)
	}
}

// extractSubframe copies 300 raw bits into a fresh buffer, applying the
// sign-ambiguity inversion when the frame was detected on the inverted
// preamble.
func extractSubframe(bits []byte, inverted bool) []byte {
	out := make([]byte, subframeBitLen)
	for i, b := range bits {
		if inverted {
			out[i] = 1 - b
		} else {
			out[i] = b
		}
	}
	return out
}

func matches(bits []byte, pattern [preambleBits]byte, inverted bool) bool {
	for i, b := range bits {
		want := pattern[i]
		if inverted {
			want = 1 - want
		}
		if b != want {
			return false
		}
	}
	return true
}
