// Package replica builds and caches the C/A Gold code replica for every
// GPS PRN, upsampled to the receiver's sampling rate, together with its
// forward DFT. The bank is built once at startup and shared, read-only,
// by every acquisition attempt and every tracking channel.
package replica

import (
	"fmt"

	"github.com/openskynav/gogps/constants"
)

// g2Delay is the standard IS-GPS-200 Table 3-Ia G2 shift-register delay,
// in chips, for PRN 1..32.
var g2Delay = [constants.MaxPRN]int{
	5, 6, 7, 8, 17, 18, 139, 140, 141, 251,
	252, 254, 255, 256, 257, 258, 469, 470, 471, 472,
	473, 474, 509, 512, 513, 514, 515, 516, 859, 860,
	861, 862,
}

// g1Taps and g2Taps are the 0-indexed feedback tap positions of the two
// maximal-length 10-stage LFSRs (G1: x^10+x^3+1, G2: x^10+x^9+x^8+x^6+x^3+x^2+1).
var (
	g1Taps = [2]int{2, 9}
	g2Taps = [6]int{1, 2, 5, 7, 8, 9}
)

// shiftReg10 advances a 10-stage ±1-valued shift register by one chip,
// returning the chip sampled before the shift and the new register state.
func shiftReg10(r [10]int8, taps []int) (out int8, next [10]int8) {
	out = r[9]
	var fb int8 = 1
	for _, t := range taps {
		fb *= r[t]
	}
	next[0] = fb
	copy(next[1:], r[:9])
	return out, next
}

// GenerateChips returns the 1023-chip ±1-valued C/A code for the given PRN
// (1..32), using two maximal-length LFSRs (G1, G2) combined through the
// standard per-PRN G2 delay.
func GenerateChips(prn int) ([]int8, error) {
	if prn < constants.MinPRN || prn > constants.MaxPRN {
		return nil, fmt.Errorf("replica: PRN %d out of range [%d,%d]", prn, constants.MinPRN, constants.MaxPRN)
	}

	var r1, r2 [10]int8
	for i := range r1 {
		r1[i] = -1
		r2[i] = -1
	}

	var g1, g2 [constants.CodeLengthChips]int8
	for i := 0; i < constants.CodeLengthChips; i++ {
		var o1, o2 int8
		o1, r1 = shiftReg10(r1, g1Taps[:])
		o2, r2 = shiftReg10(r2, g2Taps[:])
		g1[i] = o1
		g2[i] = o2
	}

	delay := g2Delay[prn-1]
	chips := make([]int8, constants.CodeLengthChips)
	j := constants.CodeLengthChips - delay
	for i := 0; i < constants.CodeLengthChips; i++ {
		chips[i] = g1[i] * g2[j%constants.CodeLengthChips]
		j++
	}
	return chips, nil
}

// ChipsToBits renders a ±1 chip sequence as a "0"/"1" string for display
// and for the IS-GPS-200 first-ten-chips invariant check: chip -1 is the binary "1", chip +1 is the binary "0",
// the antipodal BPSK convention used throughout this codebase.
func ChipsToBits(chips []int8) string {
	b := make([]byte, len(chips))
	for i, c := range chips {
		if c < 0 {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
	}
	return string(b)
}
