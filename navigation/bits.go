package navigation

// Scale factors for the IS-GPS-200 broadcast ephemeris fields, named in
// the conventional RTKLIB style (P2_N = 2^-N).
const (
	p2_5  = 1.0 / 32
	p2_19 = 1.0 / (1 << 19)
	p2_29 = 1.0 / (1 << 29)
	p2_31 = 1.0 / (1 << 31)
	p2_33 = 1.0 / float64(int64(1)<<33)
	p2_43 = 1.0 / float64(int64(1)<<43)
	p2_55 = 1.0 / float64(int64(1)<<55)

	// sc2rad converts GPS semicircles to radians.
	sc2rad = 3.14159265358979323846
)

// getbitu extracts len bits starting at bit pos (0-indexed from the MSB of
// buf, one bit per byte, 0 or 1) as an unsigned integer, the RTKLIB
// bitstream convention this ephemeris unpacking follows.
func getbitu(buf []byte, pos, length int) uint32 {
	var v uint32
	for i := pos; i < pos+length; i++ {
		v = (v << 1) | uint32(buf[i]&1)
	}
	return v
}

// getbits is getbitu with two's-complement sign extension over length bits.
func getbits(buf []byte, pos, length int) int32 {
	v := getbitu(buf, pos, length)
	if length <= 0 || length >= 32 {
		return int32(v)
	}
	signBit := uint32(1) << (length - 1)
	if v&signBit != 0 {
		return int32(v) - int32(1<<length)
	}
	return int32(v)
}

// getbitu2 concatenates two unsigned bit fields, pos1/len1 forming the
// high-order bits, used for fields split across word boundaries (e.g.
// eccentricity, sqrt(A)).
func getbitu2(buf []byte, pos1, len1, pos2, len2 int) uint32 {
	return (getbitu(buf, pos1, len1) << len2) | getbitu(buf, pos2, len2)
}

// getbits2 is getbitu2 with sign extension over the combined field width.
func getbits2(buf []byte, pos1, len1, pos2, len2 int) int32 {
	v := getbitu2(buf, pos1, len1, pos2, len2)
	total := len1 + len2
	if total <= 0 || total >= 32 {
		return int32(v)
	}
	signBit := uint32(1) << (total - 1)
	if v&signBit != 0 {
		return int32(v) - int32(1<<total)
	}
	return int32(v)
}
