package navigation

// decodeSubframe1 unpacks clock parameters and IODC (ported from
// ephemeris.rs's nav_decode_lnav_subframe1).
func decodeSubframe1(buf []byte, e *Ephemeris) {
	e.TOW = getbitu(buf, 30, 17) * 6
	e.Week = getbitu(buf, 60, 10) + 2048
	e.SVA = getbitu(buf, 72, 4)
	e.SVH = getbitu(buf, 76, 6)
	e.IODC = getbitu2(buf, 82, 2, 210, 8)
	e.Tgd = float64(getbits(buf, 196, 8)) * p2_31
	e.Toc = getbitu(buf, 218, 16) * 16
	e.F2 = float64(getbits(buf, 240, 8)) * p2_55
	e.F1 = float64(getbits(buf, 248, 16)) * p2_43
	e.F0 = float64(getbits(buf, 270, 22)) * p2_31
	e.sf1 = true
}

// decodeSubframe2 unpacks orbital elements (ported from
// ephemeris.rs's nav_decode_lnav_subframe2).
func decodeSubframe2(buf []byte, e *Ephemeris) {
	e.TOW = getbitu(buf, 30, 17) * 6
	e.iode2 = getbitu(buf, 60, 8)
	e.Crs = float64(getbits(buf, 68, 16)) * p2_5
	e.Deln = float64(getbits(buf, 90, 16)) * p2_43 * sc2rad
	e.M0 = float64(getbits2(buf, 106, 8, 120, 24)) * p2_31 * sc2rad
	e.Cuc = float64(getbits(buf, 150, 16)) * p2_29
	e.Ecc = float64(getbitu2(buf, 166, 8, 180, 24)) * p2_33
	e.Cus = float64(getbits(buf, 210, 16)) * p2_29
	sqrtA := float64(getbitu2(buf, 226, 8, 240, 24)) * p2_19
	e.SqrtA = sqrtA
	e.A = sqrtA * sqrtA
	e.Toe = getbitu(buf, 270, 16) * 16
	e.ValidUntil = (e.Toe + 4*3600) % 604800
	e.Fit = getbitu(buf, 286, 1)
	e.sf2 = true
}

// decodeSubframe3 unpacks the remaining orbital elements (ported from
// ephemeris.rs's nav_decode_lnav_subframe3).
func decodeSubframe3(buf []byte, e *Ephemeris) {
	e.TOW = getbitu(buf, 30, 17) * 6
	e.Cic = float64(getbits(buf, 60, 16)) * p2_29
	e.Omg0 = float64(getbits2(buf, 76, 8, 90, 24)) * p2_31 * sc2rad
	e.Cis = float64(getbits(buf, 120, 16)) * p2_29
	e.I0 = float64(getbits2(buf, 136, 8, 150, 24)) * p2_31 * sc2rad
	e.Crc = float64(getbits(buf, 180, 16)) * p2_5
	e.Omg = float64(getbits2(buf, 196, 8, 210, 24)) * p2_31 * sc2rad
	e.OmgDot = float64(getbits(buf, 240, 24)) * p2_43 * sc2rad
	e.IODE = getbitu(buf, 270, 8)
	e.IDot = float64(getbits(buf, 278, 14)) * p2_43 * sc2rad
	e.sf3 = true
}

// Subframe45Summary is what subframes 4 and 5 (almanac pages and special
// messages) are decoded to in this receiver: page/SV identification and
// health, enough to log a complete IS-GPS-200 subframe-id switch without
// implementing almanac-based acquisition assist (out of scope; no
// almanac orbital elements are extracted). This supplements the
// distillation, which dropped subframes 4/5 entirely, following
// navigation.rs's nav_decode_lnav_subframe4/5.
type Subframe45Summary struct {
	SubframeID int
	DataID     uint32
	SvID       uint32
	TOW        uint32
	Unhealthy  []int // SV ids flagged unhealthy, page 25 only
}

func decodeSubframe4(buf []byte) Subframe45Summary {
	s := Subframe45Summary{SubframeID: 4, TOW: getbitu(buf, 30, 17) * 6}
	s.DataID = getbitu(buf, 60, 2)
	s.SvID = getbitu(buf, 62, 6)

	if s.DataID == 1 && s.SvID == 63 {
		svhIdx := [8]int{228, 240, 246, 252, 258, 270, 276, 282}
		for sv := 25; sv <= 32; sv++ {
			pos := svhIdx[sv-25]
			if getbitu(buf, pos, 6) != 0 {
				s.Unhealthy = append(s.Unhealthy, sv)
			}
		}
	}
	return s
}

func decodeSubframe5(buf []byte) Subframe45Summary {
	s := Subframe45Summary{SubframeID: 5, TOW: getbitu(buf, 30, 17) * 6}
	s.DataID = getbitu(buf, 60, 2)
	s.SvID = getbitu(buf, 62, 4)
	return s
}

// subframeID extracts the 3-bit subframe id from bits 50-52 (1-indexed in
// IS-GPS-200 text, 0-indexed here) of the HOW word.
func subframeID(buf []byte) int {
	return int(getbitu(buf, 49, 3))
}

// towCount extracts the 17-bit truncated time-of-week count from bits
// 31-47 (1-indexed), in units of 6 seconds (not yet multiplied by 6).
func towCount(buf []byte) uint32 {
	return getbitu(buf, 30, 17)
}
