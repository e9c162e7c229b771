package solver

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/openskynav/gogps/measurement"
	"github.com/openskynav/gogps/navigation"
)

func TestSolveInsufficientSatellites(t *testing.T) {
	w := NewWLS([3]float64{0, 0, 0})
	meas := []measurement.Measurement{
		{PRN: 1, PseudorangeM: 2e7, Ephemeris: &navigation.Ephemeris{}},
		{PRN: 2, PseudorangeM: 2e7, Ephemeris: &navigation.Ephemeris{}},
		{PRN: 3, PseudorangeM: 2e7, Ephemeris: &navigation.Ephemeris{}},
	}
	_, err := w.Solve(context.Background(), 100, meas)
	if !errors.Is(err, ErrInsufficientSatellites) {
		t.Fatalf("Solve() with 3 measurements: got %v, want ErrInsufficientSatellites", err)
	}
}

// circularOrbitEphemeris builds a near-circular, near-equatorial ephemeris
// whose resulting orbital radius is easy to reason about, for sanity
// checking SVPositionECEF's magnitude rather than its exact trajectory.
func circularOrbitEphemeris() *navigation.Ephemeris {
	const semiMajorAxis = 26560000.0 // meters, nominal GPS orbit
	return &navigation.Ephemeris{
		A:     semiMajorAxis,
		Ecc:   0,
		M0:    0,
		Deln:  0,
		Omg0:  0,
		I0:    0,
		Omg:   0,
		IDot:  0,
		Toe:   0,
	}
}

func TestSVPositionECEFMagnitudeMatchesSemiMajorAxis(t *testing.T) {
	eph := circularOrbitEphemeris()
	pos := SVPositionECEF(eph, 0)

	r := math.Sqrt(pos[0]*pos[0] + pos[1]*pos[1] + pos[2]*pos[2])
	want := 26560000.0
	if math.Abs(r-want) > 1.0 {
		t.Errorf("SVPositionECEF radius: got %.3f, want ~%.3f (circular orbit, e=0)", r, want)
	}
}

func TestSVPositionECEFTimeOfEphemerisWraparound(t *testing.T) {
	eph := circularOrbitEphemeris()
	eph.Toe = 302400

	// tk = tSec - Toe; requesting tSec=0 makes raw tk = -302400, exactly at
	// the wraparound boundary (no correction applied at the boundary
	// itself), so nudge one second past it to exercise the +604800 branch.
	posAtBoundary := SVPositionECEF(eph, -1)
	posWrapped := SVPositionECEF(eph, -1+604800)

	for i := 0; i < 3; i++ {
		if math.Abs(posAtBoundary[i]-posWrapped[i]) > 1.0 {
			t.Errorf("axis %d: tk wraparound should make tSec=-1 and tSec=-1+604800 agree; got %.3f vs %.3f", i, posAtBoundary[i], posWrapped[i])
		}
	}
}
