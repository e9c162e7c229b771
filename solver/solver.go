// Package solver names the PVT solver collaborator and provides a default
// iterative weighted-least-squares implementation so the repository
// produces an end-to-end fix.
package solver

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/openskynav/gogps/constants"
	"github.com/openskynav/gogps/measurement"
	"github.com/openskynav/gogps/navigation"
)

// ErrInsufficientSatellites is returned when fewer than 4 measurements are
// available to solve for position and clock bias.
var ErrInsufficientSatellites = errors.New("solver: insufficient satellites for a fix")

// Fix is a single position/time solution (ECEF position and receiver
// clock bias); no velocity is solved for.
type Fix struct {
	ReceiveTOW float64
	ECEF       [3]float64
	ClockBiasM float64
	Satellites int
	Residual   float64
}

// Solver is the thin PVT collaborator interface: given a receive time and
// the current epoch's measurements (each carrying its own ephemeris), it
// returns a Fix or ErrInsufficientSatellites. Any implementation — this
// package's WLS solver, or an external one — can be substituted without
// touching the receiver.
type Solver interface {
	Solve(ctx context.Context, receiveTOW float64, measurements []measurement.Measurement) (Fix, error)
}

// WLS is a minimal iterative weighted-least-squares PVT solver built on
// gonum/mat: standard GPS single-point-positioning least squares over
// a Kepler-equation SV position model.
type WLS struct {
	initial [3]float64
}

// NewWLS returns a WLS solver seeded at an initial ECEF guess (a
// Bancroft-style closed-form guess is unnecessary for this receiver's
// scale; a coarse geocenter-ish seed converges in a handful of
// iterations for any ground-based receiver).
func NewWLS(initial [3]float64) *WLS {
	return &WLS{initial: initial}
}

// Solve implements Solver.
func (w *WLS) Solve(ctx context.Context, receiveTOW float64, meas []measurement.Measurement) (Fix, error) {
	if len(meas) < 4 {
		return Fix{}, ErrInsufficientSatellites
	}

	x := w.initial
	clockBias := 0.0

	const maxIter = 10
	for iter := 0; iter < maxIter; iter++ {
		select {
		case <-ctx.Done():
			return Fix{}, ctx.Err()
		default:
		}

		n := len(meas)
		A := mat.NewDense(n, 4, nil)
		b := mat.NewVecDense(n, nil)

		for i, m := range meas {
			svPos := SVPositionECEF(m.Ephemeris, m.TransmitTOW)
			dx := x[0] - svPos[0]
			dy := x[1] - svPos[1]
			dz := x[2] - svPos[2]
			rangeEst := math.Sqrt(dx*dx + dy*dy + dz*dz)

			A.Set(i, 0, dx/rangeEst)
			A.Set(i, 1, dy/rangeEst)
			A.Set(i, 2, dz/rangeEst)
			A.Set(i, 3, 1)

			predicted := rangeEst + clockBias
			b.SetVec(i, m.PseudorangeM-predicted)
		}

		var AtA mat.Dense
		AtA.Mul(A.T(), A)
		var Atb mat.VecDense
		Atb.MulVec(A.T(), b)

		var dxVec mat.VecDense
		if err := dxVec.SolveVec(&AtA, &Atb); err != nil {
			return Fix{}, err
		}

		x[0] += dxVec.AtVec(0)
		x[1] += dxVec.AtVec(1)
		x[2] += dxVec.AtVec(2)
		clockBias += dxVec.AtVec(3)

		if mat.Norm(&dxVec, 2) < 1e-3 {
			break
		}
	}

	return Fix{
		ReceiveTOW: receiveTOW,
		ECEF:       x,
		ClockBiasM: clockBias,
		Satellites: len(meas),
	}, nil
}

// SVPositionECEF computes a satellite's ECEF position at GPS time-of-week
// tSec (Solve passes each measurement's transmit time) from its broadcast
// ephemeris via the standard IS-GPS-200 Kepler-equation orbital model.
// No Earth-rotation correction for signal transit time is applied.
func SVPositionECEF(eph *navigation.Ephemeris, tSec float64) [3]float64 {
	tk := tSec - float64(eph.Toe)
	if tk > 302400 {
		tk -= 604800
	}
	if tk < -302400 {
		tk += 604800
	}

	ek := eccentricAnomaly(eph, tk)

	vk := math.Atan2(math.Sqrt(1-eph.Ecc*eph.Ecc)*math.Sin(ek), math.Cos(ek)-eph.Ecc)
	phik := vk + eph.Omg
	duk := eph.Cus*math.Sin(2*phik) + eph.Cuc*math.Cos(2*phik)
	drk := eph.Crs*math.Sin(2*phik) + eph.Crc*math.Cos(2*phik)
	dik := eph.Cis*math.Sin(2*phik) + eph.Cic*math.Cos(2*phik)

	uk := phik + duk
	rk := eph.A*(1-eph.Ecc*math.Cos(ek)) + drk
	ik := eph.I0 + eph.IDot*tk + dik

	xp := rk * math.Cos(uk)
	yp := rk * math.Sin(uk)

	omega := eph.Omg0 + (eph.OmgDot-constants.EarthRotationRateRadPerSec)*tk - constants.EarthRotationRateRadPerSec*float64(eph.Toe)

	x := xp*math.Cos(omega) - yp*math.Cos(ik)*math.Sin(omega)
	y := xp*math.Sin(omega) + yp*math.Cos(ik)*math.Cos(omega)
	z := yp * math.Sin(ik)

	return [3]float64{x, y, z}
}

// eccentricAnomaly solves Kepler's equation by Newton-Raphson iteration.
func eccentricAnomaly(eph *navigation.Ephemeris, tk float64) float64 {
	n0 := math.Sqrt(constants.EarthGravitationalConstant / (eph.A * eph.A * eph.A))
	n := n0 + eph.Deln
	mk := eph.M0 + n*tk

	e := mk
	prev := 0.0
	for iter := 0; iter < 30 && math.Abs(e-prev) > 1e-14; iter++ {
		prev = e
		e = e + (mk-e+eph.Ecc*math.Sin(e))/(1-eph.Ecc*math.Cos(e))
	}
	return e
}
