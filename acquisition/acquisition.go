// Package acquisition implements the 2-D parallel code-phase/Doppler
// search via iterative Doppler-spread narrowing, built on gonum's FFT.
package acquisition

import (
	"context"
	"math"
	"math/cmplx"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/openskynav/gogps/config"
	"github.com/openskynav/gogps/constants"
	"github.com/openskynav/gogps/replica"
)

// Result is one PRN's acquisition outcome.
type Result struct {
	PRN          int
	DopplerHz    float64
	PhaseOffset  float64 // fractional code-phase bin, quadratically interpolated
	SNRdB        float64
	CorrNormDb   float64
	corrNormLin  float64
	SurfaceDb    []float64 // winning Doppler bin's correlation magnitude surface, for diagnostics
}

// Engine runs the acquisition search against a shared, read-only replica
// bank.
type Engine struct {
	bank *replica.Bank
	conf config.AcquisitionConf
}

// New builds an Engine over bank, tuned by conf.
func New(bank *replica.Bank, conf config.AcquisitionConf) *Engine {
	return &Engine{bank: bank, conf: conf}
}

// SearchAll runs TryAcquire for every PRN in conf.PRNs concurrently, fanned
// out over a bounded worker pool sized to GOMAXPROCS. results[i] belongs to
// conf.PRNs[i] (nil for a miss), for deterministic, idempotent output.
func (e *Engine) SearchAll(ctx context.Context, blocks []complex64, sampleRate float64) []*Result {
	prns := e.conf.PRNs
	results := make([]*Result, len(prns))

	workers := runtime.GOMAXPROCS(0)
	if workers > len(prns) {
		workers = len(prns)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int, len(prns))
	for i := range prns {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				results[i] = e.TryAcquire(prns[i], blocks, sampleRate)
			}
		}()
	}
	wg.Wait()

	return results
}

// TryAcquire runs the iterative Doppler-narrowing search for one PRN over
// the given acquisition window, returning nil when no detection clears the configured
// threshold — acquisition misses are informational (AcquisitionNoDetection),
// not errors.
func (e *Engine) TryAcquire(prn int, samples []complex64, sampleRate float64) *Result {
	rep, ok := e.bank.Get(prn)
	if !ok {
		return nil
	}

	numMsec := e.conf.CoherentMsec * e.conf.NonCoherentSums
	if numMsec <= 0 {
		numMsec = 10
	}
	n := rep.N
	if len(samples) < n*numMsec {
		return nil
	}
	window := samples[:n*numMsec]

	spreadHz := e.conf.DopplerSpreadHz
	if spreadHz <= 0 {
		spreadHz = 8000
	}
	const bins = 10

	fft := fourier.NewCmplxFFT(n)
	codeFFT := rep.FFT

	var best Result
	var estimateHz float64

	for spreadHz > e.conf.DopplerStepHz && spreadHz > bins {
		param := crossCorrelate(fft, codeFFT, window, n, numMsec, sampleRate, estimateHz, spreadHz, bins)
		if param.snrDb <= best.SNRdB {
			break
		}
		spreadHz /= bins
		estimateHz = param.dopplerHz
		best = Result{
			PRN:         prn,
			DopplerHz:   param.dopplerHz,
			PhaseOffset: param.phaseOffset,
			SNRdB:       param.snrDb,
			corrNormLin: param.corrNorm,
			SurfaceDb:   param.surface,
		}
	}

	threshold := e.conf.DetectionThreshDb
	if threshold == 0 {
		threshold = 2.5
	}
	if !(best.SNRdB >= threshold) { // also rejects NaN from an all-zero window
		return nil
	}
	best.CorrNormDb = 10 * math.Log10(best.corrNormLin+1e-300)
	return &best
}

type corrParam struct {
	dopplerHz   float64
	phaseOffset float64
	snrDb       float64
	corrNorm    float64
	surface     []float64
}

// crossCorrelate sweeps Doppler bins around estimateHz within ±spreadHz,
// accumulating non-coherent FFT circular correlation magnitude over
// numMsec 1ms windows into a (Doppler bin, code-phase bin) surface. It
// locates the global peak, estimates the noise floor as the mean of the
// surface excluding a ±2-chip/±2-bin guard band around the peak, and
// refines both the code phase and the Doppler estimate by quadratic
// interpolation across the three bins straddling the peak in each
// dimension.
func crossCorrelate(fft *fourier.CmplxFFT, codeFFT []complex128, window []complex64, n, numMsec int, sampleRate, estimateHz, spreadHz float64, bins int) corrParam {
	lo := estimateHz - spreadHz
	hi := estimateHz + spreadHz
	step := spreadHz * 2 / float64(bins)

	var dHzs []float64
	var surfaces [][]float64

	for dHz := lo; dHz <= hi; dHz += step {
		bCorr := make([]float64, n)

		for idx := 0; idx < numMsec; idx++ {
			seg := window[idx*n : (idx+1)*n]
			shiftSec := float64(idx*n) / sampleRate

			shifted := make([]complex128, n)
			for i, s := range seg {
				tSec := shiftSec + float64(i)/sampleRate
				rot := cmplx.Exp(complex(0, -2*math.Pi*dHz*tSec))
				shifted[i] = complex128(s) * rot
			}

			corr := circularCorrelate(fft, shifted, codeFFT)
			for i, c := range corr {
				bCorr[i] += cmplx.Abs(c)
			}
		}

		dHzs = append(dHzs, dHz)
		surfaces = append(surfaces, bCorr)
	}

	peakD, peakC, peakVal := 0, 0, 0.0
	for d, surf := range surfaces {
		for c, v := range surf {
			if v > peakVal {
				peakD, peakC, peakVal = d, c, v
			}
		}
	}

	noiseFloor := guardedNoiseFloor(surfaces, peakD, peakC, n)
	snrDb := 10 * math.Log10(peakVal/noiseFloor)

	codeOffset := quadraticPeakOffset(surfaces[peakD], peakC)
	dopplerOffset := 0.0
	if peakD > 0 && peakD < len(surfaces)-1 {
		dopplerOffset = parabolicOffset(surfaces[peakD-1][peakC], surfaces[peakD][peakC], surfaces[peakD+1][peakC])
	}

	peakSurface := surfaces[peakD]
	corrNorm := 0.0
	for _, v := range peakSurface {
		corrNorm += v * v
	}
	surfaceDb := make([]float64, len(peakSurface))
	for i, v := range peakSurface {
		surfaceDb[i] = 10 * math.Log10(v+1e-300)
	}

	return corrParam{
		dopplerHz:   dHzs[peakD] + dopplerOffset*step,
		phaseOffset: float64(peakC) + codeOffset,
		snrDb:       snrDb,
		corrNorm:    corrNorm,
		surface:     surfaceDb,
	}
}

// guardedNoiseFloor averages every surface sample excluding the box
// formed by a ±2-chip code-phase guard band and a ±2-bin Doppler guard
// band around the (peakD, peakC) peak.
func guardedNoiseFloor(surfaces [][]float64, peakD, peakC, n int) float64 {
	const guardChips = 2.0
	const guardDopplerBins = 2
	codeGuard := int(math.Round(guardChips * float64(n) / constants.CodeLengthChips))

	var sum float64
	var count int
	for d, surf := range surfaces {
		dNear := absInt(d-peakD) <= guardDopplerBins
		for c, v := range surf {
			cNear := circularDist(c, peakC, len(surf)) <= codeGuard
			if dNear && cNear {
				continue
			}
			sum += v
			count++
		}
	}
	if count == 0 {
		return 1e-300
	}
	return sum / float64(count)
}

// quadraticPeakOffset refines a circular array's peak index at idx using
// parabolic interpolation across its immediate left/right neighbors.
func quadraticPeakOffset(surf []float64, idx int) float64 {
	n := len(surf)
	left := surf[(idx-1+n)%n]
	center := surf[idx]
	right := surf[(idx+1)%n]
	return parabolicOffset(left, center, right)
}

// parabolicOffset is the standard 3-point parabolic peak interpolation:
// the fractional offset from center at which the fitted parabola peaks.
func parabolicOffset(left, center, right float64) float64 {
	denom := left - 2*center + right
	if denom == 0 {
		return 0
	}
	return 0.5 * (left - right) / denom
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// circularDist is the shorter distance between a and b on a ring of
// length n.
func circularDist(a, b, n int) int {
	d := absInt(a - b)
	if d > n/2 {
		d = n - d
	}
	return d
}

// circularCorrelate computes IFFT(FFT(signal) .* conj(codeFFT)), the
// standard FFT circular-correlation identity used for parallel code-phase
// search.
func circularCorrelate(fft *fourier.CmplxFFT, signal []complex128, codeFFT []complex128) []complex128 {
	sigFFT := fft.Coefficients(nil, signal)
	n := len(sigFFT)
	prod := make([]complex128, n)
	for i := 0; i < n; i++ {
		prod[i] = sigFFT[i] * cmplx.Conj(codeFFT[i])
	}
	out := fft.Sequence(nil, prod)
	scale := 1.0 / float64(n)
	for i := range out {
		out[i] *= complex(scale, 0)
	}
	return out
}

