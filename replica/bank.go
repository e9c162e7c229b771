package replica

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/openskynav/gogps/constants"
)

// PrnReplica is the immutable, per-PRN precomputed replica: the C/A code
// upsampled to N = Fs/1000 samples and encoded as complex (±1+0j), plus its
// forward DFT, reused by both acquisition and tracking.
type PrnReplica struct {
	PRN        int
	SampleRate float64
	N          int
	Chips      []int8    // 1023 raw chips, ±1
	Samples    []complex128 // length N, nearest-chip upsampled
	FFT        []complex128 // length N, forward DFT of Samples
}

// Bank is the read-only, shared collection of PrnReplica built once at
// startup: FFT plans computed once and shared read-only across every
// acquisition and tracking goroutine.
type Bank struct {
	fs       float64
	n        int
	replicas map[int]*PrnReplica
	fft      *fourier.CmplxFFT
}

// NewBank generates and FFTs the replica for every PRN in prns at the
// given sample rate. N is computed as round(Fs/1000), the number of
// samples in one 1 ms C/A code period at that rate.
func NewBank(sampleRate float64, prns []int) (*Bank, error) {
	n := int(math.Round(sampleRate / 1000.0))
	if n <= 0 {
		return nil, fmt.Errorf("replica: invalid sample rate %g Hz produces N=%d", sampleRate, n)
	}

	b := &Bank{
		fs:       sampleRate,
		n:        n,
		replicas: make(map[int]*PrnReplica, len(prns)),
		fft:      fourier.NewCmplxFFT(n),
	}

	for _, prn := range prns {
		r, err := b.build(prn)
		if err != nil {
			return nil, err
		}
		b.replicas[prn] = r
	}
	return b, nil
}

func (b *Bank) build(prn int) (*PrnReplica, error) {
	chips, err := GenerateChips(prn)
	if err != nil {
		return nil, err
	}

	samples := upsampleNearestChip(chips, b.n, b.fs)

	fftOut := b.fft.Coefficients(nil, samples)
	fftCopy := make([]complex128, len(fftOut))
	copy(fftCopy, fftOut)

	return &PrnReplica{
		PRN:        prn,
		SampleRate: b.fs,
		N:          b.n,
		Chips:      chips,
		Samples:    samples,
		FFT:        fftCopy,
	}, nil
}

// upsampleNearestChip maps each of N output samples to its nearest C/A
// chip and encodes the chip as a complex number (±1+0j).
func upsampleNearestChip(chips []int8, n int, fs float64) []complex128 {
	out := make([]complex128, n)
	chipRate := constants.ChipRateHz
	for i := 0; i < n; i++ {
		tSec := float64(i) / fs
		chipIdx := int(math.Mod(tSec*chipRate, float64(len(chips))))
		if chipIdx < 0 {
			chipIdx += len(chips)
		}
		out[i] = complex(float64(chips[chipIdx]), 0)
	}
	return out
}

// N returns the block length (samples per 1ms code period) this bank was
// built for.
func (b *Bank) N() int { return b.n }

// SampleRate returns the sample rate this bank was built for.
func (b *Bank) SampleRate() float64 { return b.fs }

// Get returns the replica for prn, and whether it exists in the bank.
func (b *Bank) Get(prn int) (*PrnReplica, bool) {
	r, ok := b.replicas[prn]
	return r, ok
}

// PRNs returns the sorted set of PRNs this bank was built for.
func (b *Bank) PRNs() []int {
	out := make([]int, 0, len(b.replicas))
	for prn := range b.replicas {
		out = append(out, prn)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// ShiftedReplica returns a time-shifted copy of a replica's Samples by the
// given fractional-chip offset (used by the tracker to build the
// early/late local codes). The shift wraps circularly within one code
// period.
func ShiftedReplica(samples []complex128, fs float64, shiftChips float64) []complex128 {
	n := len(samples)
	shiftSamples := int(math.Round(shiftChips / constants.ChipRateHz * fs))
	out := make([]complex128, n)
	for i := 0; i < n; i++ {
		src := ((i+shiftSamples)%n + n) % n
		out[i] = samples[src]
	}
	return out
}

// Magnitude is a small helper used by acquisition's peak search.
func Magnitude(c complex128) float64 { return cmplx.Abs(c) }
