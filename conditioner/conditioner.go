// Package conditioner implements the Sample Conditioner: it
// decodes raw device bytes into complex64 IQ, normalizes amplitude with an
// AGC stage, decimates toward the receiver's canonical rate when the
// source is faster than it, and blocks the result into fixed-size IqBlocks with
// monotonic epoch indices for the rest of the pipeline.
package conditioner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/charmbracelet/log"
	SatHelper "github.com/opensatelliteproject/libsathelper"
	"github.com/racerxdl/segdsp/dsp"

	"github.com/openskynav/gogps/config"
)

// IqBlock is one fixed-length window of conditioned IQ samples tagged with
// its epoch index. Epoch N covers source
// samples [N*len(Samples), (N+1)*len(Samples)) of the conditioned stream.
type IqBlock struct {
	Epoch   uint64
	Samples []complex64
}

// Conditioner turns a raw byte stream into a channel of IqBlock at the
// target sample rate.
type Conditioner struct {
	sampleType SampleType
	targetRate float64
	blockLen   int

	agc       SatHelper.AGC
	resample  *dsp.FirFilter
	decimRate int

	carry []complex64
	epoch uint64
}

// New builds a Conditioner for the given radio and AGC configuration. When
// radioConf.SampleRate is above resampleConf.TargetSampleRate, a
// polyphase decimating low-pass filter is built with segdsp's FIR helpers
// that decimates by the nearest integer factor, so the output rate equals
// the target only when the two rates are an integer ratio apart. A source
// rate at or below the target is passed through without resampling.
func New(radioConf config.RadioConf, agcConf config.AGCConf, resampleConf config.ResampleConf) (*Conditioner, error) {
	stype, err := ParseSampleType(radioConf.SampleType)
	if err != nil {
		return nil, err
	}

	target := resampleConf.TargetSampleRate
	if target == 0 {
		target = radioConf.SampleRate
	}
	blockLen := int(math.Round(target / 1000.0))
	if blockLen <= 0 {
		return nil, fmt.Errorf("conditioner: invalid target sample rate %g Hz", target)
	}

	c := &Conditioner{
		sampleType: stype,
		targetRate: target,
		blockLen:   blockLen,
		agc:        SatHelper.NewAGC(agcConf.Rate, agcConf.Reference, agcConf.Gain, agcConf.MaxGain),
	}

	if radioConf.SampleRate > target {
		decim := int(math.Round(radioConf.SampleRate / target))
		if decim < 1 {
			decim = 1
		}
		c.decimRate = decim
		cutoff := target/2 - resampleConf.LowPassTransitionWidth/2
		taps := dsp.MakeLowPass(1, radioConf.SampleRate, cutoff, resampleConf.LowPassTransitionWidth)
		c.resample = dsp.MakeDecimationFirFilter(decim, taps)
		log.Debugf("conditioner: decimating %g Hz -> %g Hz (factor %d)", radioConf.SampleRate, target, decim)
	}

	return c, nil
}

// Run decodes raw reads from src, conditions them, and emits IqBlocks on
// the returned channel until ctx is cancelled or src is exhausted, at
// which point the channel is closed after flushing a final zero-padded
// partial block.
func (c *Conditioner) Run(ctx context.Context, src ByteSource) <-chan IqBlock {
	out := make(chan IqBlock, 8)

	go func() {
		defer close(out)
		buf := make([]byte, c.sampleType.BytesPerSample()*c.blockLen*4)

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			n, err := src.Read(buf)
			if n > 0 {
				samples := Decode(c.sampleType, buf[:n])
				samples = c.condition(samples)
				c.carry = append(c.carry, samples...)
				c.emitFullBlocks(ctx, out)
			}
			if err != nil {
				c.flushPartial(out)
				if !isBenignEOF(err) {
					log.Warnf("conditioner: source read error: %v", err)
				}
				return
			}
		}
	}()

	return out
}

// ByteSource is the thin interface every IQ source driver (file, local
// device, remote rtl_tcp) satisfies.
type ByteSource interface {
	Read(p []byte) (int, error)
}

func isBenignEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

func (c *Conditioner) condition(samples []complex64) []complex64 {
	if len(samples) == 0 {
		return samples
	}

	if c.resample != nil {
		samples = c.resample.Work(samples)
		if len(samples) == 0 {
			return samples
		}
	}

	out := make([]complex64, len(samples))
	c.agc.Work(&samples[0], &out[0], len(samples))
	return out
}

func (c *Conditioner) emitFullBlocks(ctx context.Context, out chan<- IqBlock) {
	for len(c.carry) >= c.blockLen {
		block := IqBlock{Epoch: c.epoch, Samples: c.carry[:c.blockLen]}
		c.carry = c.carry[c.blockLen:]
		c.epoch++
		select {
		case out <- block:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Conditioner) flushPartial(out chan<- IqBlock) {
	if len(c.carry) == 0 {
		return
	}
	padded := make([]complex64, c.blockLen)
	copy(padded, c.carry)
	out <- IqBlock{Epoch: c.epoch, Samples: padded}
	c.carry = nil
	c.epoch++
}

// BlockLen returns the number of samples per IqBlock (N = round(Fs/1000)).
func (c *Conditioner) BlockLen() int { return c.blockLen }

// SampleRate returns the canonical output sample rate.
func (c *Conditioner) SampleRate() float64 { return c.targetRate }
