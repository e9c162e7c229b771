// Package measurement implements the Measurement Builder:
// at each solver epoch, turns every EPHEMERIS_VALID channel's tracking
// state into a pseudorange/Doppler/C-N0 observation for the external
// solver.
package measurement

import (
	"time"

	"github.com/openskynav/gogps/constants"
	"github.com/openskynav/gogps/navigation"
	"github.com/openskynav/gogps/tracking"
)

// Measurement is one channel's contribution to a solver epoch.
type Measurement struct {
	PRN             int
	ReceiveTOW      float64 // seconds into the GPS week
	TransmitTOW     float64
	PseudorangeM    float64
	DopplerHz       float64
	CN0             float64
	Ephemeris       *navigation.Ephemeris
}

// Builder accumulates the receiver clock model and produces Measurements
// once per solver epoch.
type Builder struct {
	conf                MeasurementConf
	receiverTOW         float64
	receiverInitialized bool
}

// MeasurementConf mirrors config.MeasurementConf; imported by value here
// to keep this package decoupled from the config package's koanf tags.
type MeasurementConf struct {
	EpochHz                float64
	NominalPropagationMsec float64
}

// NewBuilder returns a Builder tuned by conf.
func NewBuilder(conf MeasurementConf) *Builder {
	return &Builder{conf: conf}
}

// ChannelInput is what the orchestrator hands the Builder for one channel
// at the current solver epoch: the latest Tick and, separately, how many
// whole nav bits (20 ms) have elapsed since the last decoded HOW word and
// the fractional code-phase offset within the current C/A period.
type ChannelInput struct {
	PRN            int
	State          tracking.State
	CodePhaseChips float64
	DopplerHz      float64
	CN0            float64
	Ephemeris      *navigation.Ephemeris
	BitsSinceHOW   int
	CodeEpochsMs   int
}

// Build produces one Measurement per channel that has reached
// EPHEMERIS_VALID (invariant d: never below FRAME_SYNC, but in practice
// only EPHEMERIS_VALID channels carry a usable time reference).
func (b *Builder) Build(inputs []ChannelInput) []Measurement {
	var out []Measurement

	for _, in := range inputs {
		if in.State < tracking.StateEphemerisValid || in.Ephemeris == nil {
			continue
		}

		txTow := b.transmitTime(in)

		if !b.receiverInitialized {
			propagation := b.conf.NominalPropagationMsec
			if propagation == 0 {
				propagation = 70
			}
			b.receiverTOW = txTow + propagation/1000.0
			b.receiverInitialized = true
		}

		pseudorange := constants.SpeedOfLight * (b.receiverTOW - txTow)

		out = append(out, Measurement{
			PRN:          in.PRN,
			ReceiveTOW:   b.receiverTOW,
			TransmitTOW:  txTow,
			PseudorangeM: pseudorange,
			DopplerHz:    in.DopplerHz,
			CN0:          in.CN0,
			Ephemeris:    in.Ephemeris,
		})
	}

	return out
}

// transmitTime computes t_tx = TOW of last decoded HOW + bits elapsed *
// 20 ms + 1 ms code epoch count + fractional code phase / 1023 chips *
// 1 ms.
func (b *Builder) transmitTime(in ChannelInput) float64 {
	base := float64(in.Ephemeris.TOW)
	bitsElapsed := float64(in.BitsSinceHOW) * 0.020
	codeEpochs := float64(in.CodeEpochsMs) * 0.001
	fracChip := in.CodePhaseChips / constants.CodeLengthChips * 0.001
	return base + bitsElapsed + codeEpochs + fracChip
}

// AdvanceClock increments the receiver clock model by one tick interval
//.
func (b *Builder) AdvanceClock(d time.Duration) {
	if !b.receiverInitialized {
		return
	}
	b.receiverTOW += d.Seconds()
}
