// Package tracking implements the Channel Tracker: one
// independent tracking loop per acquired satellite, running a code DLL
// and a Costas carrier PLL with FLL pull-in assist, integrated every
// 1 ms, driving the full ACQUIRED..EPHEMERIS_VALID state machine and
// feeding its prompt correlator stream into a navigation.Decoder.
package tracking

import (
	"math"
	"math/cmplx"

	"github.com/charmbracelet/log"

	"github.com/openskynav/gogps/config"
	"github.com/openskynav/gogps/constants"
	"github.com/openskynav/gogps/navigation"
	"github.com/openskynav/gogps/replica"
)

// State is a Channel's position in the ACQUIRED..EPHEMERIS_VALID..LOST
// state machine.
type State int

const (
	StateAcquired State = iota
	StatePullIn
	StateTrackLocked
	StateBitSync
	StateFrameSync
	StateEphemerisValid
	StateLost
)

func (s State) String() string {
	switch s {
	case StateAcquired:
		return "ACQUIRED"
	case StatePullIn:
		return "PULL_IN"
	case StateTrackLocked:
		return "TRACK_LOCKED"
	case StateBitSync:
		return "BIT_SYNC"
	case StateFrameSync:
		return "FRAME_SYNC"
	case StateEphemerisValid:
		return "EPHEMERIS_VALID"
	case StateLost:
		return "LOST"
	default:
		return "UNKNOWN"
	}
}

// Tick is the per-millisecond snapshot a Channel publishes after
// processing one IqBlock.
type Tick struct {
	Epoch        uint64
	State        State
	DopplerHz    float64
	CodePhase    float64 // chips, [0, 1023)
	IP, QP       float64
	CN0          float64
	CarrierLock  float64
}

// Channel is one satellite's tracking loop.
type Channel struct {
	PRN  int
	fs   float64
	n    int
	rep  *replica.PrnReplica
	conf config.TrackingConf

	state State
	tick  uint64

	enteredState  uint64
	lockGoodTicks int
	lockBadTicks  int

	codeOffsetChips float64
	dopplerHz       float64
	carrierPhase    float64 // radians, wrapped mod 2pi after each block
	errPhasePrev    float64

	sumCorrE, sumCorrL float64
	sumCorrP, sumCorrN float64
	cn0                float64
	carrierLock        float64

	prevPromptSet bool
	prevPrompt    complex128

	iqHistory      []complex128
	codeErrHistory []float64
	carrierErrHistory []float64

	Decoder *navigation.Decoder
}

const traceHistoryLen = 200

// New builds a Channel seeded from an acquisition detection: initial
// Doppler and code-phase offset (in chips), at sample rate fs against
// replica rep.
func New(prn int, rep *replica.PrnReplica, fs float64, dopplerHz, codePhaseChips float64, trackConf config.TrackingConf, navConf config.NavConf) *Channel {
	return &Channel{
		PRN:             prn,
		fs:              fs,
		n:               rep.N,
		rep:             rep,
		conf:            trackConf,
		state:           StateAcquired,
		dopplerHz:       dopplerHz,
		codeOffsetChips: math.Mod(codePhaseChips, constants.CodeLengthChips),
		Decoder:         navigation.New(prn, navConf),
	}
}

// State returns the channel's current state.
func (c *Channel) State() State { return c.state }

// ProcessBlock runs one 1 ms tracking update: carrier wipe-off, early/prompt/late correlation, code/carrier
// discriminators and loop filters, lock detection, state advancement, and
// feeds the prompt sample into the navigation decoder.
func (c *Channel) ProcessBlock(iq []complex64) Tick {
	wiped := c.wipeCarrier(iq)

	cp, ce, cl := c.correlate(wiped)

	pullIn := c.tick-c.enteredState < pullInTicks(c.conf)
	if pullIn {
		c.runFLL(cp)
	} else {
		c.runPLL(cp)
	}
	c.runDLL(ce, cl)
	c.updateCN0(cp)
	c.updateCarrierLock(cp)

	c.recordTrace(cp, ce, cl)

	c.tick++

	c.advanceState()

	if c.state >= StateTrackLocked {
		c.Decoder.FeedPrompt(real(cp))
	}

	return Tick{
		Epoch:       c.tick,
		State:       c.state,
		DopplerHz:   c.dopplerHz,
		CodePhase:   c.codeOffsetChips,
		IP:          real(cp),
		QP:          imag(cp),
		CN0:         c.cn0,
		CarrierLock: c.carrierLock,
	}
}

// recordTrace appends the latest prompt sample and discriminator errors to
// the channel's diagnostic history, trimmed to the last traceHistoryLen
// ticks (the diagnostics Reporter samples this at its own, coarser cadence).
func (c *Channel) recordTrace(cp, ce, cl complex128) {
	c.iqHistory = append(c.iqHistory, cp)

	var codeErr float64
	if d := cmplx.Abs(ce) + cmplx.Abs(cl); d != 0 {
		codeErr = (cmplx.Abs(ce) - cmplx.Abs(cl)) / d
	}
	c.codeErrHistory = append(c.codeErrHistory, codeErr)

	var carrierErr float64
	if real(cp) != 0 {
		carrierErr = math.Atan(imag(cp) / real(cp))
	}
	c.carrierErrHistory = append(c.carrierErrHistory, carrierErr)

	if len(c.iqHistory) > traceHistoryLen {
		drop := len(c.iqHistory) - traceHistoryLen
		c.iqHistory = c.iqHistory[drop:]
		c.codeErrHistory = c.codeErrHistory[drop:]
		c.carrierErrHistory = c.carrierErrHistory[drop:]
	}
}

// Trace returns a snapshot copy of the channel's recent prompt samples and
// discriminator error history, for the diagnostics Reporter.
func (c *Channel) Trace() (iq []complex128, codeErr, carrierErr []float64) {
	iq = append(iq, c.iqHistory...)
	codeErr = append(codeErr, c.codeErrHistory...)
	carrierErr = append(carrierErr, c.carrierErrHistory...)
	return
}

func pullInTicks(conf config.TrackingConf) uint64 {
	return 100 // first 100 ms, wide bandwidths
}

// wipeCarrier multiplies the input block by e^{-jθ_c[n]}, θ_c advancing at
// the current Doppler rate.
func (c *Channel) wipeCarrier(iq []complex64) []complex128 {
	out := make([]complex128, len(iq))
	rate := constants.TwoPi * c.dopplerHz / c.fs
	phase := c.carrierPhase
	for i, s := range iq {
		out[i] = complex128(s) * cmplx.Exp(complex(0, -phase))
		phase += rate
	}
	c.carrierPhase = math.Mod(phase, constants.TwoPi)
	return out
}

// correlate integrates the wiped signal against early/prompt/late local
// replicas shifted by ∓Δ/2 chips around the current code phase.
func (c *Channel) correlate(wiped []complex128) (prompt, early, late complex128) {
	spacing := c.conf.CodeSpacingChips
	if spacing <= 0 {
		spacing = 1.0
	}
	halfChipSpacing := spacing / 2

	promptRep := replica.ShiftedReplica(c.rep.Samples, c.fs, c.codeOffsetChips)
	earlyRep := replica.ShiftedReplica(c.rep.Samples, c.fs, c.codeOffsetChips-halfChipSpacing)
	lateRep := replica.ShiftedReplica(c.rep.Samples, c.fs, c.codeOffsetChips+halfChipSpacing)

	for i, s := range wiped {
		prompt += s * cmplx.Conj(promptRep[i])
		early += s * cmplx.Conj(earlyRep[i])
		late += s * cmplx.Conj(lateRep[i])
	}
	n := complex(float64(len(wiped)), 0)
	return prompt / n, early / n, late / n
}

// runFLL is the frequency-lock-loop pull-in assist: cross-product
// frequency discriminator across adjacent ms prompt samples (channel.rs's
// run_fll).
func (c *Channel) runFLL(cp complex128) {
	if !c.prevPromptSet {
		c.prevPrompt = cp
		c.prevPromptSet = true
		return
	}
	dot := real(cp)*real(c.prevPrompt) + imag(cp)*imag(c.prevPrompt)
	cross := real(cp)*imag(c.prevPrompt) - imag(cp)*real(c.prevPrompt)
	c.prevPrompt = cp

	if dot == 0 {
		return
	}

	bw := c.conf.FLLBandwidthHz
	if bw <= 0 {
		bw = 10
	}
	errFreq := math.Atan2(cross, dot) / constants.TwoPi
	c.dopplerHz -= bw / 0.25 * errFreq
}

// runPLL is the two-quadrant Costas carrier discriminator atan(Q/I) with a
// second-order loop filter (channel.rs's run_pll), bandwidth narrowing
// from wide (pull-in, default 15 Hz) to narrow (locked, default 5 Hz).
func (c *Channel) runPLL(cp complex128) {
	if real(cp) == 0 {
		return
	}
	errPhase := math.Atan(imag(cp)/real(cp)) / constants.TwoPi

	bw := c.conf.PLLBandwidthWideHz
	if bw <= 0 {
		bw = 15
	}
	if c.state >= StateTrackLocked {
		bw = c.conf.PLLBandwidthNarrowHz
		if bw <= 0 {
			bw = 5
		}
	}
	w := bw / 0.53

	codeSec := 1.0 / 1000.0
	c.dopplerHz += 1.4*w*(errPhase-c.errPhasePrev) + w*w*errPhase*codeSec
	c.errPhasePrev = errPhase
}

// runDLL is the normalized non-coherent early-minus-late discriminator
// with a first-order loop filter (channel.rs's run_dll).
func (c *Channel) runDLL(early, late complex128) {
	c.sumCorrE += cmplx.Abs(early)
	c.sumCorrL += cmplx.Abs(late)

	const n = 10 // 10 ms non-coherent integration, T_DLL / code_sec
	if int(c.tick)%n != 0 {
		return
	}

	e, l := c.sumCorrE, c.sumCorrL
	if e+l == 0 {
		return
	}
	codeSec := 1.0 / 1000.0
	errCode := (e - l) / (e + l) / 2.0 * codeSec / constants.CodeLengthChips

	bw := c.conf.DLLBandwidthHz
	if bw <= 0 {
		bw = 0.5
	}
	c.codeOffsetChips -= bw / 0.25 * errCode * codeSec * float64(n) * constants.ChipRateHz
	c.codeOffsetChips = math.Mod(c.codeOffsetChips, constants.CodeLengthChips)
	if c.codeOffsetChips < 0 {
		c.codeOffsetChips += constants.CodeLengthChips
	}

	c.sumCorrE, c.sumCorrL = 0, 0
}

// updateCN0 estimates carrier-to-noise density from the prompt correlator
// power relative to a noise floor, averaged over T_CN0 (1 s).
func (c *Channel) updateCN0(cp complex128) {
	p := real(cp)*real(cp) + imag(cp)*imag(cp)
	c.sumCorrP += p
	c.sumCorrN++

	const avgTicks = 1000
	if int(c.tick)%avgTicks != 0 || c.sumCorrN == 0 {
		return
	}
	avgP := c.sumCorrP / c.sumCorrN
	codeSec := 1.0 / 1000.0
	cn0 := 10 * math.Log10(avgP/codeSec)
	c.cn0 += 0.5 * (cn0 - c.cn0)
	c.sumCorrP, c.sumCorrN = 0, 0
}

// updateCarrierLock is the normalized-power carrier lock detector
//: C_l = (I²−Q²)/(I²+Q²), smoothed.
func (c *Channel) updateCarrierLock(cp complex128) {
	i2 := real(cp) * real(cp)
	q2 := imag(cp) * imag(cp)
	if i2+q2 == 0 {
		return
	}
	inst := (i2 - q2) / (i2 + q2)
	c.carrierLock += 0.1 * (inst - c.carrierLock)
}

func (c *Channel) carrierLockThreshold() float64 {
	if c.conf.CarrierLockThresh > 0 {
		return c.conf.CarrierLockThresh
	}
	return 0.5
}

func (c *Channel) cn0LockedThreshold() float64 {
	if c.conf.CN0LockedThreshDbHz > 0 {
		return c.conf.CN0LockedThreshDbHz
	}
	return 35
}

func (c *Channel) cn0LostThreshold() float64 {
	if c.conf.CN0LostThreshDbHz > 0 {
		return c.conf.CN0LostThreshDbHz
	}
	return 28
}

// advanceState runs the channel's state machine, checked once per
// tick after the loop filters run.
func (c *Channel) advanceState() {
	lockGood := c.carrierLock > c.carrierLockThreshold() && c.cn0 >= c.cn0LockedThreshold()

	if lockGood {
		c.lockGoodTicks++
		c.lockBadTicks = 0
	} else {
		c.lockBadTicks++
		c.lockGoodTicks = 0
	}

	lossTimeout := c.conf.LossTimeoutSec
	if lossTimeout <= 0 {
		lossTimeout = 2.0
	}
	if c.cn0 < c.cn0LostThreshold() && c.state >= StateTrackLocked && float64(c.lockBadTicks) >= lossTimeout*1000 {
		c.transition(StateLost)
		return
	}

	switch c.state {
	case StateAcquired:
		if c.tick-c.enteredState >= pullInTicks(c.conf) {
			c.transition(StatePullIn)
		}
	case StatePullIn:
		if lockGood && c.lockGoodTicks >= 500 {
			c.transition(StateTrackLocked)
		}
	case StateTrackLocked:
		if c.Decoder.Synced() {
			c.transition(StateBitSync)
		}
	case StateBitSync:
		if c.Decoder.FrameSynced() {
			c.transition(StateFrameSync)
		}
	case StateFrameSync:
		if c.Decoder.Ephemeris() != nil {
			c.transition(StateEphemerisValid)
		}
	case StateEphemerisValid:
		// terminal-stable; only LOST above can move it.
	}
}

func (c *Channel) transition(s State) {
	log.Infof("prn %d: %s -> %s (tick=%d cn0=%.1f)", c.PRN, c.state, s, c.tick, c.cn0)
	c.state = s
	c.enteredState = c.tick
}
