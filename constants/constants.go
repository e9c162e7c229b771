// Package constants holds the fixed GPS L1 C/A physical-layer parameters
// shared by every stage of the pipeline.
package constants

import "time"

const (
	// L1Hz is the GPS L1 carrier frequency in Hz.
	L1Hz = 1575.42e6

	// ChipRateHz is the C/A code chipping rate in chips/sec.
	ChipRateHz = 1.023e6

	// CodeLengthChips is the number of chips in one C/A code period.
	CodeLengthChips = 1023

	// CodePeriod is the duration of one C/A code period (and one
	// coherent integration window).
	CodePeriod = time.Millisecond

	// DefaultSampleRateHz is the canonical sampling rate: exactly 2x the
	// chip rate, giving an integer number of samples per code period.
	DefaultSampleRateHz = 2.046e6

	// NavBitDurationMsec is the duration of one navigation bit (50 bps).
	NavBitDurationMsec = 20

	// BitsPerWord is the width of a navigation word before parity.
	BitsPerWord = 30

	// DataBitsPerWord is the number of data bits per word (parity excluded).
	DataBitsPerWord = 24

	// WordsPerSubframe is the number of 30-bit words in a subframe.
	WordsPerSubframe = 10

	// SubframeBits is the total bit length of one subframe (300 bits, 6s).
	SubframeBits = WordsPerSubframe * BitsPerWord

	// SubframeDuration is the time to transmit one subframe.
	SubframeDuration = 6 * time.Second

	// TLMPreamble is the 8-bit telemetry word preamble, IS-GPS-200 value 0x8B.
	TLMPreamble = 0x8B

	// PreambleBits is the bit length of the TLM preamble.
	PreambleBits = 8

	// SpeedOfLight in m/s, used for pseudorange computation.
	SpeedOfLight = 299_792_458.0

	// EarthGravitationalConstant (WGS-84 value used by the broadcast
	// ephemeris orbital model), m^3/s^2.
	EarthGravitationalConstant = 3.986005e14

	// EarthRotationRateRadPerSec is the WGS-84 Earth rotation rate.
	EarthRotationRateRadPerSec = 7.2921151467e-5

	// SecondsPerGPSWeek.
	SecondsPerGPSWeek = 7 * 24 * 60 * 60

	// MinPRN and MaxPRN bound the valid GPS PRN id range.
	MinPRN = 1
	MaxPRN = 32
)

// TwoPi is used pervasively for carrier phase wrapping.
const TwoPi = 2 * 3.14159265358979323846
