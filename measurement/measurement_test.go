package measurement

import (
	"testing"

	"github.com/openskynav/gogps/navigation"
	"github.com/openskynav/gogps/tracking"
)

func TestBuildSkipsChannelsBelowEphemerisValid(t *testing.T) {
	b := NewBuilder(MeasurementConf{EpochHz: 1, NominalPropagationMsec: 70})

	inputs := []ChannelInput{
		{PRN: 1, State: tracking.StateFrameSync, Ephemeris: &navigation.Ephemeris{PRN: 1, TOW: 100}},
		{PRN: 2, State: tracking.StateEphemerisValid, Ephemeris: nil},
	}

	out := b.Build(inputs)
	if len(out) != 0 {
		t.Fatalf("Build(): got %d measurements, want 0 (no channel is both EPHEMERIS_VALID and has ephemeris)", len(out))
	}
}

func TestBuildTransmitTimeFormula(t *testing.T) {
	b := NewBuilder(MeasurementConf{EpochHz: 1, NominalPropagationMsec: 70})

	in := ChannelInput{
		PRN:            5,
		State:          tracking.StateEphemerisValid,
		CodePhaseChips: 511.5,
		Ephemeris:      &navigation.Ephemeris{PRN: 5, TOW: 1000},
		BitsSinceHOW:   3,
		CodeEpochsMs:   7,
	}

	wantTxTow := 1000.0 + 3*0.020 + 7*0.001 + 511.5/1023.0*0.001

	out := b.Build([]ChannelInput{in})
	if len(out) != 1 {
		t.Fatalf("Build(): got %d measurements, want 1", len(out))
	}
	if got := out[0].TransmitTOW; absDiff(got, wantTxTow) > 1e-9 {
		t.Errorf("TransmitTOW: got %.9f, want %.9f", got, wantTxTow)
	}
}

func TestBuildSeedsReceiverClockOnceFromFirstMeasurement(t *testing.T) {
	b := NewBuilder(MeasurementConf{EpochHz: 1, NominalPropagationMsec: 70})

	first := ChannelInput{PRN: 1, State: tracking.StateEphemerisValid, Ephemeris: &navigation.Ephemeris{PRN: 1, TOW: 500}}
	out1 := b.Build([]ChannelInput{first})
	wantReceiveTOW := 500.0 + 0.070
	if got := out1[0].ReceiveTOW; absDiff(got, wantReceiveTOW) > 1e-9 {
		t.Fatalf("ReceiveTOW after first epoch: got %.9f, want %.9f", got, wantReceiveTOW)
	}

	second := ChannelInput{PRN: 2, State: tracking.StateEphemerisValid, Ephemeris: &navigation.Ephemeris{PRN: 2, TOW: 999}}
	out2 := b.Build([]ChannelInput{second})
	if got := out2[0].ReceiveTOW; absDiff(got, wantReceiveTOW) > 1e-9 {
		t.Errorf("ReceiveTOW after second epoch: got %.9f, want unchanged %.9f (clock seeded only once)", got, wantReceiveTOW)
	}
}

func absDiff(a, b float64) float64 {
	if a < b {
		return b - a
	}
	return a - b
}
