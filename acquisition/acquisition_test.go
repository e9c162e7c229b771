package acquisition

import (
	"context"
	"math"
	"testing"

	"github.com/openskynav/gogps/config"
	"github.com/openskynav/gogps/replica"
)

// TestTryAcquireFindsExactReplica feeds the engine numMsec copies of
// a PRN's own replica (the noiseless, zero-Doppler, zero-phase case) and
// checks it reports a near-zero phase offset and near-zero Doppler,
// exercising the full FFT circular-correlation search path.
func TestTryAcquireFindsExactReplica(t *testing.T) {
	const sampleRate = 2048000.0
	bank, err := replica.NewBank(sampleRate, []int{3})
	if err != nil {
		t.Fatalf("replica.NewBank: %v", err)
	}
	rep, _ := bank.Get(3)

	conf := config.AcquisitionConf{
		PRNs:              []int{3},
		DopplerSpreadHz:   1000,
		DopplerStepHz:     500,
		CoherentMsec:      1,
		NonCoherentSums:   4,
		DetectionThreshDb: 1,
	}
	eng := New(bank, conf)

	numMsec := conf.CoherentMsec * conf.NonCoherentSums
	window := make([]complex64, rep.N*numMsec)
	for m := 0; m < numMsec; m++ {
		for i := 0; i < rep.N; i++ {
			window[m*rep.N+i] = complex64(rep.Samples[i])
		}
	}

	res := eng.TryAcquire(3, window, sampleRate)
	if res == nil {
		t.Fatal("TryAcquire: want a detection for the satellite's own replica, got nil")
	}
	if math.Abs(res.PhaseOffset) > 0.5 {
		t.Errorf("PhaseOffset: got %.4f, want near 0 for an unshifted replica", res.PhaseOffset)
	}
	if math.Abs(res.DopplerHz) > 50 {
		t.Errorf("DopplerHz: got %.1f, want near 0 for a zero-Doppler replica", res.DopplerHz)
	}
	if len(res.SurfaceDb) != rep.N {
		t.Errorf("SurfaceDb: got length %d, want %d", len(res.SurfaceDb), rep.N)
	}
}

func TestTryAcquireUnknownPRNReturnsNil(t *testing.T) {
	bank, err := replica.NewBank(2048000, []int{1})
	if err != nil {
		t.Fatalf("replica.NewBank: %v", err)
	}
	eng := New(bank, config.AcquisitionConf{PRNs: []int{1}, CoherentMsec: 1, NonCoherentSums: 1})
	if res := eng.TryAcquire(9, make([]complex64, 2048), 2048000); res != nil {
		t.Errorf("TryAcquire(9, ...): want nil for a PRN not in the bank, got %+v", res)
	}
}

func TestSearchAllReturnsOneResultPerPRN(t *testing.T) {
	const sampleRate = 2048000.0
	prns := []int{5, 1, 9}
	bank, err := replica.NewBank(sampleRate, prns)
	if err != nil {
		t.Fatalf("replica.NewBank: %v", err)
	}
	conf := config.AcquisitionConf{PRNs: prns, CoherentMsec: 1, NonCoherentSums: 2, DetectionThreshDb: 1000}
	eng := New(bank, conf)

	n, _ := bank.Get(1)
	window := make([]complex64, n.N*2)

	results := eng.SearchAll(context.Background(), window, sampleRate)
	if len(results) != len(prns) {
		t.Fatalf("SearchAll: got %d results, want %d", len(results), len(prns))
	}
}
