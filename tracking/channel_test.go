package tracking

import (
	"testing"

	"github.com/openskynav/gogps/config"
	"github.com/openskynav/gogps/navigation"
	"github.com/openskynav/gogps/replica"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateAcquired:       "ACQUIRED",
		StatePullIn:         "PULL_IN",
		StateTrackLocked:    "TRACK_LOCKED",
		StateBitSync:        "BIT_SYNC",
		StateFrameSync:      "FRAME_SYNC",
		StateEphemerisValid: "EPHEMERIS_VALID",
		StateLost:           "LOST",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String(): got %q, want %q", state, got, want)
		}
	}
}

func newTestChannel(t *testing.T) *Channel {
	t.Helper()
	bank, err := replica.NewBank(2048000, []int{1})
	if err != nil {
		t.Fatalf("replica.NewBank: %v", err)
	}
	rep, _ := bank.Get(1)
	return New(1, rep, 2048000, 0, 0, config.TrackingConf{}, config.NavConf{})
}

func TestNewChannelStartsAcquired(t *testing.T) {
	c := newTestChannel(t)
	if c.State() != StateAcquired {
		t.Errorf("State(): got %v, want StateAcquired", c.State())
	}
	if c.Decoder == nil {
		t.Error("Decoder: want non-nil navigation.Decoder")
	}
	var _ *navigation.Decoder = c.Decoder
}

func TestProcessBlockAdvancesTickAndTrace(t *testing.T) {
	c := newTestChannel(t)
	n := c.n

	for i := 0; i < 5; i++ {
		block := make([]complex64, n)
		for j := range block {
			block[j] = complex64(c.rep.Samples[j])
		}
		tick := c.ProcessBlock(block)
		if tick.Epoch != uint64(i+1) {
			t.Errorf("tick %d: Epoch=%d, want %d", i, tick.Epoch, i+1)
		}
	}

	iq, codeErr, carrierErr := c.Trace()
	if len(iq) != 5 || len(codeErr) != 5 || len(carrierErr) != 5 {
		t.Errorf("Trace(): got lengths iq=%d codeErr=%d carrierErr=%d, want 5 each", len(iq), len(codeErr), len(carrierErr))
	}
}

func TestTraceHistoryIsCapped(t *testing.T) {
	c := newTestChannel(t)
	n := c.n
	block := make([]complex64, n)
	for j := range block {
		block[j] = complex64(c.rep.Samples[j])
	}

	for i := 0; i < traceHistoryLen+50; i++ {
		c.ProcessBlock(block)
	}

	iq, _, _ := c.Trace()
	if len(iq) != traceHistoryLen {
		t.Errorf("Trace() after %d ticks: got %d samples, want capped at %d", traceHistoryLen+50, len(iq), traceHistoryLen)
	}
}
