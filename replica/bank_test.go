package replica

import "testing"

func TestNewBankBlockLen(t *testing.T) {
	b, err := NewBank(2048000, []int{1, 5, 12})
	if err != nil {
		t.Fatalf("NewBank: %v", err)
	}
	if want := 2048; b.N() != want {
		t.Errorf("N(): got %d, want %d (round(Fs/1000))", b.N(), want)
	}
	if b.SampleRate() != 2048000 {
		t.Errorf("SampleRate(): got %v", b.SampleRate())
	}

	for _, prn := range []int{1, 5, 12} {
		rep, ok := b.Get(prn)
		if !ok {
			t.Fatalf("Get(%d): not found", prn)
		}
		if len(rep.Samples) != b.N() {
			t.Errorf("PRN %d: len(Samples)=%d, want %d", prn, len(rep.Samples), b.N())
		}
		if len(rep.FFT) != b.N() {
			t.Errorf("PRN %d: len(FFT)=%d, want %d", prn, len(rep.FFT), b.N())
		}
	}

	if _, ok := b.Get(99); ok {
		t.Error("Get(99): want not found")
	}
}

func TestNewBankInvalidSampleRate(t *testing.T) {
	if _, err := NewBank(0, []int{1}); err == nil {
		t.Error("NewBank(0, ...): want error, got nil")
	}
}

func TestShiftedReplicaIsCircular(t *testing.T) {
	b, err := NewBank(2048000, []int{1})
	if err != nil {
		t.Fatalf("NewBank: %v", err)
	}
	rep, _ := b.Get(1)

	full := ShiftedReplica(rep.Samples, b.SampleRate(), 1023) // one full code period
	for i := range full {
		if full[i] != rep.Samples[i] {
			t.Fatalf("shift by one full code period should be the identity at sample %d", i)
			break
		}
	}

	zero := ShiftedReplica(rep.Samples, b.SampleRate(), 0)
	for i := range zero {
		if zero[i] != rep.Samples[i] {
			t.Fatalf("zero shift should be the identity at sample %d", i)
			break
		}
	}
}

func TestPRNsSorted(t *testing.T) {
	b, err := NewBank(2048000, []int{7, 3, 19, 1})
	if err != nil {
		t.Fatalf("NewBank: %v", err)
	}
	got := b.PRNs()
	want := []int{1, 3, 7, 19}
	if len(got) != len(want) {
		t.Fatalf("PRNs(): got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("PRNs(): got %v, want %v", got, want)
		}
	}
}
