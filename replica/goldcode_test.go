package replica

import "testing"

// TestGenerateChipsPRN1FirstTenChips checks the IS-GPS-200 first-ten-chip
// sequence for PRN 1: 1100100000.
func TestGenerateChipsPRN1FirstTenChips(t *testing.T) {
	chips, err := GenerateChips(1)
	if err != nil {
		t.Fatalf("GenerateChips(1): %v", err)
	}
	got := ChipsToBits(chips[:10])
	want := "1100100000"
	if got != want {
		t.Errorf("PRN1 first ten chips: got %q want %q", got, want)
	}
}

func TestGenerateChipsLengthAndAlphabet(t *testing.T) {
	for prn := 1; prn <= 32; prn++ {
		chips, err := GenerateChips(prn)
		if err != nil {
			t.Fatalf("GenerateChips(%d): %v", prn, err)
		}
		if len(chips) != 1023 {
			t.Errorf("PRN %d: got %d chips, want 1023", prn, len(chips))
		}
		for i, c := range chips {
			if c != 1 && c != -1 {
				t.Fatalf("PRN %d chip %d: got %d, want ±1", prn, i, c)
			}
		}
	}
}

func TestGenerateChipsOutOfRange(t *testing.T) {
	if _, err := GenerateChips(0); err == nil {
		t.Error("GenerateChips(0): want error, got nil")
	}
	if _, err := GenerateChips(33); err == nil {
		t.Error("GenerateChips(33): want error, got nil")
	}
}

// TestGenerateChipsDistinctPerPRN checks that distinct PRNs produce
// distinct code sequences (they share the same G1 register and differ
// only by G2 delay, so an accidental delay collision would be a real bug).
func TestGenerateChipsDistinctPerPRN(t *testing.T) {
	seen := make(map[string]int)
	for prn := 1; prn <= 32; prn++ {
		chips, err := GenerateChips(prn)
		if err != nil {
			t.Fatalf("GenerateChips(%d): %v", prn, err)
		}
		key := ChipsToBits(chips)
		if other, ok := seen[key]; ok {
			t.Errorf("PRN %d produced the same code as PRN %d", prn, other)
		}
		seen[key] = prn
	}
}

// TestGenerateChipsAutocorrelationPeak checks the defining property of a
// Gold code: circular autocorrelation peaks sharply at zero lag relative
// to any other lag.
func TestGenerateChipsAutocorrelationPeak(t *testing.T) {
	chips, err := GenerateChips(7)
	if err != nil {
		t.Fatalf("GenerateChips(7): %v", err)
	}
	n := len(chips)

	autocorr := func(lag int) int {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(chips[i]) * int(chips[(i+lag)%n])
		}
		return sum
	}

	peak := autocorr(0)
	if peak != n {
		t.Errorf("zero-lag autocorrelation: got %d, want %d", peak, n)
	}
	for _, lag := range []int{1, 100, 511, 1000} {
		if v := autocorr(lag); v >= peak {
			t.Errorf("lag %d autocorrelation %d not below zero-lag peak %d", lag, v, peak)
		}
	}
}
