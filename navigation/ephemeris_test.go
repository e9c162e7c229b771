package navigation

import "testing"

func TestEphemerisCompleteRequiresAllSubframesAndMatchingIOD(t *testing.T) {
	e := Ephemeris{PRN: 3}
	if e.Complete() {
		t.Fatal("Complete(): want false before any subframe is applied")
	}

	e.sf1, e.sf2, e.sf3 = true, true, true
	e.IODC = 0x1FA // low byte 0xFA
	e.IODE = 0xFA
	e.iode2 = 0xFA
	if !e.Complete() {
		t.Error("Complete(): want true when sf1/sf2/sf3 applied and IODC/IODE(SF2)/IODE(SF3) all agree")
	}

	e.IODE = 0xFB
	if e.Complete() {
		t.Error("Complete(): want false when IODC low byte does not match SF3's IODE")
	}
	e.IODE = 0xFA

	e.iode2 = 0xFB
	if e.Complete() {
		t.Error("Complete(): want false when SF2's IODE does not match SF3's IODE")
	}
}

func TestStorePublishLoad(t *testing.T) {
	var s Store
	if s.Load() != nil {
		t.Fatal("Load(): want nil before any Publish")
	}

	e := &Ephemeris{PRN: 12, TOW: 100}
	s.Publish(e)

	got := s.Load()
	if got == nil || got.PRN != 12 || got.TOW != 100 {
		t.Fatalf("Load(): got %+v, want PRN=12 TOW=100", got)
	}

	s.Publish(&Ephemeris{PRN: 12, TOW: 200})
	if got := s.Load(); got.TOW != 200 {
		t.Errorf("Load() after second Publish: got TOW=%d, want 200", got.TOW)
	}
}
