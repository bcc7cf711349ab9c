package tacan

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestLookupEligibleTypes(t *testing.T) {
	// 115.40 MHz stored as tenths of a MHz: 1154.
	freq := decimal.NewFromInt(1154)

	ch, ok := Lookup("TC", freq)
	if !ok {
		t.Fatal("expected TC type to resolve a channel")
	}
	if ch.Number <= 0 {
		t.Errorf("expected a positive channel number, got %d", ch.Number)
	}

	ch2, ok2 := Lookup("VTE", freq)
	if !ok2 {
		t.Fatal("expected VT-prefixed type to resolve a channel")
	}
	if ch2 != ch {
		t.Errorf("TC and VTE should resolve the same channel for identical frequency, got %v vs %v", ch, ch2)
	}
}

func TestLookupIneligibleTypeReturnsFalse(t *testing.T) {
	freq := decimal.NewFromInt(1154)
	if _, ok := Lookup("VOR", freq); ok {
		t.Error("expected VOR type to leave the channel unresolved")
	}
	if _, ok := Lookup("", freq); ok {
		t.Error("expected blank type to leave the channel unresolved")
	}
}

func TestLookupAdjacentFrequenciesAlternateBand(t *testing.T) {
	a, ok := Lookup("TC", decimal.NewFromFloat(1080.0)) // 108.00 MHz
	if !ok {
		t.Fatal("expected 108.00 MHz to resolve")
	}
	b, ok := Lookup("TC", decimal.NewFromFloat(1080.5)) // 108.05 MHz
	if !ok {
		t.Fatal("expected 108.05 MHz to resolve")
	}
	if a.Band == b.Band {
		t.Errorf("expected adjacent 0.05 MHz steps to alternate band, got %c and %c", a.Band, b.Band)
	}
}

func TestLookupOutOfRangeFrequencyMisses(t *testing.T) {
	if _, ok := Lookup("TC", decimal.NewFromInt(999999)); ok {
		t.Error("expected an out-of-table frequency to miss")
	}
}
