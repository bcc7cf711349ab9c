// Package tacan derives TACAN channel designations from navaid frequency
// and type, per spec.md §4.9.
package tacan

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Band is the TACAN X/Y channel sub-band.
type Band byte

const (
	BandX Band = 'X'
	BandY Band = 'Y'
)

// Channel is a resolved TACAN channel designation, e.g. "56X".
type Channel struct {
	Number int
	Band   Band
}

func (c Channel) String() string {
	return fmt.Sprintf("%d%c", c.Number, byte(c.Band))
}

var (
	stepMHz = decimal.NewFromFloat(0.05)
	baseMHz = decimal.NewFromFloat(108.00)
	ten     = decimal.NewFromInt(10)

	tableOnce sync.Once
	table     map[string]Channel
)

// buildTable constructs the fixed VOR/TACAN paired-channel lookup: the
// VHF navigation band 108.00-117.95 MHz in 0.05 MHz steps, alternating X
// and Y sub-bands per step, channels numbered from 17. Computed once with
// exact decimal arithmetic so that channel boundaries never drift from
// floating-point rounding.
func buildTable() map[string]Channel {
	t := make(map[string]Channel, 200)
	freq := baseMHz
	channel := 17
	for i := 0; i < 200; i++ {
		band := BandX
		if i%2 == 1 {
			band = BandY
		}
		t[freq.StringFixed(2)] = Channel{Number: channel, Band: band}
		if i%2 == 1 {
			channel++
		}
		freq = freq.Add(stepMHz)
	}
	return t
}

// eligible reports whether typeCode is one the pass applies to: exactly
// "TC", or any code beginning with "VT".
func eligible(typeCode string) bool {
	tc := strings.ToUpper(strings.TrimSpace(typeCode))
	return tc == "TC" || strings.HasPrefix(tc, "VT")
}

// Lookup computes the TACAN channel for a navaid row, per spec.md §4.9:
// rows whose type is "TC" or begins with "VT" have their frequency
// (stored in tenths of a MHz) divided by 10 and looked up in the fixed
// channel table; every other type leaves the channel unresolved (ok=false),
// meaning the caller must leave the channel column null.
func Lookup(typeCode string, rawFrequency decimal.Decimal) (Channel, bool) {
	if !eligible(typeCode) {
		return Channel{}, false
	}
	tableOnce.Do(func() { table = buildTable() })

	mhz := rawFrequency.Div(ten)
	ch, ok := table[mhz.StringFixed(2)]
	return ch, ok
}
