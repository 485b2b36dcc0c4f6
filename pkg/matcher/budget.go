package matcher

import (
	"errors"
	"math"
	"math/bits"
	"regexp"
	"strconv"
	"strings"
)

var budgetPattern = regexp.MustCompile(`(\d+)\s*(million|m|k)`)

// ParseBudget extracts the first "<n> million|m|k" amount from the message and
// returns it in whole currency units. million and m multiply by 1,000,000,
// anything else by 1,000. Amounts too large for an int64 saturate at
// math.MaxInt64.
func ParseBudget(message string) (int64, bool) {
	m := budgetPattern.FindStringSubmatch(strings.ToLower(message))
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return math.MaxInt64, true
		}
		return 0, false
	}
	mult := int64(1_000)
	if m[2] == "million" || m[2] == "m" {
		mult = 1_000_000
	}
	if n > math.MaxInt64/mult {
		return math.MaxInt64, true
	}
	return n * mult, true
}

// toleranceScale is the resolution tolerances are applied at (0.001).
const toleranceScale = 1000

// budgetCeiling returns floor(budget * tolerance) with the tolerance rounded
// to three decimals, saturating at math.MaxInt64.
func budgetCeiling(budget int64, tolerance float64) int64 {
	if budget <= 0 || tolerance <= 0 {
		return 0
	}
	f := math.Round(tolerance * toleranceScale)
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	hi, lo := bits.Mul64(uint64(budget), uint64(f))
	if hi >= toleranceScale {
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, toleranceScale)
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}
