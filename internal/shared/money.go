package shared

import (
	"fmt"
	"math"
)

// Round2 rounds to 2 decimal places, half away from zero. Ledger amounts are
// stored to the paisa.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round4 rounds to 4 decimal places, used for exchange and WAE rates.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// AmountsEqual compares two amounts at 2dp precision.
func AmountsEqual(a, b float64) bool {
	return fmt.Sprintf("%.2f", a) == fmt.Sprintf("%.2f", b)
}
