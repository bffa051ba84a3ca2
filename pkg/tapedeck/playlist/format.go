package playlist

import (
	"fmt"
	"math"
)

// FormatTime renders seconds as "M:SS": minutes unpadded, seconds padded to two digits.
// Negative and non-finite values render as "0:00".
func FormatTime(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "0:00"
	}

	minutes := int64(math.Floor(seconds / 60))
	rest := int64(math.Floor(math.Mod(seconds, 60)))

	return fmt.Sprintf("%d:%02d", minutes, rest)
}
