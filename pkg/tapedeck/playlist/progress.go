package playlist

import "math"

// Progress is what the presentation layer needs to draw the seek bar.
type Progress struct {
	Current  float64 // seconds
	Duration float64 // seconds, may be NaN while unknown

	// Fraction is only meaningful when Known is set; otherwise the bar keeps its last fill.
	Fraction float64
	Known    bool

	CurrentText  string
	DurationText string
}

// NewProgress projects an engine time update onto the seek bar.
func NewProgress(current, duration float64) Progress {
	fraction, known := ProgressFraction(current, duration)

	p := Progress{
		Current:      current,
		Duration:     duration,
		Fraction:     fraction,
		Known:        known,
		CurrentText:  FormatTime(current),
		DurationText: "0:00",
	}
	if known {
		p.DurationText = FormatTime(duration)
	}

	return p
}

// ProgressFraction returns current/duration when the duration is finite and positive.
func ProgressFraction(current, duration float64) (float64, bool) {
	if !validDuration(duration) {
		return 0, false
	}

	return current / duration, true
}

// SeekPosition maps a normalized position along the bar to seconds. The position is clamped
// to [0,1]; nothing is returned while the duration is unknown.
func SeekPosition(p, duration float64) (float64, bool) {
	if !validDuration(duration) || math.IsNaN(p) {
		return 0, false
	}

	return clampUnit(p) * duration, true
}

// ClampVolume keeps a volume inside [0,1]. Values already in range pass through unchanged.
func ClampVolume(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}

	return clampUnit(v)
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func validDuration(seconds float64) bool {
	return !math.IsNaN(seconds) && !math.IsInf(seconds, 0) && seconds > 0
}
