package audio

import (
	"errors"
	"math"
	"time"

	"github.com/retr0680/tapedeck/pkg/tapedeck/playlist"
)

var (
	// ErrNoSource is returned when playback is requested with nothing loaded.
	ErrNoSource = errors.New("no source loaded")

	// ErrAudioUnavailable is returned by builds without an audio backend.
	ErrAudioUnavailable = errors.New("audio output not available in this build")
)

const (
	// tickInterval is how often a playing engine reports its position.
	tickInterval = 250 * time.Millisecond

	eventBuffer = 32
)

// gain converts a linear volume in [0,1] into the exponent used by a base-2 volume effect.
// The second return value is true when the output should be silent.
func gain(v float64) (float64, bool) {
	v = playlist.ClampVolume(v)
	if v <= 0 {
		return 0, true
	}

	return math.Log2(v), false
}
