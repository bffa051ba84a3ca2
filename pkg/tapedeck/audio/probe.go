package audio

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/retr0680/tapedeck/pkg/tapedeck/playlist"
)

var errUnknownLength = errors.New("stream length unknown")

// Prober measures track lengths by decoding each file's header.
type Prober struct {
	logger *zap.SugaredLogger
}

// NewProber creates a Prober.
func NewProber(logger *zap.SugaredLogger) *Prober {
	return &Prober{logger: logger.Named("prober")}
}

// ProbeDuration returns the length of f in seconds.
func (p *Prober) ProbeDuration(ctx context.Context, f playlist.File) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", f.Name(), err)
	}

	streamer, format, err := Decode(rc, f.Name(), f.ContentType())
	if err != nil {
		rc.Close()
		return 0, err
	}
	defer streamer.Close()

	samples := streamer.Len()
	if samples <= 0 {
		return 0, fmt.Errorf("probe %s: %w", f.Name(), errUnknownLength)
	}

	seconds := format.SampleRate.D(samples).Seconds()
	p.logger.Debugw("Probed duration", "file", f.Name(), "seconds", seconds, "sampleRate", format.SampleRate)

	return seconds, nil
}
