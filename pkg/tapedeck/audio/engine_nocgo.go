//go:build !((linux && cgo) || windows || darwin)

package audio

import (
	"context"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/retr0680/tapedeck/pkg/tapedeck/playlist"
)

// Available indicates whether audio playback is supported in this build.
// The speaker backend needs cgo on this platform.
const Available = false

// SilentEngine tracks a loaded source but refuses to play it.
type SilentEngine struct {
	logger *zap.SugaredLogger

	mu      sync.Mutex
	handle  *playlist.Handle
	level   float64
	pending float64
	closed  bool
	events  chan playlist.EngineEvent
}

// NewEngine creates an engine that rejects every play request.
func NewEngine(logger *zap.SugaredLogger) (*SilentEngine, error) {
	e := &SilentEngine{
		logger: logger.Named("engine"),
		level:  1,
		events: make(chan playlist.EngineEvent, eventBuffer),
	}

	e.logger.Warn("Audio output unavailable in this build, playback will be rejected")
	return e, nil
}

func (e *SilentEngine) Load(h *playlist.Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if h.Released() {
		return playlist.ErrHandleReleased
	}
	e.handle = h
	e.pending = 0
	return nil
}

func (e *SilentEngine) Unload() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handle = nil
	e.pending = 0
}

// Play always fails.
func (e *SilentEngine) Play(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == nil {
		return ErrNoSource
	}
	return ErrAudioUnavailable
}

func (e *SilentEngine) Pause() {}

// Seek records the position of the loaded source.
func (e *SilentEngine) Seek(seconds float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == nil {
		return ErrNoSource
	}
	e.pending = math.Max(seconds, 0)
	return nil
}

func (e *SilentEngine) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

func (e *SilentEngine) Duration() float64 { return math.NaN() }

func (e *SilentEngine) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.level = playlist.ClampVolume(v)
}

func (e *SilentEngine) Events() <-chan playlist.EngineEvent {
	return e.events
}

func (e *SilentEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closed {
		e.closed = true
		close(e.events)
	}
	return nil
}
