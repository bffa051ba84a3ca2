//go:build (linux && cgo) || windows || darwin

package audio

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"go.uber.org/zap"

	"github.com/retr0680/tapedeck/pkg/tapedeck/playlist"
)

// Available indicates whether audio playback is supported in this build.
const Available = true

const outputSampleRate = beep.SampleRate(44100)

// SpeakerEngine plays one handle at a time through the system's audio output.
type SpeakerEngine struct {
	logger *zap.SugaredLogger

	mu          sync.Mutex
	initialized bool
	closed      bool

	handle   *playlist.Handle
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	level    float64
	playing  bool
	ended    bool

	// pending is the start position in seconds for a source not decoded yet
	pending float64

	events chan playlist.EngineEvent
	quit   chan struct{}
	wg     sync.WaitGroup
}

// NewEngine creates the speaker-backed engine. The speaker itself is initialized on first play.
func NewEngine(logger *zap.SugaredLogger) (*SpeakerEngine, error) {
	e := &SpeakerEngine{
		logger: logger.Named("engine"),
		level:  1,
		events: make(chan playlist.EngineEvent, eventBuffer),
		quit:   make(chan struct{}),
	}

	e.wg.Add(1)
	go e.tick()

	e.logger.Debugw("Created engine", "sampleRate", outputSampleRate)
	return e, nil
}

// Load makes h the current source. Decoding is deferred until Play.
func (e *SpeakerEngine) Load(h *playlist.Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if h.Released() {
		return playlist.ErrHandleReleased
	}

	e.stopLocked()
	e.handle = h
	e.pending = 0

	return nil
}

// Unload stops playback and forgets the current source.
func (e *SpeakerEngine) Unload() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()
	e.handle = nil
	e.pending = 0
}

// Play starts or resumes the current source.
func (e *SpeakerEngine) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == nil {
		return ErrNoSource
	}

	if e.streamer == nil {
		if err := e.startLocked(); err != nil {
			return err
		}
	} else if e.ended {
		if err := e.restartLocked(); err != nil {
			return err
		}
	} else {
		speaker.Lock()
		e.ctrl.Paused = false
		speaker.Unlock()
	}

	e.playing = true
	return nil
}

// Pause halts output, keeping the position.
func (e *SpeakerEngine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctrl != nil {
		speaker.Lock()
		e.ctrl.Paused = true
		speaker.Unlock()
	}
	e.playing = false
}

// Seek moves to the given second, clamped to the stream. A source that has not started yet
// remembers the position and starts from it.
func (e *SpeakerEngine) Seek(seconds float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == nil {
		return ErrNoSource
	}

	if e.streamer == nil {
		e.pending = math.Max(seconds, 0)
		return nil
	}

	speaker.Lock()
	defer speaker.Unlock()

	if err := e.seekLocked(seconds); err != nil {
		return err
	}
	e.ended = false

	return nil
}

// seekLocked positions the decoded stream. Caller holds e.mu and the speaker lock.
func (e *SpeakerEngine) seekLocked(seconds float64) error {
	target := e.format.SampleRate.N(time.Duration(seconds * float64(time.Second)))
	if length := e.streamer.Len(); target >= length {
		target = length - 1
	}
	if target < 0 {
		target = 0
	}

	if err := e.streamer.Seek(target); err != nil {
		return fmt.Errorf("seek %s: %w", e.handle.File().Name(), err)
	}
	return nil
}

// Position returns the play position in seconds.
func (e *SpeakerEngine) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.positionLocked()
}

// Duration returns the current source's length in seconds, NaN until it has been decoded.
func (e *SpeakerEngine) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.durationLocked()
}

// SetVolume applies a linear volume in [0,1].
func (e *SpeakerEngine) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.level = playlist.ClampVolume(v)
	if e.volume == nil {
		return
	}

	exponent, silent := gain(e.level)

	speaker.Lock()
	e.volume.Volume = exponent
	e.volume.Silent = silent
	speaker.Unlock()
}

// Events delivers time updates and end-of-track signals. The channel is closed by Close.
func (e *SpeakerEngine) Events() <-chan playlist.EngineEvent {
	return e.events
}

// Close stops playback and closes the event channel.
func (e *SpeakerEngine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}

	e.closed = true
	e.stopLocked()
	e.handle = nil
	close(e.quit)
	e.mu.Unlock()

	e.wg.Wait()

	e.mu.Lock()
	close(e.events)
	e.mu.Unlock()

	e.logger.Debug("Engine closed")
	return nil
}

func (e *SpeakerEngine) startLocked() error {
	rc, err := e.handle.Open()
	if err != nil {
		return err
	}

	file := e.handle.File()
	streamer, format, err := Decode(rc, file.Name(), file.ContentType())
	if err != nil {
		rc.Close()
		return err
	}

	if !e.initialized {
		if err := speaker.Init(outputSampleRate, outputSampleRate.N(time.Second/10)); err != nil {
			streamer.Close()
			return fmt.Errorf("init speaker: %w", err)
		}
		e.initialized = true
	}

	e.streamer = streamer
	e.format = format
	e.ended = false

	if e.pending > 0 {
		// not queued on the speaker yet, no speaker lock needed
		if err := e.seekLocked(e.pending); err != nil {
			e.logger.Warnw("Failed to apply start position", "position", e.pending, "error", err)
		}
		e.pending = 0
	}

	e.playLocked()

	e.logger.Debugw("Started source",
		"handle", e.handle.ID(),
		"file", file.Name(),
		"sampleRate", format.SampleRate,
		"duration", e.durationLocked())

	return nil
}

// restartLocked rewinds a source that has played to its end and queues it again.
func (e *SpeakerEngine) restartLocked() error {
	speaker.Lock()
	err := e.streamer.Seek(0)
	speaker.Unlock()

	if err != nil {
		return fmt.Errorf("rewind %s: %w", e.handle.File().Name(), err)
	}

	e.ended = false
	e.playLocked()

	return nil
}

func (e *SpeakerEngine) playLocked() {
	var source beep.Streamer = e.streamer
	if e.format.SampleRate != outputSampleRate {
		source = beep.Resample(4, e.format.SampleRate, outputSampleRate, e.streamer)
	}

	exponent, silent := gain(e.level)

	e.ctrl = &beep.Ctrl{Streamer: source, Paused: false}
	e.volume = &effects.Volume{Streamer: e.ctrl, Base: 2, Volume: exponent, Silent: silent}

	id := e.handle.ID()
	speaker.Play(beep.Seq(e.volume, beep.Callback(func() {
		// runs on the speaker goroutine with the speaker locked
		go e.finished(id)
	})))
}

func (e *SpeakerEngine) stopLocked() {
	if e.streamer == nil {
		e.playing = false
		return
	}

	speaker.Clear()
	e.streamer.Close()

	e.streamer = nil
	e.ctrl = nil
	e.volume = nil
	e.playing = false
	e.ended = false
}

func (e *SpeakerEngine) finished(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.handle == nil || e.handle.ID() != id {
		return
	}

	e.playing = false
	e.ended = true

	e.emitLocked(playlist.EngineEvent{
		Kind:     playlist.EventEnded,
		HandleID: id,
		Position: e.positionLocked(),
		Duration: e.durationLocked(),
	})
}

func (e *SpeakerEngine) tick() {
	defer e.wg.Done()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.quit:
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.playing && e.streamer != nil && len(e.events) < cap(e.events)/2 {
				e.emitLocked(playlist.EngineEvent{
					Kind:     playlist.EventTimeUpdate,
					HandleID: e.handle.ID(),
					Position: e.positionLocked(),
					Duration: e.durationLocked(),
				})
			}
			e.mu.Unlock()
		}
	}
}

func (e *SpeakerEngine) emitLocked(event playlist.EngineEvent) {
	if e.closed {
		return
	}

	select {
	case e.events <- event:
	default:
		e.logger.Warnw("Dropped engine event, consumer too slow", "kind", event.Kind, "handle", event.HandleID)
	}
}

func (e *SpeakerEngine) positionLocked() float64 {
	if e.streamer == nil {
		return e.pending
	}

	speaker.Lock()
	position := e.streamer.Position()
	speaker.Unlock()

	return e.format.SampleRate.D(position).Seconds()
}

func (e *SpeakerEngine) durationLocked() float64 {
	if e.streamer == nil || e.streamer.Len() <= 0 {
		return math.NaN()
	}

	return e.format.SampleRate.D(e.streamer.Len()).Seconds()
}
