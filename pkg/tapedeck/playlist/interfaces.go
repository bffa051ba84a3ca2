package playlist

import (
	"context"
)

// MetadataReader extracts embedded tag data from a file.
type MetadataReader interface {
	ReadMetadata(ctx context.Context, f File) (Metadata, error)
}

// DurationProber measures the length of a file in seconds.
type DurationProber interface {
	ProbeDuration(ctx context.Context, f File) (float64, error)
}

// EngineEventKind tells time updates apart from end-of-track signals.
type EngineEventKind int

const (
	EventTimeUpdate EngineEventKind = iota
	EventEnded
)

// EngineEvent is emitted by the playback engine for the source identified by HandleID.
// Position and Duration are in seconds; Duration is NaN while the engine doesn't know it.
type EngineEvent struct {
	Kind     EngineEventKind
	HandleID string
	Position float64
	Duration float64
}

// Engine plays one source at a time.
type Engine interface {
	// Load makes the handle the current source, stopping whatever was loaded before.
	// It does not start playback.
	Load(h *Handle) error

	// Unload drops the current source so its handle can be released.
	Unload()

	// Play starts or resumes the current source. It fails when there is no source or the
	// source cannot be decoded.
	Play(ctx context.Context) error

	Pause()

	// Seek moves the play position, in seconds.
	Seek(seconds float64) error

	// Position and Duration are in seconds. Duration is NaN while unknown.
	Position() float64
	Duration() float64

	// SetVolume takes a linear gain in [0,1].
	SetVolume(v float64)

	// Events delivers time updates and end-of-track signals.
	Events() <-chan EngineEvent

	Close() error
}

// Presenter is the presentation layer the session pushes its state into.
type Presenter interface {
	PlaylistChanged(snapshot Snapshot)
	TrackSelected(index int, track Track)
	ProgressChanged(progress Progress)
	StateChanged(state State)
	VolumeChanged(volume float64)
}

// NopPresenter ignores everything.
type NopPresenter struct{}

func (NopPresenter) PlaylistChanged(Snapshot) {}
func (NopPresenter) TrackSelected(int, Track) {}
func (NopPresenter) ProgressChanged(Progress) {}
func (NopPresenter) StateChanged(State)       {}
func (NopPresenter) VolumeChanged(float64)    {}

// Presenters fans every call out to each presenter in order.
type Presenters []Presenter

func (ps Presenters) PlaylistChanged(snapshot Snapshot) {
	for _, p := range ps {
		p.PlaylistChanged(snapshot)
	}
}

func (ps Presenters) TrackSelected(index int, track Track) {
	for _, p := range ps {
		p.TrackSelected(index, track)
	}
}

func (ps Presenters) ProgressChanged(progress Progress) {
	for _, p := range ps {
		p.ProgressChanged(progress)
	}
}

func (ps Presenters) StateChanged(state State) {
	for _, p := range ps {
		p.StateChanged(state)
	}
}

func (ps Presenters) VolumeChanged(volume float64) {
	for _, p := range ps {
		p.VolumeChanged(volume)
	}
}
