package playlist

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAudioFiles is returned when a selection holds no audio-typed files.
	ErrNoAudioFiles = errors.New("no audio files selected")

	// ErrBusy is returned when a batch is requested while another one is still loading.
	ErrBusy = errors.New("another batch is still loading")

	// ErrNoTracks is returned by transport operations on an empty playlist.
	ErrNoTracks = errors.New("playlist is empty")

	// ErrNoSuchTrack is returned when an index does not name a track of the playlist.
	ErrNoSuchTrack = errors.New("no track at that index")

	// ErrClosed is returned once the session has been torn down.
	ErrClosed = errors.New("session closed")

	// ErrSuperseded is returned by a batch whose playlist was released before it finished loading.
	ErrSuperseded = errors.New("batch superseded")

	// ErrHandleReleased is returned when opening a handle that was already released.
	ErrHandleReleased = errors.New("resource handle released")
)

// BatchProcessingError reports an unexpected failure while joining the per-file probes of a batch.
type BatchProcessingError struct {
	Err error
}

func (e *BatchProcessingError) Error() string {
	return fmt.Sprintf("process batch: %v", e.Err)
}

func (e *BatchProcessingError) Unwrap() error {
	return e.Err
}

// PlaybackRejectedError reports that the engine refused to start playing a track.
type PlaybackRejectedError struct {
	Track string
	Err   error
}

func (e *PlaybackRejectedError) Error() string {
	return fmt.Sprintf("play %q: %v", e.Track, e.Err)
}

func (e *PlaybackRejectedError) Unwrap() error {
	return e.Err
}
