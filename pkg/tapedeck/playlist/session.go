// Package playlist holds the playlist session: the ordered tracks built from a file selection,
// the current-track pointer, the transport state and the resource handles each batch owns.
package playlist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"github.com/retr0680/tapedeck/pkg/tapedeck/metrics"
)

// State is the transport state of a session.
type State string

const (
	StateIdle    State = "idle"
	StatePaused  State = "paused"
	StatePlaying State = "playing"
)

// Options tune the behavior of a session.
type Options struct {
	// ProbeWorkers caps how many files are probed at once. Zero means one per CPU.
	ProbeWorkers int

	// KeepPlaylistOnInvalidSelection validates a selection before clearing the current
	// playlist. By default a selection without audio files still clears it.
	KeepPlaylistOnInvalidSelection bool

	// InitialVolume is applied to the engine when the session is created. Nil means full
	// volume; point at 0 to start muted.
	InitialVolume *float64

	// OnError receives failures from operations the session starts by itself, such as
	// advancing to the next track when one ends.
	OnError func(err error)
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	Tracks  []Track
	Current int // -1 when the playlist is empty
	State   State
	Loading bool
	Volume  float64
}

// CurrentTrack returns the selected track, if any.
func (s Snapshot) CurrentTrack() (Track, bool) {
	if s.Current < 0 || s.Current >= len(s.Tracks) {
		return Track{}, false
	}

	return s.Tracks[s.Current], true
}

// Session owns the playlist and drives the playback engine.
type Session struct {
	logger    *zap.SugaredLogger
	reader    MetadataReader
	prober    DurationProber
	engine    Engine
	presenter Presenter
	opts      Options

	mu          sync.Mutex
	tracks      []*Track
	current     int
	state       State
	loading     bool
	volume      float64
	handles     handleSet
	generation  uint64
	cancelBatch context.CancelFunc
	closed      bool
}

// NewSession creates an empty session around its collaborators.
func NewSession(
	logger *zap.SugaredLogger,
	reader MetadataReader,
	prober DurationProber,
	engine Engine,
	presenter Presenter,
	opts Options,
) (*Session, error) {
	if reader == nil || prober == nil || engine == nil {
		return nil, errors.New("playlist: metadata reader, duration prober and engine are required")
	}

	if presenter == nil {
		presenter = NopPresenter{}
	}

	logger = logger.Named("playlist")

	s := &Session{
		logger:    logger,
		reader:    reader,
		prober:    prober,
		engine:    engine,
		presenter: presenter,
		opts:      opts,
		current:   -1,
		state:     StateIdle,
		volume:    1,
	}

	if opts.InitialVolume != nil {
		s.volume = ClampVolume(*opts.InitialVolume)
	}

	engine.SetVolume(s.volume)

	logger.Debugw("Created playlist session", "probeWorkers", opts.ProbeWorkers, "volume", s.volume)
	return s, nil
}

// LoadBatch replaces the playlist with the audio files of a new selection. The previous
// batch's handles are released before the new ones are installed. The first track is loaded
// into the engine but not played.
func (s *Session) LoadBatch(ctx context.Context, files []File) error {
	if len(files) == 0 {
		metrics.BatchesTotal.WithLabelValues("no_audio").Inc()
		return ErrNoAudioFiles
	}

	audioFiles := FilterAudio(files)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	if s.loading {
		s.mu.Unlock()
		s.logger.Debug("Rejecting batch, another one is still loading")
		metrics.BatchesTotal.WithLabelValues("busy").Inc()
		return ErrBusy
	}

	if len(audioFiles) == 0 {
		cleared := false
		if !s.opts.KeepPlaylistOnInvalidSelection {
			cleared = len(s.tracks) > 0
			s.clearLocked()
			s.resetLocked()
		}
		snapshot := s.snapshotLocked()
		s.mu.Unlock()

		s.logger.Infow("Selection holds no audio files", "selected", len(files), "cleared", cleared)
		if cleared {
			s.presenter.PlaylistChanged(snapshot)
			s.presenter.StateChanged(snapshot.State)
		}

		metrics.BatchesTotal.WithLabelValues("no_audio").Inc()
		return ErrNoAudioFiles
	}

	released := s.clearLocked()
	s.resetLocked()
	s.loading = true
	s.generation++
	generation := s.generation
	workers := s.opts.ProbeWorkers

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelBatch = cancel

	loadingSnapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Infow("Loading batch",
		"selected", len(files),
		"audio", len(audioFiles),
		"releasedHandles", released)

	s.presenter.PlaylistChanged(loadingSnapshot)
	s.presenter.StateChanged(StateIdle)

	start := time.Now()
	batch := &handleSet{}
	tracks, err := s.buildTracks(batchCtx, audioFiles, batch, workers)
	metrics.BatchDuration.Observe(time.Since(start).Seconds())

	s.mu.Lock()
	if s.closed || generation != s.generation {
		closed := s.closed
		s.mu.Unlock()

		dropped := batch.release()
		s.logger.Debugw("Dropping batch superseded while loading", "releasedHandles", dropped, "closed", closed)
		metrics.BatchesTotal.WithLabelValues("superseded").Inc()

		if closed {
			return ErrClosed
		}
		return ErrSuperseded
	}

	s.cancelBatch = nil
	s.loading = false

	if err != nil {
		snapshot := s.snapshotLocked()
		s.mu.Unlock()

		dropped := batch.release()
		s.logger.Warnw("Failed to load batch", "error", err, "releasedHandles", dropped)
		metrics.BatchesTotal.WithLabelValues("failed").Inc()

		s.presenter.PlaylistChanged(snapshot)
		return err
	}

	s.tracks = tracks
	s.handles = *batch
	s.selectLocked(0)
	snapshot := s.snapshotLocked()
	first := *tracks[0]
	s.mu.Unlock()

	metrics.BatchesTotal.WithLabelValues("loaded").Inc()
	metrics.PlaylistTracks.Set(float64(len(tracks)))
	s.logger.Infow("Loaded batch", "tracks", len(tracks), "took", time.Since(start))

	s.presenter.PlaylistChanged(snapshot)
	s.presentSelection(0, first)

	return nil
}

// buildTracks opens a handle per file and probes every file concurrently, keeping input order.
func (s *Session) buildTracks(ctx context.Context, files []File, batch *handleSet, workers int) (tracks []*Track, err error) {
	defer func() {
		if r := recover(); r != nil {
			tracks = nil
			err = &BatchProcessingError{Err: fmt.Errorf("probe panicked: %v", r)}
		}
	}()

	handles := make([]*Handle, len(files))
	for i, file := range files {
		handles[i] = batch.acquire(file)
	}

	mapper := iter.Mapper[*Handle, *Track]{MaxGoroutines: workers}
	tracks, err = mapper.MapErr(handles, func(h **Handle) (*Track, error) {
		return s.buildTrack(ctx, *h)
	})

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &BatchProcessingError{Err: err}
	}

	return tracks, nil
}

// buildTrack runs the metadata reader and the duration probe side by side. Failures of either
// are absorbed into fallback values.
func (s *Session) buildTrack(ctx context.Context, h *Handle) (*Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		meta     Metadata
		metaErr  error
		seconds  float64
		probeErr error
		wg       conc.WaitGroup
	)

	wg.Go(func() {
		meta, metaErr = s.reader.ReadMetadata(ctx, h.File())
	})
	wg.Go(func() {
		seconds, probeErr = s.prober.ProbeDuration(ctx, h.File())
	})
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if metaErr != nil {
		s.logger.Debugw("Failed to read metadata, using fallbacks", "file", h.File().Name(), "error", metaErr)
		metrics.ProbeFailuresTotal.WithLabelValues("metadata").Inc()
		meta = Metadata{}
	}

	if probeErr != nil || !validDuration(seconds) {
		s.logger.Debugw("Failed to probe duration", "file", h.File().Name(), "seconds", seconds, "error", probeErr)
		metrics.ProbeFailuresTotal.WithLabelValues("duration").Inc()
		seconds = 0
	}

	return newTrack(h, meta, seconds), nil
}

// SelectTrack makes the track at index current without playing it. It reports whether the
// selection was applied; it is ignored while loading or for an out-of-range index.
func (s *Session) SelectTrack(index int) bool {
	s.mu.Lock()
	if s.loading || index < 0 || index >= len(s.tracks) {
		s.mu.Unlock()
		return false
	}

	s.selectLocked(index)
	track := *s.tracks[index]
	s.mu.Unlock()

	metrics.TransportActionsTotal.WithLabelValues("select").Inc()
	s.presentSelection(index, track)

	return true
}

// PlayTrack selects the track at index and starts playing it, the way a playlist row click does.
// Unlike SelectTrack it reports why a selection was refused.
func (s *Session) PlayTrack(ctx context.Context, index int) error {
	if !s.SelectTrack(index) {
		s.mu.Lock()
		defer s.mu.Unlock()

		switch {
		case s.loading:
			return ErrBusy
		case len(s.tracks) == 0:
			return ErrNoTracks
		default:
			return fmt.Errorf("play track %d of %d: %w", index, len(s.tracks), ErrNoSuchTrack)
		}
	}

	return s.Play(ctx)
}

// Advance moves to the next track, wrapping past the end, and plays it.
func (s *Session) Advance(ctx context.Context) error {
	return s.step(ctx, 1, "next")
}

// Retreat moves to the previous track, wrapping past the start, and plays it.
func (s *Session) Retreat(ctx context.Context) error {
	return s.step(ctx, -1, "previous")
}

func (s *Session) step(ctx context.Context, delta int, action string) error {
	s.mu.Lock()
	if s.loading || len(s.tracks) == 0 {
		s.mu.Unlock()
		return nil
	}

	count := len(s.tracks)
	index := ((s.current+delta)%count + count) % count
	s.selectLocked(index)
	track := *s.tracks[index]
	s.mu.Unlock()

	metrics.TransportActionsTotal.WithLabelValues(action).Inc()
	s.logger.Debugw("Stepping through playlist", "action", action, "index", index)
	s.presentSelection(index, track)

	return s.Play(ctx)
}

// Play starts the current track. On rejection the state stays paused and a
// *PlaybackRejectedError is returned.
func (s *Session) Play(ctx context.Context) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil
	}

	if len(s.tracks) == 0 {
		s.mu.Unlock()
		return ErrNoTracks
	}

	if s.state == StatePlaying {
		s.mu.Unlock()
		return nil
	}

	track := s.tracks[s.current]
	if err := s.engine.Play(ctx); err != nil {
		s.mu.Unlock()

		s.logger.Warnw("Engine rejected playback", "track", track, "error", err)
		metrics.PlaybackRejectionsTotal.Inc()
		return &PlaybackRejectedError{Track: track.Title, Err: err}
	}

	s.state = StatePlaying
	s.mu.Unlock()

	metrics.TransportActionsTotal.WithLabelValues("play").Inc()
	s.presenter.StateChanged(StatePlaying)

	return nil
}

// Pause pauses playback. It is a no-op unless the session is playing.
func (s *Session) Pause() {
	s.mu.Lock()
	if s.state != StatePlaying {
		s.mu.Unlock()
		return
	}

	s.engine.Pause()
	s.state = StatePaused
	s.mu.Unlock()

	metrics.TransportActionsTotal.WithLabelValues("pause").Inc()
	s.presenter.StateChanged(StatePaused)
}

// Toggle pauses when playing and plays otherwise.
func (s *Session) Toggle(ctx context.Context) error {
	if s.State() == StatePlaying {
		s.Pause()
		return nil
	}

	return s.Play(ctx)
}

// Seek moves playback to a normalized position p along the track. It reports whether the
// engine was asked to seek; nothing happens while the duration is unknown. Before the engine
// has decoded the source, the probed track duration is used.
func (s *Session) Seek(p float64) bool {
	s.mu.Lock()
	if len(s.tracks) == 0 || s.loading {
		s.mu.Unlock()
		return false
	}

	duration := s.engine.Duration()
	if !validDuration(duration) {
		duration = s.tracks[s.current].Duration
	}

	position, ok := SeekPosition(p, duration)
	if !ok {
		s.mu.Unlock()
		return false
	}

	if err := s.engine.Seek(position); err != nil {
		s.mu.Unlock()
		s.logger.Warnw("Failed to seek", "position", position, "error", err)
		return false
	}
	s.mu.Unlock()

	metrics.TransportActionsTotal.WithLabelValues("seek").Inc()
	s.presenter.ProgressChanged(NewProgress(position, duration))
	return true
}

// SetOptions replaces the tunables read by later operations. A batch already loading keeps
// the options it started with. The volume is not touched; use SetVolume.
func (s *Session) SetOptions(opts Options) {
	s.mu.Lock()
	s.opts.ProbeWorkers = opts.ProbeWorkers
	s.opts.KeepPlaylistOnInvalidSelection = opts.KeepPlaylistOnInvalidSelection
	s.mu.Unlock()

	s.logger.Debugw("Updated session options",
		"probeWorkers", opts.ProbeWorkers,
		"keepPlaylistOnInvalidSelection", opts.KeepPlaylistOnInvalidSelection)
}

// SetVolume forwards a volume in [0,1] to the engine.
func (s *Session) SetVolume(v float64) {
	v = ClampVolume(v)

	s.mu.Lock()
	s.volume = v
	s.engine.SetVolume(v)
	s.mu.Unlock()

	metrics.TransportActionsTotal.WithLabelValues("volume").Inc()
	s.presenter.VolumeChanged(v)
}

// Release unloads the engine source and releases every handle the session holds, emptying
// the playlist. A batch still loading is abandoned. Calling it again releases nothing.
func (s *Session) Release() int {
	s.mu.Lock()
	if s.loading {
		s.abandonBatchLocked()
	}

	hadTracks := len(s.tracks) > 0
	released := s.clearLocked()
	s.resetLocked()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if released > 0 {
		s.logger.Debugw("Released resource handles", "count", released)
	}

	if hadTracks {
		s.presenter.PlaylistChanged(snapshot)
		s.presenter.StateChanged(StateIdle)
	}

	return released
}

// Close tears the session down: in-flight probes are canceled and every handle is released.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true
	if s.loading {
		s.abandonBatchLocked()
	}

	released := s.clearLocked()
	s.resetLocked()
	s.mu.Unlock()

	s.logger.Debugw("Closed playlist session", "releasedHandles", released)
	return nil
}

// Run consumes engine events until ctx is done or the engine closes its event channel.
func (s *Session) Run(ctx context.Context) error {
	events := s.engine.Events()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-events:
			if !ok {
				s.logger.Debug("Engine event channel closed")
				return nil
			}

			switch event.Kind {
			case EventTimeUpdate:
				s.handleTimeUpdate(event)
			case EventEnded:
				s.handleEnded(ctx, event)
			}
		}
	}
}

func (s *Session) handleTimeUpdate(event EngineEvent) {
	s.mu.Lock()
	if !s.isCurrentLocked(event.HandleID) {
		s.mu.Unlock()
		return
	}

	progress := NewProgress(event.Position, event.Duration)

	var snapshot *Snapshot
	track := s.tracks[s.current]
	if progress.Known && track.Duration == 0 {
		track.Duration = event.Duration
		snap := s.snapshotLocked()
		snapshot = &snap
		s.logger.Debugw("Back-filled track duration", "track", track)
	}
	s.mu.Unlock()

	s.presenter.ProgressChanged(progress)
	if snapshot != nil {
		s.presenter.PlaylistChanged(*snapshot)
	}
}

func (s *Session) handleEnded(ctx context.Context, event EngineEvent) {
	s.mu.Lock()
	current := s.isCurrentLocked(event.HandleID) && s.state == StatePlaying
	if current {
		s.state = StatePaused
	}
	s.mu.Unlock()

	if !current {
		s.logger.Debugw("Ignoring stale end-of-track event", "handle", event.HandleID)
		return
	}

	s.logger.Debug("Track ended, advancing")
	if err := s.Advance(ctx); err != nil {
		s.reportError(err)
	}
}

// State returns the transport state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshotLocked()
}

func (s *Session) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fmt.Sprintf("<playlist: %d tracks, current: %d, state: %s>", len(s.tracks), s.current, s.state)
}

// selectLocked points the session and the engine at the track at index. Caller holds s.mu.
func (s *Session) selectLocked(index int) {
	s.current = index
	s.state = StatePaused

	track := s.tracks[index]
	if err := s.engine.Load(track.Handle); err != nil {
		s.logger.Warnw("Failed to load track into engine", "track", track, "error", err)
	}
}

func (s *Session) presentSelection(index int, track Track) {
	s.presenter.TrackSelected(index, track)
	s.presenter.ProgressChanged(Progress{
		CurrentText:  FormatTime(0),
		DurationText: track.DurationText(),
		Duration:     track.Duration,
		Known:        validDuration(track.Duration),
	})
	s.presenter.StateChanged(StatePaused)
}

// clearLocked unloads the engine source before releasing the handles of the current batch.
func (s *Session) clearLocked() int {
	if s.handles.len() > 0 || len(s.tracks) > 0 {
		s.engine.Unload()
	}

	return s.handles.release()
}

func (s *Session) resetLocked() {
	s.tracks = nil
	s.current = -1
	s.state = StateIdle
	metrics.PlaylistTracks.Set(0)
}

func (s *Session) abandonBatchLocked() {
	if s.cancelBatch != nil {
		s.cancelBatch()
		s.cancelBatch = nil
	}

	s.generation++
	s.loading = false
}

func (s *Session) isCurrentLocked(handleID string) bool {
	return s.current >= 0 && s.current < len(s.tracks) && s.tracks[s.current].Handle.ID() == handleID
}

func (s *Session) snapshotLocked() Snapshot {
	tracks := make([]Track, len(s.tracks))
	for i, track := range s.tracks {
		tracks[i] = *track
	}

	return Snapshot{
		Tracks:  tracks,
		Current: s.current,
		State:   s.state,
		Loading: s.loading,
		Volume:  s.volume,
	}
}

func (s *Session) reportError(err error) {
	s.logger.Warnw("Session operation failed", "error", err)

	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}
