package playlist

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"
)

type memFile struct {
	name        string
	contentType string
	data        []byte
}

func newMemFile(name string) *memFile {
	return &memFile{name: name, contentType: ContentTypeFor(name), data: []byte("data:" + name)}
}

func (f *memFile) Name() string        { return f.name }
func (f *memFile) ContentType() string { return f.contentType }

func (f *memFile) Open() (io.ReadSeekCloser, error) {
	return nopCloser{bytes.NewReader(f.data)}, nil
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }

func audioFiles(names ...string) []File {
	files := make([]File, len(names))
	for i, name := range names {
		files[i] = newMemFile(name)
	}
	return files
}

type fakeReader struct {
	mu       sync.Mutex
	metadata map[string]Metadata
	errs     map[string]error
	panicOn  string

	// started is signaled once per call when non-nil; block holds the call until closed.
	started chan string
	block   chan struct{}
}

func (r *fakeReader) ReadMetadata(ctx context.Context, f File) (Metadata, error) {
	if r.started != nil {
		r.started <- f.Name()
	}
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return Metadata{}, ctx.Err()
		}
	}

	if f.Name() == r.panicOn {
		panic("corrupt tag frame")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err, ok := r.errs[f.Name()]; ok {
		return Metadata{}, err
	}
	return r.metadata[f.Name()], nil
}

type fakeProber struct {
	durations map[string]float64
	errs      map[string]error
}

func (p *fakeProber) ProbeDuration(_ context.Context, f File) (float64, error) {
	if err, ok := p.errs[f.Name()]; ok {
		return 0, err
	}
	if seconds, ok := p.durations[f.Name()]; ok {
		return seconds, nil
	}
	return 180, nil
}

type fakeEngine struct {
	mu       sync.Mutex
	loaded   *Handle
	loads    int
	unloads  int
	playing  bool
	plays    int
	playErr  error
	volume   float64
	duration float64
	seeks    []float64
	events   chan EngineEvent
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{duration: math.NaN(), events: make(chan EngineEvent, 16)}
}

func (e *fakeEngine) Load(h *Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if h.Released() {
		return ErrHandleReleased
	}
	e.loaded = h
	e.loads++
	e.playing = false
	return nil
}

func (e *fakeEngine) Unload() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.loaded = nil
	e.unloads++
	e.playing = false
}

func (e *fakeEngine) Play(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loaded == nil {
		return errors.New("no source")
	}
	if e.playErr != nil {
		return e.playErr
	}
	e.playing = true
	e.plays++
	return nil
}

func (e *fakeEngine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
}

func (e *fakeEngine) Seek(seconds float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seeks = append(e.seeks, seconds)
	return nil
}

func (e *fakeEngine) Position() float64 { return 0 }

func (e *fakeEngine) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

func (e *fakeEngine) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = v
}

func (e *fakeEngine) Events() <-chan EngineEvent { return e.events }

func (e *fakeEngine) Close() error { return nil }

func (e *fakeEngine) source() *Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

func (e *fakeEngine) isPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

type recordingPresenter struct {
	mu        sync.Mutex
	snapshots []Snapshot
	selected  []int
	progress  []Progress
	states    []State
	volumes   []float64
}

func (p *recordingPresenter) PlaylistChanged(s Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, s)
}

func (p *recordingPresenter) TrackSelected(index int, _ Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selected = append(p.selected, index)
}

func (p *recordingPresenter) ProgressChanged(progress Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress = append(p.progress, progress)
}

func (p *recordingPresenter) StateChanged(state State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, state)
}

func (p *recordingPresenter) VolumeChanged(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volumes = append(p.volumes, v)
}

func (p *recordingPresenter) lastProgress() (Progress, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.progress) == 0 {
		return Progress{}, false
	}
	return p.progress[len(p.progress)-1], true
}

// eventually polls cond until it holds or a second has passed.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met: %s", msg)
}
