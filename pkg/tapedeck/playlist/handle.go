package playlist

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/retr0680/tapedeck/pkg/tapedeck/metrics"
)

// Handle is a revocable reference to a file's byte stream, usable as a playback source.
// A handle has a single owner (the batch that created it) and is released exactly once.
type Handle struct {
	id   string
	file File

	mu       sync.Mutex
	released bool
	readers  map[*handleReader]struct{}
}

func newHandle(file File) *Handle {
	metrics.HandlesOpen.Inc()

	return &Handle{
		id:      uuid.NewString(),
		file:    file,
		readers: make(map[*handleReader]struct{}),
	}
}

// ID returns the handle's unique identifier.
func (h *Handle) ID() string {
	return h.id
}

// File returns the file the handle refers to.
func (h *Handle) File() File {
	return h.file
}

// Open returns a reader over the underlying file. Readers still open when the handle is
// released are closed along with it.
func (h *Handle) Open() (io.ReadSeekCloser, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil, ErrHandleReleased
	}

	rc, err := h.file.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", h.file.Name(), err)
	}

	reader := &handleReader{ReadSeekCloser: rc, handle: h}
	h.readers[reader] = struct{}{}

	return reader, nil
}

// Release revokes the handle. It returns true only for the call that actually released it.
func (h *Handle) Release() bool {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return false
	}

	h.released = true
	readers := h.readers
	h.readers = nil
	h.mu.Unlock()

	for reader := range readers {
		reader.closeUnderlying()
	}

	metrics.HandlesOpen.Dec()
	return true
}

// Released reports whether the handle has been revoked.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.released
}

func (h *Handle) forget(reader *handleReader) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.readers, reader)
}

func (h *Handle) String() string {
	return fmt.Sprintf("<handle: %s, file: %s>", h.id, h.file.Name())
}

type handleReader struct {
	io.ReadSeekCloser
	handle *Handle

	once     sync.Once
	closeErr error
}

func (r *handleReader) Close() error {
	r.handle.forget(r)
	return r.closeUnderlying()
}

func (r *handleReader) closeUnderlying() error {
	r.once.Do(func() {
		r.closeErr = r.ReadSeekCloser.Close()
	})

	return r.closeErr
}

// handleSet owns the handles of one batch.
type handleSet struct {
	handles []*Handle
}

func (s *handleSet) acquire(file File) *Handle {
	h := newHandle(file)
	s.handles = append(s.handles, h)
	return h
}

// release revokes every handle in the set and empties it. Returns how many were released.
func (s *handleSet) release() int {
	released := 0
	for _, h := range s.handles {
		if h.Release() {
			released++
		}
	}

	s.handles = nil
	return released
}

func (s *handleSet) len() int {
	return len(s.handles)
}
