package tapedeck

import (
	"context"
	"math"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/retr0680/tapedeck/pkg/tapedeck/playlist"
)

type notification struct {
	title   string
	message string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Notify(title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sent = append(n.sent, notification{title, message})
}

func (n *recordingNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	titles := make([]string, len(n.sent))
	for i, sent := range n.sent {
		titles[i] = sent.title
	}
	return titles
}

func testLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

// loadedConfig returns a config populated from defaults only.
func loadedConfig(t *testing.T) *CanonicalConfig {
	t.Helper()

	cc, err := NewConfig(testLogger(t), &recordingNotifier{}, t.TempDir()+"/missing.yaml")
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if err := cc.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return cc
}

type stubProbes struct{}

func (stubProbes) ReadMetadata(context.Context, playlist.File) (playlist.Metadata, error) {
	return playlist.Metadata{}, nil
}

func (stubProbes) ProbeDuration(context.Context, playlist.File) (float64, error) {
	return 120, nil
}

// volumeEngine accepts every request and records the volume it was given.
type volumeEngine struct {
	mu     sync.Mutex
	volume float64
	events chan playlist.EngineEvent
}

func newVolumeEngine() *volumeEngine {
	return &volumeEngine{events: make(chan playlist.EngineEvent)}
}

func (e *volumeEngine) Load(*playlist.Handle) error         { return nil }
func (e *volumeEngine) Unload()                             {}
func (e *volumeEngine) Play(context.Context) error          { return nil }
func (e *volumeEngine) Pause()                              {}
func (e *volumeEngine) Seek(float64) error                  { return nil }
func (e *volumeEngine) Position() float64                   { return 0 }
func (e *volumeEngine) Duration() float64                   { return math.NaN() }
func (e *volumeEngine) Events() <-chan playlist.EngineEvent { return e.events }
func (e *volumeEngine) Close() error                        { return nil }

func (e *volumeEngine) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = v
}

func (e *volumeEngine) currentVolume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}
