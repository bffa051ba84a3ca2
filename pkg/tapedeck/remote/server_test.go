package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/retr0680/tapedeck/pkg/tapedeck/playlist"
)

type fakePlayer struct {
	mu       sync.Mutex
	snapshot playlist.Snapshot
	calls    []string
	err      error
	seekOK   bool
	volume   float64
	seekedTo float64
	loaded   []playlist.File
}

func (p *fakePlayer) record(call string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, call)
	return p.err
}

func (p *fakePlayer) called(call string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (p *fakePlayer) Snapshot() playlist.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

func (p *fakePlayer) LoadBatch(ctx context.Context, files []playlist.File) error {
	p.mu.Lock()
	p.loaded = files
	p.mu.Unlock()
	return p.record("load")
}

func (p *fakePlayer) SelectTrack(index int) bool {
	p.record(fmt.Sprintf("select %d", index))
	return index >= 0 && index < len(p.Snapshot().Tracks)
}

func (p *fakePlayer) PlayTrack(ctx context.Context, index int) error {
	if err := p.record(fmt.Sprintf("play %d", index)); err != nil {
		return err
	}
	if index < 0 || index >= len(p.Snapshot().Tracks) {
		return fmt.Errorf("play track %d: %w", index, playlist.ErrNoSuchTrack)
	}
	return nil
}

func (p *fakePlayer) Play(context.Context) error    { return p.record("play") }
func (p *fakePlayer) Pause()                        { p.record("pause") }
func (p *fakePlayer) Toggle(context.Context) error  { return p.record("toggle") }
func (p *fakePlayer) Advance(context.Context) error { return p.record("next") }
func (p *fakePlayer) Retreat(context.Context) error { return p.record("previous") }

func (p *fakePlayer) Seek(pos float64) bool {
	p.record("seek")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seekedTo = pos
	return p.seekOK
}

func (p *fakePlayer) SetVolume(v float64) {
	p.record("volume")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
}

type stubFile struct{ name string }

func (f stubFile) Name() string                     { return f.name }
func (f stubFile) ContentType() string              { return playlist.ContentTypeFor(f.name) }
func (f stubFile) Open() (io.ReadSeekCloser, error) { return nil, errors.New("not readable") }

func twoTracks() playlist.Snapshot {
	return playlist.Snapshot{
		Tracks: []playlist.Track{
			{Title: "One", Artist: "A", Duration: 61, File: stubFile{"one.mp3"},
				Cover: &playlist.Cover{MIMEType: "image/png", Data: []byte("png")}},
			{Title: "Two", Artist: playlist.UnknownArtist, File: stubFile{"two.mp3"}},
		},
		Current: 0,
		State:   playlist.StatePaused,
		Volume:  0.5,
	}
}

func newTestServer(t *testing.T, player *fakePlayer) (*httptest.Server, *Hub) {
	t.Helper()

	logger := zaptest.NewLogger(t).Sugar()
	hub := NewHub(logger)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	resolve := func(paths []string) ([]playlist.File, error) {
		files := make([]playlist.File, len(paths))
		for i, path := range paths {
			files[i] = stubFile{path}
		}
		return files, nil
	}

	server := httptest.NewServer(NewServer(logger, player, resolve, hub).Handler())
	t.Cleanup(func() {
		server.Close()
		cancel()
	})

	return server, hub
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func TestStatus(t *testing.T) {
	player := &fakePlayer{snapshot: twoTracks()}
	server, _ := newTestServer(t, player)

	code, body := do(t, http.MethodGet, server.URL+"/api/status", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", code, body)
	}

	var status statusDTO
	if err := json.Unmarshal([]byte(body), &status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}

	if status.State != playlist.StatePaused || status.TrackCount != 2 || status.Volume != 0.5 {
		t.Errorf("Unexpected status %+v", status)
	}
	if status.Track == nil || status.Track.Title != "One" || status.Track.DurationText != "1:01" || !status.Track.HasCover {
		t.Errorf("Unexpected current track %+v", status.Track)
	}
}

func TestTracks(t *testing.T) {
	player := &fakePlayer{snapshot: twoTracks()}
	server, _ := newTestServer(t, player)

	code, body := do(t, http.MethodGet, server.URL+"/api/tracks", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}

	var tracks []trackDTO
	if err := json.Unmarshal([]byte(body), &tracks); err != nil {
		t.Fatalf("Failed to decode tracks: %v", err)
	}

	if len(tracks) != 2 || !tracks[0].Current || tracks[1].Current {
		t.Fatalf("Unexpected tracks %+v", tracks)
	}
	if tracks[1].FileName != "two.mp3" || tracks[1].DurationText != "0:00" {
		t.Errorf("Unexpected second track %+v", tracks[1])
	}
}

func TestCover(t *testing.T) {
	player := &fakePlayer{snapshot: twoTracks()}
	server, _ := newTestServer(t, player)

	resp, err := http.Get(server.URL + "/api/tracks/0/cover")
	if err != nil {
		t.Fatalf("GET cover failed: %v", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(data) != "png" {
		t.Errorf("Unexpected cover response %d %q", resp.StatusCode, data)
	}
	if got := resp.Header.Get("Content-Type"); got != "image/png" {
		t.Errorf("Expected image/png, got %s", got)
	}

	for _, path := range []string{"/api/tracks/1/cover", "/api/tracks/7/cover"} {
		if code, _ := do(t, http.MethodGet, server.URL+path, ""); code != http.StatusNotFound {
			t.Errorf("GET %s: expected 404, got %d", path, code)
		}
	}
}

func TestTransportRoutes(t *testing.T) {
	tests := []struct {
		path string
		call string
	}{
		{"/api/play", "play"},
		{"/api/pause", "pause"},
		{"/api/toggle", "toggle"},
		{"/api/next", "next"},
		{"/api/previous", "previous"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			player := &fakePlayer{snapshot: twoTracks()}
			server, _ := newTestServer(t, player)

			if code, body := do(t, http.MethodPost, server.URL+tt.path, ""); code != http.StatusOK {
				t.Fatalf("Expected 200, got %d: %s", code, body)
			}
			if !player.called(tt.call) {
				t.Errorf("Expected %s to be called, got %v", tt.call, player.calls)
			}
		})
	}
}

func TestTransportErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"rejected", &playlist.PlaybackRejectedError{Track: "x", Err: errors.New("decode")}, http.StatusUnprocessableEntity},
		{"empty", playlist.ErrNoTracks, http.StatusConflict},
		{"closed", playlist.ErrClosed, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			player := &fakePlayer{err: tt.err}
			server, _ := newTestServer(t, player)

			code, body := do(t, http.MethodPost, server.URL+"/api/play", "")
			if code != tt.want {
				t.Errorf("Expected %d, got %d: %s", tt.want, code, body)
			}
			if !strings.Contains(body, "error") {
				t.Errorf("Expected an error body, got %s", body)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	player := &fakePlayer{}
	server, _ := newTestServer(t, player)

	code, body := do(t, http.MethodPost, server.URL+"/api/load", `{"paths":["a.mp3","b.flac"]}`)
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", code, body)
	}

	player.mu.Lock()
	defer player.mu.Unlock()
	if len(player.loaded) != 2 || player.loaded[1].Name() != "b.flac" {
		t.Errorf("Unexpected loaded files %v", player.loaded)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"malformed", `{"paths":`, nil, http.StatusBadRequest},
		{"busy", `{"paths":["a.mp3"]}`, playlist.ErrBusy, http.StatusConflict},
		{"no audio", `{"paths":["a.txt"]}`, playlist.ErrNoAudioFiles, http.StatusUnprocessableEntity},
		{"batch failure", `{"paths":["a.mp3"]}`, &playlist.BatchProcessingError{Err: errors.New("boom")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			player := &fakePlayer{err: tt.err}
			server, _ := newTestServer(t, player)

			if code, body := do(t, http.MethodPost, server.URL+"/api/load", tt.body); code != tt.want {
				t.Errorf("Expected %d, got %d: %s", tt.want, code, body)
			}
		})
	}
}

func TestSelect(t *testing.T) {
	player := &fakePlayer{snapshot: twoTracks()}
	server, _ := newTestServer(t, player)

	if code, _ := do(t, http.MethodPost, server.URL+"/api/tracks/1/select", ""); code != http.StatusOK {
		t.Errorf("Expected 200, got %d", code)
	}
	if !player.called("select 1") {
		t.Errorf("Expected select 1, got %v", player.calls)
	}

	if code, _ := do(t, http.MethodPost, server.URL+"/api/tracks/1/select", `{"play":true}`); code != http.StatusOK {
		t.Errorf("Expected 200, got %d", code)
	}
	if !player.called("play 1") {
		t.Errorf("Expected play 1, got %v", player.calls)
	}

	if code, _ := do(t, http.MethodPost, server.URL+"/api/tracks/9/select", ""); code != http.StatusNotFound {
		t.Errorf("Expected 404 for a missing track, got %d", code)
	}
	if code, _ := do(t, http.MethodPost, server.URL+"/api/tracks/9/select", `{"play":true}`); code != http.StatusNotFound {
		t.Errorf("Expected 404 when playing a missing track, got %d", code)
	}
}

func TestSeekAndVolume(t *testing.T) {
	player := &fakePlayer{snapshot: twoTracks()}
	server, _ := newTestServer(t, player)

	if code, _ := do(t, http.MethodPost, server.URL+"/api/seek", `{"position":0.5}`); code != http.StatusConflict {
		t.Errorf("Expected 409 while duration is unknown, got %d", code)
	}

	player.mu.Lock()
	player.seekOK = true
	player.mu.Unlock()

	if code, _ := do(t, http.MethodPost, server.URL+"/api/seek", `{"position":0.25}`); code != http.StatusOK {
		t.Errorf("Expected 200, got %d", code)
	}
	if code, _ := do(t, http.MethodPost, server.URL+"/api/seek", `{}`); code != http.StatusBadRequest {
		t.Errorf("Expected 400 without a position, got %d", code)
	}

	if code, _ := do(t, http.MethodPost, server.URL+"/api/volume", `{"volume":0.3}`); code != http.StatusOK {
		t.Errorf("Expected 200, got %d", code)
	}

	player.mu.Lock()
	defer player.mu.Unlock()
	if player.seekedTo != 0.25 || player.volume != 0.3 {
		t.Errorf("Expected seek 0.25 and volume 0.3, got %v and %v", player.seekedTo, player.volume)
	}
}

func TestUnknownRoute(t *testing.T) {
	server, _ := newTestServer(t, &fakePlayer{})

	if code, _ := do(t, http.MethodGet, server.URL+"/api/nope", ""); code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", code)
	}

	for _, route := range []string{"/api/play", "/api/tracks/1/select", "/api/volume"} {
		code, body := do(t, http.MethodGet, server.URL+route, "")
		if code != http.StatusMethodNotAllowed {
			t.Errorf("GET %s: expected 405, got %d", route, code)
		}
		if !strings.Contains(body, errMethod.Error()) {
			t.Errorf("GET %s: expected JSON error body, got %q", route, body)
		}
	}

	if code, _ := do(t, http.MethodPost, server.URL+"/api/status", ""); code != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/status: expected 405, got %d", code)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read websocket message: %v", err)
	}
	return msg
}

func TestWebsocket(t *testing.T) {
	player := &fakePlayer{snapshot: twoTracks()}
	server, hub := newTestServer(t, player)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	defer conn.Close()

	if msg := readMessage(t, conn); msg.Type != MsgTypePlaylist {
		t.Fatalf("Expected initial playlist message, got %s", msg.Type)
	}

	if err := conn.WriteJSON(Message{Type: MsgTypeNext}); err != nil {
		t.Fatalf("Failed to send command: %v", err)
	}

	hub.StateChanged(playlist.StatePlaying)
	if msg := readMessage(t, conn); msg.Type != MsgTypeState || !strings.Contains(string(msg.Data), "playing") {
		t.Errorf("Expected state message, got %s %s", msg.Type, msg.Data)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !player.called("next") {
		if time.Now().After(deadline) {
			t.Fatal("Expected next to be called")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := conn.WriteJSON(Message{Type: "rewind"}); err != nil {
		t.Fatalf("Failed to send command: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != MsgTypeError {
		t.Errorf("Expected error reply for unknown command, got %s", msg.Type)
	}

	if hub.ClientCount() != 1 {
		t.Errorf("Expected 1 client, got %d", hub.ClientCount())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{playlist.ErrBusy, http.StatusConflict},
		{fmt.Errorf("load: %w", playlist.ErrNoAudioFiles), http.StatusUnprocessableEntity},
		{playlist.ErrSuperseded, http.StatusConflict},
		{fmt.Errorf("play track 9: %w", playlist.ErrNoSuchTrack), http.StatusNotFound},
		{errMethod, http.StatusMethodNotAllowed},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
