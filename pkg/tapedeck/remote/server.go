// Package remote exposes the playlist session over a local HTTP and websocket API.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/retr0680/tapedeck/pkg/tapedeck/playlist"
)

// Player is the part of the session the remote drives.
type Player interface {
	Snapshot() playlist.Snapshot
	LoadBatch(ctx context.Context, files []playlist.File) error
	SelectTrack(index int) bool
	PlayTrack(ctx context.Context, index int) error
	Play(ctx context.Context) error
	Pause()
	Toggle(ctx context.Context) error
	Advance(ctx context.Context) error
	Retreat(ctx context.Context) error
	Seek(p float64) bool
	SetVolume(v float64)
}

// Resolver turns user-supplied paths into a file selection.
type Resolver func(paths []string) ([]playlist.File, error)

var (
	errBadIndex    = errors.New("no track at that index")
	errNoRoute     = errors.New("no such endpoint")
	errMethod      = errors.New("method not allowed")
	errNoCover     = errors.New("track has no cover")
	errBadRequest  = errors.New("malformed request body")
	errSeekUnknown = errors.New("duration unknown, cannot seek")
)

// Server serves the remote control API.
type Server struct {
	logger  *zap.SugaredLogger
	player  Player
	resolve Resolver
	hub     *Hub

	router   *mux.Router
	upgrader websocket.Upgrader
}

// NewServer wires the routes. The hub must be running for websocket clients to be served.
func NewServer(logger *zap.SugaredLogger, player Player, resolve Resolver, hub *Hub) *Server {
	s := &Server{
		logger:  logger.Named("remote"),
		player:  player,
		resolve: resolve,
		hub:     hub,
		router:  mux.NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: sameHost,
		},
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(metricsMiddleware)
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, errNoRoute)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, errMethod)
	})

	// routes stay on the root router, a subrouter reports method mismatches as 404
	s.router.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/api/tracks", s.handleTracks).Methods(http.MethodGet)
	s.router.HandleFunc("/api/tracks/{index:[0-9]+}/cover", s.handleCover).Methods(http.MethodGet)
	s.router.HandleFunc("/api/tracks/{index:[0-9]+}/select", s.handleSelect).Methods(http.MethodPost)
	s.router.HandleFunc("/api/load", s.handleLoad).Methods(http.MethodPost)
	s.router.HandleFunc("/api/play", s.transport(s.player.Play)).Methods(http.MethodPost)
	s.router.HandleFunc("/api/pause", s.transport(func(context.Context) error {
		s.player.Pause()
		return nil
	})).Methods(http.MethodPost)
	s.router.HandleFunc("/api/toggle", s.transport(s.player.Toggle)).Methods(http.MethodPost)
	s.router.HandleFunc("/api/next", s.transport(s.player.Advance)).Methods(http.MethodPost)
	s.router.HandleFunc("/api/previous", s.transport(s.player.Retreat)).Methods(http.MethodPost)
	s.router.HandleFunc("/api/seek", s.handleSeek).Methods(http.MethodPost)
	s.router.HandleFunc("/api/volume", s.handleVolume).Methods(http.MethodPost)

	s.router.HandleFunc("/ws", s.handleWebsocket).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errChannel := make(chan error, 1)
	go func() {
		errChannel <- server.Serve(listener)
	}()

	s.logger.Infow("Remote control listening", "addr", listener.Addr().String())

	select {
	case err := <-errChannel:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve remote control: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("Shutting down remote control")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shut down remote control: %w", err)
		}
		return nil
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newStatusDTO(s.player.Snapshot()))
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newTrackDTOs(s.player.Snapshot()))
}

func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	track, ok := s.trackAt(r)
	if !ok {
		s.writeError(w, errBadIndex)
		return
	}
	if track.Cover == nil {
		s.writeError(w, errNoCover)
		return
	}

	w.Header().Set("Content-Type", track.Cover.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(track.Cover.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(track.Cover.Data)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	index, _ := strconv.Atoi(mux.Vars(r)["index"])

	var req selectRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, errBadRequest)
			return
		}
	}

	if req.Play {
		if err := s.player.PlayTrack(r.Context(), index); err != nil {
			s.writeError(w, err)
			return
		}
	} else if !s.player.SelectTrack(index) {
		s.writeError(w, errBadIndex)
		return
	}

	writeJSON(w, http.StatusOK, newStatusDTO(s.player.Snapshot()))
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errBadRequest)
		return
	}

	files, err := s.resolve(req.Paths)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// the batch outlives a client that disconnects mid-load
	if err := s.player.LoadBatch(context.WithoutCancel(r.Context()), files); err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newStatusDTO(s.player.Snapshot()))
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Position == nil {
		s.writeError(w, errBadRequest)
		return
	}

	if !s.player.Seek(*req.Position) {
		s.writeError(w, errSeekUnknown)
		return
	}

	writeJSON(w, http.StatusOK, newStatusDTO(s.player.Snapshot()))
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Volume == nil {
		s.writeError(w, errBadRequest)
		return
	}

	s.player.SetVolume(*req.Volume)
	writeJSON(w, http.StatusOK, newStatusDTO(s.player.Snapshot()))
}

func (s *Server) transport(action func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := action(r.Context()); err != nil {
			s.writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, newStatusDTO(s.player.Snapshot()))
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("Failed to upgrade websocket", "error", err)
		return
	}

	// pumps outlive the upgrade request
	ctx := context.WithoutCancel(r.Context())
	s.hub.attach(ctx, conn, s.handleCommand)

	s.hub.PlaylistChanged(s.player.Snapshot())
}

func (s *Server) handleCommand(ctx context.Context, msg *Message) error {
	switch msg.Type {
	case MsgTypePlay:
		return s.player.Play(ctx)
	case MsgTypePause:
		s.player.Pause()
		return nil
	case MsgTypeToggle:
		return s.player.Toggle(ctx)
	case MsgTypeNext:
		return s.player.Advance(ctx)
	case MsgTypePrevious:
		return s.player.Retreat(ctx)

	case MsgTypeSeek:
		var req seekRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.Position == nil {
			return errBadRequest
		}
		if !s.player.Seek(*req.Position) {
			return errSeekUnknown
		}
		return nil

	case MsgTypeSetVol:
		var req volumeRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.Volume == nil {
			return errBadRequest
		}
		s.player.SetVolume(*req.Volume)
		return nil

	case MsgTypeSelect:
		var req struct {
			Index *int `json:"index"`
			Play  bool `json:"play"`
		}
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.Index == nil {
			return errBadRequest
		}
		if req.Play {
			return s.player.PlayTrack(ctx, *req.Index)
		}
		if !s.player.SelectTrack(*req.Index) {
			return errBadIndex
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q", msg.Type)
	}
}

func (s *Server) trackAt(r *http.Request) (playlist.Track, bool) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		return playlist.Track{}, false
	}

	snapshot := s.player.Snapshot()
	if index < 0 || index >= len(snapshot.Tracks) {
		return playlist.Track{}, false
	}

	return snapshot.Tracks[index], true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warnw("Remote request failed", "error", err)
	} else {
		s.logger.Debugw("Remote request rejected", "error", err, "status", status)
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var rejected *playlist.PlaybackRejectedError

	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, errBadIndex), errors.Is(err, errNoCover), errors.Is(err, errNoRoute),
		errors.Is(err, playlist.ErrNoSuchTrack):
		return http.StatusNotFound
	case errors.Is(err, errMethod):
		return http.StatusMethodNotAllowed
	case errors.Is(err, playlist.ErrBusy), errors.Is(err, playlist.ErrNoTracks),
		errors.Is(err, errSeekUnknown), errors.Is(err, playlist.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, playlist.ErrNoAudioFiles), errors.As(err, &rejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, playlist.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sameHost allows websocket upgrades from pages served by the same host, and from
// non-browser clients that send no Origin header.
func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	return u.Host == r.Host
}
