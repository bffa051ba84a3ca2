// Package tapedeck provides a desktop player for local audio files: a playlist built from
// user-selected files, driven from the tray, a local remote-control API or a hardware knob.
package tapedeck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/retr0680/tapedeck/pkg/tapedeck/audio"
	"github.com/retr0680/tapedeck/pkg/tapedeck/playlist"
	"github.com/retr0680/tapedeck/pkg/tapedeck/remote"
	"github.com/retr0680/tapedeck/pkg/tapedeck/tags"
	"github.com/retr0680/tapedeck/pkg/tapedeck/util"
)

const (
	// EnvNoTray disables the tray icon when set.
	EnvNoTray = "TAPEDECK_NO_TRAY_ICON"
)

// ErrAlreadyRunning is returned when another tapedeck process owns the audio output.
var ErrAlreadyRunning = errors.New("tapedeck is already running")

// Options are the command line settings.
type Options struct {
	Verbose    bool
	NoTray     bool
	ConfigPath string

	// Paths override the configured library for this run.
	Paths []string
}

// Tapedeck manages the main application components.
type Tapedeck struct {
	logger   *zap.SugaredLogger
	notifier Notifier
	config   *CanonicalConfig
	serial   *SerialIO
	finder   *TrackFinder
	tray     *trayPresenter
	hub      *remote.Hub

	engine   playlist.Engine
	session  *playlist.Session
	controls *controlMap

	// configVolume is the configured volume last pushed to the session
	configVolume float64

	ctx    context.Context
	cancel context.CancelFunc

	stopChannel chan bool
	stopOnce    sync.Once
	version     string
	opts        Options
}

// NewTapedeck creates a new Tapedeck instance.
func NewTapedeck(logger *zap.SugaredLogger, opts Options) (*Tapedeck, error) {
	logger = logger.Named("tapedeck")

	notifier, err := NewToastNotifier(logger)
	if err != nil {
		logger.Errorw("Failed to create notifier", "error", err)
		return nil, fmt.Errorf("create notifier: %w", err)
	}

	config, err := NewConfig(logger, notifier, opts.ConfigPath)
	if err != nil {
		logger.Errorw("Failed to create configuration", "error", err)
		return nil, fmt.Errorf("create configuration: %w", err)
	}

	serial, err := NewSerialIO(config, logger)
	if err != nil {
		logger.Errorw("Failed to initialize serial communication", "error", err)
		return nil, fmt.Errorf("initialize serial communication: %w", err)
	}

	if os.Getenv(EnvNoTray) != "" {
		opts.NoTray = true
	}

	ctx, cancel := context.WithCancel(context.Background())

	t := &Tapedeck{
		logger:      logger,
		notifier:    notifier,
		config:      config,
		serial:      serial,
		finder:      NewTrackFinder(logger),
		tray:        newTrayPresenter(logger),
		hub:         remote.NewHub(logger),
		ctx:         ctx,
		cancel:      cancel,
		stopChannel: make(chan bool, 1),
		opts:        opts,
	}

	logger.Debug("Tapedeck instance created successfully")
	return t, nil
}

// Initialize prepares components and starts running the application. It blocks until the
// application stops.
func (t *Tapedeck) Initialize() error {
	t.logger.Debug("Initializing tapedeck")

	if running, err := util.OtherInstanceRunning(); err != nil {
		t.logger.Debugw("Could not check for other instances", "error", err)
	} else if running {
		t.logger.Warn("Another instance is already running")
		t.notifier.Notify("Already running!", "Only one tapedeck can play at a time.")
		return ErrAlreadyRunning
	}

	if err := t.config.Load(); err != nil {
		t.logger.Errorw("Failed to load configuration", "error", err)
		return fmt.Errorf("load configuration: %w", err)
	}

	if err := t.initializeSession(); err != nil {
		t.logger.Errorw("Failed to initialize playlist session", "error", err)
		return fmt.Errorf("initialize playlist session: %w", err)
	}

	t.setupInterruptHandler()

	if t.opts.NoTray {
		t.logger.Debug("Running without tray icon")
		t.run()
	} else {
		t.initializeTray(t.run)
	}

	return nil
}

// SetVersion sets the application version for display in the tray menu.
func (t *Tapedeck) SetVersion(version string) {
	t.version = version
}

// Verbose indicates whether the application runs in verbose mode.
func (t *Tapedeck) Verbose() bool {
	return t.opts.Verbose
}

func (t *Tapedeck) initializeSession() error {
	engine, err := audio.NewEngine(t.logger)
	if err != nil {
		return fmt.Errorf("create audio engine: %w", err)
	}

	presenters := playlist.Presenters{newLogPresenter(t.logger), t.hub}
	if !t.opts.NoTray {
		presenters = append(presenters, t.tray)
	}

	t.configVolume = t.config.Volume
	opts := t.sessionOptions()
	opts.InitialVolume = &t.configVolume

	session, err := playlist.NewSession(t.logger,
		tags.NewReader(t.logger),
		audio.NewProber(t.logger),
		engine,
		presenters,
		opts)
	if err != nil {
		engine.Close()
		return err
	}

	t.engine = engine
	t.session = session
	t.controls = newControlMap(t.logger, t.config, session)
	t.controls.setupOnSliderMove(t.serial.SubscribeToSliderMoveEvents())
	t.setupOnConfigReload()

	return nil
}

func (t *Tapedeck) sessionOptions() playlist.Options {
	return playlist.Options{
		ProbeWorkers:                   t.config.ProbeWorkers,
		KeepPlaylistOnInvalidSelection: t.config.KeepPlaylistOnInvalidSelection,
		OnError:                        t.handleSessionError,
	}
}

// setupOnConfigReload pushes reloaded settings into the running session.
func (t *Tapedeck) setupOnConfigReload() {
	configReloadedChannel := t.config.SubscribeToChanges()

	go func() {
		for range configReloadedChannel {
			t.applyConfig()
		}
	}()
}

// applyConfig updates the session from the current configuration. The volume is only
// touched when the configured value changed, so a knob or remote setting survives
// unrelated edits.
func (t *Tapedeck) applyConfig() {
	t.session.SetOptions(t.sessionOptions())

	if volume := t.config.Volume; volume != t.configVolume {
		t.logger.Infow("Applying configured volume", "volume", volume)
		t.configVolume = volume
		t.session.SetVolume(volume)
	}
}

func (t *Tapedeck) setupInterruptHandler() {
	interruptChannel := util.SetupCloseHandler()

	go func() {
		signal := <-interruptChannel
		t.logger.Debugw("Interrupt received", "signal", signal)
		t.signalStop()
	}()
}

func (t *Tapedeck) run() {
	t.logger.Info("Run loop starting")

	go t.config.WatchConfigFileChanges()

	go func() {
		defer t.recoverFromPanic()

		if err := t.session.Run(t.ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.logger.Warnw("Session event loop stopped", "error", err)
		}
	}()

	if addr := t.config.RemoteListenAddr; addr != "" {
		go t.hub.Run(t.ctx)
		go t.serveRemote(addr)
	}

	if t.config.ConnectionInfo.COMPort != "" {
		go func() {
			if err := t.serial.Start(); err != nil {
				t.handleSerialError(err)
			}
		}()
	}

	go t.loadLibrary()

	<-t.stopChannel
	t.logger.Debug("Stop signal received")

	if err := t.stop(); err != nil {
		t.logger.Warnw("Error during shutdown", "error", err)
		os.Exit(1)
	}

	os.Exit(0)
}

func (t *Tapedeck) serveRemote(addr string) {
	defer t.recoverFromPanic()

	server := remote.NewServer(t.logger, t.session, t.finder.Find, t.hub)
	if err := server.ListenAndServe(t.ctx, addr); err != nil {
		t.logger.Warnw("Remote control unavailable", "addr", addr, "error", err)
		t.notifier.Notify("Remote control unavailable!",
			fmt.Sprintf("Couldn't listen on %s. Change remote.listen_addr in the configuration.", addr))
	}
}

// loadLibrary builds the playlist from the command line paths, or the configured library
// when none were given.
func (t *Tapedeck) loadLibrary() {
	defer t.recoverFromPanic()

	paths := t.opts.Paths
	if len(paths) == 0 {
		paths = t.config.Library
	}

	if len(paths) == 0 {
		t.logger.Info("No library configured, waiting for a selection")
		return
	}

	files, err := t.finder.Find(paths)
	if err != nil {
		t.logger.Warnw("Failed to resolve library paths", "paths", paths, "error", err)
		t.notifier.Notify("Library not found!", "None of the configured paths could be read.")
		return
	}

	if err := t.session.LoadBatch(t.ctx, files); err != nil {
		t.handleSessionError(err)
		return
	}

	t.logger.Infow("Library loaded", "tracks", len(t.session.Snapshot().Tracks))
}

func (t *Tapedeck) handleSessionError(err error) {
	var (
		rejected *playlist.PlaybackRejectedError
		batch    *playlist.BatchProcessingError
	)

	switch {
	case errors.Is(err, playlist.ErrClosed), errors.Is(err, playlist.ErrSuperseded), errors.Is(err, context.Canceled):
		t.logger.Debugw("Operation abandoned", "error", err)

	case errors.Is(err, playlist.ErrNoAudioFiles):
		t.logger.Infow("Selection has no audio files", "error", err)
		t.notifier.Notify("No audio files!", "The selection didn't contain any playable audio files.")

	case errors.Is(err, playlist.ErrBusy):
		t.logger.Infow("Selection rejected while loading", "error", err)
		t.notifier.Notify("Still loading!", "Wait for the current playlist to finish loading.")

	case errors.Is(err, playlist.ErrNoTracks):
		t.logger.Debugw("Nothing to play", "error", err)
		t.notifier.Notify("Nothing to play!", "Select some audio files first.")

	case errors.As(err, &rejected):
		t.logger.Warnw("Playback rejected", "track", rejected.Track, "error", rejected.Err)
		t.notifier.Notify("Can't play track!", fmt.Sprintf("%s could not be played.", rejected.Track))

	case errors.As(err, &batch):
		t.logger.Errorw("Failed to build playlist", "error", batch.Err)
		t.notifier.Notify("Failed to load playlist!", "Check logs for more details.")

	default:
		t.logger.Warnw("Unexpected session error", "error", err)
		t.notifier.Notify("Something went wrong!", "Check logs for more details.")
	}
}

// handleSerialError reports knob connection problems. The player keeps running without it.
func (t *Tapedeck) handleSerialError(err error) {
	switch {
	case errors.Is(err, os.ErrPermission):
		t.logger.Warnw("Serial port busy", "comPort", t.config.ConnectionInfo.COMPort)
		t.notifier.Notify("Serial port busy!",
			"Close other applications using the port and try again.")
	case errors.Is(err, os.ErrNotExist):
		t.logger.Warnw("Invalid serial port configuration", "comPort", t.config.ConnectionInfo.COMPort)
		t.notifier.Notify("Invalid serial port!",
			"Ensure the correct port is set in the configuration.")
	default:
		t.logger.Warnw("Unknown error during serial start", "error", err)
	}
}

func (t *Tapedeck) signalStop() {
	t.logger.Debug("Sending stop signal")

	select {
	case t.stopChannel <- true:
	default:
	}
}

func (t *Tapedeck) stop() error {
	var stopErr error

	t.stopOnce.Do(func() {
		t.logger.Info("Shutting down tapedeck")

		t.config.StopWatchingConfigFile()
		t.serial.Stop()
		t.cancel()
		t.hub.Stop()

		if err := t.session.Close(); err != nil {
			t.logger.Errorw("Failed to close playlist session", "error", err)
			stopErr = fmt.Errorf("close playlist session: %w", err)
		}

		if err := t.engine.Close(); err != nil {
			t.logger.Errorw("Failed to close audio engine", "error", err)
			stopErr = fmt.Errorf("close audio engine: %w", err)
		}

		if !t.opts.NoTray {
			t.stopTray()
		}
		t.logger.Sync()
	})

	return stopErr
}
