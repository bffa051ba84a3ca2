package tapedeck

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
	"go.uber.org/zap"

	"github.com/retr0680/tapedeck/pkg/tapedeck/icon"
	"github.com/retr0680/tapedeck/pkg/tapedeck/playlist"
	"github.com/retr0680/tapedeck/pkg/tapedeck/util"
)

const (
	appTitle = "tapedeck"

	playTitle         = "Play"
	pauseTitle        = "Pause"
	playPauseTooltip  = "Start or pause the current track"
	nextTitle         = "Next"
	nextTooltip       = "Skip to the next track"
	previousTitle     = "Previous"
	previousTooltip   = "Go back to the previous track"
	reloadTitle       = "Reload library"
	reloadTooltip     = "Rebuild the playlist from the configured library"
	editConfigTitle   = "Edit configuration"
	editConfigTooltip = "Open the config file in a text editor"
	quitTitle         = "Quit"
	quitTooltip       = "Stop tapedeck and quit"

	maxTrayTitleLength = 40
)

// trayPresenter mirrors the session into the tray menu.
type trayPresenter struct {
	logger *zap.SugaredLogger

	lock      sync.Mutex
	ready     bool
	playPause *systray.MenuItem
	next      *systray.MenuItem
	previous  *systray.MenuItem

	state playlist.State
	track *playlist.Track
}

func newTrayPresenter(logger *zap.SugaredLogger) *trayPresenter {
	return &trayPresenter{logger: logger.Named("tray"), state: playlist.StateIdle}
}

func (t *Tapedeck) initializeTray(onDone func()) {
	logger := t.tray.logger

	onReady := func() {
		logger.Debug("Tray instance ready")

		systray.SetTemplateIcon(icon.Logo, icon.Logo)
		systray.SetTitle(appTitle)
		systray.SetTooltip(appTitle)

		playPause := systray.AddMenuItem(playTitle, playPauseTooltip)
		next := systray.AddMenuItem(nextTitle, nextTooltip)
		previous := systray.AddMenuItem(previousTitle, previousTooltip)

		systray.AddSeparator()
		reload := systray.AddMenuItem(reloadTitle, reloadTooltip)
		reload.SetIcon(icon.Reload)

		editConfig := systray.AddMenuItem(editConfigTitle, editConfigTooltip)
		editConfig.SetIcon(icon.EditConfig)

		if t.version != "" {
			systray.AddSeparator()
			versionInfo := systray.AddMenuItem(t.version, "")
			versionInfo.Disable()
		}

		systray.AddSeparator()
		quit := systray.AddMenuItem(quitTitle, quitTooltip)

		t.tray.attach(playPause, next, previous)

		go t.handleTrayActions(logger, playPause, next, previous, reload, editConfig, quit)

		onDone()
	}

	onExit := func() {
		logger.Debug("Tray exited")
	}

	logger.Debug("Running in tray")
	systray.Run(onReady, onExit)
}

func (t *Tapedeck) handleTrayActions(logger *zap.SugaredLogger, playPause, next, previous, reload, editConfig, quit *systray.MenuItem) {
	defer t.recoverFromPanic()

	for {
		select {
		case <-quit.ClickedCh:
			logger.Info("Quit menu item clicked, stopping")
			t.signalStop()
			return

		case <-playPause.ClickedCh:
			logger.Debug("Play/pause menu item clicked")
			if err := t.session.Toggle(t.ctx); err != nil {
				t.handleSessionError(err)
			}

		case <-next.ClickedCh:
			logger.Debug("Next menu item clicked")
			if err := t.session.Advance(t.ctx); err != nil {
				t.handleSessionError(err)
			}

		case <-previous.ClickedCh:
			logger.Debug("Previous menu item clicked")
			if err := t.session.Retreat(t.ctx); err != nil {
				t.handleSessionError(err)
			}

		case <-reload.ClickedCh:
			logger.Info("Reload menu item clicked, rebuilding playlist")
			go t.loadLibrary()

		case <-editConfig.ClickedCh:
			logger.Info("Edit config menu item clicked, opening config for editing")
			if err := util.OpenExternal(logger, util.Editor(), t.config.Path()); err != nil {
				logger.Warnw("Failed to open config file for editing", "error", err)
			}
		}
	}
}

func (t *Tapedeck) stopTray() {
	t.logger.Debug("Quitting tray")
	systray.Quit()
}

func (tp *trayPresenter) attach(playPause, next, previous *systray.MenuItem) {
	tp.lock.Lock()
	defer tp.lock.Unlock()

	tp.playPause = playPause
	tp.next = next
	tp.previous = previous
	tp.ready = true

	tp.renderLocked()
}

func (tp *trayPresenter) PlaylistChanged(snapshot playlist.Snapshot) {
	tp.lock.Lock()
	defer tp.lock.Unlock()

	tp.state = snapshot.State
	if track, ok := snapshot.CurrentTrack(); ok {
		tp.track = &track
	} else {
		tp.track = nil
	}

	tp.renderLocked()
}

func (tp *trayPresenter) TrackSelected(index int, track playlist.Track) {
	tp.lock.Lock()
	defer tp.lock.Unlock()

	tp.track = &track
	tp.renderLocked()
}

func (tp *trayPresenter) ProgressChanged(playlist.Progress) {}

func (tp *trayPresenter) StateChanged(state playlist.State) {
	tp.lock.Lock()
	defer tp.lock.Unlock()

	tp.state = state
	tp.renderLocked()
}

func (tp *trayPresenter) VolumeChanged(float64) {}

func (tp *trayPresenter) renderLocked() {
	if !tp.ready {
		return
	}

	title, tooltip := trayLabels(tp.track, tp.state)
	systray.SetTitle(title)
	systray.SetTooltip(tooltip)

	if tp.state == playlist.StatePlaying {
		tp.playPause.SetTitle(pauseTitle)
	} else {
		tp.playPause.SetTitle(playTitle)
	}

	if tp.track == nil {
		tp.playPause.Disable()
		tp.next.Disable()
		tp.previous.Disable()
	} else {
		tp.playPause.Enable()
		tp.next.Enable()
		tp.previous.Enable()
	}
}

// trayLabels returns the tray title and tooltip for the current track and state.
func trayLabels(track *playlist.Track, state playlist.State) (string, string) {
	if track == nil {
		return appTitle, appTitle
	}

	nowPlaying := fmt.Sprintf("%s - %s", track.Artist, track.Title)
	tooltip := fmt.Sprintf("%s (%s) [%s]", nowPlaying, track.DurationText(), state)

	runes := []rune(nowPlaying)
	if len(runes) > maxTrayTitleLength {
		nowPlaying = string(runes[:maxTrayTitleLength-1]) + "…"
	}

	return nowPlaying, tooltip
}
