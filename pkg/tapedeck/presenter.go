package tapedeck

import (
	"go.uber.org/zap"

	"github.com/retr0680/tapedeck/pkg/tapedeck/playlist"
)

// logPresenter writes session changes to the log. Progress ticks are left out.
type logPresenter struct {
	logger *zap.SugaredLogger
}

func newLogPresenter(logger *zap.SugaredLogger) *logPresenter {
	return &logPresenter{logger: logger.Named("player")}
}

func (p *logPresenter) PlaylistChanged(snapshot playlist.Snapshot) {
	if snapshot.Loading {
		p.logger.Info("Loading playlist")
		return
	}

	p.logger.Infow("Playlist changed", "tracks", len(snapshot.Tracks), "current", snapshot.Current)
}

func (p *logPresenter) TrackSelected(index int, track playlist.Track) {
	p.logger.Infow("Track selected",
		"index", index,
		"title", track.Title,
		"artist", track.Artist,
		"album", track.Album,
		"duration", track.DurationText())
}

func (p *logPresenter) ProgressChanged(playlist.Progress) {}

func (p *logPresenter) StateChanged(state playlist.State) {
	p.logger.Debugw("Transport state changed", "state", state)
}

func (p *logPresenter) VolumeChanged(volume float64) {
	p.logger.Debugw("Volume changed", "volume", volume)
}
