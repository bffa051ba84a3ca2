package remote

import (
	"github.com/retr0680/tapedeck/pkg/tapedeck/playlist"
)

type trackDTO struct {
	Index        int     `json:"index"`
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Artist       string  `json:"artist"`
	Album        string  `json:"album,omitempty"`
	FileName     string  `json:"fileName"`
	Duration     float64 `json:"duration"`
	DurationText string  `json:"durationText"`
	HasCover     bool    `json:"hasCover"`
	Current      bool    `json:"current"`
}

type statusDTO struct {
	State      playlist.State `json:"state"`
	Current    int            `json:"current"`
	Loading    bool           `json:"loading"`
	Volume     float64        `json:"volume"`
	TrackCount int            `json:"trackCount"`
	Track      *trackDTO      `json:"track,omitempty"`
}

type progressDTO struct {
	Current      float64 `json:"current"`
	Fraction     float64 `json:"fraction"`
	Known        bool    `json:"known"`
	CurrentText  string  `json:"currentText"`
	DurationText string  `json:"durationText"`
}

type loadRequest struct {
	Paths []string `json:"paths"`
}

type selectRequest struct {
	Play bool `json:"play"`
}

type seekRequest struct {
	Position *float64 `json:"position"`
}

type volumeRequest struct {
	Volume *float64 `json:"volume"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newTrackDTO(index int, t playlist.Track, current bool) trackDTO {
	dto := trackDTO{
		Index:        index,
		Title:        t.Title,
		Artist:       t.Artist,
		Album:        t.Album,
		Duration:     t.Duration,
		DurationText: t.DurationText(),
		HasCover:     t.Cover != nil,
		Current:      current,
	}
	if t.Handle != nil {
		dto.ID = t.Handle.ID()
	}
	if t.File != nil {
		dto.FileName = t.File.Name()
	}

	return dto
}

func newTrackDTOs(snapshot playlist.Snapshot) []trackDTO {
	tracks := make([]trackDTO, len(snapshot.Tracks))
	for i, t := range snapshot.Tracks {
		tracks[i] = newTrackDTO(i, t, i == snapshot.Current)
	}

	return tracks
}

func newStatusDTO(snapshot playlist.Snapshot) statusDTO {
	status := statusDTO{
		State:      snapshot.State,
		Current:    snapshot.Current,
		Loading:    snapshot.Loading,
		Volume:     snapshot.Volume,
		TrackCount: len(snapshot.Tracks),
	}

	if track, ok := snapshot.CurrentTrack(); ok {
		dto := newTrackDTO(snapshot.Current, track, true)
		status.Track = &dto
	}

	return status
}

func newProgressDTO(p playlist.Progress) progressDTO {
	return progressDTO{
		Current:      p.Current,
		Fraction:     p.Fraction,
		Known:        p.Known,
		CurrentText:  p.CurrentText,
		DurationText: p.DurationText,
	}
}
