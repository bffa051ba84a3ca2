package playlist

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
)

// UnknownArtist is shown for tracks whose tags carry no artist.
const UnknownArtist = "Unknown Artist"

// Cover is an embedded cover image.
type Cover struct {
	MIMEType string
	Data     []byte
}

// DataURL renders the cover as a data: URL.
func (c *Cover) DataURL() string {
	if c == nil || len(c.Data) == 0 {
		return ""
	}

	return fmt.Sprintf("data:%s;base64,%s", c.MIMEType, base64.StdEncoding.EncodeToString(c.Data))
}

// Metadata holds the tag fields a MetadataReader managed to extract. Empty fields are missing.
type Metadata struct {
	Title  string
	Artist string
	Album  string
	Cover  *Cover
}

// Track is one playable item of the playlist.
type Track struct {
	Title  string
	Artist string
	Album  string
	Cover  *Cover
	Handle *Handle
	File   File

	// Duration is the track length in seconds, 0 when unknown. It is the only field that
	// changes after creation, when the engine reports the real length.
	Duration float64
}

// DurationText returns the duration formatted as "M:SS".
func (t Track) DurationText() string {
	return FormatTime(t.Duration)
}

func (t Track) String() string {
	return fmt.Sprintf("<track: %s - %s (%s)>", t.Artist, t.Title, t.DurationText())
}

// newTrack builds a track from whatever the probes produced, filling every missing field.
func newTrack(h *Handle, meta Metadata, seconds float64) *Track {
	track := &Track{
		Title:    strings.TrimSpace(meta.Title),
		Artist:   strings.TrimSpace(meta.Artist),
		Album:    strings.TrimSpace(meta.Album),
		Cover:    meta.Cover,
		Handle:   h,
		File:     h.File(),
		Duration: seconds,
	}

	if track.Title == "" {
		track.Title = TitleFromFileName(h.File().Name())
	}
	if track.Artist == "" {
		track.Artist = UnknownArtist
	}
	if track.Cover != nil && len(track.Cover.Data) == 0 {
		track.Cover = nil
	}
	if !validDuration(track.Duration) {
		track.Duration = 0
	}

	return track
}

// TitleFromFileName strips the last extension from a file name.
func TitleFromFileName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
