// Package tags reads embedded metadata (ID3, Vorbis comments, MP4 atoms) from audio files.
package tags

import (
	"context"
	"fmt"
	"mime"
	"strings"

	"github.com/dhowden/tag"
	"go.uber.org/zap"

	"github.com/retr0680/tapedeck/pkg/tapedeck/playlist"
)

// Reader extracts title, artist, album and cover from a file's tags.
type Reader struct {
	logger *zap.SugaredLogger
}

// NewReader creates a tag Reader.
func NewReader(logger *zap.SugaredLogger) *Reader {
	return &Reader{logger: logger.Named("tags")}
}

// ReadMetadata parses the tags of f. Files without any recognizable tag block return an error.
func (r *Reader) ReadMetadata(ctx context.Context, f playlist.File) (playlist.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return playlist.Metadata{}, err
	}

	rc, err := f.Open()
	if err != nil {
		return playlist.Metadata{}, fmt.Errorf("open %s: %w", f.Name(), err)
	}
	defer rc.Close()

	m, err := tag.ReadFrom(rc)
	if err != nil {
		return playlist.Metadata{}, fmt.Errorf("read tags of %s: %w", f.Name(), err)
	}

	meta := playlist.Metadata{
		Title:  m.Title(),
		Artist: m.Artist(),
		Album:  m.Album(),
		Cover:  coverOf(m.Picture()),
	}

	r.logger.Debugw("Read tags",
		"file", f.Name(),
		"format", m.Format(),
		"title", meta.Title,
		"artist", meta.Artist,
		"hasCover", meta.Cover != nil)

	return meta, nil
}

func coverOf(picture *tag.Picture) *playlist.Cover {
	if picture == nil || len(picture.Data) == 0 {
		return nil
	}

	mimeType := strings.TrimSpace(picture.MIMEType)
	if mimeType == "" && picture.Ext != "" {
		mimeType = mime.TypeByExtension("." + strings.ToLower(picture.Ext))
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	return &playlist.Cover{MIMEType: mimeType, Data: picture.Data}
}
