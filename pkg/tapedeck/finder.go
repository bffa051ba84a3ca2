package tapedeck

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/retr0680/tapedeck/pkg/tapedeck/audio"
	"github.com/retr0680/tapedeck/pkg/tapedeck/playlist"
)

var errNoPaths = errors.New("no paths given")

// TrackFinder turns user-supplied paths into a file selection. Files are taken as given;
// directories are walked recursively and contribute the audio files tapedeck can decode, in
// lexical order.
type TrackFinder struct {
	logger *zap.SugaredLogger
}

// NewTrackFinder creates a TrackFinder.
func NewTrackFinder(logger *zap.SugaredLogger) *TrackFinder {
	return &TrackFinder{logger: logger.Named("finder")}
}

// Find resolves paths into files. Paths that don't exist are skipped; it only fails when
// none of them could be read.
func (tf *TrackFinder) Find(paths []string) ([]playlist.File, error) {
	if len(paths) == 0 {
		return nil, errNoPaths
	}

	var (
		files    []playlist.File
		failures int
		lastErr  error
	)

	for _, path := range paths {
		found, err := tf.findOne(expandHome(path))
		if err != nil {
			tf.logger.Warnw("Skipping unreadable path", "path", path, "error", err)
			failures++
			lastErr = err
			continue
		}

		files = append(files, found...)
	}

	if failures == len(paths) {
		return nil, fmt.Errorf("resolve %d paths: %w", len(paths), lastErr)
	}

	tf.logger.Debugw("Resolved selection", "paths", len(paths), "files", len(files))
	return files, nil
}

func (tf *TrackFinder) findOne(path string) ([]playlist.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return []playlist.File{playlist.NewLocalFile(path)}, nil
	}

	var files []playlist.File
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			tf.logger.Debugw("Skipping unreadable entry", "path", p, "error", err)
			if d != nil && d.IsDir() && p != path {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if p != path && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}

		file := playlist.NewLocalFile(p)
		if !playlist.IsAudio(file) {
			return nil
		}
		if !audio.Supported(file.Name(), file.ContentType()) {
			tf.logger.Debugw("Skipping audio file without a decoder", "path", p, "contentType", file.ContentType())
			return nil
		}

		files = append(files, file)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", path, err)
	}

	return files, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
