package playlist

import (
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/thoas/go-funk"
)

const defaultContentType = "application/octet-stream"

// File is an opaque, user-selected file the session can build a track from.
type File interface {
	// Name returns the file's base name, extension included.
	Name() string

	// ContentType returns the MIME type of the file, e.g. "audio/mpeg".
	ContentType() string

	// Open returns a fresh reader over the file's bytes.
	Open() (io.ReadSeekCloser, error)
}

// audioContentTypes maps lowercase extensions to audio MIME types. Lookups fall back to the
// system MIME table for anything not listed here.
var audioContentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/opus",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".wma":  "audio/x-ms-wma",
	".aiff": "audio/aiff",
	".aif":  "audio/aiff",
}

// ContentTypeFor guesses the MIME type of a file from its extension.
func ContentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return defaultContentType
	}

	if contentType, ok := audioContentTypes[ext]; ok {
		return contentType
	}

	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}

	return defaultContentType
}

// IsAudio reports whether the file is typed as audio.
func IsAudio(f File) bool {
	return strings.HasPrefix(strings.ToLower(f.ContentType()), "audio/")
}

// FilterAudio returns the audio-typed files of the selection, in their original order.
func FilterAudio(files []File) []File {
	return funk.Filter(files, IsAudio).([]File)
}

// LocalFile is a File backed by a path on the local filesystem.
type LocalFile struct {
	path        string
	contentType string
}

// NewLocalFile creates a LocalFile whose content type is derived from the path's extension.
func NewLocalFile(path string) *LocalFile {
	return &LocalFile{
		path:        path,
		contentType: ContentTypeFor(path),
	}
}

// Name returns the base name of the file.
func (f *LocalFile) Name() string {
	return filepath.Base(f.path)
}

// Path returns the path the file was created with.
func (f *LocalFile) Path() string {
	return f.path
}

// ContentType returns the guessed MIME type.
func (f *LocalFile) ContentType() string {
	return f.contentType
}

// Open opens the file for reading.
func (f *LocalFile) Open() (io.ReadSeekCloser, error) {
	return os.Open(f.path)
}

func (f *LocalFile) String() string {
	return f.path
}
