package audio

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedFormat is returned for files no decoder is registered for.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

type decodeFunc func(rc io.ReadSeekCloser) (beep.StreamSeekCloser, beep.Format, error)

var decodersByContentType = map[string]decodeFunc{
	"audio/mpeg":   decodeMP3,
	"audio/mp3":    decodeMP3,
	"audio/wav":    decodeWAV,
	"audio/x-wav":  decodeWAV,
	"audio/wave":   decodeWAV,
	"audio/flac":   decodeFLAC,
	"audio/x-flac": decodeFLAC,
	"audio/ogg":    decodeVorbis,
	"audio/vorbis": decodeVorbis,
}

var decodersByExtension = map[string]decodeFunc{
	".mp3":  decodeMP3,
	".wav":  decodeWAV,
	".flac": decodeFLAC,
	".ogg":  decodeVorbis,
	".oga":  decodeVorbis,
}

// Supported reports whether a file with this name and content type can be decoded.
func Supported(name, contentType string) bool {
	return decoderFor(name, contentType) != nil
}

// Decode picks a decoder by content type, falling back to the file extension. The returned
// streamer owns rc and closes it on Close. On error rc is left open.
func Decode(rc io.ReadSeekCloser, name, contentType string) (beep.StreamSeekCloser, beep.Format, error) {
	decode := decoderFor(name, contentType)
	if decode == nil {
		return nil, beep.Format{}, fmt.Errorf("decode %s (%s): %w", name, contentType, ErrUnsupportedFormat)
	}

	streamer, format, err := decode(rc)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", name, err)
	}

	return streamer, format, nil
}

func decoderFor(name, contentType string) decodeFunc {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}

	if decode, ok := decodersByContentType[contentType]; ok {
		return decode
	}

	return decodersByExtension[strings.ToLower(filepath.Ext(name))]
}

func decodeMP3(rc io.ReadSeekCloser) (beep.StreamSeekCloser, beep.Format, error) {
	return mp3.Decode(rc)
}

func decodeWAV(rc io.ReadSeekCloser) (beep.StreamSeekCloser, beep.Format, error) {
	return wav.Decode(rc)
}

func decodeFLAC(rc io.ReadSeekCloser) (beep.StreamSeekCloser, beep.Format, error) {
	return flac.Decode(rc)
}

func decodeVorbis(rc io.ReadSeekCloser) (beep.StreamSeekCloser, beep.Format, error) {
	return vorbis.Decode(rc)
}
