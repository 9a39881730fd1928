package format

import (
	"fmt"

	"github.com/solstice-audio/waveline/internal/werr"
)

// New returns a fresh Parser for kind. Every call gets its own instance since
// Align/TimeToByte carry per-stream state across a single job's lifetime.
func New(kind Kind) (Parser, error) {
	switch kind {
	case MP3:
		return newMP3Parser(), nil
	case WAV:
		return newWAVParser(), nil
	case FLAC:
		return newFLACParser(), nil
	case OGGVorbis:
		return newOGGVorbisParser(), nil
	case Opus:
		return newOpusParser(), nil
	case MP4:
		return newMP4Parser(), nil
	default:
		return nil, fmt.Errorf("format: no parser for kind %q", kind)
	}
}

// Detect runs DetectMagic against header and, on a match, returns a ready
// Parser for that Kind. extHint (from ExtHint) is used only as a tie-breaker
// when the header is too short for magic-byte detection to resolve.
func Detect(header []byte, extHint Kind) (Parser, error) {
	kind := DetectMagic(header)
	if kind == Unknown {
		kind = extHint
	}
	if kind == Unknown {
		return nil, werr.ErrUnsupportedFormat
	}
	return New(kind)
}
