package decode

import (
	"fmt"

	"github.com/solstice-audio/waveline/internal/format"
)

// New returns a fresh Adapter for kind, driven by parser (the same Parser
// instance the worker is feeding through Align, so its TimeToByte index
// grows as the job progresses). For every format except MP4 and MP3, the
// caller must have already run Align at least once so parser.StreamInfo()
// reports a nonzero sample rate and channel count; MP4's shape is known
// immediately after Init, and MP3's is learned by the adapter itself from
// the decoder on first Feed.
func New(kind format.Kind, parser format.Parser) (Adapter, error) {
	info := parser.StreamInfo()
	switch kind {
	case format.MP3:
		return newMP3Adapter(parser), nil
	case format.WAV:
		return newWAVAdapter(parser, info.SampleRate, info.Channels, info.BitDepth), nil
	case format.FLAC:
		return newFLACAdapter(parser, info.SampleRate, info.Channels, info.BitDepth), nil
	case format.OGGVorbis:
		return newVorbisAdapter(parser, info.SampleRate, info.Channels), nil
	case format.Opus:
		return newOpusAdapter(parser, info.SampleRate, info.Channels, info.PreSkip), nil
	case format.MP4:
		return newMP4Adapter(info.SampleRate, info.Channels), nil
	default:
		return nil, fmt.Errorf("decode: no adapter for kind %q", kind)
	}
}
