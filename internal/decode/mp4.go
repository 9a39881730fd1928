package decode

import (
	"time"

	"github.com/solstice-audio/waveline/internal/format"
	"github.com/solstice-audio/waveline/internal/werr"
)

// MP4Adapter is the declared-partial MP4/AAC adapter: internal/format/mp4.go
// fully parses the container (ftyp/moov/trak/mdia/stbl) so alignment and
// seek-point indexing work end to end, but no AAC-LC bitstream decoder
// lives in this module's dependency set. Feed fails with
// ErrUnsupportedCodec for any non-empty chunk rather than silently emitting zeroed amplitude, so a
// job on an MP4/AAC file reports the failure instead of a misleading
// waveform.
type MP4Adapter struct {
	sampleRate int
	channels   int
}

func newMP4Adapter(sampleRate, channels int) *MP4Adapter {
	return &MP4Adapter{sampleRate: sampleRate, channels: channels}
}

func (a *MP4Adapter) Feed(aligned []byte) ([]PcmChunk, error) {
	if len(aligned) == 0 {
		return nil, nil
	}
	return nil, werr.ErrUnsupportedCodec
}

func (a *MP4Adapter) Seek(time.Duration) (format.SeekResult, int64, error) {
	return format.SeekResult{}, 0, werr.ErrUnsupportedCodec
}

func (a *MP4Adapter) Flush() ([]PcmChunk, error) {
	return []PcmChunk{{SampleRate: a.sampleRate, Channels: a.channels, IsLast: true}}, nil
}
func (a *MP4Adapter) Close() error               { return nil }
func (a *MP4Adapter) SampleRate() int            { return a.sampleRate }
func (a *MP4Adapter) Channels() int              { return a.channels }
