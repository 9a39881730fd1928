package decode

import (
	"io"

	"github.com/jfreymuth/oggvorbis"

	"github.com/solstice-audio/waveline/internal/format"
)

// VorbisAdapter wraps jfreymuth/oggvorbis. oggvorbis.NewReader consumes a raw
// OGG bitstream directly, so the aligned page bytes the parser hands over
// feed straight into the pipe with no extra demuxing (unlike OpusAdapter,
// which has to unpack packets itself since pion/opus isn't OGG-aware).
type VorbisAdapter struct {
	*baseAdapter
}

func newVorbisAdapter(parser format.Parser, sampleRate, channels int) *VorbisAdapter {
	a := &VorbisAdapter{}
	a.baseAdapter = newBaseAdapter(sampleRate, channels, 0, parser, a.decodeLoop)
	return a
}

func (a *VorbisAdapter) decodeLoop(r io.Reader, emit func([]float32)) error {
	reader, err := oggvorbis.NewReader(r)
	if err != nil {
		return err
	}

	buf := make([]float32, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			out := make([]float32, n)
			for i, s := range buf[:n] {
				out[i] = clampFloat32(s)
			}
			emit(out)
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
