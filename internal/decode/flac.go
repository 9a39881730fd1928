package decode

import (
	"io"

	"github.com/mewkiz/flac"

	"github.com/solstice-audio/waveline/internal/format"
)

// FLACAdapter wraps mewkiz/flac's forward-streaming reader. flac.NewSeek
// requires a whole-file io.ReadSeeker, which doesn't fit an adapter fed
// chunk by chunk through a pipe, so this uses flac.New instead and gives up
// in-adapter seeking (Seek is handled the same way as every other adapter:
// tear down and recreate at the nearest byte the shared parser's seek index
// already knows about).
type FLACAdapter struct {
	*baseAdapter
	bitsPerSample int
}

func newFLACAdapter(parser format.Parser, sampleRate, channels, bitsPerSample int) *FLACAdapter {
	a := &FLACAdapter{bitsPerSample: bitsPerSample}
	a.baseAdapter = newBaseAdapter(sampleRate, channels, 0, parser, a.decodeLoop)
	return a
}

func (a *FLACAdapter) decodeLoop(r io.Reader, emit func([]float32)) error {
	stream, err := flac.New(r)
	if err != nil {
		return err
	}

	bps := a.bitsPerSample
	if bps == 0 {
		bps = int(stream.Info.BitsPerSample)
	}
	channels := a.channels

	for {
		frame, err := stream.ParseNext()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		nSamples := int(frame.Subframes[0].NSamples)
		out := make([]float32, nSamples*channels)
		for i := 0; i < nSamples; i++ {
			for ch := 0; ch < channels && ch < len(frame.Subframes); ch++ {
				out[i*channels+ch] = intSampleToFloat32(frame.Subframes[ch].Samples[i], bps)
			}
		}
		emit(out)
	}
}
