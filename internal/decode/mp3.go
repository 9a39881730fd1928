package decode

import (
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/solstice-audio/waveline/internal/format"
)

// MP3Adapter wraps hajimehoshi/go-mp3, driven incrementally via baseAdapter's
// pipe instead of a whole-file io.ReadSeeker.
type MP3Adapter struct {
	*baseAdapter
	delaySniffed bool
}

func newMP3Adapter(parser format.Parser) *MP3Adapter {
	a := &MP3Adapter{}
	a.baseAdapter = newBaseAdapter(0, 2, 0, parser, a.decodeLoop)
	return a
}

func (a *MP3Adapter) Feed(aligned []byte) ([]PcmChunk, error) {
	// Align can legitimately return an empty Aligned slice while it's still
	// buffering a multi-chunk ID3v2 tag (CarryOver only); only sniff once
	// real frame bytes have actually arrived, or the Xing/LAME gapless tag
	// at the start of those frames is missed and delay skip is pinned at 0.
	if !a.delaySniffed && len(aligned) > 0 {
		a.delaySniffed = true
		a.skip = mp3EncoderDelay(aligned)
	}
	return a.baseAdapter.Feed(aligned)
}

func (a *MP3Adapter) decodeLoop(r io.Reader, emit func([]float32)) error {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return err
	}
	a.sampleRate = dec.SampleRate()
	a.markParamsReady()

	buf := make([]byte, 32*1024)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			emit(int16LEToFloat32(buf[:n]))
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
