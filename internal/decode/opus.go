package decode

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/pion/opus"

	"github.com/solstice-audio/waveline/internal/format"
)

// OpusAdapter demuxes the OGG pages the parser aligns (format.oggParser
// doesn't unpack Opus's raw packets itself, since page framing is shared
// with Vorbis) and decodes each packet with pion/opus. It parses the
// packet's TOC byte (RFC 6716 §3.1) to size each decode buffer correctly for
// every Opus frame duration and frame-count encoding, not just the 20ms/mono
// case.
type OpusAdapter struct {
	*baseAdapter
	headersSeen int // OpusHead, then OpusTags
}

// opusFrameSamplesAt48k maps a TOC config (0-31) to the samples-per-frame at
// the decoder's fixed 48kHz output rate (RFC 6716 §3.1 config table).
var opusFrameSamplesAt48k = [32]int{
	480, 960, 1920, 2880, // SILK NB
	480, 960, 1920, 2880, // SILK MB
	480, 960, 1920, 2880, // SILK WB
	480, 960, // Hybrid SWB
	480, 960, // Hybrid FB
	120, 240, 480, 960, // CELT NB
	120, 240, 480, 960, // CELT WB
	120, 240, 480, 960, // CELT SWB
	120, 240, 480, 960, // CELT FB
}

// newOpusAdapter takes sampleRate (always 48000) and channels already parsed
// by the shared format.oggParser's OpusHead handling during Align, so unlike
// MP3Adapter there is no need to re-derive stream shape here.
func newOpusAdapter(parser format.Parser, sampleRate, channels int, preSkip int64) *OpusAdapter {
	a := &OpusAdapter{}
	a.baseAdapter = newBaseAdapter(sampleRate, channels, preSkip, parser, a.decodeLoop)
	return a
}

func (a *OpusAdapter) decodeLoop(r io.Reader, emit func([]float32)) error {
	br := bufio.NewReaderSize(r, 8192)
	dec := opus.NewDecoder()
	out := make([]byte, 2*2*2880) // largest packet: 60ms stereo at 48kHz, 16-bit

	for {
		pg, err := readOGGPageFromStream(br)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		for _, pkt := range pg.packets() {
			if len(pkt) == 0 {
				continue
			}
			if a.headersSeen < 2 {
				a.headersSeen++
				continue // OpusHead and OpusTags carry no audio
			}

			samples, channels, ok := opusPacketFrameCount(pkt)
			if !ok {
				continue
			}
			if channels > a.channels {
				channels = a.channels
			}
			need := samples * channels * 2
			if need > len(out) {
				out = make([]byte, need)
			}
			buf := out[:need]
			if _, _, decErr := dec.Decode(pkt, buf); decErr != nil {
				continue // one corrupt packet doesn't kill the stream
			}
			emit(int16LEToFloat32(buf))
		}
	}
}

// opusPacketFrameCount parses a packet's TOC byte and frame-count byte (RFC
// 6716 §3.1/§3.2) to compute the total per-channel sample count the packet
// decodes to, and whether it's coded in stereo.
func opusPacketFrameCount(pkt []byte) (samples, channels int, ok bool) {
	toc := pkt[0]
	config := toc >> 3
	stereo := toc&0x4 != 0
	code := toc & 0x3

	frameSamples := opusFrameSamplesAt48k[config]
	channels = 1
	if stereo {
		channels = 2
	}

	switch code {
	case 0:
		return frameSamples, channels, true
	case 1, 2:
		return frameSamples * 2, channels, true
	case 3:
		if len(pkt) < 2 {
			return 0, 0, false
		}
		frameCount := int(pkt[1] & 0x3F)
		return frameSamples * frameCount, channels, true
	}
	return 0, 0, false
}

// oggStreamPage is the subset of OGG page framing this adapter needs off a
// live io.Reader (format.oggPage operates on already-buffered byte slices,
// not a streaming reader, so it isn't reused directly here).
type oggStreamPage struct {
	segments []byte
	payload  []byte
}

func (pg oggStreamPage) packets() [][]byte {
	var out [][]byte
	start, cur := 0, 0
	for _, s := range pg.segments {
		cur += int(s)
		if s < 255 {
			out = append(out, pg.payload[start:cur])
			start = cur
		}
	}
	return out
}

func readOGGPageFromStream(br *bufio.Reader) (oggStreamPage, error) {
	header := make([]byte, 27)
	if _, err := io.ReadFull(br, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return oggStreamPage{}, err
	}
	if !bytes.Equal(header[:4], []byte("OggS")) {
		return oggStreamPage{}, fmt.Errorf("decode: expected OggS capture pattern")
	}
	segCount := int(header[26])
	segments := make([]byte, segCount)
	if _, err := io.ReadFull(br, segments); err != nil {
		return oggStreamPage{}, err
	}
	payloadLen := 0
	for _, s := range segments {
		payloadLen += int(s)
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(br, payload); err != nil {
		return oggStreamPage{}, err
	}
	return oggStreamPage{segments: segments, payload: payload}, nil
}
