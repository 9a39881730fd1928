package format

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/solstice-audio/waveline/internal/werr"
)

// wavParser aligns to whole-sample-frame boundaries inside the RIFF "data"
// chunk, walking fmt/data sub-chunks the way a RIFF reader does but operating
// on streamed chunks instead of a whole io.ReadSeeker.
type wavParser struct {
	sampleRate  int
	channels    int
	bitDepth    int
	frameSize   int // bytes per sample frame in source format
	dataStart   int64
	dataSize    int64 // 0 if unknown (e.g. streamed WAV with size 0xFFFFFFFF)
	headerDone  bool
	byteOffset  int64 // absolute file offset of the next unprocessed byte
	dataAbsSeen int64 // bytes of "data" payload consumed so far
}

func newWAVParser() *wavParser { return &wavParser{} }

func (p *wavParser) Kind() Kind { return WAV }

func (p *wavParser) Detect(header []byte) bool { return DetectMagic(header) == WAV }

func (p *wavParser) Init(_ string, _ int64, _ func(int64, []byte) (int, error)) (StreamParams, error) {
	return StreamParams{}, nil
}

// Align parses RIFF sub-chunks until "data" is found (header parsing is
// unbounded in size but tiny; fmt/LIST/etc chunks are always well under a
// chunk boundary in practice), then emits only whole sample frames from the
// data payload.
func (p *wavParser) Align(carryOver, chunk []byte, isLast bool) (AlignResult, error) {
	buf := append(append([]byte(nil), carryOver...), chunk...)

	if !p.headerDone {
		consumed, err := p.parseHeader(buf)
		if err != nil {
			if err == errNeedMoreWAVHeader {
				if isLast {
					return AlignResult{}, fmt.Errorf("%w: wav header incomplete", werr.ErrCorruptedHeader)
				}
				return AlignResult{CarryOver: buf}, nil
			}
			return AlignResult{}, err
		}
		buf = buf[consumed:]
		p.byteOffset += int64(consumed)
		p.headerDone = true
	}

	frameSize := p.frameSize
	if frameSize <= 0 {
		frameSize = 1
	}

	avail := int64(len(buf))
	if p.dataSize > 0 {
		remaining := p.dataSize - p.dataAbsSeen
		if avail > remaining {
			avail = remaining
		}
	}

	aligned := int(avail) - int(avail)%frameSize
	if isLast {
		aligned = int(avail)
	}
	if aligned < 0 {
		aligned = 0
	}
	if aligned > len(buf) {
		aligned = len(buf)
	}

	out := buf[:aligned]
	carry := append([]byte(nil), buf[aligned:]...)
	p.byteOffset += int64(len(out))
	p.dataAbsSeen += int64(len(out))

	return AlignResult{Aligned: out, CarryOver: carry}, nil
}

var errNeedMoreWAVHeader = fmt.Errorf("wav: need more header bytes")

func (p *wavParser) parseHeader(buf []byte) (int, error) {
	if len(buf) < 12 {
		return 0, errNeedMoreWAVHeader
	}
	if string(buf[0:4]) != "RIFF" || string(buf[8:12]) != "WAVE" {
		return 0, fmt.Errorf("%w: not a WAV file", werr.ErrCorruptedHeader)
	}

	pos := 12
	for {
		if len(buf)-pos < 8 {
			return 0, errNeedMoreWAVHeader
		}
		id := string(buf[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(buf[pos+4 : pos+8]))
		pos += 8

		if id == "fmt " {
			if len(buf)-pos < size {
				return 0, errNeedMoreWAVHeader
			}
			if size < 16 {
				return 0, fmt.Errorf("%w: fmt chunk too small", werr.ErrCorruptedHeader)
			}
			p.channels = int(binary.LittleEndian.Uint16(buf[pos+2 : pos+4]))
			p.sampleRate = int(binary.LittleEndian.Uint32(buf[pos+4 : pos+8]))
			p.bitDepth = int(binary.LittleEndian.Uint16(buf[pos+14 : pos+16]))
			p.frameSize = p.channels * (p.bitDepth / 8)
			pos += size
			if size%2 == 1 {
				pos++
			}
			continue
		}

		if id == "data" {
			if p.channels == 0 {
				return 0, fmt.Errorf("%w: data chunk before fmt chunk", werr.ErrCorruptedHeader)
			}
			p.dataStart = int64(pos)
			p.dataSize = int64(size)
			return pos, nil
		}

		// Unknown chunk: skip it if fully buffered, else ask for more.
		if len(buf)-pos < size {
			return 0, errNeedMoreWAVHeader
		}
		pos += size
		if size%2 == 1 {
			pos++
		}
	}
}

// StreamInfo exposes the fmt-chunk fields parsed during Align, for callers
// (the WAV decoder adapter) that need the native sample width and channel
// count to convert raw PCM bytes once the header has been seen. TotalSamples
// is derived from the "data" chunk's declared size, known as soon as the
// header is parsed, and stays 0 for a streamed WAV with an unknown size.
func (p *wavParser) StreamInfo() StreamParams {
	info := StreamParams{SampleRate: p.sampleRate, Channels: p.channels, BitDepth: p.bitDepth}
	if p.dataSize > 0 && p.frameSize > 0 {
		info.TotalSamples = p.dataSize / int64(p.frameSize)
	}
	return info
}

func (p *wavParser) TimeToByte(t time.Duration) (SeekResult, error) {
	if p.sampleRate == 0 || p.frameSize == 0 {
		return SeekResult{}, werr.ErrSeekUnsupported
	}
	frame := int64(t.Seconds() * float64(p.sampleRate))
	byteOff := p.dataStart + frame*int64(p.frameSize)
	if p.dataSize > 0 {
		maxOff := p.dataStart + p.dataSize
		if byteOff > maxOff {
			byteOff = maxOff
		}
	}
	actual := time.Duration(float64(frame) / float64(p.sampleRate) * float64(time.Second))
	return SeekResult{ActualTime: actual, ByteOffset: byteOff, IsExact: true}, nil
}

func (p *wavParser) OptimalChunkSize(fileSize int64) ChunkSizeRecommendation {
	return defaultChunkSizing(fileSize, "wav: uncompressed PCM, any sample-frame-aligned size works")
}
