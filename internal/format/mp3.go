package format

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/bogem/id3v2/v2"

	"github.com/solstice-audio/waveline/internal/werr"
)

// Layer III bitrates in kbps, indexed by the header's 4-bit bitrate index:
// V1L3 for MPEG1, V2L3 for MPEG2 and MPEG2.5. Layer III is the only layer
// this repo supports.
var mp3BitrateTableV1L3 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
var mp3BitrateTableV2L3 = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}

var mp3SampleRateTable = [3][3]int{
	{44100, 48000, 32000}, // MPEG1
	{22050, 24000, 16000}, // MPEG2
	{11025, 12000, 8000},  // MPEG2.5
}

const mp3MaxFrameBytes = 1441 // largest layer III frame (MPEG1, 320kbps, 32kHz, padded)

type mp3Parser struct {
	tagSize    int64
	sampleRate int
	channels   int
	frameIndex int64
	byteOffset int64
	seekIdx    SeekPointIndex
}

func newMP3Parser() *mp3Parser { return &mp3Parser{} }

func (p *mp3Parser) Kind() Kind { return MP3 }

func (p *mp3Parser) Detect(header []byte) bool {
	return DetectMagic(header) == MP3
}

// Init reads the ID3v2 tag size (if any) via bogem/id3v2, so the frame
// scanner in Align can skip straight past tag metadata instead of sync-word
// scanning through it (ID3 frame payloads can coincidentally contain bytes
// that look like a frame sync).
func (p *mp3Parser) Init(path string, size int64, _ func(int64, []byte) (int, error)) (StreamParams, error) {
	if path != "" {
		if tag, err := id3v2.Open(path, id3v2.Options{Parse: false}); err == nil {
			p.tagSize = int64(tag.Size())
			tag.Close()
		}
	}
	return StreamParams{}, nil
}

func mp3FrameHeaderInfo(h uint32) (sampleRate, channels, frameLen int, ok bool) {
	if h>>21 != 0x7FF {
		return 0, 0, 0, false
	}
	versionID := (h >> 19) & 0x3
	layer := (h >> 17) & 0x3
	if layer != 0x1 { // layer III only
		return 0, 0, 0, false
	}
	if versionID == 0x1 { // reserved
		return 0, 0, 0, false
	}
	bitrateIdx := (h >> 12) & 0xF
	sampleRateIdx := (h >> 10) & 0x3
	if sampleRateIdx == 0x3 || bitrateIdx == 0xF {
		return 0, 0, 0, false
	}
	padding := (h >> 9) & 0x1
	channelMode := (h >> 6) & 0x3

	var versionRow int
	var bitrate int
	switch versionID {
	case 0x3: // MPEG1
		versionRow = 0
		bitrate = mp3BitrateTableV1L3[bitrateIdx]
	case 0x2: // MPEG2
		versionRow = 1
		bitrate = mp3BitrateTableV2L3[bitrateIdx]
	default: // MPEG2.5
		versionRow = 2
		bitrate = mp3BitrateTableV2L3[bitrateIdx]
	}
	if bitrate == 0 {
		return 0, 0, 0, false
	}
	sampleRate = mp3SampleRateTable[versionRow][sampleRateIdx]
	if sampleRate == 0 {
		return 0, 0, 0, false
	}

	samplesPerFrame := 1152
	if versionID != 0x3 {
		samplesPerFrame = 576
	}
	frameLen = (samplesPerFrame/8*bitrate*1000)/sampleRate + int(padding)

	channels = 2
	if channelMode == 0x3 {
		channels = 1
	}
	return sampleRate, channels, frameLen, true
}

// Align implements the MP3 alignment contract: scan for 11-bit sync words,
// validate the header, and emit only whole frames. Leading bytes of the new
// chunk join the carry-over; a trailing partial frame is withheld.
func (p *mp3Parser) Align(carryOver, chunk []byte, isLast bool) (AlignResult, error) {
	buf := append(append([]byte(nil), carryOver...), chunk...)

	// Skip ID3v2 tag bytes once, at the very start of the stream.
	if p.byteOffset == 0 && p.tagSize > 0 {
		if int64(len(buf)) < p.tagSize {
			if isLast {
				return AlignResult{}, fmt.Errorf("%w: file ends inside ID3v2 tag", werr.ErrCorruptedHeader)
			}
			return AlignResult{CarryOver: buf}, nil
		}
		buf = buf[p.tagSize:]
		p.byteOffset += p.tagSize
		p.tagSize = 0
	}

	var aligned []byte
	i := 0
	for {
		if len(buf)-i < 4 {
			break
		}
		if buf[i] != 0xFF || buf[i+1]&0xE0 != 0xE0 {
			i++
			continue
		}
		h := binary.BigEndian.Uint32(buf[i:])
		sr, ch, frameLen, ok := mp3FrameHeaderInfo(h)
		if !ok || frameLen <= 0 {
			i++
			continue
		}
		if len(buf)-i < frameLen {
			break // incomplete trailing frame, wait for more data
		}
		if p.sampleRate == 0 {
			p.sampleRate, p.channels = sr, ch
		}
		p.seekIdx.Add(SeekPoint{
			Time:       frameTime(p.frameIndex, sr),
			ByteOffset: p.byteOffset + int64(i),
			IsExact:    true,
		})
		p.frameIndex++
		i += frameLen
	}
	aligned = buf[:i]
	carry := append([]byte(nil), buf[i:]...)
	if isLast {
		aligned = buf
		carry = nil
	}
	p.byteOffset += int64(len(aligned))

	return AlignResult{Aligned: aligned, CarryOver: carry}, nil
}

func frameTime(frameIndex int64, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samplesPerFrame := int64(1152)
	secs := float64(frameIndex*samplesPerFrame) / float64(sampleRate)
	return time.Duration(secs * float64(time.Second))
}

// StreamInfo reports sample rate and channel count once the first frame
// header has been parsed by Align; zero-valued before that.
func (p *mp3Parser) StreamInfo() StreamParams {
	return StreamParams{SampleRate: p.sampleRate, Channels: p.channels}
}

func (p *mp3Parser) TimeToByte(t time.Duration) (SeekResult, error) {
	pt, ok := p.seekIdx.Floor(t)
	if !ok {
		return SeekResult{}, werr.ErrSeekUnsupported
	}
	return SeekResult{ActualTime: pt.Time, ByteOffset: pt.ByteOffset, IsExact: pt.Time == t}, nil
}

func (p *mp3Parser) OptimalChunkSize(fileSize int64) ChunkSizeRecommendation {
	rec := defaultChunkSizing(fileSize, "mp3: 10MB target for large files, 25% for small, frame-aligned")
	rec.Min = mp3MaxFrameBytes
	return rec
}
