package format

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/solstice-audio/waveline/internal/werr"
)

// oggParser aligns to whole OGG page boundaries. It backs both the
// OGGVorbis and Opus Kinds, since the only difference between them lives in
// the first logical packet of the bitstream (a Vorbis identification header
// vs an OpusHead packet) — the page-level framing is identical.
type oggParser struct {
	wantOpus bool // true selects Opus identification parsing, false Vorbis

	serial       uint32
	haveSerial   bool
	sampleRate   int
	channels     int
	preSkip      int64 // Opus only: samples to discard at stream start
	lastGranule  int64
	byteOffset   int64
	seekIdx      SeekPointIndex
}

func newOGGVorbisParser() *oggParser { return &oggParser{wantOpus: false} }
func newOpusParser() *oggParser      { return &oggParser{wantOpus: true} }

func (p *oggParser) Kind() Kind {
	if p.wantOpus {
		return Opus
	}
	return OGGVorbis
}

func (p *oggParser) Detect(header []byte) bool {
	k := DetectMagic(header)
	if p.wantOpus {
		return k == Opus
	}
	return k == OGGVorbis
}

func (p *oggParser) Init(_ string, _ int64, _ func(int64, []byte) (int, error)) (StreamParams, error) {
	return StreamParams{}, nil
}

type oggPage struct {
	granule     int64
	serial      uint32
	sequence    uint32
	segments    []byte // raw lacing values from the page's segment table
	payload     []byte
	totalLen    int
	continued   bool
}

// parseOGGPage parses one page starting at buf[0]. Returns the page, the
// number of bytes it occupies, and ok=false if buf doesn't hold a complete
// page yet.
func parseOGGPage(buf []byte) (oggPage, int, bool) {
	if len(buf) < 27 || !bytes.Equal(buf[:4], []byte("OggS")) {
		return oggPage{}, 0, false
	}
	headerType := buf[5]
	granule := int64(binary.LittleEndian.Uint64(buf[6:14]))
	serial := binary.LittleEndian.Uint32(buf[14:18])
	sequence := binary.LittleEndian.Uint32(buf[18:22])
	segCount := int(buf[26])
	if len(buf) < 27+segCount {
		return oggPage{}, 0, false
	}
	segTable := buf[27 : 27+segCount]
	payloadLen := 0
	for _, s := range segTable {
		payloadLen += int(s)
	}
	total := 27 + segCount + payloadLen
	if len(buf) < total {
		return oggPage{}, 0, false
	}
	if binary.LittleEndian.Uint32(buf[22:26]) != 0 {
		if oggCRC32(zeroCRCField(buf[:total])) != binary.LittleEndian.Uint32(buf[22:26]) {
			return oggPage{}, 0, false
		}
	}

	return oggPage{
		granule:   granule,
		serial:    serial,
		sequence:  sequence,
		segments:  append([]byte(nil), segTable...),
		payload:   buf[27+segCount : total],
		totalLen:  total,
		continued: headerType&0x1 != 0,
	}, total, true
}

func zeroCRCField(page []byte) []byte {
	out := append([]byte(nil), page...)
	for i := 22; i < 26; i++ {
		out[i] = 0
	}
	return out
}

// packets splits a page's payload into logical packets using its lacing
// (segment) table. A packet that ends the page with a full 255-byte final
// segment continues into the next page (not handled here — multi-page
// packets are rare for the identification header this parser inspects).
func (pg oggPage) packets() [][]byte {
	var out [][]byte
	start := 0
	cur := 0
	for _, s := range pg.segments {
		cur += int(s)
		if s < 255 {
			out = append(out, pg.payload[start:cur])
			start = cur
		}
	}
	return out
}

func (p *oggParser) Align(carryOver, chunk []byte, isLast bool) (AlignResult, error) {
	buf := append(append([]byte(nil), carryOver...), chunk...)

	consumed := 0
	for {
		pg, n, ok := parseOGGPage(buf[consumed:])
		if !ok {
			break
		}
		if !p.haveSerial {
			p.serial = pg.serial
			p.haveSerial = true
			if err := p.readIdentification(pg); err != nil {
				return AlignResult{}, err
			}
		}
		if pg.serial == p.serial && pg.granule >= 0 {
			p.lastGranule = pg.granule
			if p.sampleRate > 0 {
				t := granuleToDuration(pg.granule-p.preSkip, p.sampleRate)
				p.seekIdx.Add(SeekPoint{Time: t, ByteOffset: p.byteOffset + int64(consumed) + int64(n), IsExact: true})
			}
		}
		consumed += n
	}

	if consumed == 0 && isLast && len(buf) > 0 {
		return AlignResult{}, fmt.Errorf("%w: truncated ogg page", werr.ErrTruncated)
	}

	out := buf[:consumed]
	carry := append([]byte(nil), buf[consumed:]...)
	if isLast {
		out = buf
		carry = nil
	}
	p.byteOffset += int64(len(out))
	return AlignResult{Aligned: out, CarryOver: carry}, nil
}

func (p *oggParser) readIdentification(pg oggPage) error {
	pkts := pg.packets()
	if len(pkts) == 0 {
		return nil
	}
	head := pkts[0]

	if p.wantOpus {
		if len(head) < 19 || !bytes.Equal(head[:8], []byte("OpusHead")) {
			return fmt.Errorf("%w: missing OpusHead packet", werr.ErrCorruptedHeader)
		}
		p.channels = int(head[9])
		p.preSkip = int64(binary.LittleEndian.Uint16(head[10:12]))
		p.sampleRate = 48000 // Opus is always decoded at 48kHz regardless of the declared input rate
		return nil
	}

	if len(head) < 30 || head[0] != 0x01 || !bytes.Equal(head[1:7], []byte("vorbis")) {
		return fmt.Errorf("%w: missing Vorbis identification header", werr.ErrCorruptedHeader)
	}
	p.channels = int(head[11])
	p.sampleRate = int(binary.LittleEndian.Uint32(head[12:16]))
	return nil
}

func granuleToDuration(granule int64, sampleRate int) time.Duration {
	if granule < 0 {
		granule = 0
	}
	return time.Duration(float64(granule) / float64(sampleRate) * float64(time.Second))
}

// StreamInfo exposes the sample rate, channel count, and (for Opus) the
// pre-skip sample count parsed from the stream's identification packet, for
// callers (the Vorbis/Opus decoder adapters) that need the fixed stream
// shape without re-deriving it themselves. TotalSamples tracks the highest
// granule position seen so far, which is only the true total once Align has
// walked all the way to the stream's last page.
func (p *oggParser) StreamInfo() StreamParams {
	total := p.lastGranule - p.preSkip
	if total < 0 {
		total = 0
	}
	return StreamParams{SampleRate: p.sampleRate, Channels: p.channels, PreSkip: p.preSkip, TotalSamples: total}
}

func (p *oggParser) TimeToByte(t time.Duration) (SeekResult, error) {
	pt, ok := p.seekIdx.Floor(t)
	if !ok {
		return SeekResult{}, werr.ErrSeekUnsupported
	}
	return SeekResult{ActualTime: pt.Time, ByteOffset: pt.ByteOffset, IsExact: pt.Time == t}, nil
}

func (p *oggParser) OptimalChunkSize(fileSize int64) ChunkSizeRecommendation {
	return defaultChunkSizing(fileSize, "ogg: page-aligned, pages are at most ~64KB")
}

var oggCRCTable [256]uint32

func init() {
	const poly = 0x04c11db7
	for i := range oggCRCTable {
		crc := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		oggCRCTable[i] = crc
	}
}

// oggCRC32 implements the CRC used by the OGG container (polynomial
// 0x04c11db7, unreflected, zero init), distinct from the common CRC-32/IEEE.
func oggCRC32(data []byte) uint32 {
	var crc uint32
	for _, b := range data {
		crc = (crc << 8) ^ oggCRCTable[byte(crc>>24)^b]
	}
	return crc
}
