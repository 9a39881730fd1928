package format

import (
	"encoding/binary"
	"testing"
)

func buildOGGPage(serial uint32, sequence uint32, granule int64, packets [][]byte) []byte {
	var payload []byte
	var segTable []byte
	for _, pkt := range packets {
		payload = append(payload, pkt...)
		n := len(pkt)
		for n >= 255 {
			segTable = append(segTable, 255)
			n -= 255
		}
		segTable = append(segTable, byte(n))
	}

	header := make([]byte, 27+len(segTable))
	copy(header[0:4], "OggS")
	header[4] = 0 // version
	header[5] = 0 // header type
	binary.LittleEndian.PutUint64(header[6:14], uint64(granule))
	binary.LittleEndian.PutUint32(header[14:18], serial)
	binary.LittleEndian.PutUint32(header[18:22], sequence)
	// CRC left zero: parseOGGPage treats a zero CRC field as "skip verification".
	header[26] = byte(len(segTable))
	copy(header[27:], segTable)

	return append(header, payload...)
}

func TestOGGVorbisParserReadsIdentificationHeader(t *testing.T) {
	ident := make([]byte, 30)
	ident[0] = 0x01
	copy(ident[1:7], "vorbis")
	binary.LittleEndian.PutUint32(ident[7:11], 0) // vorbis_version
	ident[11] = 2                                 // channels
	binary.LittleEndian.PutUint32(ident[12:16], 44100)

	page := buildOGGPage(1, 0, 0, [][]byte{ident})

	p := newOGGVorbisParser()
	res, err := p.Align(nil, page, true)
	if err != nil {
		t.Fatalf("Align() error = %v", err)
	}
	if len(res.Aligned) != len(page) {
		t.Fatalf("Aligned length = %d, want %d", len(res.Aligned), len(page))
	}
	if p.sampleRate != 44100 || p.channels != 2 {
		t.Fatalf("sampleRate/channels = %d/%d, want 44100/2", p.sampleRate, p.channels)
	}
}

func TestOpusParserReadsPreSkip(t *testing.T) {
	head := make([]byte, 19)
	copy(head[0:8], "OpusHead")
	head[8] = 1  // version
	head[9] = 2  // channels
	binary.LittleEndian.PutUint16(head[10:12], 312) // pre-skip
	binary.LittleEndian.PutUint32(head[12:16], 48000)

	page := buildOGGPage(7, 0, 0, [][]byte{head})

	p := newOpusParser()
	if _, err := p.Align(nil, page, true); err != nil {
		t.Fatalf("Align() error = %v", err)
	}
	if info := p.StreamInfo(); info.PreSkip != 312 {
		t.Fatalf("StreamInfo().PreSkip = %d, want 312", info.PreSkip)
	}
	if p.sampleRate != 48000 {
		t.Fatalf("sampleRate = %d, want 48000 (Opus always decodes at 48kHz)", p.sampleRate)
	}
}

func TestOGGVorbisParserStreamInfoTracksGranuleAsTotalSamples(t *testing.T) {
	ident := make([]byte, 30)
	ident[0] = 0x01
	copy(ident[1:7], "vorbis")
	binary.LittleEndian.PutUint32(ident[12:16], 44100)
	ident[11] = 1 // mono

	identPage := buildOGGPage(1, 0, 0, [][]byte{ident})
	dataPage := buildOGGPage(1, 1, 44100, [][]byte{{0, 1, 2}})

	p := newOGGVorbisParser()
	if _, err := p.Align(nil, identPage, false); err != nil {
		t.Fatalf("Align(identPage) error = %v", err)
	}
	if info := p.StreamInfo(); info.TotalSamples != 0 {
		t.Fatalf("TotalSamples after the identification page = %d, want 0 (no granule seen yet)", info.TotalSamples)
	}

	if _, err := p.Align(nil, dataPage, true); err != nil {
		t.Fatalf("Align(dataPage) error = %v", err)
	}
	if info := p.StreamInfo(); info.TotalSamples != 44100 {
		t.Fatalf("TotalSamples after the final page = %d, want 44100 (the last granule position)", info.TotalSamples)
	}
}

func TestOGGParserWithholdsIncompletePage(t *testing.T) {
	ident := make([]byte, 30)
	ident[0] = 0x01
	copy(ident[1:7], "vorbis")
	page := buildOGGPage(1, 0, 0, [][]byte{ident})

	p := newOGGVorbisParser()
	res, err := p.Align(nil, page[:len(page)-5], false)
	if err != nil {
		t.Fatalf("Align() error = %v", err)
	}
	if len(res.Aligned) != 0 {
		t.Fatalf("Aligned length = %d, want 0 for an incomplete page", len(res.Aligned))
	}
	if len(res.CarryOver) != len(page)-5 {
		t.Fatalf("CarryOver length = %d, want %d", len(res.CarryOver), len(page)-5)
	}
}

func TestOGGCRC32Deterministic(t *testing.T) {
	a := oggCRC32([]byte("hello waveline"))
	b := oggCRC32([]byte("hello waveline"))
	if a != b {
		t.Fatalf("oggCRC32 is not deterministic")
	}
	if a == 0 {
		t.Fatalf("oggCRC32() = 0, want nonzero")
	}
}
