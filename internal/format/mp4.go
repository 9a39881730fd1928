package format

import (
	"fmt"
	"os"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/solstice-audio/waveline/internal/werr"
)

// mp4Parser locates the sample table (stbl) of the first audio track, walking
// ftyp/moov/trak/stbl boxes the way an AAC box reader walks them but stopping
// at container parsing: MP4/AAC support stays partial here, so the actual AAC
// payload is never decoded (see decode's mp4 adapter stub).
type mp4Parser struct {
	timescale    uint32
	sampleOffset []int64  // absolute byte offset of each sample's mdat payload
	sampleSize   []uint32 // size in bytes of each sample
	sampleDTS    []int64  // decoding timestamp (in timescale units) of each sample

	sampleRate int
	channels   int

	seekIdx    SeekPointIndex
	byteOffset int64
	nextSample int
}

func newMP4Parser() *mp4Parser { return &mp4Parser{} }

func (p *mp4Parser) Kind() Kind { return MP4 }

func (p *mp4Parser) Detect(header []byte) bool { return DetectMagic(header) == MP4 }

// Init requires random access to the whole moov box, which streamed chunks
// cannot guarantee arrive in order (moov may trail mdat), so it opens the
// file directly rather than working off the first chunk.
func (p *mp4Parser) Init(path string, _ int64, _ func(int64, []byte) (int, error)) (StreamParams, error) {
	if path == "" {
		return StreamParams{}, fmt.Errorf("%w: mp4 requires file-path access for moov parsing", werr.ErrUnsupportedFormat)
	}
	f, err := os.Open(path)
	if err != nil {
		return StreamParams{}, fmt.Errorf("%w: %v", werr.ErrIoFailure, err)
	}
	defer f.Close()

	file, err := mp4.DecodeFile(f, mp4.WithDecodeMode(mp4.DecModeLazyMdat))
	if err != nil {
		return StreamParams{}, fmt.Errorf("%w: decoding mp4: %v", werr.ErrCorruptedHeader, err)
	}
	if file.Moov == nil {
		return StreamParams{}, fmt.Errorf("%w: missing moov box", werr.ErrCorruptedHeader)
	}

	var trak *mp4.TrakBox
	for _, t := range file.Moov.Traks {
		if t != nil && t.Mdia != nil && t.Mdia.Hdlr != nil && t.Mdia.Hdlr.HandlerType == "soun" {
			trak = t
			break
		}
	}
	if trak == nil {
		return StreamParams{}, werr.ErrNoAudioStream
	}
	stbl := trak.Mdia.Minf.Stbl
	if stbl == nil || stbl.Stsz == nil || stbl.Stsc == nil || stbl.Stts == nil {
		return StreamParams{}, fmt.Errorf("%w: incomplete mp4 sample table", werr.ErrCorruptedHeader)
	}

	offsets, sizes, err := mp4SampleOffsets(stbl)
	if err != nil {
		return StreamParams{}, err
	}
	dts := mp4SampleDTS(stbl.Stts)
	if len(dts) != len(offsets) {
		// stts/stsz sample counts disagree; fall back to whichever is shorter
		// rather than index out of range later.
		n := len(offsets)
		if len(dts) < n {
			n = len(dts)
		}
		offsets, sizes, dts = offsets[:n], sizes[:n], dts[:n]
	}

	p.sampleOffset = offsets
	p.sampleSize = sizes
	p.sampleDTS = dts
	if trak.Mdia.Mdhd != nil {
		p.timescale = trak.Mdia.Mdhd.Timescale
	}
	if p.timescale == 0 {
		p.timescale = 1
	}

	if stsd := stbl.Stsd; stsd != nil && stsd.Mp4a != nil {
		p.sampleRate = int(stsd.Mp4a.SampleRate)
		p.channels = int(stsd.Mp4a.ChannelCount)
	}

	for i, off := range p.sampleOffset {
		t := time.Duration(float64(p.sampleDTS[i]) / float64(p.timescale) * float64(time.Second))
		p.seekIdx.Add(SeekPoint{Time: t, ByteOffset: off, IsExact: true})
	}

	return StreamParams{SampleRate: p.sampleRate, Channels: p.channels, TotalSamples: int64(len(offsets))}, nil
}

// mp4SampleOffsets reconstructs the classic stsc/stco(/co64)/stsz sample
// table algorithm: stsc gives runs of (first chunk, samples per chunk), stco
// gives each chunk's base offset, and stsz gives each sample's size, letting
// us walk sample-by-sample through the file's mdat payload.
func mp4SampleOffsets(stbl *mp4.StblBox) ([]int64, []uint32, error) {
	sizes := mp4SampleSizes(stbl.Stsz)
	if len(sizes) == 0 {
		return nil, nil, fmt.Errorf("%w: empty mp4 sample size table", werr.ErrCorruptedHeader)
	}

	chunkOffsets := mp4ChunkOffsets(stbl)
	if len(chunkOffsets) == 0 {
		return nil, nil, fmt.Errorf("%w: missing mp4 chunk offset table", werr.ErrCorruptedHeader)
	}

	stsc := stbl.Stsc
	offsets := make([]int64, 0, len(sizes))
	sampleIdx := 0
	for run := 0; run < len(stsc.FirstChunk); run++ {
		firstChunk := int(stsc.FirstChunk[run]) - 1
		samplesPerChunk := int(stsc.SamplesPerChunk[run])

		lastChunk := len(chunkOffsets) - 1
		if run+1 < len(stsc.FirstChunk) {
			lastChunk = int(stsc.FirstChunk[run+1]) - 2
		}

		for chunk := firstChunk; chunk <= lastChunk && chunk < len(chunkOffsets); chunk++ {
			pos := chunkOffsets[chunk]
			for s := 0; s < samplesPerChunk; s++ {
				if sampleIdx >= len(sizes) {
					return offsets, sizes[:len(offsets)], nil
				}
				offsets = append(offsets, pos)
				pos += int64(sizes[sampleIdx])
				sampleIdx++
			}
		}
	}
	return offsets, sizes, nil
}

func mp4SampleSizes(stsz *mp4.StszBox) []uint32 {
	if stsz.SampleSize != 0 {
		out := make([]uint32, stsz.SampleNumber)
		for i := range out {
			out[i] = stsz.SampleSize
		}
		return out
	}
	return stsz.SampleSizes
}

func mp4ChunkOffsets(stbl *mp4.StblBox) []int64 {
	if stbl.Stco != nil {
		out := make([]int64, len(stbl.Stco.ChunkOffset))
		for i, v := range stbl.Stco.ChunkOffset {
			out[i] = int64(v)
		}
		return out
	}
	if stbl.Co64 != nil {
		out := make([]int64, len(stbl.Co64.ChunkOffset))
		for i, v := range stbl.Co64.ChunkOffset {
			out[i] = int64(v)
		}
		return out
	}
	return nil
}

func mp4SampleDTS(stts *mp4.SttsBox) []int64 {
	var out []int64
	var t int64
	for i := range stts.SampleCount {
		for c := uint32(0); c < stts.SampleCount[i]; c++ {
			out = append(out, t)
			t += int64(stts.SampleTimeDelta[i])
		}
	}
	return out
}

// Align passes through every byte of whole samples fully contained in
// carryOver+chunk, withholding a trailing partial sample, using the sample
// table built in Init instead of scanning for in-band sync markers (MP4
// carries no equivalent of MP3/FLAC sync words inside mdat).
func (p *mp4Parser) Align(carryOver, chunk []byte, isLast bool) (AlignResult, error) {
	buf := append(append([]byte(nil), carryOver...), chunk...)
	end := p.byteOffset + int64(len(buf))

	cut := int64(0)
	for p.nextSample < len(p.sampleOffset) {
		sampleEnd := p.sampleOffset[p.nextSample] + int64(p.sampleSize[p.nextSample])
		if sampleEnd > end {
			break
		}
		cut = sampleEnd - p.byteOffset
		p.nextSample++
	}
	if isLast {
		cut = int64(len(buf))
	}
	if cut < 0 {
		cut = 0
	}
	if cut > int64(len(buf)) {
		cut = int64(len(buf))
	}

	out := buf[:cut]
	carry := append([]byte(nil), buf[cut:]...)
	p.byteOffset += int64(len(out))
	return AlignResult{Aligned: out, CarryOver: carry}, nil
}

// StreamInfo is fully populated after Init, since the whole moov box is
// parsed up front rather than discovered progressively through Align.
func (p *mp4Parser) StreamInfo() StreamParams {
	return StreamParams{
		SampleRate:   p.sampleRate,
		Channels:     p.channels,
		TotalSamples: int64(len(p.sampleOffset)),
	}
}

func (p *mp4Parser) TimeToByte(t time.Duration) (SeekResult, error) {
	pt, ok := p.seekIdx.Floor(t)
	if !ok {
		return SeekResult{}, werr.ErrSeekUnsupported
	}
	return SeekResult{ActualTime: pt.Time, ByteOffset: pt.ByteOffset, IsExact: pt.Time == t}, nil
}

func (p *mp4Parser) OptimalChunkSize(fileSize int64) ChunkSizeRecommendation {
	return defaultChunkSizing(fileSize, "mp4: sample-table aligned, mdat is usually contiguous")
}
