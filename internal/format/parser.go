package format

import "time"

// SeekPoint is one entry of a format's seek-point index: a navigable byte
// offset and whether landing there resumes decode at exactly Time.
type SeekPoint struct {
	Time      time.Duration
	ByteOffset int64
	IsExact   bool
}

// SeekPointIndex is the ordered sequence of SeekPoints a parser has
// discovered so far. It grows as Align() walks
// further into the file and finds more seek-safe boundaries (e.g. OGG page
// heads, FLAC seektable entries).
type SeekPointIndex struct {
	Points []SeekPoint
}

// Add appends a point, keeping the index ordered by Time.
func (idx *SeekPointIndex) Add(p SeekPoint) {
	i := len(idx.Points)
	for i > 0 && idx.Points[i-1].Time > p.Time {
		i--
	}
	idx.Points = append(idx.Points, SeekPoint{})
	copy(idx.Points[i+1:], idx.Points[i:])
	idx.Points[i] = p
}

// Floor returns the last point at or before t, and whether one was found.
func (idx *SeekPointIndex) Floor(t time.Duration) (SeekPoint, bool) {
	var best SeekPoint
	found := false
	for _, p := range idx.Points {
		if p.Time <= t {
			best = p
			found = true
			continue
		}
		break
	}
	return best, found
}

// SeekResult is returned by time_to_byte and by the decoder's Seek: either an
// exact landing or the nearest point at or before the request, with a
// human-readable reason when approximate.
type SeekResult struct {
	ActualTime time.Duration
	ByteOffset int64
	IsExact    bool
	Warning    string
}

// ChunkSizeRecommendation is optimal_chunk_size's return value.
type ChunkSizeRecommendation struct {
	Recommended int
	Min         int
	Max         int
	Reason      string
}

// AlignResult is returned by Align: the codec-safe aligned prefix of the
// combined (carryOver + chunk) bytes and the new carry-over to prepend to the
// next chunk. The current parsers leave SeekPoints nil: points they discover
// go into their own SeekPointIndex, which TimeToByte reads.
type AlignResult struct {
	Aligned    []byte
	CarryOver  []byte
	SeekPoints []SeekPoint
}

// StreamParams are the fixed stream properties a parser can determine from
// its header/metadata without decoding audio (sample rate, channel count,
// total samples when known up front). Fields are zero when not yet known.
type StreamParams struct {
	SampleRate   int
	Channels     int
	TotalSamples int64 // per-channel frame count, 0 if unknown
	BitDepth     int   // source bit depth, informational
	PreSkip      int64 // Opus only: encoder priming samples to discard, 0 otherwise
}

// Parser is the capability set every format variant exposes.
// One implementation exists per Kind; the pipeline selects the variant by
// DetectMagic/ExtHint and keeps it for the job's lifetime.
type Parser interface {
	Kind() Kind

	// Detect reports whether header (the file's leading bytes) matches this
	// format's magic-byte signature.
	Detect(header []byte) bool

	// Init gives the parser a chance to read any whole-file metadata it needs
	// up front (STREAMINFO, fmt chunk, moov/stbl, ID3 tag size) before
	// alignment begins. path is the source file path (some formats' metadata
	// libraries require path-based access); size is the total file size in
	// bytes, or -1 if unknown (e.g. live stream); readAt lets the parser
	// perform random-access reads for metadata that cannot be inferred from a
	// sequential prefix.
	Init(path string, size int64, readAt func(off int64, p []byte) (int, error)) (StreamParams, error)

	// StreamInfo reports whatever stream shape has been discovered so far.
	// For MP4 this is fully known after Init (the whole moov box is parsed
	// up front); for the other formats it fills in progressively as Align
	// walks the header/identification packet, and is still zero-valued
	// until that happens. Callers that need it (the decoder adapter registry)
	// query it after the first successful Align call.
	StreamInfo() StreamParams

	// Align consumes carryOver (leftover bytes from the previous call,
	// possibly empty) followed by chunk, and returns the longest
	// codec-aligned prefix plus the new carry-over. isLast signals the final chunk of the file, in which case
	// Align must flush any remaining carry-over into Aligned rather than
	// holding it.
	Align(carryOver, chunk []byte, isLast bool) (AlignResult, error)

	// TimeToByte answers seek_to_time by translating a duration into a byte
	// offset, using whatever SeekPointIndex Align has accumulated so far.
	TimeToByte(t time.Duration) (SeekResult, error)

	// OptimalChunkSize recommends a read granularity given the total file
	// size.
	OptimalChunkSize(fileSize int64) ChunkSizeRecommendation
}
