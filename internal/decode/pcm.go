// Package decode implements per-codec streaming decoder adapters that
// consume codec-aligned byte chunks (from internal/format) and emit
// normalized interleaved PCM, applying encoder-delay skip so no priming
// sample ever reaches the aggregator.
package decode

import (
	"encoding/binary"
)

// PcmChunk is the decoder's output unit. IsLast marks the
// terminal chunk Flush always appends once the decode loop has exited;
// Samples is always empty on that chunk.
type PcmChunk struct {
	Samples     []float32 // interleaved, normalized to [-1,1]
	StartSample int64     // absolute per-channel sample index into the post-priming stream
	SampleRate  int       // the adapter's native rate; never resampled or assumed
	Channels    int
	IsLast      bool
}

// int16LEToFloat32 converts a 16-bit little-endian PCM byte slice (go-mp3's
// output, a 16-bit WAV payload, and the Opus adapter's decode buffer) into
// normalized interleaved float32 samples.
func int16LEToFloat32(raw []byte) []float32 {
	n := len(raw) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		out[i] = float32(s) / 32768
	}
	return out
}

// intSampleToFloat32 widens a source-bit-depth integer sample (8/16/24/32
// bit) to a normalized float32, used by the WAV adapter for non-16-bit
// source depths without resampling or downmixing.
func intSampleToFloat32(sample int32, bitDepth int) float32 {
	max := float64(int64(1) << uint(bitDepth-1))
	v := float64(sample) / max
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return float32(v)
}

func clampFloat32(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
