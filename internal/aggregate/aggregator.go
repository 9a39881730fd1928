// Package aggregate downsamples a PcmChunk stream into at most N amplitude
// points (see Aggregator for when exactly N) with bounded state, keeping a single grow-only scratch buffer for
// the pending window instead of retaining the whole decoded stream.
package aggregate

import (
	"fmt"

	"github.com/solstice-audio/waveline/internal/decode"
	"github.com/solstice-audio/waveline/internal/werr"
)

// state is the aggregator's lifecycle.
type state int

const (
	stateUninitialized state = iota
	stateAccumulating
	stateFinalized
)

// defaultSamplesPerPoint is used when no expected_total_samples hint is
// supplied before the first Accept. Emission stops at N points, so with this
// default a stream longer than N*1024 frames contributes only its first
// N*1024 frames, and a shorter one yields fewer than N points.
const defaultSamplesPerPoint = 1024

// Params configures one aggregation run.
type Params struct {
	TargetResolution     int
	Algorithm            Algorithm
	Normalization        Normalization
	ScalingCurve         ScalingCurve
	SmoothingWindow      int   // 0 or 1 disables smoothing
	ExpectedTotalSamples int64 // optional hint, 0 if unknown
}

// Aggregator consumes decode.PcmChunks in stream order and produces at most
// Params.TargetResolution amplitude points. It produces exactly that many
// for a non-empty stream only when the total-sample hint is set before the
// first Accept; without one it falls back to defaultSamplesPerPoint.
// Not safe for concurrent use; a worker drives exactly one Aggregator per
// job, mirroring the reader's and decoder's own single-owner contracts.
type Aggregator struct {
	params Params
	state  state

	sampleRate int
	channels   int

	samplesPerPoint int64
	window          []float32 // per-frame collapsed samples awaiting a full window
	windowFrames    int64

	points []float32
}

// New constructs an Aggregator; TargetResolution must be positive.
func New(p Params) (*Aggregator, error) {
	if p.TargetResolution <= 0 {
		return nil, fmt.Errorf("aggregate: target resolution must be positive, got %d", p.TargetResolution)
	}
	return &Aggregator{params: p}, nil
}

// SetExpectedTotalSamples refines the total-sample hint used to size
// samples_per_point. Most parsers only learn the real count progressively
// as Align walks the stream's header, after New has already been called; a
// caller re-queries Parser.StreamInfo() as that happens and passes the
// result here. Takes effect only before accumulation starts (the first
// Accept call locks samples_per_point in), and only replaces an unset hint.
func (a *Aggregator) SetExpectedTotalSamples(n int64) {
	if a.state == stateUninitialized && n > 0 && a.params.ExpectedTotalSamples <= 0 {
		a.params.ExpectedTotalSamples = n
	}
}

// Accept feeds one PcmChunk's samples into the window, emitting whatever
// amplitude points become available. Returns the raw (un-smoothed,
// un-scaled, un-normalized) points produced by this call, for a streaming
// caller's partial-progress preview.
func (a *Aggregator) Accept(chunk decode.PcmChunk) ([]float32, error) {
	if a.state == stateFinalized {
		return nil, fmt.Errorf("aggregate: Accept called after Finalize")
	}

	if a.state == stateUninitialized {
		if chunk.Channels <= 0 {
			return nil, fmt.Errorf("aggregate: %w: first chunk has no channel count", werr.ErrNoAudioStream)
		}
		a.channels = chunk.Channels
		a.sampleRate = chunk.SampleRate
		a.samplesPerPoint = defaultSamplesPerPoint
		if a.params.ExpectedTotalSamples > 0 {
			spp := a.params.ExpectedTotalSamples / int64(a.params.TargetResolution)
			if a.params.ExpectedTotalSamples%int64(a.params.TargetResolution) != 0 {
				spp++
			}
			if spp > 0 {
				a.samplesPerPoint = spp
			}
		}
		a.state = stateAccumulating
	}

	a.collapseAndBuffer(chunk.Samples)
	emitted := a.drainFullWindows()

	if chunk.IsLast && len(a.points) < a.params.TargetResolution && a.windowFrames > 0 {
		emitted = append(emitted, a.emitPoint(a.window[:a.windowFrames]))
		a.window = a.window[:0]
		a.windowFrames = 0
	}
	return emitted, nil
}

// collapseAndBuffer collapses each interleaved frame to a single mono value
// (mean of absolute values, step 3) and appends it to the pending
// window.
func (a *Aggregator) collapseAndBuffer(samples []float32) {
	if len(samples) == 0 || a.channels <= 0 {
		return
	}
	nFrames := len(samples) / a.channels
	if cap(a.window)-len(a.window) < nFrames {
		grown := make([]float32, len(a.window), len(a.window)+nFrames)
		copy(grown, a.window)
		a.window = grown
	}
	for f := 0; f < nFrames; f++ {
		var sum float32
		for ch := 0; ch < a.channels; ch++ {
			v := samples[f*a.channels+ch]
			if v < 0 {
				v = -v
			}
			sum += v
		}
		a.window = append(a.window, sum/float32(a.channels))
	}
	a.windowFrames += int64(nFrames)
}

// drainFullWindows pops complete samples_per_point windows and computes one
// amplitude point per window, stopping once TargetResolution points exist
//.
func (a *Aggregator) drainFullWindows() []float32 {
	var emitted []float32
	for a.windowFrames >= a.samplesPerPoint && len(a.points) < a.params.TargetResolution {
		win := a.window[:a.samplesPerPoint]
		emitted = append(emitted, a.emitPoint(win))

		remaining := a.window[a.samplesPerPoint:]
		a.window = append(a.window[:0], remaining...)
		a.windowFrames -= a.samplesPerPoint
	}
	return emitted
}

func (a *Aggregator) emitPoint(window []float32) float32 {
	v := a.params.Algorithm.apply(window)
	a.points = append(a.points, v)
	return v
}

// Finalize ends accumulation and returns the complete, post-processed point
// sequence: smoothing and the scaling curve applied pointwise, then
// normalization applied once across the whole sequence.
// Safe to call at most once; a subsequent call returns an error.
func (a *Aggregator) Finalize() ([]float32, int, int, error) {
	if a.state == stateFinalized {
		return nil, 0, 0, fmt.Errorf("aggregate: Finalize called twice")
	}
	if a.state == stateUninitialized {
		return nil, 0, 0, fmt.Errorf("aggregate: %w", werr.ErrNoAudioStream)
	}
	a.state = stateFinalized

	out := smooth(a.points, a.params.SmoothingWindow)
	scaled := make([]float32, len(out))
	for i, v := range out {
		scaled[i] = a.params.ScalingCurve.apply(v)
	}
	normalize(scaled, a.params.Normalization)

	return scaled, a.sampleRate, a.channels, nil
}

// Resolution reports how many points have been emitted so far.
func (a *Aggregator) Resolution() int { return len(a.points) }
