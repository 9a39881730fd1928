package aggregate

import (
	"testing"

	"github.com/solstice-audio/waveline/internal/decode"
)

func TestAggregatorEmitsExactlyNPointsForSilence(t *testing.T) {
	a, err := New(Params{TargetResolution: 10, Algorithm: RMS, ExpectedTotalSamples: 44100})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	samples := make([]float32, 44100) // mono, all zero
	if _, err := a.Accept(decode.PcmChunk{Samples: samples, SampleRate: 44100, Channels: 1}); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if _, err := a.Accept(decode.PcmChunk{SampleRate: 44100, Channels: 1, IsLast: true}); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	points, sampleRate, channels, err := a.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if len(points) != 10 {
		t.Fatalf("len(points) = %d, want 10", len(points))
	}
	for i, p := range points {
		if p != 0 {
			t.Fatalf("points[%d] = %v, want 0 for a silent stream", i, p)
		}
	}
	if sampleRate != 44100 || channels != 1 {
		t.Fatalf("sampleRate/channels = %d/%d, want 44100/1", sampleRate, channels)
	}
}

func TestAggregatorCapsAtTargetResolutionEvenWithExcessSamples(t *testing.T) {
	a, err := New(Params{TargetResolution: 4, Algorithm: Peak, ExpectedTotalSamples: 400})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	// samples_per_point = ceil(400/4) = 100; feed far more than needed.
	samples := make([]float32, 1000)
	if _, err := a.Accept(decode.PcmChunk{Samples: samples, SampleRate: 8000, Channels: 1}); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if a.Resolution() != 4 {
		t.Fatalf("Resolution() = %d, want 4 (emission must stop at the target)", a.Resolution())
	}
}

func TestAggregatorEmitsFinalPartialPointOnLastChunk(t *testing.T) {
	a, err := New(Params{TargetResolution: 100, Algorithm: RMS, ExpectedTotalSamples: 10000})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	// samples_per_point = 100; feed only 50 frames then signal last.
	samples := make([]float32, 50)
	for i := range samples {
		samples[i] = 0.5
	}
	if _, err := a.Accept(decode.PcmChunk{Samples: samples, SampleRate: 8000, Channels: 1}); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if a.Resolution() != 0 {
		t.Fatalf("Resolution() before last chunk = %d, want 0 (window not yet full)", a.Resolution())
	}
	last, err := a.Accept(decode.PcmChunk{SampleRate: 8000, Channels: 1, IsLast: true})
	if err != nil {
		t.Fatalf("Accept(last) error = %v", err)
	}
	if len(last) != 1 {
		t.Fatalf("len(last emitted) = %d, want 1 (a partial final point)", len(last))
	}
	if !approxEqual(last[0], 0.5, 1e-6) {
		t.Fatalf("final partial point = %v, want 0.5", last[0])
	}
}

func TestAggregatorCollapsesStereoByMeanAbsoluteAcrossChannels(t *testing.T) {
	a, err := New(Params{TargetResolution: 1, Algorithm: RMS, ExpectedTotalSamples: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	// One stereo frame: left=0.6, right=-0.2 -> collapsed mono = (0.6+0.2)/2 = 0.4.
	samples := []float32{0.6, -0.2}
	emitted, err := a.Accept(decode.PcmChunk{Samples: samples, SampleRate: 44100, Channels: 2})
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if len(emitted) != 1 {
		t.Fatalf("len(emitted) = %d, want 1", len(emitted))
	}
	if !approxEqual(emitted[0], 0.4, 1e-6) {
		t.Fatalf("emitted[0] = %v, want 0.4", emitted[0])
	}
}

func TestAggregatorCrossChunkWindowMatchesSingleChunkWindow(t *testing.T) {
	full := make([]float32, 100)
	for i := range full {
		full[i] = float32(i) / 100
	}

	oneShot, err := New(Params{TargetResolution: 1, Algorithm: RMS, ExpectedTotalSamples: 100})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := oneShot.Accept(decode.PcmChunk{Samples: full, SampleRate: 8000, Channels: 1}); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	wantPoints, _, _, err := oneShot.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	split, err := New(Params{TargetResolution: 1, Algorithm: RMS, ExpectedTotalSamples: 100})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for i := 0; i < len(full); i += 7 {
		end := i + 7
		if end > len(full) {
			end = len(full)
		}
		if _, err := split.Accept(decode.PcmChunk{Samples: full[i:end], SampleRate: 8000, Channels: 1}); err != nil {
			t.Fatalf("Accept() error = %v", err)
		}
	}
	if _, err := split.Accept(decode.PcmChunk{SampleRate: 8000, Channels: 1, IsLast: true}); err != nil {
		t.Fatalf("Accept(last) error = %v", err)
	}
	gotPoints, _, _, err := split.Finalize()
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if len(gotPoints) != len(wantPoints) {
		t.Fatalf("len(gotPoints) = %d, want %d", len(gotPoints), len(wantPoints))
	}
	if !approxEqual(gotPoints[0], wantPoints[0], 1e-6) {
		t.Fatalf("chunked aggregation = %v, want %v (identical to a single whole-buffer pass)", gotPoints[0], wantPoints[0])
	}
}

func TestAggregatorFinalizeTwiceErrors(t *testing.T) {
	a, err := New(Params{TargetResolution: 1, Algorithm: RMS})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := a.Accept(decode.PcmChunk{Samples: []float32{0.1}, SampleRate: 8000, Channels: 1, IsLast: true}); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if _, _, _, err := a.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if _, _, _, err := a.Finalize(); err == nil {
		t.Fatalf("second Finalize() error = nil, want an error")
	}
}

func TestAggregatorSetExpectedTotalSamplesBeforeFirstAcceptTakesEffect(t *testing.T) {
	a, err := New(Params{TargetResolution: 4, Algorithm: Peak})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	// Mirrors a parser that only learns the real total once Align walks the
	// header, after New was already called with no hint.
	a.SetExpectedTotalSamples(400)

	samples := make([]float32, 1000)
	if _, err := a.Accept(decode.PcmChunk{Samples: samples, SampleRate: 8000, Channels: 1}); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if a.Resolution() != 4 {
		t.Fatalf("Resolution() = %d, want 4 (samples_per_point should derive from the refined hint, not the 1024 default)", a.Resolution())
	}
}

func TestAggregatorSetExpectedTotalSamplesIgnoredOnceAccumulating(t *testing.T) {
	a, err := New(Params{TargetResolution: 4, Algorithm: Peak, ExpectedTotalSamples: 400})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := a.Accept(decode.PcmChunk{Samples: make([]float32, 10), SampleRate: 8000, Channels: 1}); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	// Too late: samples_per_point (100) is already locked in from the first Accept.
	a.SetExpectedTotalSamples(40000)

	samples := make([]float32, 1000)
	if _, err := a.Accept(decode.PcmChunk{Samples: samples, SampleRate: 8000, Channels: 1}); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if a.Resolution() != 4 {
		t.Fatalf("Resolution() = %d, want 4 (a late SetExpectedTotalSamples must not reopen sizing)", a.Resolution())
	}
}

func TestAggregatorWithNoChunksEverFailsClosed(t *testing.T) {
	a, err := New(Params{TargetResolution: 10, Algorithm: RMS})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, _, _, err := a.Finalize(); err == nil {
		t.Fatalf("Finalize() on an empty stream error = nil, want NoAudioStream")
	}
}
