package waveline

import (
	"encoding/json"
	"time"

	"github.com/solstice-audio/waveline/internal/aggregate"
)

// AudioSummary is the pipeline's terminal artifact: an immutable, frozen
// waveform. Construct only via the pipeline; callers never mutate
// Amplitudes after receiving one.
type AudioSummary struct {
	Amplitudes   []float32
	Duration     time.Duration
	SampleRate   int
	ChannelCount int
	Algorithm    aggregate.Algorithm
	Normalized   bool
	GeneratedAt  time.Time
}

// Resolution is the number of amplitude points, equal to len(Amplitudes).
func (s *AudioSummary) Resolution() int { return len(s.Amplitudes) }

// audioSummaryWire is the on-the-wire JSON interchange shape.
type audioSummaryWire struct {
	Amplitudes []float32            `json:"amplitudes"`
	DurationUs int64                `json:"duration_us"`
	SampleRate int                  `json:"sample_rate"`
	Channels   int                  `json:"channel_count"`
	Metadata   audioSummaryMetadata `json:"metadata"`
}

type audioSummaryMetadata struct {
	Resolution  int    `json:"resolution"`
	Algorithm   string `json:"algorithm"`
	Normalized  bool   `json:"normalized"`
	GeneratedAt string `json:"generated_at"`
}

// MarshalJSON encodes the summary using the wire schema.
func (s *AudioSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(audioSummaryWire{
		Amplitudes: s.Amplitudes,
		DurationUs: s.Duration.Microseconds(),
		SampleRate: s.SampleRate,
		Channels:   s.ChannelCount,
		Metadata: audioSummaryMetadata{
			Resolution:  len(s.Amplitudes),
			Algorithm:   s.Algorithm.String(),
			Normalized:  s.Normalized,
			GeneratedAt: s.GeneratedAt.UTC().Format(time.RFC3339Nano),
		},
	})
}

// UnmarshalJSON reconstructs an AudioSummary from the wire schema.
// Round-tripping through Marshal/Unmarshal yields a value equal to the
// original up to floating-point comparison; Algorithm is restored from its
// string name, Duration from microseconds and GeneratedAt from its RFC 3339
// string, and the other fields are copied directly.
func (s *AudioSummary) UnmarshalJSON(b []byte) error {
	var w audioSummaryWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	generatedAt, err := time.Parse(time.RFC3339Nano, w.Metadata.GeneratedAt)
	if err != nil {
		return err
	}
	s.Amplitudes = w.Amplitudes
	s.Duration = time.Duration(w.DurationUs) * time.Microsecond
	s.SampleRate = w.SampleRate
	s.ChannelCount = w.Channels
	s.Algorithm = algorithmFromString(w.Metadata.Algorithm)
	s.Normalized = w.Metadata.Normalized
	s.GeneratedAt = generatedAt
	return nil
}

func algorithmFromString(s string) aggregate.Algorithm {
	switch s {
	case "peak":
		return aggregate.Peak
	case "average":
		return aggregate.Average
	case "median":
		return aggregate.Median
	default:
		return aggregate.RMS
	}
}
