// Package waveline turns compressed audio files into fixed-resolution
// waveform summaries with bounded memory, independent of input size. A Pool
// schedules jobs onto worker tasks that run the chunked read -> align ->
// decode -> aggregate pipeline (internal/chunkreader, internal/format,
// internal/decode, internal/aggregate) and report progress on a channel,
// behind a small public API plus a background monitor goroutine per job.
package waveline

import (
	"time"

	"github.com/solstice-audio/waveline/internal/aggregate"
)

// JobDescriptor describes one waveform-generation request.
type JobDescriptor struct {
	Path                 string
	Resolution           int
	Algorithm            aggregate.Algorithm
	Normalization        aggregate.Normalization
	ScalingCurve         aggregate.ScalingCurve
	SmoothingWindow      int
	ChunkSizeHint        int
	MemoryBudget         int64 // bytes; 0 means use the pool's default
	ExpectedTotalSamples int64 // optional hint for samples_per_point sizing
	Deadline             time.Duration // 0 disables the per-job wall-clock timeout
}

// ProgressEvent is one record on a JobHandle's progress stream. IsFinal is
// set only on the last record; no record follows it. A job whose cancel was
// requested drops records instead of blocking on the channel, and a job
// resolved by Pool.Close before it started sends none, so such a stream can
// close without a final record.
type ProgressEvent struct {
	Progress float64 // in [0,1], monotone non-decreasing within a job
	Status   string
	Partial  *AudioSummary
	IsFinal  bool
	Err      error
}

// JobHandle is returned by Submit: a result future plus a progress stream.
type JobHandle struct {
	id       uint64
	progress chan ProgressEvent
	done     chan struct{}
	cancel   chan struct{}

	result    *AudioSummary
	resultErr error
}

// ID uniquely identifies this job within the pool's lifetime.
func (h *JobHandle) ID() uint64 { return h.id }

// Progress returns the channel of ProgressEvents for this job. The channel
// is closed after the final event.
func (h *JobHandle) Progress() <-chan ProgressEvent { return h.progress }

// Wait blocks until the job resolves and returns its summary or error.
func (h *JobHandle) Wait() (*AudioSummary, error) {
	<-h.done
	return h.result, h.resultErr
}

// Done reports whether the job has resolved, without blocking.
func (h *JobHandle) Done() <-chan struct{} { return h.done }
