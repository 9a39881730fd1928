package waveline

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/solstice-audio/waveline/internal/aggregate"
	"github.com/solstice-audio/waveline/internal/chunkreader"
	"github.com/solstice-audio/waveline/internal/decode"
	"github.com/solstice-audio/waveline/internal/format"
	"github.com/solstice-audio/waveline/internal/werr"
)

// maxConsecutiveFailures is the default K: the pool aborts a job with
// PartialFailureError once more than this many decode failures happen back
// to back without an intervening success.
const maxConsecutiveFailures = 3

// maxChunkHalvings bounds how many times a worker halves its chunk size in
// response to memory pressure before giving up with MemoryExceeded.
const maxChunkHalvings = 2

// worker drives exactly one job's read->align->decode->aggregate pipeline
// end to end. It owns its reader, parser, adapter and aggregator
// exclusively; nothing here is touched from another goroutine except
// through the job's own channels and the pool's shared atomic counters.
type worker struct {
	handle   *JobHandle
	job      JobDescriptor
	watchdog *memoryWatchdog
	counters *poolCounters
}

func newWorker(handle *JobHandle, job JobDescriptor, watchdog *memoryWatchdog, counters *poolCounters) *worker {
	return &worker{handle: handle, job: job, watchdog: watchdog, counters: counters}
}

// run is the worker's entry point, invoked on its own goroutine by the pool.
// It always resolves handle exactly once, whether by success, error or
// cancellation, and never leaves background work running after it returns.
func (w *worker) run() {
	w.counters.workerStarted()
	defer w.counters.workerStopped()
	defer close(w.handle.progress)
	defer close(w.handle.done)

	summary, err := w.pipeline()
	if err != nil {
		w.counters.jobFailed()
		w.handle.resultErr = err
		w.publish(ProgressEvent{Progress: 1, Status: "failed", IsFinal: true, Err: err})
		return
	}
	w.counters.jobCompleted()
	w.handle.result = summary
	w.publish(ProgressEvent{Progress: 1, Status: "done", Partial: summary, IsFinal: true})
}

func (w *worker) publish(ev ProgressEvent) {
	select {
	case w.handle.progress <- ev:
	case <-w.handle.cancel:
	}
}

func (w *worker) cancelled() bool {
	select {
	case <-w.handle.cancel:
		return true
	default:
		return false
	}
}

// pipelineState carries everything readAlignedChunk and the decode/aggregate
// steps need across loop iterations, so pipeline's main loop stays readable.
type pipelineState struct {
	reader    *chunkreader.Reader
	parser    format.Parser
	carryOver []byte
	minChunk  int
	halvings  int
}

// pipeline reads raw chunks, aligns them to codec-safe boundaries, decodes
// them to PCM and aggregates the result into a waveform, for one job,
// publishing progress once per aligned byte chunk (not per emitted
// PcmChunk), recovering from
// per-chunk decode failures up to maxConsecutiveFailures, and retrying with a
// halved chunk size on memory pressure.
func (w *worker) pipeline() (*AudioSummary, error) {
	path := w.job.Path
	extHint := format.ExtHint(path)

	header, err := peekHeader(path)
	if err != nil {
		return nil, err
	}
	parser, err := format.Detect(header, extHint)
	if err != nil {
		return nil, err
	}

	reader, err := chunkreader.Open(path, 0)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	streamInfo, err := parser.Init(path, reader.SizeBytes(), readAtFunc(path))
	if err != nil {
		return nil, err
	}

	rec := parser.OptimalChunkSize(reader.SizeBytes())
	reader.SetChunkSize(w.initialChunkSize(rec))

	agg, err := aggregate.New(aggregate.Params{
		TargetResolution:     w.job.Resolution,
		Algorithm:            w.job.Algorithm,
		Normalization:        w.job.Normalization,
		ScalingCurve:         w.job.ScalingCurve,
		SmoothingWindow:      w.job.SmoothingWindow,
		ExpectedTotalSamples: firstNonzero(w.job.ExpectedTotalSamples, streamInfo.TotalSamples),
	})
	if err != nil {
		return nil, err
	}

	st := &pipelineState{reader: reader, parser: parser, minChunk: rec.Min}

	var adapter decode.Adapter
	var consecutiveFailures int
	var firstFailure error
	deadline := w.deadlineAt()

	for {
		if w.cancelled() {
			closeAdapter(adapter)
			return nil, werr.ErrCancelled
		}
		if !deadline.IsZero() && nowFunc().After(deadline) {
			closeAdapter(adapter)
			return nil, werr.ErrDeadline
		}

		chunk, aligned, eof, err := w.readAligned(st)
		if err != nil {
			closeAdapter(adapter)
			return nil, err
		}
		if eof {
			break
		}

		// Most parsers only learn the real sample count progressively as
		// Align walks the header (WAV's data-chunk size, FLAC's STREAMINFO);
		// refine the aggregator's hint as soon as it's known, before the
		// first Accept call locks samples_per_point in.
		agg.SetExpectedTotalSamples(parser.StreamInfo().TotalSamples)

		if adapter == nil {
			adapter, err = decode.New(parser.Kind(), parser)
			if err != nil {
				return nil, err
			}
		}

		pcmChunks, feedErr := adapter.Feed(aligned.Aligned)
		if feedErr != nil {
			consecutiveFailures++
			if firstFailure == nil {
				firstFailure = feedErr
			}
			if consecutiveFailures > maxConsecutiveFailures {
				adapter.Close()
				return nil, &werr.PartialFailureError{CompletedPoints: agg.Resolution(), FirstError: firstFailure}
			}
		} else {
			consecutiveFailures = 0
		}

		if err := w.acceptChunks(agg, pcmChunks); err != nil {
			adapter.Close()
			return nil, err
		}
		w.reportProgress(reader, chunk)

		if chunk.IsLast {
			final, flushErr := adapter.Flush()
			adapter.Close()
			if flushErr != nil {
				return nil, flushErr
			}
			if err := w.acceptChunks(agg, final); err != nil {
				return nil, err
			}
			break
		}
	}

	points, sampleRate, channels, err := agg.Finalize()
	if err != nil {
		return nil, err
	}
	// streamInfo was snapshotted before Align ever ran (Init() only knows
	// the real sample count for MP4); re-query now that Align has walked
	// the whole stream so Duration isn't stuck at 0 for every other format.
	finalInfo := parser.StreamInfo()
	return &AudioSummary{
		Amplitudes:   points,
		Duration:     durationFromFrames(int64(len(points))*spanFrames(agg, finalInfo), sampleRate),
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Algorithm:    w.job.Algorithm,
		Normalized:   w.job.Normalization != aggregate.NoNormalization,
		GeneratedAt:  nowFunc(),
	}, nil
}

// readAligned reads the next chunk and aligns it, retrying with a halved
// chunk size (re-reading the same byte range) whenever the watchdog reports
// pressure or Align/allocation fails with MemoryExceeded/ChunkTooLarge.
// Returns eof=true once the reader has no more bytes.
func (w *worker) readAligned(st *pipelineState) (chunkreader.ByteChunk, format.AlignResult, bool, error) {
	for {
		chunk, readErr := st.reader.ReadNext()
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return chunkreader.ByteChunk{}, format.AlignResult{}, true, nil
			}
			return chunkreader.ByteChunk{}, format.AlignResult{}, false, readErr
		}

		w.watchdog.Reserve(int64(len(chunk.Data)))
		w.counters.bytesReserved(int64(len(chunk.Data)))
		aligned, alignErr := st.parser.Align(st.carryOver, chunk.Data, chunk.IsLast)
		pressured := w.watchdog.Pressured()
		st.reader.ReleaseChunk(chunk)
		w.watchdog.Release(int64(len(chunk.Data)))
		w.counters.bytesReleased(int64(len(chunk.Data)))

		memoryClass := alignErr != nil && (errors.Is(alignErr, werr.ErrMemoryExceeded) || errors.Is(alignErr, werr.ErrChunkTooLarge))
		if memoryClass || (alignErr == nil && pressured) {
			if st.halvings >= maxChunkHalvings {
				return chunkreader.ByteChunk{}, format.AlignResult{}, false, fmt.Errorf("%w: exhausted %d halvings", werr.ErrMemoryExceeded, maxChunkHalvings)
			}
			st.halvings++
			newSize := st.reader.ChunkSize() / 2
			if newSize < st.minChunk {
				newSize = st.minChunk
			}
			st.reader.SetChunkSize(newSize)
			if err := st.reader.SeekToByte(chunk.StartOffset); err != nil {
				return chunkreader.ByteChunk{}, format.AlignResult{}, false, err
			}
			continue
		}
		if alignErr != nil {
			return chunkreader.ByteChunk{}, format.AlignResult{}, false, alignErr
		}

		st.carryOver = aligned.CarryOver
		return chunk, aligned, false, nil
	}
}

func closeAdapter(a decode.Adapter) {
	if a != nil {
		a.Close()
	}
}

func (w *worker) acceptChunks(agg *aggregate.Aggregator, chunks []decode.PcmChunk) error {
	for _, c := range chunks {
		if _, err := agg.Accept(c); err != nil {
			return err
		}
	}
	return nil
}

func (w *worker) reportProgress(reader *chunkreader.Reader, chunk chunkreader.ByteChunk) {
	total := reader.SizeBytes()
	var fraction float64
	if total > 0 {
		fraction = float64(chunk.EndOffset) / float64(total)
	}
	w.publish(ProgressEvent{Progress: fraction, Status: "decoding"})
}

func (w *worker) initialChunkSize(rec format.ChunkSizeRecommendation) int {
	size := rec.Recommended
	if w.job.ChunkSizeHint > 0 {
		size = w.job.ChunkSizeHint
	}
	if size < rec.Min {
		size = rec.Min
	}
	if rec.Max > 0 && size > rec.Max {
		size = rec.Max
	}
	return size
}

func (w *worker) deadlineAt() time.Time {
	if w.job.Deadline <= 0 {
		return time.Time{}
	}
	return nowFunc().Add(w.job.Deadline)
}

func firstNonzero(a, b int64) int64 {
	if a > 0 {
		return a
	}
	return b
}

// spanFrames reports how many per-channel frames one amplitude point
// represents, for converting a point count back into a wall-clock duration.
func spanFrames(agg *aggregate.Aggregator, info format.StreamParams) int64 {
	if info.TotalSamples > 0 && agg.Resolution() > 0 {
		return info.TotalSamples / int64(agg.Resolution())
	}
	return 0
}

func durationFromFrames(frames int64, sampleRate int) time.Duration {
	if sampleRate <= 0 || frames <= 0 {
		return 0
	}
	return time.Duration(float64(frames) / float64(sampleRate) * float64(time.Second))
}
