package decode

import (
	"io"
	"sync"
	"time"

	"github.com/solstice-audio/waveline/internal/format"
	"github.com/solstice-audio/waveline/internal/werr"
)

// Adapter is the decoder's capability set.
type Adapter interface {
	// Feed consumes one codec-aligned chunk and returns whatever PcmChunks
	// have been produced so far. Because the underlying codec libraries are
	// pull-based, production can lag a call or two behind Feed; Flush drains
	// anything still pending once the stream ends.
	Feed(aligned []byte) ([]PcmChunk, error)

	// Seek tears the decoder down and recreates it at the nearest
	// codec-safe boundary at or before t, ("resets the
	// decoder state and resumes decoding"). byteOffset is the position the
	// caller must reposition its chunk reader to before resuming Feed.
	Seek(t time.Duration) (result format.SeekResult, byteOffset int64, err error)

	Flush() ([]PcmChunk, error)
	Close() error

	SampleRate() int
	Channels() int
}

// decodeLoopFunc runs on a background goroutine, pulling bytes from r (fed
// by Feed via an io.Pipe) and calling emit for each block of decoded PCM. It
// returns when r reaches EOF (Flush closed the pipe) or on decode error.
type decodeLoopFunc func(r io.Reader, emit func(samples []float32)) error

// baseAdapter bridges a push-based Feed/Flush API to a pull-based codec
// library Read loop using an io.Pipe: Feed's Write blocks until the decode
// goroutine has consumed exactly those bytes, giving the same one-chunk-in-
// flight backpressure as the bounded channels between the other stages.
type baseAdapter struct {
	pw *io.PipeWriter
	pr *io.PipeReader

	parser format.Parser // nil when the format carries no seek index (shouldn't happen in practice)
	loop   decodeLoopFunc

	sampleRate int
	channels   int
	skip       int64 // remaining per-channel samples to discard (encoder delay)
	nextSample int64

	mu      sync.Mutex
	queue   []PcmChunk
	loopErr error

	doneCh      chan struct{}
	paramsReady chan struct{}
	paramsOnce  sync.Once
}

func newBaseAdapter(sampleRate, channels int, encoderDelaySamples int64, parser format.Parser, loop decodeLoopFunc) *baseAdapter {
	pr, pw := io.Pipe()
	a := &baseAdapter{
		pr:          pr,
		pw:          pw,
		parser:      parser,
		loop:        loop,
		sampleRate:  sampleRate,
		channels:    channels,
		skip:        encoderDelaySamples,
		doneCh:      make(chan struct{}),
		paramsReady: make(chan struct{}),
	}
	if sampleRate > 0 {
		close(a.paramsReady)
	}
	go a.run(loop)
	return a
}

func (a *baseAdapter) run(loop decodeLoopFunc) {
	defer close(a.doneCh)
	defer a.markParamsReady()
	err := loop(a.pr, a.emit)
	a.pr.Close()
	if err != nil && err != io.EOF {
		a.mu.Lock()
		a.loopErr = err
		a.mu.Unlock()
	}
}

// markParamsReady unblocks SampleRate() for adapters (MP3) whose sample rate
// is only known once the decode loop has parsed the stream's first frame.
func (a *baseAdapter) markParamsReady() {
	a.paramsOnce.Do(func() { close(a.paramsReady) })
}

// emit applies the encoder-delay skip across calls
// and appends whatever remains to the pending queue.
func (a *baseAdapter) emit(samples []float32) {
	if a.channels <= 0 {
		return
	}
	if a.skip > 0 {
		dropFrames := a.skip
		avail := int64(len(samples)) / int64(a.channels)
		if dropFrames > avail {
			dropFrames = avail
		}
		samples = samples[dropFrames*int64(a.channels):]
		a.skip -= dropFrames
	}
	if len(samples) == 0 {
		return
	}
	start := a.nextSample
	a.nextSample += int64(len(samples)) / int64(a.channels)

	a.mu.Lock()
	a.queue = append(a.queue, PcmChunk{Samples: samples, StartSample: start, SampleRate: a.sampleRate, Channels: a.channels})
	a.mu.Unlock()
}

func (a *baseAdapter) drain() []PcmChunk {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return nil
	}
	out := a.queue
	a.queue = nil
	return out
}

func (a *baseAdapter) Feed(aligned []byte) ([]PcmChunk, error) {
	if len(aligned) > 0 {
		if _, err := a.pw.Write(aligned); err != nil {
			if err == io.ErrClosedPipe {
				return a.drain(), a.checkLoopErr()
			}
			return nil, werr.ErrIoFailure
		}
	}
	return a.drain(), a.checkLoopErr()
}

// Flush closes the write side so the decode loop sees EOF, waits for it to
// finish, and drains whatever it produced. A terminal zero-sample chunk
// with IsLast set is always appended: Feed already streams chunks out as
// they're produced (for bounded memory), so by the time Flush runs the very
// last real chunk may already have been handed to an earlier Feed caller
// and can't be marked in place. The empty marker is the reliable signal
// instead of trying to tag whichever chunk happens to be last.
func (a *baseAdapter) Flush() ([]PcmChunk, error) {
	a.pw.Close()
	<-a.doneCh
	out := a.drain()
	out = append(out, PcmChunk{StartSample: a.nextSample, SampleRate: a.sampleRate, Channels: a.channels, IsLast: true})
	return out, a.checkLoopErr()
}

// Seek implements the Adapter contract generically: ask the shared format
// parser (the same instance the worker drove through Align, so its
// SeekPointIndex already reflects everything read so far) for the nearest
// codec-safe byte offset, then tear the pipe and decode goroutine down and
// restart them fresh so Feed can resume from that offset.
func (a *baseAdapter) Seek(t time.Duration) (format.SeekResult, int64, error) {
	if a.parser == nil {
		return format.SeekResult{}, 0, werr.ErrSeekUnsupported
	}
	res, err := a.parser.TimeToByte(t)
	if err != nil {
		return format.SeekResult{}, 0, err
	}

	a.pw.Close()
	a.pr.Close()
	<-a.doneCh

	pr, pw := io.Pipe()
	a.pr, a.pw = pr, pw
	a.doneCh = make(chan struct{})
	a.mu.Lock()
	a.queue = nil
	a.loopErr = nil
	a.mu.Unlock()
	a.skip = 0
	if a.sampleRate > 0 {
		a.nextSample = int64(res.ActualTime.Seconds() * float64(a.sampleRate))
	}
	go a.run(a.loop)

	return res, res.ByteOffset, nil
}

func (a *baseAdapter) Close() error {
	a.pw.Close()
	a.pr.Close()
	<-a.doneCh
	return nil
}

func (a *baseAdapter) checkLoopErr() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loopErr
}

// SampleRate blocks until the rate is known: adapters constructed with a
// fixed rate (FLAC/Vorbis/Opus) return immediately; MP3Adapter only learns it
// once the decode goroutine has parsed the stream's first frame.
func (a *baseAdapter) SampleRate() int {
	<-a.paramsReady
	return a.sampleRate
}
func (a *baseAdapter) Channels() int { return a.channels }
