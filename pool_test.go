package waveline

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/solstice-audio/waveline/internal/aggregate"
)

// buildWAVFile writes a minimal stereo 16-bit PCM WAV file with numFrames
// frames of a simple ramp, so amplitude output is easy to reason about.
func buildWAVFile(t *testing.T, numFrames int) string {
	t.Helper()
	const channels = 2
	const bitDepth = 16
	dataSize := numFrames * channels * (bitDepth / 8)

	buf := make([]byte, 44+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], channels)
	binary.LittleEndian.PutUint32(buf[24:28], 44100)
	binary.LittleEndian.PutUint32(buf[28:32], 44100*channels*(bitDepth/8))
	binary.LittleEndian.PutUint16(buf[32:34], channels*(bitDepth/8))
	binary.LittleEndian.PutUint16(buf[34:36], bitDepth)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i := 0; i < numFrames; i++ {
		sample := int16(i % 30000)
		off := 44 + i*channels*2
		binary.LittleEndian.PutUint16(buf[off:], uint16(sample))
		binary.LittleEndian.PutUint16(buf[off+2:], uint16(sample))
	}

	path := filepath.Join(t.TempDir(), "fixture.wav")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestPoolSubmitProducesWaveformForWAVFile(t *testing.T) {
	path := buildWAVFile(t, 44100) // one second of audio

	p := NewPool(2, 0)
	defer p.Close()

	handle := p.Submit(JobDescriptor{
		Path:       path,
		Resolution: 50,
		Algorithm:  aggregate.Peak,
	})

	summary, err := handle.Wait()
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if summary.Resolution() != 50 {
		t.Fatalf("Resolution() = %d, want 50", summary.Resolution())
	}
	if summary.SampleRate != 44100 || summary.ChannelCount != 2 {
		t.Fatalf("SampleRate/ChannelCount = %d/%d, want 44100/2", summary.SampleRate, summary.ChannelCount)
	}
	if summary.Duration <= 0 {
		t.Fatalf("Duration = %v, want > 0", summary.Duration)
	}
}

func TestPoolSubmitReportsFinalProgressExactlyOnce(t *testing.T) {
	path := buildWAVFile(t, 4410)

	p := NewPool(1, 0)
	defer p.Close()

	handle := p.Submit(JobDescriptor{Path: path, Resolution: 10, Algorithm: aggregate.RMS})

	finals := 0
	for ev := range handle.Progress() {
		if ev.Progress < 0 || ev.Progress > 1 {
			t.Fatalf("Progress = %v, want value in [0,1]", ev.Progress)
		}
		if ev.IsFinal {
			finals++
		}
	}
	if finals != 1 {
		t.Fatalf("saw %d final progress events, want exactly 1", finals)
	}

	if _, err := handle.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestPoolCancelStopsJobBeforeCompletion(t *testing.T) {
	// 15,000,000 frames of stereo 16-bit audio is ~60MB, large enough that the
	// default chunk sizing splits it into more chunks (6) than the progress
	// channel's buffer (4). Since this test never drains handle.Progress(),
	// the worker is guaranteed to block on a later progress publish until
	// either a reader appears or the job is cancelled, making cancellation
	// deterministic regardless of how fast decoding itself runs.
	path := buildWAVFile(t, 15_000_000)

	p := NewPool(1, 0)
	defer p.Close()

	handle := p.Submit(JobDescriptor{Path: path, Resolution: 1000, Algorithm: aggregate.Peak})
	p.Cancel(handle)
	// Cancelling twice must not panic.
	p.Cancel(handle)

	if _, err := handle.Wait(); err == nil {
		t.Fatalf("Wait() error = nil, want a cancellation error")
	}
}

func TestPoolSubmitMissingFileReportsError(t *testing.T) {
	p := NewPool(1, 0)
	defer p.Close()

	handle := p.Submit(JobDescriptor{Path: filepath.Join(t.TempDir(), "missing.wav"), Resolution: 10})
	if _, err := handle.Wait(); err == nil {
		t.Fatalf("Wait() error = nil, want a file-not-found error")
	}
}

func TestPoolStatsTracksCompletedJobs(t *testing.T) {
	path := buildWAVFile(t, 4410)

	p := NewPool(2, 0)
	defer p.Close()

	handle := p.Submit(JobDescriptor{Path: path, Resolution: 10, Algorithm: aggregate.RMS})
	if _, err := handle.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	// Stats is read from a background counter; give the worker's deferred
	// bookkeeping a moment to run after Wait unblocks.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if p.Stats().CompletedJobs == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	stats := p.Stats()
	if stats.CompletedJobs != 1 {
		t.Fatalf("CompletedJobs = %d, want 1", stats.CompletedJobs)
	}
	if stats.PeakBytesInUse <= 0 {
		t.Fatalf("PeakBytesInUse = %d, want > 0 after a completed job read the file", stats.PeakBytesInUse)
	}
	if stats.BytesInFlight != 0 {
		t.Fatalf("BytesInFlight = %d, want 0 once the job has completed and released its chunks", stats.BytesInFlight)
	}
}

func TestPoolTuneChangesConcurrencyForFutureJobs(t *testing.T) {
	p := NewPool(1, 0)
	defer p.Close()

	p.Tune(Config{MaxConcurrent: 4})

	path := buildWAVFile(t, 4410)
	handle := p.Submit(JobDescriptor{Path: path, Resolution: 5, Algorithm: aggregate.Peak})
	if _, err := handle.Wait(); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestJobHandleIDsAreUnique(t *testing.T) {
	path := buildWAVFile(t, 441)

	p := NewPool(2, 0)
	defer p.Close()

	h1 := p.Submit(JobDescriptor{Path: path, Resolution: 5, Algorithm: aggregate.Peak})
	h2 := p.Submit(JobDescriptor{Path: path, Resolution: 5, Algorithm: aggregate.Peak})
	if h1.ID() == h2.ID() {
		t.Fatalf("both jobs got ID %d, want distinct IDs", h1.ID())
	}
	h1.Wait()
	h2.Wait()
}
