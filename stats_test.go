package waveline

import "testing"

func TestPoolCountersSnapshotReflectsConcurrentUpdates(t *testing.T) {
	var c poolCounters
	c.jobQueued()
	c.jobQueued()
	c.workerStarted()
	c.jobDequeued()
	c.jobCompleted()

	active, queued, completed, failed, _, _ := c.snapshot()
	if active != 1 {
		t.Fatalf("active = %d, want 1", active)
	}
	if queued != 1 {
		t.Fatalf("queued = %d, want 1 (one of two queued jobs dequeued)", queued)
	}
	if completed != 1 {
		t.Fatalf("completed = %d, want 1", completed)
	}
	if failed != 0 {
		t.Fatalf("failed = %d, want 0", failed)
	}

	c.workerStopped()
	c.jobFailed()
	active, _, _, failed, _, _ = c.snapshot()
	if active != 0 {
		t.Fatalf("active = %d, want 0 after workerStopped", active)
	}
	if failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
}

func TestPoolCountersTracksBytesInFlightAndPeak(t *testing.T) {
	var c poolCounters
	c.bytesReserved(100)
	c.bytesReserved(50)
	if _, _, _, _, inFlight, peak := c.snapshot(); inFlight != 150 || peak != 150 {
		t.Fatalf("bytesInFlight/peak = %d/%d, want 150/150", inFlight, peak)
	}

	c.bytesReleased(50)
	if _, _, _, _, inFlight, peak := c.snapshot(); inFlight != 100 || peak != 150 {
		t.Fatalf("bytesInFlight/peak = %d/%d, want 100/150 (peak holds the high-water mark)", inFlight, peak)
	}
}
