package aggregate

import "testing"

func TestSmoothWindowOneIsNoOp(t *testing.T) {
	points := []float32{0.1, 0.9, 0.2}
	got := smooth(points, 1)
	for i := range points {
		if got[i] != points[i] {
			t.Fatalf("smooth(window=1)[%d] = %v, want %v", i, got[i], points[i])
		}
	}
}

func TestSmoothFlattensASpike(t *testing.T) {
	points := []float32{0, 0, 1, 0, 0}
	got := smooth(points, 3)
	if got[2] >= 1 {
		t.Fatalf("got[2] = %v, want less than 1 (the spike should be averaged with its neighbors)", got[2])
	}
	if !approxEqual(got[2], 1.0/3, 1e-6) {
		t.Fatalf("got[2] = %v, want 1/3", got[2])
	}
}

func TestSmoothEdgesUseShorterWindow(t *testing.T) {
	points := []float32{1, 0, 0, 0}
	got := smooth(points, 3)
	if !approxEqual(got[0], 0.5, 1e-6) {
		t.Fatalf("got[0] = %v, want 0.5 (edge point averages over a truncated window)", got[0])
	}
}

func TestSmoothPreservesLength(t *testing.T) {
	points := make([]float32, 37)
	got := smooth(points, 5)
	if len(got) != len(points) {
		t.Fatalf("len(smooth(...)) = %d, want %d", len(got), len(points))
	}
}
