package format

import "testing"

func TestDefaultChunkSizingLargeFile(t *testing.T) {
	rec := defaultChunkSizing(200<<20, "test")
	if rec.Recommended != tenMB {
		t.Fatalf("Recommended = %d, want %d", rec.Recommended, tenMB)
	}
}

func TestDefaultChunkSizingSmallFile(t *testing.T) {
	rec := defaultChunkSizing(2<<20, "test")
	if rec.Recommended != oneMB {
		t.Fatalf("Recommended = %d, want %d (clamped to minimum)", rec.Recommended, oneMB)
	}
}

func TestDefaultChunkSizingMidFile(t *testing.T) {
	rec := defaultChunkSizing(20<<20, "test")
	want := 5 << 20
	if rec.Recommended != want {
		t.Fatalf("Recommended = %d, want %d", rec.Recommended, want)
	}
}

func TestDefaultChunkSizingUnknownSize(t *testing.T) {
	rec := defaultChunkSizing(-1, "test")
	if rec.Recommended != tenMB {
		t.Fatalf("Recommended = %d, want %d for unknown size", rec.Recommended, tenMB)
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(5, 10, 20); got != 10 {
		t.Fatalf("Clamp(5,10,20) = %d, want 10", got)
	}
	if got := Clamp(25, 10, 20); got != 20 {
		t.Fatalf("Clamp(25,10,20) = %d, want 20", got)
	}
	if got := Clamp(15, 10, 20); got != 15 {
		t.Fatalf("Clamp(15,10,20) = %d, want 15", got)
	}
}
