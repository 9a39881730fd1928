package aggregate

// smooth applies a centered moving average to points, averaging window/2
// points on each side (so an even window spans window+1 points), clipped at
// the ends, and returns a new slice. For window <= 1 or empty input it
// returns points itself unchanged. It runs only on the finished sequence,
// never on the live buffer Accept keeps building.
func smooth(points []float32, window int) []float32 {
	if window <= 1 || len(points) == 0 {
		return points
	}
	out := make([]float32, len(points))
	half := window / 2
	for i := range points {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi >= len(points) {
			hi = len(points) - 1
		}
		var sum float32
		for j := lo; j <= hi; j++ {
			sum += points[j]
		}
		out[i] = sum / float32(hi-lo+1)
	}
	return out
}
