package aggregate

import (
	"fmt"
	"math"
)

// Normalization rescales the whole amplitude sequence once the full set of
// points is known.
type Normalization int

const (
	NoNormalization Normalization = iota
	NormalizePeak
	NormalizeRMS
	NormalizeMinMax
)

func (n Normalization) String() string {
	switch n {
	case NoNormalization:
		return "none"
	case NormalizePeak:
		return "peak"
	case NormalizeRMS:
		return "rms"
	case NormalizeMinMax:
		return "minmax"
	default:
		return fmt.Sprintf("normalization(%d)", int(n))
	}
}

// normalize rescales points in place per n. A sequence that is already flat
// at the target (e.g. all-zero input) is left untouched rather than divided
// by zero.
func normalize(points []float32, n Normalization) {
	if len(points) == 0 {
		return
	}
	switch n {
	case NormalizePeak:
		var max float32
		for _, v := range points {
			if v > max {
				max = v
			}
		}
		if max == 0 {
			return
		}
		for i, v := range points {
			points[i] = clamp01(v / max)
		}
	case NormalizeRMS:
		var sumSq float64
		for _, v := range points {
			sumSq += float64(v) * float64(v)
		}
		rms := math.Sqrt(sumSq / float64(len(points)))
		if rms == 0 {
			return
		}
		for i, v := range points {
			points[i] = clamp01(float32(float64(v) / rms))
		}
	case NormalizeMinMax:
		min, max := points[0], points[0]
		for _, v := range points {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		if max == min {
			return
		}
		span := max - min
		for i, v := range points {
			points[i] = clamp01((v - min) / span)
		}
	}
}
