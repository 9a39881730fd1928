package aggregate

import "testing"

func TestScalingCurveEndpointsAreFixed(t *testing.T) {
	for _, c := range []ScalingCurve{Linear, Log, Exp, Sqrt} {
		if got := c.apply(0); !approxEqual(got, 0, 1e-3) {
			t.Fatalf("%s.apply(0) = %v, want 0", c, got)
		}
		if got := c.apply(1); !approxEqual(got, 1, 1e-3) {
			t.Fatalf("%s.apply(1) = %v, want 1", c, got)
		}
	}
}

func TestScalingCurveLinearIsIdentity(t *testing.T) {
	if got := Linear.apply(0.37); !approxEqual(got, 0.37, 1e-6) {
		t.Fatalf("Linear.apply(0.37) = %v, want 0.37", got)
	}
}

func TestScalingCurveSqrtBoostsQuietSignal(t *testing.T) {
	got := Sqrt.apply(0.25)
	if !approxEqual(got, 0.5, 1e-3) {
		t.Fatalf("Sqrt.apply(0.25) = %v, want 0.5", got)
	}
}

func TestScalingCurveLogBoostsQuietSignalMoreThanLoud(t *testing.T) {
	low := Log.apply(0.1)
	high := Log.apply(0.9)
	lowRatio := low / 0.1
	highRatio := high / 0.9
	if !(lowRatio > highRatio) {
		t.Fatalf("Log.apply(0.1)/0.1=%v, Log.apply(0.9)/0.9=%v, want the quiet sample boosted by a larger ratio", lowRatio, highRatio)
	}
}

func TestScalingCurveExpCompressesQuietSignal(t *testing.T) {
	low := Exp.apply(0.1)
	if low >= 0.1 {
		t.Fatalf("Exp.apply(0.1) = %v, want less than 0.1 (exp curve compresses the low end)", low)
	}
}
