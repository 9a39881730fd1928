package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/solstice-audio/waveline"
	"github.com/solstice-audio/waveline/internal/aggregate"
)

func main() {
	var (
		resolution int
		algorithm  string
		curve      string
		normalize  string
		smoothing  int
		deadline   time.Duration
	)

	flag.IntVar(&resolution, "resolution", 800, "number of amplitude points to produce")
	flag.StringVar(&algorithm, "algorithm", "rms", "amplitude algorithm: rms, peak, average, median")
	flag.StringVar(&curve, "curve", "linear", "scaling curve: linear, log, exp, sqrt")
	flag.StringVar(&normalize, "normalize", "peak", "normalization: none, peak, rms, minmax")
	flag.IntVar(&smoothing, "smoothing", 1, "moving-average smoothing window (1 disables)")
	flag.DurationVar(&deadline, "deadline", 0, "optional wall-clock deadline, 0 disables")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: waveline <audio-file>\n")
		os.Exit(1)
	}
	path := flag.Arg(0)

	algo, err := parseAlgorithm(algorithm)
	if err != nil {
		exitf("%v", err)
	}
	sc, err := parseCurve(curve)
	if err != nil {
		exitf("%v", err)
	}
	norm, err := parseNormalization(normalize)
	if err != nil {
		exitf("%v", err)
	}

	pool := waveline.NewPool(0, 0)
	defer pool.Close()

	handle := pool.Submit(waveline.JobDescriptor{
		Path:            path,
		Resolution:      resolution,
		Algorithm:       algo,
		Normalization:   norm,
		ScalingCurve:    sc,
		SmoothingWindow: smoothing,
		Deadline:        deadline,
	})

	go func() {
		for ev := range handle.Progress() {
			if !ev.IsFinal {
				fmt.Fprintf(os.Stderr, "\033[2K\r  %s: %.0f%%", ev.Status, ev.Progress*100)
			}
		}
	}()

	summary, err := handle.Wait()
	fmt.Fprintf(os.Stderr, "\033[2K\r")
	if err != nil {
		exitf("%v", err)
	}

	out, err := json.Marshal(summary)
	if err != nil {
		exitf("encoding summary: %v", err)
	}
	fmt.Println(string(out))
}

func parseAlgorithm(s string) (aggregate.Algorithm, error) {
	switch s {
	case "rms":
		return aggregate.RMS, nil
	case "peak":
		return aggregate.Peak, nil
	case "average":
		return aggregate.Average, nil
	case "median":
		return aggregate.Median, nil
	default:
		return 0, fmt.Errorf("unknown -algorithm %q", s)
	}
}

func parseCurve(s string) (aggregate.ScalingCurve, error) {
	switch s {
	case "linear":
		return aggregate.Linear, nil
	case "log":
		return aggregate.Log, nil
	case "exp":
		return aggregate.Exp, nil
	case "sqrt":
		return aggregate.Sqrt, nil
	default:
		return 0, fmt.Errorf("unknown -curve %q", s)
	}
}

func parseNormalization(s string) (aggregate.Normalization, error) {
	switch s {
	case "none":
		return aggregate.NoNormalization, nil
	case "peak":
		return aggregate.NormalizePeak, nil
	case "rms":
		return aggregate.NormalizeRMS, nil
	case "minmax":
		return aggregate.NormalizeMinMax, nil
	default:
		return 0, fmt.Errorf("unknown -normalize %q", s)
	}
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
