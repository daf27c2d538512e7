package aggregator

import (
	"fmt"
	"sort"
)

// Scorer is a pluggable consensus statistic. The default "iqr_median"
// scorer always ships built in; an operator can register an alternative
// (e.g. a trimmed mean) under config key consensus.scorer without touching
// the pipeline — adapted from the teacher's contrib plugin contract.
//
// Score must be goroutine-safe and must not block on I/O.
type Scorer interface {
	Name() string
	Score(filtered []float64, weights []float64) (value float64, err error)
}

var registry = map[string]Scorer{}

// RegisterScorer adds s to the registry, keyed by s.Name(). Re-registering
// the same name replaces the previous scorer.
func RegisterScorer(s Scorer) {
	registry[s.Name()] = s
}

// LookupScorer returns the registered scorer for name, or ok=false.
func LookupScorer(name string) (Scorer, bool) {
	s, ok := registry[name]
	return s, ok
}

func init() {
	RegisterScorer(iqrMedianScorer{})
	RegisterScorer(trimmedMeanScorer{trimFraction: 0.1})
}

// iqrMedianScorer is the spec-default scorer: weighted median when weights
// are present, plain median otherwise.
type iqrMedianScorer struct{}

func (iqrMedianScorer) Name() string { return "iqr_median" }

func (iqrMedianScorer) Score(filtered, weights []float64) (float64, error) {
	if len(filtered) == 0 {
		return 0, fmt.Errorf("iqr_median: empty input")
	}
	if len(weights) == len(filtered) {
		return weightedMedian(filtered, weights), nil
	}
	return median(filtered), nil
}

// trimmedMeanScorer drops the top and bottom trimFraction of sorted values
// before averaging — an alternative robust estimator an operator can select
// in place of the median.
type trimmedMeanScorer struct {
	trimFraction float64
}

func (trimmedMeanScorer) Name() string { return "trimmed_mean" }

func (t trimmedMeanScorer) Score(filtered, _ []float64) (float64, error) {
	if len(filtered) == 0 {
		return 0, fmt.Errorf("trimmed_mean: empty input")
	}
	sorted := append([]float64(nil), filtered...)
	sort.Float64s(sorted)
	trim := int(float64(len(sorted)) * t.trimFraction)
	if 2*trim >= len(sorted) {
		return mean(sorted), nil
	}
	return mean(sorted[trim : len(sorted)-trim]), nil
}
