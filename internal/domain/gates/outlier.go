package gates

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/forPelevin/asrcurate/internal/types"
)

// Ratio is a per-sample measurement compared against the corpus distribution.
type Ratio func(*types.Sample) float64

// LengthRatio is audio seconds per transcript character.
func LengthRatio(s *types.Sample) float64 {
	return s.DurationSec / float64(s.TranscriptLen)
}

// TextRatio is reference characters per hypothesis character.
func TextRatio(s *types.Sample) float64 {
	return float64(s.TranscriptLen) / float64(s.HypothesisLen)
}

// Band is the accepted interval mean ± k·stddev.
type Band struct {
	Mean   float64
	StdDev float64
	K      float64
}

// Deviation is the signed margin by which x exceeds the band. Positive means
// outlier.
func (b Band) Deviation(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return math.Inf(1)
	}
	return math.Abs(x-b.Mean) - b.K*b.StdDev
}

// Outlier rejects samples whose ratio lies more than K population standard
// deviations from the mean of the samples it is given.
type Outlier struct {
	Ratio        Ratio
	RatioColumn  string
	DeviationCol string
	K            float64
}

// Apply computes the band over samples only, records ratio and deviation on
// each sample, and partitions. Samples with a non-finite ratio do not enter
// the band and are rejected.
func (o Outlier) Apply(samples []*types.Sample) (keep, rejected []*types.Sample, band Band) {
	ratios := make([]float64, len(samples))
	finite := make([]float64, 0, len(samples))
	for i, s := range samples {
		r := o.Ratio(s)
		ratios[i] = r
		if !math.IsNaN(r) && !math.IsInf(r, 0) {
			finite = append(finite, r)
		}
	}
	band = Fit(finite, o.K)

	for i, s := range samples {
		s.SetMetric(o.RatioColumn, ratios[i])
		s.SetMetric(o.DeviationCol, band.Deviation(ratios[i]))
	}
	keep, rejected = Partition(samples, func(s *types.Sample) bool {
		d, _ := s.Metric(o.DeviationCol)
		return d > 0
	})
	return keep, rejected, band
}

// Fit returns the population mean and standard deviation of xs. A constant
// series yields its value exactly with zero spread.
func Fit(xs []float64, k float64) Band {
	if len(xs) == 0 {
		return Band{K: k}
	}
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	if lo == hi {
		return Band{Mean: lo, K: k}
	}
	mean, variance := stat.PopMeanVariance(xs, nil)
	return Band{Mean: mean, StdDev: math.Sqrt(variance), K: k}
}
