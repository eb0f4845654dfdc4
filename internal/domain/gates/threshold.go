package gates

import (
	"github.com/forPelevin/asrcurate/internal/types"
)

const (
	DefaultMaxDurationSec   = 30.0
	DefaultMinTranscriptLen = 10
	// MinInputOutputRatio is the CTC floor: the feature sequence must be
	// strictly longer than the label sequence.
	MinInputOutputRatio = 1.0
)

// MaxDuration rejects clips strictly longer than maxSec.
func MaxDuration(samples []*types.Sample, maxSec float64) (keep, rejected []*types.Sample) {
	return Partition(samples, func(s *types.Sample) bool {
		return s.DurationSec > maxSec
	})
}

// MinTranscript rejects transcripts shorter than minLen characters.
func MinTranscript(samples []*types.Sample, minLen int) (keep, rejected []*types.Sample) {
	return Partition(samples, func(s *types.Sample) bool {
		return s.TranscriptLen < minLen
	})
}

// InputOutputRatio records feature vectors per transcript character and
// rejects ratios at or below floor.
func InputOutputRatio(samples []*types.Sample, floor float64) (keep, rejected []*types.Sample) {
	for _, s := range samples {
		s.SetMetric(types.ColIORatio, ioRatio(s))
	}
	return Partition(samples, func(s *types.Sample) bool {
		r, _ := s.Metric(types.ColIORatio)
		return !(r > floor)
	})
}

func ioRatio(s *types.Sample) float64 {
	return float64(s.FeatureVectors) / float64(s.TranscriptLen)
}
