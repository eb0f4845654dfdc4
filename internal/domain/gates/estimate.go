package gates

import (
	"context"
	"log/slog"
	"math"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/forPelevin/asrcurate/internal/ports"
	"github.com/forPelevin/asrcurate/internal/types"
)

// FeatureStepMillis is the analysis stride of the targeted acoustic front end.
const FeatureStepMillis = 20

// FeatureVectors estimates the acoustic-model input length of a clip.
func FeatureVectors(durationSec float64) int {
	return int(math.Floor(durationSec * 1000 / FeatureStepMillis))
}

// TextLength counts characters (code points). With nfc the text is composed
// first so precomposed and decomposed spellings count the same.
func TextLength(text string, nfc bool) int {
	if nfc {
		text = norm.NFC.String(text)
	}
	return utf8.RuneCountInString(text)
}

// CheckReadable decodes every sample and sets Readable. Decode errors are
// logged and never returned; only cancellation is.
func CheckReadable(ctx context.Context, dec ports.AudioDecoder, samples []*types.Sample, workers int, tr ports.Tracker, log *slog.Logger) error {
	return ForEach(ctx, workers, samples, tr, func(ctx context.Context, s *types.Sample) error {
		_, err := dec.Decode(ctx, s.Path)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.Readable = err == nil
		if err != nil {
			log.Warn("cannot read audio", slog.String("path", s.Path), slog.String("error", err.Error()))
		}
		return nil
	})
}

// MeasureDurations sets DurationSec and FeatureVectors. A failed duration read
// leaves the duration at zero, which the input/output ratio gate rejects.
func MeasureDurations(ctx context.Context, dec ports.AudioDecoder, samples []*types.Sample, workers int, tr ports.Tracker, log *slog.Logger) error {
	return ForEach(ctx, workers, samples, tr, func(ctx context.Context, s *types.Sample) error {
		sec, err := dec.Duration(ctx, s.Path)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil || math.IsNaN(sec) || sec < 0 {
			log.Warn("cannot read audio duration", slog.String("path", s.Path), slog.Any("error", err))
			sec = 0
		}
		s.DurationSec = sec
		s.FeatureVectors = FeatureVectors(sec)
		return nil
	})
}

// MeasureTranscripts sets TranscriptLen.
func MeasureTranscripts(samples []*types.Sample, nfc bool) {
	for _, s := range samples {
		s.TranscriptLen = TextLength(s.Transcript, nfc)
	}
}
