package gates

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/forPelevin/asrcurate/internal/ports"
	"github.com/forPelevin/asrcurate/internal/types"
)

// CrossCheckOptions tunes the ASR cross-check.
type CrossCheckOptions struct {
	Workers int
	// QuarantineFailures drops rows whose transcription failed instead of
	// aborting the run.
	QuarantineFailures bool
	NFC                bool
}

// Transcribe fills Hypothesis and HypothesisLen for every sample. With
// QuarantineFailures unset the first model error is returned; otherwise
// failing rows are returned separately.
func Transcribe(ctx context.Context, asr ports.ASR, samples []*types.Sample, opts CrossCheckOptions, tr ports.Tracker, log *slog.Logger) (ok, failed []*types.Sample, err error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	err = ForEach(ctx, workers, samples, tr, func(ctx context.Context, s *types.Sample) error {
		hyp, err := asr.Transcribe(ctx, s.Path)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !opts.QuarantineFailures {
				return fmt.Errorf("transcribe row %d (%s): %w", s.Row+1, s.Path, err)
			}
			log.Warn("transcription failed", slog.String("path", s.Path), slog.String("error", err.Error()))
			s.ASRError = err.Error()
			return nil
		}
		s.Hypothesis = strings.TrimSpace(hyp)
		s.HypothesisLen = TextLength(s.Hypothesis, opts.NFC)
		log.Debug("transcribed", slog.String("path", s.Path), slog.Int("stt_len", s.HypothesisLen))
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	ok, failed = Partition(samples, func(s *types.Sample) bool { return s.ASRError != "" })
	return ok, failed, nil
}
