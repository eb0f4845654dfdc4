package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/forPelevin/asrcurate/internal/domain/audiotype"
	"github.com/forPelevin/asrcurate/internal/domain/gates"
	"github.com/forPelevin/asrcurate/internal/domain/paths"
	"github.com/forPelevin/asrcurate/internal/ports"
	"github.com/forPelevin/asrcurate/internal/table"
	"github.com/forPelevin/asrcurate/internal/types"
)

// ErrNoDecoder is returned when no decoder is wired for the detected codec.
var ErrNoDecoder = errors.New("no decoder for audio type")

type Deps struct {
	Decoders map[types.Codec]ports.AudioDecoder
	// ASR is nil when the cross-check is disabled.
	ASR      ports.ASR
	Progress ports.Progress
	Log      *slog.Logger
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase {
	if d.Log == nil {
		d.Log = slog.New(slog.DiscardHandler)
	}
	return Usecase{d: d}
}

type Input struct {
	Source           string
	RunID            string
	NumStdDevs       float64
	MaxDurationSec   float64
	MinTranscriptLen int
	MinIORatio       float64
	Workers          int
	ASRWorkers       int
	// ASRQuarantine sends rows the model fails on to ASR_FAILED instead of
	// aborting.
	ASRQuarantine bool
	StrictCodec   bool
	NFC           bool
}

type Result struct {
	Summary   types.Summary
	Survivors []*types.Sample
	// Files lists every table written by the run, BEST last.
	Files []string
}

// pending is a quarantine set held back until Emit so an aborted run writes
// nothing.
type pending struct {
	reason  types.Reason
	layout  table.Layout
	samples []*types.Sample
}

type run struct {
	u     Usecase
	in    Input
	tb    *table.Table
	log   *slog.Logger
	sum   types.Summary
	queue []pending
}

// Run executes Load → ResolvePaths → DetectType → Readability → Duration →
// TranscriptLen → ThresholdDuration → ThresholdTranscript → ThresholdRatio →
// OutlierLength → ASRCrossCheck → OutlierText → Emit.
func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	log := u.d.Log.With(slog.String("run_id", in.RunID))

	tb, err := table.Read(in.Source)
	if err != nil {
		return Result{}, err
	}
	r := &run{u: u, in: in, tb: tb, log: log}
	r.sum = types.Summary{RunID: in.RunID, Source: tb.Source, Input: len(tb.Samples)}
	log.Info("loaded table", slog.String("source", tb.Source), slog.Int("rows", len(tb.Samples)))

	samples := r.resolvePaths(tb.Samples)

	// detected from the first input row so a table with no resolvable rows
	// still reaches Emit
	codec, err := audiotype.Detect(tb.Samples)
	if err != nil {
		return Result{}, err
	}
	if in.StrictCodec {
		if err := audiotype.Validate(samples, codec); err != nil {
			return Result{}, err
		}
	}
	dec, ok := u.d.Decoders[codec]
	if !ok || dec == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrNoDecoder, codec)
	}
	log.Info("detected audio type", slog.String("codec", string(codec)))

	samples, err = r.readability(ctx, dec, samples)
	if err != nil {
		return Result{}, err
	}

	tr := r.track("duration", len(samples))
	err = gates.MeasureDurations(ctx, dec, samples, in.Workers, tr, log)
	tr.Done()
	if err != nil {
		return Result{}, err
	}
	tb.AddColumn(types.ColAudioLen)
	r.sum.InputHours = types.Hours(samples)

	gates.MeasureTranscripts(samples, in.NFC)
	tb.AddColumn(types.ColTranscriptLen)
	tb.AddColumn(types.ColNumFeatVectors)

	samples = r.gate("max_duration", types.ReasonTooLong, samples, func(s []*types.Sample) ([]*types.Sample, []*types.Sample) {
		return gates.MaxDuration(s, in.MaxDurationSec)
	})
	samples = r.gate("min_transcript", types.ReasonTooShortTrans, samples, func(s []*types.Sample) ([]*types.Sample, []*types.Sample) {
		return gates.MinTranscript(s, in.MinTranscriptLen)
	})
	tb.AddColumn(types.ColIORatio)
	samples = r.gate("io_ratio", types.ReasonOffending, samples, func(s []*types.Sample) ([]*types.Sample, []*types.Sample) {
		return gates.InputOutputRatio(s, in.MinIORatio)
	})

	tb.AddColumn(types.ColLensRatio)
	tb.AddColumn(types.ColLensRatioDev)
	samples = r.outlier("length_outlier", types.ReasonNonNormal, samples, gates.Outlier{
		Ratio:        gates.LengthRatio,
		RatioColumn:  types.ColLensRatio,
		DeviationCol: types.ColLensRatioDev,
		K:            in.NumStdDevs,
	})

	if u.d.ASR != nil {
		samples, err = r.crossCheck(ctx, samples)
		if err != nil {
			return Result{}, err
		}
	}

	return r.emit(samples)
}

func (r *run) track(stage string, total int) ports.Tracker {
	if r.u.d.Progress == nil {
		return nopTracker{}
	}
	return r.u.d.Progress.Start(stage, total)
}

func (r *run) resolvePaths(samples []*types.Sample) []*types.Sample {
	dir := r.tb.Dir()
	for _, s := range samples {
		p, err := paths.Resolve(s.RawPath, dir)
		if err != nil {
			r.log.Error("unresolved audio path",
				slog.Int("row", s.Row+1),
				slog.String("path", s.RawPath),
				slog.String("error", err.Error()))
			continue
		}
		s.Path = p
	}
	r.tb.AddColumn(types.ColAbsPath)
	return r.gate("resolve_paths", types.ReasonUnresolved, samples, func(s []*types.Sample) ([]*types.Sample, []*types.Sample) {
		return gates.Partition(s, func(s *types.Sample) bool { return s.Path == "" })
	})
}

func (r *run) readability(ctx context.Context, dec ports.AudioDecoder, samples []*types.Sample) ([]*types.Sample, error) {
	tr := r.track("readability", len(samples))
	err := gates.CheckReadable(ctx, dec, samples, r.in.Workers, tr, r.log)
	tr.Done()
	if err != nil {
		return nil, err
	}
	r.tb.AddColumn(types.ColIsReadable)
	return r.gate("readability", types.ReasonUnreadable, samples, func(s []*types.Sample) ([]*types.Sample, []*types.Sample) {
		return gates.Partition(s, func(s *types.Sample) bool { return !s.Readable })
	}), nil
}

func (r *run) crossCheck(ctx context.Context, samples []*types.Sample) ([]*types.Sample, error) {
	tr := r.track("asr", len(samples))
	ok, failed, err := gates.Transcribe(ctx, r.u.d.ASR, samples, gates.CrossCheckOptions{
		Workers:            r.in.ASRWorkers,
		QuarantineFailures: r.in.ASRQuarantine,
		NFC:                r.in.NFC,
	}, tr, r.log)
	tr.Done()
	if err != nil {
		return nil, err
	}
	r.tb.AddColumn(types.ColSTTTranscript)
	r.tb.AddColumn(types.ColSTTLen)
	if len(failed) > 0 {
		r.tb.AddColumn(types.ColASRError)
	}
	r.record("asr", types.ReasonASRFailed, len(samples), failed)

	r.tb.AddColumn(types.ColTextRatio)
	r.tb.AddColumn(types.ColTextRatioDev)
	return r.outlier("text_outlier", types.ReasonNonNormalText, ok, gates.Outlier{
		Ratio:        gates.TextRatio,
		RatioColumn:  types.ColTextRatio,
		DeviationCol: types.ColTextRatioDev,
		K:            r.in.NumStdDevs,
	}), nil
}

func (r *run) gate(name string, reason types.Reason, samples []*types.Sample, fn func([]*types.Sample) ([]*types.Sample, []*types.Sample)) []*types.Sample {
	keep, rejected := fn(samples)
	r.record(name, reason, len(samples), rejected)
	return keep
}

func (r *run) outlier(name string, reason types.Reason, samples []*types.Sample, o gates.Outlier) []*types.Sample {
	keep, rejected, band := o.Apply(samples)
	r.log.Debug("outlier band",
		slog.String("gate", name),
		slog.Float64("mean", band.Mean),
		slog.Float64("stddev", band.StdDev),
		slog.Float64("k", band.K))
	r.record(name, reason, len(samples), rejected)
	return keep
}

func (r *run) record(name string, reason types.Reason, input int, rejected []*types.Sample) {
	res := types.GateResult{
		Gate:     name,
		Reason:   reason,
		Input:    input,
		Rejected: len(rejected),
		Hours:    types.Hours(rejected),
	}
	if len(rejected) > 0 {
		res.File = r.tb.SidePath(string(reason))
		r.queue = append(r.queue, pending{reason: reason, layout: r.tb.Layout(), samples: rejected})
	}
	r.sum.Gates = append(r.sum.Gates, res)
	r.log.Info("gate done",
		slog.String("gate", name),
		slog.Int("input", input),
		slog.Int("rejected", res.Rejected),
		slog.Float64("hours", res.Hours),
		slog.String("file", res.File))
}

func (r *run) emit(survivors []*types.Sample) (Result, error) {
	written := make(map[types.Reason]bool, len(r.queue))
	files := make([]string, 0, len(r.queue)+1)
	for _, p := range r.queue {
		path := r.tb.SidePath(string(p.reason))
		if err := r.tb.WriteFile(path, p.layout, p.samples); err != nil {
			return Result{}, err
		}
		written[p.reason] = true
		files = append(files, path)
	}
	for _, reason := range allReasons {
		if written[reason] {
			continue
		}
		stale := r.tb.SidePath(string(reason))
		if err := os.Remove(stale); err == nil {
			r.log.Info("removed stale quarantine file", slog.String("file", stale))
		} else if !errors.Is(err, os.ErrNotExist) {
			return Result{}, fmt.Errorf("remove stale %s: %w", stale, err)
		}
	}

	best := r.tb.SidePath(types.BestSuffix)
	if err := r.tb.WriteFile(best, r.tb.Layout(), survivors); err != nil {
		return Result{}, err
	}
	files = append(files, best)

	r.sum.Final = len(survivors)
	r.sum.FinalHours = types.Hours(survivors)
	r.sum.BestFile = best
	if !r.sum.Reconciles() {
		r.log.Error("row accounting does not reconcile",
			slog.Int("input", r.sum.Input),
			slog.Int("final", r.sum.Final))
	}
	r.log.Info("run complete",
		slog.Int("final", r.sum.Final),
		slog.Float64("final_hours", r.sum.FinalHours),
		slog.String("file", best))
	return Result{Summary: r.sum, Survivors: survivors, Files: files}, nil
}

var allReasons = []types.Reason{
	types.ReasonUnresolved,
	types.ReasonUnreadable,
	types.ReasonTooLong,
	types.ReasonTooShortTrans,
	types.ReasonOffending,
	types.ReasonNonNormal,
	types.ReasonASRFailed,
	types.ReasonNonNormalText,
}

type nopTracker struct{}

func (nopTracker) Increment() {}
func (nopTracker) Done()      {}
