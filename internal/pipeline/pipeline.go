package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/forPelevin/asrcurate/internal/config"
	"github.com/forPelevin/asrcurate/internal/ledger"
	"github.com/forPelevin/asrcurate/internal/ports"
	"github.com/forPelevin/asrcurate/internal/ports/adapters/coqui"
	"github.com/forPelevin/asrcurate/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/asrcurate/internal/ports/adapters/s3upload"
	"github.com/forPelevin/asrcurate/internal/ports/adapters/wavdec"
	"github.com/forPelevin/asrcurate/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/asrcurate/internal/progress"
	"github.com/forPelevin/asrcurate/internal/report"
	"github.com/forPelevin/asrcurate/internal/types"
	"github.com/forPelevin/asrcurate/internal/usecase"
)

// ErrLocked is returned when another run holds the table's lock file.
var ErrLocked = errors.New("table is locked by another run")

type Params struct {
	Source string
	Config *config.Config
	Log    *slog.Logger
	// Out receives the rendered summary.
	Out io.Writer
	// ProgressOut is where bars are drawn when progress is enabled.
	ProgressOut *os.File
}

var newUploader = func(ctx context.Context, c config.Upload) (ports.Uploader, error) {
	return s3upload.New(ctx, s3upload.Config{
		Bucket:   c.S3Bucket,
		Region:   c.S3Region,
		Prefix:   c.S3Prefix,
		Endpoint: c.S3Endpoint,

		AccessKeyID:     c.S3AccessKeyID,
		SecretAccessKey: c.S3SecretAccessKey,
	})
}

func Run(ctx context.Context, p Params) (types.Summary, error) {
	cfg := p.Config
	log := p.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	out := p.Out
	if out == nil {
		out = io.Discard
	}

	src, err := filepath.Abs(p.Source)
	if err != nil {
		return types.Summary{}, fmt.Errorf("resolve table path: %w", err)
	}

	lockPath := strings.TrimSuffix(src, filepath.Ext(src)) + ".lock"
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return types.Summary{}, fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return types.Summary{}, fmt.Errorf("%w: %s", ErrLocked, lockPath)
	}
	defer func() {
		if err := os.Remove(lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to remove table lock", slog.String("lock", lockPath), slog.String("error", err.Error()))
		}
		if err := lock.Unlock(); err != nil {
			log.Warn("failed to release table lock", slog.String("lock", lockPath), slog.String("error", err.Error()))
		}
	}()

	// adapters
	ff := ffmpeg.New(cfg.Audio.FFmpeg, cfg.Audio.FFprobe)
	decoders := map[types.Codec]ports.AudioDecoder{
		types.CodecWAV:  wavdec.New(),
		types.CodecOpus: ff,
		types.CodecFLAC: ff,
		types.CodecMP3:  ff,
	}

	var led ports.Ledger
	if cfg.Ledger.Path != "" {
		store, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return types.Summary{}, err
		}
		defer store.Close()
		led = store
	}

	var up ports.Uploader
	if cfg.Upload.S3Bucket != "" {
		up, err = newUploader(ctx, cfg.Upload)
		if err != nil {
			return types.Summary{}, fmt.Errorf("init upload: %w", err)
		}
	}

	var prog ports.Progress
	if p.ProgressOut != nil && progress.Enabled(cfg.Output.Progress, p.ProgressOut) {
		prog = progress.New(p.ProgressOut, true)
	}

	runID := uuid.NewString()
	log = log.With(slog.String("run_id", runID))
	log.Info("starting run",
		slog.String("source", src),
		slog.Float64("num_std_devs", cfg.Filter.NumStdDevs),
		slog.Bool("asr", cfg.ASR.Enabled))

	uc := usecase.New(usecase.Deps{
		Decoders: decoders,
		ASR:      newASR(cfg.ASR, ff),
		Progress: prog,
		Log:      p.Log,
	})
	res, err := uc.Run(ctx, usecase.Input{
		Source:           src,
		RunID:            runID,
		NumStdDevs:       cfg.Filter.NumStdDevs,
		MaxDurationSec:   cfg.Filter.MaxDurationSec,
		MinTranscriptLen: cfg.Filter.MinTranscriptLen,
		MinIORatio:       cfg.Filter.MinIORatio,
		Workers:          cfg.Filter.Workers,
		ASRWorkers:       cfg.ASR.Workers,
		ASRQuarantine:    cfg.QuarantineASRFailures(),
		StrictCodec:      cfg.Audio.StrictCodec,
		NFC:              cfg.NFC(),
	})
	if err != nil {
		return types.Summary{}, err
	}
	fmt.Fprint(out, report.Summary(res.Summary))

	if led != nil {
		if err := led.RecordRun(ctx, res.Summary, cfg.Filter.NumStdDevs); err != nil {
			log.Warn("failed to record run in ledger", slog.String("error", err.Error()))
		} else {
			log.Info("run recorded", slog.String("ledger", cfg.Ledger.Path))
		}
	}

	if up != nil {
		for _, f := range res.Files {
			uri, err := up.Upload(ctx, runID, f)
			if err != nil {
				return res.Summary, fmt.Errorf("upload %s: %w", filepath.Base(f), err)
			}
			log.Info("uploaded", slog.String("file", f), slog.String("uri", uri))
		}
	}
	return res.Summary, nil
}

func newASR(c config.ASR, ff *ffmpeg.Adapter) ports.ASR {
	if !c.Enabled {
		return nil
	}
	switch c.Engine {
	case "coqui":
		return coqui.New(c.Bin, c.Model, c.Scorer, ff)
	default:
		return whispercpp.New(c.Bin, c.Model, ff)
	}
}

// ensure adapters implement ports
var _ ports.AudioDecoder = (*ffmpeg.Adapter)(nil)
var _ ports.AudioDecoder = (*wavdec.Adapter)(nil)
var _ ports.ASR = (*whispercpp.Adapter)(nil)
var _ ports.ASR = (*coqui.Adapter)(nil)
var _ ports.Ledger = (*ledger.Store)(nil)
var _ ports.Uploader = (*s3upload.Adapter)(nil)
