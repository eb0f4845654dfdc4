package ports

import (
	"context"

	"github.com/forPelevin/asrcurate/internal/types"
)

// Audio is decoded PCM, mono-mixed when the decoder can.
type Audio struct {
	Samples    []float32
	SampleRate int
}

// AudioDecoder is the codec-specific reader. Duration may be cheaper than a
// full Decode.
type AudioDecoder interface {
	Decode(ctx context.Context, path string) (Audio, error)
	Duration(ctx context.Context, path string) (float64, error)
}

// ASR turns one audio file into hypothesis text. Implementations need not be
// safe for concurrent use.
type ASR interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Ledger records run accounting.
type Ledger interface {
	RecordRun(ctx context.Context, sum types.Summary, numStdDevs float64) error
}

// Uploader mirrors run artifacts to remote storage.
type Uploader interface {
	Upload(ctx context.Context, runID, localPath string) (string, error)
}

// Progress reports per-gate work.
type Progress interface {
	Start(stage string, total int) Tracker
}

type Tracker interface {
	Increment()
	Done()
}
