package types

import "math"

// Reason labels a quarantine file. The value doubles as the file suffix.
type Reason string

const (
	ReasonUnresolved    Reason = "UNRESOLVED"
	ReasonUnreadable    Reason = "UNREADABLE"
	ReasonTooLong       Reason = "TOO_LONG"
	ReasonTooShortTrans Reason = "TOO_SHORT_TRANS"
	ReasonOffending     Reason = "OFFENDING_DATA"
	ReasonNonNormal     Reason = "NON_NORMAL"
	ReasonASRFailed     Reason = "ASR_FAILED"
	ReasonNonNormalText Reason = "NON_NORMAL_TEXT"
)

// BestSuffix names the cleaned output table.
const BestSuffix = "BEST"

// Codec is the audio family detected for a whole run.
type Codec string

const (
	CodecWAV  Codec = "wav"
	CodecOpus Codec = "opus"
	CodecFLAC Codec = "flac"
	CodecMP3  Codec = "mp3"
)

// Derived column names, in the order the pipeline appends them.
const (
	ColAbsPath        = "abspath"
	ColIsReadable     = "is_readable"
	ColAudioLen       = "audio_len"
	ColTranscriptLen  = "transcript_len"
	ColNumFeatVectors = "num_feat_vectors"
	ColIORatio        = "input_output_ratio"
	ColLensRatio      = "lens_ratio"
	ColLensRatioDev   = "lens_ratio_deviation"
	ColSTTTranscript  = "stt_transcript"
	ColSTTLen         = "stt_len"
	ColTextRatio      = "text_ratio"
	ColTextRatioDev   = "text_ratio_deviation"
	ColASRError       = "asr_error"
)

// Required input columns.
const (
	ColRawPath       = "wav_filename"
	ColReferenceText = "transcript"
)

const SecondsPerHour = 3600.0

// Sample is one (audio, transcript) row under evaluation.
type Sample struct {
	// Row is the zero-based data row index in the source table.
	Row    int
	Fields []string

	RawPath    string
	Transcript string

	Path           string
	Readable       bool
	DurationSec    float64
	FeatureVectors int
	TranscriptLen  int

	Hypothesis    string
	HypothesisLen int
	ASRError      string

	// Metrics holds ratio and deviation columns keyed by column name.
	Metrics map[string]float64
}

func (s *Sample) SetMetric(col string, v float64) {
	if s.Metrics == nil {
		s.Metrics = make(map[string]float64, 4)
	}
	s.Metrics[col] = v
}

func (s *Sample) Metric(col string) (float64, bool) {
	v, ok := s.Metrics[col]
	return v, ok
}

// Hours sums DurationSec over samples and converts to hours.
func Hours(samples []*Sample) float64 {
	var sec float64
	for _, s := range samples {
		sec += s.DurationSec
	}
	return sec / SecondsPerHour
}

// GateResult is the accounting record of one gate invocation.
type GateResult struct {
	Gate     string
	Reason   Reason
	Input    int
	Rejected int
	Hours    float64
	File     string
}

// Summary reconciles the run: Input = Unresolved + sum(Gates[i].Rejected) + Final.
type Summary struct {
	RunID      string
	Source     string
	Input      int
	InputHours float64
	Gates      []GateResult
	Final      int
	FinalHours float64
	BestFile   string
}

func (s Summary) RemovedRows() int {
	return s.Input - s.Final
}

func (s Summary) RemovedHours() float64 {
	return math.Max(0, s.InputHours-s.FinalHours)
}

func (s Summary) PercentRowsRemoved() float64 {
	if s.Input == 0 {
		return 0
	}
	return float64(s.RemovedRows()) / float64(s.Input) * 100
}

func (s Summary) PercentHoursRemoved() float64 {
	if s.InputHours == 0 {
		return 0
	}
	return s.RemovedHours() / s.InputHours * 100
}

// Reconciles reports whether every input row is accounted for exactly once.
func (s Summary) Reconciles() bool {
	n := s.Final
	for _, g := range s.Gates {
		n += g.Rejected
	}
	return n == s.Input
}
