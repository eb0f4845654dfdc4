// Package config loads run configuration.
//
// Values are layered: built-in defaults, an optional TOML file, ASRCURATE_*
// environment variables, and finally command-line flags applied by the caller.
// Validate must be called once every layer is applied.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/sethvargo/go-envconfig"

	"github.com/forPelevin/asrcurate/internal/domain/gates"
)

// EnvPrefix namespaces environment overrides.
const EnvPrefix = "ASRCURATE_"

var (
	// ErrModelRequired is returned when the ASR cross-check is enabled without a model.
	ErrModelRequired = errors.New("config: asr model path is required (or disable the ASR cross-check)")
	// ErrScorerRequired is returned when the coqui engine has no scorer.
	ErrScorerRequired = errors.New("config: asr scorer path is required for the coqui engine")
)

// Filter holds the gate thresholds.
type Filter struct {
	NumStdDevs       float64 `toml:"num_std_devs" env:"NUM_STD_DEVS, overwrite" validate:"gt=0"`
	MaxDurationSec   float64 `toml:"max_duration_sec" env:"MAX_DURATION_SEC, overwrite" validate:"gt=0"`
	MinTranscriptLen int     `toml:"min_transcript_len" env:"MIN_TRANSCRIPT_LEN, overwrite" validate:"min=1"`
	// MinIORatio may be raised above the CTC floor, never lowered.
	MinIORatio float64 `toml:"min_io_ratio" env:"MIN_IO_RATIO, overwrite" validate:"gte=1"`
	// Workers bounds per-row parallelism; 0 means one per CPU.
	Workers int `toml:"workers" env:"WORKERS, overwrite" validate:"gte=0"`
}

// Audio holds decoder settings.
type Audio struct {
	FFmpeg      string `toml:"ffmpeg" env:"FFMPEG, overwrite"`
	FFprobe     string `toml:"ffprobe" env:"FFPROBE, overwrite"`
	StrictCodec bool   `toml:"strict_codec" env:"STRICT_CODEC, overwrite"`
}

// ASR configures the transcript cross-check.
type ASR struct {
	Enabled bool   `toml:"enabled" env:"ENABLED, overwrite"`
	Engine  string `toml:"engine" env:"ENGINE, overwrite" validate:"oneof=whispercpp coqui"`
	Bin     string `toml:"bin" env:"BIN, overwrite"`
	Model   string `toml:"model" env:"MODEL, overwrite"`
	Scorer  string `toml:"scorer" env:"SCORER, overwrite"`
	Workers int    `toml:"workers" env:"WORKERS, overwrite" validate:"min=1"`
	OnError string `toml:"on_error" env:"ON_ERROR, overwrite" validate:"oneof=fail quarantine"`
}

// Transcript controls character counting.
type Transcript struct {
	Normalize string `toml:"normalize" env:"NORMALIZE, overwrite" validate:"oneof=none nfc"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format" env:"FORMAT, overwrite" validate:"oneof=console json"`
	Level  string `toml:"level" env:"LEVEL, overwrite" validate:"oneof=debug info warn error"`
	File   string `toml:"file" env:"FILE, overwrite"`
}

// Ledger points at the SQLite run ledger; empty disables it.
type Ledger struct {
	Path string `toml:"path" env:"PATH, overwrite"`
}

// Upload mirrors outputs to S3 when a bucket is set.
type Upload struct {
	S3Bucket   string `toml:"s3_bucket" env:"S3_BUCKET, overwrite"`
	S3Region   string `toml:"s3_region" env:"S3_REGION, overwrite" validate:"required_with=S3Bucket"`
	S3Prefix   string `toml:"s3_prefix" env:"S3_PREFIX, overwrite"`
	S3Endpoint string `toml:"s3_endpoint" env:"S3_ENDPOINT, overwrite"`
	// Static credentials; the default AWS chain is used when empty.
	S3AccessKeyID     string `toml:"s3_access_key_id" env:"S3_ACCESS_KEY_ID, overwrite"`
	S3SecretAccessKey string `toml:"s3_secret_access_key" env:"S3_SECRET_ACCESS_KEY, overwrite" validate:"required_with=S3AccessKeyID"`
}

// Output controls console rendering.
type Output struct {
	Progress string `toml:"progress" env:"PROGRESS, overwrite" validate:"oneof=auto always never"`
}

// Config encapsulates all configuration values for a curation run.
type Config struct {
	Filter     Filter     `toml:"filter" env:", prefix=FILTER_"`
	Audio      Audio      `toml:"audio" env:", prefix=AUDIO_"`
	ASR        ASR        `toml:"asr" env:", prefix=ASR_"`
	Transcript Transcript `toml:"transcript" env:", prefix=TRANSCRIPT_"`
	Logging    Logging    `toml:"logging" env:", prefix=LOG_"`
	Ledger     Ledger     `toml:"ledger" env:", prefix=LEDGER_"`
	Upload     Upload     `toml:"upload" env:", prefix=UPLOAD_"`
	Output     Output     `toml:"output" env:", prefix=OUTPUT_"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Filter: Filter{
			NumStdDevs:       2,
			MaxDurationSec:   gates.DefaultMaxDurationSec,
			MinTranscriptLen: gates.DefaultMinTranscriptLen,
			MinIORatio:       gates.MinInputOutputRatio,
		},
		Audio: Audio{FFmpeg: "ffmpeg", FFprobe: "ffprobe"},
		ASR: ASR{
			Enabled: true,
			Engine:  "whispercpp",
			Workers: 1,
			OnError: "fail",
		},
		Transcript: Transcript{Normalize: "none"},
		Logging:    Logging{Format: "console", Level: "info"},
		Output:     Output{Progress: "auto"},
	}
}

// Load applies the TOML file at path (if non-empty) and the process
// environment on top of the defaults.
func Load(path string) (*Config, error) {
	return LoadWith(path, envconfig.OsLookuper())
}

// LoadWith is Load with an explicit environment source.
func LoadWith(path string, env envconfig.Lookuper) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		dec := toml.NewDecoder(f)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper(EnvPrefix, env),
	}); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.ASR.Engine = strings.ToLower(strings.TrimSpace(c.ASR.Engine))
	c.ASR.OnError = strings.ToLower(strings.TrimSpace(c.ASR.OnError))
	c.Transcript.Normalize = strings.ToLower(strings.TrimSpace(c.Transcript.Normalize))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Output.Progress = strings.ToLower(strings.TrimSpace(c.Output.Progress))
	c.ASR.Model = strings.TrimSpace(c.ASR.Model)
	c.ASR.Scorer = strings.TrimSpace(c.ASR.Scorer)
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	c.normalize()
	if c.ASR.Enabled && c.ASR.Model == "" {
		return ErrModelRequired
	}
	if c.ASR.Enabled && c.ASR.Engine == "coqui" && c.ASR.Scorer == "" {
		return ErrScorerRequired
	}
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s fails %q (got %v)", fe.Namespace(), fe.ActualTag(), fe.Value())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// QuarantineASRFailures reports whether model errors drop rows instead of
// aborting.
func (c *Config) QuarantineASRFailures() bool {
	return c.ASR.OnError == "quarantine"
}

// NFC reports whether transcripts are NFC-normalised before counting.
func (c *Config) NFC() bool {
	return c.Transcript.Normalize == "nfc"
}
