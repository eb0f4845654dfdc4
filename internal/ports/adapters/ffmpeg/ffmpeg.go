package ffmpeg

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/forPelevin/asrcurate/internal/ports"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

// Decode runs a full decode to mono float PCM at the stream's own rate. Any
// diagnostic ffmpeg prints counts as failure.
func (a *Adapter) Decode(ctx context.Context, path string) (ports.Audio, error) {
	rate, err := a.probeSampleRate(ctx, path)
	if err != nil {
		return ports.Audio{}, err
	}
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-nostdin",
		"-v", "error",
		"-xerror",
		"-i", path,
		"-vn",
		"-ac", "1",
		"-f", "f32le",
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return ports.Audio{}, fmt.Errorf("ffmpeg decode: %w\n%s", err, stderr.String())
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return ports.Audio{}, fmt.Errorf("ffmpeg decode: %s", msg)
	}
	return ports.Audio{Samples: f32le(stdout.Bytes()), SampleRate: rate}, nil
}

func (a *Adapter) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return sec, nil
}

// ResampleMono16k converts any input into a 16 kHz mono WAV.
func (a *Adapter) ResampleMono16k(ctx context.Context, in, outWav string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-nostdin",
		"-y",
		"-v", "error",
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		"-f", "wav",
		outWav,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg resample: %w\n%s", err, string(b))
	}
	return nil
}

func (a *Adapter) probeSampleRate(ctx context.Context, path string) (int, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=sample_rate",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe sample rate: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, fmt.Errorf("ffprobe sample rate: no audio stream")
	}
	rate, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse sample rate %q: %w", s, err)
	}
	return rate, nil
}

func f32le(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
