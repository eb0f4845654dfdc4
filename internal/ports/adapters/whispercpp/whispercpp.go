package whispercpp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Resampler prepares the 16 kHz mono WAV whisper.cpp expects.
type Resampler interface {
	ResampleMono16k(ctx context.Context, in, outWav string) error
}

type Adapter struct {
	bin       string
	model     string
	resampler Resampler
}

func New(binPath, modelPath string, r Resampler) *Adapter {
	if binPath == "" {
		binPath = "whisper-cli"
	}
	return &Adapter{bin: binPath, model: modelPath, resampler: r}
}

// Transcribe returns the plain-text hypothesis for one audio file. Each call
// works in its own scratch directory.
func (a *Adapter) Transcribe(ctx context.Context, audioPath string) (string, error) {
	dir, err := os.MkdirTemp("", "asrcurate-whisper-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	wav := filepath.Join(dir, "in.wav")
	if err := a.resampler.ResampleMono16k(ctx, audioPath, wav); err != nil {
		return "", err
	}

	outPrefix := filepath.Join(dir, "whisper")
	args := []string{
		"-m", a.model,
		"-f", wav,
		"-nt",
		"-otxt",
		"-of", outPrefix,
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("whisper.cpp failed: %w\n%s", err, string(b))
	}

	tb, err := os.ReadFile(outPrefix + ".txt")
	if err != nil {
		return "", err
	}
	return joinLines(string(tb)), nil
}

func joinLines(s string) string {
	var parts []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}
