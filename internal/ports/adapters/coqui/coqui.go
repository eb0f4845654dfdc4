// Package coqui drives the Coqui STT command-line client.
//
// Audio is resampled to 16 kHz mono and peak-normalised to full 16-bit range
// before inference, matching how the acoustic model was trained.
package coqui

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/forPelevin/asrcurate/internal/ports"
	"github.com/forPelevin/asrcurate/internal/ports/adapters/wavdec"
)

// Resampler prepares a 16 kHz mono WAV from any input.
type Resampler interface {
	ResampleMono16k(ctx context.Context, in, outWav string) error
}

type Adapter struct {
	bin       string
	model     string
	scorer    string
	resampler Resampler
	pcm       ports.AudioDecoder
}

func New(binPath, modelPath, scorerPath string, r Resampler) *Adapter {
	if binPath == "" {
		binPath = "stt"
	}
	return &Adapter{bin: binPath, model: modelPath, scorer: scorerPath, resampler: r, pcm: wavdec.New()}
}

func (a *Adapter) Transcribe(ctx context.Context, audioPath string) (string, error) {
	dir, err := os.MkdirTemp("", "asrcurate-stt-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	resampled := filepath.Join(dir, "16k.wav")
	if err := a.resampler.ResampleMono16k(ctx, audioPath, resampled); err != nil {
		return "", err
	}
	pcm, err := a.pcm.Decode(ctx, resampled)
	if err != nil {
		return "", fmt.Errorf("read resampled audio: %w", err)
	}
	normalized := filepath.Join(dir, "norm.wav")
	if err := wavdec.WritePCM16(normalized, pcm.Samples, pcm.SampleRate, true); err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, a.bin, a.args(normalized)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("stt failed: %w\n%s", err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (a *Adapter) args(wav string) []string {
	args := []string{"--model", a.model}
	if a.scorer != "" {
		args = append(args, "--scorer", a.scorer)
	}
	return append(args, "--audio", wav)
}
