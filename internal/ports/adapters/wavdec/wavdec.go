// Package wavdec reads and writes RIFF/WAVE files natively.
package wavdec

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/forPelevin/asrcurate/internal/ports"
)

var ErrInvalidWAV = errors.New("not a valid wav file")

type Adapter struct{}

func New() *Adapter { return &Adapter{} }

// Decode reads the whole PCM payload and mixes it down to mono in [-1, 1].
func (a *Adapter) Decode(_ context.Context, path string) (ports.Audio, error) {
	f, err := os.Open(path)
	if err != nil {
		return ports.Audio{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return ports.Audio{}, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return ports.Audio{}, fmt.Errorf("read pcm: %w", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels <= 0 {
		return ports.Audio{}, fmt.Errorf("%w: missing format", ErrInvalidWAV)
	}
	return ports.Audio{
		Samples:    mixDown(buf),
		SampleRate: buf.Format.SampleRate,
	}, nil
}

// Duration reads the header only.
func (a *Adapter) Duration(_ context.Context, path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, ErrInvalidWAV
	}
	d, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("wav duration: %w", err)
	}
	return d.Seconds(), nil
}

func mixDown(buf *audio.IntBuffer) []float32 {
	ch := buf.Format.NumChannels
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = 16
	}
	scale := float32(math.Pow(2, float64(depth-1)))
	out := make([]float32, len(buf.Data)/ch)
	for i := range out {
		var sum float32
		for c := 0; c < ch; c++ {
			sum += float32(buf.Data[i*ch+c])
		}
		out[i] = sum / float32(ch) / scale
	}
	return out
}

// WritePCM16 encodes mono samples as 16-bit PCM. With peakNormalize the
// loudest sample is scaled to full range (floor 0.01 to avoid boosting
// silence).
func WritePCM16(path string, samples []float32, sampleRate int, peakNormalize bool) error {
	gain := float32(1)
	if peakNormalize {
		var peak float32 = 0.01
		for _, s := range samples {
			if a := float32(math.Abs(float64(s))); a > peak {
				peak = a
			}
		}
		gain = 1 / peak
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		v := s * gain * math.MaxInt16
		data[i] = int(max(math.MinInt16, min(math.MaxInt16, v)))
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return f.Close()
}
