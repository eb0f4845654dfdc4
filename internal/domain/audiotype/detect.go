// Package audiotype infers the codec family of a run from file extensions.
package audiotype

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/forPelevin/asrcurate/internal/types"
)

var (
	ErrUnknownAudioType = errors.New("unknown audio type file extension")
	ErrMixedAudioTypes  = errors.New("mixed audio types in table")
	ErrNoSamples        = errors.New("no samples to detect audio type from")
)

var byExtension = map[string]types.Codec{
	".wav":  types.CodecWAV,
	".opus": types.CodecOpus,
	".flac": types.CodecFLAC,
	".mp3":  types.CodecMP3,
}

// FromExtension maps an extension (with dot, any case) to a codec.
func FromExtension(ext string) (types.Codec, bool) {
	c, ok := byExtension[strings.ToLower(ext)]
	return c, ok
}

// Detect decides the codec for the whole run from the first sample.
func Detect(samples []*types.Sample) (types.Codec, error) {
	if len(samples) == 0 {
		return "", ErrNoSamples
	}
	ref := samples[0].RawPath
	ext := filepath.Ext(strings.TrimSpace(ref))
	if ext == "" {
		return "", fmt.Errorf("%w: %q is not a path with an extension", ErrUnknownAudioType, ref)
	}
	c, ok := FromExtension(ext)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAudioType, ext)
	}
	return c, nil
}

// Validate checks every sample maps to want. It reports the first offender.
func Validate(samples []*types.Sample, want types.Codec) error {
	for _, s := range samples {
		c, ok := FromExtension(filepath.Ext(s.RawPath))
		if !ok || c != want {
			return fmt.Errorf("%w: row %d (%s) is not %s", ErrMixedAudioTypes, s.Row+1, s.RawPath, want)
		}
	}
	return nil
}
