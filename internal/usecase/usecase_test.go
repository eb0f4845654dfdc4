package usecase

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forPelevin/asrcurate/internal/domain/audiotype"
	"github.com/forPelevin/asrcurate/internal/ports"
	"github.com/forPelevin/asrcurate/internal/table"
	"github.com/forPelevin/asrcurate/internal/types"
)

const words16 = "hello world here"

type clip struct {
	name       string
	transcript string
	sec        float64
	broken     bool
	missing    bool
}

// writeCorpus creates the audio files (empty; the fake decoder never opens
// them) and a table next to them.
func writeCorpus(t *testing.T, clips []clip) string {
	t.Helper()
	dir := t.TempDir()
	var b strings.Builder
	w := csv.NewWriter(&b)
	_ = w.Write([]string{"wav_filename", "wav_filesize", "transcript"})
	for _, c := range clips {
		if !c.missing {
			require.NoError(t, os.WriteFile(filepath.Join(dir, c.name), nil, 0o644))
		}
		_ = w.Write([]string{c.name, "0", c.transcript})
	}
	w.Flush()
	src := filepath.Join(dir, "train.csv")
	require.NoError(t, os.WriteFile(src, []byte(b.String()), 0o644))
	return src
}

type fakeDecoder struct {
	clips map[string]clip
}

func newFakeDecoder(clips []clip) fakeDecoder {
	m := make(map[string]clip, len(clips))
	for _, c := range clips {
		m[c.name] = c
	}
	return fakeDecoder{clips: m}
}

func (f fakeDecoder) Decode(_ context.Context, path string) (ports.Audio, error) {
	c := f.clips[filepath.Base(path)]
	if c.broken {
		return ports.Audio{}, errors.New("bad header")
	}
	return ports.Audio{SampleRate: 16000}, nil
}

func (f fakeDecoder) Duration(_ context.Context, path string) (float64, error) {
	return f.clips[filepath.Base(path)].sec, nil
}

type fakeASR struct {
	mu    sync.Mutex
	hyps  map[string]string
	fails map[string]bool
	calls []string
}

func (f *fakeASR) Transcribe(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := filepath.Base(path)
	f.calls = append(f.calls, name)
	if f.fails[name] {
		return "", fmt.Errorf("model crashed on %s", name)
	}
	if h, ok := f.hyps[name]; ok {
		return h, nil
	}
	return words16, nil
}

func defaultInput(src string) Input {
	return Input{
		Source:           src,
		RunID:            "test-run",
		NumStdDevs:       2,
		MaxDurationSec:   30,
		MinTranscriptLen: 10,
		MinIORatio:       1,
		Workers:          4,
		ASRWorkers:       1,
	}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return recs
}

func tenRowCorpus() []clip {
	return []clip{
		{name: "01.wav", transcript: words16, sec: 3.2},
		{name: "02.wav", transcript: words16, sec: 3.2, broken: true},
		{name: "03.wav", transcript: words16, sec: 40},
		{name: "04.wav", transcript: "short", sec: 3.2},
		{name: "05.wav", transcript: words16, sec: 0.1},
		{name: "06.wav", transcript: words16, sec: 3.2},
		{name: "07.wav", transcript: words16, sec: 3.2, missing: true},
		{name: "08.wav", transcript: words16, sec: 3.2},
		{name: "09.wav", transcript: words16, sec: 3.2},
		{name: "10.wav", transcript: words16, sec: 3.2},
	}
}

func wavOnly(clips []clip) Deps {
	return Deps{Decoders: map[types.Codec]ports.AudioDecoder{types.CodecWAV: newFakeDecoder(clips)}}
}

func TestRun_EveryRowAccountedForOnce(t *testing.T) {
	clips := tenRowCorpus()
	src := writeCorpus(t, clips)
	stem := strings.TrimSuffix(src, ".csv")

	// left over from an earlier run with a different k
	require.NoError(t, os.WriteFile(stem+".NON_NORMAL", []byte("stale"), 0o644))

	res, err := New(wavOnly(clips)).Run(context.Background(), defaultInput(src))
	require.NoError(t, err)

	sum := res.Summary
	assert.Equal(t, 10, sum.Input)
	assert.Equal(t, 5, sum.Final)
	require.True(t, sum.Reconciles(), "%+v", sum)

	want := map[types.Reason]string{
		types.ReasonUnresolved:    "07.wav",
		types.ReasonUnreadable:    "02.wav",
		types.ReasonTooLong:       "03.wav",
		types.ReasonTooShortTrans: "04.wav",
		types.ReasonOffending:     "05.wav",
	}
	seen := map[string]types.Reason{}
	for _, g := range sum.Gates {
		name, ok := want[g.Reason]
		if !ok {
			assert.Zero(t, g.Rejected, g.Gate)
			assert.Empty(t, g.File, g.Gate)
			assert.NoFileExists(t, stem+"."+string(g.Reason))
			continue
		}
		rows := readRows(t, g.File)
		require.Len(t, rows, 2, g.Reason)
		assert.Equal(t, name, rows[1][0])
		prev, dup := seen[name]
		require.False(t, dup, "%s quarantined twice (%s and %s)", name, prev, g.Reason)
		seen[name] = g.Reason
	}
	assert.Len(t, seen, len(want))

	best := readRows(t, sum.BestFile)
	require.Len(t, best, 6)
	for _, rec := range best[1:] {
		assert.NotEqual(t, "07.wav", rec[0])
	}
	assert.Equal(t,
		"wav_filename,wav_filesize,transcript,abspath,is_readable,audio_len,transcript_len,num_feat_vectors,input_output_ratio,lens_ratio,lens_ratio_deviation",
		strings.Join(best[0], ","))
	assert.Equal(t, sum.BestFile, res.Files[len(res.Files)-1], "BEST is written last")
}

func TestRun_UnresolvedFileHasNoLaterColumns(t *testing.T) {
	clips := tenRowCorpus()
	src := writeCorpus(t, clips)

	res, err := New(wavOnly(clips)).Run(context.Background(), defaultInput(src))
	require.NoError(t, err)

	rows := readRows(t, res.Summary.Gates[0].File)
	assert.Equal(t, "wav_filename,wav_filesize,transcript,abspath", strings.Join(rows[0], ","))
	assert.Empty(t, rows[1][3])
}

func TestRun_ReprocessedTableKeepsInputValuesInEarlyQuarantine(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kept.wav"), nil, 0o644))
	src := filepath.Join(dir, "train.csv")
	body := "wav_filename,transcript,audio_len,lens_ratio\n" +
		"kept.wav,hello world here,9.99,0.10\n" +
		"gone.wav,hello world here,7.25,0.45\n"
	require.NoError(t, os.WriteFile(src, []byte(body), 0o644))

	clips := []clip{{name: "kept.wav", transcript: words16, sec: 3.2}}
	res, err := New(wavOnly(clips)).Run(context.Background(), defaultInput(src))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Final)

	stem := strings.TrimSuffix(src, ".csv")
	unresolved := readRows(t, stem+".UNRESOLVED")
	require.Len(t, unresolved, 2)
	assert.Equal(t, []string{"wav_filename", "transcript", "audio_len", "lens_ratio", "abspath"}, unresolved[0])
	assert.Equal(t, []string{"gone.wav", "hello world here", "7.25", "0.45", ""}, unresolved[1])

	best := readRows(t, stem+".BEST")
	require.Len(t, best, 2)
	assert.Equal(t, "3.2", best[1][2], "audio_len is recomputed for survivors")
	assert.Equal(t, "0.2", best[1][3], "lens_ratio is recomputed for survivors")
}

func TestRun_EveryPathUnresolved(t *testing.T) {
	clips := []clip{
		{name: "a.wav", transcript: words16, missing: true},
		{name: "b.wav", transcript: words16, missing: true},
	}
	src := writeCorpus(t, clips)
	stem := strings.TrimSuffix(src, ".csv")

	res, err := New(wavOnly(clips)).Run(context.Background(), defaultInput(src))
	require.NoError(t, err)

	sum := res.Summary
	assert.Equal(t, 2, sum.Input)
	assert.Zero(t, sum.Final)
	assert.True(t, sum.Reconciles(), "%+v", sum)

	unresolved := readRows(t, stem+".UNRESOLVED")
	require.Len(t, unresolved, 3)
	assert.Equal(t, "a.wav", unresolved[1][0])
	assert.Equal(t, "b.wav", unresolved[2][0])

	best := readRows(t, stem+".BEST")
	assert.Len(t, best, 1, "header only")
}

func TestRun_IdenticalRatiosRejectNothing(t *testing.T) {
	var clips []clip
	for i := 0; i < 6; i++ {
		clips = append(clips, clip{name: fmt.Sprintf("%d.wav", i), transcript: words16, sec: 3.2})
	}
	src := writeCorpus(t, clips)

	in := defaultInput(src)
	in.NumStdDevs = 0.01
	res, err := New(wavOnly(clips)).Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Summary.Final)
}

func TestRun_LengthOutlier(t *testing.T) {
	var clips []clip
	for i := 0; i < 9; i++ {
		clips = append(clips, clip{name: fmt.Sprintf("%d.wav", i), transcript: words16, sec: 3.2})
	}
	clips = append(clips, clip{name: "slow.wav", transcript: words16, sec: 32})
	src := writeCorpus(t, clips)

	uc := New(wavOnly(clips))
	in := defaultInput(src)
	in.MaxDurationSec = 60
	res, err := uc.Run(context.Background(), in)
	require.NoError(t, err)

	var g types.GateResult
	for _, gr := range res.Summary.Gates {
		if gr.Reason == types.ReasonNonNormal {
			g = gr
		}
	}
	require.Equal(t, 1, g.Rejected)
	rows := readRows(t, g.File)
	assert.Equal(t, "slow.wav", rows[1][0])

	// the survivors are within band, so a second pass keeps all of them
	again := filepath.Join(filepath.Dir(src), "again.csv")
	require.NoError(t, os.Rename(res.Summary.BestFile, again))
	in.Source = again
	res2, err := uc.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 9, res2.Summary.Final)
}

func TestRun_ASRCrossCheck(t *testing.T) {
	var clips []clip
	for i := 0; i < 9; i++ {
		clips = append(clips, clip{name: fmt.Sprintf("%d.wav", i), transcript: words16, sec: 3.2})
	}
	clips = append(clips, clip{name: "garbled.wav", transcript: words16, sec: 3.2})
	clips = append(clips, clip{name: "crash.wav", transcript: words16, sec: 3.2})
	src := writeCorpus(t, clips)
	stem := strings.TrimSuffix(src, ".csv")

	t.Run("fail policy aborts without output", func(t *testing.T) {
		deps := wavOnly(clips)
		deps.ASR = &fakeASR{fails: map[string]bool{"crash.wav": true}}
		_, err := New(deps).Run(context.Background(), defaultInput(src))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "crash.wav")
		assert.NoFileExists(t, stem+".BEST")
	})

	t.Run("quarantine policy", func(t *testing.T) {
		asr := &fakeASR{
			fails: map[string]bool{"crash.wav": true},
			hyps:  map[string]string{"garbled.wav": "uh"},
		}
		deps := wavOnly(clips)
		deps.ASR = asr
		in := defaultInput(src)
		in.ASRQuarantine = true
		res, err := New(deps).Run(context.Background(), in)
		require.NoError(t, err)
		assert.Len(t, asr.calls, 11)
		assert.Equal(t, 9, res.Summary.Final)
		assert.True(t, res.Summary.Reconciles(), "%+v", res.Summary)

		failed := readRows(t, stem+".ASR_FAILED")
		require.Len(t, failed, 2)
		assert.Equal(t, "crash.wav", failed[1][0])
		text := readRows(t, stem+".NON_NORMAL_TEXT")
		require.Len(t, text, 2)
		assert.Equal(t, "garbled.wav", text[1][0])

		header := readRows(t, stem+".BEST")[0]
		assert.Equal(t, []string{types.ColTextRatio, types.ColTextRatioDev}, header[len(header)-2:])
	})
}

func TestRun_FatalErrorsWriteNothing(t *testing.T) {
	t.Run("missing columns", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "t.csv")
		require.NoError(t, os.WriteFile(src, []byte("path,text\na.wav,hi\n"), 0o644))
		_, err := New(Deps{}).Run(context.Background(), defaultInput(src))
		assert.ErrorIs(t, err, table.ErrMissingColumns)
	})

	t.Run("unknown audio type", func(t *testing.T) {
		clips := []clip{
			{name: "a.aiff", transcript: words16, sec: 1},
			{name: "gone.wav", transcript: words16, missing: true},
		}
		src := writeCorpus(t, clips)
		_, err := New(Deps{}).Run(context.Background(), defaultInput(src))
		assert.ErrorIs(t, err, audiotype.ErrUnknownAudioType)
		assert.NoFileExists(t, strings.TrimSuffix(src, ".csv")+".UNRESOLVED")
	})

	t.Run("strict codec", func(t *testing.T) {
		clips := []clip{
			{name: "a.wav", transcript: words16, sec: 1},
			{name: "b.flac", transcript: words16, sec: 1},
		}
		src := writeCorpus(t, clips)
		in := defaultInput(src)
		in.StrictCodec = true
		_, err := New(wavOnly(clips)).Run(context.Background(), in)
		assert.ErrorIs(t, err, audiotype.ErrMixedAudioTypes)
	})

	t.Run("no decoder", func(t *testing.T) {
		clips := []clip{{name: "a.opus", transcript: words16, sec: 1}}
		src := writeCorpus(t, clips)
		_, err := New(Deps{}).Run(context.Background(), defaultInput(src))
		assert.ErrorIs(t, err, ErrNoDecoder)
	})
}

func TestRun_Cancelled(t *testing.T) {
	clips := tenRowCorpus()
	src := writeCorpus(t, clips)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(wavOnly(clips)).Run(ctx, defaultInput(src))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, strings.TrimSuffix(src, ".csv")+".BEST")
}
