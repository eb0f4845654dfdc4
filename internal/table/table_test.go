package table

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forPelevin/asrcurate/internal/types"
)

func TestDecode(t *testing.T) {
	in := "\ufeffwav_filename,wav_filesize,transcript\n" +
		"a.wav,100,hello there\n" +
		"\"b,c.wav\",200,\"quoted, text\"\n"

	tb, err := Decode(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, tb.Samples, 2)
	assert.Equal(t, []string{"wav_filename", "wav_filesize", "transcript"}, tb.Header)

	s := tb.Samples[1]
	assert.Equal(t, 1, s.Row)
	assert.Equal(t, "b,c.wav", s.RawPath)
	assert.Equal(t, "quoted, text", s.Transcript)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{name: "empty", in: "", want: ErrMissingColumns},
		{name: "no transcript", in: "wav_filename\na.wav\n", want: ErrMissingColumns},
		{name: "no path", in: "transcript\nhi\n", want: ErrMissingColumns},
		{name: "header only", in: "wav_filename,transcript\n", want: ErrEmptyTable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.in))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSidePath(t *testing.T) {
	tb := &Table{Source: "/data/sets/train.csv"}
	assert.Equal(t, "/data/sets/train.BEST", tb.SidePath(types.BestSuffix))
	assert.Equal(t, "/data/sets/train.TOO_LONG", tb.SidePath(string(types.ReasonTooLong)))
	assert.Equal(t, "/data/sets", tb.Dir())
}

func TestEncode_DerivedColumnsFollowInput(t *testing.T) {
	tb, err := Decode(strings.NewReader("wav_filename,transcript,speaker\na.wav,hello world,s1\n"))
	require.NoError(t, err)

	s := tb.Samples[0]
	s.Path = "/abs/a.wav"
	s.Readable = true
	s.DurationSec = 1.5
	s.FeatureVectors = 75
	s.TranscriptLen = 11
	s.SetMetric(types.ColIORatio, 75.0/11)

	tb.AddColumn(types.ColAbsPath)
	tb.AddColumn(types.ColIsReadable)
	snapshot := tb.Layout()
	tb.AddColumn(types.ColAudioLen)
	tb.AddColumn(types.ColAudioLen)
	tb.AddColumn(types.ColIORatio)

	assert.Equal(t, []string{"wav_filename", "transcript", "speaker", "abspath", "is_readable"}, snapshot.Cols)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, tb.Layout(), tb.Samples))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "wav_filename,transcript,speaker,abspath,is_readable,audio_len,input_output_ratio", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "a.wav,hello world,s1,/abs/a.wav,true,1.5,6.81"), lines[1])

	buf.Reset()
	require.NoError(t, Encode(&buf, snapshot, tb.Samples))
	assert.Equal(t, "wav_filename,transcript,speaker,abspath,is_readable\na.wav,hello world,s1,/abs/a.wav,true\n", buf.String())
}

func TestReadAndWriteFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "train.csv")
	require.NoError(t, os.WriteFile(src, []byte("wav_filename,transcript\nx.wav,some words here\n"), 0o644))

	tb, err := Read(src)
	require.NoError(t, err)
	assert.Equal(t, src, tb.Source)

	out := tb.SidePath(types.BestSuffix)
	require.NoError(t, os.WriteFile(out, []byte("stale"), 0o644))
	require.NoError(t, tb.WriteFile(out, tb.Layout(), tb.Samples))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "wav_filename,transcript\nx.wav,some words here\n", string(b))
	_, err = os.Stat(out + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestEncode_InputColumnKeptUntilComputed(t *testing.T) {
	in := "wav_filename,transcript,audio_len,lens_ratio\n" +
		"gone.wav,hello world here,7.25,0.45\n"
	tb, err := Decode(strings.NewReader(in))
	require.NoError(t, err)

	tb.AddColumn(types.ColAbsPath)
	early := tb.Layout()

	s := tb.Samples[0]
	s.DurationSec = 3
	tb.AddColumn(types.ColAudioLen)
	late := tb.Layout()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, early, tb.Samples))
	assert.Equal(t, "wav_filename,transcript,audio_len,lens_ratio,abspath\ngone.wav,hello world here,7.25,0.45,\n", buf.String())

	buf.Reset()
	require.NoError(t, Encode(&buf, late, tb.Samples))
	assert.Equal(t, "wav_filename,transcript,audio_len,lens_ratio,abspath\ngone.wav,hello world here,3,0.45,\n", buf.String())
}
