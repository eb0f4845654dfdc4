// Package table reads and writes the delimited row table a run operates on.
//
// The source table must carry the wav_filename and transcript columns. Every
// other input column is carried through untouched; derived columns are appended
// in the order the pipeline computes them.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/forPelevin/asrcurate/internal/types"
)

var (
	// ErrMissingColumns is returned when the source lacks a required column.
	ErrMissingColumns = errors.New("missing required columns")
	// ErrEmptyTable is returned when the source has a header but no rows.
	ErrEmptyTable = errors.New("table has no rows")
)

// Table is the in-memory row table.
type Table struct {
	Source  string
	Header  []string
	Samples []*types.Sample

	derived []string
	added   map[string]bool
}

// Read loads a CSV table and validates the required columns.
func Read(path string) (*Table, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve table path: %w", err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	t, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", abs, err)
	}
	t.Source = abs
	return t, nil
}

// Decode parses CSV from r. Source is left empty.
func Decode(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty input", ErrMissingColumns)
	}
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	pathIdx, textIdx := indexOf(header, types.ColRawPath), indexOf(header, types.ColReferenceText)
	var missing []string
	if pathIdx < 0 {
		missing = append(missing, types.ColRawPath)
	}
	if textIdx < 0 {
		missing = append(missing, types.ColReferenceText)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	t := &Table{Header: header, added: map[string]bool{}}
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse row %d: %w", row+1, err)
		}
		t.Samples = append(t.Samples, &types.Sample{
			Row:        row,
			Fields:     rec,
			RawPath:    rec[pathIdx],
			Transcript: rec[textIdx],
		})
	}
	if len(t.Samples) == 0 {
		return nil, ErrEmptyTable
	}
	return t, nil
}

// Dir is the directory containing the source table.
func (t *Table) Dir() string {
	return filepath.Dir(t.Source)
}

// SidePath names an output next to the source: <stem>.<suffix>.
func (t *Table) SidePath(suffix string) string {
	stem := strings.TrimSuffix(t.Source, filepath.Ext(t.Source))
	return stem + "." + suffix
}

// AddColumn registers a derived column. Adding twice is a no-op.
func (t *Table) AddColumn(name string) {
	if t.added == nil {
		t.added = map[string]bool{}
	}
	if t.added[name] {
		return
	}
	t.added[name] = true
	if indexOf(t.Header, name) < 0 {
		t.derived = append(t.derived, name)
	}
}

// Columns is the output header: input columns followed by derived columns.
func (t *Table) Columns() []string {
	cols := make([]string, 0, len(t.Header)+len(t.derived))
	cols = append(cols, t.Header...)
	return append(cols, t.derived...)
}

// Layout freezes the output columns and which of them hold computed values.
// Columns not yet computed when the layout was taken keep the row's input
// value, even if a later stage computes a column of the same name.
type Layout struct {
	Cols     []string
	computed map[string]bool
}

// Layout snapshots the current output layout.
func (t *Table) Layout() Layout {
	return Layout{Cols: t.Columns(), computed: maps.Clone(t.added)}
}

// WriteFile writes samples under l, replacing any existing file.
func (t *Table) WriteFile(path string, l Layout, samples []*types.Sample) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Encode(f, l, samples); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

// Encode writes the header and samples as CSV.
func Encode(w io.Writer, l Layout, samples []*types.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(l.Cols); err != nil {
		return err
	}
	rec := make([]string, len(l.Cols))
	for _, s := range samples {
		for i, col := range l.Cols {
			rec[i] = l.value(s, i, col)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (l Layout) value(s *types.Sample, i int, col string) string {
	if !l.computed[col] {
		if i < len(s.Fields) {
			return s.Fields[i]
		}
		return ""
	}
	switch col {
	case types.ColAbsPath:
		return s.Path
	case types.ColIsReadable:
		return strconv.FormatBool(s.Readable)
	case types.ColAudioLen:
		return formatFloat(s.DurationSec)
	case types.ColTranscriptLen:
		return strconv.Itoa(s.TranscriptLen)
	case types.ColNumFeatVectors:
		return strconv.Itoa(s.FeatureVectors)
	case types.ColSTTTranscript:
		return s.Hypothesis
	case types.ColSTTLen:
		return strconv.Itoa(s.HypothesisLen)
	case types.ColASRError:
		return s.ASRError
	}
	if v, ok := s.Metric(col); ok {
		return formatFloat(v)
	}
	return ""
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}
