// Package progress renders per-gate progress bars on an interactive terminal.
package progress

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/forPelevin/asrcurate/internal/ports"
)

// Enabled resolves a mode (auto, always, never) against the output file.
func Enabled(mode string, f *os.File) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "always":
		return true
	case "never":
		return false
	}
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Reporter hands out one bar per stage. A nil Reporter is a no-op.
type Reporter struct {
	w io.Writer
}

func New(w io.Writer, enabled bool) *Reporter {
	if !enabled {
		return nil
	}
	return &Reporter{w: w}
}

func (r *Reporter) Start(stage string, total int) ports.Tracker {
	if r == nil || total <= 0 {
		return noop{}
	}
	p := mpb.New(mpb.WithOutput(r.w), mpb.WithWidth(48))
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(stage+" ", decor.WCSyncSpaceR),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
		),
	)
	return &tracker{p: p, bar: bar}
}

type tracker struct {
	p   *mpb.Progress
	bar *mpb.Bar
}

func (t *tracker) Increment() { t.bar.Increment() }

// Done completes the bar even when the stage stopped early.
func (t *tracker) Done() {
	if !t.bar.Completed() {
		t.bar.Abort(false)
	}
	t.p.Wait()
}

type noop struct{}

func (noop) Increment() {}
func (noop) Done()      {}
