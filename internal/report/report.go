// Package report renders the end-of-run console summary.
package report

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/forPelevin/asrcurate/internal/types"
)

// Summary renders per-gate removals followed by the overall totals.
func Summary(sum types.Summary) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Gate", "Reason", "Input", "Removed", "Hours", "File"})
	for _, g := range sum.Gates {
		file := "-"
		if g.File != "" {
			file = filepath.Base(g.File)
		}
		tw.AppendRow(table.Row{
			g.Gate,
			string(g.Reason),
			humanize.Comma(int64(g.Input)),
			humanize.Comma(int64(g.Rejected)),
			fmt.Sprintf("%.2f", g.Hours),
			file,
		})
	}
	tw.AppendFooter(table.Row{
		"retained", "", humanize.Comma(int64(sum.Input)), humanize.Comma(int64(sum.Final)),
		fmt.Sprintf("%.2f", sum.FinalHours), filepath.Base(sum.BestFile),
	})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})

	var b strings.Builder
	b.WriteString(tw.Render())
	b.WriteString("\n")
	fmt.Fprintf(&b, "Found %s <transcript,clip> pairs (%.2f hours readable) in %s\n",
		humanize.Comma(int64(sum.Input)), sum.InputHours, sum.Source)
	fmt.Fprintf(&b, "Saved %.2f hours (%s samples) to %s\n",
		sum.FinalHours, humanize.Comma(int64(sum.Final)), sum.BestFile)
	fmt.Fprintf(&b, "Removed %.2f hours (%.2f%% of original data)\n",
		sum.RemovedHours(), sum.PercentHoursRemoved())
	fmt.Fprintf(&b, "Removed %s samples (%.2f%% of original data)\n",
		humanize.Comma(int64(sum.RemovedRows())), sum.PercentRowsRemoved())
	if !sum.Reconciles() {
		b.WriteString("WARNING: per-gate removals do not add up to the input row count\n")
	}
	return b.String()
}

// Row is one line of the run history view.
type Row struct {
	RunID      string
	Source     string
	StartedAt  string
	Status     string
	Input      int
	Final      int
	FinalHours float64
}

// History renders past runs, newest first.
func History(rows []Row) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Run", "Started", "Status", "Source", "Input", "Kept", "Hours"})
	for _, r := range rows {
		id := r.RunID
		if len(id) > 8 {
			id = id[:8]
		}
		tw.AppendRow(table.Row{
			id, r.StartedAt, r.Status, r.Source,
			humanize.Comma(int64(r.Input)), humanize.Comma(int64(r.Final)),
			fmt.Sprintf("%.2f", r.FinalHours),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	return tw.Render()
}
