// Package report renders a correlation result for the operator. It only
// displays what the result already contains; classification is never
// re-derived here.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg/types"
)

// Write renders the full result: host header, summary, per-update
// correlation table, and the actionable missing list.
func Write(w io.Writer, result types.CorrelationResult) {
	writeHeader(w, result)
	writeSummary(w, result)
	writeTable(w, result)
	writeMissing(w, result)
}

func writeHeader(w io.Writer, result types.CorrelationResult) {
	b := result.Baseline
	fmt.Fprintf(w, "%s %s (%s) %s\n", b.OSName, b.DisplayVersion, b.Build, b.Architecture)
	if b.ProductName != "" {
		fmt.Fprintf(w, "Product: %s\n", b.ProductName)
	}
	if len(result.MonthsRequested) > 0 {
		fmt.Fprintf(w, "Months: %s\n", joinMonths(result.MonthsRequested))
	}
	if result.Degraded {
		fmt.Fprintf(w, "%s %s\n", color.HiRedString("DEGRADED:"), result.DegradedReason)
	}
	fmt.Fprintln(w)
}

func writeSummary(w io.Writer, result types.CorrelationResult) {
	s := result.Summary
	fmt.Fprintf(w, "Expected: %d  Installed: %d  Superseded: %d  Missing: %d\n\n",
		s.Expected, s.Installed, s.Superseded, s.Missing)
}

func writeTable(w io.Writer, result types.CorrelationResult) {
	if len(result.Entries) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"KB", "Type", "Status", "Months", "CVEs"})

	for _, e := range result.Entries {
		status := e.Status.Colorized()
		if e.Status == types.StatusSuperseded && len(e.SupersededBy) > 0 {
			status = fmt.Sprintf("%s (%s)", status, joinKBs(e.SupersededBy))
		}
		t.AppendRow(table.Row{
			string(e.ID),
			e.UpdateType,
			status,
			joinMonths(e.Months),
			len(e.CVEs),
		})
	}

	t.Render()
	fmt.Fprintln(w)
}

func writeMissing(w io.Writer, result types.CorrelationResult) {
	missing := result.MissingEntries()
	fmt.Fprintln(w, "=== Missing ===")
	if len(missing) == 0 {
		fmt.Fprintln(w, "None")
		return
	}

	for _, e := range missing {
		fmt.Fprintf(w, "- %s | Months: %s, CVEs: %d\n", e.ID, joinMonths(e.Months), len(e.CVEs))
	}
	if len(result.MissingCVEs) > 0 {
		fmt.Fprintf(w, "Actionable risk set: %d vulnerabilities\n", len(result.MissingCVEs))
	}
}

func joinMonths(months []types.MonthID) string {
	out := make([]string, len(months))
	for i, m := range months {
		out[i] = string(m)
	}
	return strings.Join(out, ", ")
}

func joinKBs(ids []types.KBID) string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return strings.Join(out, ", ")
}
