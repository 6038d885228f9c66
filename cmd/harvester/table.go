package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gilby125/flight-offers-harvester/harvest"
	"github.com/gilby125/flight-offers-harvester/offers"
	"github.com/gilby125/flight-offers-harvester/pkg/buildinfo"
	"github.com/gilby125/flight-offers-harvester/worker"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func versionString() string {
	return buildinfo.Version
}

// batchRow pairs a result with the input it came from (a file name or a
// route).
type batchRow struct {
	Source string         `json:"source"`
	Result harvest.Result `json:"result"`
	Error  string         `json:"error,omitempty"`
}

// renderResults prints one row per batch plus a totals footer, or the raw
// rows as JSON when format is "json".
func renderResults(w io.Writer, format string, rows []batchRow) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Source", "Mode", "Received", "Parsed", "Skipped", "Duplicates", "Written", "Error"})

	var total harvest.Result
	for _, r := range rows {
		res := r.Result
		t.AppendRow(table.Row{r.Source, res.Mode, res.Received, res.Parsed, res.Skipped, res.Duplicates, res.Written, r.Error})
		total.Received += res.Received
		total.Parsed += res.Parsed
		total.Skipped += res.Skipped
		total.Duplicates += res.Duplicates
		total.Written += res.Written
	}
	t.AppendFooter(table.Row{"Total", "", total.Received, total.Parsed, total.Skipped, total.Duplicates, total.Written, ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
	return nil
}

// renderDiagnostics lists cards and legs that were skipped.
func renderDiagnostics(w io.Writer, rows []batchRow) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Source", "Index", "Segment", "Reason"})
	n := 0
	for _, r := range rows {
		for _, d := range r.Result.Diagnostics {
			t.AppendRow(table.Row{r.Source, d.Index, d.Segment, d.Reason})
			n++
		}
	}
	if n == 0 {
		return
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// renderSchema prints the columns of a mode.
func renderSchema(w io.Writer, schema offers.Schema) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("%s schema", schema.Mode))
	t.AppendHeader(table.Row{"#", "Column"})
	for i, name := range schema.Header() {
		t.AppendRow(table.Row{i + 1, name})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// renderScan prints a spool pass summary.
func renderScan(w io.Writer, r worker.ScanReport) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Files", "Ingested", "Already seen", "Rejected", "Failed", "Written"})
	t.AppendRow(table.Row{r.Files, r.Ingested, r.AlreadySeen, r.Rejected, r.Failed, r.Written})
	t.SetStyle(table.StyleRounded)
	t.Render()
}
