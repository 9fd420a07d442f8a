package cmd

import (
	"fmt"
	"io"
	"time"

	"fimwatch/internal/drift"

	"github.com/olekukonko/tablewriter"
)

// printResult writes a summary of res followed by a table of its changes.
func printResult(w io.Writer, res *drift.ScanResult) error {
	fmt.Fprintf(w, "%s: %d unchanged, %d modified, %d new, %d missing (%s)\n",
		res.Root, len(res.Unchanged), len(res.Modified), len(res.New), len(res.Missing),
		res.Duration().Round(time.Millisecond))
	if !res.HasDrift() {
		return nil
	}

	var table = tablewriter.NewWriter(w)
	table.SetHeader([]string{"Kind", "Path", "Baseline", "Current"})
	for _, c := range res.Changes {
		table.Append([]string{string(c.Kind), c.Path, shortDigest(c), currentOrReason(c)})
	}
	table.Render()
	return nil
}

func shortDigest(c drift.Change) string {
	if c.Baseline.IsZero() {
		return "-"
	}
	return c.Baseline.String()[:16]
}

func currentOrReason(c drift.Change) string {
	switch {
	case c.Reason != "":
		return c.Reason
	case c.Current.IsZero():
		return "-"
	default:
		return c.Current.String()[:16]
	}
}
