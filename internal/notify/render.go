package notify

import (
	"fmt"
	"strings"
	"time"

	"fimwatch/internal/drift"
	"fimwatch/internal/report"
)

// Subject returns a one-line summary of res.
func Subject(res *drift.ScanResult) string {
	return fmt.Sprintf("[ALERT] Integrity drift in %s: %d modified, %d new, %d missing",
		res.Root, len(res.Modified), len(res.New), len(res.Missing))
}

// Body renders res as Markdown, listing every drifted path with the recorded
// and current digests.
func Body(res *drift.ScanResult) string {
	return renderBody(report.NewEntry(res))
}

// EntryBody renders a journal entry like Body.
func EntryBody(e report.Entry) string { return renderBody(e) }

func renderBody(e report.Entry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Integrity drift in `%s`\n\n", e.Root)
	fmt.Fprintf(&b, "Scan `%s` finished %s: **%d modified**, **%d new**, **%d missing**, %d unchanged.\n",
		e.ID, e.FinishedAt.Format(time.RFC3339),
		len(e.Modified), len(e.New), len(e.Missing), e.Unchanged)

	for _, section := range []struct {
		title string
		kind  drift.Kind
	}{
		{"Modified", drift.Modified},
		{"New", drift.New},
		{"Missing", drift.Missing},
	} {
		var wrote bool
		for _, c := range e.Changes {
			if c.Kind != section.kind {
				continue
			}
			if !wrote {
				fmt.Fprintf(&b, "\n## %s\n\n", section.title)
				wrote = true
			}
			fmt.Fprintf(&b, "- `%s`\n", c.Path)
			if !c.Baseline.IsZero() {
				fmt.Fprintf(&b, "  - baseline: `%s`\n", c.Baseline)
			}
			if !c.Current.IsZero() {
				fmt.Fprintf(&b, "  - current: `%s`\n", c.Current)
			}
			if c.Reason != "" {
				fmt.Fprintf(&b, "  - reason: %s\n", c.Reason)
			}
		}
	}

	if e.Drift {
		b.WriteString("\nThe baseline was not updated. Run `fimwatch update` once the changes are confirmed legitimate.\n")
	}
	return b.String()
}
