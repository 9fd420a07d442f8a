package tui

import (
	"fmt"
	"strings"
	"time"

	"fimwatch/internal/dashboard"

	"github.com/dustin/go-humanize"
)

// maxListed bounds the paths shown per classification.
const maxListed = 8

type statusModel struct {
	summary dashboard.Summary
	ready   bool
}

func (m statusModel) View() string {
	var b strings.Builder
	b.WriteString("\n")

	if !m.ready {
		b.WriteString(dimStyle.Render("  Loading status...") + "\n")
		return b.String()
	}
	s := m.summary

	switch {
	case s.BaselineCorrupt:
		b.WriteString(errorStyle.Render("  ✗ Baseline is corrupt; run `fimwatch update`") + "\n")
	case s.Baseline == nil:
		b.WriteString(warnStyle.Render("  ✗ No baseline recorded") + "\n")
	case s.LastScan == nil:
		b.WriteString(dimStyle.Render("  No scan recorded yet") + "\n")
	case s.Corrupted > 0:
		b.WriteString(warnStyle.Render(fmt.Sprintf("  ⚠ %d file(s) drifted", s.Corrupted)) + "\n")
	default:
		b.WriteString(successStyle.Render("  ✓ All files verified") + "\n")
	}
	b.WriteString("\n")

	row := func(label, value string) {
		b.WriteString("  " + labelStyle.Render(label) + value + "\n")
	}
	row("Root", s.Root)
	if s.Baseline != nil {
		row("Baseline", fmt.Sprintf("%d files, %s, recorded %s",
			s.Baseline.Files, humanize.Bytes(uint64(s.Baseline.TotalBytes)), relTime(s.Baseline.CreatedAt)))
	}
	row("Verified", fmt.Sprintf("%d", s.Safe))
	row("Drifted", fmt.Sprintf("%d", s.Corrupted))
	if s.LastScan != nil {
		row("Last scan", relTime(*s.LastScan))
	}
	if s.LastAnomaly != nil {
		row("Last anomaly", relTime(*s.LastAnomaly))
	}
	if s.Cycles != 0 {
		row("Cycles", fmt.Sprintf("%d", s.Cycles))
	}
	if s.LastError != "" {
		row("Last error", errorStyle.Render(s.LastError))
	}

	for _, group := range []struct {
		kind  string
		paths []string
	}{
		{"modified", s.Modified},
		{"new", s.New},
		{"missing", s.Missing},
	} {
		if len(group.paths) == 0 {
			continue
		}
		style := kindStyles[group.kind]
		b.WriteString("\n  " + style.Render(fmt.Sprintf("%s (%d)", group.kind, len(group.paths))) + "\n")
		for i, p := range group.paths {
			if i == maxListed {
				b.WriteString(dimStyle.Render(fmt.Sprintf("    … %d more", len(group.paths)-maxListed)) + "\n")
				break
			}
			b.WriteString("    " + p + "\n")
		}
	}
	return b.String()
}

func relTime(t time.Time) string {
	return fmt.Sprintf("%s (%s)", humanize.Time(t), t.Local().Format(time.DateTime))
}
