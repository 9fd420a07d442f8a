// Package dashboard exposes read-only views of a monitored root: its
// baseline, recent results and the security log.
package dashboard

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"fimwatch/internal/baseline"
	"fimwatch/internal/monitor"
	"fimwatch/internal/report"
)

// Sources are the state a dashboard reads. Store is required; the others
// are optional.
type Sources struct {
	Root    string
	Store   baseline.Store
	Journal *report.Journal
	// Monitor, when set, supplies live status of a running watch.
	Monitor *monitor.Monitor
	LogFile string
}

// BaselineInfo describes the current baseline.
type BaselineInfo struct {
	CreatedAt  time.Time `json:"created_at"`
	Files      int       `json:"files"`
	TotalBytes int64     `json:"total_bytes"`
}

// Summary is the status view. Safe and Corrupted count the verified and
// drifted paths of the most recent scan.
type Summary struct {
	Root            string        `json:"root"`
	Safe            int           `json:"safe"`
	Corrupted       int           `json:"corrupted"`
	Modified        []string      `json:"modified"`
	New             []string      `json:"new"`
	Missing         []string      `json:"missing"`
	LastScan        *time.Time    `json:"last_scan"`
	LastAnomaly     *time.Time    `json:"last_anomaly"`
	Cycles          int           `json:"cycles"`
	LastError       string        `json:"last_error,omitempty"`
	Baseline        *BaselineInfo `json:"baseline"`
	BaselineCorrupt bool          `json:"baseline_corrupt"`
}

// Summary assembles the status view.
func (s Sources) Summary(ctx context.Context) (Summary, error) {
	out := Summary{Root: s.Root, Modified: []string{}, New: []string{}, Missing: []string{}}

	b, err := s.Store.Load(ctx)
	var corrupt *baseline.CorruptError
	switch {
	case err == nil:
		out.Baseline = &BaselineInfo{CreatedAt: b.CreatedAt, Files: b.Len(), TotalBytes: b.TotalSize()}
	case errors.Is(err, baseline.ErrNoBaseline):
	case errors.As(err, &corrupt):
		out.BaselineCorrupt = true
	default:
		return out, fmt.Errorf("load baseline: %w", err)
	}

	if s.Monitor != nil {
		st := s.Monitor.Status()
		out.Cycles = st.Cycles
		out.LastError = st.LastError
		out.BaselineCorrupt = out.BaselineCorrupt || st.Corrupted
		if !st.LastAnomaly.IsZero() {
			out.LastAnomaly = timePtr(st.LastAnomaly)
		}
		if res := st.LastResult; res != nil {
			out.Safe, out.Corrupted = len(res.Unchanged), res.Drifted()
			out.Modified, out.New, out.Missing = res.Modified, res.New, res.Missing
			out.LastScan = timePtr(res.FinishedAt)
		}
		return out, nil
	}

	if s.Journal == nil {
		return out, nil
	}
	if e, ok, err := s.Journal.Latest(); err != nil {
		return out, err
	} else if ok {
		out.Safe = e.Unchanged
		out.Corrupted = len(e.Modified) + len(e.New) + len(e.Missing)
		out.Modified, out.New, out.Missing = e.Modified, e.New, e.Missing
		out.LastScan = timePtr(e.FinishedAt)
	}
	if e, ok, err := s.Journal.LastAnomaly(); err != nil {
		return out, err
	} else if ok {
		out.LastAnomaly = timePtr(e.FinishedAt)
	}
	return out, nil
}

// BaselineView is a baseline, optionally filtered to a path prefix.
type BaselineView struct {
	Root      string                `json:"root"`
	CreatedAt time.Time             `json:"created_at"`
	Files     []baseline.FileRecord `json:"files"`
}

// Baseline returns the baseline current at asOf, or the latest if asOf is
// zero, keeping records whose path starts with prefix.
func (s Sources) Baseline(ctx context.Context, asOf time.Time, prefix string) (*BaselineView, error) {
	var b *baseline.Baseline
	var err error
	if asOf.IsZero() {
		b, err = s.Store.Load(ctx)
	} else {
		b, err = s.Store.AsOf(ctx, asOf)
	}
	if err != nil {
		return nil, err
	}

	view := &BaselineView{Root: b.Root, CreatedAt: b.CreatedAt, Files: []baseline.FileRecord{}}
	for _, r := range b.Records() {
		if strings.HasPrefix(r.Path, prefix) {
			view.Files = append(view.Files, r)
		}
	}
	sort.Slice(view.Files, func(i, j int) bool { return view.Files[i].Path < view.Files[j].Path })
	return view, nil
}

// ErrNoLogFile is returned by Logs when no security log is configured.
var ErrNoLogFile = errors.New("no log file configured")

// Logs returns the last n lines of the security log.
func (s Sources) Logs(n int) ([]string, error) {
	if s.LogFile == "" {
		return nil, ErrNoLogFile
	}
	f, err := os.Open(s.LogFile)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	lines := []string{}
	if n <= 0 {
		return lines, nil
	}
	var next int // Oldest line once the ring is full.
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if len(lines) < n {
			lines = append(lines, scanner.Text())
			continue
		}
		lines[next] = scanner.Text()
		next = (next + 1) % n
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return append(lines[next:len(lines):len(lines)], lines[:next]...), nil
}

func timePtr(t time.Time) *time.Time { return &t }
