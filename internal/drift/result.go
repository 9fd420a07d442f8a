package drift

import (
	"sort"
	"time"

	"fimwatch/internal/fingerprint"
)

// Kind classifies a monitored path in one scan.
type Kind string

const (
	Unchanged Kind = "unchanged"
	Modified  Kind = "modified"
	New       Kind = "new"
	Missing   Kind = "missing"
)

// Change describes one drifted path.
type Change struct {
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
	// Baseline is the recorded digest; zero for new files.
	Baseline fingerprint.Digest `json:"baseline,omitzero"`
	// Current is the digest read during the scan; zero when the file is
	// gone or could not be read.
	Current fingerprint.Digest `json:"current,omitzero"`
	// Reason is set when a file could not be read.
	Reason string `json:"reason,omitempty"`
}

// ScanResult partitions baseline ∪ current paths into four disjoint, sorted
// sets.
type ScanResult struct {
	ID         string    `json:"id"`
	Root       string    `json:"root"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Unchanged []string `json:"unchanged"`
	Modified  []string `json:"modified"`
	New       []string `json:"new"`
	Missing   []string `json:"missing"`

	// Changes holds one entry per path in Modified, New and Missing.
	Changes []Change `json:"changes,omitempty"`
}

// HasDrift reports whether any path was modified, added or removed.
func (r *ScanResult) HasDrift() bool {
	return len(r.Modified)+len(r.New)+len(r.Missing) != 0
}

// Total returns the number of classified paths.
func (r *ScanResult) Total() int {
	return len(r.Unchanged) + len(r.Modified) + len(r.New) + len(r.Missing)
}

// Drifted returns the number of modified, new and missing paths.
func (r *ScanResult) Drifted() int {
	return len(r.Modified) + len(r.New) + len(r.Missing)
}

// Classify returns the Kind of path, and false if path was not scanned.
func (r *ScanResult) Classify(path string) (Kind, bool) {
	for _, set := range []struct {
		kind  Kind
		paths []string
	}{
		{Unchanged, r.Unchanged},
		{Modified, r.Modified},
		{New, r.New},
		{Missing, r.Missing},
	} {
		if i := sort.SearchStrings(set.paths, path); i < len(set.paths) && set.paths[i] == path {
			return set.kind, true
		}
	}
	return "", false
}

// Duration is the wall time spent scanning.
func (r *ScanResult) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }
