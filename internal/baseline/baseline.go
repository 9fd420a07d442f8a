// Package baseline persists the trusted record of file fingerprints that
// scans are compared against.
//
// A Store always holds either the previous complete baseline or the new
// complete baseline: JSONStore writes a temporary file and renames it into
// place, SQLiteStore writes each generation inside a single transaction.
package baseline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"fimwatch/internal/fingerprint"
)

// ErrNoBaseline is returned by Load and AsOf when no baseline was recorded.
// It is the first-run condition: callers create a baseline and continue.
var ErrNoBaseline = errors.New("no baseline recorded")

// CorruptError reports a persisted baseline which could not be parsed or
// failed validation. It is never repaired automatically.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("baseline %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// FileRecord is the recorded fingerprint of one monitored file.
type FileRecord struct {
	// Path is slash-separated and relative to the monitored root.
	Path        string             `json:"path"`
	Digest      fingerprint.Digest `json:"digest"`
	Size        int64              `json:"size"`
	LastChecked time.Time          `json:"last_checked"`
}

// Baseline maps monitored paths to their recorded fingerprints.
type Baseline struct {
	Root      string
	CreatedAt time.Time
	Files     map[string]FileRecord
}

// New returns an empty Baseline for root.
func New(root string, createdAt time.Time) *Baseline {
	return &Baseline{
		Root:      root,
		CreatedAt: createdAt.UTC(),
		Files:     make(map[string]FileRecord),
	}
}

// Add inserts or replaces the record for r.Path.
func (b *Baseline) Add(r FileRecord) { b.Files[r.Path] = r }

// Get returns the record for path.
func (b *Baseline) Get(path string) (FileRecord, bool) {
	r, ok := b.Files[path]
	return r, ok
}

// Len returns the number of recorded files.
func (b *Baseline) Len() int { return len(b.Files) }

// Paths returns the recorded paths in sorted order.
func (b *Baseline) Paths() []string {
	out := make([]string, 0, len(b.Files))
	for p := range b.Files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Records returns the recorded files sorted by path.
func (b *Baseline) Records() []FileRecord {
	out := make([]FileRecord, 0, len(b.Files))
	for _, p := range b.Paths() {
		out = append(out, b.Files[p])
	}
	return out
}

// TotalSize sums the recorded sizes.
func (b *Baseline) TotalSize() int64 {
	var n int64
	for _, r := range b.Files {
		n += r.Size
	}
	return n
}

// Equal reports whether b and o hold the same set of records. Record order
// and time zones are irrelevant.
func (b *Baseline) Equal(o *Baseline) bool {
	if b.Root != o.Root || !b.CreatedAt.Equal(o.CreatedAt) || len(b.Files) != len(o.Files) {
		return false
	}
	for p, r := range b.Files {
		or, ok := o.Files[p]
		if !ok || r.Path != or.Path || r.Digest != or.Digest || r.Size != or.Size || !r.LastChecked.Equal(or.LastChecked) {
			return false
		}
	}
	return true
}

// Validate checks the invariants a loaded baseline must satisfy.
func (b *Baseline) Validate() error {
	if b.Files == nil {
		return errors.New("missing files")
	}
	for p, r := range b.Files {
		if p == "" {
			return errors.New("empty path")
		}
		if r.Path != p {
			return fmt.Errorf("record %q filed under %q", r.Path, p)
		}
		if r.Digest.IsZero() {
			return fmt.Errorf("record %q has no digest", p)
		}
		if r.Size < 0 {
			return fmt.Errorf("record %q has negative size", p)
		}
	}
	return nil
}

// Generation describes one retained baseline snapshot.
type Generation struct {
	CreatedAt time.Time `json:"created_at"`
	Root      string    `json:"root"`
	Files     int       `json:"files"`
}

// Store persists baselines.
type Store interface {
	// Load returns the current baseline, ErrNoBaseline if none exists, or a
	// *CorruptError if it cannot be read back.
	Load(ctx context.Context) (*Baseline, error)
	// Save atomically replaces the current baseline.
	Save(ctx context.Context, b *Baseline) error
	// AsOf returns the baseline that was current at t.
	AsOf(ctx context.Context, t time.Time) (*Baseline, error)
	// History lists retained generations, newest first.
	History(ctx context.Context) ([]Generation, error)
	// Close releases resources.
	Close() error
}
