// Package report keeps an append-only JSON-lines journal of scan results.
package report

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fimwatch/internal/drift"

	"github.com/spf13/afero"
	log "github.com/sirupsen/logrus"
)

// Entry is one journal line. Unchanged paths are counted, not listed.
type Entry struct {
	ID         string         `json:"id"`
	Root       string         `json:"root"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Drift      bool           `json:"drift"`
	Unchanged  int            `json:"unchanged"`
	Modified   []string       `json:"modified"`
	New        []string       `json:"new"`
	Missing    []string       `json:"missing"`
	Changes    []drift.Change `json:"changes,omitempty"`
}

// NewEntry summarises res.
func NewEntry(res *drift.ScanResult) Entry {
	return Entry{
		ID:         res.ID,
		Root:       res.Root,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Drift:      res.HasDrift(),
		Unchanged:  len(res.Unchanged),
		Modified:   res.Modified,
		New:        res.New,
		Missing:    res.Missing,
		Changes:    res.Changes,
	}
}

// Journal appends entries to a file, one JSON document per line.
type Journal struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewJournal returns a Journal writing to path on fsys. A nil fsys uses the
// OS filesystem.
func NewJournal(fsys afero.Fs, path string) *Journal {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Journal{fs: fsys, path: path}
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// Append writes res as a new line.
func (j *Journal) Append(res *drift.ScanResult) error {
	line, err := json.Marshal(NewEntry(res))
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.fs.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	f, err := j.fs.OpenFile(j.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append report: %w", err)
	}
	return f.Close()
}

// Scan calls fn with every entry, oldest first. A missing journal yields no
// entries. Lines which fail to parse are skipped.
func (j *Journal) Scan(fn func(Entry)) error {
	f, err := j.fs.Open(j.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for lineno := 1; scanner.Scan(); lineno++ {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			log.WithFields(log.Fields{"path": j.path, "line": lineno, "err": err}).
				Warn("skipping unreadable report line")
			continue
		}
		fn(e)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read report: %w", err)
	}
	return nil
}

// Tail returns the last n entries, oldest first.
func (j *Journal) Tail(n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	var ring []Entry
	var next int // Oldest entry once the ring is full.
	err := j.Scan(func(e Entry) {
		if len(ring) < n {
			ring = append(ring, e)
			return
		}
		ring[next] = e
		next = (next + 1) % n
	})
	if err != nil {
		return nil, err
	}
	return append(ring[next:len(ring):len(ring)], ring[:next]...), nil
}

// Latest returns the most recent entry, or ok == false if the journal is
// empty.
func (j *Journal) Latest() (e Entry, ok bool, err error) {
	entries, err := j.Tail(1)
	if err != nil || len(entries) == 0 {
		return Entry{}, false, err
	}
	return entries[0], true, nil
}

// LastAnomaly returns the most recent entry which carried drift, or
// ok == false if there is none.
func (j *Journal) LastAnomaly() (e Entry, ok bool, err error) {
	err = j.Scan(func(entry Entry) {
		if entry.Drift {
			e, ok = entry, true
		}
	})
	if err != nil {
		return Entry{}, false, err
	}
	return e, ok, nil
}
