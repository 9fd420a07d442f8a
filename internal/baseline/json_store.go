package baseline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const jsonVersion = 1

// HistoryDir is the directory, next to a JSON baseline, holding archived
// generations.
const HistoryDir = "history"

// jsonDocument is the on-disk encoding of a Baseline.
type jsonDocument struct {
	Version   int                   `json:"version"`
	Root      string                `json:"root"`
	CreatedAt time.Time             `json:"created_at"`
	Files     map[string]FileRecord `json:"files"`
	// RawFiles holds records whose path is not valid UTF-8 and so cannot
	// survive a JSON string. Keys are the base64url encoding of the path.
	RawFiles map[string]FileRecord `json:"raw_files,omitempty"`
}

var rawPathEncoding = base64.RawURLEncoding

// splitFiles files records under Files or, for paths which are not valid
// UTF-8, RawFiles.
func (doc *jsonDocument) splitFiles(files map[string]FileRecord) {
	doc.Files = make(map[string]FileRecord, len(files))
	for p, r := range files {
		if utf8.ValidString(p) {
			doc.Files[p] = r
			continue
		}
		if doc.RawFiles == nil {
			doc.RawFiles = make(map[string]FileRecord)
		}
		r.Path = ""
		doc.RawFiles[rawPathEncoding.EncodeToString([]byte(p))] = r
	}
}

// mergeFiles is the inverse of splitFiles.
func (doc *jsonDocument) mergeFiles() (map[string]FileRecord, error) {
	if len(doc.RawFiles) == 0 {
		return doc.Files, nil
	}
	files := make(map[string]FileRecord, len(doc.Files)+len(doc.RawFiles))
	for p, r := range doc.Files {
		files[p] = r
	}
	for key, r := range doc.RawFiles {
		raw, err := rawPathEncoding.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("raw path %q: %w", key, err)
		}
		p := string(raw)
		if _, dup := files[p]; dup {
			return nil, fmt.Errorf("raw path %q recorded twice", key)
		}
		r.Path = p
		files[p] = r
	}
	return files, nil
}

// JSONStore is a Store which materializes the baseline as a single JSON
// document, re-written in full on every Save. Replaced documents are kept
// under a sibling "history" directory for AsOf queries.
type JSONStore struct {
	fs     afero.Fs
	path   string
	retain int

	mu sync.Mutex
}

var _ Store = &JSONStore{} // JSONStore is-a Store.

// NewJSONStore returns a JSONStore persisting to path on fs, keeping at most
// retain replaced documents. A nil fs uses the OS filesystem.
func NewJSONStore(fs afero.Fs, path string, retain int) *JSONStore {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &JSONStore{fs: fs, path: path, retain: retain}
}

// Path returns the location of the current document.
func (s *JSONStore) Path() string { return s.path }

func (s *JSONStore) Load(ctx context.Context) (*Baseline, error) {
	return s.read(s.path)
}

func (s *JSONStore) read(path string) (*Baseline, error) {
	data, err := afero.ReadFile(s.fs, path)
	if os.IsNotExist(err) {
		return nil, ErrNoBaseline
	} else if err != nil {
		return nil, fmt.Errorf("read baseline: %w", err)
	}

	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	if doc.Version != jsonVersion {
		return nil, &CorruptError{Path: path, Err: fmt.Errorf("unsupported version %d", doc.Version)}
	}

	files, err := doc.mergeFiles()
	if err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	b := &Baseline{Root: doc.Root, CreatedAt: doc.CreatedAt, Files: files}
	if err := b.Validate(); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	return b, nil
}

// Save commits by writing the complete baseline to a temporary file, and then
// atomically moving it to the well-known location. A crash mid-write leaves
// the previous document in place.
func (s *JSONStore) Save(ctx context.Context, b *Baseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := jsonDocument{
		Version:   jsonVersion,
		Root:      b.Root,
		CreatedAt: b.CreatedAt.UTC(),
	}
	doc.splitFiles(b.Files)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal baseline: %w", err)
	}

	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create baseline directory: %w", err)
	}
	if s.retain > 0 {
		if err := s.archiveCurrent(); err != nil {
			// The archive serves AsOf queries only; the save proceeds.
			log.WithFields(log.Fields{"path": s.path, "err": err}).Warn("failed to archive previous baseline")
		}
	}

	// O_TRUNC rather than O_EXCL: a leftover next file is from a save which
	// never reached its rename, and is discarded.
	f, err := s.fs.OpenFile(s.nextPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create baseline file: %w", err)
	}
	if _, err = f.Write(data); err != nil {
		err = fmt.Errorf("write baseline: %w", err)
	} else if err = f.Sync(); err != nil {
		err = fmt.Errorf("sync baseline: %w", err)
	}
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close baseline: %w", closeErr)
	}
	if err != nil {
		_ = s.fs.Remove(s.nextPath())
		return err
	}
	if err := s.fs.Rename(s.nextPath(), s.path); err != nil {
		return fmt.Errorf("rename next => current: %w", err)
	}
	return nil
}

func (s *JSONStore) AsOf(ctx context.Context, t time.Time) (*Baseline, error) {
	current, err := s.Load(ctx)
	if errors.Is(err, ErrNoBaseline) {
		return nil, ErrNoBaseline
	} else if err != nil {
		return nil, err
	}
	if !current.CreatedAt.After(t) {
		return current, nil
	}

	var best *Baseline
	for _, path := range s.historyPaths() {
		b, err := s.read(path)
		if err != nil {
			log.WithFields(log.Fields{"path": path, "err": err}).Debug("skipping unreadable archived baseline")
			continue
		}
		if b.CreatedAt.After(t) {
			continue
		}
		if best == nil || b.CreatedAt.After(best.CreatedAt) {
			best = b
		}
	}
	if best == nil {
		return nil, ErrNoBaseline
	}
	return best, nil
}

func (s *JSONStore) History(ctx context.Context) ([]Generation, error) {
	current, err := s.Load(ctx)
	if errors.Is(err, ErrNoBaseline) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	out := []Generation{{CreatedAt: current.CreatedAt, Root: current.Root, Files: current.Len()}}
	for _, path := range s.historyPaths() {
		if b, err := s.read(path); err == nil {
			out = append(out, Generation{CreatedAt: b.CreatedAt, Root: b.Root, Files: b.Len()})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *JSONStore) Close() error { return nil }

// archiveCurrent copies the current document into the history directory and
// prunes archives beyond the retention limit.
func (s *JSONStore) archiveCurrent() error {
	data, err := afero.ReadFile(s.fs, s.path)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}

	if err := s.fs.MkdirAll(s.historyDir(), 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("baseline-%020d.json", time.Now().UnixNano())
	if err := afero.WriteFile(s.fs, filepath.Join(s.historyDir(), name), data, 0o600); err != nil {
		return err
	}

	paths := s.historyPaths()
	for i := s.retain; i < len(paths); i++ {
		if err := s.fs.Remove(paths[i]); err != nil {
			return fmt.Errorf("remove old archive %s: %w", paths[i], err)
		}
	}
	return nil
}

// historyPaths returns archived documents, newest first.
func (s *JSONStore) historyPaths() []string {
	entries, err := afero.ReadDir(s.fs, s.historyDir())
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "baseline-") && filepath.Ext(e.Name()) == ".json" {
			out = append(out, filepath.Join(s.historyDir(), e.Name()))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}

func (s *JSONStore) nextPath() string   { return s.path + ".next" }
func (s *JSONStore) historyDir() string { return filepath.Join(filepath.Dir(s.path), HistoryDir) }
