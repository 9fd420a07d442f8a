package baseline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Backend names accepted by Open.
const (
	BackendAuto   = ""
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Options configure Open.
type Options struct {
	// Backend selects the store. BackendAuto picks SQLite for .db, .sqlite
	// and .sqlite3 paths and JSON for everything else.
	Backend string
	// Retain is the number of replaced baselines kept for AsOf queries.
	Retain int
	// Fs is used by the JSON backend. Nil uses the OS filesystem.
	Fs afero.Fs
}

// Open returns the Store persisting to path.
func Open(path string, opts Options) (Store, error) {
	switch ResolveBackend(path, opts.Backend) {
	case BackendSQLite:
		return OpenSQLite(path, opts.Retain)
	case BackendJSON:
		return NewJSONStore(opts.Fs, path, opts.Retain), nil
	default:
		return nil, fmt.Errorf("unknown baseline backend %q", opts.Backend)
	}
}

// ResolveBackend returns the backend Open would use for path.
func ResolveBackend(path, backend string) string {
	if backend != BackendAuto {
		return backend
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return BackendSQLite
	default:
		return BackendJSON
	}
}
