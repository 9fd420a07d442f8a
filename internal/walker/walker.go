// Package walker enumerates the regular files under a monitored root.
//
// Traversal policy: the tree is walked recursively; only regular files are
// emitted. Symbolic links are skipped and never followed, whether they point
// at files or directories. Sockets, pipes and devices are skipped. Hidden
// files are monitored like any other file. Directories and files whose name
// or root-relative path matches an exclude pattern are pruned. Internal paths
// are pruned only where they sit relative to the root.
package walker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// IgnoreFile is read from the root of the monitored tree when present.
const IgnoreFile = ".fimwatchignore"

// FileInfo holds metadata about a discovered file.
type FileInfo struct {
	Path    string
	RelPath string
	Size    int64
}

// Options tune a walk.
type Options struct {
	// Exclude holds exact names, root-relative path prefixes or globs.
	Exclude []string
	// Internal holds root-relative paths of state owned by the monitor
	// itself. An entry matches that exact path or anything below it, and is
	// never matched by name at another depth.
	Internal []string
	// Fs is walked instead of the OS filesystem when set. Symlinks are only
	// recognised on filesystems implementing afero.Lstater.
	Fs afero.Fs
}

func (o Options) fs() afero.Fs {
	if o.Fs == nil {
		return afero.NewOsFs()
	}
	return o.Fs
}

// Walk traverses the directory tree rooted at root and sends discovered
// regular files on the returned channel. The error channel receives at most
// one error, when the root itself cannot be walked or ctx is cancelled.
// Unreadable subdirectories are skipped.
func Walk(ctx context.Context, root string, opts Options) (<-chan FileInfo, <-chan error) {
	files := make(chan FileInfo, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(files)
		defer close(errs)

		absRoot, err := filepath.Abs(root)
		if err != nil {
			errs <- err
			return
		}
		fsys := opts.fs()
		info, err := fsys.Stat(absRoot)
		if err != nil {
			errs <- fmt.Errorf("stat root: %w", err)
			return
		}
		if !info.IsDir() {
			errs <- fmt.Errorf("root %s is not a directory", absRoot)
			return
		}

		ignores := append(loadIgnorePatterns(fsys, absRoot), opts.Exclude...)

		err = afero.Walk(fsys, absRoot, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if path == absRoot {
					return err
				}
				return nil // skip unreadable entries, keep walking
			}
			if path == absRoot {
				return nil
			}

			rel, _ := filepath.Rel(absRoot, path)
			rel = filepath.ToSlash(rel)

			if matchesInternal(rel, opts.Internal) || matchesIgnore(info.Name(), rel, ignores) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if info.IsDir() {
				return nil
			}

			// Symlinks, devices, sockets and pipes.
			if !info.Mode().IsRegular() {
				return nil
			}

			select {
			case files <- FileInfo{Path: path, RelPath: rel, Size: info.Size()}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			errs <- err
		}
	}()

	return files, errs
}

// Collect drains a Walk into a slice sorted by RelPath.
func Collect(ctx context.Context, root string, opts Options) ([]FileInfo, error) {
	fileCh, errCh := Walk(ctx, root, opts)

	var out []FileInfo
	for fi := range fileCh {
		out = append(out, fi)
	}
	if err := <-errCh; err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })
	return out, nil
}

// loadIgnorePatterns reads IgnoreFile from the root. A missing file yields no
// patterns. The file is never created: doing so would add a file to the tree
// under watch.
func loadIgnorePatterns(fsys afero.Fs, root string) []string {
	f, err := fsys.Open(filepath.Join(root, IgnoreFile))
	if err != nil {
		return nil
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// matchesInternal reports whether relPath is, or lies below, one of paths.
func matchesInternal(relPath string, paths []string) bool {
	for _, p := range paths {
		p = strings.TrimSuffix(p, "/")
		if relPath == p || strings.HasPrefix(relPath, p+"/") {
			return true
		}
	}
	return false
}

// matchesIgnore checks if a name or relative path matches any ignore pattern.
func matchesIgnore(name, relPath string, patterns []string) bool {
	for _, p := range patterns {
		// Exact name match (e.g. ".fimwatch", ".git").
		if name == p {
			return true
		}
		// Path prefix match on a segment boundary (e.g. "var/cache").
		if relPath == p || strings.HasPrefix(relPath, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
		if matched, _ := filepath.Match(p, relPath); matched {
			return true
		}
		if matched, _ := filepath.Match(p, name); matched {
			return true
		}
	}
	return false
}
