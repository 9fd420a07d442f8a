package drift

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"fimwatch/internal/baseline"
	"fimwatch/internal/fingerprint"
	"fimwatch/internal/walker"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func rebuild(t *testing.T, root string) *baseline.Baseline {
	t.Helper()
	b, err := baseline.Rebuild(context.Background(), root, baseline.RebuildOptions{})
	require.NoError(t, err)
	return b
}

func detect(t *testing.T, base *baseline.Baseline, root string) *ScanResult {
	t.Helper()
	res, err := NewDetector(Config{}).Detect(context.Background(), base, root)
	require.NoError(t, err)
	requirePartition(t, base, root, res)
	return res
}

// requirePartition asserts that the four sets are disjoint and cover
// exactly baseline ∪ disk.
func requirePartition(t *testing.T, base *baseline.Baseline, root string, res *ScanResult) {
	t.Helper()

	files, err := walker.Collect(context.Background(), root, walker.Options{})
	require.NoError(t, err)

	want := map[string]struct{}{}
	for _, p := range base.Paths() {
		want[p] = struct{}{}
	}
	for _, f := range files {
		want[f.RelPath] = struct{}{}
	}

	seen := map[string]Kind{}
	for kind, set := range map[Kind][]string{
		Unchanged: res.Unchanged, Modified: res.Modified, New: res.New, Missing: res.Missing,
	} {
		require.True(t, sort.StringsAreSorted(set), "%s not sorted", kind)
		for _, p := range set {
			prev, dup := seen[p]
			require.False(t, dup, "%s is both %s and %s", p, prev, kind)
			seen[p] = kind
		}
	}
	require.Len(t, seen, len(want))
	for p := range want {
		require.Contains(t, seen, p)
	}
	require.Len(t, res.Changes, res.Drifted())
}

func TestDetectScenarioEditAndAdd(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "digestA", "b.txt": "digestB"})
	base := rebuild(t, root)

	writeTree(t, root, map[string]string{"b.txt": "edited", "c.txt": "added"})
	res := detect(t, base, root)

	require.Equal(t, []string{"a.txt"}, res.Unchanged)
	require.Equal(t, []string{"b.txt"}, res.Modified)
	require.Equal(t, []string{"c.txt"}, res.New)
	require.Empty(t, res.Missing)
	require.True(t, res.HasDrift())

	require.Equal(t, []Change{
		{Path: "b.txt", Kind: Modified, Baseline: fingerprint.Sum([]byte("digestB")), Current: fingerprint.Sum([]byte("edited"))},
		{Path: "c.txt", Kind: New, Current: fingerprint.Sum([]byte("added"))},
	}, res.Changes)
}

func TestDetectScenarioDelete(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "A", "b.txt": "B"})
	base := rebuild(t, root)

	require.NoError(t, os.Remove(filepath.Join(root, "b.txt")))
	res := detect(t, base, root)

	require.Equal(t, []string{"b.txt"}, res.Missing)
	require.Equal(t, []string{"a.txt"}, res.Unchanged)
	require.Equal(t, []Change{{Path: "b.txt", Kind: Missing, Baseline: fingerprint.Sum([]byte("B"))}}, res.Changes)
}

func TestDetectDeletedDirectoryMarksEveryFileMissing(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"keep": "k", "d/x": "x", "d/e/y": "y"})
	base := rebuild(t, root)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "d")))
	res := detect(t, base, root)

	require.Equal(t, []string{"d/e/y", "d/x"}, res.Missing)
	require.Equal(t, []string{"keep"}, res.Unchanged)
}

func TestDetectIsIdempotentWithoutChanges(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a": "1", "b/c": "2", "b/d": ""})
	base := rebuild(t, root)

	first := detect(t, base, root)
	second := detect(t, base, root)

	require.False(t, first.HasDrift())
	require.Equal(t, []string{"a", "b/c", "b/d"}, first.Unchanged)
	require.Equal(t, first.Unchanged, second.Unchanged)
	require.Equal(t, first.Modified, second.Modified)
	require.Equal(t, first.New, second.New)
	require.Equal(t, first.Missing, second.Missing)
	require.NotEqual(t, first.ID, second.ID)
}

func TestDetectSameSizeContentChange(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"cfg": "mode=off"})
	base := rebuild(t, root)

	// Same length, same mtime: only the digest tells.
	info, err := os.Stat(filepath.Join(root, "cfg"))
	require.NoError(t, err)
	writeTree(t, root, map[string]string{"cfg": "mode=onn"})
	require.NoError(t, os.Chtimes(filepath.Join(root, "cfg"), info.ModTime(), info.ModTime()))

	res := detect(t, base, root)
	require.Equal(t, []string{"cfg"}, res.Modified)
}

// failingFs fails to open one path.
type failingFs struct {
	afero.Fs
	fail string
}

func (f failingFs) Open(name string) (afero.File, error) {
	if name == f.fail {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return f.Fs.Open(name)
}

func TestDetectUnreadableFileIsMissing(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"ok": "fine", "locked": "secret"})
	base := rebuild(t, root)

	lockedPath, err := filepath.Abs(filepath.Join(root, "locked"))
	require.NoError(t, err)

	det := NewDetector(Config{
		Fingerprinter: fingerprint.New(failingFs{Fs: afero.NewOsFs(), fail: lockedPath}),
	})
	res, err := det.Detect(context.Background(), base, root)
	require.NoError(t, err)
	requirePartition(t, base, root, res)

	require.Equal(t, []string{"locked"}, res.Missing)
	require.Equal(t, []string{"ok"}, res.Unchanged)
	require.Len(t, res.Changes, 1)
	require.Contains(t, res.Changes[0].Reason, "permission denied")
	require.True(t, res.Changes[0].Current.IsZero())
}

func TestDetectUnreadableNewFileStaysNew(t *testing.T) {
	root := t.TempDir()
	base := rebuild(t, root)
	writeTree(t, root, map[string]string{"dropped": "payload"})

	droppedPath, err := filepath.Abs(filepath.Join(root, "dropped"))
	require.NoError(t, err)

	det := NewDetector(Config{
		Fingerprinter: fingerprint.New(failingFs{Fs: afero.NewOsFs(), fail: droppedPath}),
	})
	res, err := det.Detect(context.Background(), base, root)
	require.NoError(t, err)
	require.Equal(t, []string{"dropped"}, res.New)
	require.NotEmpty(t, res.Changes[0].Reason)
}

func TestDetectSkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"real": "r"})
	base := rebuild(t, root)

	if err := os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "alias")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	res := detect(t, base, root)
	require.False(t, res.HasDrift())
}

func TestDetectMissingRoot(t *testing.T) {
	root := t.TempDir()
	base := rebuild(t, root)

	_, err := NewDetector(Config{}).Detect(context.Background(), base, filepath.Join(root, "gone"))
	require.Error(t, err)
}

func TestDetectStampsTimes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a": "a"})
	base := rebuild(t, root)

	var ticks int
	now := func() time.Time {
		ticks++
		return time.Date(2024, 1, 1, 0, 0, ticks, 0, time.UTC)
	}
	res, err := NewDetector(Config{Now: now}).Detect(context.Background(), base, root)
	require.NoError(t, err)
	require.Equal(t, time.Second, res.Duration())

	abs, _ := filepath.Abs(root)
	require.Equal(t, abs, res.Root)
}

func TestDetectPartitionUnderRandomMutations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 10; round++ {
		root := t.TempDir()
		files := map[string]string{}
		for i := 0; i < 12; i++ {
			files[fmt.Sprintf("d%d/f%d", i%3, i)] = fmt.Sprintf("content-%d", i)
		}
		writeTree(t, root, files)
		base := rebuild(t, root)

		wantModified, wantNew, wantMissing := map[string]bool{}, map[string]bool{}, map[string]bool{}
		for rel := range files {
			switch rng.Intn(4) {
			case 0:
				require.NoError(t, os.Remove(filepath.Join(root, filepath.FromSlash(rel))))
				wantMissing[rel] = true
			case 1:
				writeTree(t, root, map[string]string{rel: "mutated-" + rel})
				wantModified[rel] = true
			case 2:
				// Rewrite identical bytes: must not be a false positive.
				writeTree(t, root, map[string]string{rel: files[rel]})
			}
		}
		added := rng.Intn(4)
		for i := 0; i < added; i++ {
			rel := fmt.Sprintf("added/%d-%d", round, i)
			writeTree(t, root, map[string]string{rel: "new"})
			wantNew[rel] = true
		}

		res := detect(t, base, root)
		for _, p := range res.Modified {
			require.True(t, wantModified[p], p)
		}
		for _, p := range res.New {
			require.True(t, wantNew[p], p)
		}
		for _, p := range res.Missing {
			require.True(t, wantMissing[p], p)
		}
		require.Len(t, res.Modified, len(wantModified))
		require.Len(t, res.New, len(wantNew))
		require.Len(t, res.Missing, len(wantMissing))
	}
}

func TestClassify(t *testing.T) {
	res := &ScanResult{
		Unchanged: []string{"a", "c"},
		Modified:  []string{"b"},
		New:       []string{"d"},
		Missing:   []string{"e"},
	}
	for path, want := range map[string]Kind{"a": Unchanged, "b": Modified, "c": Unchanged, "d": New, "e": Missing} {
		got, ok := res.Classify(path)
		require.True(t, ok)
		require.Equal(t, want, got)
	}
	_, ok := res.Classify("zz")
	require.False(t, ok)
	require.Equal(t, 5, res.Total())
	require.Equal(t, 3, res.Drifted())
}

func TestDetectWalksFingerprinterFs(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/srv/a.txt", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(mem, "/srv/b.txt", []byte("b"), 0o644))

	fp := fingerprint.New(mem)
	base, err := baseline.Rebuild(context.Background(), "/srv", baseline.RebuildOptions{Fingerprinter: fp})
	require.NoError(t, err)
	require.Equal(t, []string{"a.txt", "b.txt"}, base.Paths())

	require.NoError(t, afero.WriteFile(mem, "/srv/b.txt", []byte("B"), 0o644))
	require.NoError(t, afero.WriteFile(mem, "/srv/c.txt", []byte("c"), 0o644))

	res, err := NewDetector(Config{Fingerprinter: fp}).Detect(context.Background(), base, "/srv")
	require.NoError(t, err)
	require.Equal(t, []string{"a.txt"}, res.Unchanged)
	require.Equal(t, []string{"b.txt"}, res.Modified)
	require.Equal(t, []string{"c.txt"}, res.New)
	require.Empty(t, res.Missing)
}
