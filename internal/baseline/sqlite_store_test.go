package baseline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fimwatch/internal/fingerprint"

	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T, retain int) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "baseline.db"), retain)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreNoBaseline(t *testing.T) {
	s := openTestSQLite(t, 0)

	_, err := s.Load(context.Background())
	require.ErrorIs(t, err, ErrNoBaseline)
	_, err = s.AsOf(context.Background(), t0)
	require.ErrorIs(t, err, ErrNoBaseline)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, 0)

	want := fixture("/srv", t0, map[string]string{"a.txt": "A", "dir/b.txt": "B", "empty": ""})
	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, want.Equal(got))

	require.NoError(t, s.Save(ctx, got))
	again, err := s.Load(ctx)
	require.NoError(t, err)
	require.True(t, want.Equal(again))

	root, err := s.GetMeta("root")
	require.NoError(t, err)
	require.Equal(t, "/srv", root)
}

func TestSQLiteStoreEmptyBaseline(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, 0)

	require.NoError(t, s.Save(ctx, New("/srv", t0)))
	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Zero(t, got.Len())
}

func TestSQLiteStoreRetentionAndAsOf(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, 1)

	for i := 0; i < 3; i++ {
		b := fixture("/srv", t0.Add(time.Duration(i)*time.Hour), map[string]string{"v": string(rune('a' + i))})
		require.NoError(t, s.Save(ctx, b))
	}

	gens, err := s.History(ctx)
	require.NoError(t, err)
	require.Len(t, gens, 2)
	require.True(t, gens[0].CreatedAt.Equal(t0.Add(2*time.Hour)))
	require.Equal(t, 1, gens[0].Files)

	b, err := s.AsOf(ctx, t0.Add(time.Hour+time.Minute))
	require.NoError(t, err)
	require.Equal(t, fingerprint.Sum([]byte("b")), b.Files["v"].Digest)

	_, err = s.AsOf(ctx, t0)
	require.ErrorIs(t, err, ErrNoBaseline)

	var orphans int
	require.NoError(t, s.db.QueryRow(
		"SELECT COUNT(*) FROM files WHERE generation_id NOT IN (SELECT id FROM generations)").Scan(&orphans))
	require.Zero(t, orphans)
}

func TestSQLiteStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite database, not at all......"), 0o600))

	_, err := OpenSQLite(path, 0)
	var corrupt *CorruptError
	require.True(t, errors.As(err, &corrupt), "got %v", err)
}

func TestSQLiteStoreCorruptDigest(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t, 0)
	require.NoError(t, s.Save(ctx, fixture("/srv", t0, map[string]string{"a": "A"})))

	_, err := s.db.Exec("UPDATE files SET digest = 'tampered'")
	require.NoError(t, err)

	_, err = s.Load(ctx)
	var corrupt *CorruptError
	require.True(t, errors.As(err, &corrupt), "got %v", err)
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()

	require.Equal(t, BackendSQLite, ResolveBackend("x/baseline.db", BackendAuto))
	require.Equal(t, BackendSQLite, ResolveBackend("x/baseline.SQLITE", BackendAuto))
	require.Equal(t, BackendJSON, ResolveBackend("x/hash_db.json", BackendAuto))
	require.Equal(t, BackendJSON, ResolveBackend("x/baseline.db", BackendJSON))

	s, err := Open(filepath.Join(dir, "b.db"), Options{})
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(filepath.Join(dir, "b.json"), Options{})
	require.NoError(t, err)
	require.IsType(t, &JSONStore{}, s)

	_, err = Open(filepath.Join(dir, "b"), Options{Backend: "etcd"})
	require.ErrorContains(t, err, "unknown baseline backend")
}
