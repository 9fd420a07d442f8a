package fingerprint

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func TestFingerprintIsDeterministic(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/a.txt", []byte("hello"), 0o644))
	require.NoError(t, afero.WriteFile(mem, "/b.txt", []byte("hello"), 0o644))
	require.NoError(t, afero.WriteFile(mem, "/c.txt", []byte("hellO"), 0o644))

	fp := New(mem)
	a, size, err := fp.Fingerprint("/a.txt")
	require.NoError(t, err)
	require.Equal(t, int64(5), size)
	require.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", a.String())

	b, _, err := fp.Fingerprint("/b.txt")
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, _, err := fp.Fingerprint("/c.txt")
	require.NoError(t, err)
	require.NotEqual(t, a, c)
	require.Equal(t, Sum([]byte("hellO")), c)
}

func TestFingerprintEmptyFile(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/empty", nil, 0o644))

	d, size, err := New(mem).Fingerprint("/empty")
	require.NoError(t, err)
	require.Zero(t, size)
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", d.String())
}

func TestFingerprintMissingFile(t *testing.T) {
	_, _, err := New(afero.NewMemMapFs()).Fingerprint("/gone")

	var readErr *ReadError
	require.True(t, errors.As(err, &readErr))
	require.Equal(t, "/gone", readErr.Path)
	require.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestDigestText(t *testing.T) {
	d := Sum([]byte("x"))

	b, err := json.Marshal(map[string]Digest{"d": d})
	require.NoError(t, err)
	require.Equal(t, `{"d":"`+d.String()+`"}`, string(b))

	var out map[string]Digest
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, d, out["d"])

	_, err = ParseDigest("abc")
	require.ErrorContains(t, err, "want 64 hex characters")
	_, err = ParseDigest("zz" + d.String()[2:])
	require.Error(t, err)

	require.True(t, Digest{}.IsZero())
	require.False(t, d.IsZero())
}

func TestFingerprintAll(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, "/1", []byte("one"), 0o644))
	require.NoError(t, afero.WriteFile(mem, "/2", []byte("two"), 0o644))

	results, err := New(mem).FingerprintAll(context.Background(), []string{"/1", "/missing", "/2"}, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.NoError(t, results[0].Err)
	require.Equal(t, Sum([]byte("one")), results[0].Digest)
	require.Equal(t, int64(3), results[0].Size)

	var readErr *ReadError
	require.True(t, errors.As(results[1].Err, &readErr))

	require.NoError(t, results[2].Err)
	require.Equal(t, Sum([]byte("two")), results[2].Digest)
}

func TestFingerprintAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(afero.NewMemMapFs()).FingerprintAll(ctx, []string{"/1"}, 1)
	require.ErrorIs(t, err, context.Canceled)
}
