// Package fingerprint computes content digests of monitored files.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Digest is the SHA-256 of a file's full byte content.
type Digest [sha256.Size]byte

// String returns the lowercase hex encoding of d.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool { return d == Digest{} }

// MarshalText encodes d as hex.
func (d Digest) MarshalText() ([]byte, error) {
	out := make([]byte, hex.EncodedLen(len(d)))
	hex.Encode(out, d[:])
	return out, nil
}

// UnmarshalText decodes a hex digest, rejecting any other length.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDigest parses a 64 character hex string.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if len(s) != hex.EncodedLen(len(d)) {
		return d, fmt.Errorf("digest %q: want %d hex characters, got %d", s, hex.EncodedLen(len(d)), len(s))
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, fmt.Errorf("digest %q: %w", s, err)
	}
	return d, nil
}

// Sum returns the digest of b.
func Sum(b []byte) Digest { return Digest(sha256.Sum256(b)) }

// ReadError reports a file that could not be fingerprinted.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string { return fmt.Sprintf("read %s: %v", e.Path, e.Err) }

func (e *ReadError) Unwrap() error { return e.Err }

// Fingerprinter hashes files on a filesystem.
type Fingerprinter struct {
	fs afero.Fs
}

// New returns a Fingerprinter reading from fs. A nil fs reads the OS filesystem.
func New(fs afero.Fs) *Fingerprinter {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Fingerprinter{fs: fs}
}

// Fs returns the filesystem f reads from.
func (f *Fingerprinter) Fs() afero.Fs { return f.fs }

// Fingerprint streams the full content of path through SHA-256 and returns
// the digest and the number of bytes read. Any failure is a *ReadError.
func (f *Fingerprinter) Fingerprint(path string) (Digest, int64, error) {
	file, err := f.fs.Open(path)
	if err != nil {
		return Digest{}, 0, &ReadError{Path: path, Err: err}
	}

	hash := sha256.New()
	n, err := io.Copy(hash, file)
	closeErr := file.Close()

	// The copy error is more important than the close error.
	if err != nil {
		return Digest{}, 0, &ReadError{Path: path, Err: err}
	}
	if closeErr != nil {
		return Digest{}, 0, &ReadError{Path: path, Err: closeErr}
	}

	var d Digest
	copy(d[:], hash.Sum(nil))
	return d, n, nil
}

// Result is the outcome of fingerprinting one path.
type Result struct {
	Digest Digest
	Size   int64
	Err    error
}

// FingerprintAll hashes paths with at most workers concurrent readers and
// returns results index-aligned with paths. Per-file failures are reported in
// Result.Err; the returned error is non-nil only if ctx was cancelled.
func (f *Fingerprinter) FingerprintAll(ctx context.Context, paths []string, workers int) ([]Result, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([]Result, len(paths))

	// The group context is cancelled once Wait returns; the caller's ctx
	// decides the outcome.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, n, err := f.Fingerprint(path)
			results[i] = Result{Digest: d, Size: n, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
