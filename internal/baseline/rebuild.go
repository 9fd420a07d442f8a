package baseline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"fimwatch/internal/fingerprint"
	"fimwatch/internal/walker"

	log "github.com/sirupsen/logrus"
)

// RebuildOptions configure Rebuild.
type RebuildOptions struct {
	Walk          walker.Options
	Fingerprinter *fingerprint.Fingerprinter
	Workers       int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Rebuild enumerates every regular file under root and returns a new
// Baseline recording its current fingerprint. Files which cannot be read are
// left out and logged; they will surface as "new" on the next scan.
func Rebuild(ctx context.Context, root string, opts RebuildOptions) (*Baseline, error) {
	if opts.Fingerprinter == nil {
		opts.Fingerprinter = fingerprint.New(nil)
	}
	if opts.Walk.Fs == nil {
		opts.Walk.Fs = opts.Fingerprinter.Fs()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	files, err := walker.Collect(ctx, absRoot, opts.Walk)
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	results, err := opts.Fingerprinter.FingerprintAll(ctx, paths, opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: %w", err)
	}

	now := opts.Now().UTC()
	b := New(absRoot, now)
	for i, f := range files {
		if results[i].Err != nil {
			log.WithFields(log.Fields{"path": f.RelPath, "err": results[i].Err}).
				Warn("failed to hash during baseline creation")
			continue
		}
		b.Add(FileRecord{
			Path:        f.RelPath,
			Digest:      results[i].Digest,
			Size:        results[i].Size,
			LastChecked: now,
		})
		log.WithField("path", f.RelPath).Debug("added to baseline")
	}
	return b, nil
}
