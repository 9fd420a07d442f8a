// Package drift compares the files under a monitored root against a
// recorded baseline.
package drift

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"fimwatch/internal/baseline"
	"fimwatch/internal/fingerprint"
	"fimwatch/internal/walker"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Config holds the detector configuration.
type Config struct {
	// Walk.Fs defaults to the filesystem of the Fingerprinter, so that
	// enumeration and hashing see the same tree.
	Walk          walker.Options
	Fingerprinter *fingerprint.Fingerprinter
	// Workers bounds concurrent file reads. Zero uses runtime.NumCPU.
	Workers int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Detector classifies drift. It holds no state between calls: Detect is a
// function of the baseline and the filesystem.
type Detector struct {
	config Config
}

// NewDetector returns a Detector.
func NewDetector(cfg Config) *Detector {
	if cfg.Fingerprinter == nil {
		cfg.Fingerprinter = fingerprint.New(nil)
	}
	if cfg.Walk.Fs == nil {
		cfg.Walk.Fs = cfg.Fingerprinter.Fs()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Detector{config: cfg}
}

// Detect enumerates root and classifies every path of base ∪ disk:
//   - recorded but absent on disk: missing
//   - on disk but not recorded: new
//   - in both with a differing digest: modified, else unchanged
//
// A recorded file which cannot be read is classified missing, with the read
// error kept as the Change reason. Detect fails only if root cannot be
// walked or ctx is cancelled.
func (d *Detector) Detect(ctx context.Context, base *baseline.Baseline, root string) (*ScanResult, error) {
	res := &ScanResult{
		ID:        uuid.NewString(),
		StartedAt: d.config.Now().UTC(),
		Unchanged: []string{},
		Modified:  []string{},
		New:       []string{},
		Missing:   []string{},
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	res.Root = absRoot

	files, err := walker.Collect(ctx, absRoot, d.config.Walk)
	if err != nil {
		return nil, err
	}

	// Every file on disk is hashed: recorded ones to compare, new ones so
	// the alert can carry their digest.
	paths := make([]string, len(files))
	onDisk := make(map[string]struct{}, len(files))
	for i, f := range files {
		paths[i] = f.Path
		onDisk[f.RelPath] = struct{}{}
	}
	results, err := d.config.Fingerprinter.FingerprintAll(ctx, paths, d.config.Workers)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: %w", err)
	}

	for i, f := range files {
		r := results[i]
		rec, recorded := base.Get(f.RelPath)

		switch {
		case !recorded:
			c := Change{Path: f.RelPath, Kind: New, Current: r.Digest}
			if r.Err != nil {
				c.Reason = r.Err.Error()
			}
			res.New = append(res.New, f.RelPath)
			res.Changes = append(res.Changes, c)
			log.WithField("path", f.RelPath).Warn("detected as unknown")

		case r.Err != nil:
			res.Missing = append(res.Missing, f.RelPath)
			res.Changes = append(res.Changes, Change{
				Path: f.RelPath, Kind: Missing, Baseline: rec.Digest, Reason: r.Err.Error(),
			})
			log.WithFields(log.Fields{"path": f.RelPath, "err": r.Err}).Warn("could not be read")

		case r.Digest != rec.Digest:
			res.Modified = append(res.Modified, f.RelPath)
			res.Changes = append(res.Changes, Change{
				Path: f.RelPath, Kind: Modified, Baseline: rec.Digest, Current: r.Digest,
			})
			log.WithFields(log.Fields{
				"path":     f.RelPath,
				"baseline": rec.Digest.String(),
				"current":  r.Digest.String(),
			}).Warn("integrity failed")

		default:
			res.Unchanged = append(res.Unchanged, f.RelPath)
			log.WithField("path", f.RelPath).Debug("verified OK")
		}
	}

	for _, path := range base.Paths() {
		if _, ok := onDisk[path]; ok {
			continue
		}
		rec := base.Files[path]
		res.Missing = append(res.Missing, path)
		res.Changes = append(res.Changes, Change{Path: path, Kind: Missing, Baseline: rec.Digest})
		log.WithField("path", path).Warn("deleted from monitored folder")
	}

	sort.Strings(res.Missing)
	sort.Slice(res.Changes, func(i, j int) bool { return res.Changes[i].Path < res.Changes[j].Path })
	res.FinishedAt = d.config.Now().UTC()
	return res, nil
}
