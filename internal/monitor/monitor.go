// Package monitor runs integrity checks against a baseline, once or on an
// interval, and routes drift to a notifier.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"fimwatch/internal/baseline"
	"fimwatch/internal/drift"
	"fimwatch/internal/fingerprint"
	"fimwatch/internal/metrics"
	"fimwatch/internal/notify"
	"fimwatch/internal/report"
	"fimwatch/internal/walker"

	log "github.com/sirupsen/logrus"
)

// Config holds the monitor configuration.
type Config struct {
	Root          string
	Store         baseline.Store
	Walk          walker.Options
	Fingerprinter *fingerprint.Fingerprinter
	Workers       int
	// Notifier receives drifted results. Nil discards alerts.
	Notifier notify.Notifier
	// Journal, if set, records every result.
	Journal *report.Journal
	// Now defaults to time.Now.
	Now func() time.Time
}

// Status is a point-in-time view of a Monitor.
type Status struct {
	Root        string
	Cycles      int
	LastResult  *drift.ScanResult
	LastScan    time.Time
	LastAnomaly time.Time
	// LastError is the error of the most recent cycle, if it failed.
	LastError string
	Corrupted bool
}

// Monitor compares a root against the baseline held by a Store. The baseline
// is reloaded on every cycle and replaced only by Update or, when none
// exists yet, by the first cycle.
type Monitor struct {
	config   Config
	detector *drift.Detector
	// after is the inter-cycle timer, replaced in tests.
	after func(time.Duration) <-chan time.Time

	mu     sync.Mutex
	status Status
}

// New creates a Monitor.
func New(cfg Config) (*Monitor, error) {
	if cfg.Store == nil {
		return nil, errors.New("monitor: store is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	cfg.Root = root
	if cfg.Fingerprinter == nil {
		cfg.Fingerprinter = fingerprint.New(nil)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Monitor{
		config: cfg,
		detector: drift.NewDetector(drift.Config{
			Walk:          cfg.Walk,
			Fingerprinter: cfg.Fingerprinter,
			Workers:       cfg.Workers,
			Now:           cfg.Now,
		}),
		after:  time.After,
		status: Status{Root: root},
	}, nil
}

// Root returns the monitored directory.
func (m *Monitor) Root() string { return m.config.Root }

// Store returns the baseline store.
func (m *Monitor) Store() baseline.Store { return m.config.Store }

// Journal returns the report journal, which may be nil.
func (m *Monitor) Journal() *report.Journal { return m.config.Journal }

// Check runs a single cycle.
func (m *Monitor) Check(ctx context.Context) (*drift.ScanResult, error) {
	return m.RunCycle(ctx)
}

// Watch runs a cycle, waits interval, and repeats until ctx is cancelled.
// Cycles never overlap. A cycle in progress when ctx is cancelled runs to
// completion, including delivery of its alert. Cycle errors are logged and
// the loop continues, except for a corrupt baseline which ends it.
func (m *Monitor) Watch(ctx context.Context, interval time.Duration) error {
	log.WithFields(log.Fields{"root": m.config.Root, "interval": interval}).
		Info("monitoring started")

	for ctx.Err() == nil {
		_, err := m.RunCycle(context.WithoutCancel(ctx))

		var corrupt *baseline.CorruptError
		if errors.As(err, &corrupt) {
			return err
		} else if err != nil {
			log.WithFields(log.Fields{"root": m.config.Root, "err": err}).Error("monitoring cycle failed")
		}

		select {
		case <-ctx.Done():
		case <-m.after(interval):
		}
	}
	log.WithField("root", m.config.Root).Info("monitoring stopped")
	return nil
}

// RunCycle loads the baseline, creating it if none exists, classifies the
// root against it and routes drift to the notifier. Notification failures
// are logged and counted but do not fail the cycle.
func (m *Monitor) RunCycle(ctx context.Context) (*drift.ScanResult, error) {
	start := m.config.Now()
	res, err := m.runCycle(ctx)
	metrics.CycleDurationSeconds.Observe(m.config.Now().Sub(start).Seconds())

	switch {
	case err != nil:
		metrics.CyclesTotal.WithLabelValues(metrics.OutcomeError).Inc()
	case res.HasDrift():
		metrics.CyclesTotal.WithLabelValues(metrics.OutcomeDrift).Inc()
	default:
		metrics.CyclesTotal.WithLabelValues(metrics.OutcomeClean).Inc()
	}
	m.record(res, err)
	return res, err
}

func (m *Monitor) runCycle(ctx context.Context) (*drift.ScanResult, error) {
	base, err := m.config.Store.Load(ctx)
	if errors.Is(err, baseline.ErrNoBaseline) {
		log.WithField("root", m.config.Root).Warn("no baseline found, creating initial baseline")
		if base, err = m.rebuild(ctx, "initial"); err != nil {
			return nil, err
		}
	} else if err != nil {
		log.WithField("err", err).Error("baseline cannot be loaded; run update to re-create it")
		return nil, err
	}
	if base.Root != "" && base.Root != m.config.Root {
		log.WithFields(log.Fields{"baseline": base.Root, "root": m.config.Root}).
			Warn("baseline was recorded for a different root")
	}

	res, err := m.detector.Detect(ctx, base, m.config.Root)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	if m.config.Journal != nil {
		if err := m.config.Journal.Append(res); err != nil {
			log.WithField("err", err).Warn("failed to append report")
		}
	}

	fields := log.Fields{
		"root":      res.Root,
		"scan":      res.ID,
		"unchanged": len(res.Unchanged),
		"modified":  len(res.Modified),
		"new":       len(res.New),
		"missing":   len(res.Missing),
	}
	if !res.HasDrift() {
		log.WithFields(fields).Info("all files verified")
		return res, nil
	}
	log.WithFields(fields).Warn("integrity drift detected")

	if m.config.Notifier != nil {
		if err := m.config.Notifier.Notify(ctx, res); err != nil {
			metrics.NotifyFailuresTotal.Inc()
			log.WithField("err", err).Error("failed to deliver alert")
		}
	}
	return res, nil
}

// Update rebuilds the baseline from the current contents of the root and
// saves it, accepting all drift.
func (m *Monitor) Update(ctx context.Context) (*baseline.Baseline, error) {
	b, err := m.rebuild(ctx, "update")
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.status.Corrupted = false
	m.mu.Unlock()
	return b, nil
}

func (m *Monitor) rebuild(ctx context.Context, reason string) (*baseline.Baseline, error) {
	b, err := baseline.Rebuild(ctx, m.config.Root, baseline.RebuildOptions{
		Walk:          m.config.Walk,
		Fingerprinter: m.config.Fingerprinter,
		Workers:       m.config.Workers,
		Now:           m.config.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("rebuild baseline: %w", err)
	}
	if err := m.config.Store.Save(ctx, b); err != nil {
		return nil, fmt.Errorf("save baseline: %w", err)
	}
	metrics.BaselineSavesTotal.WithLabelValues(reason).Inc()

	log.WithFields(log.Fields{
		"root":   b.Root,
		"files":  b.Len(),
		"reason": reason,
	}).Info("baseline saved")
	return b, nil
}

func (m *Monitor) record(res *drift.ScanResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status.Cycles++
	if err != nil {
		m.status.LastError = err.Error()
		var corrupt *baseline.CorruptError
		if errors.As(err, &corrupt) {
			m.status.Corrupted = true
		}
		return
	}
	m.status.LastError = ""
	m.status.Corrupted = false
	m.status.LastResult = res
	m.status.LastScan = res.FinishedAt

	metrics.Files.WithLabelValues(string(drift.Unchanged)).Set(float64(len(res.Unchanged)))
	metrics.Files.WithLabelValues(string(drift.Modified)).Set(float64(len(res.Modified)))
	metrics.Files.WithLabelValues(string(drift.New)).Set(float64(len(res.New)))
	metrics.Files.WithLabelValues(string(drift.Missing)).Set(float64(len(res.Missing)))

	if res.HasDrift() {
		m.status.LastAnomaly = res.FinishedAt
		metrics.LastAnomalyTimestamp.Set(float64(res.FinishedAt.Unix()))
	}
}

// Status returns a snapshot of the monitor. It is safe to call concurrently
// with a running cycle.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}
