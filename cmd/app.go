package cmd

import (
	"fmt"
	"io"

	"fimwatch/internal/baseline"
	"fimwatch/internal/config"
	"fimwatch/internal/dashboard"
	"fimwatch/internal/logging"
	"fimwatch/internal/monitor"
	"fimwatch/internal/notify"
	"fimwatch/internal/report"

	"github.com/spf13/cobra"
)

// app holds what a command needs once configuration is resolved.
type app struct {
	cfg     config.Config
	store   baseline.Store
	journal *report.Journal
	logs    io.Closer
}

// loadConfig merges defaults, the --config file, explicitly set flags and
// the optional directory argument, in increasing precedence.
func loadConfig(cmd *cobra.Command, args []string, watch bool) (config.Config, error) {
	cfg := config.Default()
	if flagConfig != "" {
		var err error
		if cfg, err = config.Load(flagConfig); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if len(args) == 1 {
		cfg.Directory = args[0]
	}
	if flags.Changed("db") {
		cfg.Baseline.Path = flagDB
	}
	if flags.Changed("backend") {
		cfg.Baseline.Backend = flagBackend
	}
	if flags.Changed("retain") {
		cfg.Baseline.Retain = flagRetain
	}
	if flags.Changed("report") {
		cfg.Report = flagReport
	}
	if flags.Changed("workers") {
		cfg.Workers = flagWorkers
	}
	if flags.Changed("exclude") {
		cfg.Exclude = append(cfg.Exclude, flagExclude...)
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = flagLogLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = flagLogFormat
	}
	if flags.Changed("log-file") {
		cfg.Log.File = flagLogFile
	}
	if f := flags.Lookup("interval"); f != nil && f.Changed {
		cfg.Interval = flagInterval
	}
	if f := flags.Lookup("listen"); f != nil && f.Changed {
		cfg.Listen = flagListen
	}
	if f := flags.Lookup("smtp-config"); f != nil && f.Changed {
		smtp, err := config.LoadSMTP(flagSMTPConfig)
		if err != nil {
			return cfg, err
		}
		cfg.SMTP = smtp
	}

	if err := cfg.Resolve(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate(watch)
}

func newApp(cmd *cobra.Command, args []string, watch bool) (*app, error) {
	cfg, err := loadConfig(cmd, args, watch)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logs, err := logging.Init(cfg.Log)
	if err != nil {
		return nil, err
	}
	store, err := baseline.Open(cfg.Baseline.Path, baseline.Options{
		Backend: cfg.Baseline.Backend,
		Retain:  cfg.Baseline.Retain,
	})
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("open baseline: %w", err)
	}

	a := &app{cfg: cfg, store: store, logs: logs}
	if cfg.Report != "" {
		a.journal = report.NewJournal(nil, cfg.Report)
	}
	return a, nil
}

func (a *app) Close() {
	a.store.Close()
	a.logs.Close()
}

func (a *app) notifier() notify.Notifier {
	if a.cfg.SMTP.Enabled {
		return notify.NewSMTPNotifier(a.cfg.SMTP)
	}
	return notify.LogNotifier{}
}

func (a *app) monitor() (*monitor.Monitor, error) {
	return monitor.New(monitor.Config{
		Root:     a.cfg.Directory,
		Store:    a.store,
		Walk:     a.cfg.WalkOptions(),
		Workers:  a.cfg.Workers,
		Notifier: a.notifier(),
		Journal:  a.journal,
	})
}

func (a *app) sources(m *monitor.Monitor) dashboard.Sources {
	return dashboard.Sources{
		Root:    a.cfg.Directory,
		Store:   a.store,
		Journal: a.journal,
		Monitor: m,
		LogFile: a.cfg.Log.File,
	}
}
