package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfig    string
	flagDB        string
	flagBackend   string
	flagReport    string
	flagLogLevel  string
	flagLogFormat string
	flagLogFile   string
	flagExclude   []string
	flagWorkers   int
	flagRetain    int
)

// errDrift is returned by commands which found drift. It maps to exit
// status 1; every other error maps to 2.
var errDrift = errors.New("integrity drift detected")

var rootCmd = &cobra.Command{
	Use:           "fimwatch",
	Short:         "Detect unauthorized changes to files under a directory",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	err := rootCmd.Execute()
	code := exitCode(err)
	if code == 2 {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	if code != 0 {
		os.Exit(code)
	}
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errDrift):
		return 1
	default:
		return 2
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "YAML configuration file")
	pf.StringVar(&flagDB, "db", "", "baseline path (default <dir>/.fimwatch/baseline.json)")
	pf.StringVar(&flagBackend, "backend", "", "baseline backend: json or sqlite (default by extension)")
	pf.StringVar(&flagReport, "report", "", "append scan results to this JSON-lines file")
	pf.StringVar(&flagLogLevel, "log-level", "info", "log level: trace, debug, info, warn or error")
	pf.StringVar(&flagLogFormat, "log-format", "text", "log format: text, json or color")
	pf.StringVar(&flagLogFile, "log-file", "", "also write log entries to this security log")
	pf.StringSliceVar(&flagExclude, "exclude", nil, "exclude names, relative paths or globs (repeatable)")
	pf.IntVar(&flagWorkers, "workers", 0, "concurrent file reads (default number of CPUs)")
	pf.IntVar(&flagRetain, "retain", 5, "previous baselines kept for history")
}
