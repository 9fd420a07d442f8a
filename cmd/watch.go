package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"fimwatch/internal/dashboard"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	flagInterval time.Duration
	flagListen   string
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Verify a directory against its baseline on an interval until interrupted",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, args, true)
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.monitor()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.Watch(ctx, a.cfg.Interval) })
	if a.cfg.Listen != "" {
		srv := dashboard.NewServer(a.sources(m))
		g.Go(func() error { return dashboard.ListenAndServe(ctx, a.cfg.Listen, srv) })
	}
	return g.Wait()
}

func init() {
	watchCmd.Flags().DurationVar(&flagInterval, "interval", 10*time.Second, "time between checks (at least 1s)")
	watchCmd.Flags().StringVar(&flagListen, "listen", "", "serve the read-only HTTP dashboard on this address")
	watchCmd.Flags().StringVar(&flagSMTPConfig, "smtp-config", "", "SMTP settings file (YAML or JSON)")
	rootCmd.AddCommand(watchCmd)
}
