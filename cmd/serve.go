package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"fimwatch/internal/dashboard"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve [dir]",
	Short: "Serve the read-only HTTP dashboard from the recorded baseline and reports",
	Long: `Serve the read-only HTTP dashboard.

Routes: GET /status, /baseline?as_of=<RFC3339>&prefix=<path>, /history,
/reports?limit=N, /logs?limit=N and /metrics. Status is taken from the report
journal (--report), as no checks run in this process.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, args, false)
		if err != nil {
			return err
		}
		defer a.Close()

		addr := a.cfg.Listen
		if addr == "" {
			addr = "localhost:5000"
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return dashboard.ListenAndServe(ctx, addr, dashboard.NewServer(a.sources(nil)))
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagListen, "listen", "", "address to listen on (default localhost:5000)")
	rootCmd.AddCommand(serveCmd)
}
