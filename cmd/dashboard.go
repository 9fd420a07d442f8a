package cmd

import (
	"io"
	"time"

	"fimwatch/internal/tui"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var flagRefresh time.Duration

var dashboardCmd = &cobra.Command{
	Use:   "dashboard [dir]",
	Short: "Open the terminal dashboard",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, args, false)
		if err != nil {
			return err
		}
		defer a.Close()

		// The terminal belongs to the dashboard; keep only the log file.
		if w, ok := a.logs.(io.Writer); ok {
			log.SetOutput(w)
		} else {
			log.SetOutput(io.Discard)
		}
		return tui.Run(tui.Config{Sources: a.sources(nil), Refresh: flagRefresh})
	},
}

func init() {
	dashboardCmd.Flags().DurationVar(&flagRefresh, "refresh", 5*time.Second, "reload interval")
	rootCmd.AddCommand(dashboardCmd)
}
