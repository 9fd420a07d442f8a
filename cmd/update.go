package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update [dir]",
	Short: "Rebuild the baseline from the current directory contents, accepting all drift",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, args, false)
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := a.monitor()
		if err != nil {
			return err
		}
		b, err := m.Update(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Baseline updated: %d files recorded in %s.\n", b.Len(), a.cfg.Baseline.Path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
}
