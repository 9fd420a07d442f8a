package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	flagSMTPConfig string
	flagAutoUpdate bool
)

var checkCmd = &cobra.Command{
	Use:   "check [dir]",
	Short: "Verify a directory against its baseline once, creating the baseline on first run",
	Long: `Verify a directory against its baseline once.

Exit status is 0 when every file verified, 1 when drift was detected and 2
on errors such as a corrupt baseline or an unreadable directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, args, false)
	if err != nil {
		return err
	}
	defer a.Close()

	m, err := a.monitor()
	if err != nil {
		return err
	}
	res, err := m.Check(cmd.Context())
	if err != nil {
		return err
	}
	if err := printResult(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if !res.HasDrift() {
		return nil
	}

	if flagAutoUpdate {
		b, err := m.Update(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Baseline updated: %d files recorded.\n", b.Len())
		return nil
	}
	return errDrift
}

func init() {
	checkCmd.Flags().StringVar(&flagSMTPConfig, "smtp-config", "", "SMTP settings file (YAML or JSON)")
	checkCmd.Flags().BoolVar(&flagAutoUpdate, "auto-update", false, "accept detected drift by rebuilding the baseline")
	rootCmd.AddCommand(checkCmd)
}
